package chrome

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface"
)

var ErrBrowserClosed = errors.New("browser is closed")

// Options configures the browser and its screencasts.
type Options struct {
	// ExecPath overrides the Chrome binary; empty searches the usual names.
	ExecPath string
	// RemoteURL attaches to a running browser's DevTools endpoint instead of
	// launching one.
	RemoteURL string
	Headless  bool
	NoSandbox bool
	// Quality is the screencast image quality, 0-100.
	Quality int
	Logger  *zap.Logger
}

// Browser owns one Chrome instance; every provider is a tab in it.
type Browser struct {
	opts          Options
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewBrowser launches Chrome, or attaches to RemoteURL, and waits until it
// answers.
func NewBrowser(ctx context.Context, opts Options) (*Browser, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 80
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.RemoteURL != "" {
		opts.Logger.Info("Attaching to Chrome", zap.String("url", opts.RemoteURL))
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("mute-audio", true),
			chromedp.Flag("disable-popup-blocking", true),
		)
		if opts.ExecPath != "" {
			execOpts = append(execOpts, chromedp.ExecPath(opts.ExecPath))
		}
		if opts.NoSandbox {
			execOpts = append(execOpts, chromedp.NoSandbox)
		}
		opts.Logger.Info("Launching Chrome", zap.Bool("headless", opts.Headless))
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), execOpts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			return target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser))
		}))
	}()

	var err error
	select {
	case err = <-started:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	return &Browser{
		opts:          opts,
		logger:        opts.Logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Factory returns a surface.Factory that opens a new tab per provider.
func (b *Browser) Factory() surface.Factory {
	return func(ctx context.Context) (surface.Provider, error) {
		if b.browserCtx.Err() != nil {
			return nil, ErrBrowserClosed
		}
		return newProvider(ctx, b)
	}
}

// Close shuts the browser down, closing every tab.
func (b *Browser) Close() error {
	b.browserCancel()
	b.allocCancel()
	return nil
}
