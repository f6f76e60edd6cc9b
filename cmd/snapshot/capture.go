package main

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/client"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/shared/pixel"
)

// request describes one capture.
type request struct {
	Target  string
	IsLocal bool
	Width   int
	Height  int
	// Quiet is how long the surface must go without painting before the
	// canvas is taken as settled.
	Quiet time.Duration
}

// result is a settled surface.
type result struct {
	Image  *image.RGBA
	Title  string
	URL    string
	Frames int
}

// capture opens one surface over transport, loads the target and composites
// its paint stream until it settles or ctx ends.
func capture(ctx context.Context, transport client.Transport, req request, logger *zap.Logger) (*result, error) {
	demux := client.NewDemultiplexer(transport, logger)
	demux.Initialize()
	p := demux.NewProxy()

	canvas := pixel.NewCanvas()
	painted := make(chan struct{}, 1)
	var (
		mu    sync.Mutex
		title string
	)
	p.OnPaint(func(ev *protocol.PaintEvent) {
		if err := canvas.Apply(ev); err != nil {
			logger.Warn("Dropping paint", zap.Error(err))
			return
		}
		select {
		case painted <- struct{}{}:
		default:
		}
	})
	p.OnTitleChanged(func(ev *protocol.TitleEvent) {
		mu.Lock()
		title = ev.Title
		mu.Unlock()
	})
	p.OnStartNavigation(func(ev *protocol.NavigationEvent) {
		logger.Debug("Navigation started", zap.String("url", ev.URL))
	})

	ok, err := p.Create(ctx, req.Width, req.Height)
	if err != nil {
		return nil, fmt.Errorf("create surface: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("create surface: host refused")
	}
	defer func() {
		destroyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = p.Destroy(destroyCtx)
	}()

	ok, err = p.Navigate(ctx, req.Target, req.IsLocal)
	if err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("navigate: %q rejected", req.Target)
	}

	if err := settle(ctx, painted, req.Quiet); err != nil {
		return nil, err
	}

	u, _, err := p.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("url: %w", err)
	}
	mu.Lock()
	defer mu.Unlock()
	return &result{
		Image:  canvas.RGBA(),
		Title:  title,
		URL:    u,
		Frames: canvas.Frames(),
	}, nil
}

// settle waits for the first paint and then for quiet without another.
func settle(ctx context.Context, painted <-chan struct{}, quiet time.Duration) error {
	select {
	case <-painted:
	case <-ctx.Done():
		return fmt.Errorf("no frame painted: %w", ctx.Err())
	}

	timer := time.NewTimer(quiet)
	defer timer.Stop()
	for {
		select {
		case <-painted:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(quiet)
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("surface never settled: %w", ctx.Err())
		}
	}
}
