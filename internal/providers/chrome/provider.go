package chrome

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"path/filepath"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/shared/pixel"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/shared/queue"
)

// Provider is one Chrome tab. Commands run in order on a worker goroutine so
// no caller waits on the browser; getters answer from state kept current by
// CDP events.
type Provider struct {
	ctx      context.Context
	cancel   context.CancelFunc
	targetID target.ID
	quality  int
	logger   *zap.Logger

	cmds   *queue.Queue[func(ctx context.Context) error]
	frames chan *page.EventScreencastFrame

	mu         sync.Mutex
	listeners  map[int]surface.Listener
	nextSub    int
	painting   bool
	frameRate  int
	width      int
	height     int
	prev       []byte
	url        string
	title      string
	historyIdx int
	historyLen int
	closed     bool
}

func newProvider(ctx context.Context, b *Browser) (*Provider, error) {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	p := &Provider{
		ctx:       tabCtx,
		cancel:    cancel,
		quality:   b.opts.Quality,
		logger:    b.logger,
		cmds:      queue.New[func(ctx context.Context) error](),
		frames:    make(chan *page.EventScreencastFrame, 1),
		listeners: make(map[int]surface.Listener),
		frameRate: 60,
	}

	opened := make(chan error, 1)
	go func() {
		opened <- chromedp.Run(tabCtx, page.Enable())
	}()
	select {
	case err := <-opened:
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to open tab: %w", err)
		}
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	p.targetID = chromedp.FromContext(tabCtx).Target.TargetID
	p.logger = b.logger.With(zap.String("target", string(p.targetID)))

	chromedp.ListenTarget(tabCtx, p.onTargetEvent)
	chromedp.ListenBrowser(tabCtx, p.onBrowserEvent)

	go p.work()
	go p.decodeFrames()
	return p, nil
}

// enqueue schedules a command for the worker.
func (p *Provider) enqueue(name string, actions ...chromedp.Action) {
	p.cmds.Push(func(ctx context.Context) error {
		if err := chromedp.Run(ctx, actions...); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
}

func (p *Provider) work() {
	for {
		cmd, err := p.cmds.Pop(context.Background())
		if err != nil {
			return
		}
		if err := cmd(p.ctx); err != nil && p.ctx.Err() == nil {
			p.logger.Warn("Chrome command failed", zap.Error(err))
		}
	}
}

func (p *Provider) onTargetEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *page.EventScreencastFrame:
		select {
		case p.frames <- ev:
		default:
			// one frame in flight at a time; ack the surplus so Chrome keeps
			// sending
			go p.ack(ev.SessionID)
		}
	case *page.EventFrameNavigated:
		if ev.Frame == nil {
			return
		}
		main := ev.Frame.ParentID == ""
		if main {
			p.mu.Lock()
			p.url = ev.Frame.URL
			p.mu.Unlock()
			p.cmds.Push(p.refreshHistory)
		}
		p.emit(func(l surface.Listener) {
			if l.OnStartNavigation != nil {
				l.OnStartNavigation(ev.Frame.URL, main)
			}
		})
	}
}

func (p *Provider) onBrowserEvent(ev interface{}) {
	changed, ok := ev.(*target.EventTargetInfoChanged)
	if !ok || changed.TargetInfo == nil || changed.TargetInfo.TargetID != p.targetID {
		return
	}
	info := changed.TargetInfo
	p.mu.Lock()
	if info.Title == p.title {
		p.mu.Unlock()
		return
	}
	p.title = info.Title
	p.mu.Unlock()

	// Chrome falls back to the URL when a page sets no title
	explicit := info.Title != info.URL
	p.emit(func(l surface.Listener) {
		if l.OnTitleUpdated != nil {
			l.OnTitleUpdated(info.Title, explicit)
		}
	})
}

func (p *Provider) ack(sessionID int64) {
	err := page.ScreencastFrameAck(sessionID).Do(cdp.WithExecutor(p.ctx, chromedp.FromContext(p.ctx).Target))
	if err != nil && p.ctx.Err() == nil {
		p.logger.Debug("Screencast ack failed", zap.Error(err))
	}
}

func (p *Provider) decodeFrames() {
	for {
		select {
		case ev := <-p.frames:
			p.paint(ev)
			p.ack(ev.SessionID)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Provider) paint(ev *page.EventScreencastFrame) {
	buf, width, height, err := decodeFrame(ev.Data)
	if err != nil {
		p.logger.Debug("Dropping undecodable frame", zap.Error(err))
		return
	}

	p.mu.Lock()
	if !p.painting {
		p.mu.Unlock()
		return
	}
	dirty := pixel.Diff(p.prev, buf, width, height)
	p.prev = buf
	p.mu.Unlock()

	if dirty.Empty() {
		return
	}
	frame := surface.Frame{Width: width, Height: height, Pix: buf, Dirty: dirty}
	p.emit(func(l surface.Listener) {
		if l.OnPaint != nil {
			l.OnPaint(frame)
		}
	})
}

// decodeFrame turns a base64 screencast image into a BGRA buffer.
func decodeFrame(data string) ([]byte, int, int, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode frame: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode frame: %w", err)
	}
	buf, width, height := pixel.FromImage(img)
	return buf, width, height, nil
}

func (p *Provider) screencast() chromedp.Action {
	p.mu.Lock()
	params := page.StartScreencast().
		WithFormat(page.ScreencastFormatPng).
		WithQuality(int64(p.quality)).
		WithEveryNthFrame(everyNthFrame(p.frameRate))
	if p.width > 0 && p.height > 0 {
		params = params.WithMaxWidth(int64(p.width)).WithMaxHeight(int64(p.height))
	}
	p.mu.Unlock()
	return params
}

func (p *Provider) StartPainting() {
	p.mu.Lock()
	p.painting = true
	p.prev = nil
	p.mu.Unlock()
	p.enqueue("start screencast", p.screencast())
}

func (p *Provider) StopPainting() {
	p.mu.Lock()
	p.painting = false
	p.mu.Unlock()
	p.enqueue("stop screencast", page.StopScreencast())
}

func (p *Provider) SetFrameRate(fps int) {
	if fps <= 0 {
		return
	}
	p.mu.Lock()
	p.frameRate = fps
	painting := p.painting
	p.mu.Unlock()
	if painting {
		p.enqueue("restart screencast", page.StopScreencast(), p.screencast())
	}
}

func (p *Provider) Resize(width, height int) {
	p.mu.Lock()
	p.width, p.height = width, height
	p.prev = nil
	painting := p.painting
	p.mu.Unlock()

	p.enqueue("resize", emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1, false))
	if painting {
		p.enqueue("restart screencast", page.StopScreencast(), p.screencast())
	}
}

// LoadURL starts a navigation without waiting for the page to load.
func (p *Provider) LoadURL(rawURL string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrBrowserClosed
	}
	p.url = rawURL
	p.mu.Unlock()

	p.enqueue("navigate", chromedp.ActionFunc(func(ctx context.Context) error {
		var res page.NavigateReturns
		if err := chromedp.FromContext(ctx).Target.Execute(ctx, page.CommandNavigate, page.Navigate(rawURL), &res); err != nil {
			return err
		}
		if res.ErrorText != "" {
			return fmt.Errorf("%s: %s", rawURL, res.ErrorText)
		}
		return nil
	}))
	return nil
}

func (p *Provider) LoadFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return p.LoadURL((&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String())
}

func (p *Provider) SendMouseEvent(ev protocol.MouseEvent) {
	params := mouseParams(ev)
	actions := make([]chromedp.Action, len(params))
	for i, a := range params {
		actions[i] = a
	}
	p.enqueue("mouse", actions...)
}

func (p *Provider) SendKeyboardEvent(ev protocol.KeyboardEvent) {
	p.enqueue("key", keyParams(ev))
}

func (p *Provider) Focus(flag bool) {
	p.enqueue("focus", emulation.SetFocusEmulationEnabled(flag))
}

func (p *Provider) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Provider) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title
}

func (p *Provider) GoBack()    { p.cmds.Push(p.step(-1)) }
func (p *Provider) GoForward() { p.cmds.Push(p.step(1)) }

func (p *Provider) step(delta int64) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			cur, entries, err := page.GetNavigationHistory().Do(ctx)
			if err != nil {
				return err
			}
			next := cur + delta
			if next < 0 || next >= int64(len(entries)) {
				return nil
			}
			return page.NavigateToHistoryEntry(entries[next].ID).Do(ctx)
		}))
	}
}

func (p *Provider) refreshHistory(ctx context.Context) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cur, entries, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.historyIdx, p.historyLen = int(cur), len(entries)
		p.mu.Unlock()
		return nil
	}))
}

func (p *Provider) CanGoBack() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.historyIdx > 0
}

func (p *Provider) CanGoForward() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.historyIdx < p.historyLen-1
}

func (p *Provider) ClearHistory() {
	p.mu.Lock()
	p.historyIdx, p.historyLen = 0, 1
	p.mu.Unlock()
	p.enqueue("reset history", page.ResetNavigationHistory())
	p.cmds.Push(p.refreshHistory)
}

func (p *Provider) Subscribe(l surface.Listener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.listeners[id] = l
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// Close closes the tab.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.listeners = make(map[int]surface.Listener)
	p.mu.Unlock()

	p.cmds.Close()
	p.cancel()
	return nil
}

func (p *Provider) emit(fn func(l surface.Listener)) {
	p.mu.Lock()
	ls := make([]surface.Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		ls = append(ls, l)
	}
	p.mu.Unlock()
	for _, l := range ls {
		fn(l)
	}
}
