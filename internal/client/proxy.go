package client

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
)

// Proxy is the consumer-side stand-in for one host surface. Its handle is
// zero until Create succeeds and again after Destroy.
type Proxy struct {
	demux *Demultiplexer

	mu     sync.Mutex
	handle protocol.Handle

	paint      slot[*protocol.PaintEvent]
	cursor     slot[*protocol.CursorEvent]
	navigation slot[*protocol.NavigationEvent]
	title      slot[*protocol.TitleEvent]
}

// Handle returns the bound handle, or zero.
func (p *Proxy) Handle() protocol.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

// Create asks the host for a surface of the given size and binds the proxy to
// it. It reports false when the host could not create one.
func (p *Proxy) Create(ctx context.Context, width, height int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle != 0 {
		return false, ErrBound
	}

	p.demux.beginCreate()
	var h protocol.Handle
	if err := p.call(ctx, protocol.MethodCreate, protocol.CreateParams{Width: width, Height: height}, &h); err != nil {
		p.demux.endCreate(0, nil)
		return false, err
	}
	p.handle = h
	p.demux.endCreate(h, p)
	return h != 0, nil
}

// Destroy releases the surface. The proxy stops receiving events before the
// command is sent.
func (p *Proxy) Destroy(ctx context.Context) (bool, error) {
	p.mu.Lock()
	h := p.handle
	if h == 0 {
		p.mu.Unlock()
		return false, nil
	}
	p.demux.unregister(h)
	p.handle = 0
	p.mu.Unlock()

	return p.boolCall(ctx, protocol.MethodDestroy, protocol.HandleParams{Handle: h})
}

// Navigate loads target; isLocal resolves it against the host's resource root.
func (p *Proxy) Navigate(ctx context.Context, target string, isLocal bool) (bool, error) {
	h := p.Handle()
	if h == 0 {
		return false, nil
	}
	return p.boolCall(ctx, protocol.MethodNavigate, protocol.NavigateParams{Handle: h, Target: target, IsLocal: isLocal})
}

// SendMouseEvent forwards a mouse event; the handle field of ev is ignored.
func (p *Proxy) SendMouseEvent(ctx context.Context, ev protocol.MouseEventParams) (bool, error) {
	if ev.Handle = p.Handle(); ev.Handle == 0 {
		return false, nil
	}
	return p.boolCall(ctx, protocol.MethodSendMouseEvent, ev)
}

// SendKeyboardEvent forwards a keyboard event; the handle field of ev is
// ignored.
func (p *Proxy) SendKeyboardEvent(ctx context.Context, ev protocol.KeyboardEventParams) (bool, error) {
	if ev.Handle = p.Handle(); ev.Handle == 0 {
		return false, nil
	}
	return p.boolCall(ctx, protocol.MethodSendKeyboardEvent, ev)
}

func (p *Proxy) SetFocus(ctx context.Context, flag bool) (bool, error) {
	h := p.Handle()
	if h == 0 {
		return false, nil
	}
	return p.boolCall(ctx, protocol.MethodSetFocus, protocol.FocusParams{Handle: h, Flag: flag})
}

// SetDirtyRectOnly selects cropped (true) or full-frame paint events.
func (p *Proxy) SetDirtyRectOnly(ctx context.Context, dirtyOnly bool) (bool, error) {
	h := p.Handle()
	if h == 0 {
		return false, nil
	}
	return p.boolCall(ctx, protocol.MethodSetPaintMode, protocol.PaintModeParams{Handle: h, DirtyRectOnly: dirtyOnly})
}

// URL returns the current URL; ok is false when the surface is gone.
func (p *Proxy) URL(ctx context.Context) (string, bool, error) {
	return p.stringCall(ctx, protocol.MethodGetURL)
}

// Title returns the current title; ok is false when the surface is gone.
func (p *Proxy) Title(ctx context.Context) (string, bool, error) {
	return p.stringCall(ctx, protocol.MethodGetTitle)
}

func (p *Proxy) HistoryGoBack(ctx context.Context) (bool, error) {
	return p.handleCall(ctx, protocol.MethodHistoryGoBack)
}

func (p *Proxy) HistoryGoForward(ctx context.Context) (bool, error) {
	return p.handleCall(ctx, protocol.MethodHistoryGoForward)
}

func (p *Proxy) HistoryCanGoBack(ctx context.Context) (bool, error) {
	return p.handleCall(ctx, protocol.MethodHistoryCanGoBack)
}

func (p *Proxy) HistoryCanGoForward(ctx context.Context) (bool, error) {
	return p.handleCall(ctx, protocol.MethodHistoryCanGoForward)
}

// OnPaint sets the paint callback. A nil fn clears it.
func (p *Proxy) OnPaint(fn func(*protocol.PaintEvent)) Subscription {
	return p.paint.set(fn)
}

// OnCursorChanged sets the cursor callback. A nil fn clears it.
func (p *Proxy) OnCursorChanged(fn func(*protocol.CursorEvent)) Subscription {
	return p.cursor.set(fn)
}

// OnStartNavigation sets the navigation callback. A nil fn clears it.
func (p *Proxy) OnStartNavigation(fn func(*protocol.NavigationEvent)) Subscription {
	return p.navigation.set(fn)
}

// OnTitleChanged sets the title callback. A nil fn clears it.
func (p *Proxy) OnTitleChanged(fn func(*protocol.TitleEvent)) Subscription {
	return p.title.set(fn)
}

func (p *Proxy) deliver(ev protocol.Event) {
	switch e := ev.(type) {
	case *protocol.PaintEvent:
		p.paint.call(e)
	case *protocol.CursorEvent:
		p.cursor.call(e)
	case *protocol.NavigationEvent:
		p.navigation.call(e)
	case *protocol.TitleEvent:
		p.title.call(e)
	}
}

func (p *Proxy) call(ctx context.Context, method protocol.Method, params, result interface{}) error {
	return p.demux.transport.Call(ctx, method, params, result)
}

func (p *Proxy) boolCall(ctx context.Context, method protocol.Method, params interface{}) (bool, error) {
	var ok bool
	if err := p.call(ctx, method, params, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (p *Proxy) handleCall(ctx context.Context, method protocol.Method) (bool, error) {
	h := p.Handle()
	if h == 0 {
		return false, nil
	}
	return p.boolCall(ctx, method, protocol.HandleParams{Handle: h})
}

func (p *Proxy) stringCall(ctx context.Context, method protocol.Method) (string, bool, error) {
	h := p.Handle()
	if h == 0 {
		return "", false, nil
	}
	var v *string
	if err := p.call(ctx, method, protocol.HandleParams{Handle: h}, &v); err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}
