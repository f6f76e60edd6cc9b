// Package surfacetest provides an in-memory surface.Provider for tests.
package surfacetest

import (
	"context"
	"errors"
	"sync"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
)

var ErrProviderClosed = errors.New("provider closed")

// Provider records every call and keeps a simple navigation history.
type Provider struct {
	ID int

	mu        sync.Mutex
	listeners map[int]surface.Listener
	nextSub   int
	painting  bool
	frameRate int
	width     int
	height    int
	focused   bool
	title     string
	history   []string
	index     int
	closed    bool
	mouse     []protocol.MouseEvent
	keys      []protocol.KeyboardEvent
	files     []string
	failLoads bool
}

// New returns an idle provider showing about:blank.
func New(id int) *Provider {
	return &Provider{ID: id, listeners: make(map[int]surface.Listener), index: -1}
}

// Factory returns a surface.Factory that numbers its providers from 1 and
// records them in order.
func Factory() (surface.Factory, func() []*Provider) {
	var (
		mu    sync.Mutex
		built []*Provider
	)
	factory := func(ctx context.Context) (surface.Provider, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mu.Lock()
		defer mu.Unlock()
		p := New(len(built) + 1)
		built = append(built, p)
		return p, nil
	}
	list := func() []*Provider {
		mu.Lock()
		defer mu.Unlock()
		return append([]*Provider(nil), built...)
	}
	return factory, list
}

func (p *Provider) StartPainting() { p.set(func() { p.painting = true }) }
func (p *Provider) StopPainting()  { p.set(func() { p.painting = false }) }
func (p *Provider) SetFrameRate(fps int) {
	p.set(func() { p.frameRate = fps })
}

func (p *Provider) Resize(width, height int) {
	p.set(func() { p.width, p.height = width, height })
}

func (p *Provider) LoadURL(url string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProviderClosed
	}
	if p.failLoads {
		p.mu.Unlock()
		return errors.New("load refused")
	}
	p.history = append(p.history[:p.index+1], url)
	p.index = len(p.history) - 1
	p.title = ""
	p.mu.Unlock()
	return nil
}

func (p *Provider) LoadFile(path string) error {
	p.set(func() { p.files = append(p.files, path) })
	return p.LoadURL("file://" + path)
}

func (p *Provider) SendMouseEvent(ev protocol.MouseEvent) {
	p.set(func() { p.mouse = append(p.mouse, ev) })
}

func (p *Provider) SendKeyboardEvent(ev protocol.KeyboardEvent) {
	p.set(func() { p.keys = append(p.keys, ev) })
}

func (p *Provider) Focus(flag bool) { p.set(func() { p.focused = flag }) }

func (p *Provider) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index < 0 {
		return ""
	}
	return p.history[p.index]
}

func (p *Provider) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title
}

func (p *Provider) GoBack() {
	p.set(func() {
		if p.index > 0 {
			p.index--
		}
	})
}

func (p *Provider) GoForward() {
	p.set(func() {
		if p.index < len(p.history)-1 {
			p.index++
		}
	})
}

func (p *Provider) CanGoBack() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index > 0
}

func (p *Provider) CanGoForward() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index < len(p.history)-1
}

// ClearHistory keeps only the current entry.
func (p *Provider) ClearHistory() {
	p.set(func() {
		if p.index < 0 {
			return
		}
		p.history = []string{p.history[p.index]}
		p.index = 0
	})
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

func (p *Provider) Close() error {
	p.set(func() { p.closed = true })
	return nil
}

func (p *Provider) set(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

// FailLoads makes subsequent loads return an error.
func (p *Provider) FailLoads(fail bool) { p.set(func() { p.failLoads = fail }) }

// State is a snapshot of the provider's recorded calls.
type State struct {
	Painting    bool
	FrameRate   int
	Width       int
	Height      int
	Focused     bool
	Closed      bool
	History     []string
	Listeners   int
	MouseEvents []protocol.MouseEvent
	KeyEvents   []protocol.KeyboardEvent
	Files       []string
}

// State returns a copy of the recorded state.
func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		Painting:    p.painting,
		FrameRate:   p.frameRate,
		Width:       p.width,
		Height:      p.height,
		Focused:     p.focused,
		Closed:      p.closed,
		History:     append([]string(nil), p.history...),
		Listeners:   len(p.listeners),
		MouseEvents: append([]protocol.MouseEvent(nil), p.mouse...),
		KeyEvents:   append([]protocol.KeyboardEvent(nil), p.keys...),
		Files:       append([]string(nil), p.files...),
	}
}

func (p *Provider) each(fn func(l surface.Listener)) {
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

// Listeners returns the installed listeners.
func (p *Provider) Listeners() []surface.Listener {
	var ls []surface.Listener
	p.each(func(l surface.Listener) { ls = append(ls, l) })
	return ls
}

// Paint fires a paint notification.
func (p *Provider) Paint(f surface.Frame) {
	p.each(func(l surface.Listener) {
		if l.OnPaint != nil {
			l.OnPaint(f)
		}
	})
}

// Cursor fires a cursor notification.
func (p *Provider) Cursor(kind string) {
	p.each(func(l surface.Listener) {
		if l.OnCursorChanged != nil {
			l.OnCursorChanged(kind)
		}
	})
}

// StartNavigation fires a navigation notification.
func (p *Provider) StartNavigation(url string, mainFrame bool) {
	p.each(func(l surface.Listener) {
		if l.OnStartNavigation != nil {
			l.OnStartNavigation(url, mainFrame)
		}
	})
}

// SetTitle changes the title and fires a title notification.
func (p *Provider) SetTitle(title string, explicitlySet bool) {
	p.set(func() { p.title = title })
	p.each(func(l surface.Listener) {
		if l.OnTitleUpdated != nil {
			l.OnTitleUpdated(title, explicitlySet)
		}
	})
}
