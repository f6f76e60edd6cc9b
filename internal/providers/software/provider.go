package software

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/shared/pixel"
)

var (
	ErrClosed            = errors.New("provider is closed")
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
)

const (
	CursorDefault = "default"
	CursorPointer = "pointer"
)

// Options configures software providers.
type Options struct {
	FetchTimeout     time.Duration
	FetchRetries     int
	ScriptTimeout    time.Duration
	MaxDocumentBytes int64
	UserAgent        string
	Logger           *zap.Logger
}

// DefaultOptions returns the standard software provider settings.
func DefaultOptions() Options {
	return Options{
		FetchTimeout:     10 * time.Second,
		FetchRetries:     3,
		ScriptTimeout:    2 * time.Second,
		MaxDocumentBytes: 4 << 20,
		UserAgent:        "surfacehost/1.0",
	}
}

// NewFactory returns a surface.Factory whose providers share one fetcher.
func NewFactory(opts Options) surface.Factory {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	fetcher := NewFetcher(opts)
	return func(ctx context.Context) (surface.Provider, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return New(fetcher, opts), nil
	}
}

// Provider is a CPU-rendered surface. Pages are reduced to coloured blocks,
// which is enough to exercise navigation, titles, input and dirty-rect
// painting without a browser.
type Provider struct {
	fetcher *Fetcher
	opts    Options
	logger  *zap.Logger

	mu        sync.Mutex
	listeners map[int]surface.Listener
	nextSub   int
	painting  bool
	forceFull bool
	frameRate int
	lastPaint time.Time
	width     int
	height    int
	focused   bool
	history   []string
	index     int
	doc       *document
	title     string
	gen       uint64
	cancel    context.CancelFunc
	scrollY   int
	typed     []rune
	pointer   image.Point
	pointerIn bool
	cursor    string
	prev      []byte
	closed    bool

	wake chan struct{}
	done chan struct{}
}

// New creates an idle provider showing a blank page.
func New(fetcher *Fetcher, opts Options) *Provider {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	p := &Provider{
		fetcher:   fetcher,
		opts:      opts,
		logger:    opts.Logger,
		listeners: make(map[int]surface.Listener),
		frameRate: 60,
		index:     -1,
		doc:       blankDocument(),
		cursor:    CursorDefault,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go p.paintLoop()
	return p
}

func (p *Provider) StartPainting() {
	p.mu.Lock()
	p.painting = true
	p.forceFull = true
	p.mu.Unlock()
	p.invalidate()
}

func (p *Provider) StopPainting() {
	p.mu.Lock()
	p.painting = false
	p.mu.Unlock()
}

func (p *Provider) SetFrameRate(fps int) {
	if fps <= 0 {
		return
	}
	p.mu.Lock()
	p.frameRate = fps
	p.mu.Unlock()
}

func (p *Provider) Resize(width, height int) {
	if width <= 0 || height <= 0 || width > protocol.MaxSurfaceDimension || height > protocol.MaxSurfaceDimension {
		p.logger.Warn("Ignoring resize out of range", zap.Int("width", width), zap.Int("height", height))
		return
	}
	p.mu.Lock()
	changed := width != p.width || height != p.height
	p.width, p.height = width, height
	if changed {
		p.prev = nil
	}
	p.mu.Unlock()
	if changed {
		p.invalidate()
	}
}

// LoadURL records rawURL in history and starts loading it.
func (p *Provider) LoadURL(rawURL string) error {
	if err := checkScheme(rawURL); err != nil {
		return err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.history = append(p.history[:p.index+1], rawURL)
	p.index = len(p.history) - 1
	p.navigateLocked(rawURL)
	p.mu.Unlock()
	return nil
}

// LoadFile loads a local file by absolute path.
func (p *Provider) LoadFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return p.LoadURL((&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String())
}

func checkScheme(rawURL string) error {
	if rawURL == surface.BlankURL {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "http", "https", "file":
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
}

// navigateLocked abandons any load in flight and starts loading rawURL.
func (p *Provider) navigateLocked(rawURL string) {
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.gen++
	p.scrollY = 0
	p.typed = nil
	go p.load(ctx, p.gen, rawURL)
}

func (p *Provider) load(ctx context.Context, gen uint64, rawURL string) {
	p.emit(func(l surface.Listener) {
		if l.OnStartNavigation != nil {
			l.OnStartNavigation(rawURL, true)
		}
	})

	doc, err := p.fetch(ctx, rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Debug("Navigation failed", zap.String("url", rawURL), zap.Error(err))
		doc = errorDocument(rawURL)
	}

	for _, frame := range doc.frames {
		p.emit(func(l surface.Listener) {
			if l.OnStartNavigation != nil {
				l.OnStartNavigation(frame, false)
			}
		})
	}

	if !p.commit(gen, func() { p.doc, p.title = doc, doc.title }) {
		return
	}
	if doc.title != "" {
		p.emitTitle(doc.title, false)
	}
	p.invalidate()

	if len(doc.scripts) == 0 {
		return
	}
	host, err := newScriptHost(doc.title, p.logger)
	if err != nil {
		p.logger.Warn("Failed to prepare page scripts", zap.Error(err))
		return
	}
	host.run(ctx, doc.scripts, p.opts.ScriptTimeout)
	for _, title := range host.titles {
		if !p.commit(gen, func() { p.title = title }) {
			return
		}
		p.emitTitle(title, true)
	}
}

func (p *Provider) fetch(ctx context.Context, rawURL string) (*document, error) {
	if rawURL == surface.BlankURL {
		return blankDocument(), nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	var data []byte
	if u.Scheme == "file" {
		data, err = p.fetcher.ReadFile(filepath.FromSlash(u.Path))
	} else {
		data, err = p.fetcher.Get(ctx, rawURL)
	}
	if err != nil {
		return nil, err
	}
	return parseDocument(rawURL, data)
}

// commit applies fn if gen is still the current navigation.
func (p *Provider) commit(gen uint64, fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || gen != p.gen {
		return false
	}
	fn()
	return true
}

func (p *Provider) emitTitle(title string, explicit bool) {
	p.emit(func(l surface.Listener) {
		if l.OnTitleUpdated != nil {
			l.OnTitleUpdated(title, explicit)
		}
	})
}

func (p *Provider) SendMouseEvent(ev protocol.MouseEvent) {
	p.mu.Lock()
	switch ev.Kind {
	case protocol.MouseLeave:
		p.pointerIn = false
	case protocol.MouseWheel:
		limit := max(contentHeight(p.doc, p.width, p.height)-(p.height-header(p.height)), 0)
		p.scrollY = min(max(p.scrollY-int(ev.WheelDeltaY), 0), limit)
	default:
		p.pointer = image.Pt(ev.X, ev.Y)
		p.pointerIn = true
	}

	cursor := CursorDefault
	if p.pointerIn && p.pointer.Y >= 0 && p.pointer.Y < header(p.height) {
		cursor = CursorPointer
	}
	changed := cursor != p.cursor
	p.cursor = cursor
	p.mu.Unlock()

	if changed {
		p.emit(func(l surface.Listener) {
			if l.OnCursorChanged != nil {
				l.OnCursorChanged(cursor)
			}
		})
	}
	p.invalidate()
}

func (p *Provider) SendKeyboardEvent(ev protocol.KeyboardEvent) {
	p.mu.Lock()
	switch {
	case !p.focused:
	case ev.Kind == protocol.KeyChar && utf8.RuneCountInString(ev.KeyCode) == 1:
		r, _ := utf8.DecodeRuneInString(ev.KeyCode)
		p.typed = append(p.typed, r)
	case ev.Kind == protocol.KeyDown && ev.KeyCode == "Backspace" && len(p.typed) > 0:
		p.typed = p.typed[:len(p.typed)-1]
	}
	p.mu.Unlock()
	p.invalidate()
}

func (p *Provider) Focus(flag bool) {
	p.mu.Lock()
	p.focused = flag
	p.mu.Unlock()
	p.invalidate()
}

func (p *Provider) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index < 0 {
		return ""
	}
	return p.history[p.index]
}

// Title returns the page title, or the URL for pages without one.
func (p *Provider) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.title != "" || p.index < 0 {
		return p.title
	}
	return p.history[p.index]
}

func (p *Provider) GoBack() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.index <= 0 {
		return
	}
	p.index--
	p.navigateLocked(p.history[p.index])
}

func (p *Provider) GoForward() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.index >= len(p.history)-1 {
		return
	}
	p.index++
	p.navigateLocked(p.history[p.index])
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
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index < 0 {
		return
	}
	p.history = []string{p.history[p.index]}
	p.index = 0
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

// Close stops painting and any load in flight.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.painting = false
	if p.cancel != nil {
		p.cancel()
	}
	p.listeners = make(map[int]surface.Listener)
	close(p.done)
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

// invalidate schedules a repaint.
func (p *Provider) invalidate() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Provider) paintLoop() {
	for {
		select {
		case <-p.wake:
		case <-p.done:
			return
		}

		p.mu.Lock()
		wait := time.Second/time.Duration(p.frameRate) - time.Since(p.lastPaint)
		p.mu.Unlock()
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-p.done:
				return
			}
		}
		p.paint()
	}
}

// paint renders the current scene and reports the damage since the last
// painted frame.
func (p *Provider) paint() {
	p.mu.Lock()
	if !p.painting || p.width <= 0 || p.height <= 0 {
		p.mu.Unlock()
		return
	}
	s := scene{
		width:     p.width,
		height:    p.height,
		doc:       p.doc,
		scrollY:   p.scrollY,
		focused:   p.focused,
		typed:     len(p.typed),
		pointer:   p.pointer,
		pointerIn: p.pointerIn,
	}
	p.mu.Unlock()

	buf, err := render(s)
	if err != nil {
		p.logger.Warn("Render failed", zap.Error(err))
		return
	}

	p.mu.Lock()
	if !p.painting || s.width != p.width || s.height != p.height {
		p.mu.Unlock()
		p.invalidate()
		return
	}
	dirty := pixel.Diff(p.prev, buf, s.width, s.height)
	if p.forceFull {
		dirty = image.Rect(0, 0, s.width, s.height)
		p.forceFull = false
	}
	p.prev = buf
	p.lastPaint = time.Now()
	p.mu.Unlock()

	if dirty.Empty() {
		return
	}
	frame := surface.Frame{Width: s.width, Height: s.height, Pix: buf, Dirty: dirty}
	p.emit(func(l surface.Listener) {
		if l.OnPaint != nil {
			l.OnPaint(frame)
		}
	})
}
