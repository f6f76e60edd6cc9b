package surface

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/shared/pixel"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/shared/queue"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/shared/resources"
)

var (
	ErrClosed      = errors.New("multiplexer is closed")
	ErrInvalidSize = errors.New("invalid surface size")
)

// Sink receives the events of the surfaces it owns. Emit is called from the
// multiplexer loop and must not block.
type Sink interface {
	Emit(ev protocol.Event)
}

// Config tunes a Multiplexer.
type Config struct {
	// FrameRate is applied to every provider on create.
	FrameRate int
	// ResourceRoot anchors local navigation targets.
	ResourceRoot string
	// MaxIdle caps the pool free list; zero keeps every released provider.
	MaxIdle int
	// AllowLocal restricts local targets to paths matching these globs.
	AllowLocal []string
	// MaxWidth and MaxHeight bound the size passed to Create. Zero means
	// DefaultMaxDimension; neither may exceed protocol.MaxSurfaceDimension.
	MaxWidth  int
	MaxHeight int
}

// DefaultMaxDimension is the size cap applied when Config leaves it unset.
const DefaultMaxDimension = 8192

// DefaultConfig returns the standard multiplexer settings.
func DefaultConfig() Config {
	return Config{
		FrameRate:    60,
		ResourceRoot: ".",
		MaxWidth:     DefaultMaxDimension,
		MaxHeight:    DefaultMaxDimension,
	}
}

func clampDimension(v int) int {
	if v <= 0 {
		return DefaultMaxDimension
	}
	return min(v, protocol.MaxSurfaceDimension)
}

// Stats describes the multiplexer at one point of its loop.
type Stats struct {
	Live       int             `json:"live"`
	Idle       int             `json:"idle"`
	Created    int             `json:"constructed"`
	LastHandle protocol.Handle `json:"lastHandle"`
}

// Multiplexer owns a pool of providers and routes commands and events for
// the surfaces built on them. All state is confined to one loop goroutine;
// exported methods hand closures to that loop and wait for them.
type Multiplexer struct {
	cfg      Config
	pool     *Pool
	registry *Registry
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	breaker  *resilience.Breaker

	tasks     *queue.Queue[func()]
	closeOnce sync.Once
	closeErr  error
	stopped   chan struct{}
}

// NewMultiplexer creates a multiplexer and starts its loop.
func NewMultiplexer(cfg Config, factory Factory, logger *zap.Logger) *Multiplexer {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 60
	}
	cfg.MaxWidth = clampDimension(cfg.MaxWidth)
	cfg.MaxHeight = clampDimension(cfg.MaxHeight)
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Multiplexer{
		cfg:      cfg,
		registry: NewRegistry(),
		logger:   logger,
		tasks:    queue.New[func()](),
		stopped:  make(chan struct{}),
	}
	m.pool = NewPool(m.guard(factory), cfg.MaxIdle)

	go m.loop()
	return m
}

// WithMetrics attaches a metrics collector.
func (m *Multiplexer) WithMetrics(metrics *monitoring.Metrics) *Multiplexer {
	m.metrics = metrics
	return m
}

// WithBreaker routes provider construction through b.
func (m *Multiplexer) WithBreaker(b *resilience.Breaker) *Multiplexer {
	m.breaker = b
	return m
}

func (m *Multiplexer) guard(factory Factory) Factory {
	return func(ctx context.Context) (Provider, error) {
		if m.breaker == nil {
			return factory(ctx)
		}
		return resilience.Call(m.breaker, func() (Provider, error) {
			return factory(ctx)
		})
	}
}

func (m *Multiplexer) loop() {
	defer close(m.stopped)
	for {
		fn, err := m.tasks.Pop(context.Background())
		if err != nil {
			return
		}
		m.run(fn)
	}
}

func (m *Multiplexer) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Surface loop task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

// enqueue appends fn to the loop queue. The queue is unbounded so provider
// callbacks never block.
func (m *Multiplexer) enqueue(fn func()) bool {
	return m.tasks.Push(fn)
}

// do runs fn on the loop and waits for it. A cancelled ctx stops the wait,
// not the command.
func (m *Multiplexer) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !m.enqueue(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withSurface runs fn against the live wrapper for h and reports whether h
// was live.
func (m *Multiplexer) withSurface(ctx context.Context, method protocol.Method, h protocol.Handle, fn func(w *wrapper) bool) bool {
	timer := monitoring.NewTimer(m.metrics, string(method))
	ok := false
	err := m.do(ctx, func() {
		w := m.registry.get(h)
		if w == nil {
			m.logger.Debug("Unknown surface handle",
				zap.String("method", string(method)),
				zap.Uint64("handle", uint64(h)),
			)
			return
		}
		ok = fn(w)
	})
	if err != nil {
		m.logger.Debug("Surface command not run",
			zap.String("method", string(method)),
			zap.Uint64("handle", uint64(h)),
			zap.Error(err),
		)
		timer.Stop(monitoring.ResultError)
		return false
	}
	if ok {
		timer.Stop(monitoring.ResultOK)
	} else {
		timer.Stop(monitoring.ResultRejected)
	}
	return ok
}

// Create binds a fresh surface of the given size to owner and returns its
// handle.
func (m *Multiplexer) Create(ctx context.Context, owner Sink, width, height int) (protocol.Handle, error) {
	timer := monitoring.NewTimer(m.metrics, string(protocol.MethodCreate))
	if width <= 0 || height <= 0 || width > m.cfg.MaxWidth || height > m.cfg.MaxHeight {
		timer.Stop(monitoring.ResultRejected)
		return 0, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}

	var (
		handle protocol.Handle
		err    error
	)
	// The loop is always awaited; a ctx that ends meanwhile undoes the create.
	if doErr := m.do(context.Background(), func() {
		handle, err = m.create(ctx, owner, width, height)
		if err == nil && ctx.Err() != nil {
			m.retire(m.registry.get(handle))
			handle, err = 0, ctx.Err()
		}
	}); doErr != nil {
		err = doErr
	}
	if err != nil {
		timer.Stop(monitoring.ResultError)
		m.logger.Warn("Failed to create surface", zap.Error(err))
		return 0, err
	}
	timer.Stop(monitoring.ResultOK)
	return handle, nil
}

func (m *Multiplexer) create(ctx context.Context, owner Sink, width, height int) (protocol.Handle, error) {
	created := m.pool.Created()
	prov, err := m.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	if m.pool.Created() > created && m.metrics != nil {
		m.metrics.IncProvidersBuilt()
	}

	w := &wrapper{
		handle:        m.registry.Next(),
		provider:      prov,
		owner:         owner,
		dirtyRectOnly: true,
	}
	w.unsubscribe = prov.Subscribe(m.listener(w))
	prov.SetFrameRate(m.cfg.FrameRate)
	prov.Resize(width, height)
	prov.StartPainting()
	m.registry.put(w)

	if m.metrics != nil {
		m.metrics.IncSurfacesCreated()
	}
	m.updateGauges()
	m.logger.Debug("Surface created",
		zap.Uint64("handle", uint64(w.handle)),
		zap.Int("width", width),
		zap.Int("height", height),
	)
	return w.handle, nil
}

// Destroy tears down h and returns its provider to the pool. It reports false
// when h is not live, so repeated calls are harmless.
func (m *Multiplexer) Destroy(ctx context.Context, h protocol.Handle) bool {
	return m.withSurface(ctx, protocol.MethodDestroy, h, func(w *wrapper) bool {
		m.retire(w)
		return true
	})
}

// retire resets w's provider and releases it. Only the loop calls retire.
func (m *Multiplexer) retire(w *wrapper) {
	prov := w.provider
	prov.StopPainting()
	w.unsubscribe()

	reset := prov.LoadURL(BlankURL)
	prov.ClearHistory()
	m.registry.remove(w.handle)

	if reset != nil {
		m.logger.Warn("Discarding provider that failed to reset",
			zap.Uint64("handle", uint64(w.handle)),
			zap.Error(reset),
		)
		_ = prov.Close()
	} else if err := m.pool.Release(prov); err != nil {
		m.logger.Warn("Failed to close surplus provider", zap.Error(err))
	}
	m.updateGauges()
	m.logger.Debug("Surface destroyed", zap.Uint64("handle", uint64(w.handle)))
}

// DestroyOwnedBy destroys every surface owned by owner and returns how many
// there were.
func (m *Multiplexer) DestroyOwnedBy(ctx context.Context, owner Sink) int {
	if owner == nil {
		return 0
	}
	n := 0
	_ = m.do(ctx, func() {
		for _, h := range m.registry.ownedBy(owner) {
			m.retire(m.registry.get(h))
			n++
		}
	})
	if n > 0 {
		m.logger.Info("Destroyed surfaces of departed owner", zap.Int("count", n))
	}
	return n
}

// Navigate starts loading target in h. Local targets are resolved against
// the resource root and may not escape it; remote targets must be absolute
// URLs. The first navigation of a surface clears its history.
func (m *Multiplexer) Navigate(ctx context.Context, h protocol.Handle, target string, isLocal bool) bool {
	return m.withSurface(ctx, protocol.MethodNavigate, h, func(w *wrapper) bool {
		var err error
		if isLocal {
			path, ok := m.resolveLocal(target)
			if !ok {
				m.logger.Debug("Rejected local target", zap.String("target", target))
				return false
			}
			err = w.provider.LoadFile(path)
		} else {
			if !isAbsoluteURL(target) {
				m.logger.Debug("Rejected remote target", zap.String("target", target))
				return false
			}
			err = w.provider.LoadURL(target)
		}
		if err != nil {
			m.logger.Warn("Navigation failed",
				zap.Uint64("handle", uint64(h)),
				zap.String("target", target),
				zap.Error(err),
			)
			return false
		}
		if !w.navigated {
			w.provider.ClearHistory()
			w.navigated = true
		}
		return true
	})
}

func (m *Multiplexer) resolveLocal(target string) (string, bool) {
	root, err := filepath.Abs(m.cfg.ResourceRoot)
	if err != nil {
		return "", false
	}
	path := filepath.Join(root, filepath.FromSlash(target))
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if !resources.Allowed(m.cfg.AllowLocal, rel) {
		return "", false
	}
	return path, true
}

func isAbsoluteURL(target string) bool {
	u, err := url.Parse(target)
	return err == nil && u.Scheme != "" && (u.Host != "" || u.Opaque != "" || u.Scheme == "about" || u.Scheme == "data")
}

// SendMouseEvent injects ev into h.
func (m *Multiplexer) SendMouseEvent(ctx context.Context, h protocol.Handle, ev protocol.MouseEvent) bool {
	if !ev.Kind.Valid() || !ev.Button.Valid() {
		return false
	}
	return m.withSurface(ctx, protocol.MethodSendMouseEvent, h, func(w *wrapper) bool {
		w.provider.SendMouseEvent(ev)
		return true
	})
}

// SendKeyboardEvent injects ev into h.
func (m *Multiplexer) SendKeyboardEvent(ctx context.Context, h protocol.Handle, ev protocol.KeyboardEvent) bool {
	if !ev.Kind.Valid() {
		return false
	}
	return m.withSurface(ctx, protocol.MethodSendKeyboardEvent, h, func(w *wrapper) bool {
		w.provider.SendKeyboardEvent(ev)
		return true
	})
}

// SetFocus gives or takes input focus from h.
func (m *Multiplexer) SetFocus(ctx context.Context, h protocol.Handle, flag bool) bool {
	return m.withSurface(ctx, protocol.MethodSetFocus, h, func(w *wrapper) bool {
		w.provider.Focus(flag)
		return true
	})
}

// URL returns the current URL of h; ok is false when h is not live.
func (m *Multiplexer) URL(ctx context.Context, h protocol.Handle) (u string, ok bool) {
	ok = m.withSurface(ctx, protocol.MethodGetURL, h, func(w *wrapper) bool {
		u = w.provider.URL()
		return true
	})
	return u, ok
}

// Title returns the current title of h; ok is false when h is not live.
func (m *Multiplexer) Title(ctx context.Context, h protocol.Handle) (title string, ok bool) {
	ok = m.withSurface(ctx, protocol.MethodGetTitle, h, func(w *wrapper) bool {
		title = w.provider.Title()
		return true
	})
	return title, ok
}

func (m *Multiplexer) HistoryGoBack(ctx context.Context, h protocol.Handle) bool {
	return m.withSurface(ctx, protocol.MethodHistoryGoBack, h, func(w *wrapper) bool {
		w.provider.GoBack()
		return true
	})
}

func (m *Multiplexer) HistoryGoForward(ctx context.Context, h protocol.Handle) bool {
	return m.withSurface(ctx, protocol.MethodHistoryGoForward, h, func(w *wrapper) bool {
		w.provider.GoForward()
		return true
	})
}

// HistoryCanGoBack reports false both for an unknown handle and for a
// surface at the start of its history.
func (m *Multiplexer) HistoryCanGoBack(ctx context.Context, h protocol.Handle) bool {
	return m.withSurface(ctx, protocol.MethodHistoryCanGoBack, h, func(w *wrapper) bool {
		return w.provider.CanGoBack()
	})
}

func (m *Multiplexer) HistoryCanGoForward(ctx context.Context, h protocol.Handle) bool {
	return m.withSurface(ctx, protocol.MethodHistoryCanGoForward, h, func(w *wrapper) bool {
		return w.provider.CanGoForward()
	})
}

// SetDirtyRectOnly switches h between cropped and full-frame paint events.
func (m *Multiplexer) SetDirtyRectOnly(ctx context.Context, h protocol.Handle, dirtyOnly bool) bool {
	return m.withSurface(ctx, protocol.MethodSetPaintMode, h, func(w *wrapper) bool {
		w.dirtyRectOnly = dirtyOnly
		return true
	})
}

// Stats reports registry and pool occupancy.
func (m *Multiplexer) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := m.do(ctx, func() {
		s = Stats{
			Live:       m.registry.Len(),
			Idle:       m.pool.Len(),
			Created:    m.pool.Created(),
			LastHandle: m.registry.Last(),
		}
	})
	return s, err
}

// Close destroys every live surface, closes the pooled providers and stops
// the loop. Commands issued afterwards fail with ErrClosed.
func (m *Multiplexer) Close() error {
	m.closeOnce.Do(func() {
		m.enqueue(func() {
			for _, w := range m.registry.wrappers {
				m.retire(w)
			}
			m.closeErr = m.pool.Close()
		})
		m.tasks.Close()
	})
	<-m.stopped
	return m.closeErr
}

func (m *Multiplexer) updateGauges() {
	if m.metrics != nil {
		m.metrics.SetSurfaces(m.registry.Len(), m.pool.Len())
	}
}

// listener adapts provider callbacks for w onto the loop. Every delivery
// re-checks that w is still the live wrapper for its handle.
func (m *Multiplexer) listener(w *wrapper) Listener {
	return Listener{
		OnPaint: func(f Frame) {
			m.deliver(w, protocol.EventPaint, func() protocol.Event { return m.paintEvent(w, f) })
		},
		OnCursorChanged: func(cursor string) {
			m.deliver(w, protocol.EventCursorChanged, func() protocol.Event {
				return &protocol.CursorEvent{Handle: w.handle, Cursor: cursor}
			})
		},
		OnStartNavigation: func(u string, mainFrame bool) {
			if !mainFrame {
				return
			}
			m.deliver(w, protocol.EventStartNavigation, func() protocol.Event {
				return &protocol.NavigationEvent{Handle: w.handle, URL: u}
			})
		},
		OnTitleUpdated: func(title string, explicitlySet bool) {
			m.deliver(w, protocol.EventTitleChanged, func() protocol.Event {
				return &protocol.TitleEvent{Handle: w.handle, Title: title, ExplicitlySet: explicitlySet}
			})
		},
	}
}

func (m *Multiplexer) deliver(w *wrapper, kind protocol.EventKind, build func() protocol.Event) {
	m.enqueue(func() {
		if m.registry.get(w.handle) != w {
			m.dropped(kind, "stale")
			return
		}
		if w.owner == nil {
			m.dropped(kind, "no_owner")
			return
		}
		ev := build()
		if ev == nil {
			m.dropped(kind, "empty")
			return
		}
		w.owner.Emit(ev)
		if m.metrics != nil {
			bytes := 0
			if p, ok := ev.(*protocol.PaintEvent); ok {
				bytes = len(p.Pixels)
			}
			m.metrics.RecordEvent(string(kind), bytes)
		}
	})
}

func (m *Multiplexer) dropped(kind protocol.EventKind, reason string) {
	if m.metrics != nil {
		m.metrics.RecordDroppedEvent(string(kind), reason)
	}
}

// paintEvent converts a frame into the wire event for w's paint mode. It
// returns nil for frames with nothing to show.
func (m *Multiplexer) paintEvent(w *wrapper, f Frame) protocol.Event {
	full := image.Rect(0, 0, f.Width, f.Height)
	dirty := f.Dirty.Intersect(full)
	if dirty.Empty() || len(f.Pix) != f.Width*f.Height*pixel.BytesPerPixel {
		return nil
	}

	ev := &protocol.PaintEvent{
		Handle:      w.handle,
		FullWidth:   f.Width,
		FullHeight:  f.Height,
		DirtyX:      dirty.Min.X,
		DirtyY:      dirty.Min.Y,
		DirtyWidth:  dirty.Dx(),
		DirtyHeight: dirty.Dy(),
	}
	if w.dirtyRectOnly {
		ev.Pixels = pixel.Crop(f.Pix, f.Width, dirty)
	} else {
		ev.FullFrame = true
		ev.Pixels = f.Pix
	}
	return ev
}
