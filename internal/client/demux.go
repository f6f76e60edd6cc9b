package client

import (
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
)

// maxParked bounds the events held for one handle while a create is in
// flight.
const maxParked = 64

// Demultiplexer routes the events of one transport to the proxies bound to
// their handles. All callbacks run on its single dispatch goroutine.
//
// A surface can paint before the create response that names its handle
// reaches the consumer. While creates are in flight, events for unknown
// handles are parked and replayed, in order, to the proxy that binds them.
type Demultiplexer struct {
	transport Transport
	logger    *zap.Logger

	once sync.Once
	done chan struct{}
	wake chan struct{}

	mu       sync.Mutex
	proxies  map[protocol.Handle]*Proxy
	creating int
	parked   map[protocol.Handle][]protocol.Event
	ready    []protocol.Event
}

// NewDemultiplexer creates a demultiplexer over t. Nothing is read from t
// until Initialize.
func NewDemultiplexer(t Transport, logger *zap.Logger) *Demultiplexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Demultiplexer{
		transport: t,
		logger:    logger,
		done:      make(chan struct{}),
		wake:      make(chan struct{}, 1),
		proxies:   make(map[protocol.Handle]*Proxy),
		parked:    make(map[protocol.Handle][]protocol.Event),
	}
}

// Initialize subscribes to the transport's event stream. Calls after the
// first have no effect.
func (d *Demultiplexer) Initialize() {
	d.once.Do(func() {
		go d.dispatch()
	})
}

func (d *Demultiplexer) dispatch() {
	defer close(d.done)
	events := d.transport.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				d.logger.Debug("Surface event stream ended")
				return
			}
			d.route(ev)
		case <-d.wake:
			d.route(nil)
		}
	}
}

// route delivers replayed events first, then ev, which may be nil.
func (d *Demultiplexer) route(ev protocol.Event) {
	d.mu.Lock()
	ready := d.ready
	d.ready = nil
	replay := make([]*Proxy, len(ready))
	for i, r := range ready {
		replay[i] = d.proxies[r.EventHandle()]
	}
	var p *Proxy
	if ev != nil {
		h := ev.EventHandle()
		p = d.proxies[h]
		if p == nil && d.creating > 0 && len(d.parked[h]) < maxParked {
			d.parked[h] = append(d.parked[h], ev)
		}
	}
	d.mu.Unlock()

	for i, r := range ready {
		if replay[i] != nil {
			replay[i].deliver(r)
		}
	}
	if p != nil {
		p.deliver(ev)
	}
}

// NewProxy creates an unbound proxy on this demultiplexer.
func (d *Demultiplexer) NewProxy() *Proxy {
	d.Initialize()
	return &Proxy{demux: d}
}

// Transport returns the underlying transport.
func (d *Demultiplexer) Transport() Transport {
	return d.transport
}

// Len returns the number of registered proxies.
func (d *Demultiplexer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.proxies)
}

// Done is closed once the event stream has ended.
func (d *Demultiplexer) Done() <-chan struct{} {
	return d.done
}

// Close closes the transport.
func (d *Demultiplexer) Close() error {
	return d.transport.Close()
}

func (d *Demultiplexer) beginCreate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creating++
}

// endCreate binds p to h, unless h is zero, and queues what was parked for h.
// Parked events nobody claimed are dropped once no create is in flight.
func (d *Demultiplexer) endCreate(h protocol.Handle, p *Proxy) {
	d.mu.Lock()
	d.creating--
	if h != 0 {
		d.proxies[h] = p
		if parked := d.parked[h]; len(parked) > 0 {
			d.ready = append(d.ready, parked...)
			delete(d.parked, h)
		}
	}
	if d.creating == 0 {
		clear(d.parked)
	}
	pending := len(d.ready) > 0
	d.mu.Unlock()

	if pending {
		select {
		case d.wake <- struct{}{}:
		default:
		}
	}
}

func (d *Demultiplexer) unregister(h protocol.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.proxies, h)
}
