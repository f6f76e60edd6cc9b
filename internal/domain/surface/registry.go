package surface

import "github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"

// wrapper is the host-side record of one live surface.
type wrapper struct {
	handle        protocol.Handle
	provider      Provider
	owner         Sink
	unsubscribe   func()
	navigated     bool
	dirtyRectOnly bool
}

// Registry maps handles to live wrappers and hands out handles. Like Pool it
// is owned by the multiplexer loop.
type Registry struct {
	wrappers map[protocol.Handle]*wrapper
	last     protocol.Handle
}

// NewRegistry creates an empty registry whose first handle is 1.
func NewRegistry() *Registry {
	return &Registry{wrappers: make(map[protocol.Handle]*wrapper)}
}

// Next allocates a handle. Handles are never reused.
func (r *Registry) Next() protocol.Handle {
	r.last++
	return r.last
}

// Last returns the most recently allocated handle, or zero.
func (r *Registry) Last() protocol.Handle {
	return r.last
}

func (r *Registry) get(h protocol.Handle) *wrapper {
	return r.wrappers[h]
}

func (r *Registry) put(w *wrapper) {
	r.wrappers[w.handle] = w
}

func (r *Registry) remove(h protocol.Handle) {
	delete(r.wrappers, h)
}

// Len returns the number of live surfaces.
func (r *Registry) Len() int {
	return len(r.wrappers)
}

// ownedBy lists the handles whose owner is s.
func (r *Registry) ownedBy(s Sink) []protocol.Handle {
	var handles []protocol.Handle
	for h, w := range r.wrappers {
		if w.owner == s {
			handles = append(handles, h)
		}
	}
	return handles
}
