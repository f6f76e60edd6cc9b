package rpc

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/shared/queue"
)

var ErrTransportClosed = errors.New("transport closed")

// LocalTransport connects a consumer to a Dispatcher in the same process.
// Requests still travel as encoded envelopes; events are handed over as
// values. It is the owner of every surface it creates.
type LocalTransport struct {
	dispatcher *Dispatcher
	events     *queue.Queue[protocol.Event]
	out        chan protocol.Event
	done       chan struct{}
	seq        atomic.Uint64
	closed     atomic.Bool
	closeOnce  sync.Once
}

// NewLocalTransport creates a transport bound to d.
func NewLocalTransport(d *Dispatcher) *LocalTransport {
	t := &LocalTransport{
		dispatcher: d,
		events:     queue.New[protocol.Event](),
		out:        make(chan protocol.Event),
		done:       make(chan struct{}),
	}
	go t.pump()
	return t
}

func (t *LocalTransport) pump() {
	defer close(t.out)
	for {
		ev, err := t.events.Pop(context.Background())
		if err != nil {
			return
		}
		select {
		case t.out <- ev:
		case <-t.done:
			return
		}
	}
}

// Emit queues an event for the consumer.
func (t *LocalTransport) Emit(ev protocol.Event) {
	t.events.Push(ev)
}

// Call runs method on the dispatcher and decodes its result into result.
func (t *LocalTransport) Call(ctx context.Context, method protocol.Method, params, result interface{}) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	req, err := protocol.NewRequest(strconv.FormatUint(t.seq.Add(1), 10), method, params)
	if err != nil {
		return err
	}
	resp := t.dispatcher.Handle(ctx, t, req)
	return resp.DecodeResult(method, result)
}

// Events returns the event stream. It is closed by Close.
func (t *LocalTransport) Events() <-chan protocol.Event {
	return t.out
}

// Close destroys the surfaces this transport owns and ends the event stream.
func (t *LocalTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.dispatcher.Multiplexer().DestroyOwnedBy(context.Background(), t)
		close(t.done)
		t.events.Close()
	})
	return nil
}
