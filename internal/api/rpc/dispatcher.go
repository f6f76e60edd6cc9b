// Package rpc decodes transport-neutral request envelopes, runs them against
// a surface.Multiplexer and encodes the responses.
package rpc

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
)

// Dispatcher maps request envelopes onto multiplexer commands.
type Dispatcher struct {
	mux    *surface.Multiplexer
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher for mux.
func NewDispatcher(mux *surface.Multiplexer, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{mux: mux, logger: logger}
}

// Multiplexer returns the multiplexer commands are dispatched to.
func (d *Dispatcher) Multiplexer() *surface.Multiplexer {
	return d.mux
}

// Handle runs one request on behalf of owner and returns its response.
// Malformed params fail softly with the method's negative result; only an
// unknown method or a failed create produce an error response.
func (d *Dispatcher) Handle(ctx context.Context, owner surface.Sink, req protocol.Message) protocol.Message {
	switch req.Method {
	case protocol.MethodCreate:
		var p protocol.CreateParams
		if err := req.DecodeParams(&p); err != nil {
			return protocol.NewError(req.ID, err)
		}
		h, err := d.mux.Create(ctx, owner, p.Width, p.Height)
		if err != nil {
			return protocol.NewError(req.ID, err)
		}
		return protocol.NewResult(req.ID, h)

	case protocol.MethodDestroy:
		return d.withHandle(req, func(h protocol.Handle) interface{} {
			return d.mux.Destroy(ctx, h)
		})

	case protocol.MethodNavigate:
		var p protocol.NavigateParams
		if !d.decode(req, &p) {
			return protocol.NewResult(req.ID, false)
		}
		return protocol.NewResult(req.ID, d.mux.Navigate(ctx, p.Handle, p.Target, p.IsLocal))

	case protocol.MethodSendMouseEvent:
		var p protocol.MouseEventParams
		if !d.decode(req, &p) {
			return protocol.NewResult(req.ID, false)
		}
		ev, err := p.MouseEvent()
		if err != nil {
			d.logger.Debug("Rejected mouse event", zap.Uint64("handle", uint64(p.Handle)), zap.Error(err))
			return protocol.NewResult(req.ID, false)
		}
		return protocol.NewResult(req.ID, d.mux.SendMouseEvent(ctx, p.Handle, ev))

	case protocol.MethodSendKeyboardEvent:
		var p protocol.KeyboardEventParams
		if !d.decode(req, &p) {
			return protocol.NewResult(req.ID, false)
		}
		ev, err := p.KeyboardEvent()
		if err != nil {
			d.logger.Debug("Rejected keyboard event", zap.Uint64("handle", uint64(p.Handle)), zap.Error(err))
			return protocol.NewResult(req.ID, false)
		}
		return protocol.NewResult(req.ID, d.mux.SendKeyboardEvent(ctx, p.Handle, ev))

	case protocol.MethodSetFocus:
		var p protocol.FocusParams
		if !d.decode(req, &p) {
			return protocol.NewResult(req.ID, false)
		}
		return protocol.NewResult(req.ID, d.mux.SetFocus(ctx, p.Handle, p.Flag))

	case protocol.MethodSetPaintMode:
		var p protocol.PaintModeParams
		if !d.decode(req, &p) {
			return protocol.NewResult(req.ID, false)
		}
		return protocol.NewResult(req.ID, d.mux.SetDirtyRectOnly(ctx, p.Handle, p.DirtyRectOnly))

	case protocol.MethodGetURL:
		return d.withNullable(req, func(h protocol.Handle) (string, bool) {
			return d.mux.URL(ctx, h)
		})

	case protocol.MethodGetTitle:
		return d.withNullable(req, func(h protocol.Handle) (string, bool) {
			return d.mux.Title(ctx, h)
		})

	case protocol.MethodHistoryGoBack:
		return d.withHandle(req, func(h protocol.Handle) interface{} {
			return d.mux.HistoryGoBack(ctx, h)
		})

	case protocol.MethodHistoryGoForward:
		return d.withHandle(req, func(h protocol.Handle) interface{} {
			return d.mux.HistoryGoForward(ctx, h)
		})

	case protocol.MethodHistoryCanGoBack:
		return d.withHandle(req, func(h protocol.Handle) interface{} {
			return d.mux.HistoryCanGoBack(ctx, h)
		})

	case protocol.MethodHistoryCanGoForward:
		return d.withHandle(req, func(h protocol.Handle) interface{} {
			return d.mux.HistoryCanGoForward(ctx, h)
		})

	default:
		d.logger.Debug("Unknown method", zap.String("method", string(req.Method)))
		return protocol.NewError(req.ID, fmt.Errorf("%w: %q", protocol.ErrUnknownMethod, req.Method))
	}
}

func (d *Dispatcher) decode(req protocol.Message, v interface{}) bool {
	if err := req.DecodeParams(v); err != nil {
		d.logger.Debug("Malformed params", zap.String("method", string(req.Method)), zap.Error(err))
		return false
	}
	return true
}

func (d *Dispatcher) withHandle(req protocol.Message, fn func(h protocol.Handle) interface{}) protocol.Message {
	var p protocol.HandleParams
	if !d.decode(req, &p) {
		return protocol.NewResult(req.ID, false)
	}
	return protocol.NewResult(req.ID, fn(p.Handle))
}

// withNullable encodes a missing value as JSON null.
func (d *Dispatcher) withNullable(req protocol.Message, fn func(h protocol.Handle) (string, bool)) protocol.Message {
	var p protocol.HandleParams
	if !d.decode(req, &p) {
		return protocol.NewResult(req.ID, nil)
	}
	v, ok := fn(p.Handle)
	if !ok {
		return protocol.NewResult(req.ID, nil)
	}
	return protocol.NewResult(req.ID, v)
}
