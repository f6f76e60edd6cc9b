package client

import (
	"context"
	"errors"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
)

var (
	ErrNotConnected = errors.New("not connected to surface host")
	ErrBound        = errors.New("proxy already bound to a surface")
)

// Transport carries commands to a surface host and events back.
type Transport interface {
	// Call sends method with params and decodes the result into result,
	// which may be nil.
	Call(ctx context.Context, method protocol.Method, params, result interface{}) error
	// Events returns the single event stream of the connection. It is closed
	// when the connection ends.
	Events() <-chan protocol.Event
	Close() error
}
