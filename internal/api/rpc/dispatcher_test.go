package rpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface/surfacetest"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
)

func newDispatcher(t *testing.T) (*Dispatcher, func() []*surfacetest.Provider) {
	t.Helper()
	factory, built := surfacetest.Factory()
	mux := surface.NewMultiplexer(surface.DefaultConfig(), factory, nil)
	t.Cleanup(func() { _ = mux.Close() })
	return NewDispatcher(mux, nil), built
}

func request(t *testing.T, method protocol.Method, params interface{}) protocol.Message {
	t.Helper()
	msg, err := protocol.NewRequest("req-1", method, params)
	require.NoError(t, err)
	return msg
}

func TestDispatcherCreateAndQuery(t *testing.T) {
	ctx := context.Background()
	d, _ := newDispatcher(t)
	sink := surfacetest.NewSink()

	resp := d.Handle(ctx, sink, request(t, protocol.MethodCreate, protocol.CreateParams{Width: 320, Height: 200}))
	require.Empty(t, resp.Error)
	assert.Equal(t, "req-1", resp.ID)
	assert.Equal(t, protocol.TypeResponse, resp.Type)
	assert.JSONEq(t, "1", string(resp.Result))

	resp = d.Handle(ctx, sink, request(t, protocol.MethodNavigate, protocol.NavigateParams{Handle: 1, Target: "https://example.com/"}))
	assert.JSONEq(t, "true", string(resp.Result))

	resp = d.Handle(ctx, sink, request(t, protocol.MethodGetURL, protocol.HandleParams{Handle: 1}))
	assert.JSONEq(t, `"https://example.com/"`, string(resp.Result))

	resp = d.Handle(ctx, sink, request(t, protocol.MethodGetTitle, protocol.HandleParams{Handle: 42}))
	assert.JSONEq(t, "null", string(resp.Result))
}

func TestDispatcherSoftFailures(t *testing.T) {
	ctx := context.Background()
	d, built := newDispatcher(t)
	sink := surfacetest.NewSink()
	d.Handle(ctx, sink, request(t, protocol.MethodCreate, protocol.CreateParams{Width: 10, Height: 10}))

	tests := []struct {
		name   string
		method protocol.Method
		params string
		want   string
	}{
		{"bad button", protocol.MethodSendMouseEvent, `{"handle":1,"kind":"mouseDown","button":5}`, "false"},
		{"unknown mouse kind", protocol.MethodSendMouseEvent, `{"handle":1,"kind":"tap"}`, "false"},
		{"unknown modifier", protocol.MethodSendKeyboardEvent, `{"handle":1,"kind":"keyDown","modifiers":["hyper"]}`, "false"},
		{"wrong param type", protocol.MethodSetFocus, `{"handle":"one","flag":true}`, "false"},
		{"missing params", protocol.MethodDestroy, ``, "false"},
		{"malformed getUrl", protocol.MethodGetURL, `[]`, "null"},
		{"stale handle", protocol.MethodHistoryCanGoBack, `{"handle":7}`, "false"},
		{"valid mouse", protocol.MethodSendMouseEvent, `{"handle":1,"kind":"mouseWheel","wheelDeltaY":-3}`, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := protocol.Message{Type: protocol.TypeRequest, ID: "x", Method: tt.method}
			if tt.params != "" {
				req.Params = json.RawMessage(tt.params)
			}
			resp := d.Handle(ctx, sink, req)
			assert.Empty(t, resp.Error)
			assert.JSONEq(t, tt.want, string(resp.Result))
		})
	}

	st := built()[0].State()
	require.Len(t, st.MouseEvents, 1)
	assert.Equal(t, -3.0, st.MouseEvents[0].WheelDeltaY)
}

func TestDispatcherErrors(t *testing.T) {
	ctx := context.Background()
	d, _ := newDispatcher(t)

	resp := d.Handle(ctx, nil, protocol.Message{Type: protocol.TypeRequest, ID: "1", Method: "resize"})
	assert.Contains(t, resp.Error, "unknown method")
	assert.Empty(t, resp.Result)

	resp = d.Handle(ctx, nil, request(t, protocol.MethodCreate, protocol.CreateParams{Width: -1, Height: 10}))
	assert.Contains(t, resp.Error, surface.ErrInvalidSize.Error())

	resp = d.Handle(ctx, nil, request(t, protocol.MethodCreate, protocol.CreateParams{Width: 1 << 30, Height: 1 << 30}))
	assert.Contains(t, resp.Error, surface.ErrInvalidSize.Error())
	assert.Empty(t, resp.Result)
}

func TestLocalTransport(t *testing.T) {
	ctx := context.Background()
	d, built := newDispatcher(t)
	tr := NewLocalTransport(d)

	var h protocol.Handle
	require.NoError(t, tr.Call(ctx, protocol.MethodCreate, protocol.CreateParams{Width: 10, Height: 10}, &h))
	assert.Equal(t, protocol.Handle(1), h)

	built()[0].SetTitle("Hello", false)
	select {
	case ev := <-tr.Events():
		assert.Equal(t, &protocol.TitleEvent{Handle: h, Title: "Hello"}, ev)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

	err := tr.Call(ctx, "resize", protocol.HandleParams{Handle: h}, nil)
	var remote *protocol.RemoteError
	assert.ErrorAs(t, err, &remote)

	require.NoError(t, tr.Close())
	assert.False(t, built()[0].State().Painting, "closing the transport destroys its surfaces")
	assert.ErrorIs(t, tr.Call(ctx, protocol.MethodDestroy, protocol.HandleParams{Handle: h}, nil), ErrTransportClosed)

	_, open := <-tr.Events()
	assert.False(t, open)
}
