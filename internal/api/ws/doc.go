// Package ws serves the surface protocol over WebSocket.
//
// Text frames carry JSON envelopes (hello, request, response, event). Paint
// events are sent as binary frames in the layout of protocol.EncodePaint.
// Each connection owns the surfaces it creates and they are destroyed when
// the connection closes.
package ws
