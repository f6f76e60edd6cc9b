package grpc

import (
	"bytes"

	"google.golang.org/grpc/encoding"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
)

// codecName is the content-subtype both ends negotiate.
const codecName = "json"

// jsonCodec carries protocol envelopes as JSON so every transport shares one
// wire schema. Paint frames skip JSON and travel as raw binary frames, the
// same bytes the websocket transport sends.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	if msg, ok := v.(*protocol.Message); ok && msg.Frame != nil {
		return msg.Frame, nil
	}
	return protocol.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if msg, ok := v.(*protocol.Message); ok && protocol.IsPaintFrame(data) {
		// grpc recycles data once Unmarshal returns
		*msg = protocol.Message{
			Type:  protocol.TypeEvent,
			Event: protocol.EventPaint,
			Frame: bytes.Clone(data),
		}
		return nil
	}
	return protocol.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
