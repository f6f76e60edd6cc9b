package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
)

// Handle identifies one logical surface for its active lifetime.
type Handle uint64

// String renders the handle for logs.
func (h Handle) String() string { return strconv.FormatUint(uint64(h), 10) }

// Method names a host command.
type Method string

const (
	MethodCreate              Method = "create"
	MethodDestroy             Method = "destroy"
	MethodNavigate            Method = "navigate"
	MethodSendMouseEvent      Method = "sendMouseEvent"
	MethodSendKeyboardEvent   Method = "sendKeyboardEvent"
	MethodSetFocus            Method = "setFocus"
	MethodGetURL              Method = "getUrl"
	MethodGetTitle            Method = "getTitle"
	MethodHistoryGoBack       Method = "historyGoBack"
	MethodHistoryGoForward    Method = "historyGoForward"
	MethodHistoryCanGoBack    Method = "historyCanGoBack"
	MethodHistoryCanGoForward Method = "historyCanGoForward"
	MethodSetPaintMode        Method = "setPaintMode"
)

// Methods lists every command the host understands.
var Methods = []Method{
	MethodCreate, MethodDestroy, MethodNavigate, MethodSendMouseEvent,
	MethodSendKeyboardEvent, MethodSetFocus, MethodGetURL, MethodGetTitle,
	MethodHistoryGoBack, MethodHistoryGoForward, MethodHistoryCanGoBack,
	MethodHistoryCanGoForward, MethodSetPaintMode,
}

// MessageType discriminates wire envelopes.
type MessageType string

const (
	TypeHello    MessageType = "hello"
	TypeRequest  MessageType = "request"
	TypeResponse MessageType = "response"
	TypeEvent    MessageType = "event"
)

var (
	ErrUnknownMethod = errors.New("unknown method")
	ErrUnknownEvent  = errors.New("unknown event")
	ErrBadParams     = errors.New("malformed params")
)

// Message is the JSON envelope used by every text transport.
type Message struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  Method          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Event   EventKind       `json:"event,omitempty"`
	Handle  Handle          `json:"handle,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Conn    string          `json:"conn,omitempty"`
	// Frame holds a binary paint frame on transports that carry one raw.
	Frame []byte `json:"-"`
}

// Size estimates the encoded size of m in bytes.
func (m *Message) Size() int {
	if m.Frame != nil {
		return len(m.Frame)
	}
	return len(m.Params) + len(m.Result) + len(m.Payload) + len(m.Error) + 256
}

// Marshal encodes v with the wire JSON configuration.
func Marshal(v interface{}) ([]byte, error) {
	return sonic.ConfigStd.Marshal(v)
}

// Unmarshal decodes data with the wire JSON configuration.
func Unmarshal(data []byte, v interface{}) error {
	return sonic.ConfigStd.Unmarshal(data, v)
}

// NewRequest builds a request envelope.
func NewRequest(id string, method Method, params interface{}) (Message, error) {
	raw, err := Marshal(params)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s params: %w", method, err)
	}
	return Message{Type: TypeRequest, ID: id, Method: method, Params: raw}, nil
}

// NewResult builds a successful response envelope.
func NewResult(id string, result interface{}) Message {
	raw, err := Marshal(result)
	if err != nil {
		return NewError(id, err)
	}
	return Message{Type: TypeResponse, ID: id, Result: raw}
}

// NewError builds a failed response envelope.
func NewError(id string, err error) Message {
	return Message{Type: TypeResponse, ID: id, Error: err.Error()}
}

// DecodeParams unmarshals request params into v.
func (m Message) DecodeParams(v interface{}) error {
	if len(m.Params) == 0 {
		return fmt.Errorf("%w: %s has no params", ErrBadParams, m.Method)
	}
	if err := Unmarshal(m.Params, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadParams, err)
	}
	return nil
}

// Command params

type CreateParams struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type HandleParams struct {
	Handle Handle `json:"handle"`
}

type NavigateParams struct {
	Handle  Handle `json:"handle"`
	Target  string `json:"target"`
	IsLocal bool   `json:"isLocal"`
}

type MouseEventParams struct {
	Handle      Handle    `json:"handle"`
	Kind        MouseKind `json:"kind"`
	X           int       `json:"x"`
	Y           int       `json:"y"`
	Button      int       `json:"button"`
	Modifiers   []string  `json:"modifiers,omitempty"`
	WheelDeltaX float64   `json:"wheelDeltaX,omitempty"`
	WheelDeltaY float64   `json:"wheelDeltaY,omitempty"`
}

type KeyboardEventParams struct {
	Handle    Handle   `json:"handle"`
	Kind      KeyKind  `json:"kind"`
	KeyCode   string   `json:"keyCode"`
	Modifiers []string `json:"modifiers,omitempty"`
}

type FocusParams struct {
	Handle Handle `json:"handle"`
	Flag   bool   `json:"flag"`
}

type PaintModeParams struct {
	Handle        Handle `json:"handle"`
	DirtyRectOnly bool   `json:"dirtyRectOnly"`
}

// MouseEvent validates the params and converts them to a MouseEvent.
func (p MouseEventParams) MouseEvent() (MouseEvent, error) {
	if !p.Kind.Valid() {
		return MouseEvent{}, fmt.Errorf("%w: mouse kind %q", ErrInvalidKind, p.Kind)
	}
	button := Button(p.Button)
	if !button.Valid() {
		return MouseEvent{}, fmt.Errorf("%w: %d", ErrInvalidButton, p.Button)
	}
	mods, err := ParseModifiers(p.Modifiers)
	if err != nil {
		return MouseEvent{}, err
	}
	ev := MouseEvent{
		Kind:       p.Kind,
		X:          p.X,
		Y:          p.Y,
		Button:     button,
		Modifiers:  mods,
		ClickCount: 1,
	}
	if p.Kind == MouseWheel {
		ev.WheelDeltaX = p.WheelDeltaX
		ev.WheelDeltaY = p.WheelDeltaY
	}
	return ev, nil
}

// KeyboardEvent validates the params and converts them to a KeyboardEvent.
func (p KeyboardEventParams) KeyboardEvent() (KeyboardEvent, error) {
	if !p.Kind.Valid() {
		return KeyboardEvent{}, fmt.Errorf("%w: key kind %q", ErrInvalidKind, p.Kind)
	}
	mods, err := ParseModifiers(p.Modifiers)
	if err != nil {
		return KeyboardEvent{}, err
	}
	return KeyboardEvent{Kind: p.Kind, KeyCode: p.KeyCode, Modifiers: mods}, nil
}

// RemoteError is a failure reported by the host in a response envelope.
type RemoteError struct {
	Method  Method
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

// DecodeResult returns the response error, if any, or unmarshals the result
// into v. A nil v discards the result.
func (m Message) DecodeResult(method Method, v interface{}) error {
	if m.Error != "" {
		return &RemoteError{Method: method, Message: m.Error}
	}
	if v == nil || len(m.Result) == 0 {
		return nil
	}
	if err := Unmarshal(m.Result, v); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}
