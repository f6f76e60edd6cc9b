package protocol

import (
	"fmt"
	"image"
)

// EventKind names a host → consumer notification.
type EventKind string

const (
	EventPaint           EventKind = "paint"
	EventCursorChanged   EventKind = "cursorChanged"
	EventStartNavigation EventKind = "startNavigation"
	EventTitleChanged    EventKind = "titleChanged"
)

// Event is one notification tagged with the handle of the surface that
// produced it.
type Event interface {
	EventKind() EventKind
	EventHandle() Handle
}

// PaintEvent carries updated pixels. When FullFrame is false, Pixels holds
// only the DirtyWidth × DirtyHeight sub-image; otherwise it holds the whole
// FullWidth × FullHeight image and the dirty fields still name the region
// that changed.
type PaintEvent struct {
	Handle      Handle `json:"handle"`
	Pixels      []byte `json:"pixels"`
	FullWidth   int    `json:"fullWidth"`
	FullHeight  int    `json:"fullHeight"`
	DirtyX      int    `json:"dirtyX"`
	DirtyY      int    `json:"dirtyY"`
	DirtyWidth  int    `json:"dirtyWidth"`
	DirtyHeight int    `json:"dirtyHeight"`
	FullFrame   bool   `json:"fullFrame"`
}

// Dirty returns the changed region as a rectangle in surface coordinates.
func (e *PaintEvent) Dirty() image.Rectangle {
	return image.Rect(e.DirtyX, e.DirtyY, e.DirtyX+e.DirtyWidth, e.DirtyY+e.DirtyHeight)
}

// Validate checks that the pixel buffer matches the declared geometry.
func (e *PaintEvent) Validate() error {
	if e.FullWidth <= 0 || e.FullHeight <= 0 || e.FullWidth > MaxSurfaceDimension || e.FullHeight > MaxSurfaceDimension {
		return fmt.Errorf("%w: paint size %dx%d", ErrBadParams, e.FullWidth, e.FullHeight)
	}
	if e.DirtyX < 0 || e.DirtyY < 0 || e.DirtyWidth < 0 || e.DirtyHeight < 0 {
		return fmt.Errorf("%w: dirty rect %v", ErrBadParams, e.Dirty())
	}
	full := image.Rect(0, 0, e.FullWidth, e.FullHeight)
	if !e.Dirty().In(full) {
		return fmt.Errorf("%w: dirty rect %v outside %v", ErrBadParams, e.Dirty(), full)
	}
	want := e.DirtyWidth * e.DirtyHeight * 4
	if e.FullFrame {
		want = e.FullWidth * e.FullHeight * 4
	}
	if len(e.Pixels) != want {
		return fmt.Errorf("%w: %d pixel bytes, want %d", ErrBadParams, len(e.Pixels), want)
	}
	return nil
}

type CursorEvent struct {
	Handle Handle `json:"handle"`
	Cursor string `json:"cursor"`
}

type NavigationEvent struct {
	Handle Handle `json:"handle"`
	URL    string `json:"url"`
}

type TitleEvent struct {
	Handle        Handle `json:"handle"`
	Title         string `json:"title"`
	ExplicitlySet bool   `json:"explicitlySet"`
}

func (e *PaintEvent) EventKind() EventKind { return EventPaint }
func (e *PaintEvent) EventHandle() Handle { return e.Handle }
func (e *CursorEvent) EventKind() EventKind { return EventCursorChanged }
func (e *CursorEvent) EventHandle() Handle { return e.Handle }
func (e *NavigationEvent) EventKind() EventKind { return EventStartNavigation }
func (e *NavigationEvent) EventHandle() Handle { return e.Handle }
func (e *TitleEvent) EventKind() EventKind { return EventTitleChanged }
func (e *TitleEvent) EventHandle() Handle { return e.Handle }

// EncodeEvent wraps an event in a JSON envelope.
func EncodeEvent(ev Event) (Message, error) {
	payload, err := Marshal(ev)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s event: %w", ev.EventKind(), err)
	}
	return Message{
		Type:    TypeEvent,
		Event:   ev.EventKind(),
		Handle:  ev.EventHandle(),
		Payload: payload,
	}, nil
}

// EncodeFrame wraps an event for a transport that carries paint frames as
// raw bytes. Paint events get a binary Frame; other events are JSON.
func EncodeFrame(ev Event) (Message, error) {
	paint, ok := ev.(*PaintEvent)
	if !ok {
		return EncodeEvent(ev)
	}
	return Message{
		Type:   TypeEvent,
		Event:  EventPaint,
		Handle: paint.Handle,
		Frame:  EncodePaint(paint),
	}, nil
}

// DecodeEvent unwraps an event envelope, JSON or binary paint frame.
func DecodeEvent(msg Message) (Event, error) {
	if msg.Frame != nil {
		return DecodePaint(msg.Frame, 0)
	}
	var ev Event
	switch msg.Event {
	case EventPaint:
		ev = &PaintEvent{}
	case EventCursorChanged:
		ev = &CursorEvent{}
	case EventStartNavigation:
		ev = &NavigationEvent{}
	case EventTitleChanged:
		ev = &TitleEvent{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Event)
	}
	if err := Unmarshal(msg.Payload, ev); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", msg.Event, err)
	}
	return ev, nil
}
