package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModifiers(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    []Modifier
		wantErr bool
	}{
		{name: "empty", input: nil, want: nil},
		{name: "aliases normalised", input: []string{"ctrl", "cmd"}, want: []Modifier{ModControl, ModMeta}},
		{name: "duplicates collapse", input: []string{"shift", "shift", "control", "ctrl"}, want: []Modifier{ModShift, ModControl}},
		{name: "button state", input: []string{"leftButtonDown", "capsLock"}, want: []Modifier{ModLeftButtonDown, ModCapsLock}},
		{name: "unknown", input: []string{"hyper"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseModifiers(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidModifier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMouseEventParams(t *testing.T) {
	t.Run("button mapped", func(t *testing.T) {
		ev, err := MouseEventParams{Kind: MouseDown, X: 3, Y: 4, Button: 2}.MouseEvent()
		require.NoError(t, err)
		assert.Equal(t, ButtonRight, ev.Button)
		assert.Equal(t, "right", ev.Button.String())
		assert.Equal(t, 1, ev.ClickCount)
	})

	t.Run("wheel deltas only for wheel", func(t *testing.T) {
		ev, err := MouseEventParams{Kind: MouseMove, WheelDeltaY: 10}.MouseEvent()
		require.NoError(t, err)
		assert.Zero(t, ev.WheelDeltaY)

		ev, err = MouseEventParams{Kind: MouseWheel, WheelDeltaX: -1, WheelDeltaY: 10}.MouseEvent()
		require.NoError(t, err)
		assert.Equal(t, -1.0, ev.WheelDeltaX)
		assert.Equal(t, 10.0, ev.WheelDeltaY)
	})

	t.Run("out of range button", func(t *testing.T) {
		_, err := MouseEventParams{Kind: MouseDown, Button: 3}.MouseEvent()
		assert.ErrorIs(t, err, ErrInvalidButton)
		_, err = MouseEventParams{Kind: MouseDown, Button: -1}.MouseEvent()
		assert.ErrorIs(t, err, ErrInvalidButton)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := MouseEventParams{Kind: "doubleClick"}.MouseEvent()
		assert.ErrorIs(t, err, ErrInvalidKind)
	})
}

func TestKeyboardEventParams(t *testing.T) {
	ev, err := KeyboardEventParams{Kind: KeyChar, KeyCode: "a", Modifiers: []string{"shift"}}.KeyboardEvent()
	require.NoError(t, err)
	assert.Equal(t, KeyChar, ev.Kind)
	assert.True(t, HasModifier(ev.Modifiers, ModShift))

	_, err = KeyboardEventParams{Kind: "press"}.KeyboardEvent()
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestPaintFrame(t *testing.T) {
	ev := &PaintEvent{
		Handle:      42,
		FullWidth:   4,
		FullHeight:  3,
		DirtyX:      1,
		DirtyY:      1,
		DirtyWidth:  2,
		DirtyHeight: 2,
		Pixels:      make([]byte, 2*2*4),
	}
	for i := range ev.Pixels {
		ev.Pixels[i] = byte(i)
	}

	frame := EncodePaint(ev)
	assert.Len(t, frame, PaintHeaderLen+len(ev.Pixels))

	got, err := DecodePaint(frame, 0)
	require.NoError(t, err)
	assert.Equal(t, ev, got)

	_, err = DecodePaint(frame, 8)
	assert.ErrorIs(t, err, ErrPaintTooBig)

	_, err = DecodePaint(frame[:10], 0)
	assert.ErrorIs(t, err, ErrShortPaint)

	bad := append([]byte(nil), frame...)
	bad[0] = 0
	_, err = DecodePaint(bad, 0)
	assert.ErrorIs(t, err, ErrPaintMagic)

	truncated := frame[:len(frame)-4]
	_, err = DecodePaint(truncated, 0)
	assert.ErrorIs(t, err, ErrBadParams)
}

func TestPaintValidateFullFrame(t *testing.T) {
	ev := &PaintEvent{
		FullWidth: 2, FullHeight: 2,
		DirtyX: 1, DirtyY: 0, DirtyWidth: 1, DirtyHeight: 1,
		FullFrame: true,
		Pixels:    make([]byte, 16),
	}
	assert.NoError(t, ev.Validate())

	ev.DirtyWidth = 2
	assert.ErrorIs(t, ev.Validate(), ErrBadParams)
}

func TestPaintValidateBoundsGeometry(t *testing.T) {
	tests := []struct {
		name string
		ev   PaintEvent
	}{
		{name: "wrapping full frame", ev: PaintEvent{
			FullWidth: 1 << 31, FullHeight: 1 << 31, FullFrame: true,
			DirtyWidth: 1, DirtyHeight: 1,
		}},
		{name: "wide", ev: PaintEvent{
			FullWidth: MaxSurfaceDimension + 1, FullHeight: 1,
			DirtyWidth: 1, DirtyHeight: 1, Pixels: make([]byte, 4),
		}},
		{name: "negative dirty size", ev: PaintEvent{
			FullWidth: 4, FullHeight: 4,
			DirtyX: 2, DirtyY: 2, DirtyWidth: -1, DirtyHeight: -1, Pixels: make([]byte, 4),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.ev.Validate(), ErrBadParams)
		})
	}

	big := EncodePaint(&PaintEvent{FullWidth: 1, FullHeight: 1, DirtyWidth: 1, DirtyHeight: 1, Pixels: make([]byte, 4)})
	binary.LittleEndian.PutUint32(big[16:20], 1<<31)
	binary.LittleEndian.PutUint32(big[20:24], 1<<31)
	_, err := DecodePaint(big, 0)
	assert.ErrorIs(t, err, ErrBadParams)
}

func TestFrameEnvelope(t *testing.T) {
	paint := &PaintEvent{
		Handle: 9, FullWidth: 2, FullHeight: 1,
		DirtyWidth: 2, DirtyHeight: 1, FullFrame: true,
		Pixels: []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
	msg, err := EncodeFrame(paint)
	require.NoError(t, err)
	assert.Equal(t, EventPaint, msg.Event)
	assert.Equal(t, Handle(9), msg.Handle)
	assert.Empty(t, msg.Payload)
	assert.True(t, IsPaintFrame(msg.Frame))
	assert.Equal(t, PaintFrameLen(2, 1), msg.Size())

	ev, err := DecodeEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, paint, ev)

	msg, err = EncodeFrame(&CursorEvent{Handle: 9, Cursor: "pointer"})
	require.NoError(t, err)
	assert.Nil(t, msg.Frame)
	assert.NotEmpty(t, msg.Payload)
	assert.False(t, IsPaintFrame(msg.Payload))
}

func TestEventEnvelope(t *testing.T) {
	msg, err := EncodeEvent(&TitleEvent{Handle: 7, Title: "Docs", ExplicitlySet: true})
	require.NoError(t, err)
	assert.Equal(t, TypeEvent, msg.Type)
	assert.Equal(t, EventTitleChanged, msg.Event)
	assert.Equal(t, Handle(7), msg.Handle)

	ev, err := DecodeEvent(msg)
	require.NoError(t, err)
	title, ok := ev.(*TitleEvent)
	require.True(t, ok)
	assert.Equal(t, "Docs", title.Title)
	assert.True(t, title.ExplicitlySet)

	_, err = DecodeEvent(Message{Type: TypeEvent, Event: "resize"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestRequestParams(t *testing.T) {
	msg, err := NewRequest("r1", MethodNavigate, NavigateParams{Handle: 3, Target: "index.html", IsLocal: true})
	require.NoError(t, err)

	var p NavigateParams
	require.NoError(t, msg.DecodeParams(&p))
	assert.Equal(t, Handle(3), p.Handle)
	assert.True(t, p.IsLocal)

	empty := Message{Type: TypeRequest, Method: MethodDestroy}
	assert.ErrorIs(t, empty.DecodeParams(&p), ErrBadParams)
}

func TestDecodeResult(t *testing.T) {
	var ok bool
	require.NoError(t, NewResult("1", true).DecodeResult(MethodSetFocus, &ok))
	assert.True(t, ok)

	var u *string
	require.NoError(t, NewResult("2", nil).DecodeResult(MethodGetURL, &u))
	assert.Nil(t, u)

	err := NewError("3", ErrUnknownMethod).DecodeResult("resize", nil)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, Method("resize"), remote.Method)
	assert.Equal(t, "unknown method", remote.Message)
}
