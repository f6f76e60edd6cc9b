package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidKind     = errors.New("invalid event kind")
	ErrInvalidButton   = errors.New("invalid mouse button")
	ErrInvalidModifier = errors.New("invalid modifier")
)

// MouseKind is the type of an injected mouse event.
type MouseKind string

const (
	MouseDown        MouseKind = "mouseDown"
	MouseUp          MouseKind = "mouseUp"
	MouseEnter       MouseKind = "mouseEnter"
	MouseLeave       MouseKind = "mouseLeave"
	MouseContextMenu MouseKind = "contextMenu"
	MouseWheel       MouseKind = "mouseWheel"
	MouseMove        MouseKind = "mouseMove"
)

// Valid reports whether k is a known mouse event kind.
func (k MouseKind) Valid() bool {
	switch k {
	case MouseDown, MouseUp, MouseEnter, MouseLeave, MouseContextMenu, MouseWheel, MouseMove:
		return true
	}
	return false
}

// KeyKind is the type of an injected keyboard event.
type KeyKind string

const (
	KeyRawDown KeyKind = "rawKeyDown"
	KeyDown    KeyKind = "keyDown"
	KeyUp      KeyKind = "keyUp"
	KeyChar    KeyKind = "char"
)

// Valid reports whether k is a known keyboard event kind.
func (k KeyKind) Valid() bool {
	switch k {
	case KeyRawDown, KeyDown, KeyUp, KeyChar:
		return true
	}
	return false
}

// Button is the wire index of a mouse button.
type Button int

const (
	ButtonLeft Button = iota
	ButtonMiddle
	ButtonRight
)

var buttonNames = [...]string{"left", "middle", "right"}

// Valid reports whether b is one of left, middle or right.
func (b Button) Valid() bool {
	return b >= ButtonLeft && b <= ButtonRight
}

// String returns the provider-facing name of the button.
func (b Button) String() string {
	if !b.Valid() {
		return fmt.Sprintf("button(%d)", int(b))
	}
	return buttonNames[b]
}

// Modifier is one entry of an input modifier set.
type Modifier string

const (
	ModShift            Modifier = "shift"
	ModControl          Modifier = "control"
	ModAlt              Modifier = "alt"
	ModMeta             Modifier = "meta"
	ModIsKeypad         Modifier = "isKeypad"
	ModIsAutoRepeat     Modifier = "isAutoRepeat"
	ModLeftButtonDown   Modifier = "leftButtonDown"
	ModMiddleButtonDown Modifier = "middleButtonDown"
	ModRightButtonDown  Modifier = "rightButtonDown"
	ModCapsLock         Modifier = "capsLock"
	ModNumLock          Modifier = "numLock"
	ModLeft             Modifier = "left"
	ModRight            Modifier = "right"
)

var modifierAliases = map[string]Modifier{
	"shift":            ModShift,
	"control":          ModControl,
	"ctrl":             ModControl,
	"alt":              ModAlt,
	"meta":             ModMeta,
	"command":          ModMeta,
	"cmd":              ModMeta,
	"isKeypad":         ModIsKeypad,
	"isAutoRepeat":     ModIsAutoRepeat,
	"leftButtonDown":   ModLeftButtonDown,
	"middleButtonDown": ModMiddleButtonDown,
	"rightButtonDown":  ModRightButtonDown,
	"capsLock":         ModCapsLock,
	"numLock":          ModNumLock,
	"left":             ModLeft,
	"right":            ModRight,
}

// ParseModifiers normalises a wire modifier list into a set, keeping first-seen
// order. Aliases ctrl, command and cmd are accepted.
func ParseModifiers(names []string) ([]Modifier, error) {
	if len(names) == 0 {
		return nil, nil
	}
	mods := make([]Modifier, 0, len(names))
	seen := make(map[Modifier]bool, len(names))
	for _, name := range names {
		mod, ok := modifierAliases[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidModifier, name)
		}
		if seen[mod] {
			continue
		}
		seen[mod] = true
		mods = append(mods, mod)
	}
	return mods, nil
}

// HasModifier reports whether mods contains m.
func HasModifier(mods []Modifier, m Modifier) bool {
	for _, mod := range mods {
		if mod == m {
			return true
		}
	}
	return false
}

// MouseEvent is a validated mouse input destined for a provider.
type MouseEvent struct {
	Kind        MouseKind
	X, Y        int
	Button      Button
	Modifiers   []Modifier
	ClickCount  int
	WheelDeltaX float64
	WheelDeltaY float64
}

// KeyboardEvent is a validated keyboard input destined for a provider.
type KeyboardEvent struct {
	Kind      KeyKind
	KeyCode   string
	Modifiers []Modifier
}
