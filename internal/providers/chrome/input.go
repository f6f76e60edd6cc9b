package chrome

import (
	"github.com/chromedp/cdproto/input"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
)

var buttons = map[protocol.Button]input.MouseButton{
	protocol.ButtonLeft:   input.Left,
	protocol.ButtonMiddle: input.Middle,
	protocol.ButtonRight:  input.Right,
}

// modifiers folds the keyboard modifiers into the CDP bit mask; button and
// lock state have no CDP equivalent and are dropped.
func modifiers(mods []protocol.Modifier) input.Modifier {
	var m input.Modifier
	for _, mod := range mods {
		switch mod {
		case protocol.ModAlt:
			m |= input.ModifierAlt
		case protocol.ModControl:
			m |= input.ModifierCtrl
		case protocol.ModMeta:
			m |= input.ModifierMeta
		case protocol.ModShift:
			m |= input.ModifierShift
		}
	}
	return m
}

// mouseParams translates ev into the DispatchMouseEvent calls that replay
// it. A context menu request is a right click.
func mouseParams(ev protocol.MouseEvent) []*input.DispatchMouseEventParams {
	x, y := float64(ev.X), float64(ev.Y)
	mods := modifiers(ev.Modifiers)
	clicks := int64(max(ev.ClickCount, 1))

	switch ev.Kind {
	case protocol.MouseDown, protocol.MouseUp:
		typ := input.MousePressed
		if ev.Kind == protocol.MouseUp {
			typ = input.MouseReleased
		}
		return []*input.DispatchMouseEventParams{
			input.DispatchMouseEvent(typ, x, y).
				WithButton(buttons[ev.Button]).
				WithClickCount(clicks).
				WithModifiers(mods),
		}
	case protocol.MouseContextMenu:
		return []*input.DispatchMouseEventParams{
			input.DispatchMouseEvent(input.MousePressed, x, y).WithButton(input.Right).WithClickCount(1).WithModifiers(mods),
			input.DispatchMouseEvent(input.MouseReleased, x, y).WithButton(input.Right).WithClickCount(1).WithModifiers(mods),
		}
	case protocol.MouseWheel:
		// positive deltas scroll up and left on the wire, down and right in CDP
		return []*input.DispatchMouseEventParams{
			input.DispatchMouseEvent(input.MouseWheel, x, y).
				WithDeltaX(-ev.WheelDeltaX).
				WithDeltaY(-ev.WheelDeltaY).
				WithModifiers(mods),
		}
	default:
		return []*input.DispatchMouseEventParams{
			input.DispatchMouseEvent(input.MouseMoved, x, y).WithModifiers(mods),
		}
	}
}

// keyParams translates ev into a DispatchKeyEvent call.
func keyParams(ev protocol.KeyboardEvent) *input.DispatchKeyEventParams {
	mods := modifiers(ev.Modifiers)
	switch ev.Kind {
	case protocol.KeyChar:
		return input.DispatchKeyEvent(input.KeyChar).WithText(ev.KeyCode).WithModifiers(mods)
	case protocol.KeyUp:
		return input.DispatchKeyEvent(input.KeyUp).WithKey(ev.KeyCode).WithModifiers(mods)
	case protocol.KeyRawDown:
		return input.DispatchKeyEvent(input.KeyRawDown).WithKey(ev.KeyCode).WithModifiers(mods)
	default:
		return input.DispatchKeyEvent(input.KeyDown).WithKey(ev.KeyCode).WithModifiers(mods)
	}
}

// everyNthFrame maps a target frame rate onto the screencast's frame skip,
// assuming a 60Hz compositor.
func everyNthFrame(fps int) int64 {
	if fps <= 0 || fps >= 60 {
		return 1
	}
	return int64((60 + fps - 1) / fps)
}
