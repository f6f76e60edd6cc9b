// Package chrome implements surface.Provider on top of a real Chrome, driven
// over the DevTools protocol with chromedp.
//
// One Browser is launched (or attached to) per host and each provider is a
// tab in it. Frames arrive through Page.startScreencast, are decoded to BGRA
// and diffed against the previous frame. Input is replayed with
// Input.dispatchMouseEvent and Input.dispatchKeyEvent.
package chrome
