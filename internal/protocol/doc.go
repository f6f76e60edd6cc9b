// Package protocol defines the command/event schema shared by the surface host
// and its consumers.
//
// Every command addresses one surface through an opaque Handle. Handles are
// issued by the host in strictly increasing order and are never reused while
// the host process runs; zero means "unbound" or "create failed".
//
// Message Types (Consumer → Host):
//   - request: a command with method name and JSON params
//
// Message Types (Host → Consumer):
//   - hello: announces the connection ID
//   - response: result or error for one request
//   - event: cursorChanged, startNavigation, titleChanged
//   - paint: binary frame, see EncodePaint
//
// Pixel data is 4 bytes per pixel in blue, green, red, alpha order, row-major
// with a top-left origin.
package protocol
