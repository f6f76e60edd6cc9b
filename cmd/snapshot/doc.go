// Package main implements snapshot, a client of the surface host that loads
// one page into a surface and saves what it paints as a PNG.
//
// The tool rebuilds the surface from its paint stream, full frames and dirty
// rectangles alike, and writes the image once the surface has gone quiet.
//
// Usage:
//
//	snapshot -out example.png https://example.com/
//	snapshot -local -grpc localhost:50071 docs/index.html
package main
