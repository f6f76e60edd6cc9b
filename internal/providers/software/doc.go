// Package software implements surface.Provider on the CPU.
//
// A page is fetched (http, https or file), sniffed and reduced to a stack of
// coloured blocks under a header band, then rasterised with gg. Inline
// scripts run in a goja VM that exposes document.title, so pages can change
// their own title. Every frame is diffed against the previous one and only
// the damaged rectangle is reported.
//
// The provider needs no browser, which makes it the default for headless
// hosts and for end-to-end tests of the transports.
package software
