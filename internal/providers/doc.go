// Package providers groups the surface.Provider implementations.
//
// Available Providers:
//   - chrome: a Chrome tab per surface, driven over the DevTools protocol
//   - software: a CPU renderer that needs no browser
//
// Both are handed to the multiplexer as a surface.Factory:
//
//	mux := surface.NewMultiplexer(cfg, software.NewFactory(software.DefaultOptions()), logger)
//
//	browser, err := chrome.NewBrowser(ctx, chrome.Options{Headless: true})
//	mux := surface.NewMultiplexer(cfg, browser.Factory(), logger)
package providers
