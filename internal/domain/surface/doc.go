/*
Package surface implements the host side of the surface protocol: a pool of
off-screen rendering providers, the registry that maps handles to live
surfaces and the Multiplexer that routes commands in and events out.

# Concurrency

A Multiplexer runs one loop goroutine. Commands and provider notifications
are queued as closures and executed there in arrival order, so the pool and
registry need no locks. Provider notifications are re-checked against the
registry when they run; a notification for a destroyed surface is dropped.

# Usage

	mux := surface.NewMultiplexer(surface.DefaultConfig(), factory, logger)
	defer mux.Close()

	h, err := mux.Create(ctx, owner, 800, 600)
	mux.Navigate(ctx, h, "https://example.com", false)
	mux.Destroy(ctx, h)
*/
package surface
