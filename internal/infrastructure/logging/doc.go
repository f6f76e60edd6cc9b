// Package logging provides structured logging using uber/zap.
//
// Production mode writes sampled JSON; development mode writes colored
// console output at debug level. Components take a *zap.Logger obtained from
// Logger.Component and log with typed fields such as the surface handle.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	mux := surface.NewMultiplexer(cfg, factory, logger.Component("surface"))
//	logger.Info("Server starting", zap.String("addr", addr))
package logging
