// Package config loads the host configuration.
//
// Values are layered: Default, then an optional TOML or YAML file named by
// SURFACE_CONFIG_FILE, then environment variables. Command line flags in
// cmd/server are applied last.
//
// Environment Variables:
//   - PORT, HOST, SURFACE_TOKEN, CORS_ORIGINS, SHUTDOWN_TIMEOUT
//   - GRPC_ENABLED, GRPC_ADDR, GRPC_MAX_MESSAGE_BYTES
//   - SURFACE_PROVIDER (software|chrome), SURFACE_FRAME_RATE,
//     SURFACE_RESOURCE_ROOT, SURFACE_MAX_IDLE, SURFACE_OUTBOUND_LIMIT
//   - CHROME_PATH, CHROME_URL, CHROME_HEADLESS, CHROME_NO_SANDBOX
//   - SOFTWARE_FETCH_TIMEOUT, SOFTWARE_FETCH_RETRIES, SOFTWARE_SCRIPT_TIMEOUT
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
