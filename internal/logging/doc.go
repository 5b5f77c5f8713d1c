// Package logging provides a small leveled logger for the wardrobe storage
// service.
//
// Levels, lowest to highest:
//   - DEBUG: verbose diagnostics (file moves, strategy hits)
//   - INFO: lifecycle events (migration done, cleanup freed N bytes)
//   - WARN: recoverable problems (one item failed to migrate)
//   - ERROR: failed operations surfaced to a caller
//   - FATAL: startup errors that terminate the process
//
// The level comes from LOG_LEVEL, or DEBUG=true to force debug output.
// Subsystems log through a Component so every line carries its origin.
package logging
