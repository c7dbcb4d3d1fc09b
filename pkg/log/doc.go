// Package log provides structured motion-event logging for beamctl.
//
// This package defines the Logger interface and Event types for capturing
// positioner activity: move requests, readback changes, completions, state
// transitions and errors. It is separate from operational logging (slog) -
// motion capture provides a complete machine-readable event trace that can
// be replayed and analysed offline.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.Logger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.Logger, _ = log.NewFileLogger("/var/log/beamctl/axes.blog")
//
//	// Both: use MultiLogger
//	cfg.Logger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files use CBOR encoding with .blog extension. The Reader type streams
// events back out of a capture file, optionally filtered by axis, category
// or time range.
package log
