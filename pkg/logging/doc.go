// Package logging provides structured logging configuration for varmock.
//
// It wraps log/slog so that every component logs with the same level, format
// and attribute conventions. Components accept a *slog.Logger through an
// option and fall back to Nop when none is provided:
//
//	log := logging.New(logging.Config{Level: logging.LevelDebug})
//	reg := mocks.NewRegistry(src, kinds, mocks.WithLogger(logging.Component(log, "mocks")))
//
// Attribute keys used across the code base are exported as constants so that
// log lines can be filtered consistently ("mock", "route", "variant", ...).
package logging
