// Package logging provides the logging conventions shared across the
// repository engine.
//
// Design principles, carried over from the style this module was built
// in the image of:
//   - Logging is dependency-injected, never global.
//   - Each component scopes its own logger once at construction time.
//   - If no logger is provided, a discard logger is used.
//   - Logging is sparse: lifecycle boundaries (open, commit, rollback,
//     clean, lock acquire/release) are logged; per-chunk and per-byte
//     hot paths are not.
package logging

import (
	"context"
	"log/slog"
)

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that discards all output.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns logger if non-nil, otherwise a discard logger. This is
// the standard pattern for an optional *slog.Logger constructor field:
//
//	func New(logger *slog.Logger) *Thing {
//	    logger = logging.Default(logger)
//	    return &Thing{logger: logger.With("component", "thing")}
//	}
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}
