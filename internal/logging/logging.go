// Package logging holds the logger shared by hellocube and its internal
// packages. It is silent until Set is called.
package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// discard reports every level disabled, so callers never build a record.
type discard struct{}

func (discard) Enabled(context.Context, slog.Level) bool  { return false }
func (discard) Handle(context.Context, slog.Record) error { return nil }
func (d discard) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discard) WithGroup(string) slog.Handler           { return d }

var (
	silent  = slog.New(discard{})
	current atomic.Pointer[slog.Logger]
)

// Nop returns the silent logger.
func Nop() *slog.Logger { return silent }

// Set installs l for every package. Nil restores the silent logger.
func Set(l *slog.Logger) {
	current.Store(l)
}

// Logger returns the installed logger, or the silent one.
func Logger() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	return silent
}
