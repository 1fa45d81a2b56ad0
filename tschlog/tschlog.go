// Package tschlog is the structured logging seam for the slot-operation
// core. It wraps github.com/joeycumines/logiface the way the teacher's own
// eventloop package wraps its minimal logger: a small set of named
// categories, a package-level default, and an injectable sink so callers
// can swap backends without touching call sites.
package tschlog

import (
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Category names mirror go-eventloop's "timer"/"promise"/"microtask"
// convention, adapted to this domain's sub-procedures.
const (
	CategorySlot = "slot"
	CategoryTX   = "tx"
	CategoryRX   = "rx"
	CategoryLock = "lock"
	CategorySync = "sync"
)

// Event is the concrete logiface event type this package is built around.
// Exported so a caller assembling their own logiface.Logger[*stumpy.Event]
// (for a custom writer, say) can still use Builder-returning helpers here.
type Event = stumpy.Event

// Logger wraps a *logiface.Logger[*Event], adding the category field every
// record in this codebase carries.
type Logger struct {
	base *logiface.Logger[*Event]
}

// New builds a Logger backed by stumpy's JSON writer, writing to stderr
// unless overridden via opts.
func New(opts ...logiface.Option[*Event]) *Logger {
	all := append([]logiface.Option[*Event]{
		stumpy.L.WithStumpy(),
		logiface.WithLevel[*Event](logiface.LevelInformational),
	}, opts...)
	return &Logger{base: stumpy.L.New(all...)}
}

// WithWriter overrides the destination for a Logger built with New.
func WithWriter(w *os.File) logiface.Option[*Event] {
	return stumpy.L.WithStumpy(stumpy.WithWriter(w))
}

var def = New()

// Default returns the package-level logger used when a component isn't
// given one explicitly (e.g. in tests or small simulations).
func Default() *Logger { return def }

// SetDefault replaces the package-level logger.
func SetDefault(l *Logger) { def = l }

func (l *Logger) build(level logiface.Level, category string) *logiface.Builder[*Event] {
	return l.base.Build(level).Str("cat", category)
}

// Debug starts a debug-level record tagged with category.
func (l *Logger) Debug(category string) *logiface.Builder[*Event] {
	return l.build(logiface.LevelDebug, category)
}

// Info starts an informational-level record tagged with category.
func (l *Logger) Info(category string) *logiface.Builder[*Event] {
	return l.build(logiface.LevelInformational, category)
}

// Warn starts a warning-level record tagged with category.
func (l *Logger) Warn(category string) *logiface.Builder[*Event] {
	return l.build(logiface.LevelWarning, category)
}

// Err starts an error-level record tagged with category.
func (l *Logger) Err(category string) *logiface.Builder[*Event] {
	return l.build(logiface.LevelError, category)
}
