// Package xlog adapts github.com/ethereum/go-ethereum/log to the small
// fixed call shape used throughout this repo, so callers never need to
// know which logging library backs it. Every other package logs through
// this one, matching the teacher's habit of calling log.Info/log.Warn/
// log.Error/log.Crit directly at the point of interest (see
// miner/worker.go, eth/backend_rollup.go).
package xlog

import "github.com/ethereum/go-ethereum/log"

// Logger is the interface every service in this repo depends on.
type Logger interface {
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	// Crit logs and then terminates the process, matching
	// go-ethereum/log.Crit's semantics. Only used for invariant
	// violations the owning service cannot recover from.
	Crit(msg string, ctx ...any)
}

type gethLogger struct {
	l log.Logger
}

// New returns a Logger tagged with the given component name, e.g.
// New("producer") or New("gasprice").
func New(component string) Logger {
	return gethLogger{l: log.New("component", component)}
}

func (g gethLogger) Debug(msg string, ctx ...any) { g.l.Debug(msg, ctx...) }
func (g gethLogger) Info(msg string, ctx ...any)  { g.l.Info(msg, ctx...) }
func (g gethLogger) Warn(msg string, ctx ...any)  { g.l.Warn(msg, ctx...) }
func (g gethLogger) Error(msg string, ctx ...any) { g.l.Error(msg, ctx...) }
func (g gethLogger) Crit(msg string, ctx ...any)  { g.l.Crit(msg, ctx...) }
