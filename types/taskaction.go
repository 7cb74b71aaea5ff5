package types

// TaskNextAction tells a service's run loop what to do after processing
// one event. It mirrors the small-int-const-with-String() shape the
// teacher uses for its interrupt signals (commitInterruptNone and
// friends in miner/worker.go). The producer and gasprice run loops do
// not use it: the producer reports (stop bool, err error) per iteration
// and the gas price controller logs tick errors and keeps running.
type TaskNextAction int

const (
	// Continue means the loop should keep running; nothing went wrong.
	Continue TaskNextAction = iota
	// ErrorContinue means a Recoverable error occurred; it was logged and
	// the loop should keep running.
	ErrorContinue
	// Stop means the loop must exit: shutdown was requested, or a Fatal
	// error occurred.
	Stop
)

func (a TaskNextAction) String() string {
	switch a {
	case Continue:
		return "continue"
	case ErrorContinue:
		return "error-continue"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// ShouldContinue reports whether the loop should process another event.
func (a TaskNextAction) ShouldContinue() bool {
	return a == Continue || a == ErrorContinue
}
