package monitor

import "context"

// Decision is the outcome of evaluating one record.
type Decision int

const (
	// Keep leaves the record unchanged.
	Keep Decision = iota
	// Trigger fires the notification and applies the policy's trigger action.
	Trigger
	// Remove drops the record without notifying.
	Remove
)

func (d Decision) String() string {
	switch d {
	case Keep:
		return "keep"
	case Trigger:
		return "trigger"
	case Remove:
		return "remove"
	default:
		return "unknown"
	}
}

// Verdict is a decision plus the message sent if it is a Trigger.
type Verdict struct {
	Decision Decision
	Message  string
}

// Policy supplies the record-specific behaviour of a Loop.
type Policy[R any] interface {
	// Name labels logs and metrics.
	Name() string
	// Key identifies a record within its owner's records.
	Key(R) string
	// Active reports whether the record is still evaluated. It is checked on
	// the snapshot and again on the current record at commit time.
	Active(R) bool
	// Evaluate queries market state for the record. A returned error is
	// transient: the record is left unchanged and retried next tick.
	Evaluate(ctx context.Context, rec R) (Verdict, error)
	// Apply returns the record after a trigger and whether it stays in the collection.
	Apply(R) (R, bool)
}
