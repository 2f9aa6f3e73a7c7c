package model

import (
	"errors"
	"time"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyInvalidated = errors.New("case already invalidated")
	ErrPersistence        = errors.New("persistence error")
	ErrHandler            = errors.New("task handler error")
	ErrExecutor           = errors.New("action executor error")
)

// Outcome is what UI-facing callers need to pick a message without inspecting errors.
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeAlreadyDone: someone else already performed the operation.
	OutcomeAlreadyDone
	// OutcomeRejected: caller-side misuse, retrying will not help.
	OutcomeRejected
	// OutcomeFailed: infrastructure failure, may succeed later.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeAlreadyDone:
		return "already_done"
	case OutcomeRejected:
		return "rejected"
	default:
		return "failed"
	}
}

// Classify maps an error from the ledger or scheduler onto an Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrAlreadyInvalidated):
		return OutcomeAlreadyDone
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

// Clock is injected wherever "now" matters so tests can pin it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
