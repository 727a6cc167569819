package core

import "errors"

// Not-yet-ready conditions. These leave state untouched and are expected
// to be retried once the underlying gate holds.
var (
	ErrNotReady       = errors.New("not ready")
	ErrEntropyPending = errors.New("entropy pending: not ready")
	ErrSameWindow     = errors.New("settlement window already consumed: not ready")
	ErrPhaseGate      = errors.New("phase gate unmet: not ready")
	ErrNoProgress     = errors.New("no work within budget: not ready")
)

// Invariant violations. The whole call reverts with no partial state change.
var (
	ErrBadRequest     = errors.New("invalid request")
	ErrPhaseMismatch  = errors.New("action not allowed in current phase")
	ErrNotOwner       = errors.New("token not owned by caller")
	ErrAlreadyPurged  = errors.New("token already consumed")
	ErrQueueFull      = errors.New("map mint queue is full")
	ErrQueueEmpty     = errors.New("map mint queue is empty")
	ErrMaxLevel       = errors.New("maximum level reached")
	ErrNothingToClaim = errors.New("nothing to claim")
)

// NotReady reports whether err is one of the retryable gate conditions.
func NotReady(err error) bool {
	switch {
	case errors.Is(err, ErrNotReady),
		errors.Is(err, ErrEntropyPending),
		errors.Is(err, ErrSameWindow),
		errors.Is(err, ErrPhaseGate),
		errors.Is(err, ErrNoProgress):
		return true
	}
	return false
}
