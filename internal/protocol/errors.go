package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Not-yet-ready gates: retry later, state untouched.
	ErrEntropyPending = "E_ENTROPY_PENDING"
	ErrSameWindow     = "E_SAME_WINDOW"
	ErrPhaseGate      = "E_PHASE_GATE"
	ErrNoWork         = "E_NO_WORK"

	// Invariant violations: the call reverts with no partial state change.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrPhaseMismatch = "E_PHASE_MISMATCH"
	ErrBudgetStarved = "E_BUDGET_STARVED"
	ErrQueueFull     = "E_QUEUE_FULL"
	ErrQueueEmpty    = "E_QUEUE_EMPTY"
	ErrMaxLevel      = "E_MAX_LEVEL"
	ErrNotOwner      = "E_NOT_OWNER"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrEntropyPending:  {},
	ErrSameWindow:      {},
	ErrPhaseGate:       {},
	ErrNoWork:          {},
	ErrBadRequest:      {},
	ErrPhaseMismatch:   {},
	ErrBudgetStarved:   {},
	ErrQueueFull:       {},
	ErrQueueEmpty:      {},
	ErrMaxLevel:        {},
	ErrNotOwner:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
