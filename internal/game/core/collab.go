package core

// External collaborators. The settlement core owns all mutable game state;
// these interfaces only receive credit instructions or answer read-only
// queries. The real programs live outside this module.

// CoinLedger is the fungible-currency collaborator.
type CoinLedger interface {
	// CreditBonus credits secondary-currency rewards (purge bonuses,
	// liveness bonuses, milestone payouts).
	CreditBonus(account AccountID, amount uint64)
	// BurnFrom burns the per-token purge fee from the acting account.
	BurnFrom(account AccountID, amount uint64) error
	// SettleWagerWindow runs one bounded slice of the collaborator's own
	// wager accounting for the ended level. It reports ready=false while
	// more slices remain.
	SettleWagerWindow(level uint32, budget uint32, finalFlip bool, entropy uint64) (ready bool)
	// PrepareJackpotPool reports the coin pool available for coin-funded
	// jackpots (early milestones, BAF, decimator).
	PrepareJackpotPool() uint64
	// TopLeaderboardEntries returns the accounts eligible for a milestone
	// board ("flips", "burns", "mints").
	TopLeaderboardEntries(board string) []AccountID
}

// TokenRegistry is the non-fungible token/ownership collaborator.
type TokenRegistry interface {
	MintPlaceholderRange(owner AccountID, qty uint32) (startID uint64)
	OwnerOf(id uint64) (AccountID, bool)
	// AssignTraits records the airdrop's trait bundle for a placeholder id.
	// Assignments are write-once; reassigning an id is a programming error.
	AssignTraits(id uint64, traits [4]uint16)
	DecodedTraits(id uint64) ([4]uint16, bool)
	FinalizePurchaseCount()
	PurchaseCount() uint64
}

// TrophyBank is the deferred-award collaborator.
type TrophyBank interface {
	AwardDeferred(account AccountID, level uint32, kind string, payload uint64, amount uint64)
	ClearPlaceholder(level uint32, kind string)
}

// Collaborators bundles the external programs an operation may touch.
type Collaborators struct {
	Coin    CoinLedger
	Tokens  TokenRegistry
	Trophy  TrophyBank
	Entropy EntropySource
}

// EntropySource supplies one externally-sourced word per settlement window.
type EntropySource interface {
	// CurrentEntropy returns the latest fulfilled word, if any.
	CurrentEntropy() (uint64, bool)
	// RequestEntropy asks the provider for a fresh word. Safe to call while
	// a request is already pending.
	RequestEntropy()
	// EntropyLocked reports whether a request is pending.
	EntropyLocked() bool
}
