package core

import (
	"time"

	"purgegame/internal/game/tuning"
)

// AccountID identifies a player or caller. Opaque to the core.
type AccountID string

// Phase is the coarse level state. Values are stable across snapshots.
type Phase uint8

const (
	StateIdle     Phase = 1 // prior-level settlement drains here
	StatePurchase Phase = 2 // purchase + airdrop + rarity rebuild
	StatePurge    Phase = 3 // consumption window, periodic jackpots
)

const (
	// TraitCount is the size of the categorical space: four quadrants of 64.
	TraitCount   = 256
	QuadrantSize = 64

	// DailyCounterCount is the counter bank layout: 8 symbol buckets,
	// 8 color buckets, 64 trait buckets.
	DailyCounterCount = 80

	// TraitTimeout is the sentinel recorded when a level ends by timeout
	// rather than extermination.
	TraitTimeout uint16 = 420

	// MaxLevel keeps level ids inside 24 bits.
	MaxLevel uint32 = 1<<24 - 1
)

// Quadrant maps a trait id to its quadrant (0..3).
func Quadrant(t uint16) uint8 { return uint8(t >> 6) }

// TicketBook is the append-only lottery ledger for one level.
type TicketBook struct {
	ByTrait [TraitCount][]AccountID
}

func (b *TicketBook) Count(trait uint16) int {
	if int(trait) >= TraitCount {
		return 0
	}
	return len(b.ByTrait[trait])
}

func (b *TicketBook) CountFor(trait uint16, account AccountID) int {
	if int(trait) >= TraitCount {
		return 0
	}
	n := 0
	for _, a := range b.ByTrait[trait] {
		if a == account {
			n++
		}
	}
	return n
}

// PlayerStats aggregates per-account activity across levels.
type PlayerStats struct {
	TotalMints  uint64
	TotalPurges uint64
	Streak      uint32
	Luckbox     uint64
	LastLevel   uint32
}

// PendingMapMint is one queued bonus mint owed to a map-jackpot winner.
type PendingMapMint struct {
	Account AccountID
	TraitID uint16
	Level   uint32
}

// PendingSettlement is the unfinished participant payout of an ended level,
// drained in FIFO slices during the following Idle state.
type PendingSettlement struct {
	Level        uint32
	Trait        uint16
	Exterminator AccountID
	PerTicketWei uint64
	Tickets      []AccountID
	Cursor       int
	RemainingWei uint64 // PerTicketWei * unpaid tickets, kept for conservation
	WagerReady   bool   // collaborator wager window fully settled
}

// AirdropState is the resumable purchase/airdrop bookkeeping for one level.
type AirdropState struct {
	Queue    []AccountID
	Owed     map[AccountID]uint32
	Assigned map[AccountID]uint32 // per-account draw cursor, never rewinds
	TokenIDs map[AccountID][]uint64
	Cursor   int // queue index of the next unfinished account
	Word     uint64
}

func newAirdropState() AirdropState {
	return AirdropState{
		Owed:     make(map[AccountID]uint32),
		Assigned: make(map[AccountID]uint32),
		TokenIDs: make(map[AccountID][]uint64),
	}
}

// GameState is the single owned state object. All mutation happens on the
// engine goroutine; sub-components receive it by exclusive reference for
// the duration of one call.
type GameState struct {
	cfg tuning.Tuning

	Level            uint32
	State            Phase
	PhaseStep        uint8 // sub-step cursor, 0..7, forward-only within a state
	LevelStart       time.Time
	JackpotCounter   uint8
	EarlyPaid        uint8 // bitmask of early thresholds already paid
	FlipFlag         bool
	LastExterminated uint16
	PriceWei         uint64

	PoolCurrent   uint64
	PoolNext      uint64
	PoolCarryover uint64
	PoolSnapshot  uint64 // previous level's terminal size, the growth target
	PendingWei    uint64 // allocated but not yet credited settlement value

	TraitPool  [TraitCount]uint32
	TraitFloor uint32
	Daily      [DailyCounterCount]uint32

	Tickets map[uint32]*TicketBook

	Airdrop       AirdropState
	RebuildCursor uint32
	MintStart     uint64
	MintCount     uint32

	MapQueue []PendingMapMint

	Pending *PendingSettlement

	Claims   map[AccountID]uint64
	Stats    map[AccountID]*PlayerStats
	Consumed map[uint64]struct{} // retired token ids; a purged token stays dead across levels

	LastAdvanceDay int64

	TotalContributed uint64
	TotalPaid        uint64
}

func NewGameState(cfg tuning.Tuning, start time.Time) *GameState {
	g := &GameState{
		cfg:              cfg,
		Level:            1,
		State:            StatePurchase,
		LevelStart:       start,
		LastExterminated: TraitTimeout,
		PriceWei:         cfg.PriceWei,
		Tickets:          make(map[uint32]*TicketBook),
		Airdrop:          newAirdropState(),
		Claims:           make(map[AccountID]uint64),
		Stats:            make(map[AccountID]*PlayerStats),
		Consumed:         make(map[uint64]struct{}),
		LastAdvanceDay:   -1,
	}
	g.TraitFloor = cfg.TraitFloor(1)
	return g
}

// Tuning returns the policy data the state was built with.
func (g *GameState) Tuning() tuning.Tuning { return g.cfg }

// Reconfigure swaps the policy data after validation. Live level economics
// are untouched; the new base price takes effect at the next recalibration
// boundary.
func (g *GameState) Reconfigure(cfg tuning.Tuning) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	g.cfg = cfg
	return nil
}

func (g *GameState) book(level uint32) *TicketBook {
	b, ok := g.Tickets[level]
	if !ok {
		b = &TicketBook{}
		g.Tickets[level] = b
	}
	return b
}

func (g *GameState) stats(account AccountID) *PlayerStats {
	s, ok := g.Stats[account]
	if !ok {
		s = &PlayerStats{}
		g.Stats[account] = s
	}
	return s
}

// credit accrues a pull-payment balance. Value stays inside the core's
// conservation envelope until claimed.
func (g *GameState) credit(account AccountID, amount uint64) {
	if amount == 0 || account == "" {
		return
	}
	g.Claims[account] += amount
}

// Claim pays out the accrued balance minus a one-unit sentinel that keeps
// future credits cheap to write. Returns the paid amount.
func (g *GameState) Claim(account AccountID) (uint64, error) {
	if account == "" {
		return 0, ErrBadRequest
	}
	bal := g.Claims[account]
	if bal <= 1 {
		return 0, ErrNothingToClaim
	}
	paid := bal - 1
	g.Claims[account] = 1
	g.TotalPaid += paid
	return paid, nil
}

// TicketCount reports the ledger length for a trait at a level without
// materializing a book.
func (g *GameState) TicketCount(level uint32, trait uint16) int {
	b, ok := g.Tickets[level]
	if !ok {
		return 0
	}
	return b.Count(trait)
}

// Claimable reports the balance an account could claim right now.
func (g *GameState) Claimable(account AccountID) uint64 {
	bal := g.Claims[account]
	if bal <= 1 {
		return 0
	}
	return bal - 1
}

// Purchase records a paid mint of qty placeholder tokens. Payment goes to
// the accumulating pool; trait assignment happens in the airdrop phase.
func (g *GameState) Purchase(tokens TokenRegistry, account AccountID, qty uint32) error {
	if account == "" || qty == 0 {
		return ErrBadRequest
	}
	if g.State != StatePurchase || g.PhaseStep > 2 {
		return ErrPhaseMismatch
	}
	pay := g.PriceWei * uint64(qty)
	startID := tokens.MintPlaceholderRange(account, qty)
	if g.MintCount == 0 && len(g.Airdrop.Queue) == 0 {
		g.MintStart = startID
	}
	g.TotalContributed += pay
	g.PoolNext += pay

	ad := &g.Airdrop
	if _, ok := ad.Owed[account]; !ok {
		ad.Queue = append(ad.Queue, account)
	}
	ad.Owed[account] += qty
	ids := ad.TokenIDs[account]
	for i := uint32(0); i < qty; i++ {
		ids = append(ids, startID+uint64(i))
	}
	ad.TokenIDs[account] = ids
	g.MintCount += qty

	st := g.stats(account)
	st.TotalMints += uint64(qty)
	st.LastLevel = g.Level
	return nil
}

// queueMapMint appends a bonus-mint obligation, bounded by tuning.
func (g *GameState) queueMapMint(e PendingMapMint) error {
	if len(g.MapQueue) >= g.cfg.MapQueueLimit {
		return ErrQueueFull
	}
	g.MapQueue = append(g.MapQueue, e)
	return nil
}

// ConservedTotal sums every place value can legally sit. For any prefix of
// calls it must equal TotalContributed.
func (g *GameState) ConservedTotal() uint64 {
	sum := g.PoolCurrent + g.PoolNext + g.PoolCarryover + g.PendingWei + g.TotalPaid
	for _, v := range g.Claims {
		sum += v
	}
	return sum
}
