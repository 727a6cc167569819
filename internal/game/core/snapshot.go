package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"purgegame/internal/game/tuning"
)

// SnapshotVersion guards on-disk compatibility.
const SnapshotVersion = 1

// Snapshot is the complete serializable state of the settlement core.
// Everything needed to resume mid-step is here; tuning is carried by the
// host and re-injected on restore.
type Snapshot struct {
	Version int `json:"version"`

	Level            uint32    `json:"level"`
	State            Phase     `json:"state"`
	PhaseStep        uint8     `json:"phase_step"`
	LevelStart       time.Time `json:"level_start"`
	JackpotCounter   uint8     `json:"jackpot_counter"`
	EarlyPaid        uint8     `json:"early_paid"`
	FlipFlag         bool      `json:"flip_flag"`
	LastExterminated uint16    `json:"last_exterminated"`
	PriceWei         uint64    `json:"price_wei"`

	PoolCurrent   uint64 `json:"pool_current"`
	PoolNext      uint64 `json:"pool_next"`
	PoolCarryover uint64 `json:"pool_carryover"`
	PoolSnapshot  uint64 `json:"pool_snapshot"`
	PendingWei    uint64 `json:"pending_wei"`

	TraitPool  [TraitCount]uint32        `json:"trait_pool"`
	TraitFloor uint32                    `json:"trait_floor"`
	Daily      [DailyCounterCount]uint32 `json:"daily"`

	Tickets map[uint32]map[uint16][]AccountID `json:"tickets"`

	Airdrop       AirdropSnapshot `json:"airdrop"`
	RebuildCursor uint32          `json:"rebuild_cursor"`
	MintStart     uint64          `json:"mint_start"`
	MintCount     uint32          `json:"mint_count"`

	MapQueue []PendingMapMint   `json:"map_queue,omitempty"`
	Pending  *PendingSettlement `json:"pending,omitempty"`

	Claims   map[AccountID]uint64       `json:"claims"`
	Stats    map[AccountID]*PlayerStats `json:"stats"`
	Consumed []uint64                   `json:"consumed"`

	LastAdvanceDay   int64  `json:"last_advance_day"`
	TotalContributed uint64 `json:"total_contributed"`
	TotalPaid        uint64 `json:"total_paid"`
}

// AirdropSnapshot flattens the per-account airdrop maps.
type AirdropSnapshot struct {
	Queue    []AccountID            `json:"queue,omitempty"`
	Owed     map[AccountID]uint32   `json:"owed,omitempty"`
	Assigned map[AccountID]uint32   `json:"assigned,omitempty"`
	TokenIDs map[AccountID][]uint64 `json:"token_ids,omitempty"`
	Cursor   int                    `json:"cursor"`
	Word     uint64                 `json:"word"`
}

// Export copies the full state into a snapshot.
func (g *GameState) Export() *Snapshot {
	s := &Snapshot{
		Version:          SnapshotVersion,
		Level:            g.Level,
		State:            g.State,
		PhaseStep:        g.PhaseStep,
		LevelStart:       g.LevelStart.UTC(),
		JackpotCounter:   g.JackpotCounter,
		EarlyPaid:        g.EarlyPaid,
		FlipFlag:         g.FlipFlag,
		LastExterminated: g.LastExterminated,
		PriceWei:         g.PriceWei,
		PoolCurrent:      g.PoolCurrent,
		PoolNext:         g.PoolNext,
		PoolCarryover:    g.PoolCarryover,
		PoolSnapshot:     g.PoolSnapshot,
		PendingWei:       g.PendingWei,
		TraitPool:        g.TraitPool,
		TraitFloor:       g.TraitFloor,
		Daily:            g.Daily,
		RebuildCursor:    g.RebuildCursor,
		MintStart:        g.MintStart,
		MintCount:        g.MintCount,
		LastAdvanceDay:   g.LastAdvanceDay,
		TotalContributed: g.TotalContributed,
		TotalPaid:        g.TotalPaid,
		Tickets:          make(map[uint32]map[uint16][]AccountID, len(g.Tickets)),
		Claims:           make(map[AccountID]uint64, len(g.Claims)),
		Stats:            make(map[AccountID]*PlayerStats, len(g.Stats)),
	}
	for lvl, book := range g.Tickets {
		flat := make(map[uint16][]AccountID)
		for t := range book.ByTrait {
			if len(book.ByTrait[t]) > 0 {
				flat[uint16(t)] = append([]AccountID(nil), book.ByTrait[t]...)
			}
		}
		s.Tickets[lvl] = flat
	}
	s.Airdrop = AirdropSnapshot{
		Queue:    append([]AccountID(nil), g.Airdrop.Queue...),
		Owed:     copyMap(g.Airdrop.Owed),
		Assigned: copyMap(g.Airdrop.Assigned),
		TokenIDs: make(map[AccountID][]uint64, len(g.Airdrop.TokenIDs)),
		Cursor:   g.Airdrop.Cursor,
		Word:     g.Airdrop.Word,
	}
	for a, ids := range g.Airdrop.TokenIDs {
		s.Airdrop.TokenIDs[a] = append([]uint64(nil), ids...)
	}
	if len(g.MapQueue) > 0 {
		s.MapQueue = append([]PendingMapMint(nil), g.MapQueue...)
	}
	if g.Pending != nil {
		p := *g.Pending
		p.Tickets = append([]AccountID(nil), g.Pending.Tickets...)
		s.Pending = &p
	}
	for a, v := range g.Claims {
		s.Claims[a] = v
	}
	for a, st := range g.Stats {
		cp := *st
		s.Stats[a] = &cp
	}
	s.Consumed = make([]uint64, 0, len(g.Consumed))
	for id := range g.Consumed {
		s.Consumed = append(s.Consumed, id)
	}
	sort.Slice(s.Consumed, func(i, j int) bool { return s.Consumed[i] < s.Consumed[j] })
	return s
}

// Restore rebuilds a state from a snapshot under the given tuning.
func Restore(cfg tuning.Tuning, s *Snapshot) (*GameState, error) {
	if s == nil || s.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version")
	}
	g := &GameState{
		cfg:              cfg,
		Level:            s.Level,
		State:            s.State,
		PhaseStep:        s.PhaseStep,
		LevelStart:       s.LevelStart,
		JackpotCounter:   s.JackpotCounter,
		EarlyPaid:        s.EarlyPaid,
		FlipFlag:         s.FlipFlag,
		LastExterminated: s.LastExterminated,
		PriceWei:         s.PriceWei,
		PoolCurrent:      s.PoolCurrent,
		PoolNext:         s.PoolNext,
		PoolCarryover:    s.PoolCarryover,
		PoolSnapshot:     s.PoolSnapshot,
		PendingWei:       s.PendingWei,
		TraitPool:        s.TraitPool,
		TraitFloor:       s.TraitFloor,
		Daily:            s.Daily,
		RebuildCursor:    s.RebuildCursor,
		MintStart:        s.MintStart,
		MintCount:        s.MintCount,
		LastAdvanceDay:   s.LastAdvanceDay,
		TotalContributed: s.TotalContributed,
		TotalPaid:        s.TotalPaid,
		Tickets:          make(map[uint32]*TicketBook, len(s.Tickets)),
		Claims:           make(map[AccountID]uint64, len(s.Claims)),
		Stats:            make(map[AccountID]*PlayerStats, len(s.Stats)),
		Consumed:         make(map[uint64]struct{}, len(s.Consumed)),
	}
	for lvl, flat := range s.Tickets {
		book := &TicketBook{}
		for t, tix := range flat {
			if int(t) < TraitCount {
				book.ByTrait[t] = append([]AccountID(nil), tix...)
			}
		}
		g.Tickets[lvl] = book
	}
	g.Airdrop = AirdropState{
		Queue:    append([]AccountID(nil), s.Airdrop.Queue...),
		Owed:     copyMap(s.Airdrop.Owed),
		Assigned: copyMap(s.Airdrop.Assigned),
		TokenIDs: make(map[AccountID][]uint64, len(s.Airdrop.TokenIDs)),
		Cursor:   s.Airdrop.Cursor,
		Word:     s.Airdrop.Word,
	}
	if g.Airdrop.Owed == nil {
		g.Airdrop.Owed = make(map[AccountID]uint32)
	}
	if g.Airdrop.Assigned == nil {
		g.Airdrop.Assigned = make(map[AccountID]uint32)
	}
	for a, ids := range s.Airdrop.TokenIDs {
		g.Airdrop.TokenIDs[a] = append([]uint64(nil), ids...)
	}
	if len(s.MapQueue) > 0 {
		g.MapQueue = append([]PendingMapMint(nil), s.MapQueue...)
	}
	if s.Pending != nil {
		p := *s.Pending
		p.Tickets = append([]AccountID(nil), s.Pending.Tickets...)
		g.Pending = &p
	}
	for a, v := range s.Claims {
		g.Claims[a] = v
	}
	for a, st := range s.Stats {
		cp := *st
		g.Stats[a] = &cp
	}
	for _, id := range s.Consumed {
		g.Consumed[id] = struct{}{}
	}
	return g, nil
}

// Digest is the canonical content hash of the full state, used by
// determinism tests and the index journal.
func (g *GameState) Digest() string {
	raw, err := json.Marshal(g.Export())
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
