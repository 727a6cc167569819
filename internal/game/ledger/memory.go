// Package ledger provides in-process collaborator implementations. On a
// deployed chain these would be separate programs; here they keep the
// settlement core runnable and testable end to end.
package ledger

import (
	"errors"
	"sort"
	"sync"

	"purgegame/internal/game/core"
)

var ErrInsufficientCoin = errors.New("insufficient coin balance")

// MemCoin is the in-memory fungible-currency program. Leaderboards track
// per-board activity scores; milestone splits read the top entries.
type MemCoin struct {
	mu       sync.Mutex
	balances map[core.AccountID]uint64
	pool     uint64
	burned   uint64
	boards   map[string]map[core.AccountID]uint64
	topN     int

	wagerSlices map[uint32]uint32 // remaining slices per level window
}

func NewMemCoin(jackpotPool uint64) *MemCoin {
	return &MemCoin{
		balances:    make(map[core.AccountID]uint64),
		pool:        jackpotPool,
		boards:      make(map[string]map[core.AccountID]uint64),
		topN:        10,
		wagerSlices: make(map[uint32]uint32),
	}
}

// Fund seeds a spendable balance, e.g. for purge fees in tests.
func (c *MemCoin) Fund(account core.AccountID, amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[account] += amount
}

func (c *MemCoin) Balance(account core.AccountID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[account]
}

func (c *MemCoin) CreditBonus(account core.AccountID, amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[account] += amount
}

func (c *MemCoin) BurnFrom(account core.AccountID, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balances[account] < amount {
		return ErrInsufficientCoin
	}
	c.balances[account] -= amount
	c.burned += amount
	c.bump("burns", account, amount)
	return nil
}

// SettleWagerWindow drains a fixed number of slices per ended level so the
// idle-state machinery exercises the not-ready path.
func (c *MemCoin) SettleWagerWindow(level uint32, budget uint32, finalFlip bool, entropy uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining, ok := c.wagerSlices[level]
	if !ok {
		remaining = 1
	}
	if budget >= remaining {
		delete(c.wagerSlices, level)
		return true
	}
	c.wagerSlices[level] = remaining - budget
	return false
}

// SetWagerSlices configures how much work a level's wager window takes.
func (c *MemCoin) SetWagerSlices(level uint32, slices uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wagerSlices[level] = slices
}

func (c *MemCoin) PrepareJackpotPool() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pool
}

// Bump records leaderboard activity ("mints", "burns", "flips").
func (c *MemCoin) Bump(board string, account core.AccountID, score uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bump(board, account, score)
}

func (c *MemCoin) bump(board string, account core.AccountID, score uint64) {
	b, ok := c.boards[board]
	if !ok {
		b = make(map[core.AccountID]uint64)
		c.boards[board] = b
	}
	b[account] += score
}

func (c *MemCoin) TopLeaderboardEntries(board string) []core.AccountID {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.boards[board]
	if len(b) == 0 {
		return nil
	}
	type entry struct {
		account core.AccountID
		score   uint64
	}
	entries := make([]entry, 0, len(b))
	for a, s := range b {
		entries = append(entries, entry{a, s})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].account < entries[j].account
	})
	n := c.topN
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]core.AccountID, 0, n)
	for _, e := range entries[:n] {
		out = append(out, e.account)
	}
	return out
}

// MemTokens is the in-memory token registry. IDs are a single global
// sequence; trait assignment is write-once.
type MemTokens struct {
	mu        sync.Mutex
	nextID    uint64
	owners    map[uint64]core.AccountID
	traits    map[uint64][4]uint16
	finalized uint64
}

func NewMemTokens() *MemTokens {
	return &MemTokens{nextID: 1, owners: make(map[uint64]core.AccountID), traits: make(map[uint64][4]uint16)}
}

func (t *MemTokens) MintPlaceholderRange(owner core.AccountID, qty uint32) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := t.nextID
	for i := uint32(0); i < qty; i++ {
		t.owners[t.nextID] = owner
		t.nextID++
	}
	return start
}

func (t *MemTokens) OwnerOf(id uint64) (core.AccountID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.owners[id]
	return a, ok
}

// Transfer changes ownership, for exercising the not-owner path.
func (t *MemTokens) Transfer(id uint64, to core.AccountID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.owners[id]; !ok {
		return false
	}
	t.owners[id] = to
	return true
}

func (t *MemTokens) AssignTraits(id uint64, traits [4]uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, done := t.traits[id]; done {
		return // write-once
	}
	t.traits[id] = traits
}

func (t *MemTokens) DecodedTraits(id uint64) ([4]uint16, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.traits[id]
	return tr, ok
}

func (t *MemTokens) FinalizePurchaseCount() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finalized = t.nextID - 1
}

func (t *MemTokens) PurchaseCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalized
}

// MemTrophy records deferred awards for inspection.
type MemTrophy struct {
	mu     sync.Mutex
	Awards []TrophyAward
}

type TrophyAward struct {
	Account core.AccountID
	Level   uint32
	Kind    string
	Payload uint64
	Amount  uint64
}

func NewMemTrophy() *MemTrophy { return &MemTrophy{} }

func (t *MemTrophy) AwardDeferred(account core.AccountID, level uint32, kind string, payload uint64, amount uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Awards = append(t.Awards, TrophyAward{account, level, kind, payload, amount})
}

func (t *MemTrophy) ClearPlaceholder(level uint32, kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.Awards) - 1; i >= 0; i-- {
		a := t.Awards[i]
		if a.Level == level && a.Kind == kind {
			t.Awards = append(t.Awards[:i], t.Awards[i+1:]...)
			return
		}
	}
}

// MemEntropy is a request/fulfill entropy provider. Production would back
// this with an oracle; tests fulfill deterministically.
type MemEntropy struct {
	mu      sync.Mutex
	word    uint64
	haveOne bool
	locked  bool
	auto    bool
	seq     uint64
}

// NewMemEntropy with auto=true fulfills every request immediately from a
// deterministic sequence seeded by seq.
func NewMemEntropy(seq uint64, auto bool) *MemEntropy {
	return &MemEntropy{seq: seq, auto: auto}
}

func (s *MemEntropy) CurrentEntropy() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.haveOne {
		return 0, false
	}
	return s.word, true
}

func (s *MemEntropy) RequestEntropy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auto {
		s.seq = s.seq*6364136223846793005 + 1442695040888963407
		s.word = s.seq
		s.haveOne = true
		s.locked = false
		return
	}
	s.locked = true
}

// Fulfill resolves a pending request with the given word.
func (s *MemEntropy) Fulfill(word uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.word = word
	s.haveOne = true
	s.locked = false
}

func (s *MemEntropy) EntropyLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}
