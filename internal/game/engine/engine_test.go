package engine_test

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"purgegame/internal/game/core"
	"purgegame/internal/game/engine"
	"purgegame/internal/game/ledger"
	"purgegame/internal/game/tuning"
)

type testClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *testClock) hop(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

type harness struct {
	eng    *engine.Engine
	coin   *ledger.MemCoin
	tokens *ledger.MemTokens
	clock  *testClock
	cancel context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &testClock{cur: time.Unix(1_700_000_000, 0)}
	coin := ledger.NewMemCoin(1_000_000_000)
	tokens := ledger.NewMemTokens()
	trophy := ledger.NewMemTrophy()
	entropy := ledger.NewMemEntropy(7, true)

	state := core.NewGameState(tuning.Defaults(), clock.now())
	eng := engine.New(state, core.Collaborators{
		Coin: coin, Tokens: tokens, Trophy: trophy, Entropy: entropy,
	}, engine.Options{
		Logger: log.New(io.Discard, "", 0),
		Now:    clock.now,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go eng.Run(ctx)
	t.Cleanup(cancel)
	return &harness{eng: eng, coin: coin, tokens: tokens, clock: clock, cancel: cancel}
}

// advance retries through the retryable gates: entropy fulfillment takes
// one extra call, day windows take a clock hop.
func (h *harness) advance(t *testing.T, ctx context.Context) core.AdvanceResult {
	t.Helper()
	for i := 0; i < 10; i++ {
		res, err := h.eng.Advance(ctx, "cranker", 0)
		if err == nil {
			return res
		}
		switch {
		case errors.Is(err, core.ErrEntropyPending):
		case errors.Is(err, core.ErrSameWindow):
			h.clock.hop(24 * time.Hour)
		default:
			t.Fatalf("advance: %v", err)
		}
	}
	t.Fatalf("advance stuck")
	return core.AdvanceResult{}
}

func (h *harness) driveToPurge(t *testing.T, ctx context.Context) {
	t.Helper()
	for i := 0; i < 100; i++ {
		st, err := h.eng.Status(ctx, "", nil)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if st.State == core.StatePurge {
			return
		}
		h.advance(t, ctx)
	}
	t.Fatalf("never reached purge")
}

func TestEngineFullLevelLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	accounts := []core.AccountID{"p0", "p1", "p2", "p3"}
	for _, a := range accounts {
		h.coin.Fund(a, 10_000)
		if err := h.eng.Purchase(ctx, a, 5); err != nil {
			t.Fatalf("purchase: %v", err)
		}
	}

	h.driveToPurge(t, ctx)

	st, err := h.eng.Status(ctx, "", nil)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.PoolCurrent == 0 {
		t.Fatalf("empty pool entering purge")
	}

	// Purge tokens until something exterminates.
	var exterminator core.AccountID
	for _, a := range accounts {
		for id := uint64(1); id <= 20 && exterminator == ""; id++ {
			if owner, ok := h.tokens.OwnerOf(id); !ok || owner != a {
				continue
			}
			res, err := h.eng.Purge(ctx, a, []uint64{id})
			if errors.Is(err, core.ErrAlreadyPurged) || errors.Is(err, core.ErrPhaseMismatch) {
				continue
			}
			if err != nil {
				t.Fatalf("purge: %v", err)
			}
			if res.Exterminated != nil {
				exterminator = a
			}
		}
		if exterminator != "" {
			break
		}
	}
	if exterminator == "" {
		t.Fatalf("no extermination across all tokens")
	}

	st, err = h.eng.Status(ctx, exterminator, nil)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Level != 2 {
		t.Fatalf("level = %d, want 2", st.Level)
	}
	if st.Claimable == 0 {
		t.Fatalf("exterminator has nothing to claim")
	}

	paid, err := h.eng.Claim(ctx, exterminator)
	if err != nil || paid == 0 {
		t.Fatalf("claim = %d, %v", paid, err)
	}
	if _, err := h.eng.Claim(ctx, exterminator); !errors.Is(err, core.ErrNothingToClaim) {
		t.Fatalf("double claim: %v", err)
	}
}

func TestEngineAirdropStepStandalone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	for _, a := range []core.AccountID{"p0", "p1", "p2", "p3"} {
		if err := h.eng.Purchase(ctx, a, 5); err != nil {
			t.Fatalf("purchase: %v", err)
		}
	}

	// Out of phase the standalone batch op is a retryable gate error.
	if _, err := h.eng.AirdropStep(ctx, 8); !errors.Is(err, core.ErrPhaseGate) {
		t.Fatalf("want phase gate, got %v", err)
	}

	for {
		st, err := h.eng.Status(ctx, "", nil)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if st.State == core.StatePurchase && st.Step == 3 {
			break
		}
		h.advance(t, ctx)
	}

	finished := false
	for i := 0; i < 100 && !finished; i++ {
		res, err := h.eng.AirdropStep(ctx, 8)
		if err != nil {
			t.Fatalf("airdrop step: %v", err)
		}
		finished = res.Finished
	}
	if !finished {
		t.Fatalf("airdrop never finished under small budgets")
	}

	// All placeholder tokens must now carry trait bundles.
	for id := uint64(1); id <= 20; id++ {
		if _, ok := h.tokens.DecodedTraits(id); !ok {
			t.Fatalf("token %d left unassigned", id)
		}
	}
}

func TestEngineSnapshotChannelCarriesLatest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	if err := h.eng.Purchase(ctx, "alice", 3); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if err := h.eng.Purchase(ctx, "bob", 4); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	var snap *core.Snapshot
	select {
	case snap = <-h.eng.Snapshots():
	case <-time.After(time.Second):
		t.Fatalf("no snapshot published")
	}
	// The channel holds the newest state; stale ones are replaced.
	if snap.MintCount != 7 {
		t.Fatalf("snapshot mint count = %d, want 7", snap.MintCount)
	}
	if _, err := core.Restore(tuning.Defaults(), snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
}

func TestEngineConfigureSwapsPolicy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	tune := tuning.Defaults()
	tune.PriceWei = 42_000
	if err := h.eng.Configure(ctx, tune); err != nil {
		t.Fatalf("configure: %v", err)
	}

	// Live level price is untouched; only the policy base changed.
	st, err := h.eng.Status(ctx, "", nil)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.PriceWei != tuning.Defaults().PriceWei {
		t.Fatalf("live price changed to %d", st.PriceWei)
	}

	bad := tuning.Defaults()
	bad.MaxPurgeBatch = 0
	if err := h.eng.Configure(ctx, bad); err == nil {
		t.Fatalf("invalid policy accepted")
	}
}

func TestEngineStatusTraitQuery(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	trait := uint16(10)
	st, err := h.eng.Status(ctx, "alice", &trait)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.TraitRemaining == nil || st.TicketCount == nil {
		t.Fatalf("trait view missing")
	}
	if *st.TraitRemaining != 0 || *st.TicketCount != 0 {
		t.Fatalf("fresh game should report empty trait state")
	}
}
