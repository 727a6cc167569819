// Command simulate drives the settlement core through many levels with
// scripted players and prints the economy trajectory. It is an offline
// tuning tool: no transport, no persistence, everything in memory.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"purgegame/internal/game/core"
	"purgegame/internal/game/ledger"
	"purgegame/internal/game/tuning"
)

func main() {
	var (
		levels     = flag.Int("levels", 25, "levels to play through")
		players    = flag.Int("players", 8, "scripted player count")
		mints      = flag.Uint("mints", 4, "mints per player per level")
		seed       = flag.Int64("seed", 1337, "entropy sequence seed")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: built-in defaults)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[simulate] ", log.LstdFlags)

	tune := tuning.Defaults()
	if strings.TrimSpace(*tuningPath) != "" {
		t, err := tuning.Load(*tuningPath)
		if err != nil {
			logger.Fatalf("load tuning: %v", err)
		}
		tune = t
	}

	now := time.Unix(1_700_000_000, 0)
	state := core.NewGameState(tune, now)

	coin := ledger.NewMemCoin(0)
	tokens := ledger.NewMemTokens()
	trophy := ledger.NewMemTrophy()
	entropy := ledger.NewMemEntropy(uint64(*seed), true)
	collab := core.Collaborators{Coin: coin, Tokens: tokens, Trophy: trophy, Entropy: entropy}

	names := make([]core.AccountID, *players)
	for i := range names {
		names[i] = core.AccountID(fmt.Sprintf("sim_%02d", i))
	}

	// crank pushes the phase machine one sub-step, hopping the clock a day
	// when the settlement window is already consumed.
	crank := func() error {
		for {
			_, err := state.Advance(&collab, "driver", 0, now)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, core.ErrSameWindow):
				now = now.Add(24 * time.Hour)
			case errors.Is(err, core.ErrEntropyPending):
				// auto-fulfilled; retry immediately
			case core.NotReady(err):
				return err
			default:
				return err
			}
		}
	}

	// Columns report the ended level: snapshot is its terminal pool size,
	// next_price is the recalibrated price the following level opens with.
	fmt.Println("level\tnext_price_wei\tsnapshot_wei\tcarryover_wei\ttotal_paid_wei\tended_by")

	holdings := make(map[core.AccountID][]uint64)
	bought := false
	level := state.Level

	for {
		if state.Level != level {
			endedBy := fmt.Sprintf("trait_%d", state.LastExterminated)
			if state.LastExterminated == core.TraitTimeout {
				endedBy = "timeout"
			}
			fmt.Printf("%d\t%d\t%d\t%d\t%d\t%s\n",
				level, state.PriceWei, state.PoolSnapshot, state.PoolCarryover, state.TotalPaid, endedBy)
			level = state.Level
			bought = false
			holdings = make(map[core.AccountID][]uint64)
			if level > uint32(*levels) {
				break
			}
		}

		switch state.State {
		case core.StatePurchase:
			if !bought && state.PhaseStep <= 2 {
				buyRound(state, tokens, coin, tune, names, uint32(*mints))
				bought = true
			}
			err := crank()
			if errors.Is(err, core.ErrPhaseGate) && state.PhaseStep <= 2 {
				// Pool has not regrown past the prior level yet; keep buying.
				buyRound(state, tokens, coin, tune, names, uint32(*mints))
				continue
			}
			if err != nil {
				logger.Fatalf("advance (purchase): %v", err)
			}
			if state.PhaseStep >= 3 && len(holdings) == 0 {
				for _, a := range names {
					holdings[a] = append([]uint64(nil), state.Airdrop.TokenIDs[a]...)
				}
			}

		case core.StatePurge:
			batch := tune.MaxPurgeBatch
			progressed := false
			for _, a := range names {
				ids := holdings[a]
				if len(ids) == 0 {
					continue
				}
				n := batch
				if n > len(ids) {
					n = len(ids)
				}
				if _, err := state.Consume(&collab, a, ids[:n], now); err != nil {
					logger.Fatalf("purge %s: %v", a, err)
				}
				holdings[a] = ids[n:]
				progressed = true
				if state.Level != level {
					break
				}
			}
			if state.Level != level {
				continue
			}
			if !progressed {
				// Everyone is out of tokens; let the jackpot clock run the
				// level into timeout.
				now = now.Add(24 * time.Hour)
			}
			if err := crank(); err != nil {
				logger.Fatalf("advance (purge): %v", err)
			}

		default: // StateIdle
			if err := crank(); err != nil {
				logger.Fatalf("advance (idle): %v", err)
			}
		}
	}

	if total, contributed := state.ConservedTotal(), state.TotalContributed; total != contributed {
		logger.Fatalf("conservation broken: conserved=%d contributed=%d", total, contributed)
	}
	logger.Printf("done: levels=%d contributed=%d paid=%d carryover=%d",
		state.Level-1, state.TotalContributed, state.TotalPaid, state.PoolCarryover)
}

func buyRound(state *core.GameState, tokens *ledger.MemTokens, coin *ledger.MemCoin, tune tuning.Tuning, names []core.AccountID, qty uint32) {
	for _, a := range names {
		if err := state.Purchase(tokens, a, qty); err != nil {
			log.Fatalf("[simulate] purchase %s: %v", a, err)
		}
		coin.Fund(a, tune.PurgeCoinFee*uint64(qty)*2)
	}
}
