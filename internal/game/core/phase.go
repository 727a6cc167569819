package core

import "time"

// AdvanceResult reports one crank of the state machine.
type AdvanceResult struct {
	Level     uint32
	State     Phase
	Step      uint8
	Finished  bool   // the current sub-step fully completed this call
	Processed uint32 // units handled by a sliced sub-step
	BonusWei  uint64
	Rounds    []JackpotRound
}

// NeedsEntropy reports whether the next sub-step consumes the external
// entropy word. Work-only steps (payout drain, airdrop slices, rarity
// rebuild) run without it.
func (g *GameState) NeedsEntropy() bool {
	switch g.State {
	case StatePurchase:
		return g.PhaseStep == 2 || g.PhaseStep == 4
	case StatePurge:
		return true
	}
	return false
}

// Advance cranks exactly one sub-step of the level state machine under a
// work budget. Entropy-consuming steps are additionally gated to one per
// day window. Anyone may call; callers on the default (zero) budget earn
// a liveness bonus in the secondary currency when the call makes
// progress. An explicit budget is the emergency path for keeping a call
// small and forfeits the bonus.
func (g *GameState) Advance(collab *Collaborators, caller AccountID, units uint32, now time.Time) (AdvanceResult, error) {
	var res AdvanceResult
	defer func() {
		res.Level = g.Level
		res.State = g.State
		res.Step = g.PhaseStep
	}()

	if g.Level >= MaxLevel {
		return res, ErrMaxLevel
	}
	liveness := units == 0
	if liveness {
		units = g.cfg.DefaultWorkUnits
	}
	if units > g.cfg.MaxWorkUnits {
		units = g.cfg.MaxWorkUnits
	}

	var word uint64
	day := now.Unix() / 86400
	if g.NeedsEntropy() {
		if day == g.LastAdvanceDay {
			return res, ErrSameWindow
		}
		w, ok := collab.Entropy.CurrentEntropy()
		if !ok {
			collab.Entropy.RequestEntropy()
			return res, ErrEntropyPending
		}
		word = w
	}

	var err error
	consumed := false
	switch g.State {
	case StateIdle:
		err = g.advanceIdle(collab, units, &res)
	case StatePurchase:
		err = g.advancePurchase(collab, units, word, &consumed, now, &res)
	case StatePurge:
		err = g.advancePurge(collab, word, now, &res)
		consumed = err == nil
	default:
		err = ErrBadRequest
	}
	if err != nil {
		return res, err
	}
	if consumed {
		g.LastAdvanceDay = day
		collab.Entropy.RequestEntropy()
	}
	if liveness && caller != "" && g.cfg.AdvanceBonusWei > 0 {
		collab.Coin.CreditBonus(caller, g.cfg.AdvanceBonusWei)
		res.BonusWei = g.cfg.AdvanceBonusWei
	}
	return res, nil
}

// advanceIdle drains the prior level's participant payout, then the
// collaborator's wager window, then opens the purchase phase.
func (g *GameState) advanceIdle(collab *Collaborators, units uint32, res *AdvanceResult) error {
	budget := units
	if int(budget) > g.cfg.PayoutBatch {
		budget = uint32(g.cfg.PayoutBatch)
	}
	paid, done := g.drainPending(budget)
	res.Processed = paid
	if !done {
		return nil
	}
	if p := g.Pending; p != nil {
		if !p.WagerReady {
			p.WagerReady = collab.Coin.SettleWagerWindow(p.Level, budget, g.FlipFlag, entropyStep(uint64(p.Level)))
			if !p.WagerReady {
				return nil
			}
		}
		delete(g.Tickets, p.Level)
		g.Pending = nil
	}
	g.State = StatePurchase
	g.PhaseStep = 0
	res.Finished = true
	return nil
}

// advancePurchase handles sub-steps 0..7: early pool-growth milestones,
// the full-growth gate, airdrop slices, the map jackpot, queued bonus
// mints, and the rarity rebuild. One sub-step per call.
func (g *GameState) advancePurchase(collab *Collaborators, units uint32, word uint64, consumed *bool, now time.Time, res *AdvanceResult) error {
	combined := g.PoolCurrent + g.PoolNext

	switch g.PhaseStep {
	case 0, 1:
		if !g.earlyGateMet(combined, g.PhaseStep) {
			return ErrPhaseGate
		}
		g.payEarlyMilestone(collab, g.PhaseStep)
		g.PhaseStep++
		res.Finished = true
		return nil

	case 2:
		if uint64(g.MintCount) < g.cfg.MinPurchases {
			return ErrPhaseGate
		}
		if g.PoolSnapshot > 0 && combined < g.PoolSnapshot {
			return ErrPhaseGate
		}
		g.payEarlyMilestone(collab, 2)
		g.PoolCurrent += g.PoolNext
		g.PoolNext = 0
		g.Airdrop.Word = entropyStep(word ^ uint64(g.Level)<<32)
		*consumed = true
		g.PhaseStep = 3
		res.Finished = true
		return nil

	case 3:
		slice := g.processAirdropSlice(collab.Tokens, units)
		res.Processed = slice.Processed
		if slice.Finished {
			g.PhaseStep = 4
			res.Finished = true
			return nil
		}
		if slice.Processed == 0 {
			return ErrNoProgress
		}
		return nil

	case 4:
		round := g.payMapJackpot(collab, word)
		res.Rounds = append(res.Rounds, round)
		*consumed = true
		g.PhaseStep = 5
		res.Finished = true
		return nil

	case 5:
		collab.Tokens.FinalizePurchaseCount()
		drained := g.drainMapQueue(collab, units)
		res.Processed = drained
		if len(g.MapQueue) > 0 {
			return nil
		}
		g.PhaseStep = 6
		res.Finished = true
		return nil

	case 6:
		done := g.rebuildSlice(collab.Tokens, units, res)
		if done {
			g.PhaseStep = 7
			res.Finished = true
		}
		return nil

	case 7:
		word := g.Airdrop.Word
		g.Airdrop = newAirdropState()
		g.Airdrop.Word = word
		g.State = StatePurge
		g.PhaseStep = 0
		res.Finished = true
		return nil
	}
	return ErrBadRequest
}

// earlyGateMet checks a pool-growth fraction against the prior level's
// terminal size. The first level has no target and passes trivially.
func (g *GameState) earlyGateMet(combined uint64, index uint8) bool {
	if g.PoolSnapshot == 0 {
		return true
	}
	if int(index) >= len(g.cfg.EarlyGateBps) {
		return true
	}
	target := g.PoolSnapshot * uint64(g.cfg.EarlyGateBps[index]) / 10000
	return combined >= target
}

// payEarlyMilestone pays a coin-pool jackpot once per threshold index.
func (g *GameState) payEarlyMilestone(collab *Collaborators, index uint8) {
	bit := uint8(1) << index
	if g.EarlyPaid&bit != 0 {
		return
	}
	g.EarlyPaid |= bit
	g.payEarlyJackpot(collab)
}

// drainMapQueue mints queued bonus tokens FIFO, bounded by units. Each
// mint anchors the won trait in a fresh bundle and counts toward the
// rarity rebuild range.
func (g *GameState) drainMapQueue(collab *Collaborators, units uint32) uint32 {
	drained := uint32(0)
	book := g.book(g.Level)
	for drained < units && len(g.MapQueue) > 0 {
		e := g.MapQueue[0]
		g.MapQueue = g.MapQueue[1:]

		id := collab.Tokens.MintPlaceholderRange(e.Account, 1)
		b := bundleForTrait(e.TraitID, g.Airdrop.Word^id)
		collab.Tokens.AssignTraits(id, b)
		collab.Trophy.ClearPlaceholder(e.Level, string(KindMap))
		if g.MintCount == 0 {
			g.MintStart = id
		}
		g.MintCount++
		for q := uint8(0); q < 4; q++ {
			if g.cfg.IsSoftQuadrant(q) {
				book.ByTrait[b[q]] = append(book.ByTrait[b[q]], e.Account)
			}
		}
		st := g.stats(e.Account)
		st.TotalMints++
		drained++
	}
	return drained
}

// rebuildSlice recounts minted trait bundles into the shared rarity pool.
func (g *GameState) rebuildSlice(tokens TokenRegistry, units uint32, res *AdvanceResult) bool {
	limit := units
	if limit > g.cfg.RebuildSlice {
		limit = g.cfg.RebuildSlice
	}
	processed := uint32(0)
	for processed < limit && g.RebuildCursor < g.MintCount {
		id := g.MintStart + uint64(g.RebuildCursor)
		if traits, ok := tokens.DecodedTraits(id); ok {
			for _, t := range traits {
				if int(t) < TraitCount {
					g.TraitPool[t]++
				}
			}
		}
		g.RebuildCursor++
		processed++
	}
	res.Processed = processed
	return g.RebuildCursor >= g.MintCount
}

// advancePurge pays the next periodic jackpot tick. Burst levels pay
// several ticks per window; exhausting the counter schedule times the
// level out and rolls it with the full pool carried forward.
func (g *GameState) advancePurge(collab *Collaborators, word uint64, now time.Time, res *AdvanceResult) error {
	burst := uint8(1)
	if g.cfg.BurstLevelMod != 0 && g.Level%g.cfg.BurstLevelMod == 0 {
		burst = g.cfg.BurstCount
	}
	w := word
	for b := uint8(0); b < burst; b++ {
		if g.JackpotCounter >= g.cfg.JackpotsPerLevel {
			break
		}
		round := g.payDailyJackpot(collab, w)
		res.Rounds = append(res.Rounds, round)
		w = entropyStep(w)
		if g.JackpotCounter >= g.cfg.JackpotsPerLevel {
			g.settleTimeout(collab, now)
			break
		}
	}
	res.Finished = true
	return nil
}
