package core

import "sort"

// AirdropResult reports one batch slice of trait assignment.
type AirdropResult struct {
	Processed    uint32 // owed units assigned this slice
	AccountsDone int
	Finished     bool
}

// AirdropStep is the standalone batch operation: anyone may push the
// airdrop forward outside of a full Advance call while the machine sits
// in the assignment sub-step.
func (g *GameState) AirdropStep(tokens TokenRegistry, writeBudget uint32) (AirdropResult, error) {
	if g.State != StatePurchase || g.PhaseStep != 3 {
		return AirdropResult{}, ErrPhaseGate
	}
	if writeBudget == 0 {
		writeBudget = g.cfg.DefaultWorkUnits
	}
	if writeBudget > g.cfg.MaxWorkUnits {
		writeBudget = g.cfg.MaxWorkUnits
	}
	res := g.processAirdropSlice(tokens, writeBudget)
	if res.Finished {
		g.PhaseStep = 4
		return res, nil
	}
	if res.Processed == 0 {
		return res, ErrNoProgress
	}
	return res, nil
}

// processAirdropSlice assigns traits to owed placeholder tokens under a
// write budget. Visiting an account costs a fixed bookkeeping overhead plus
// one unit per draw, so the slice takes as many whole draws as fit and
// stops before any partial mutation. The per-account draw cursor never
// rewinds: draw index i of an account always yields the same bundle, so
// any split of budgets converges on the same final assignments and ledger.
func (g *GameState) processAirdropSlice(tokens TokenRegistry, writeBudget uint32) AirdropResult {
	var res AirdropResult
	ad := &g.Airdrop
	budget := int64(writeBudget)
	overhead := int64(g.cfg.AirdropAccountCost)
	unit := int64(g.cfg.AirdropUnitCost)

	pending := make(map[uint16][]AccountID)

	for ad.Cursor < len(ad.Queue) {
		acct := ad.Queue[ad.Cursor]
		owed := ad.Owed[acct]
		if owed == 0 {
			ad.Cursor++
			res.AccountsDone++
			continue
		}
		if budget < overhead+unit {
			break
		}
		capacity := uint32((budget - overhead) / unit)
		take := owed
		if take > capacity {
			take = capacity
		}

		seed := accountSeed(acct)
		base := ad.Assigned[acct]
		ids := ad.TokenIDs[acct]
		for i := uint32(0); i < take; i++ {
			idx := base + i
			b := drawBundle(seed, idx, ad.Word, g.cfg.SymbolWeights, g.cfg.ColorWeights)
			tokens.AssignTraits(ids[idx], b)
			for q := uint8(0); q < 4; q++ {
				if g.cfg.IsSoftQuadrant(q) {
					pending[b[q]] = append(pending[b[q]], acct)
				}
			}
		}

		ad.Assigned[acct] = base + take
		ad.Owed[acct] = owed - take
		budget -= overhead + int64(take)*unit
		res.Processed += take
		if ad.Owed[acct] == 0 {
			ad.Cursor++
			res.AccountsDone++
		} else {
			break
		}
	}

	// Ledger appends group per trait. Relative order within one trait is
	// processing order, so the final ledger is independent of slicing.
	if len(pending) > 0 {
		book := g.book(g.Level)
		traits := make([]int, 0, len(pending))
		for t := range pending {
			traits = append(traits, int(t))
		}
		sort.Ints(traits)
		for _, t := range traits {
			book.ByTrait[t] = append(book.ByTrait[t], pending[uint16(t)]...)
		}
	}

	res.Finished = ad.Cursor >= len(ad.Queue)
	return res
}
