package core

import "time"

// ConsumeResult reports one purge call. When Exterminated is set, tokens
// after Processed were not touched and must be resubmitted.
type ConsumeResult struct {
	Processed    int
	Exterminated *uint16
	BonusWei     uint64
}

// Consume burns a batch of held tokens against the shared rarity pool.
// Validation is all-or-nothing: any bad token rejects the whole call before
// the first mutation. At most one extermination is reported per call; it
// stops the batch immediately.
func (g *GameState) Consume(collab *Collaborators, caller AccountID, ids []uint64, now time.Time) (ConsumeResult, error) {
	var res ConsumeResult
	if caller == "" || len(ids) == 0 || len(ids) > g.cfg.MaxPurgeBatch {
		return res, ErrBadRequest
	}
	if g.State != StatePurge {
		return res, ErrPhaseMismatch
	}

	// Validate the whole batch up front so a failure reverts cleanly.
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return res, ErrBadRequest
		}
		seen[id] = struct{}{}
		if _, done := g.Consumed[id]; done {
			return res, ErrAlreadyPurged
		}
		owner, ok := collab.Tokens.OwnerOf(id)
		if !ok || owner != caller {
			return res, ErrNotOwner
		}
		if _, ok := collab.Tokens.DecodedTraits(id); !ok {
			return res, ErrBadRequest
		}
	}

	// The purge fee burns up front for the full batch; fees for tokens an
	// extermination leaves unprocessed are returned as bonus credit.
	fee := g.cfg.PurgeCoinFee * uint64(len(ids))
	if fee > 0 {
		if err := collab.Coin.BurnFrom(caller, fee); err != nil {
			return res, err
		}
	}

	st := g.stats(caller)
	prevColor, hasPrevColor := winnerColor(g.LastExterminated)
	book := g.book(g.Level)

	for _, id := range ids {
		traits, _ := collab.Tokens.DecodedTraits(id)

		var exterminated *uint16
		for _, t := range traits {
			if int(t) >= TraitCount {
				continue
			}
			if g.TraitPool[t] <= g.TraitFloor {
				continue // floor-clamped: no consumption, no ticket
			}
			g.TraitPool[t]--
			book.ByTrait[t] = append(book.ByTrait[t], caller)
			if g.TraitPool[t] == g.TraitFloor && !g.cfg.IsSoftQuadrant(Quadrant(t)) {
				tt := t
				exterminated = &tt
				break
			}
		}

		g.accrueDaily(traits)
		g.Consumed[id] = struct{}{}
		res.Processed++
		st.TotalPurges++
		st.LastLevel = g.Level

		if st.Streak < g.cfg.StreakCap {
			st.Streak++
		}
		bonus := g.cfg.PurgeBonusWei + g.cfg.StreakBonusWei*uint64(st.Streak)
		if hasPrevColor && (traits[0]>>3)&7 == prevColor {
			bonus *= 2
			st.Luckbox++
		}
		res.BonusWei += bonus

		if exterminated != nil {
			res.Exterminated = exterminated
			g.settleExtermination(collab, *exterminated, caller, now)
			// Refund the fee of the unprocessed tail.
			tail := uint64(len(ids)-res.Processed) * g.cfg.PurgeCoinFee
			if tail > 0 {
				collab.Coin.CreditBonus(caller, tail)
			}
			break
		}
	}

	if res.BonusWei > 0 {
		collab.Coin.CreditBonus(caller, res.BonusWei)
	}
	return res, nil
}

// accrueDaily records one token's consumption pressure: quadrant-0 symbol
// and color buckets plus the quadrant-2 trait bucket.
func (g *GameState) accrueDaily(traits [4]uint16) {
	t0 := traits[0]
	if t0 < QuadrantSize {
		g.Daily[t0&7]++
		g.Daily[8+(t0>>3)&7]++
	}
	t2 := traits[2]
	if t2 >= 128 && t2 < 192 {
		g.Daily[16+int(t2-128)]++
	}
}

// winnerColor extracts the color of the trait that ended the previous
// level, when that trait carries a color (quadrants 0 and 1 only).
func winnerColor(trait uint16) (uint16, bool) {
	if trait >= 128 {
		return 0, false
	}
	return (trait >> 3) & 7, true
}
