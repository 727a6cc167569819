package core

import "time"

// settleExtermination ends the level the moment a hard trait hits the floor.
// The live pool splits 90/10 participant/tip; the exterminator additionally
// takes a share of the participant side (doubled on big-recurrence levels),
// and the rest divides evenly over the ending trait's ticket ledger. A
// repeating winner, or a configured recurrence level, defers half the pool
// to carryover first. Division dust and zero-ticket remainders also land
// in carryover.
func (g *GameState) settleExtermination(collab *Collaborators, trait uint16, exterminator AccountID, now time.Time) {
	endLevel := g.Level
	pool := g.PoolCurrent
	g.PoolSnapshot = pool

	repeat := trait == g.LastExterminated || g.cfg.IsRepeatCarryLevel(endLevel)
	if repeat && g.cfg.RepeatCarryBps > 0 {
		carry := pool * uint64(g.cfg.RepeatCarryBps) / 10000
		g.PoolCarryover += carry
		pool -= carry
	}

	participant := pool * uint64(g.cfg.ParticipantBps) / 10000
	tip := pool - participant
	g.credit(exterminator, tip)

	endShare := participant * uint64(g.cfg.ExterminatorShareBps(endLevel)) / 10000
	g.credit(exterminator, endShare)
	remainder := participant - endShare

	tix := g.book(endLevel).ByTrait[trait]
	if len(tix) == 0 {
		g.PoolCarryover += remainder
	} else {
		per := remainder / uint64(len(tix))
		owed := per * uint64(len(tix))
		g.PoolCarryover += remainder - owed
		if owed > 0 {
			g.Pending = &PendingSettlement{
				Level:        endLevel,
				Trait:        trait,
				Exterminator: exterminator,
				PerTicketWei: per,
				Tickets:      append([]AccountID(nil), tix...),
				RemainingWei: owed,
			}
			g.PendingWei += owed
		}
	}

	g.PoolCurrent = 0
	g.LastExterminated = trait
	g.runMilestones(collab, endLevel)
	g.rollLevel(now)
}

// settleTimeout ends the level when the jackpot counter exhausts its
// schedule without an extermination. The whole remaining pool carries
// forward; on recalibration boundaries the unit price resets to base.
func (g *GameState) settleTimeout(collab *Collaborators, now time.Time) {
	endLevel := g.Level
	g.PoolSnapshot = g.PoolCurrent
	g.LastExterminated = TraitTimeout
	g.runMilestones(collab, endLevel)
	g.rollLevel(now)
	if g.cfg.RecalibrateMod != 0 && g.Level%g.cfg.RecalibrateMod == 0 {
		g.PriceWei = g.cfg.PriceWei
		g.PoolSnapshot = g.PoolCurrent
	}
}

// rollLevel resets per-level state for the next round. Carryover folds into
// the live pool, the price compounds per schedule, counters and ledgers
// reset, and the state machine lands in Idle so the payout drain can run.
func (g *GameState) rollLevel(now time.Time) {
	g.Level++
	g.State = StateIdle
	g.PhaseStep = 0
	g.LevelStart = now
	g.JackpotCounter = 0
	g.EarlyPaid = 0
	g.Daily = [DailyCounterCount]uint32{}
	g.TraitPool = [TraitCount]uint32{}
	g.TraitFloor = g.cfg.TraitFloor(g.Level)
	g.PriceWei = g.cfg.PriceForLevel(g.Level)

	g.PoolCurrent += g.PoolCarryover
	g.PoolCarryover = 0

	g.Airdrop = newAirdropState()
	g.RebuildCursor = 0
	g.MintStart = 0
	g.MintCount = 0

	// Keep the just-ended book for the pending drain; older books are done.
	for lvl := range g.Tickets {
		if lvl+2 <= g.Level {
			delete(g.Tickets, lvl)
		}
	}
}

// drainPending pays one bounded slice of the FIFO participant payout.
// Consecutive duplicate winners coalesce into a single larger credit so a
// holder of many tickets costs one write, not many. Returns the number of
// credits written and whether the ticket list is exhausted.
func (g *GameState) drainPending(units uint32) (uint32, bool) {
	p := g.Pending
	if p == nil {
		return 0, true
	}
	paid := uint32(0)
	for p.Cursor < len(p.Tickets) && paid < units {
		winner := p.Tickets[p.Cursor]
		n := 1
		for p.Cursor+n < len(p.Tickets) && p.Tickets[p.Cursor+n] == winner {
			n++
		}
		amount := p.PerTicketWei * uint64(n)
		g.credit(winner, amount)
		g.PendingWei -= amount
		p.RemainingWei -= amount
		p.Cursor += n
		paid++
	}
	return paid, p.Cursor >= len(p.Tickets)
}
