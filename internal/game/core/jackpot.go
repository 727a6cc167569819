package core

// JackpotKind distinguishes the two wei-funded round flavors.
type JackpotKind string

const (
	KindDaily JackpotKind = "daily"
	KindMap   JackpotKind = "map"
)

// Credit is one wei award produced by a jackpot round.
type Credit struct {
	Account   AccountID
	Trait     uint16
	AmountWei uint64
}

// JackpotRound is the full audit record of one round: which traits won,
// who drew each unit, and where the unassigned remainder went.
type JackpotRound struct {
	Kind         JackpotKind
	Level        uint32
	Counter      uint8
	PoolWei      uint64
	Traits       [4]uint16
	Credits      []Credit
	FinalDraws   []Credit // one per quadrant, routed to trophy or map queue
	RemainderWei uint64   // dust plus shares of zero-ticket traits
}

// runJackpot splits poolWei into four quadrant shares and samples ticket
// holders of the winning traits. Each unit after the first uses a freshly
// mixed state so draws stay independent. Shares of traits nobody holds,
// per-unit rounding dust, and any part of poolWei the share table leaves
// unallocated all flow into RemainderWei, so credits plus final draws plus
// remainder always equal poolWei exactly. The final draw of each quadrant
// is reported separately so callers can route it to a deferred award
// instead of a plain credit.
func (g *GameState) runJackpot(kind JackpotKind, poolWei uint64, word uint64, shares [4]uint32, biased bool) JackpotRound {
	round := JackpotRound{
		Kind:    kind,
		Level:   g.Level,
		Counter: g.JackpotCounter,
		PoolWei: poolWei,
	}
	if biased {
		round.Traits = winningTraitsBiased(word, &g.Daily)
	} else {
		round.Traits = winningTraitsUniform(word)
	}

	book := g.book(g.Level)
	units := g.cfg.TierWeight(g.Level)
	seed := word ^ uint64(g.Level)<<40 ^ uint64(g.JackpotCounter)<<32

	allocated := uint64(0)
	for q := 0; q < 4; q++ {
		share := poolWei * uint64(shares[q]) / 10000
		allocated += share
		if share == 0 {
			continue
		}
		trait := round.Traits[q]
		tix := book.ByTrait[trait]
		if len(tix) == 0 {
			round.RemainderWei += share
			continue
		}
		per := share / uint64(units)
		if per == 0 {
			round.RemainderWei += share
			continue
		}
		state := entropyStep(seed ^ uint64(q) ^ share)
		for i := uint32(0); i+1 < units; i++ {
			winner := tix[state%uint64(len(tix))]
			round.Credits = append(round.Credits, Credit{Account: winner, Trait: trait, AmountWei: per})
			state = entropyStep(state)
		}
		winner := tix[state%uint64(len(tix))]
		round.FinalDraws = append(round.FinalDraws, Credit{Account: winner, Trait: trait, AmountWei: per})
		round.RemainderWei += share - per*uint64(units)
	}
	round.RemainderWei += poolWei - allocated
	return round
}

// payDailyJackpot runs one counter tick of the periodic schedule: carve the
// counter-indexed slice off the live pool, sample biased winning traits,
// credit regular draws, hand final draws to the trophy program, reset the
// counter bank, toggle the parity flag, and advance the counter.
func (g *GameState) payDailyJackpot(collab *Collaborators, word uint64) JackpotRound {
	bps := g.cfg.DailyBps[g.JackpotCounter]
	slice := g.PoolCurrent * uint64(bps) / 10000
	round := g.runJackpot(KindDaily, slice, word, g.cfg.DailyShareBps, true)

	g.PoolCurrent -= slice
	for _, c := range round.Credits {
		g.credit(c.Account, c.AmountWei)
	}
	for _, c := range round.FinalDraws {
		collab.Trophy.AwardDeferred(c.Account, g.Level, string(KindDaily), uint64(c.Trait), c.AmountWei)
		g.TotalPaid += c.AmountWei
	}
	g.PoolCurrent += round.RemainderWei

	g.Daily = [DailyCounterCount]uint32{}
	g.FlipFlag = !g.FlipFlag
	g.JackpotCounter++
	return round
}

// payMapJackpot runs the one-shot mid-level round with uniform traits.
// Final draws become queued bonus mints rather than wei credits; their wei
// returns to the pool. A full queue falls back to a plain credit.
func (g *GameState) payMapJackpot(collab *Collaborators, word uint64) JackpotRound {
	bps := g.cfg.MapBpsForLevel(g.Level)
	slice := g.PoolCurrent * uint64(bps) / 10000
	round := g.runJackpot(KindMap, slice, word, g.cfg.MapShareBps, false)

	g.PoolCurrent -= slice
	for _, c := range round.Credits {
		g.credit(c.Account, c.AmountWei)
	}
	for _, c := range round.FinalDraws {
		err := g.queueMapMint(PendingMapMint{Account: c.Account, TraitID: c.Trait, Level: g.Level})
		if err != nil {
			g.credit(c.Account, c.AmountWei)
			continue
		}
		collab.Trophy.AwardDeferred(c.Account, g.Level, string(KindMap), uint64(c.Trait), 0)
		round.RemainderWei += c.AmountWei
	}
	g.PoolCurrent += round.RemainderWei
	return round
}

// payEarlyJackpot splits a coin-pool slice over the mint leaderboard when a
// pool-growth threshold is first crossed. Coin value lives outside the wei
// conservation envelope.
func (g *GameState) payEarlyJackpot(collab *Collaborators) {
	pool := collab.Coin.PrepareJackpotPool()
	slice := pool * uint64(g.cfg.EarlyJackpotBps) / 10000
	if slice == 0 {
		return
	}
	board := collab.Coin.TopLeaderboardEntries("mints")
	if len(board) == 0 {
		return
	}
	per := slice / uint64(len(board))
	if per == 0 {
		return
	}
	for _, a := range board {
		collab.Coin.CreditBonus(a, per)
	}
}

// runMilestones fires every configured coin-pool milestone that matches the
// ended level, splitting its slice evenly over the milestone's leaderboard.
func (g *GameState) runMilestones(collab *Collaborators, endLevel uint32) {
	for _, m := range g.cfg.Milestones {
		bps := m.MilestoneBps(endLevel)
		if bps == 0 {
			continue
		}
		pool := collab.Coin.PrepareJackpotPool()
		slice := pool * uint64(bps) / 10000
		board := collab.Coin.TopLeaderboardEntries(m.Board)
		if slice == 0 || len(board) == 0 {
			continue
		}
		per := slice / uint64(len(board))
		if per == 0 {
			continue
		}
		for _, a := range board {
			collab.Coin.CreditBonus(a, per)
		}
		collab.Trophy.AwardDeferred(board[0], endLevel, m.Name, 0, 0)
	}
}
