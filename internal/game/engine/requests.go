package engine

import (
	"context"

	"purgegame/internal/game/core"
	"purgegame/internal/game/tuning"
)

// Typed request/response pairs. Each public method builds a request,
// submits it, and waits for the engine goroutine's answer.

// boardBumper is implemented by coin ledgers that track activity
// leaderboards for milestone splits.
type boardBumper interface {
	Bump(board string, account core.AccountID, score uint64)
}

func (e *Engine) bumpBoard(board string, account core.AccountID, score uint64) {
	if b, ok := e.collab.Coin.(boardBumper); ok && account != "" {
		b.Bump(board, account, score)
	}
}

type advanceResp struct {
	res core.AdvanceResult
	err error
}

type advanceReq struct {
	caller core.AccountID
	units  uint32
	resp   chan advanceResp
}

func (r advanceReq) apply(e *Engine) {
	res, err := e.state.Advance(&e.collab, r.caller, r.units, e.now())
	if err == nil {
		e.journal.Advance(res.Level, res.State, res.Step, e.state.Digest())
		for _, round := range res.Rounds {
			e.journal.Jackpot(round)
		}
		if res.BonusWei > 0 {
			e.journal.Credit(r.caller, res.BonusWei, "advance_bonus")
		}
		e.bumpBoard("flips", r.caller, 1)
		e.logger.Printf("[engine] advance level=%d state=%d step=%d rounds=%d", res.Level, res.State, res.Step, len(res.Rounds))
		e.publishSnapshot()
	}
	r.resp <- advanceResp{res: res, err: err}
}

func (e *Engine) Advance(ctx context.Context, caller core.AccountID, units uint32) (core.AdvanceResult, error) {
	req := advanceReq{caller: caller, units: units, resp: make(chan advanceResp, 1)}
	if err := e.submit(ctx, req); err != nil {
		return core.AdvanceResult{}, err
	}
	select {
	case r := <-req.resp:
		return r.res, r.err
	case <-ctx.Done():
		return core.AdvanceResult{}, ctx.Err()
	}
}

type purgeResp struct {
	res core.ConsumeResult
	err error
}

type purgeReq struct {
	caller core.AccountID
	ids    []uint64
	resp   chan purgeResp
}

func (r purgeReq) apply(e *Engine) {
	level := e.state.Level
	res, err := e.state.Consume(&e.collab, r.caller, r.ids, e.now())
	if err == nil {
		if res.Exterminated != nil {
			e.journal.Settlement(level, *res.Exterminated, r.caller)
			e.logger.Printf("[engine] exterminated trait=%d level=%d by=%s", *res.Exterminated, level, r.caller)
		}
		e.publishSnapshot()
	}
	r.resp <- purgeResp{res: res, err: err}
}

func (e *Engine) Purge(ctx context.Context, caller core.AccountID, ids []uint64) (core.ConsumeResult, error) {
	req := purgeReq{caller: caller, ids: ids, resp: make(chan purgeResp, 1)}
	if err := e.submit(ctx, req); err != nil {
		return core.ConsumeResult{}, err
	}
	select {
	case r := <-req.resp:
		return r.res, r.err
	case <-ctx.Done():
		return core.ConsumeResult{}, ctx.Err()
	}
}

type purchaseReq struct {
	caller core.AccountID
	qty    uint32
	resp   chan error
}

func (r purchaseReq) apply(e *Engine) {
	err := e.state.Purchase(e.collab.Tokens, r.caller, r.qty)
	if err == nil {
		e.bumpBoard("mints", r.caller, uint64(r.qty))
		e.publishSnapshot()
	}
	r.resp <- err
}

func (e *Engine) Purchase(ctx context.Context, caller core.AccountID, qty uint32) error {
	req := purchaseReq{caller: caller, qty: qty, resp: make(chan error, 1)}
	if err := e.submit(ctx, req); err != nil {
		return err
	}
	select {
	case err := <-req.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type airdropResp struct {
	res core.AirdropResult
	err error
}

type airdropReq struct {
	budget uint32
	resp   chan airdropResp
}

func (r airdropReq) apply(e *Engine) {
	res, err := e.state.AirdropStep(e.collab.Tokens, r.budget)
	if err == nil {
		e.publishSnapshot()
	}
	r.resp <- airdropResp{res: res, err: err}
}

func (e *Engine) AirdropStep(ctx context.Context, budget uint32) (core.AirdropResult, error) {
	req := airdropReq{budget: budget, resp: make(chan airdropResp, 1)}
	if err := e.submit(ctx, req); err != nil {
		return core.AirdropResult{}, err
	}
	select {
	case r := <-req.resp:
		return r.res, r.err
	case <-ctx.Done():
		return core.AirdropResult{}, ctx.Err()
	}
}

type claimResp struct {
	paid uint64
	err  error
}

type claimReq struct {
	caller core.AccountID
	resp   chan claimResp
}

func (r claimReq) apply(e *Engine) {
	paid, err := e.state.Claim(r.caller)
	if err == nil {
		e.journal.Credit(r.caller, paid, "claim")
		e.publishSnapshot()
	}
	r.resp <- claimResp{paid: paid, err: err}
}

func (e *Engine) Claim(ctx context.Context, caller core.AccountID) (uint64, error) {
	req := claimReq{caller: caller, resp: make(chan claimResp, 1)}
	if err := e.submit(ctx, req); err != nil {
		return 0, err
	}
	select {
	case r := <-req.resp:
		return r.paid, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Status is the read-only view handed to transports.
type Status struct {
	Level          uint32
	State          core.Phase
	Step           uint8
	JackpotCounter uint8
	PriceWei       uint64
	PoolCurrent    uint64
	PoolNext       uint64
	PoolCarryover  uint64
	PoolSnapshot   uint64
	TraitRemaining *uint32
	TicketCount    *int
	Claimable      uint64
}

type statusReq struct {
	caller core.AccountID
	trait  *uint16
	resp   chan Status
}

func (r statusReq) apply(e *Engine) {
	g := e.state
	st := Status{
		Level:          g.Level,
		State:          g.State,
		Step:           g.PhaseStep,
		JackpotCounter: g.JackpotCounter,
		PriceWei:       g.PriceWei,
		PoolCurrent:    g.PoolCurrent,
		PoolNext:       g.PoolNext,
		PoolCarryover:  g.PoolCarryover,
		PoolSnapshot:   g.PoolSnapshot,
		Claimable:      g.Claimable(r.caller),
	}
	if r.trait != nil && int(*r.trait) < core.TraitCount {
		remaining := g.TraitPool[*r.trait]
		st.TraitRemaining = &remaining
		n := g.TicketCount(g.Level, *r.trait)
		st.TicketCount = &n
	}
	r.resp <- st
}

func (e *Engine) Status(ctx context.Context, caller core.AccountID, trait *uint16) (Status, error) {
	req := statusReq{caller: caller, trait: trait, resp: make(chan Status, 1)}
	if err := e.submit(ctx, req); err != nil {
		return Status{}, err
	}
	select {
	case st := <-req.resp:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

type configureReq struct {
	tune tuning.Tuning
	resp chan error
}

func (r configureReq) apply(e *Engine) {
	err := e.state.Reconfigure(r.tune)
	if err == nil {
		e.logger.Printf("[engine] policy reconfigured")
		e.publishSnapshot()
	}
	r.resp <- err
}

// Configure swaps the live policy data. Operator surface, not a wire op.
func (e *Engine) Configure(ctx context.Context, tune tuning.Tuning) error {
	req := configureReq{tune: tune, resp: make(chan error, 1)}
	if err := e.submit(ctx, req); err != nil {
		return err
	}
	select {
	case err := <-req.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type snapshotReq struct {
	resp chan *core.Snapshot
}

func (r snapshotReq) apply(e *Engine) { r.resp <- e.state.Export() }

func (e *Engine) Snapshot(ctx context.Context) (*core.Snapshot, error) {
	req := snapshotReq{resp: make(chan *core.Snapshot, 1)}
	if err := e.submit(ctx, req); err != nil {
		return nil, err
	}
	select {
	case s := <-req.resp:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
