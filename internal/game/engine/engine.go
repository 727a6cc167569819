package engine

import (
	"context"
	"log"
	"time"

	"purgegame/internal/game/core"
)

// Journal receives audit records after each successful mutating operation.
// Implementations must not block the engine goroutine for long.
type Journal interface {
	Advance(level uint32, state core.Phase, step uint8, digest string)
	Jackpot(r core.JackpotRound)
	Settlement(level uint32, trait uint16, exterminator core.AccountID)
	Credit(account core.AccountID, amountWei uint64, reason string)
	Close() error
}

// NopJournal discards everything.
type NopJournal struct{}

func (NopJournal) Advance(uint32, core.Phase, uint8, string) {}
func (NopJournal) Jackpot(core.JackpotRound)                 {}
func (NopJournal) Settlement(uint32, uint16, core.AccountID) {}
func (NopJournal) Credit(core.AccountID, uint64, string)     {}
func (NopJournal) Close() error                              { return nil }

// Engine owns the game state on a single goroutine. All operations funnel
// through the inbox; callers get typed responses over per-request channels.
type Engine struct {
	state   *core.GameState
	collab  core.Collaborators
	journal Journal
	logger  *log.Logger
	now     func() time.Time

	inbox chan request
	stop  chan struct{}

	snapshots chan *core.Snapshot
}

type request interface {
	apply(e *Engine)
}

// Options carries the injectable pieces. Nil fields get safe defaults.
type Options struct {
	Journal Journal
	Logger  *log.Logger
	Now     func() time.Time
}

func New(state *core.GameState, collab core.Collaborators, opts Options) *Engine {
	e := &Engine{
		state:     state,
		collab:    collab,
		journal:   opts.Journal,
		logger:    opts.Logger,
		now:       opts.Now,
		inbox:     make(chan request, 256),
		stop:      make(chan struct{}),
		snapshots: make(chan *core.Snapshot, 1),
	}
	if e.journal == nil {
		e.journal = NopJournal{}
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Run processes requests until the context ends or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Printf("[engine] running level=%d state=%d step=%d", e.state.Level, e.state.State, e.state.PhaseStep)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stop:
			return nil
		case req := <-e.inbox:
			req.apply(e)
		}
	}
}

func (e *Engine) Stop() { close(e.stop) }

func (e *Engine) submit(ctx context.Context, req request) error {
	select {
	case e.inbox <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshots exposes the latest-state channel the persistence writer drains.
func (e *Engine) Snapshots() <-chan *core.Snapshot { return e.snapshots }

// publishSnapshot hands the latest export to the writer without blocking,
// replacing a stale unconsumed snapshot if one is waiting.
func (e *Engine) publishSnapshot() {
	snap := e.state.Export()
	select {
	case e.snapshots <- snap:
	default:
		select {
		case <-e.snapshots:
		default:
		}
		select {
		case e.snapshots <- snap:
		default:
		}
	}
}
