package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"purgegame/internal/game/core"
	"purgegame/internal/game/engine"
	"purgegame/internal/game/ledger"
	"purgegame/internal/game/tuning"
	"purgegame/internal/persistence/indexdb"
	persistlog "purgegame/internal/persistence/log"
	"purgegame/internal/persistence/snapshot"
	"purgegame/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		gameID     = flag.String("game", "game_1", "game id")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <data>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite audit index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		entropySeed = flag.Int64("entropy_seed", 1337, "entropy sequence seed (stand-in oracle)")
		jackpotWei  = flag.Uint64("coin_jackpot_wei", 0, "coin-side jackpot pool for early milestones")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	gameDir := filepath.Join(*dataDir, "games", *gameID)
	_ = os.MkdirAll(gameDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*dataDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(gameDir)
	}

	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if os.IsNotExist(tuneErr) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		var err error
		idx, err = indexdb.OpenSQLite(filepath.Join(gameDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
	}

	var state *core.GameState
	if snapshotToLoad != "" {
		snap, err := snapshot.Read(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		state, err = core.Restore(tune, snap)
		if err != nil {
			logger.Fatalf("restore snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s level=%d state=%d", filepath.Base(snapshotToLoad), state.Level, state.State)
	} else {
		state = core.NewGameState(tune, time.Now())
	}

	// Stand-in collaborators. A deployment wires real coin/token/entropy
	// backends here; the engine only sees the interfaces.
	coin := ledger.NewMemCoin(*jackpotWei)
	tokens := ledger.NewMemTokens()
	trophy := ledger.NewMemTrophy()
	entropy := ledger.NewMemEntropy(uint64(*entropySeed), true)
	collab := core.Collaborators{Coin: coin, Tokens: tokens, Trophy: trophy, Entropy: entropy}

	ctx, cancel := signalContext()
	defer cancel()

	advLog := persistlog.NewAdvanceLogger(gameDir)
	crdLog := persistlog.NewCreditLogger(gameDir)
	defer advLog.Close()
	defer crdLog.Close()

	journal := multiJournal{a: fileJournal{adv: advLog, crd: crdLog}}
	if idx != nil {
		journal.b = idx
	}

	eng := engine.New(state, collab, engine.Options{
		Journal: journal,
		Logger:  logger,
	})

	// Snapshot writer drains the engine's latest-state channel.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-eng.Snapshots():
				path := filepath.Join(gameDir, "snapshots", fmt.Sprintf("%08d-%d.snap.zst", snap.Level, snap.State))
				if err := snapshot.Write(path, *gameID, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap.Level, snap.State)
				}
			}
		}
	}()

	go func() {
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("engine stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		ctx2, cancel2 := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel2()
		st, err := eng.Status(ctx2, "", nil)
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP purgegame_level Current game level.\n")
		fmt.Fprintf(rw, "# TYPE purgegame_level gauge\n")
		fmt.Fprintf(rw, "purgegame_level{game=%q} %d\n", *gameID, st.Level)

		fmt.Fprintf(rw, "# HELP purgegame_state Current phase state (1=idle 2=purchase 3=purge).\n")
		fmt.Fprintf(rw, "# TYPE purgegame_state gauge\n")
		fmt.Fprintf(rw, "purgegame_state{game=%q} %d\n", *gameID, st.State)

		fmt.Fprintf(rw, "# HELP purgegame_phase_step Sub-step within the state machine.\n")
		fmt.Fprintf(rw, "# TYPE purgegame_phase_step gauge\n")
		fmt.Fprintf(rw, "purgegame_phase_step{game=%q} %d\n", *gameID, st.Step)

		fmt.Fprintf(rw, "# HELP purgegame_pool_wei Prize pool balances in wei.\n")
		fmt.Fprintf(rw, "# TYPE purgegame_pool_wei gauge\n")
		fmt.Fprintf(rw, "purgegame_pool_wei{game=%q,pool=%q} %d\n", *gameID, "current", st.PoolCurrent)
		fmt.Fprintf(rw, "purgegame_pool_wei{game=%q,pool=%q} %d\n", *gameID, "next", st.PoolNext)
		fmt.Fprintf(rw, "purgegame_pool_wei{game=%q,pool=%q} %d\n", *gameID, "carryover", st.PoolCarryover)

		fmt.Fprintf(rw, "# HELP purgegame_price_wei Current mint price in wei.\n")
		fmt.Fprintf(rw, "# TYPE purgegame_price_wei gauge\n")
		fmt.Fprintf(rw, "purgegame_price_wei{game=%q} %d\n", *gameID, st.PriceWei)
	})
	mux.HandleFunc("/v1/ws", ws.NewServer(eng, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(gameDir string) string {
	dir := filepath.Join(gameDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestLevel uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		if i := strings.IndexByte(base, '-'); i >= 0 {
			base = base[:i]
		}
		level, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || level >= bestLevel {
			bestLevel = level
			best = filepath.Join(dir, name)
		}
	}
	return best
}

// fileJournal writes the JSONL journals. These are the source of truth;
// the sqlite index is a lossy secondary.
type fileJournal struct {
	adv *persistlog.AdvanceLogger
	crd *persistlog.CreditLogger
}

func (j fileJournal) Advance(level uint32, state core.Phase, step uint8, digest string) {
	_ = j.adv.WriteAdvance(persistlog.AdvanceEntry{
		TS:     time.Now().Unix(),
		Level:  level,
		State:  state,
		Step:   step,
		Digest: digest,
	})
}

func (j fileJournal) Jackpot(core.JackpotRound) {}

func (j fileJournal) Settlement(uint32, uint16, core.AccountID) {}

func (j fileJournal) Credit(account core.AccountID, amountWei uint64, reason string) {
	_ = j.crd.WriteCredit(persistlog.CreditEntry{
		TS:      time.Now().Unix(),
		Account: account,
		Amount:  amountWei,
		Reason:  reason,
	})
}

func (j fileJournal) Close() error {
	err1 := j.adv.Close()
	err2 := j.crd.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

type multiJournal struct {
	a engine.Journal
	b engine.Journal
}

func (m multiJournal) Advance(level uint32, state core.Phase, step uint8, digest string) {
	if m.a != nil {
		m.a.Advance(level, state, step, digest)
	}
	if m.b != nil {
		m.b.Advance(level, state, step, digest)
	}
}

func (m multiJournal) Jackpot(r core.JackpotRound) {
	if m.a != nil {
		m.a.Jackpot(r)
	}
	if m.b != nil {
		m.b.Jackpot(r)
	}
}

func (m multiJournal) Settlement(level uint32, trait uint16, exterminator core.AccountID) {
	if m.a != nil {
		m.a.Settlement(level, trait, exterminator)
	}
	if m.b != nil {
		m.b.Settlement(level, trait, exterminator)
	}
}

func (m multiJournal) Credit(account core.AccountID, amountWei uint64, reason string) {
	if m.a != nil {
		m.a.Credit(account, amountWei, reason)
	}
	if m.b != nil {
		m.b.Credit(account, amountWei, reason)
	}
}

func (m multiJournal) Close() error {
	var err error
	if m.a != nil {
		err = m.a.Close()
	}
	if m.b != nil {
		if e2 := m.b.Close(); err == nil {
			err = e2
		}
	}
	return err
}
