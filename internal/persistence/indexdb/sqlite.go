package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"purgegame/internal/game/core"
	"purgegame/internal/game/tuning"
)

// SQLiteIndex is the queryable audit index. Writes go through a single
// goroutine; the JSONL journals remain the source of truth, so a full
// channel drops rather than stalling the engine.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqAdvance reqKind = iota + 1
	reqJackpot
	reqSettlement
	reqCredit
	reqSnapshot
)

type req struct {
	kind reqKind

	advance    advanceRow
	jackpot    core.JackpotRound
	settlement settlementRow
	credit     creditRow
	snapshot   snapshotRow
}

type advanceRow struct {
	TS     string
	Level  uint32
	State  uint8
	Step   uint8
	Digest string
}

type settlementRow struct {
	Level        uint32
	Trait        uint16
	Exterminator string
	RecordedAt   string
}

type creditRow struct {
	TS      string
	Account string
	Amount  uint64
	Reason  string
}

type snapshotRow struct {
	Level      uint32
	State      uint8
	Path       string
	RecordedAt string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Bursty credit writes (payout drains) must never stall the engine.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS advances (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			level INTEGER NOT NULL,
			state INTEGER NOT NULL,
			step INTEGER NOT NULL,
			digest TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_advances_level ON advances(level);`,
		`CREATE TABLE IF NOT EXISTS jackpot_rounds (
			level INTEGER NOT NULL,
			counter INTEGER NOT NULL,
			kind TEXT NOT NULL,
			pool_wei INTEGER NOT NULL,
			remainder_wei INTEGER NOT NULL,
			credits INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (level, counter, kind)
		);`,
		`CREATE TABLE IF NOT EXISTS settlements (
			level INTEGER PRIMARY KEY,
			trait INTEGER NOT NULL,
			exterminator TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS credits (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			account TEXT NOT NULL,
			amount_wei INTEGER NOT NULL,
			reason TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_credits_account ON credits(account);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			level INTEGER NOT NULL,
			state INTEGER NOT NULL,
			path TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (level, state, path)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) send(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
	}
}

func (s *SQLiteIndex) Advance(level uint32, state core.Phase, step uint8, digest string) {
	s.send(req{kind: reqAdvance, advance: advanceRow{
		TS:     time.Now().UTC().Format(time.RFC3339Nano),
		Level:  level,
		State:  uint8(state),
		Step:   step,
		Digest: digest,
	}})
}

func (s *SQLiteIndex) Jackpot(r core.JackpotRound) {
	s.send(req{kind: reqJackpot, jackpot: r})
}

func (s *SQLiteIndex) Settlement(level uint32, trait uint16, exterminator core.AccountID) {
	s.send(req{kind: reqSettlement, settlement: settlementRow{
		Level:        level,
		Trait:        trait,
		Exterminator: string(exterminator),
		RecordedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

func (s *SQLiteIndex) Credit(account core.AccountID, amountWei uint64, reason string) {
	s.send(req{kind: reqCredit, credit: creditRow{
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		Account: string(account),
		Amount:  amountWei,
		Reason:  reason,
	}})
}

func (s *SQLiteIndex) RecordSnapshot(path string, level uint32, state core.Phase) {
	s.send(req{kind: reqSnapshot, snapshot: snapshotRow{
		Level:      level,
		State:      uint8(state),
		Path:       path,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

// UpsertTuning stores the applied policy values as canonical JSON so an
// operator can check which economy a database was produced under.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	digest := hex.EncodeToString(sum[:])

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('tuning_digest',?)`, digest); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('tuning_json',?)`, string(b)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertAdvance, _ := s.db.Prepare(`INSERT INTO advances(ts,level,state,step,digest) VALUES(?,?,?,?,?)`)
	insertJackpot, _ := s.db.Prepare(`INSERT OR REPLACE INTO jackpot_rounds(level,counter,kind,pool_wei,remainder_wei,credits,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertSettlement, _ := s.db.Prepare(`INSERT OR REPLACE INTO settlements(level,trait,exterminator,recorded_at) VALUES(?,?,?,?)`)
	insertCredit, _ := s.db.Prepare(`INSERT INTO credits(ts,account,amount_wei,reason) VALUES(?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(level,state,path,recorded_at) VALUES(?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertAdvance, insertJackpot, insertSettlement, insertCredit, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqAdvance:
			a := r.advance
			if insertAdvance != nil {
				if _, err := tx.Stmt(insertAdvance).Exec(a.TS, int64(a.Level), a.State, a.Step, a.Digest); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqJackpot:
			j := r.jackpot
			raw, _ := json.Marshal(j)
			if insertJackpot != nil {
				if _, err := tx.Stmt(insertJackpot).Exec(
					int64(j.Level),
					int64(j.Counter),
					string(j.Kind),
					int64(j.PoolWei),
					int64(j.RemainderWei),
					len(j.Credits),
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSettlement:
			se := r.settlement
			if insertSettlement != nil {
				if _, err := tx.Stmt(insertSettlement).Exec(int64(se.Level), int64(se.Trait), se.Exterminator, se.RecordedAt); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqCredit:
			c := r.credit
			if insertCredit != nil {
				if _, err := tx.Stmt(insertCredit).Exec(c.TS, c.Account, int64(c.Amount), c.Reason); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(int64(sn.Level), sn.State, sn.Path, sn.RecordedAt); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
