package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"purgegame/internal/game/core"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// AdvanceEntry is one state-machine crank in the advance journal.
type AdvanceEntry struct {
	TS     int64      `json:"ts"`
	Level  uint32     `json:"level"`
	State  core.Phase `json:"state"`
	Step   uint8      `json:"step"`
	Digest string     `json:"digest"`
}

// CreditEntry is one wei movement in the credit journal.
type CreditEntry struct {
	TS      int64          `json:"ts"`
	Account core.AccountID `json:"account"`
	Amount  uint64         `json:"amount_wei"`
	Reason  string         `json:"reason"`
}

// AdvanceLogger writes one JSONL entry per successful crank (compressed).
type AdvanceLogger struct{ w *JSONLZstdWriter }

func NewAdvanceLogger(dataDir string) *AdvanceLogger {
	return &AdvanceLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "advances"), "advances")}
}

func (l *AdvanceLogger) WriteAdvance(v AdvanceEntry) error { return l.w.Write(v) }
func (l *AdvanceLogger) Close() error                      { return l.w.Close() }

// CreditLogger writes credit JSONL entries (compressed).
type CreditLogger struct{ w *JSONLZstdWriter }

func NewCreditLogger(dataDir string) *CreditLogger {
	return &CreditLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "credits"), "credits")}
}

func (l *CreditLogger) WriteCredit(v CreditEntry) error { return l.w.Write(v) }
func (l *CreditLogger) Close() error                    { return l.w.Close() }
