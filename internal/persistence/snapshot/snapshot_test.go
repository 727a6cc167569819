package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"purgegame/internal/game/core"
	"purgegame/internal/game/tuning"
)

func sampleState(t *testing.T) *core.GameState {
	t.Helper()
	g := core.NewGameState(tuning.Defaults(), time.Unix(1_700_000_000, 0))
	if err := g.Purchase(stubTokens{}, "acct_1", 5); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if err := g.Purchase(stubTokens{}, "acct_2", 3); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	return g
}

type stubTokens struct{}

func (stubTokens) MintPlaceholderRange(core.AccountID, uint32) uint64 { return 1 }
func (stubTokens) OwnerOf(uint64) (core.AccountID, bool)              { return "", false }
func (stubTokens) AssignTraits(uint64, [4]uint16)                     {}
func (stubTokens) DecodedTraits(uint64) ([4]uint16, bool)             { return [4]uint16{}, false }
func (stubTokens) FinalizePurchaseCount()                             {}
func (stubTokens) PurchaseCount() uint64                              { return 8 }

func TestWriteReadRoundTrip(t *testing.T) {
	g := sampleState(t)
	before := g.Digest()

	path := filepath.Join(t.TempDir(), "snapshots", "00000001-2.snap.zst")
	if err := Write(path, "game_test", g.Export()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}

	snap, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	restored, err := core.Restore(tuning.Defaults(), snap)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := restored.Digest(); got != before {
		t.Fatalf("digest mismatch: %s vs %s", got, before)
	}
	if restored.MintCount != g.MintCount {
		t.Fatalf("mint count = %d, want %d", restored.MintCount, g.MintCount)
	}
}

func TestReadHeaderOnly(t *testing.T) {
	g := sampleState(t)
	path := filepath.Join(t.TempDir(), "s.snap.zst")
	if err := Write(path, "game_test", g.Export()); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if h.GameID != "game_test" {
		t.Fatalf("game id = %q", h.GameID)
	}
	if h.Level != g.Level || h.State != uint8(g.State) {
		t.Fatalf("header level/state = %d/%d, want %d/%d", h.Level, h.State, g.Level, g.State)
	}
	if h.Version != core.SnapshotVersion {
		t.Fatalf("version = %d", h.Version)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.snap.zst")
	if err := os.WriteFile(path, []byte("not a snapshot"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Fatalf("expected error reading garbage")
	}
}
