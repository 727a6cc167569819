package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"purgegame/internal/game/core"
)

// Header is the uncompressed-readable first line of a snapshot file, so
// tooling can identify a file without decoding the body.
type Header struct {
	Version int    `json:"version"`
	GameID  string `json:"game_id"`
	Level   uint32 `json:"level"`
	State   uint8  `json:"state"`
}

// Write persists the core state: a JSON header line followed by the gob
// body, zstd-compressed. The write goes through a temp file and rename so
// a crash never leaves a truncated snapshot behind.
func Write(path, gameID string, snap *core.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, gameID, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path, gameID string, snap *core.Snapshot) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(Header{
		Version: snap.Version,
		GameID:  gameID,
		Level:   snap.Level,
		State:   uint8(snap.State),
	})
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

// Read loads a snapshot written by Write.
func Read(path string) (*core.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Skip the header line; the gob body is authoritative.
	_, _ = br.ReadBytes('\n')

	var snap core.Snapshot
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return &snap, nil
}

// ReadHeader decodes only the first line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	return h, nil
}
