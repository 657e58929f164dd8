package store

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const snapshotFileName = "data.gob.zst"

// snapshotEntry is the gob-serializable form of a live record, used only for
// the on-disk snapshots of the memory stores (Record's pointer Value field
// doesn't round-trip through gob cleanly without a concrete, always-present
// value).
type snapshotEntry[K any, V any] struct {
	Key         K
	Value       V
	EventTimeMs int64
}

// writeSnapshot persists entries into dir's snapshot file as zstd-compressed
// gob, written to a temp file then renamed so a crash never leaves a
// truncated snapshot visible.
func writeSnapshot[K any, V any](dir string, entries []snapshotEntry[K, V]) error {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(w).Encode(entries); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, snapshotFileName+".tmp")
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, snapshotFileName))
}

// readSnapshot loads dir's snapshot file. A missing file yields nil entries
// and no error.
func readSnapshot[K any, V any](dir string) ([]snapshotEntry[K, V], error) {
	b, err := os.ReadFile(filepath.Join(dir, snapshotFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r, err := zstd.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var entries []snapshotEntry[K, V]
	if err := gob.NewDecoder(r).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}
