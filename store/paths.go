package store

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// illegalPathChars are replaced with "_" by Sanitize.
const illegalPathChars = `/?<>\:*|"`

// Sanitize replaces any of / ? < > \ : * | " with "_", so a processor name
// can always serve as a directory component.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(illegalPathChars, r) {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Dir returns the on-disk directory for a state store:
// <root>/<app_identity>/<topology_id>/<sanitized(processor_name + "#" + partition)>/
func Dir(root, appIdentity, topologyID, processorName string, partition int32) string {
	leaf := Sanitize(processorName + "#" + strconv.Itoa(int(partition)))
	return filepath.Join(root, appIdentity, topologyID, leaf)
}

const offsetFileName = "offset.bin"

// WriteOffset atomically persists offset as an 8-byte little-endian int64
// into dir/offset.bin: write to a temp file then rename, so a crash never
// leaves a partially written offset file visible.
func WriteOffset(dir string, offset int64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(offset))
	tmp := filepath.Join(dir, offsetFileName+".tmp")
	if err := os.WriteFile(tmp, buf[:], 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, offsetFileName))
}

// ReadOffset reads the persisted offset from dir/offset.bin. Returns -1, nil
// if no offset file exists yet.
func ReadOffset(dir string) (int64, error) {
	b, err := os.ReadFile(filepath.Join(dir, offsetFileName))
	if os.IsNotExist(err) {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	if len(b) != 8 {
		return -1, nil
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}
