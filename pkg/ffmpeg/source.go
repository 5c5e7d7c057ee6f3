package ffmpeg

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Source is a media input, either an existing file on disk or raw bytes.
// Byte sources are materialized to a temporary file before ffmpeg runs and
// removed again afterwards.
type Source struct {
	path string
	data []byte
}

// FromPath returns a Source backed by an existing file.
func FromPath(path string) Source {
	return Source{path: path}
}

// FromBytes returns a Source backed by an in-memory buffer.
func FromBytes(data []byte) Source {
	return Source{data: data}
}

func (s Source) empty() bool {
	return s.path == "" && len(s.data) == 0
}

// materialize returns a filesystem path for the source and a cleanup func
// that must be called when the path is no longer needed. For path-backed
// sources the cleanup is a no-op.
func (s Source) materialize() (string, func(), error) {
	if s.path != "" {
		return s.path, func() {}, nil
	}
	if len(s.data) == 0 {
		return "", nil, errors.New("ffmpeg: empty source")
	}

	path := tempPath("clip", ".mp4")
	if err := os.WriteFile(path, s.data, 0o600); err != nil {
		return "", nil, fmt.Errorf("ffmpeg: write temp input: %w", err)
	}
	return path, func() { _ = os.Remove(path) }, nil
}

// tempPath builds a collision-resistant temp file path. Multiple handlers may
// process media concurrently against the same filesystem, so a timestamp alone
// is not unique enough.
func tempPath(prefix, ext string) string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	name := fmt.Sprintf("%s_%d_%s%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf[:]), ext)
	return filepath.Join(os.TempDir(), name)
}
