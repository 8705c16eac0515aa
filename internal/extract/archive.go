package extract

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DirArchive writes each raw payload to its own timestamped file.
// Files are write-only from the pipeline's point of view.
type DirArchive struct {
	dir string
}

// NewDirArchive creates an archive rooted at dir. The directory is created on first write.
func NewDirArchive(dir string) *DirArchive {
	return &DirArchive{dir: dir}
}

// FileName returns the archive file name for a payload fetched at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("crypto_data_%s.json", t.UTC().Format("20060102_150405"))
}

// maxNameAttempts bounds the suffixes tried when a name is taken.
const maxNameAttempts = 100

// Save writes payload byte-for-byte. The file appears atomically and never
// replaces an existing archive: a second payload in the same second gets a
// numeric suffix, e.g. crypto_data_20240309_140507_1.json.
func (a *DirArchive) Save(payload []byte, at time.Time) (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	tmp, err := os.CreateTemp(a.dir, ".crypto_data_*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write payload: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close payload: %w", err)
	}

	base := strings.TrimSuffix(FileName(at), ".json")
	for i := 0; i < maxNameAttempts; i++ {
		name := base + ".json"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.json", base, i)
		}
		path := filepath.Join(a.dir, name)

		// Link fails on an existing target where Rename would overwrite it.
		err := os.Link(tmp.Name(), path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("link payload: %w", err)
		}
	}
	return "", fmt.Errorf("no free archive name for %s after %d attempts", base, maxNameAttempts)
}
