package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Cache stores per-sentence WAV files in one directory.
type Cache struct {
	dir string
}

func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// FileName returns the cache file name for a sentence index.
func FileName(index int) string {
	return fmt.Sprintf("sentence_%d.wav", index)
}

// Save writes wav as sentence_<index>.wav, replacing any earlier file, and
// returns its path. The directory is created on demand.
func (c *Cache) Save(index int, wav []byte) (string, error) {
	if index < 0 {
		return "", fmt.Errorf("invalid sentence index %d", index)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio cache dir: %w", err)
	}

	path := filepath.Join(c.dir, FileName(index))
	tmp := filepath.Join(c.dir, "."+uuid.NewString()+".tmp")

	if err := os.WriteFile(tmp, wav, 0o644); err != nil {
		return "", fmt.Errorf("write audio file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write audio file: %w", err)
	}

	return path, nil
}

// Clear removes the cache directory. A missing directory is not an error.
func (c *Cache) Clear() error {
	if _, err := os.Stat(c.dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("clear audio cache: %w", err)
	}

	return nil
}
