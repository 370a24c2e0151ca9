package ratecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
)

type fileSample struct {
	Rate       decimal.Decimal `json:"rate"`
	ObservedAt time.Time       `json:"observed_at"`
}

// FileCache persists the last price sample as a small JSON document.
// Writes go to a temp file that is renamed over the target, so a reader
// sees either the old or the new sample.
type FileCache struct {
	mu   sync.Mutex
	path string
}

var _ domain.RateCache = (*FileCache)(nil)

// NewFileCache creates a cache stored at path
func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

// Path returns the location of the cache file
func (c *FileCache) Path() string {
	return c.path
}

// Load reads the cached sample. A missing file is not an error.
func (c *FileCache) Load(_ context.Context) (*domain.PriceSample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &domain.CacheError{Op: domain.CacheRead, Err: err}
	}

	var fsample fileSample
	if err := json.Unmarshal(data, &fsample); err != nil {
		return nil, &domain.CacheError{Op: domain.CacheRead, Err: fmt.Errorf("failed to decode cache file: %w", err)}
	}

	sample, err := domain.NewPriceSample(fsample.Rate, fsample.ObservedAt)
	if err != nil {
		return nil, &domain.CacheError{Op: domain.CacheRead, Err: err}
	}
	return &sample, nil
}

// Store atomically replaces the cache file
func (c *FileCache) Store(_ context.Context, sample domain.PriceSample) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(fileSample{Rate: sample.RateUSD, ObservedAt: sample.ObservedAt.UTC()})
	if err != nil {
		return &domain.CacheError{Op: domain.CacheWrite, Err: err}
	}

	if err := writeFileAtomic(c.path, data); err != nil {
		return &domain.CacheError{Op: domain.CacheWrite, Err: err}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".rate-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}
