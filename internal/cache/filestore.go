package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
)

const entrySuffix = ".json"

// FileStore keeps one digest-named file per key under a backing directory.
// The directory is enumerated once at construction to build an in-memory
// index, so subsequent lookups never scan the directory again.
type FileStore struct {
	dir    string
	logger arbor.ILogger

	mu    sync.RWMutex
	index map[string]struct{}
}

// NewFileStore creates the backing directory if needed and builds the index.
func NewFileStore(dir string, logger arbor.ILogger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate cache directory: %w", err)
	}

	index := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), entrySuffix) {
			continue
		}
		index[strings.TrimSuffix(entry.Name(), entrySuffix)] = struct{}{}
	}

	logger.Debug().
		Str("dir", dir).
		Int("entries", len(index)).
		Msg("Result cache index built")

	return &FileStore{
		dir:    dir,
		logger: logger,
		index:  index,
	}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+entrySuffix)
}

// Get returns the cached blob for key. Keys absent from the index miss
// without touching the filesystem.
func (s *FileStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	_, ok := s.index[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	blob, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		// Deleted out of band since the index was built.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return blob, true, nil
}

// Put writes the blob under key and records it in the index.
func (s *FileStore) Put(key string, blob []byte) error {
	if err := os.WriteFile(s.path(key), blob, 0644); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	s.mu.Lock()
	s.index[key] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug().
		Str("key", key).
		Int("bytes", len(blob)).
		Msg("Result cached")

	return nil
}

// Close is a no-op; the store holds no open handles.
func (s *FileStore) Close() error {
	return nil
}

var _ Store = (*FileStore)(nil)
