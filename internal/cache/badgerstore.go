package cache

import (
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// badgerEntry is one cached result blob as stored in Badger.
type badgerEntry struct {
	Key       string
	Blob      []byte
	CreatedAt time.Time
}

// BadgerStore keeps cache entries in an embedded BadgerDB instead of flat
// files, for callers that already run a Badger data directory.
type BadgerStore struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// NewBadgerStore opens (or creates) the Badger database at dir.
func NewBadgerStore(dir string, logger arbor.ILogger) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil // Disable default badger logger to use arbor

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger cache: %w", err)
	}

	logger.Debug().
		Str("dir", dir).
		Msg("Badger result cache opened")

	return &BadgerStore{
		store:  store,
		logger: logger,
	}, nil
}

func (s *BadgerStore) Get(key string) ([]byte, bool, error) {
	var entry badgerEntry
	err := s.store.Get(key, &entry)
	if err == badgerhold.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return entry.Blob, true, nil
}

func (s *BadgerStore) Put(key string, blob []byte) error {
	entry := badgerEntry{
		Key:       key,
		Blob:      blob,
		CreatedAt: time.Now(),
	}
	if err := s.store.Upsert(key, &entry); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	s.logger.Debug().
		Str("key", key).
		Int("bytes", len(blob)).
		Msg("Result cached")

	return nil
}

func (s *BadgerStore) Close() error {
	if s.store == nil {
		return nil
	}

	// Compact the value log before shutdown. ErrNoRewrite means there was
	// nothing worth rewriting.
	if err := s.store.Badger().RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
		s.logger.Warn().Err(err).Msg("Value log compaction failed")
	}

	return s.store.Close()
}

var _ Store = (*BadgerStore)(nil)
