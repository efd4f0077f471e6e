// Package cache is the content-addressable result store. Entries are keyed
// by a digest of the logical request, written once on first successful
// completion, and never invalidated automatically: an entry lives until the
// caller deletes it out of band.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/ternarybob/effluo/internal/models"
)

// Store is a key-to-blob result store. Concurrent processes may share one
// backing store without coordination: writes are last-writer-wins, which is
// safe because the same key always maps to byte-identical content.
type Store interface {
	// Get returns the blob for key, or ok=false when absent.
	Get(key string) (blob []byte, ok bool, err error)

	// Put stores the blob under key.
	Put(key string, blob []byte) error

	// Close releases backend resources.
	Close() error
}

// Key computes the stable digest for a request: sha256 over the canonical
// JSON of (query text, resolved variables, store name, API version). Map
// marshaling sorts keys, so two logically identical requests hash identically
// regardless of variable ordering.
func Key(req *models.ExportRequest) string {
	payload := struct {
		Query      string            `json:"query"`
		Variables  map[string]string `json:"variables,omitempty"`
		Store      string            `json:"store"`
		APIVersion string            `json:"api_version"`
	}{
		Query:      req.Query,
		Variables:  req.Variables,
		Store:      req.StoreName,
		APIVersion: req.APIVersion,
	}

	// Marshaling a struct of strings and a string map cannot fail.
	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Noop is the disabled cache: every lookup misses, every write is dropped,
// and no filesystem access ever occurs.
type Noop struct{}

func (Noop) Get(string) ([]byte, bool, error) { return nil, false, nil }
func (Noop) Put(string, []byte) error         { return nil }
func (Noop) Close() error                     { return nil }

var _ Store = Noop{}
