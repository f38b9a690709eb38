package registry

import (
	"context"
	"errors"
	"iter"
)

// ErrNotFound is returned when a model or index key does not exist.
var ErrNotFound = errors.New("registry: not found")

// IndexEntry is a key-value pair returned by Index.Scan.
type IndexEntry struct {
	Key   string
	Value []byte
}

// Index stores registry metadata. Keys are flat strings; related keys share
// a prefix ending in ':'.
type Index interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Update applies puts then deletes atomically.
	Update(ctx context.Context, puts []IndexEntry, deletes []string) error
	// Scan iterates entries whose key starts with prefix in key order.
	Scan(ctx context.Context, prefix string) iter.Seq2[IndexEntry, error]
	Close() error
}

func put(ctx context.Context, idx Index, key string, value []byte) error {
	return idx.Update(ctx, []IndexEntry{{Key: key, Value: value}}, nil)
}
