package registry

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerIndex is an Index backed by BadgerDB.
type BadgerIndex struct {
	db *badger.DB
}

// BadgerOptions configures OpenBadger.
type BadgerOptions struct {
	// Dir holds the database files. Required unless InMemory.
	Dir string
	// InMemory runs badger without persistence, for tests.
	InMemory bool
	// Logger receives badger warnings and errors. Nil uses slog.Default.
	Logger *slog.Logger
}

// OpenBadger opens or creates a badger index.
func OpenBadger(opts BadgerOptions) (*BadgerIndex, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("registry: badger dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{log: log.With("component", "badger")})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("registry: open badger: %w", err)
	}
	return &BadgerIndex{db: db}, nil
}

func (b *BadgerIndex) Get(_ context.Context, key string) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (b *BadgerIndex) Update(_ context.Context, puts []IndexEntry, deletes []string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, e := range puts {
			if err := txn.Set([]byte(e.Key), e.Value); err != nil {
				return err
			}
		}
		for _, k := range deletes {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerIndex) Scan(_ context.Context, prefix string) iter.Seq2[IndexEntry, error] {
	p := []byte(prefix)
	return func(yield func(IndexEntry, error) bool) {
		err := b.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = p
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Seek(p); it.ValidForPrefix(p); it.Next() {
				item := it.Item()
				val, err := item.ValueCopy(nil)
				if err != nil {
					if !yield(IndexEntry{}, err) {
						return nil
					}
					continue
				}
				if !yield(IndexEntry{Key: string(item.KeyCopy(nil)), Value: val}, nil) {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield(IndexEntry{}, err)
		}
	}
}

func (b *BadgerIndex) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger output to slog, dropping info and debug.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...any)   { l.log.Error(fmt.Sprintf(f, v...)) }
func (l badgerLogger) Warningf(f string, v ...any) { l.log.Warn(fmt.Sprintf(f, v...)) }
func (badgerLogger) Infof(string, ...any)          {}
func (badgerLogger) Debugf(string, ...any)         {}

var _ Index = (*BadgerIndex)(nil)
