package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/kbforge/kbsync/internal/domain"
)

// BadgerCache is a TTL-bound page cache backed by BadgerDB. It sits in
// front of the Help Center API so repeated runs within the TTL window
// do not re-fetch unchanged listing pages.
type BadgerCache struct {
	db  *badger.DB
	ttl time.Duration
}

// Options contains cache configuration options
type Options struct {
	Directory string
	TTL       time.Duration
	InMemory  bool
}

// New creates a new BadgerDB cache
func New(opts Options) (*BadgerCache, error) {
	var badgerOpts badger.Options

	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Directory, 0755); err != nil {
			return nil, err
		}
		badgerOpts = badger.DefaultOptions(opts.Directory)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}

	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}

	return &BadgerCache{db: db, ttl: opts.TTL}, nil
}

var _ domain.Cache = (*BadgerCache)(nil)

// Get retrieves a value from cache
func (c *BadgerCache) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyBytes(key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return domain.ErrCacheMiss
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a value in cache with the configured TTL
func (c *BadgerCache) Set(ctx context.Context, key string, value []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(keyBytes(key), value).WithTTL(c.ttl)
		return txn.SetEntry(e)
	})
}

// Clear removes all entries from the cache
func (c *BadgerCache) Clear() error {
	return c.db.DropAll()
}

// Close releases cache resources
func (c *BadgerCache) Close() error {
	return c.db.Close()
}

// keyBytes hashes the raw key so arbitrary URLs map to fixed-size keys
func keyBytes(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return []byte(hex.EncodeToString(sum[:]))
}
