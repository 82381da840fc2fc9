package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	ethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store. The chain keeps
// blocks and receipts in the raw key space and the state trie in the trie
// database layered over the same store.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	TrieDB() *triedb.Database
	Close() error
}

// kvDatabase adapts any go-ethereum key-value store.
type kvDatabase struct {
	kv ethdb.KeyValueStore

	once   sync.Once
	trieDB *triedb.Database
}

func (db *kvDatabase) Put(key []byte, value []byte) error {
	return db.kv.Put(key, value)
}

func (db *kvDatabase) Get(key []byte) ([]byte, error) {
	ok, err := db.kv.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return db.kv.Get(key)
}

func (db *kvDatabase) Has(key []byte) (bool, error) {
	return db.kv.Has(key)
}

func (db *kvDatabase) Delete(key []byte) error {
	return db.kv.Delete(key)
}

// TrieDB returns the trie database shared by every trie opened on the store.
// A single instance per store keeps the dirty node cache coherent.
func (db *kvDatabase) TrieDB() *triedb.Database {
	db.once.Do(func() {
		db.trieDB = triedb.NewDatabase(rawdb.NewDatabase(db.kv), triedb.HashDefaults)
	})
	return db.trieDB
}

func (db *kvDatabase) Close() error {
	if db.trieDB != nil {
		if err := db.trieDB.Close(); err != nil {
			return err
		}
	}
	return db.kv.Close()
}

// --- In-Memory DB (for testing) ---

// MemDB is a volatile store used by tests and ephemeral dev nodes.
type MemDB struct {
	kvDatabase
}

func NewMemDB() *MemDB {
	return &MemDB{kvDatabase{kv: memorydb.New()}}
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	kvDatabase
}

// LevelDBOptions tunes the underlying goleveldb instance.
type LevelDBOptions struct {
	CacheMB        int
	OpenFiles      int
	ErrorIfMissing bool
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	return NewLevelDBWithOptions(path, LevelDBOptions{})
}

// NewLevelDBWithOptions opens path applying the supplied tuning options.
func NewLevelDBWithOptions(path string, opts LevelDBOptions) (*LevelDB, error) {
	kv, err := ethleveldb.NewCustom(path, "offerswap/db", func(o *opt.Options) {
		if opts.CacheMB > 0 {
			o.BlockCacheCapacity = opts.CacheMB / 2 * opt.MiB
			o.WriteBuffer = opts.CacheMB / 4 * opt.MiB
		}
		if opts.OpenFiles > 0 {
			o.OpenFilesCacheCapacity = opts.OpenFiles
		}
		o.ErrorIfMissing = opts.ErrorIfMissing
	})
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDB{kvDatabase{kv: kv}}, nil
}
