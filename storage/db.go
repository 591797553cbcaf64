package storage

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned when a key is absent from the store.
var ErrNotFound = errors.New("storage: key not found")

// Reader exposes point lookups and ordered prefix iteration.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	// Iterate walks keys sharing prefix in ascending byte order, starting at
	// the first key >= start (or the first key of the prefix when start is
	// nil). Iteration stops when fn returns false.
	Iterate(prefix, start []byte, fn func(key, value []byte) bool) error
}

// Writer mutates the store.
type Writer interface {
	Put(key []byte, value []byte) error
	Delete(key []byte) error
}

// Store combines reads and writes.
type Store interface {
	Reader
	Writer
}

// Tx is an atomic unit of work. Writes become visible to other readers only
// after Commit. Discard is safe to call after Commit.
type Tx interface {
	Store
	Commit() error
	Discard()
}

// Database is a generic interface for a key-value store.
// This allows the contract host to use any backend (in-memory or persistent).
type Database interface {
	Store
	Begin() (Tx, error)
	Close() // A way to gracefully shut down the database connection.
}

// kv is the method set shared by *leveldb.DB and *leveldb.Transaction.
type kv interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	Has(key []byte, ro *opt.ReadOptions) (bool, error)
	Put(key, value []byte, wo *opt.WriteOptions) error
	Delete(key []byte, wo *opt.WriteOptions) error
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

type store struct {
	backend kv
}

func (s store) Get(key []byte) ([]byte, error) {
	value, err := s.backend.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get: %w", err)
	}
	return value, nil
}

func (s store) Has(key []byte) (bool, error) {
	ok, err := s.backend.Has(key, nil)
	if err != nil {
		return false, fmt.Errorf("storage: has: %w", err)
	}
	return ok, nil
}

func (s store) Put(key []byte, value []byte) error {
	if err := s.backend.Put(key, value, nil); err != nil {
		return fmt.Errorf("storage: put: %w", err)
	}
	return nil
}

func (s store) Delete(key []byte) error {
	if err := s.backend.Delete(key, nil); err != nil {
		return fmt.Errorf("storage: delete: %w", err)
	}
	return nil
}

func (s store) Iterate(prefix, start []byte, fn func(key, value []byte) bool) error {
	rng := util.BytesPrefix(prefix)
	if len(start) > 0 && bytes.Compare(start, rng.Start) > 0 {
		rng.Start = start
	}
	it := s.backend.NewIterator(rng, nil)
	defer it.Release()
	for it.Next() {
		key := append([]byte(nil), it.Key()...)
		value := append([]byte(nil), it.Value()...)
		if !fn(key, value) {
			break
		}
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("storage: iterate: %w", err)
	}
	return nil
}

// --- Persistent DB ---

// LevelDB is a key-value store backed by LevelDB.
type LevelDB struct {
	store
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{store: store{backend: db}, db: db}, nil
}

// --- In-Memory DB (for testing) ---

// NewMemDB returns a LevelDB instance over volatile memory storage.
func NewMemDB() *LevelDB {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		panic(fmt.Sprintf("storage: open memory db: %v", err))
	}
	return &LevelDB{store: store{backend: db}, db: db}
}

// Begin opens a write transaction. Only one transaction may be open at a
// time; concurrent callers block until the active one commits or discards.
func (ldb *LevelDB) Begin() (Tx, error) {
	tr, err := ldb.db.OpenTransaction()
	if err != nil {
		return nil, fmt.Errorf("storage: begin: %w", err)
	}
	return &transaction{store: store{backend: tr}, tr: tr}, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}

type transaction struct {
	store
	tr   *leveldb.Transaction
	done bool
}

func (t *transaction) Commit() error {
	if t.done {
		return errors.New("storage: transaction already finished")
	}
	t.done = true
	if err := t.tr.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

func (t *transaction) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.tr.Discard()
}
