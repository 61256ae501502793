package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"nixmate/internal/operation"
	"nixmate/pkg/logging"
)

const badgerKeyPrefix = "result/"

// BadgerStore keeps entries in a badger database. Entries are written with a
// badger TTL slightly beyond their logical TTL so the database reclaims them
// even if they are never read again.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a store under dir. An empty dir opens an
// in-memory database, which is what the tests use.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	logging.Debug("Cache", "Opened persistent cache at %q", dir)
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Get(key string) (Entry, bool, error) {
	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read cache entry %q: %w", key, err)
	}
	return entry, true, nil
}

func (s *BadgerStore) Put(entry Entry) error {
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", entry.Key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(badgerKeyPrefix+entry.Key), val)
		if entry.TTL > 0 {
			// badger expiry has second granularity
			e = e.WithTTL(entry.TTL + time.Second)
		}
		return txn.SetEntry(e)
	})
}

func (s *BadgerStore) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(badgerKeyPrefix + key))
	})
}

func (s *BadgerStore) DeleteKind(kind operation.Kind) (int, error) {
	prefix := []byte(badgerKeyPrefix + string(kind))
	var keys [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			if keyHasKind(string(k[len(badgerKeyPrefix):]), kind) {
				keys = append(keys, k)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan cache entries for %s: %w", kind, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete cache entries for %s: %w", kind, err)
	}
	return len(keys), nil
}

func (s *BadgerStore) Len() int {
	n := 0
	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
