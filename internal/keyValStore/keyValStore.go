// Package keyValStore wraps the badger engine behind the small surface the
// wiki store needs: named relations, point reads/writes, ordered prefix
// scans and atomic multi-relation transactions. All mutation goes through
// Update; nothing writes to the engine outside a transaction.
package keyValStore

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/quillwiki/quill/internal/metrics"
	"github.com/quillwiki/quill/pkg/wikierror"
)

// Relation names one logical key space. Keys of different relations never
// collide because the relation name is baked into the stored key as a
// prefix, the way sled names its trees.
type Relation string

// ErrKeyNotFound is returned by Txn.Get for absent keys.
var ErrKeyNotFound = errors.New("keyValStore: key not found")

// ErrConflict reports an optimistic-concurrency failure at commit. The
// operation did not happen; callers may retry it.
var ErrConflict = badger.ErrConflict

type StoreConfig struct {
	// Paths contains data directories. Only Paths[0] is used at the moment.
	Paths []string
	// MinimumFreeGB refuses to open the store on a nearly-full disk.
	MinimumFreeGB int
	Logger        *logrus.Logger
	Metrics       *metrics.Metrics
}

type KeyValStore struct {
	config   StoreConfig
	badgerDB *badger.DB
	log      *logrus.Logger
	metrics  *metrics.Metrics
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.New()
	}
	log := config.Logger

	if err := config.checkConfig(); err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	opts := badger.DefaultOptions(config.Paths[0])
	opts.Logger = nil
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger at %s: %w", config.Paths[0], err)
	}

	if err := logDiskUsage(log, config.Paths); err != nil {
		log.Errorf("Error reading disk usage: %v", err)
	}

	return &KeyValStore{
		config:   config,
		badgerDB: db,
		log:      log,
		metrics:  config.Metrics,
	}, nil
}

func (k *KeyValStore) Metrics() *metrics.Metrics {
	return k.metrics
}

// View runs fn in a read-only transaction spanning all relations.
func (k *KeyValStore) View(fn func(txn *Txn) error) error {
	err := k.badgerDB.View(func(btxn *badger.Txn) error {
		return fn(&Txn{btxn: btxn, metrics: k.metrics})
	})
	return k.translate(err)
}

// Update runs fn in one atomic read-write transaction spanning all
// relations. If fn returns a domain error the transaction rolls back and
// the error surfaces unchanged; engine failures come back as storage
// errors. This separation is what lets callers tell "name already taken"
// apart from "the disk failed".
func (k *KeyValStore) Update(fn func(txn *Txn) error) error {
	k.metrics.TransactionsTotal.Inc()
	err := k.badgerDB.Update(func(btxn *badger.Txn) error {
		return fn(&Txn{btxn: btxn, metrics: k.metrics})
	})
	return k.translate(err)
}

func (k *KeyValStore) translate(err error) error {
	if err == nil {
		return nil
	}
	var domain *wikierror.Error
	if errors.As(err, &domain) {
		k.metrics.TxnAbortsTotal.Inc()
		return err
	}
	if errors.Is(err, badger.ErrConflict) {
		k.metrics.TxnConflictsTotal.Inc()
		return wikierror.Storage(fmt.Errorf("transaction conflict: %w", ErrConflict))
	}
	if errors.Is(err, ErrKeyNotFound) {
		// Relation-level absence escaping a transaction untranslated is a
		// bug in the calling store, surface it loudly.
		k.log.Errorf("untranslated key miss escaped a transaction: %v", err)
	}
	return wikierror.Storage(err)
}

// DumpAll streams every raw key/value pair of every relation, in key
// order. Used by backup.
func (k *KeyValStore) DumpAll(fn func(key, value []byte) error) error {
	err := k.badgerDB.View(func(btxn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := btxn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			k.metrics.ReadsTotal.Inc()
			key := item.KeyCopy(nil)
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(key, value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wikierror.Storage(err)
	}
	return nil
}

// RestoreBatch writes raw key/value pairs back into the engine, bypassing
// the relation API. Only backup restore uses it.
func (k *KeyValStore) RestoreBatch(pairs [][2][]byte) error {
	wb := k.badgerDB.NewWriteBatch()
	defer wb.Cancel()

	for _, kv := range pairs {
		k.metrics.WritesTotal.Inc()
		if err := wb.Set(kv[0], kv[1]); err != nil {
			return wikierror.Storage(err)
		}
	}
	if err := wb.Flush(); err != nil {
		return wikierror.Storage(err)
	}
	return nil
}

// Sync flushes pending writes to disk.
func (k *KeyValStore) Sync() error {
	if err := k.badgerDB.Sync(); err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}
	return nil
}

func (k *KeyValStore) Close() error {
	if err := k.badgerDB.Sync(); err != nil {
		k.log.Errorf("Error syncing db on close: %v", err)
	}
	return k.badgerDB.Close()
}

// GarbageCollect reclaims value-log space. Safe to call periodically;
// badger reports ErrNoRewrite when there is nothing to do.
func (k *KeyValStore) GarbageCollect() error {
	err := k.badgerDB.RunValueLogGC(0.5)
	if err != nil && err != badger.ErrNoRewrite {
		return fmt.Errorf("error cleaning db: %w", err)
	}
	return nil
}
