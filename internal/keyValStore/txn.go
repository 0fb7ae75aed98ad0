package keyValStore

import (
	"bytes"

	"github.com/dgraph-io/badger/v4"

	"github.com/quillwiki/quill/internal/metrics"
)

// Txn exposes relation-scoped operations inside one engine transaction.
// Handles are only valid for the duration of the View/Update call that
// produced them.
type Txn struct {
	btxn    *badger.Txn
	metrics *metrics.Metrics
}

const relationSeparator = ':'

func relationKey(rel Relation, key []byte) []byte {
	full := make([]byte, 0, len(rel)+1+len(key))
	full = append(full, rel...)
	full = append(full, relationSeparator)
	full = append(full, key...)
	return full
}

// Get returns the value stored under key in rel, or ErrKeyNotFound.
func (t *Txn) Get(rel Relation, key []byte) ([]byte, error) {
	t.metrics.ReadsTotal.Inc()
	item, err := t.btxn.Get(relationKey(rel, key))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Has reports whether key exists in rel. In a read-write transaction the
// lookup also lands in the read set, so a concurrent writer of the same
// key forces a conflict at commit.
func (t *Txn) Has(rel Relation, key []byte) (bool, error) {
	_, err := t.Get(rel, key)
	if err == ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *Txn) Set(rel Relation, key, value []byte) error {
	t.metrics.WritesTotal.Inc()
	return t.btxn.Set(relationKey(rel, key), value)
}

func (t *Txn) Delete(rel Relation, key []byte) error {
	t.metrics.DeletesTotal.Inc()
	return t.btxn.Delete(relationKey(rel, key))
}

// ScanPrefix walks rel's keys that start with prefix, ascending. The
// callback sees keys with the relation prefix stripped; returning false
// stops the scan early.
func (t *Txn) ScanPrefix(rel Relation, prefix []byte, fn func(key, value []byte) (bool, error)) error {
	full := relationKey(rel, prefix)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = full
	it := t.btxn.NewIterator(opts)
	defer it.Close()

	strip := len(rel) + 1
	for it.Seek(full); it.ValidForPrefix(full); it.Next() {
		item := it.Item()
		t.metrics.ReadsTotal.Inc()
		key := item.KeyCopy(nil)
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		cont, err := fn(key[strip:], value)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// LastInPrefix returns the lexicographically last key/value in rel whose
// key starts with prefix, or ErrKeyNotFound when the range is empty. With
// fixed-width big-endian keys that is the numerically largest entry.
func (t *Txn) LastInPrefix(rel Relation, prefix []byte) ([]byte, []byte, error) {
	full := relationKey(rel, prefix)

	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	it := t.btxn.NewIterator(opts)
	defer it.Close()

	// In reverse mode the seek key must sort after every key in range.
	seek := append(bytes.Clone(full), bytes.Repeat([]byte{0xff}, 16)...)
	it.Seek(seek)
	if !it.ValidForPrefix(full) {
		return nil, nil, ErrKeyNotFound
	}

	item := it.Item()
	t.metrics.ReadsTotal.Inc()
	key := item.KeyCopy(nil)
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, nil, err
	}
	return key[len(rel)+1:], value, nil
}
