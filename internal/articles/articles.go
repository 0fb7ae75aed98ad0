// Package articles implements the versioned article store over the
// embedded key-value engine: a name⇄id directory, an append-only
// per-article revision log keyed by composite (article id, revision
// number) keys, and the read facade the serving layer consumes.
//
// Five relations, mirroring the storage layout of the directory and log:
//
//	articlename_id  name            -> 4-byte article id
//	articleid_name  4-byte id       -> name
//	revid_content   8-byte (id,num) -> content bytes
//	revid_author    8-byte (id,num) -> 4-byte user id
//	revid_date      8-byte (id,num) -> 8-byte timestamp
//
// The directory pair and the three revision relations are only ever
// mutated together inside one engine transaction.
package articles

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quillwiki/quill/internal/keyValStore"
	"github.com/quillwiki/quill/pkg/types"
	"github.com/quillwiki/quill/pkg/wikierror"
)

const (
	relNameID  keyValStore.Relation = "articlename_id"
	relIDName  keyValStore.Relation = "articleid_name"
	relContent keyValStore.Relation = "revid_content"
	relAuthor  keyValStore.Relation = "revid_author"
	relDate    keyValStore.Relation = "revid_date"
)

type Store struct {
	kv  *keyValStore.KeyValStore
	log *logrus.Logger
	now func() time.Time
}

var _ Backend = (*Store)(nil)

func NewStore(kv *keyValStore.KeyValStore, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{
		kv:  kv,
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Exists reports whether an article with the given name exists.
func (s *Store) Exists(_ context.Context, name string) (bool, error) {
	var exists bool
	err := s.kv.View(func(txn *keyValStore.Txn) error {
		var err error
		exists, err = txn.Has(relNameID, []byte(name))
		return err
	})
	return exists, err
}

// IDByName resolves an article name. ok is false for unknown names.
func (s *Store) IDByName(_ context.Context, name string) (types.ArticleID, bool, error) {
	var (
		id types.ArticleID
		ok bool
	)
	err := s.kv.View(func(txn *keyValStore.Txn) error {
		value, err := txn.Get(relNameID, []byte(name))
		if err == keyValStore.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		id, err = types.ArticleIDFromBytes(value)
		if err != nil {
			return err
		}
		ok = true
		return nil
	})
	return id, ok, err
}

// NameByID resolves an id handed out by this store. A miss is corrupted
// state, not a normal not-found: ids are never deleted.
func (s *Store) NameByID(_ context.Context, id types.ArticleID) (string, error) {
	var name string
	err := s.kv.View(func(txn *keyValStore.Txn) error {
		value, err := txn.Get(relIDName, id.Bytes())
		if err == keyValStore.ErrKeyNotFound {
			return wikierror.ArticleDataInconsistent(uint32(id))
		}
		if err != nil {
			return err
		}
		name = string(value)
		return nil
	})
	return name, err
}

// Create allocates the next article id and inserts both directions of the
// name mapping atomically. Duplicate names are rejected here, not left to
// the caller. The id allocation happens inside the same transaction as
// the inserts; the Has probes put the allocated keys into the read set,
// so two racing creators cannot both commit the same id.
func (s *Store) Create(_ context.Context, name string) (types.ArticleID, error) {
	var id types.ArticleID
	err := s.kv.Update(func(txn *keyValStore.Txn) error {
		taken, err := txn.Has(relNameID, []byte(name))
		if err != nil {
			return err
		}
		if taken {
			return wikierror.DuplicateArticleName(name)
		}

		id, err = nextArticleID(txn)
		if err != nil {
			return err
		}
		occupied, err := txn.Has(relIDName, id.Bytes())
		if err != nil {
			return err
		}
		if occupied {
			return fmt.Errorf("allocator handed out live article id %d", id)
		}

		if err := txn.Set(relIDName, id.Bytes(), []byte(name)); err != nil {
			return err
		}
		return txn.Set(relNameID, []byte(name), id.Bytes())
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// nextArticleID returns the next unused article id: the maximum existing
// key plus one, or FirstID for an empty namespace.
func nextArticleID(txn *keyValStore.Txn) (types.ArticleID, error) {
	lastKey, _, err := txn.LastInPrefix(relIDName, nil)
	if err == keyValStore.ErrKeyNotFound {
		return types.ArticleID(types.FirstID), nil
	}
	if err != nil {
		return 0, err
	}
	last, err := types.ArticleIDFromBytes(lastKey)
	if err != nil {
		return 0, err
	}
	return last.Next(), nil
}

// ChangeName renames an article. The id→name update, the removal of the
// old name mapping and the insert of the new one commit together or not
// at all; a failed rename leaves both directions untouched.
func (s *Store) ChangeName(_ context.Context, id types.ArticleID, newName string) error {
	return s.kv.Update(func(txn *keyValStore.Txn) error {
		oldName, err := txn.Get(relIDName, id.Bytes())
		if err == keyValStore.ErrKeyNotFound {
			return wikierror.ArticleDataInconsistent(uint32(id))
		}
		if err != nil {
			return err
		}

		owner, err := txn.Get(relNameID, []byte(newName))
		if err != nil && err != keyValStore.ErrKeyNotFound {
			return err
		}
		if err == nil && !bytes.Equal(owner, id.Bytes()) {
			return wikierror.DuplicateArticleName(newName)
		}

		if err := txn.Set(relIDName, id.Bytes(), []byte(newName)); err != nil {
			return err
		}
		if err := txn.Delete(relNameID, oldName); err != nil {
			return err
		}
		return txn.Set(relNameID, []byte(newName), id.Bytes())
	})
}

// ForEachArticle walks all articles in ascending id order. Every call
// re-scans storage, so the walk is restartable and always fresh.
func (s *Store) ForEachArticle(_ context.Context, fn func(types.Article) bool) error {
	return s.kv.View(func(txn *keyValStore.Txn) error {
		return txn.ScanPrefix(relIDName, nil, func(key, value []byte) (bool, error) {
			id, err := types.ArticleIDFromBytes(key)
			if err != nil {
				return false, err
			}
			return fn(types.Article{ID: id, Name: string(value)}), nil
		})
	})
}
