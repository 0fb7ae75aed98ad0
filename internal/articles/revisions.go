package articles

import (
	"context"

	"github.com/quillwiki/quill/internal/keyValStore"
	"github.com/quillwiki/quill/pkg/types"
	"github.com/quillwiki/quill/pkg/wikierror"
)

// GetRevision fetches all data for the given revision id. All three
// relations must hold the key; a partial hit means a multi-relation write
// was torn, which the transaction contract makes unreachable, but it is
// checked anyway and reported as inconsistent data rather than not-found.
func (s *Store) GetRevision(_ context.Context, rev types.RevisionID) (types.Revision, error) {
	var revision types.Revision
	err := s.kv.View(func(txn *keyValStore.Txn) error {
		key := rev.Bytes()

		content, errContent := txn.Get(relContent, key)
		author, errAuthor := txn.Get(relAuthor, key)
		date, errDate := txn.Get(relDate, key)
		for _, err := range []error{errContent, errAuthor, errDate} {
			if err != nil && err != keyValStore.ErrKeyNotFound {
				return err
			}
		}

		missing := 0
		for _, err := range []error{errContent, errAuthor, errDate} {
			if err == keyValStore.ErrKeyNotFound {
				missing++
			}
		}
		switch missing {
		case 0:
		case 3:
			return wikierror.RevisionUnknown(uint32(rev.Article), rev.Number)
		default:
			return wikierror.RevisionDataInconsistent(uint32(rev.Article), rev.Number)
		}

		authorID, err := types.UserIDFromBytes(author)
		if err != nil {
			return err
		}
		when, err := types.TimeFromBytes(date)
		if err != nil {
			return err
		}
		revision = types.Revision{
			Content: string(content),
			Author:  authorID,
			Date:    when,
		}
		return nil
	})
	return revision, err
}

// GetCurrentRevision derives the current revision of an article: the last
// key in the article's author-relation prefix is the highest revision
// number by construction of the key encoding. ok is false for an article
// with zero revisions, which is a valid state, not an error.
func (s *Store) GetCurrentRevision(_ context.Context, id types.ArticleID) (types.RevisionID, types.Revision, bool, error) {
	var (
		revID    types.RevisionID
		revision types.Revision
		ok       bool
	)
	err := s.kv.View(func(txn *keyValStore.Txn) error {
		key, author, err := txn.LastInPrefix(relAuthor, id.Bytes())
		if err == keyValStore.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		revID, err = types.RevisionIDFromBytes(key)
		if err != nil {
			return err
		}
		authorID, err := types.UserIDFromBytes(author)
		if err != nil {
			return err
		}

		content, err := txn.Get(relContent, key)
		if err == keyValStore.ErrKeyNotFound {
			return wikierror.RevisionDataInconsistent(uint32(revID.Article), revID.Number)
		}
		if err != nil {
			return err
		}
		date, err := txn.Get(relDate, key)
		if err == keyValStore.ErrKeyNotFound {
			return wikierror.RevisionDataInconsistent(uint32(revID.Article), revID.Number)
		}
		if err != nil {
			return err
		}
		when, err := types.TimeFromBytes(date)
		if err != nil {
			return err
		}

		revision = types.Revision{
			Content: string(content),
			Author:  authorID,
			Date:    when,
		}
		ok = true
		return nil
	})
	return revID, revision, ok, err
}

// GetCurrentContent returns just the current content, used by the edit
// page. The content relation shares the revision key space, so its last
// key in the article prefix is the current revision's content.
func (s *Store) GetCurrentContent(_ context.Context, id types.ArticleID) (string, bool, error) {
	var (
		content string
		ok      bool
	)
	err := s.kv.View(func(txn *keyValStore.Txn) error {
		_, value, err := txn.LastInPrefix(relContent, id.Bytes())
		if err == keyValStore.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		content = string(value)
		ok = true
		return nil
	})
	return content, ok, err
}

// ListRevisions returns all revisions of an article in ascending number
// order. Content is omitted; listing should stay cheap for long
// histories. Author and date rows are paired by key equality.
func (s *Store) ListRevisions(_ context.Context, id types.ArticleID) ([]RevisionEntry, error) {
	var entries []RevisionEntry
	err := s.kv.View(func(txn *keyValStore.Txn) error {
		return txn.ScanPrefix(relAuthor, id.Bytes(), func(key, author []byte) (bool, error) {
			revID, err := types.RevisionIDFromBytes(key)
			if err != nil {
				return false, err
			}
			authorID, err := types.UserIDFromBytes(author)
			if err != nil {
				return false, err
			}
			date, err := txn.Get(relDate, key)
			if err == keyValStore.ErrKeyNotFound {
				return false, wikierror.RevisionDataInconsistent(uint32(revID.Article), revID.Number)
			}
			if err != nil {
				return false, err
			}
			when, err := types.TimeFromBytes(date)
			if err != nil {
				return false, err
			}
			entries = append(entries, RevisionEntry{
				ID:   revID,
				Meta: types.RevisionMeta{Author: authorID, Date: when},
			})
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// AddRevision appends a revision with the current time as its date. The
// no-op check, the numbering and the three relation inserts all happen in
// one transaction: history only grows on actual change, and the returned
// number sequence per article is exactly 1, 2, 3, … with no gaps.
func (s *Store) AddRevision(_ context.Context, id types.ArticleID, author types.UserID, content string) (types.RevisionID, types.RevisionMeta, error) {
	var (
		revID types.RevisionID
		meta  types.RevisionMeta
	)
	err := s.kv.Update(func(txn *keyValStore.Txn) error {
		// Revisions only hang off directory-allocated articles. An
		// unknown id here means the caller holds a stale or fabricated
		// handle, which is corrupted state, not a normal not-found.
		known, err := txn.Has(relIDName, id.Bytes())
		if err != nil {
			return err
		}
		if !known {
			return wikierror.ArticleDataInconsistent(uint32(id))
		}

		next := types.FirstRevisionID(id)

		lastKey, _, err := txn.LastInPrefix(relAuthor, id.Bytes())
		if err != nil && err != keyValStore.ErrKeyNotFound {
			return err
		}
		if err == nil {
			current, err := types.RevisionIDFromBytes(lastKey)
			if err != nil {
				return err
			}
			prev, err := txn.Get(relContent, current.Bytes())
			if err == keyValStore.ErrKeyNotFound {
				return wikierror.RevisionDataInconsistent(uint32(current.Article), current.Number)
			}
			if err != nil {
				return err
			}
			if string(prev) == content {
				return wikierror.IdenticalNewRevision()
			}
			next = current.Next()
		}

		// Probing the target key puts it into the transaction's read set,
		// so two concurrent editors racing for the same number conflict at
		// commit instead of silently overwriting each other.
		occupied, err := txn.Has(relAuthor, next.Bytes())
		if err != nil {
			return err
		}
		if occupied {
			return keyValStore.ErrConflict
		}

		date := s.now()
		key := next.Bytes()
		if err := txn.Set(relContent, key, []byte(content)); err != nil {
			return err
		}
		if err := txn.Set(relAuthor, key, author.Bytes()); err != nil {
			return err
		}
		if err := txn.Set(relDate, key, types.TimeToBytes(date)); err != nil {
			return err
		}

		revID = next
		meta = types.RevisionMeta{Author: author, Date: date}
		return nil
	})
	if err != nil {
		return types.RevisionID{}, types.RevisionMeta{}, err
	}
	return revID, meta, nil
}
