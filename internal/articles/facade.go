package articles

import (
	"context"

	"github.com/quillwiki/quill/internal/keyValStore"
	"github.com/quillwiki/quill/pkg/types"
	"github.com/quillwiki/quill/pkg/wikierror"
)

// VerifiedRevisionID is the only path from an untrusted (article id,
// revision number) pair to a RevisionID. It fails with RevisionUnknown
// unless that exact pairing was issued by this store; composing the key
// blindly would let a number that happens to exist under a different
// article resolve to the wrong revision.
func (s *Store) VerifiedRevisionID(_ context.Context, id types.ArticleID, number uint32) (types.RevisionID, error) {
	rev := types.RevisionID{Article: id, Number: number}
	err := s.kv.View(func(txn *keyValStore.Txn) error {
		ok, err := txn.Has(relAuthor, rev.Bytes())
		if err != nil {
			return err
		}
		if !ok {
			return wikierror.RevisionUnknown(uint32(id), number)
		}
		return nil
	})
	if err != nil {
		return types.RevisionID{}, err
	}
	return rev, nil
}

// CurrentRevisionByName bundles the lookups the article display page
// needs. ok is false when the name is unknown or the article has no
// revisions yet; the serving layer renders both as a 404.
func (s *Store) CurrentRevisionByName(ctx context.Context, name string) (types.Article, types.RevisionID, types.Revision, bool, error) {
	id, found, err := s.IDByName(ctx, name)
	if err != nil || !found {
		return types.Article{}, types.RevisionID{}, types.Revision{}, false, err
	}
	revID, revision, ok, err := s.GetCurrentRevision(ctx, id)
	if err != nil || !ok {
		return types.Article{}, types.RevisionID{}, types.Revision{}, false, err
	}
	return types.Article{ID: id, Name: name}, revID, revision, true, nil
}
