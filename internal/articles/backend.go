package articles

import (
	"context"

	"github.com/quillwiki/quill/pkg/types"
)

// RevisionEntry is one row of an article's history listing.
type RevisionEntry struct {
	ID   types.RevisionID
	Meta types.RevisionMeta
}

// Backend is the capability surface of the versioned article store: the
// name⇄id directory, the append-only revision log and the read facade.
// Two implementations exist, the embedded key-value one in this package
// and the relational one in internal/sqlstore; both satisfy the same
// contract and the same property tests.
type Backend interface {
	// Directory.
	Exists(ctx context.Context, name string) (bool, error)
	IDByName(ctx context.Context, name string) (types.ArticleID, bool, error)
	NameByID(ctx context.Context, id types.ArticleID) (string, error)
	Create(ctx context.Context, name string) (types.ArticleID, error)
	ChangeName(ctx context.Context, id types.ArticleID, newName string) error
	// ForEachArticle walks all articles in ascending id order. Each call
	// re-scans storage; returning false from fn stops the walk.
	ForEachArticle(ctx context.Context, fn func(types.Article) bool) error

	// Revision log.
	GetRevision(ctx context.Context, rev types.RevisionID) (types.Revision, error)
	GetCurrentRevision(ctx context.Context, id types.ArticleID) (types.RevisionID, types.Revision, bool, error)
	GetCurrentContent(ctx context.Context, id types.ArticleID) (string, bool, error)
	ListRevisions(ctx context.Context, id types.ArticleID) ([]RevisionEntry, error)
	AddRevision(ctx context.Context, id types.ArticleID, author types.UserID, content string) (types.RevisionID, types.RevisionMeta, error)

	// Facade.
	VerifiedRevisionID(ctx context.Context, id types.ArticleID, number uint32) (types.RevisionID, error)
	CurrentRevisionByName(ctx context.Context, name string) (types.Article, types.RevisionID, types.Revision, bool, error)
}
