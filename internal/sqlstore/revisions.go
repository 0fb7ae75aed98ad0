package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/quillwiki/quill/internal/articles"
	"github.com/quillwiki/quill/pkg/types"
	"github.com/quillwiki/quill/pkg/wikierror"
)

// AddRevision appends a revision in one transaction: the identical-content
// check, the number allocation and the insert see the same snapshot. A
// concurrent edit of the same article surfaces as a number collision and
// restarts the whole transaction, including the identical check.
func (s *Store) AddRevision(ctx context.Context, id types.ArticleID, author types.UserID, content string) (types.RevisionID, types.RevisionMeta, error) {
	date := s.now().UTC()

	for attempt := 0; attempt < allocRetries; attempt++ {
		var num uint32
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			var exists bool
			err := tx.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM article WHERE id = $1)`, uint32(id),
			).Scan(&exists)
			if err != nil {
				return err
			}
			if !exists {
				return wikierror.ArticleDataInconsistent(uint32(id))
			}

			var current string
			err = tx.QueryRow(ctx,
				`SELECT content FROM revision
				 WHERE article_id = $1 ORDER BY num DESC LIMIT 1`,
				uint32(id),
			).Scan(&current)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			if err == nil && current == content {
				return wikierror.IdenticalNewRevision()
			}

			return tx.QueryRow(ctx,
				`INSERT INTO revision (article_id, num, content, author_id, created)
				 VALUES ($1, (SELECT COALESCE(MAX(num), 0) + 1 FROM revision WHERE article_id = $1), $2, $3, $4)
				 RETURNING num`,
				uint32(id), content, uint32(author), date,
			).Scan(&num)
		})
		if err == nil {
			return types.RevisionID{Article: id, Number: num},
				types.RevisionMeta{Author: author, Date: date}, nil
		}
		if constraintViolated(err, "revision_pkey") {
			continue
		}
		var domain *wikierror.Error
		if errors.As(err, &domain) {
			return types.RevisionID{}, types.RevisionMeta{}, domain
		}
		return types.RevisionID{}, types.RevisionMeta{}, wikierror.Storage(err)
	}
	return types.RevisionID{}, types.RevisionMeta{}, wikierror.Storage(fmt.Errorf("revision number allocation kept conflicting"))
}

func (s *Store) ListRevisions(ctx context.Context, id types.ArticleID) ([]articles.RevisionEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT num, author_id, created FROM revision
		 WHERE article_id = $1 ORDER BY num`,
		uint32(id),
	)
	if err != nil {
		return nil, wikierror.Storage(err)
	}
	defer rows.Close()

	var entries []articles.RevisionEntry
	for rows.Next() {
		var (
			num     uint32
			author  uint32
			created time.Time
		)
		if err := rows.Scan(&num, &author, &created); err != nil {
			return nil, wikierror.Storage(err)
		}
		entries = append(entries, articles.RevisionEntry{
			ID:   types.RevisionID{Article: id, Number: num},
			Meta: types.RevisionMeta{Author: types.UserID(author), Date: created.UTC()},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wikierror.Storage(err)
	}
	return entries, nil
}

// VerifiedRevisionID is the only way a caller-supplied number becomes a
// RevisionID: it checks that the pairing was actually issued.
func (s *Store) VerifiedRevisionID(ctx context.Context, id types.ArticleID, number uint32) (types.RevisionID, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM revision WHERE article_id = $1 AND num = $2)`,
		uint32(id), number,
	).Scan(&exists)
	if err != nil {
		return types.RevisionID{}, wikierror.Storage(err)
	}
	if !exists {
		return types.RevisionID{}, wikierror.RevisionUnknown(uint32(id), number)
	}
	return types.RevisionID{Article: id, Number: number}, nil
}

// CurrentRevisionByName resolves a name straight to its article and
// current revision. Unknown names and articles without revisions both
// report ok=false.
func (s *Store) CurrentRevisionByName(ctx context.Context, name string) (types.Article, types.RevisionID, types.Revision, bool, error) {
	var (
		id      uint32
		num     uint32
		content string
		author  uint32
		created time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT a.id, r.num, r.content, r.author_id, r.created
		 FROM article a
		 JOIN revision r ON r.article_id = a.id
		 WHERE a.name = $1
		 ORDER BY r.num DESC LIMIT 1`,
		name,
	).Scan(&id, &num, &content, &author, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Article{}, types.RevisionID{}, types.Revision{}, false, nil
	}
	if err != nil {
		return types.Article{}, types.RevisionID{}, types.Revision{}, false, wikierror.Storage(err)
	}

	article := types.Article{ID: types.ArticleID(id), Name: name}
	revID := types.RevisionID{Article: article.ID, Number: num}
	rev := types.Revision{Content: content, Author: types.UserID(author), Date: created.UTC()}
	return article, revID, rev, true, nil
}

var _ articles.Backend = (*Store)(nil)
