// Package sqlstore is the relational implementation of the article store,
// backed by PostgreSQL. It satisfies the same contract as the embedded
// key-value backend and passes the same property suite; the database
// enforces name uniqueness and revision numbering through constraints
// instead of key layout.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/quillwiki/quill/pkg/types"
	"github.com/quillwiki/quill/pkg/wikierror"
)

const schema = `
CREATE TABLE IF NOT EXISTS article (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS revision (
	article_id INTEGER NOT NULL REFERENCES article(id),
	num        INTEGER NOT NULL,
	content    TEXT NOT NULL,
	author_id  INTEGER NOT NULL,
	created    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (article_id, num)
);
`

// uniqueViolation is the SQLSTATE for breaking a unique constraint.
const uniqueViolation = "23505"

// allocRetries bounds how often an id or revision-number allocation is
// retried when a concurrent writer grabs the same slot first.
const allocRetries = 10

type Store struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
	now  func() time.Time
}

// New connects to the database and creates the schema if it is missing.
func New(ctx context.Context, dsn string, log *logrus.Logger) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("error parsing connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error creating schema: %w", err)
	}

	return &Store{pool: pool, log: log, now: time.Now}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Wipe deletes every article and revision. Exists for tests that need an
// empty database; nothing in the wiki calls it.
func (s *Store) Wipe(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE revision, article`); err != nil {
		return wikierror.Storage(err)
	}
	return nil
}

func constraintViolated(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == uniqueViolation &&
		pgErr.ConstraintName == constraint
}

func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM article WHERE name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, wikierror.Storage(err)
	}
	return exists, nil
}

func (s *Store) IDByName(ctx context.Context, name string) (types.ArticleID, bool, error) {
	var id uint32
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM article WHERE name = $1`, name,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wikierror.Storage(err)
	}
	return types.ArticleID(id), true, nil
}

func (s *Store) NameByID(ctx context.Context, id types.ArticleID) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx,
		`SELECT name FROM article WHERE id = $1`, uint32(id),
	).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", wikierror.ArticleDataInconsistent(uint32(id))
	}
	if err != nil {
		return "", wikierror.Storage(err)
	}
	return name, nil
}

func (s *Store) Create(ctx context.Context, name string) (types.ArticleID, error) {
	for attempt := 0; attempt < allocRetries; attempt++ {
		var id uint32
		err := s.pool.QueryRow(ctx,
			`INSERT INTO article (id, name)
			 VALUES ((SELECT COALESCE(MAX(id), 0) + 1 FROM article), $1)
			 RETURNING id`, name,
		).Scan(&id)
		if err == nil {
			return types.ArticleID(id), nil
		}
		if constraintViolated(err, "article_name_key") {
			return 0, wikierror.DuplicateArticleName(name)
		}
		if constraintViolated(err, "article_pkey") {
			// A concurrent creator took the id, allocate again.
			continue
		}
		return 0, wikierror.Storage(err)
	}
	return 0, wikierror.Storage(fmt.Errorf("article id allocation kept conflicting"))
}

func (s *Store) ChangeName(ctx context.Context, id types.ArticleID, newName string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE article SET name = $2 WHERE id = $1`, uint32(id), newName,
	)
	if constraintViolated(err, "article_name_key") {
		return wikierror.DuplicateArticleName(newName)
	}
	if err != nil {
		return wikierror.Storage(err)
	}
	if tag.RowsAffected() == 0 {
		return wikierror.ArticleDataInconsistent(uint32(id))
	}
	return nil
}

func (s *Store) ForEachArticle(ctx context.Context, fn func(types.Article) bool) error {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM article ORDER BY id`)
	if err != nil {
		return wikierror.Storage(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   uint32
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return wikierror.Storage(err)
		}
		if !fn(types.Article{ID: types.ArticleID(id), Name: name}) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return wikierror.Storage(err)
	}
	return nil
}

func (s *Store) GetRevision(ctx context.Context, rev types.RevisionID) (types.Revision, error) {
	var (
		content string
		author  uint32
		created time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT content, author_id, created FROM revision
		 WHERE article_id = $1 AND num = $2`,
		uint32(rev.Article), rev.Number,
	).Scan(&content, &author, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Revision{}, wikierror.RevisionUnknown(uint32(rev.Article), rev.Number)
	}
	if err != nil {
		return types.Revision{}, wikierror.Storage(err)
	}
	return types.Revision{
		Content: content,
		Author:  types.UserID(author),
		Date:    created.UTC(),
	}, nil
}

func (s *Store) GetCurrentRevision(ctx context.Context, id types.ArticleID) (types.RevisionID, types.Revision, bool, error) {
	var (
		num     uint32
		content string
		author  uint32
		created time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT num, content, author_id, created FROM revision
		 WHERE article_id = $1 ORDER BY num DESC LIMIT 1`,
		uint32(id),
	).Scan(&num, &content, &author, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.RevisionID{}, types.Revision{}, false, nil
	}
	if err != nil {
		return types.RevisionID{}, types.Revision{}, false, wikierror.Storage(err)
	}
	return types.RevisionID{Article: id, Number: num}, types.Revision{
		Content: content,
		Author:  types.UserID(author),
		Date:    created.UTC(),
	}, true, nil
}

func (s *Store) GetCurrentContent(ctx context.Context, id types.ArticleID) (string, bool, error) {
	var content string
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM revision
		 WHERE article_id = $1 ORDER BY num DESC LIMIT 1`,
		uint32(id),
	).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wikierror.Storage(err)
	}
	return content, true, nil
}
