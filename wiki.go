// Package quill is a versioned wiki store. Articles live in a name⇄id
// directory next to an append-only revision log; every edit becomes a new
// immutable revision and the full history stays readable. The store runs
// embedded by default and can keep articles in PostgreSQL instead.
package quill

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quillwiki/quill/internal/articles"
	"github.com/quillwiki/quill/internal/backup"
	"github.com/quillwiki/quill/internal/index"
	"github.com/quillwiki/quill/internal/keyValStore"
	"github.com/quillwiki/quill/internal/metrics"
	"github.com/quillwiki/quill/internal/sqlstore"
	"github.com/quillwiki/quill/internal/users"
	"github.com/quillwiki/quill/pkg/types"
	"github.com/quillwiki/quill/pkg/wikierror"
	workerpool "github.com/quillwiki/quill/pkg/workerPool"
)

type Config struct {
	// DataDir holds the embedded engine's files. Users, sessions and
	// settings always live here, articles too unless PostgresDSN is set.
	DataDir string
	// MinimumFreeGB refuses startup on a nearly-full disk.
	MinimumFreeGB int
	// GCInterval is how often the engine compacts its value log. Zero
	// disables the background compaction.
	GCInterval time.Duration
	// PostgresDSN moves the article store to the relational backend.
	PostgresDSN string
	// Logger defaults to a stderr logger at info level.
	Logger *logrus.Logger
}

// Wiki is the aggregate handle owning the engine and every component on
// top of it.
type Wiki struct {
	config  Config
	log     *logrus.Logger
	metrics *metrics.Metrics

	kv       *keyValStore.KeyValStore
	sql      *sqlstore.Store
	Articles articles.Backend
	Users    *users.Store
	Index    *index.Index

	pool *workerpool.Pool

	gcStop    chan struct{}
	closeOnce sync.Once
}

func New(ctx context.Context, config Config) (*Wiki, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log := config.Logger
	m := metrics.New()

	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Paths:         []string{config.DataDir},
		MinimumFreeGB: config.MinimumFreeGB,
		Logger:        log,
		Metrics:       m,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening store: %w", err)
	}

	w := &Wiki{
		config:  config,
		log:     log,
		metrics: m,
		kv:      kv,
		Users:   users.NewStore(kv, log),
		gcStop:  make(chan struct{}),
	}

	if config.PostgresDSN != "" {
		w.sql, err = sqlstore.New(ctx, config.PostgresDSN, log)
		if err != nil {
			kv.Close()
			return nil, fmt.Errorf("error connecting to relational backend: %w", err)
		}
		w.Articles = w.sql
	} else {
		w.Articles = articles.NewStore(kv, log)
	}

	w.Index, err = index.New(log, m)
	if err != nil {
		w.closeStores()
		return nil, err
	}
	if _, err := w.Index.Rebuild(ctx, w.Articles); err != nil {
		w.Index.Close()
		w.closeStores()
		return nil, err
	}

	w.pool = workerpool.New(workerpool.Config{Logger: log})

	if config.GCInterval > 0 {
		go w.runGarbageCollection()
	}

	return w, nil
}

func (w *Wiki) runGarbageCollection() {
	ticker := time.NewTicker(w.config.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.kv.GarbageCollect(); err != nil {
				w.log.Errorf("Error during garbage collection: %v", err)
			}
		case <-w.gcStop:
			return
		}
	}
}

func (w *Wiki) closeStores() {
	if w.sql != nil {
		w.sql.Close()
	}
	if err := w.kv.Close(); err != nil {
		w.log.Errorf("Error closing store: %v", err)
	}
}

// Close drains background work and shuts everything down. Safe to call
// twice.
func (w *Wiki) Close() {
	w.closeOnce.Do(func() {
		close(w.gcStop)
		w.pool.Close()
		if err := w.Index.Close(); err != nil {
			w.log.Errorf("Error closing search index: %v", err)
		}
		w.closeStores()
	})
}

// DrainBackgroundWork blocks until queued background jobs, like pending
// search index updates, have finished.
func (w *Wiki) DrainBackgroundWork() {
	w.pool.Drain()
}

// Metrics exposes the instance's metric registry for scraping.
func (w *Wiki) Metrics() *metrics.Metrics {
	return w.metrics
}

// EditArticle appends a revision to the named article, creating the
// article first if it does not exist yet. The search index is updated in
// the background; an edit never waits on it.
func (w *Wiki) EditArticle(ctx context.Context, name string, author types.UserID, content string) (types.RevisionID, error) {
	id, err := w.resolveOrCreate(ctx, name)
	if err != nil {
		return types.RevisionID{}, err
	}

	revID, meta, err := w.Articles.AddRevision(ctx, id, author, content)
	if err != nil {
		return types.RevisionID{}, err
	}

	w.submitIndexUpdate(id, name, content, meta.Date)
	return revID, nil
}

// createRaceRetries bounds how often resolveOrCreate starts over when a
// concurrent editor wins the create and a rename frees the name again
// before the next lookup.
const createRaceRetries = 3

// resolveOrCreate maps a name to an article id, creating the article if
// the name is free. A lost create race restarts the lookup: the winner's
// article is ours. The id is never guessed on a miss; every returned id
// came out of the directory.
func (w *Wiki) resolveOrCreate(ctx context.Context, name string) (types.ArticleID, error) {
	for attempt := 0; ; attempt++ {
		id, found, err := w.Articles.IDByName(ctx, name)
		if err != nil {
			return 0, err
		}
		if found {
			return id, nil
		}

		id, err = w.Articles.Create(ctx, name)
		if err == nil {
			return id, nil
		}
		if !wikierror.HasCode(err, wikierror.CodeDuplicateArticleName) || attempt >= createRaceRetries {
			return 0, err
		}
	}
}

// RenameArticle gives the article a new unique name. History stays
// attached to the id, so nothing else moves.
func (w *Wiki) RenameArticle(ctx context.Context, oldName, newName string) error {
	id, found, err := w.Articles.IDByName(ctx, oldName)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("article %q does not exist", oldName)
	}

	if err := w.Articles.ChangeName(ctx, id, newName); err != nil {
		return err
	}

	content, ok, err := w.Articles.GetCurrentContent(ctx, id)
	if err != nil || !ok {
		return err
	}
	w.submitIndexUpdate(id, newName, content, time.Now().UTC())
	return nil
}

func (w *Wiki) submitIndexUpdate(id types.ArticleID, name, content string, date time.Time) {
	err := w.pool.Submit(workerpool.Job{
		Name: "index-update",
		Run: func() error {
			return w.Index.AddOrUpdateArticle(id, name, content, date)
		},
	})
	if err != nil {
		w.log.WithFields(logrus.Fields{
			"article": name,
			"error":   err,
		}).Warn("Dropped search index update")
	}
}

// Search queries the full-text index over current revisions.
func (w *Wiki) Search(text string) ([]index.Result, error) {
	return w.Index.Search(text)
}

// Backup streams a snapshot of the embedded store to wr. With the
// relational backend the archive covers users, sessions and settings
// only; articles belong to the database's own backup regime.
func (w *Wiki) Backup(wr io.Writer) error {
	return backup.Export(w.kv, w.log, wr)
}

// Restore loads an archive produced by Backup and rebuilds the search
// index from the restored state.
func (w *Wiki) Restore(ctx context.Context, r io.Reader) error {
	if err := backup.Import(w.kv, w.log, r); err != nil {
		return err
	}
	_, err := w.Index.Rebuild(ctx, w.Articles)
	return err
}
