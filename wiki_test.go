package quill_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	quill "github.com/quillwiki/quill"
	"github.com/quillwiki/quill/internal/articles"
	"github.com/quillwiki/quill/pkg/types"
	"github.com/quillwiki/quill/pkg/wikierror"
)

func newWiki(t *testing.T) *quill.Wiki {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	w, err := quill.New(context.Background(), quill.Config{
		DataDir: t.TempDir(),
		Logger:  log,
	})
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func TestEditCreatesArticleAndNumbersRevisions(t *testing.T) {
	w := newWiki(t)
	ctx := context.Background()

	rev1, err := w.EditArticle(ctx, "MainPage", 1, "abc")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), rev1.Number)

	rev2, err := w.EditArticle(ctx, "MainPage", 2, "123")
	require.NoError(t, err)
	assert.Equal(t, rev1.Article, rev2.Article)
	assert.Equal(t, uint32(2), rev2.Number)

	// Re-submitting the current content changes nothing.
	_, err = w.EditArticle(ctx, "MainPage", 2, "123")
	assert.Equal(t, wikierror.CodeIdenticalNewRevision, wikierror.CodeOf(err))

	article, currID, curr, ok, err := w.Articles.CurrentRevisionByName(ctx, "MainPage")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "MainPage", article.Name)
	assert.Equal(t, rev2, currID)
	assert.Equal(t, "123", curr.Content)
	assert.Equal(t, types.UserID(2), curr.Author)

	entries, err := w.Articles.ListRevisions(ctx, rev1.Article)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

// unresolvableBackend simulates an edit losing the create race over and
// over: the name never resolves, yet every create reports it as taken.
// A rename freeing the name between the duplicate error and the next
// lookup produces exactly this view.
type unresolvableBackend struct {
	articles.Backend
	creates int
}

func (b *unresolvableBackend) IDByName(context.Context, string) (types.ArticleID, bool, error) {
	return 0, false, nil
}

func (b *unresolvableBackend) Create(_ context.Context, name string) (types.ArticleID, error) {
	b.creates++
	return 0, wikierror.DuplicateArticleName(name)
}

func TestEditNeverInventsArticleID(t *testing.T) {
	w := newWiki(t)
	ctx := context.Background()

	real := w.Articles
	racing := &unresolvableBackend{Backend: real}
	w.Articles = racing

	_, err := w.EditArticle(ctx, "Elusive", 1, "body")
	require.Error(t, err)
	assert.Equal(t, wikierror.CodeDuplicateArticleName, wikierror.CodeOf(err))
	assert.Greater(t, racing.creates, 1, "the create must be retried before giving up")

	// Nothing was ever written under the reserved zero id.
	w.Articles = real
	_, _, ok, err := w.Articles.GetCurrentRevision(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEditFeedsSearchIndex(t *testing.T) {
	w := newWiki(t)
	ctx := context.Background()

	_, err := w.EditArticle(ctx, "Gardening", 1, "water the tomatoes daily")
	require.NoError(t, err)
	w.DrainBackgroundWork()

	results, err := w.Search("tomatoes")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Gardening", results[0].Title)
}

func TestRenameKeepsHistoryAndIndex(t *testing.T) {
	w := newWiki(t)
	ctx := context.Background()

	rev, err := w.EditArticle(ctx, "Draft", 1, "work in progress")
	require.NoError(t, err)

	require.NoError(t, w.RenameArticle(ctx, "Draft", "Final"))
	w.DrainBackgroundWork()

	// History stays attached to the id.
	entries, err := w.Articles.ListRevisions(ctx, rev.Article)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	name, err := w.Articles.NameByID(ctx, rev.Article)
	require.NoError(t, err)
	assert.Equal(t, "Final", name)

	results, err := w.Search("progress")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Final", results[0].Title)
}

func TestRenameToTakenNameFails(t *testing.T) {
	w := newWiki(t)
	ctx := context.Background()

	_, err := w.EditArticle(ctx, "A", 1, "a")
	require.NoError(t, err)
	_, err = w.EditArticle(ctx, "B", 1, "b")
	require.NoError(t, err)

	err = w.RenameArticle(ctx, "A", "B")
	assert.Equal(t, wikierror.CodeDuplicateArticleName, wikierror.CodeOf(err))
}

func TestRegistrationToggle(t *testing.T) {
	w := newWiki(t)
	ctx := context.Background()

	enabled, err := w.RegistrationEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled, "registration starts enabled")

	admin, err := w.RegisterUser(ctx, "admin", "pw")
	require.NoError(t, err)
	isAdmin, err := w.Users.IsAdmin(ctx, admin)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	require.NoError(t, w.SetRegistrationEnabled(ctx, false))
	_, err = w.RegisterUser(ctx, "latecomer", "pw")
	assert.Equal(t, wikierror.CodeRegistrationDisabled, wikierror.CodeOf(err))

	require.NoError(t, w.SetRegistrationEnabled(ctx, true))
	_, err = w.RegisterUser(ctx, "latecomer", "pw")
	require.NoError(t, err)
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	src := newWiki(t)
	ctx := context.Background()

	rev, err := src.EditArticle(ctx, "MainPage", 1, "backed up content")
	require.NoError(t, err)
	_, err = src.RegisterUser(ctx, "admin", "pw")
	require.NoError(t, err)

	var archive bytes.Buffer
	require.NoError(t, src.Backup(&archive))

	dst := newWiki(t)
	require.NoError(t, dst.Restore(ctx, bytes.NewReader(archive.Bytes())))

	revision, err := dst.Articles.GetRevision(ctx, rev)
	require.NoError(t, err)
	assert.Equal(t, "backed up content", revision.Content)

	// The restored state is searchable without any new edits.
	results, err := dst.Search("backed")
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Users came along too.
	_, ok, err := dst.Users.TryLogin(ctx, "admin", "pw")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIndexRebuiltOnStartup(t *testing.T) {
	dir := t.TempDir()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	ctx := context.Background()

	w, err := quill.New(ctx, quill.Config{DataDir: dir, Logger: log})
	require.NoError(t, err)
	_, err = w.EditArticle(ctx, "Persistent", 1, "index me after restart")
	require.NoError(t, err)
	w.Close()

	w, err = quill.New(ctx, quill.Config{DataDir: dir, Logger: log})
	require.NoError(t, err)
	defer w.Close()

	results, err := w.Search("restart")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Persistent", results[0].Title)
}
