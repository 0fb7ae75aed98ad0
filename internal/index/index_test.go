package index_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillwiki/quill/internal/articles"
	"github.com/quillwiki/quill/internal/index"
	"github.com/quillwiki/quill/internal/testutil"
	"github.com/quillwiki/quill/pkg/types"
)

func newIndex(t *testing.T) *index.Index {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	idx, err := index.New(log, nil)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestSearchByContent(t *testing.T) {
	idx := newIndex(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, idx.AddOrUpdateArticle(1, "MainPage", "welcome to the wiki. edit me", now))
	require.NoError(t, idx.AddOrUpdateArticle(2, "Recipes", "how to cook lentils. takes an hour", now))

	results, err := idx.Search("lentils")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.ArticleID(2), results[0].ID)
	assert.Equal(t, "Recipes", results[0].Title)
	assert.NotEmpty(t, results[0].Snippet)
}

func TestSearchByName(t *testing.T) {
	idx := newIndex(t)

	require.NoError(t, idx.AddOrUpdateArticle(1, "Gardening", "plants need water", time.Now()))

	results, err := idx.Search("gardening")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Gardening", results[0].Title)
	// The query matched the name, not the content, so there is no
	// highlighted fragment; the snippet falls back to the first sentence.
	assert.Equal(t, "plants need water", results[0].Snippet)
}

func TestUpdateReplacesDocument(t *testing.T) {
	idx := newIndex(t)

	require.NoError(t, idx.AddOrUpdateArticle(1, "Pets", "all about dogs", time.Now()))
	require.NoError(t, idx.AddOrUpdateArticle(1, "Pets", "all about cats", time.Now()))

	results, err := idx.Search("dogs")
	require.NoError(t, err)
	assert.Empty(t, results, "stale content must not stay searchable")

	results, err = idx.Search("cats")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.ArticleID(1), results[0].ID)
}

func TestUpdateCoversRenames(t *testing.T) {
	idx := newIndex(t)

	require.NoError(t, idx.AddOrUpdateArticle(1, "OldName", "stable content", time.Now()))
	require.NoError(t, idx.AddOrUpdateArticle(1, "NewName", "stable content", time.Now()))

	results, err := idx.Search("stable")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "NewName", results[0].Title)

	results, err = idx.Search("OldName")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRemoveArticle(t *testing.T) {
	idx := newIndex(t)

	require.NoError(t, idx.AddOrUpdateArticle(1, "Ephemeral", "short lived", time.Now()))
	require.NoError(t, idx.RemoveArticle(1))

	results, err := idx.Search("ephemeral")
	require.NoError(t, err)
	assert.Empty(t, results)

	// Removing again is harmless.
	require.NoError(t, idx.RemoveArticle(1))
}

func TestRebuildFromStore(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	store := articles.NewStore(testutil.NewKeyValStore(t), log)
	idx := newIndex(t)
	ctx := context.Background()

	idA, err := store.Create(ctx, "Alpha")
	require.NoError(t, err)
	_, _, err = store.AddRevision(ctx, idA, 1, "first body")
	require.NoError(t, err)
	_, _, err = store.AddRevision(ctx, idA, 1, "second body")
	require.NoError(t, err)

	// An article without revisions is skipped.
	_, err = store.Create(ctx, "Empty")
	require.NoError(t, err)

	count, err := idx.Rebuild(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	// Only the current revision is searchable.
	results, err := idx.Search("second")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, idA, results[0].ID)

	results, err = idx.Search("first")
	require.NoError(t, err)
	assert.Empty(t, results, "superseded revisions must not be searchable")
}
