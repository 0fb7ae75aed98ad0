// Package storetest holds the property suite every article store backend
// must pass. The embedded key-value backend and the relational backend
// exercise the same suite so their behavior cannot drift apart.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillwiki/quill/internal/articles"
	"github.com/quillwiki/quill/pkg/types"
	"github.com/quillwiki/quill/pkg/wikierror"
)

// Factory builds a fresh, empty backend for one subtest.
type Factory func(t *testing.T) articles.Backend

// RunBackendSuite runs the full contract suite against the given backend.
func RunBackendSuite(t *testing.T, newBackend Factory) {
	t.Run("CreateAndLookup", func(t *testing.T) { testCreateAndLookup(t, newBackend(t)) })
	t.Run("CreateRejectsDuplicates", func(t *testing.T) { testCreateRejectsDuplicates(t, newBackend(t)) })
	t.Run("MonotonicRevisionNumbers", func(t *testing.T) { testMonotonicRevisionNumbers(t, newBackend(t)) })
	t.Run("IdenticalRevisionRejected", func(t *testing.T) { testIdenticalRevisionRejected(t, newBackend(t)) })
	t.Run("ListRevisions", func(t *testing.T) { testListRevisions(t, newBackend(t)) })
	t.Run("RenameAtomicity", func(t *testing.T) { testRenameAtomicity(t, newBackend(t)) })
	t.Run("RenameSuccess", func(t *testing.T) { testRenameSuccess(t, newBackend(t)) })
	t.Run("RevisionLookupStaysInArticle", func(t *testing.T) { testRevisionLookupStaysInArticle(t, newBackend(t)) })
	t.Run("RevisionRoundTrip", func(t *testing.T) { testRevisionRoundTrip(t, newBackend(t)) })
	t.Run("MainPageScenario", func(t *testing.T) { testMainPageScenario(t, newBackend(t)) })
	t.Run("ForEachArticle", func(t *testing.T) { testForEachArticle(t, newBackend(t)) })
	t.Run("CurrentRevisionByName", func(t *testing.T) { testCurrentRevisionByName(t, newBackend(t)) })
	t.Run("RevisionNeedsAllocatedArticle", func(t *testing.T) { testRevisionNeedsAllocatedArticle(t, newBackend(t)) })
}

func testCreateAndLookup(t *testing.T, b articles.Backend) {
	ctx := context.Background()

	exists, err := b.Exists(ctx, "MainPage")
	require.NoError(t, err)
	assert.False(t, exists)

	id, err := b.Create(ctx, "MainPage")
	require.NoError(t, err)

	exists, err = b.Exists(ctx, "MainPage")
	require.NoError(t, err)
	assert.True(t, exists)

	got, ok, err := b.IDByName(ctx, "MainPage")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, got)

	name, err := b.NameByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "MainPage", name)

	// A freshly created article has no revisions: the directory knows the
	// name while the log holds nothing. That is a valid state.
	_, _, ok, err = b.GetCurrentRevision(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = b.GetCurrentContent(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := b.ListRevisions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func testCreateRejectsDuplicates(t *testing.T, b articles.Backend) {
	ctx := context.Background()

	id, err := b.Create(ctx, "Main")
	require.NoError(t, err)

	_, err = b.Create(ctx, "Main")
	require.Error(t, err)
	assert.Equal(t, wikierror.CodeDuplicateArticleName, wikierror.CodeOf(err))

	// The original article is untouched.
	got, ok, err := b.IDByName(ctx, "Main")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func testMonotonicRevisionNumbers(t *testing.T, b articles.Backend) {
	ctx := context.Background()

	id, err := b.Create(ctx, "Counting")
	require.NoError(t, err)

	for want := types.FirstRevisionNumber; want < types.FirstRevisionNumber+5; want++ {
		revID, _, err := b.AddRevision(ctx, id, 1, string(rune('a'+want)))
		require.NoError(t, err)
		assert.Equal(t, id, revID.Article)
		assert.Equal(t, want, revID.Number, "no gaps, no repeats")
	}
}

func testIdenticalRevisionRejected(t *testing.T, b articles.Backend) {
	ctx := context.Background()

	id, err := b.Create(ctx, "NoOp")
	require.NoError(t, err)

	first, _, err := b.AddRevision(ctx, id, 1, "same content")
	require.NoError(t, err)

	_, _, err = b.AddRevision(ctx, id, 1, "same content")
	require.Error(t, err)
	assert.Equal(t, wikierror.CodeIdenticalNewRevision, wikierror.CodeOf(err))

	// No new revision was created.
	entries, err := b.ListRevisions(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, first, entries[0].ID)

	// A different author changes nothing; only content counts.
	_, _, err = b.AddRevision(ctx, id, 2, "same content")
	assert.Equal(t, wikierror.CodeIdenticalNewRevision, wikierror.CodeOf(err))
}

func testListRevisions(t *testing.T, b articles.Backend) {
	ctx := context.Background()

	id, err := b.Create(ctx, "A")
	require.NoError(t, err)

	rev1, _, err := b.AddRevision(ctx, id, 1, "abc")
	require.NoError(t, err)
	rev2, _, err := b.AddRevision(ctx, id, 2, "123")
	require.NoError(t, err)
	rev3, _, err := b.AddRevision(ctx, id, 3, "abc123")
	require.NoError(t, err)

	entries, err := b.ListRevisions(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []types.RevisionID{rev1, rev2, rev3},
		[]types.RevisionID{entries[0].ID, entries[1].ID, entries[2].ID})
	assert.Equal(t, types.UserID(1), entries[0].Meta.Author)
	assert.Equal(t, types.UserID(2), entries[1].Meta.Author)
	assert.Equal(t, types.UserID(3), entries[2].Meta.Author)

	currID, curr, ok, err := b.GetCurrentRevision(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rev3, currID)
	assert.Equal(t, "abc123", curr.Content)
}

func testRenameAtomicity(t *testing.T, b articles.Backend) {
	ctx := context.Background()

	idA, err := b.Create(ctx, "A")
	require.NoError(t, err)
	_, err = b.Create(ctx, "B")
	require.NoError(t, err)

	err = b.ChangeName(ctx, idA, "B")
	require.Error(t, err)
	assert.Equal(t, wikierror.CodeDuplicateArticleName, wikierror.CodeOf(err))

	// No partial mutation: both directions still agree on the old name.
	got, ok, err := b.IDByName(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, idA, got)

	name, err := b.NameByID(ctx, idA)
	require.NoError(t, err)
	assert.Equal(t, "A", name)
}

func testRenameSuccess(t *testing.T, b articles.Backend) {
	ctx := context.Background()

	id, err := b.Create(ctx, "A")
	require.NoError(t, err)

	require.NoError(t, b.ChangeName(ctx, id, "B"))

	_, ok, err := b.IDByName(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok, "old name must stop resolving")

	got, ok, err := b.IDByName(ctx, "B")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, got)

	name, err := b.NameByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "B", name)

	// Renaming an article to its own name is not a duplicate.
	require.NoError(t, b.ChangeName(ctx, id, "B"))
}

func testRevisionLookupStaysInArticle(t *testing.T, b articles.Backend) {
	ctx := context.Background()

	idA, err := b.Create(ctx, "A")
	require.NoError(t, err)
	idB, err := b.Create(ctx, "B")
	require.NoError(t, err)

	// Article B has two revisions, article A only one.
	_, _, err = b.AddRevision(ctx, idA, 1, "a1")
	require.NoError(t, err)
	_, _, err = b.AddRevision(ctx, idB, 1, "b1")
	require.NoError(t, err)
	revB2, _, err := b.AddRevision(ctx, idB, 1, "b2")
	require.NoError(t, err)

	// Number 2 exists under B but was never issued under A. Asking for it
	// under A must fail, not return B's data.
	_, err = b.VerifiedRevisionID(ctx, idA, 2)
	require.Error(t, err)
	assert.Equal(t, wikierror.CodeRevisionUnknown, wikierror.CodeOf(err))

	_, err = b.GetRevision(ctx, types.RevisionID{Article: idA, Number: 2})
	require.Error(t, err)
	assert.Equal(t, wikierror.CodeRevisionUnknown, wikierror.CodeOf(err))

	// The verified path hands out the pairing that was issued.
	verified, err := b.VerifiedRevisionID(ctx, idB, 2)
	require.NoError(t, err)
	assert.Equal(t, revB2, verified)
}

func testRevisionRoundTrip(t *testing.T, b articles.Backend) {
	ctx := context.Background()

	id, err := b.Create(ctx, "RoundTrip")
	require.NoError(t, err)

	before := time.Now().UTC()
	revID, meta, err := b.AddRevision(ctx, id, 7, "some content")
	require.NoError(t, err)
	after := time.Now().UTC()

	revision, err := b.GetRevision(ctx, revID)
	require.NoError(t, err)
	assert.Equal(t, "some content", revision.Content)
	assert.Equal(t, types.UserID(7), revision.Author)
	assert.Equal(t, meta.Author, revision.Author)

	assert.False(t, revision.Date.Before(before.Truncate(time.Millisecond)))
	assert.False(t, revision.Date.After(after.Add(time.Millisecond)))
}

func testMainPageScenario(t *testing.T, b articles.Backend) {
	ctx := context.Background()

	id, err := b.Create(ctx, "MainPage")
	require.NoError(t, err)

	rev1, _, err := b.AddRevision(ctx, id, 1, "abc")
	require.NoError(t, err)
	assert.Equal(t, types.RevisionID{Article: id, Number: 1}, rev1)

	rev2, _, err := b.AddRevision(ctx, id, 2, "123")
	require.NoError(t, err)
	assert.Equal(t, types.RevisionID{Article: id, Number: 2}, rev2)

	currID, curr, ok, err := b.GetCurrentRevision(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rev2, currID)
	assert.Equal(t, "123", curr.Content)

	_, _, err = b.AddRevision(ctx, id, 2, "123")
	assert.Equal(t, wikierror.CodeIdenticalNewRevision, wikierror.CodeOf(err))

	currID, _, ok, err = b.GetCurrentRevision(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rev2, currID, "rejected edit must not move the current revision")
}

func testForEachArticle(t *testing.T, b articles.Backend) {
	ctx := context.Background()

	names := []string{"Zebra", "Apple", "Mango"}
	ids := make([]types.ArticleID, 0, len(names))
	for _, name := range names {
		id, err := b.Create(ctx, name)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	collect := func() []types.Article {
		var got []types.Article
		err := b.ForEachArticle(ctx, func(a types.Article) bool {
			got = append(got, a)
			return true
		})
		require.NoError(t, err)
		return got
	}

	got := collect()
	require.Len(t, got, 3)
	// Ascending id order regardless of name order.
	assert.Equal(t, ids[0], got[0].ID)
	assert.Equal(t, ids[1], got[1].ID)
	assert.Equal(t, ids[2], got[2].ID)
	assert.Equal(t, "Zebra", got[0].Name)

	// Restartable: a second walk re-scans and sees the same articles.
	assert.Equal(t, got, collect())

	// Early stop.
	var count int
	err := b.ForEachArticle(ctx, func(types.Article) bool {
		count++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func testCurrentRevisionByName(t *testing.T, b articles.Backend) {
	ctx := context.Background()

	_, _, _, ok, err := b.CurrentRevisionByName(ctx, "Missing")
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := b.Create(ctx, "Visible")
	require.NoError(t, err)

	// Known name, zero revisions: still not displayable.
	_, _, _, ok, err = b.CurrentRevisionByName(ctx, "Visible")
	require.NoError(t, err)
	assert.False(t, ok)

	revID, _, err := b.AddRevision(ctx, id, 1, "hello")
	require.NoError(t, err)

	article, currID, curr, ok, err := b.CurrentRevisionByName(ctx, "Visible")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, article.ID)
	assert.Equal(t, "Visible", article.Name)
	assert.Equal(t, revID, currID)
	assert.Equal(t, "hello", curr.Content)
}

func testRevisionNeedsAllocatedArticle(t *testing.T, b articles.Backend) {
	ctx := context.Background()

	id, err := b.Create(ctx, "Anchor")
	require.NoError(t, err)

	// Ids the directory never handed out must not grow revision logs,
	// the reserved zero id included.
	for _, bogus := range []types.ArticleID{0, id + 1} {
		_, _, err := b.AddRevision(ctx, bogus, 1, "orphan")
		require.Error(t, err)
		assert.Equal(t, wikierror.CodeArticleDataInconsistent, wikierror.CodeOf(err))
	}

	revID, _, err := b.AddRevision(ctx, id, 1, "anchored")
	require.NoError(t, err)
	assert.Equal(t, types.FirstRevisionID(id), revID)
}
