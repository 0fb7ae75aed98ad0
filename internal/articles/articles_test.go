package articles_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillwiki/quill/internal/articles"
	"github.com/quillwiki/quill/internal/keyValStore"
	"github.com/quillwiki/quill/internal/storetest"
	"github.com/quillwiki/quill/internal/testutil"
	"github.com/quillwiki/quill/pkg/types"
)

func newStore(t testing.TB) *articles.Store {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return articles.NewStore(testutil.NewKeyValStore(t), log)
}

func TestBackendContract(t *testing.T) {
	storetest.RunBackendSuite(t, func(t *testing.T) articles.Backend {
		return newStore(t)
	})
}

func TestCreateAllocatesDenseIDs(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		id, err := store.Create(ctx, fmt.Sprintf("Article%d", i))
		require.NoError(t, err)
		assert.Equal(t, types.ArticleID(types.FirstID)+types.ArticleID(i), id)
	}
}

func TestDataSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	ctx := context.Background()

	open := func() *keyValStore.KeyValStore {
		kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
			Paths:         []string{dir},
			MinimumFreeGB: 0,
		})
		require.NoError(t, err)
		return kv
	}

	kv := open()
	store := articles.NewStore(kv, log)
	id, err := store.Create(ctx, "Persistent")
	require.NoError(t, err)
	revID, _, err := store.AddRevision(ctx, id, 1, "survives restart")
	require.NoError(t, err)
	require.NoError(t, kv.Close())

	kv = open()
	defer kv.Close()
	store = articles.NewStore(kv, log)

	got, ok, err := store.IDByName(ctx, "Persistent")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, got)

	revision, err := store.GetRevision(ctx, revID)
	require.NoError(t, err)
	assert.Equal(t, "survives restart", revision.Content)

	// The allocator resumes after the highest stored id, no reuse.
	next, err := store.Create(ctx, "Another")
	require.NoError(t, err)
	assert.Equal(t, id.Next(), next)
}

func TestConcurrentCreatesNeverShareAnID(t *testing.T) {
	testutil.RequireLong(t)

	store := newStore(t)
	ctx := context.Background()

	const writers = 16
	const perWriter = 25

	var wg sync.WaitGroup
	idCh := make(chan types.ArticleID, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				name := fmt.Sprintf("w%d-a%d", w, i)
				for {
					id, err := store.Create(ctx, name)
					if errors.Is(err, keyValStore.ErrConflict) {
						continue
					}
					require.NoError(t, err)
					idCh <- id
					break
				}
			}
		}(w)
	}
	wg.Wait()
	close(idCh)

	seen := make(map[types.ArticleID]bool)
	for id := range idCh {
		assert.False(t, seen[id], "id %d handed out twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, writers*perWriter)
}

func TestConcurrentEditsNumberEveryRevision(t *testing.T) {
	testutil.RequireLong(t)

	store := newStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "Contended")
	require.NoError(t, err)

	const writers = 8
	const perWriter = 20

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				content := fmt.Sprintf("edit by %d round %d", w, i)
				for {
					_, _, err := store.AddRevision(ctx, id, types.UserID(w+1), content)
					if errors.Is(err, keyValStore.ErrConflict) {
						continue
					}
					require.NoError(t, err)
					break
				}
			}
		}(w)
	}
	wg.Wait()

	entries, err := store.ListRevisions(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, writers*perWriter)
	for i, entry := range entries {
		assert.Equal(t, types.FirstRevisionNumber+uint32(i), entry.ID.Number)
	}
}
