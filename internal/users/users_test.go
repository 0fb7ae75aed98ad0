package users_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillwiki/quill/internal/testutil"
	"github.com/quillwiki/quill/internal/users"
	"github.com/quillwiki/quill/pkg/types"
	"github.com/quillwiki/quill/pkg/wikierror"
)

func newStore(t testing.TB) *users.Store {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return users.NewStore(testutil.NewKeyValStore(t), log)
}

func TestRegisterAndLookup(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)

	id, err := store.Register(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, types.UserID(types.FirstID), id)

	exists, err = store.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	got, found, err := store.IDByName(ctx, "alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, got)

	name, err := store.NameByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.Register(ctx, "alice", "pw1")
	require.NoError(t, err)

	_, err = store.Register(ctx, "alice", "pw2")
	require.Error(t, err)
	assert.Equal(t, wikierror.CodeUserAlreadyExists, wikierror.CodeOf(err))
}

func TestFirstUserIsAdmin(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first, err := store.Register(ctx, "root", "pw")
	require.NoError(t, err)
	second, err := store.Register(ctx, "guest", "pw")
	require.NoError(t, err)
	assert.Equal(t, first.Next(), second)

	admin, err := store.IsAdmin(ctx, first)
	require.NoError(t, err)
	assert.True(t, admin)

	admin, err = store.IsAdmin(ctx, second)
	require.NoError(t, err)
	assert.False(t, admin)

	// Flags can be granted and revoked later.
	require.NoError(t, store.SetFlag(ctx, second, users.FlagAdmin, true))
	admin, err = store.IsAdmin(ctx, second)
	require.NoError(t, err)
	assert.True(t, admin)

	require.NoError(t, store.SetFlag(ctx, second, users.FlagAdmin, false))
	admin, err = store.IsAdmin(ctx, second)
	require.NoError(t, err)
	assert.False(t, admin)
}

func TestLoginRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	id, err := store.Register(ctx, "alice", "open sesame")
	require.NoError(t, err)

	session, ok, err := store.TryLogin(ctx, "alice", "open sesame")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, session.User)

	user, found, err := store.SessionUser(ctx, session.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, user)

	require.NoError(t, store.DestroySession(ctx, session.ID))
	_, found, err = store.SessionUser(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoginWrongPassword(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.Register(ctx, "alice", "right")
	require.NoError(t, err)

	_, ok, err := store.TryLogin(ctx, "alice", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoginUnknownUser(t *testing.T) {
	store := newStore(t)

	_, _, err := store.TryLogin(context.Background(), "nobody", "pw")
	require.Error(t, err)
	assert.Equal(t, wikierror.CodeUserNotFound, wikierror.CodeOf(err))
}

func TestSessionIDsAreOpaqueAndUnique(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.Register(ctx, "alice", "pw")
	require.NoError(t, err)

	seen := map[users.SessionID]bool{}
	for i := 0; i < 10; i++ {
		session, ok, err := store.TryLogin(ctx, "alice", "pw")
		require.NoError(t, err)
		require.True(t, ok)
		assert.False(t, seen[session.ID])
		seen[session.ID] = true

		// Textual form round-trips.
		parsed, err := users.ParseSessionID(session.ID.String())
		require.NoError(t, err)
		assert.Equal(t, session.ID, parsed)
	}

	_, err = users.ParseSessionID("not base64!!")
	assert.Error(t, err)
	_, err = users.ParseSessionID("c2hvcnQ")
	assert.Error(t, err)
}

func TestCredentialStoredAsHash(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)

	// Two users with the same password must still have distinct
	// credentials thanks to per-user salts; a login as one never works
	// against the other by accident.
	_, err = store.Register(ctx, "bob", "hunter2")
	require.NoError(t, err)

	for _, name := range []string{"alice", "bob"} {
		_, ok, err := store.TryLogin(ctx, name, "hunter2")
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
}
