package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quillwiki/quill/internal/keyValStore"
)

// NewKeyValStore opens a throwaway engine in a temp dir, closed with the
// test.
func NewKeyValStore(t testing.TB) *keyValStore.KeyValStore {
	t.Helper()
	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Paths:         []string{t.TempDir()},
		MinimumFreeGB: 0,
	})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}
