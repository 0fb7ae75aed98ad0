package users

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	encoded, err := hashPassword("swordfish")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))
	assert.False(t, strings.Contains(encoded, "swordfish"))

	ok, err := verifyPassword(encoded, "swordfish")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifyPassword(encoded, "Swordfish")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHashSalted(t *testing.T) {
	a, err := hashPassword("same")
	require.NoError(t, err)
	b, err := hashPassword("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=1,p=4$abcd$abcd",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!$abcd",
	} {
		_, err := verifyPassword(encoded, "pw")
		assert.Error(t, err, encoded)
	}
}
