package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher(t *testing.T) {
	h, err := NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	hash, err := h.Hash("P@ssw0rd1")
	require.NoError(t, err)
	assert.NotEqual(t, "P@ssw0rd1", hash)
	assert.True(t, h.Verify("P@ssw0rd1", hash))
	assert.False(t, h.Verify("P@ssw0rd2", hash))

	t.Run("same password hashes differently", func(t *testing.T) {
		again, err := h.Hash("P@ssw0rd1")
		require.NoError(t, err)
		assert.NotEqual(t, hash, again)
	})

	t.Run("hash of one user never verifies another password", func(t *testing.T) {
		other, err := h.Hash("correct horse battery")
		require.NoError(t, err)
		assert.False(t, h.Verify("P@ssw0rd1", other))
		assert.False(t, h.Verify("correct horse battery", hash))
	})

	t.Run("empty hash never verifies", func(t *testing.T) {
		assert.False(t, h.Verify("P@ssw0rd1", ""))
		assert.False(t, h.Verify("", ""))
	})

	t.Run("policy", func(t *testing.T) {
		_, err := h.Hash("short")
		assert.ErrorIs(t, err, ErrWeakPassword)
		_, err = h.Hash(strings.Repeat("a", MaxPasswordBytes+1))
		assert.ErrorIs(t, err, ErrWeakPassword)
		_, err = h.Hash(strings.Repeat("a", MaxPasswordBytes))
		assert.NoError(t, err)
	})
}

func TestNewPasswordHasherInvalidCost(t *testing.T) {
	_, err := NewPasswordHasher(bcrypt.MaxCost + 1)
	assert.Error(t, err)
}
