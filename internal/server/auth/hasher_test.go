package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestArgon2idHasher_RoundTrip(t *testing.T) {
	h := NewArgon2idHasher()

	hash, err := h.Hash("Secret123!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))
	assert.False(t, h.NeedsUpgrade(hash))

	ok, err := h.Verify("Secret123!", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("secret123!", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2idHasher_SaltsDiffer(t *testing.T) {
	h := NewArgon2idHasher()

	a, err := h.Hash("pw")
	require.NoError(t, err)
	b, err := h.Hash("pw")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestArgon2idHasher_EmptyPassword(t *testing.T) {
	_, err := NewArgon2idHasher().Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestArgon2idHasher_LegacyBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("Secret123!"), bcrypt.MinCost)
	require.NoError(t, err)

	h := NewArgon2idHasher()
	assert.True(t, h.NeedsUpgrade(string(legacy)))

	ok, err := h.Verify("Secret123!", string(legacy))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("nope", string(legacy))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2idHasher_InvalidHashes(t *testing.T) {
	h := NewArgon2idHasher()

	for _, hash := range []string{
		"",
		"plain",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=x$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=999$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=0,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=0,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$",
	} {
		ok, err := h.Verify("pw", hash)
		assert.ErrorIs(t, err, ErrInvalidHash, hash)
		assert.False(t, ok, hash)
	}
}

func TestArgon2idHasher_ZeroCostParamsDoNotPanic(t *testing.T) {
	h := NewArgon2idHasher()

	stored, err := h.Hash("pw")
	require.NoError(t, err)

	for _, zero := range []string{"m", "t"} {
		parts := strings.Split(stored, "$")
		params := strings.Split(parts[3], ",")
		for i, p := range params {
			if strings.HasPrefix(p, zero+"=") {
				params[i] = zero + "=0"
			}
		}
		parts[3] = strings.Join(params, ",")
		bad := strings.Join(parts, "$")

		assert.NotPanics(t, func() {
			ok, err := h.Verify("pw", bad)
			assert.ErrorIs(t, err, ErrInvalidHash, bad)
			assert.False(t, ok, bad)
		})
	}
}
