package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

// "test-salt-123" in raw base64.
const testSalt = "dGVzdC1zYWx0LTEyMw"

func TestNewHasherRejectsBadSalt(t *testing.T) {
	_, err := NewHasher("!!not-base64!!")
	assert.ErrorIs(t, err, shared.ErrPasswordHash)

	// Decodes fine but too short.
	_, err = NewHasher("YWJj")
	assert.ErrorIs(t, err, shared.ErrPasswordHash)
}

func TestHashIsDeterministicPerSalt(t *testing.T) {
	hasher, err := NewHasher(testSalt)
	require.NoError(t, err)

	first, err := hasher.Hash("s3cret")
	require.NoError(t, err)
	second, err := hasher.Hash("s3cret")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := NewHasher("b3RoZXItc2FsdC00NTY")
	require.NoError(t, err)
	different, err := other.Hash("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, first, different)
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	hasher, err := NewHasher(testSalt)
	require.NoError(t, err)

	_, err = hasher.Hash("")
	assert.ErrorIs(t, err, shared.ErrPasswordHash)
}

func TestVerify(t *testing.T) {
	hasher, err := NewHasher(testSalt)
	require.NoError(t, err)

	hash, err := hasher.Hash("s3cret")
	require.NoError(t, err)

	assert.NoError(t, hasher.Verify("s3cret", hash))
	assert.ErrorIs(t, hasher.Verify("wrong", hash), shared.ErrInvalidCredentials)
	assert.ErrorIs(t, hasher.Verify("s3cret", "%%garbage%%"), shared.ErrPasswordHash)
}
