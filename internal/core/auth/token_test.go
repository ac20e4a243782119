package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashToken_RoundTrip(t *testing.T) {
	hash, err := HashToken("sk-test-token")

	require.NoError(t, err)
	assert.NotEqual(t, "sk-test-token", hash)
	assert.NoError(t, VerifyToken("sk-test-token", hash))
}

func TestHashToken_Empty(t *testing.T) {
	_, err := HashToken("")

	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestHashToken_TooLong(t *testing.T) {
	long := make([]byte, 80)
	for i := range long {
		long[i] = 'a'
	}

	_, err := HashToken(string(long))

	assert.ErrorIs(t, err, ErrTokenTooLong)
}

func TestVerifyToken_Mismatch(t *testing.T) {
	hash, err := HashToken("sk-test-token")
	require.NoError(t, err)

	assert.ErrorIs(t, VerifyToken("sk-wrong-token", hash), ErrTokenMismatch)
}

func TestVerifyToken_EmptyToken(t *testing.T) {
	assert.ErrorIs(t, VerifyToken("", "whatever"), ErrEmptyToken)
}

func TestParseBearer(t *testing.T) {
	token, err := ParseBearer("Bearer sk-test-token")

	require.NoError(t, err)
	assert.Equal(t, "sk-test-token", token)
}

func TestParseBearer_MissingPrefix(t *testing.T) {
	_, err := ParseBearer("sk-test-token")

	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestParseBearer_EmptyToken(t *testing.T) {
	_, err := ParseBearer("Bearer   ")

	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestPrincipalContext_RoundTrip(t *testing.T) {
	ctx := WithPrincipal(context.Background(), Principal{TokenID: "tok-1", Name: "ci", Authenticated: true})

	p := FromContext(ctx)

	assert.True(t, p.Authenticated)
	assert.Equal(t, "tok-1", p.TokenID)
	assert.Equal(t, "ci", p.Name)
}

func TestPrincipalContext_Missing(t *testing.T) {
	p := FromContext(context.Background())

	assert.False(t, p.Authenticated)
	assert.Empty(t, p.TokenID)
}
