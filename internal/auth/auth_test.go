package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conference-payments/internal/auth"
)

func TestIssueAndParseToken(t *testing.T) {
	p := auth.Principal{UserID: "user-1", Email: "a@example.com", Name: "Alice"}

	raw, err := auth.IssueToken("secret", p, time.Now().Add(time.Hour).Unix())
	require.NoError(t, err)

	got, err := auth.ParseToken("secret", raw)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestParseTokenWrongSecret(t *testing.T) {
	raw, err := auth.IssueToken("secret", auth.Principal{UserID: "user-1"}, 0)
	require.NoError(t, err)

	_, err = auth.ParseToken("other-secret", raw)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParseTokenExpired(t *testing.T) {
	raw, err := auth.IssueToken("secret", auth.Principal{UserID: "user-1"}, time.Now().Add(-time.Minute).Unix())
	require.NoError(t, err)

	_, err = auth.ParseToken("secret", raw)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParseTokenMissingSubject(t *testing.T) {
	raw, err := auth.IssueToken("secret", auth.Principal{Email: "a@example.com"}, 0)
	require.NoError(t, err)

	_, err = auth.ParseToken("secret", raw)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParseTokenGarbage(t *testing.T) {
	_, err := auth.ParseToken("secret", "not-a-jwt")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
