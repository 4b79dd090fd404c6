package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func TestGenerateAndParseToken(t *testing.T) {
	payload := &Payload{
		UserID:   "user-123",
		Username: "alice",
	}

	tokenString, err := GenerateToken(payload, testSecret, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	parsed, err := ParseToken(tokenString, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-123", parsed.UserID)
	assert.Equal(t, "alice", parsed.Username)
	assert.Equal(t, TokenIssuer, parsed.Issuer)
}

func TestParseTokenWrongSecret(t *testing.T) {
	tokenString, err := GenerateToken(&Payload{UserID: "user-123"}, testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(tokenString, "a-different-secret")
	assert.Error(t, err)
}

func TestParseTokenExpired(t *testing.T) {
	tokenString, err := GenerateToken(&Payload{UserID: "user-123"}, testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(tokenString, testSecret)
	assert.Error(t, err)
}

func TestParseTokenGarbage(t *testing.T) {
	_, err := ParseToken("not.a.token", testSecret)
	assert.Error(t, err)
}
