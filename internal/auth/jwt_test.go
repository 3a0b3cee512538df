package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JavaBool/votely/internal/database/models"
)

func testAdmin() *models.Admin {
	return &models.Admin{
		ID:                  "admin-1",
		Username:            "alice",
		Email:               "alice@example.com",
		IsSuperAdmin:        true,
		ForceChangePassword: false,
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	m := NewJWTManager("secret", time.Hour, 15*time.Minute, "votely-test")

	token, err := m.GenerateToken(testAdmin())
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.AdminID)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.IsSuperAdmin)
	assert.Equal(t, "votely-test", claims.Issuer)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	m := NewJWTManager("secret", time.Hour, 15*time.Minute, "votely-test")
	other := NewJWTManager("different", time.Hour, 15*time.Minute, "votely-test")

	token, err := m.GenerateToken(testAdmin())
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateExpiredToken(t *testing.T) {
	m := NewJWTManager("secret", -time.Minute, 15*time.Minute, "votely-test")

	token, err := m.GenerateToken(testAdmin())
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.Error(t, err)
}

func TestBallotTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour, 15*time.Minute, "votely-test")

	token, err := m.GenerateBallotToken("elector-1", "election-1")
	require.NoError(t, err)

	claims, err := m.ValidateBallotToken(token)
	require.NoError(t, err)
	assert.Equal(t, "elector-1", claims.ElectorID)
	assert.Equal(t, "election-1", claims.ElectionID)
	assert.NotEmpty(t, claims.ID)
}

func TestBallotTokenSingleUse(t *testing.T) {
	m := NewJWTManager("secret", time.Hour, 15*time.Minute, "votely-test")

	token, err := m.GenerateBallotToken("elector-1", "election-1")
	require.NoError(t, err)

	claims, err := m.ValidateBallotToken(token)
	require.NoError(t, err)

	m.MarkBallotTokenUsed(claims)

	_, err = m.ValidateBallotToken(token)
	assert.Error(t, err, "a spent ballot token must not validate")

	// Other tokens are unaffected
	fresh, err := m.GenerateBallotToken("elector-2", "election-1")
	require.NoError(t, err)
	_, err = m.ValidateBallotToken(fresh)
	assert.NoError(t, err)
}

func TestAdminTokenIsNotABallotToken(t *testing.T) {
	m := NewJWTManager("secret", time.Hour, 15*time.Minute, "votely-test")

	admin, err := m.GenerateToken(testAdmin())
	require.NoError(t, err)

	claims, err := m.ValidateBallotToken(admin)
	// Admin tokens parse but carry no elector binding
	if err == nil {
		assert.Empty(t, claims.ElectorID)
	}
}
