package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery 1")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery 1", hash)

	assert.NoError(t, VerifyPassword("correct horse battery 1", hash))
	assert.Error(t, VerifyPassword("wrong password", hash))
}

func TestGenerateTempPassword(t *testing.T) {
	a, err := GenerateTempPassword()
	require.NoError(t, err)
	b, err := GenerateTempPassword()
	require.NoError(t, err)

	assert.Len(t, a, tempPasswordLength)
	assert.NotEqual(t, a, b)

	// Generated passwords must pass our own strength check
	assert.NoError(t, ValidatePasswordStrength(a))
}

func TestValidatePasswordStrength(t *testing.T) {
	cases := []struct {
		password string
		valid    bool
	}{
		{"short1", false},
		{"onlyletters", false},
		{"12345678", false},
		{"letters4nd numbers", true},
		{"Str0ngEnough", true},
	}
	for _, tc := range cases {
		err := ValidatePasswordStrength(tc.password)
		if tc.valid {
			assert.NoError(t, err, tc.password)
		} else {
			assert.Error(t, err, tc.password)
		}
	}
}
