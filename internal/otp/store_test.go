package otp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	assert.Len(t, code, 6)
	for _, c := range code {
		assert.True(t, c >= '0' && c <= '9', "code should be numeric, got %q", code)
	}
}

func TestVerifySuccessConsumesCode(t *testing.T) {
	s := NewStore(time.Minute)
	s.Put("login_otp:abc", "123456")

	err := s.Verify("login_otp:abc", "123456")
	require.NoError(t, err)

	// Single use: the same code must not verify twice
	err = s.Verify("login_otp:abc", "123456")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyNotFound(t *testing.T) {
	s := NewStore(time.Minute)
	err := s.Verify("login_otp:missing", "123456")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyMismatchRetainsCode(t *testing.T) {
	s := NewStore(time.Minute)
	s.Put("elector_otp:a@b.c", "654321")

	err := s.Verify("elector_otp:a@b.c", "000000")
	assert.ErrorIs(t, err, ErrMismatch)

	// A wrong guess must not burn the real code
	err = s.Verify("elector_otp:a@b.c", "654321")
	assert.NoError(t, err)
}

func TestVerifyExpiredPurgesCode(t *testing.T) {
	s := NewStore(time.Minute)
	current := time.Now()
	s.now = func() time.Time { return current }

	s.Put("login_otp:abc", "123456")
	current = current.Add(time.Minute + time.Second)

	err := s.Verify("login_otp:abc", "123456")
	assert.ErrorIs(t, err, ErrExpired)

	// Purged on expiry: subsequent attempts see no code at all
	err = s.Verify("login_otp:abc", "123456")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutReplacesCodeAndRestartsTTL(t *testing.T) {
	s := NewStore(time.Minute)
	current := time.Now()
	s.now = func() time.Time { return current }

	s.Put("k", "111111")
	current = current.Add(50 * time.Second)
	s.Put("k", "222222")
	current = current.Add(30 * time.Second)

	assert.ErrorIs(t, s.Verify("k", "111111"), ErrMismatch)
	assert.NoError(t, s.Verify("k", "222222"))
}

func TestIssue(t *testing.T) {
	s := NewStore(time.Minute)
	code, err := s.Issue("k")
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.NoError(t, s.Verify("k", code))
}

func TestInvalidate(t *testing.T) {
	s := NewStore(time.Minute)
	s.Put("k", "123456")
	s.Invalidate("k")
	assert.ErrorIs(t, s.Verify("k", "123456"), ErrNotFound)
}

func TestKeysAreIndependent(t *testing.T) {
	s := NewStore(time.Minute)
	s.Put("a", "111111")
	s.Put("b", "222222")

	require.NoError(t, s.Verify("a", "111111"))
	require.NoError(t, s.Verify("b", "222222"))
}
