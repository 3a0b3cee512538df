// Package otp implements an in-memory store for short-lived single-use
// verification codes, keyed by caller-defined strings such as
// "login_otp:<admin-id>" or "elector_otp:<email>".
package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// DefaultTTL is how long a stored code stays valid.
const DefaultTTL = 10 * time.Minute

var (
	// ErrNotFound is returned when no code has been issued for the key, or a
	// previous code was already consumed.
	ErrNotFound = errors.New("no code issued")
	// ErrExpired is returned when the code outlived its TTL. The code is
	// purged; a fresh one must be requested.
	ErrExpired = errors.New("code expired")
	// ErrMismatch is returned when the submitted code is wrong. The stored
	// code is retained so the caller may retry until the TTL runs out.
	ErrMismatch = errors.New("code mismatch")
)

type entry struct {
	code     string
	issuedAt time.Time
}

// Store holds pending verification codes. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// NewStore creates an empty code store with the given TTL. A zero ttl means
// DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stores a code under key, replacing any previous code for that key and
// restarting its TTL.
func (s *Store) Put(key, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{code: code, issuedAt: s.now()}
}

// Issue generates a fresh code, stores it under key, and returns it.
func (s *Store) Issue(key string) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", err
	}
	s.Put(key, code)
	return code, nil
}

// Verify checks the submitted code against the one stored under key. On
// success the code is consumed and cannot be used again. A wrong code leaves
// the stored one in place; an expired code is purged.
func (s *Store) Verify(key, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return ErrNotFound
	}
	if s.now().Sub(e.issuedAt) > s.ttl {
		delete(s.entries, key)
		return ErrExpired
	}
	if e.code != code {
		return ErrMismatch
	}

	delete(s.entries, key)
	return nil
}

// Invalidate removes any pending code for key.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// GenerateCode returns a random 6-digit numeric code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
