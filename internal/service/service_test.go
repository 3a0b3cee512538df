package service

import (
	"context"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JavaBool/votely/internal/auth"
	"github.com/JavaBool/votely/internal/config"
	"github.com/JavaBool/votely/internal/database"
	"github.com/JavaBool/votely/internal/mailer"
	"github.com/JavaBool/votely/internal/otp"
)

// captureSender records outbound mail for assertions.
type captureSender struct {
	mu       sync.Mutex
	messages []mailer.Message
}

func (c *captureSender) Send(msg mailer.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *captureSender) waitForMessages(t *testing.T, n int) []mailer.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.messages) >= n {
			out := make([]mailer.Message, len(c.messages))
			copy(out, c.messages)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d messages, got %d", n, c.count())
	return nil
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// lastCode extracts the most recent verification code from captured mail.
func (c *captureSender) lastCode(t *testing.T) string {
	t.Helper()
	msgs := c.waitForMessages(t, 1)
	body := msgs[len(msgs)-1].Body
	code := codePattern.FindString(body)
	require.NotEmpty(t, code, "no verification code in message body: %q", body)
	return code
}

// stubVerifier is a canned phone verifier.
type stubVerifier struct {
	number string
	err    error
}

func (s *stubVerifier) Verify(_ context.Context, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.number, nil
}

// testEnv wires every service against a temp SQLite database.
type testEnv struct {
	db        *database.Database
	codes     *otp.Store
	sender    *captureSender
	mail      *mailer.Mailer
	tokens    *auth.JWTManager
	verifier  *stubVerifier
	admins    *AdminService
	elections *ElectionService
	electors  *ElectorService
	voting    *VotingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	logger := zap.NewNop()
	codes := otp.NewStore(time.Minute)
	sender := &captureSender{}
	mail := mailer.New(sender, 2, 64, logger)
	t.Cleanup(mail.Close)
	tokens := auth.NewJWTManager("test-secret", time.Hour, 15*time.Minute, "votely-test")
	verifier := &stubVerifier{}

	return &testEnv{
		db:        db,
		codes:     codes,
		sender:    sender,
		mail:      mail,
		tokens:    tokens,
		verifier:  verifier,
		admins:    NewAdminService(db, codes, mail, tokens, logger),
		elections: NewElectionService(db, codes, mail, logger),
		electors:  NewElectorService(db, codes, mail, logger),
		voting:    NewVotingService(db, codes, mail, tokens, verifier, logger),
	}
}

// votingWindow returns an input whose voting window is currently open.
func votingWindow() *ElectionInput {
	now := time.Now()
	return &ElectionInput{
		Title:           "Student Council 2026",
		NominationStart: now.Add(-3 * time.Hour),
		NominationEnd:   now.Add(-2 * time.Hour),
		StartTime:       now.Add(-1 * time.Hour),
		EndTime:         now.Add(2 * time.Hour),
	}
}

// nominationWindow returns an input whose nomination window is currently open.
func nominationWindow() *ElectionInput {
	now := time.Now()
	return &ElectionInput{
		Title:           "Student Council 2026",
		NominationStart: now.Add(-1 * time.Hour),
		NominationEnd:   now.Add(1 * time.Hour),
		StartTime:       now.Add(1 * time.Hour),
		EndTime:         now.Add(3 * time.Hour),
	}
}

// expiredWindow returns an input whose voting window has already closed.
func expiredWindow() *ElectionInput {
	now := time.Now()
	return &ElectionInput{
		Title:           "Student Council 2025",
		NominationStart: now.Add(-5 * time.Hour),
		NominationEnd:   now.Add(-4 * time.Hour),
		StartTime:       now.Add(-3 * time.Hour),
		EndTime:         now.Add(-1 * time.Hour),
	}
}
