package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JavaBool/votely/internal/auth"
	"github.com/JavaBool/votely/internal/database"
	"github.com/JavaBool/votely/internal/database/models"
	"github.com/JavaBool/votely/internal/mailer"
	"github.com/JavaBool/votely/internal/otp"
	"github.com/JavaBool/votely/internal/phone"
)

const (
	otpKeyElector   = "elector_otp_"
	otpKeyResetVote = "reset_vote:"
)

// DefaultVoteSuccessMessage is shown after a cast ballot unless the elector
// has a custom message on file.
const DefaultVoteSuccessMessage = "Your vote has been recorded. Thank you for voting."

// VotingService implements the voter authentication gateway and the ballot
// casting engine.
type VotingService struct {
	db       *database.Database
	codes    *otp.Store
	mail     *mailer.Mailer
	tokens   *auth.JWTManager
	verifier phone.Verifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewVotingService creates a new voting service
func NewVotingService(db *database.Database, codes *otp.Store, mail *mailer.Mailer, tokens *auth.JWTManager, verifier phone.Verifier, logger *zap.Logger) *VotingService {
	return &VotingService{
		db:       db,
		codes:    codes,
		mail:     mail,
		tokens:   tokens,
		verifier: verifier,
		logger:   logger,
		now:      time.Now,
	}
}

// openElection loads an election and checks that its voting window is open.
func (s *VotingService) openElection(electionID string) (*models.Election, error) {
	if _, err := s.db.CompleteExpiredElections(s.now()); err != nil {
		return nil, fmt.Errorf("failed to reconcile election lifecycle: %w", err)
	}

	e, err := s.db.GetElection(electionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up election: %w", err)
	}
	if e.Status == models.ElectionDraft {
		return nil, ErrNotFound
	}
	if !e.VotingOpen(s.now()) {
		return nil, ErrVotingClosed
	}
	return e, nil
}

// checkEligible rejects electors who are not approved or have already voted.
func checkEligible(e *models.Elector) error {
	if e.Status != models.ElectorApproved {
		return ErrNotEligible
	}
	if e.HasVoted {
		return ErrAlreadyVoted
	}
	return nil
}

// issueBallotToken returns the short-lived single-use token an authenticated
// elector presents when casting.
func (s *VotingService) issueBallotToken(e *models.Elector) (string, error) {
	token, err := s.tokens.GenerateBallotToken(e.ID, e.ElectionID)
	if err != nil {
		return "", fmt.Errorf("failed to issue ballot token: %w", err)
	}
	s.logger.Info("elector authenticated",
		zap.String("election_id", e.ElectionID),
		zap.String("elector_id", e.ID))
	return token, nil
}

// AuthenticatePhone exchanges an external phone-verification token for a
// ballot token. The path must be enabled for the election.
func (s *VotingService) AuthenticatePhone(ctx context.Context, electionID, idToken string) (string, error) {
	e, err := s.openElection(electionID)
	if err != nil {
		return "", err
	}
	if !e.AllowPhoneVoting {
		return "", ErrForbidden
	}

	number, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		if errors.Is(err, phone.ErrInvalidToken) {
			return "", ErrNotEligible
		}
		return "", fmt.Errorf("phone verification failed: %w", err)
	}

	elector, err := s.db.GetElectorByPhone(electionID, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotEligible
		}
		return "", fmt.Errorf("failed to look up elector: %w", err)
	}
	if err := checkEligible(elector); err != nil {
		return "", err
	}

	return s.issueBallotToken(elector)
}

// RequestEmailOTP emails a voting code to the given address. The response is
// identical whether or not the address is on the roll, so the endpoint
// cannot be used to probe it.
func (s *VotingService) RequestEmailOTP(electionID, email string) error {
	if _, err := s.openElection(electionID); err != nil {
		return err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	elector, err := s.db.GetElectorByEmail(electionID, email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up elector: %w", err)
		}
		s.logger.Debug("voting code requested for unknown email", zap.String("election_id", electionID))
		return nil
	}
	if checkEligible(elector) != nil {
		return nil
	}

	code, err := s.codes.Issue(otpKeyElector + email)
	if err != nil {
		return fmt.Errorf("failed to issue voting code: %w", err)
	}
	s.mail.Enqueue(mailer.Message{
		To:      email,
		Subject: "Your voting verification code",
		Body:    fmt.Sprintf("Your voting verification code is %s. It expires in 10 minutes.", code),
	})
	return nil
}

// VerifyEmailOTP completes the email path and returns a ballot token.
func (s *VotingService) VerifyEmailOTP(electionID, email, code string) (string, error) {
	if _, err := s.openElection(electionID); err != nil {
		return "", err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	switch err := s.codes.Verify(otpKeyElector+email, code); {
	case err == nil:
	case errors.Is(err, otp.ErrExpired):
		return "", ErrCodeExpired
	default:
		return "", ErrInvalidCode
	}

	elector, err := s.db.GetElectorByEmail(electionID, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotEligible
		}
		return "", fmt.Errorf("failed to look up elector: %w", err)
	}
	if err := checkEligible(elector); err != nil {
		return "", err
	}

	return s.issueBallotToken(elector)
}

// AuthenticateSecretCode completes the offline secret-code path. The
// identifier may be a phone number or an email; the phone branch is tried
// first. Name is an exact co-factor: all three fields must match one roll
// entry.
func (s *VotingService) AuthenticateSecretCode(electionID, name, identifier, code string) (string, error) {
	if _, err := s.openElection(electionID); err != nil {
		return "", err
	}

	name = strings.TrimSpace(name)
	identifier = strings.TrimSpace(identifier)
	code = strings.TrimSpace(code)
	if name == "" || identifier == "" || code == "" {
		return "", ErrNotEligible
	}

	elector, err := s.db.GetElectorByPhoneNameCode(electionID, identifier, name, code)
	if errors.Is(err, sql.ErrNoRows) {
		elector, err = s.db.GetElectorByEmailNameCode(electionID, strings.ToLower(identifier), name, code)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotEligible
		}
		return "", fmt.Errorf("failed to look up elector: %w", err)
	}
	if err := checkEligible(elector); err != nil {
		return "", err
	}

	return s.issueBallotToken(elector)
}

// CastBallot records the ballot authorized by the token. The token is
// consumed whether running into an already-voted conflict or succeeding;
// the vote, the has_voted flag and the receipt commit atomically.
func (s *VotingService) CastBallot(tokenString, candidateID string) (string, error) {
	claims, err := s.tokens.ValidateBallotToken(tokenString)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	election, err := s.openElection(claims.ElectionID)
	if err != nil {
		return "", err
	}

	elector, err := s.db.GetElector(claims.ElectorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotEligible
		}
		return "", fmt.Errorf("failed to look up elector: %w", err)
	}
	if elector.Status != models.ElectorApproved {
		return "", ErrNotEligible
	}

	candidate, err := s.db.GetCandidate(candidateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", Validation("no such candidate")
		}
		return "", fmt.Errorf("failed to look up candidate: %w", err)
	}
	if candidate.ElectionID != election.ID {
		return "", Validation("candidate does not belong to this election")
	}
	switch candidate.Status {
	case models.CandidateApproved:
	case models.CandidateNOTA:
		if !election.AllowNOTA {
			return "", Validation("none-of-the-above is not enabled for this election")
		}
	default:
		return "", Validation("candidate is not on the ballot")
	}

	vote := &models.Vote{
		ID:          uuid.New().String(),
		ElectionID:  election.ID,
		CandidateID: sql.NullString{String: candidate.ID, Valid: true},
		CreatedAt:   s.now(),
	}
	if err := s.db.CastBallot(vote, elector.ID); err != nil {
		if errors.Is(err, database.ErrAlreadyVoted) {
			s.tokens.MarkBallotTokenUsed(claims)
			return "", ErrAlreadyVoted
		}
		return "", fmt.Errorf("failed to record ballot: %w", err)
	}
	s.tokens.MarkBallotTokenUsed(claims)

	s.logger.Info("ballot cast", zap.String("election_id", election.ID))

	if elector.CustomSuccessMsg.Valid && elector.CustomSuccessMsg.String != "" {
		return elector.CustomSuccessMsg.String, nil
	}
	return DefaultVoteSuccessMessage, nil
}

// RequestResetVoteOTP emails the admin a confirmation code for erasing an
// elector's ballot. Refused when the elector has not voted or the election
// has completed.
func (s *VotingService) RequestResetVoteOTP(admin *models.Admin, electorID string) error {
	elector, election, err := s.resettableElector(electorID)
	if err != nil {
		return err
	}

	code, err := s.codes.Issue(otpKeyResetVote + electorID + ":" + admin.ID)
	if err != nil {
		return fmt.Errorf("failed to issue confirmation code: %w", err)
	}

	s.mail.Enqueue(mailer.Message{
		To:      admin.Email,
		Subject: "Votely confirmation code: vote reset",
		Body: fmt.Sprintf("Your confirmation code for resetting the vote of %s in election %q is %s. It expires in 10 minutes.",
			elector.Name, election.Title, code),
	})
	return nil
}

// ConfirmResetVote verifies the code and erases the elector's ballot so they
// can vote again. A wrong code leaves the vote in place.
func (s *VotingService) ConfirmResetVote(admin *models.Admin, electorID, code string) error {
	if err := s.verifyAdminCode(otpKeyResetVote+electorID+":"+admin.ID, code); err != nil {
		return err
	}

	elector, _, err := s.resettableElector(electorID)
	if err != nil {
		return err
	}
	return s.ResetVote(elector.ElectionID, electorID)
}

// resettableElector loads an elector whose ballot may still be reset.
func (s *VotingService) resettableElector(electorID string) (*models.Elector, *models.Election, error) {
	elector, err := s.db.GetElector(electorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to look up elector: %w", err)
	}
	if !elector.HasVoted {
		return nil, nil, Validation("elector has not voted")
	}

	election, err := s.db.GetElection(elector.ElectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to look up election: %w", err)
	}
	if election.Status == models.ElectionCompleted {
		return nil, nil, Validation("votes cannot be reset after an election completes")
	}
	return elector, election, nil
}

func (s *VotingService) verifyAdminCode(key, code string) error {
	switch err := s.codes.Verify(key, code); {
	case err == nil:
		return nil
	case errors.Is(err, otp.ErrExpired):
		return ErrCodeExpired
	default:
		return ErrInvalidCode
	}
}

// ResetVote erases an elector's ballot so they can vote again. Only possible
// while the election is not completed; once receipts are purged no vote can
// be traced back to an elector.
func (s *VotingService) ResetVote(electionID, electorID string) error {
	e, err := s.db.GetElection(electionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to look up election: %w", err)
	}
	if e.Status == models.ElectionCompleted {
		return Validation("votes cannot be reset after an election completes")
	}

	if err := s.db.ResetVote(electionID, electorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to reset vote: %w", err)
	}

	s.logger.Info("vote reset",
		zap.String("election_id", electionID),
		zap.String("elector_id", electorID))
	return nil
}
