package service

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JavaBool/votely/internal/database"
	"github.com/JavaBool/votely/internal/database/models"
	"github.com/JavaBool/votely/internal/mailer"
	"github.com/JavaBool/votely/internal/otp"
)

const (
	otpKeyDeleteElection = "delete_election:"
	otpKeyReleaseResults = "release_results:"
)

// NOTAName is the display name of the synthetic none-of-the-above candidate.
const NOTAName = "None of the Above"

// ElectionInput carries the editable fields of an election.
type ElectionInput struct {
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	NominationStart  time.Time `json:"nomination_start"`
	NominationEnd    time.Time `json:"nomination_end"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	ConfigAge        int       `json:"config_age"`
	MinAge           int       `json:"min_age"`
	ConfigPhoto      int       `json:"config_photo"`
	AllowNOTA        bool      `json:"allow_nota"`
	AllowPhoneVoting bool      `json:"allow_phone_voting"`
}

// ElectionService manages election lifecycle, candidates and results
type ElectionService struct {
	db     *database.Database
	codes  *otp.Store
	mail   *mailer.Mailer
	logger *zap.Logger
	now    func() time.Time
}

// NewElectionService creates a new election service
func NewElectionService(db *database.Database, codes *otp.Store, mail *mailer.Mailer, logger *zap.Logger) *ElectionService {
	return &ElectionService{db: db, codes: codes, mail: mail, logger: logger, now: time.Now}
}

func validateElectionInput(in *ElectionInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return Validation("title is required")
	}
	if !in.NominationStart.Before(in.NominationEnd) {
		return Validation("nomination start must be before nomination end")
	}
	if in.StartTime.Before(in.NominationEnd) {
		return Validation("voting must not start before nominations end")
	}
	if !in.StartTime.Before(in.EndTime) {
		return Validation("voting start must be before voting end")
	}
	if in.ConfigAge < models.FieldHidden || in.ConfigAge > models.FieldRequired {
		return Validation("invalid age field configuration")
	}
	if in.ConfigPhoto < models.FieldHidden || in.ConfigPhoto > models.FieldRequired {
		return Validation("invalid photo field configuration")
	}
	if in.MinAge < 0 {
		return Validation("minimum age cannot be negative")
	}
	return nil
}

// Create creates a new election in draft status.
func (s *ElectionService) Create(in *ElectionInput) (*models.Election, error) {
	if err := validateElectionInput(in); err != nil {
		return nil, err
	}

	e := &models.Election{
		ID:               uuid.New().String(),
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		NominationStart:  in.NominationStart,
		NominationEnd:    in.NominationEnd,
		StartTime:        in.StartTime,
		EndTime:          in.EndTime,
		ConfigAge:        in.ConfigAge,
		MinAge:           in.MinAge,
		ConfigPhoto:      in.ConfigPhoto,
		Status:           models.ElectionDraft,
		AllowNOTA:        in.AllowNOTA,
		AllowPhoneVoting: in.AllowPhoneVoting,
		CreatedAt:        s.now(),
	}
	if err := s.db.CreateElection(e); err != nil {
		return nil, fmt.Errorf("failed to create election: %w", err)
	}
	if err := s.syncNOTA(e); err != nil {
		return nil, err
	}

	s.logger.Info("election created", zap.String("election_id", e.ID), zap.String("title", e.Title))
	return e, nil
}

// Get retrieves an election after reconciling expired statuses.
func (s *ElectionService) Get(id string) (*models.Election, error) {
	if _, err := s.ReconcileLifecycle(); err != nil {
		return nil, err
	}
	e, err := s.db.GetElection(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up election: %w", err)
	}
	return e, nil
}

// List retrieves elections; admin view includes drafts.
func (s *ElectionService) List(adminView bool) ([]*models.Election, error) {
	if _, err := s.ReconcileLifecycle(); err != nil {
		return nil, err
	}
	if adminView {
		return s.db.ListElections()
	}
	return s.db.ListPublicElections()
}

// Update applies edits to an election. Any edit hides results again until
// they are explicitly re-released. Editing a completed election so that its
// end time lies in the future reactivates it.
func (s *ElectionService) Update(id string, in *ElectionInput) (*models.Election, error) {
	if err := validateElectionInput(in); err != nil {
		return nil, err
	}

	e, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	e.Title = strings.TrimSpace(in.Title)
	e.Description = in.Description
	e.NominationStart = in.NominationStart
	e.NominationEnd = in.NominationEnd
	e.StartTime = in.StartTime
	e.EndTime = in.EndTime
	e.ConfigAge = in.ConfigAge
	e.MinAge = in.MinAge
	e.ConfigPhoto = in.ConfigPhoto
	e.AllowNOTA = in.AllowNOTA
	e.AllowPhoneVoting = in.AllowPhoneVoting
	e.ShowResults = false

	if e.Status == models.ElectionCompleted && e.EndTime.After(s.now()) {
		e.Status = models.ElectionActive
		s.logger.Info("election reactivated by edit", zap.String("election_id", e.ID))
	}

	if err := s.db.UpdateElection(e); err != nil {
		return nil, fmt.Errorf("failed to update election: %w", err)
	}
	if err := s.syncNOTA(e); err != nil {
		return nil, err
	}
	return e, nil
}

// Publish moves a draft election to active, making it publicly visible.
func (s *ElectionService) Publish(id string) (*models.Election, error) {
	e, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if e.Status != models.ElectionDraft {
		return nil, Validation("only draft elections can be published")
	}

	e.Status = models.ElectionActive
	if err := s.db.UpdateElection(e); err != nil {
		return nil, fmt.Errorf("failed to publish election: %w", err)
	}

	s.logger.Info("election published", zap.String("election_id", e.ID))
	return e, nil
}

// EndNow closes the voting window immediately and completes the election.
func (s *ElectionService) EndNow(id string) (*models.Election, error) {
	e, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if e.Status != models.ElectionActive {
		return nil, Validation("only active elections can be ended")
	}

	e.EndTime = s.now()
	if err := s.db.UpdateElection(e); err != nil {
		return nil, fmt.Errorf("failed to end election: %w", err)
	}
	if _, err := s.ReconcileLifecycle(); err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Default force-action window lengths, in minutes.
const (
	DefaultNominationMinutes = 5
	DefaultVotingMinutes     = 60
)

// StartNominationsNow opens the nomination window immediately for the given
// number of minutes. Refused with a warning, state untouched, unless the
// window is still in the future.
func (s *ElectionService) StartNominationsNow(id string, minutes int) (*models.Election, []string, error) {
	e, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if minutes <= 0 {
		minutes = DefaultNominationMinutes
	}

	now := s.now()
	if !e.NominationStart.After(now) {
		return e, []string{"nominations have already started, nothing changed"}, nil
	}

	e.NominationStart = now
	e.NominationEnd = now.Add(time.Duration(minutes) * time.Minute)
	if err := s.db.UpdateElection(e); err != nil {
		return nil, nil, fmt.Errorf("failed to update election: %w", err)
	}

	var warnings []string
	if !e.NominationEnd.Before(e.StartTime) {
		warnings = append(warnings,
			"nomination window now overlaps the scheduled voting start; voting will not open until started explicitly")
	}
	return e, warnings, nil
}

// EndNominationsNow closes the nomination window immediately. Refused with a
// warning, state untouched, unless the window is currently open.
func (s *ElectionService) EndNominationsNow(id string) (*models.Election, []string, error) {
	e, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	if e.NominationStart.After(now) || !e.NominationEnd.After(now) {
		return e, []string{"nominations are not currently open, nothing changed"}, nil
	}

	e.NominationEnd = now
	if err := s.db.UpdateElection(e); err != nil {
		return nil, nil, fmt.Errorf("failed to update election: %w", err)
	}
	return e, nil, nil
}

// StartVotingNow opens the voting window immediately for the given number of
// minutes, publishing the election if it is still a draft. Refused with a
// warning, state untouched, while nominations have not ended.
func (s *ElectionService) StartVotingNow(id string, minutes int) (*models.Election, []string, error) {
	e, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if minutes <= 0 {
		minutes = DefaultVotingMinutes
	}

	now := s.now()
	if e.NominationEnd.After(now) {
		return e, []string{"cannot start voting until nominations have ended"}, nil
	}

	e.StartTime = now
	e.EndTime = now.Add(time.Duration(minutes) * time.Minute)
	if e.Status == models.ElectionDraft {
		e.Status = models.ElectionActive
	}
	if err := s.db.UpdateElection(e); err != nil {
		return nil, nil, fmt.Errorf("failed to update election: %w", err)
	}
	return e, nil, nil
}

// ReconcileLifecycle transitions every active election whose voting window
// has elapsed to completed and purges its ballot receipts. Idempotent; safe
// to invoke before any status-sensitive read.
func (s *ElectionService) ReconcileLifecycle() ([]string, error) {
	completed, err := s.db.CompleteExpiredElections(s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile election lifecycle: %w", err)
	}
	for _, id := range completed {
		s.logger.Info("election completed, ballot receipts purged", zap.String("election_id", id))
	}
	return completed, nil
}

// RequestDeleteOTP emails a confirmation code for deleting an election.
func (s *ElectionService) RequestDeleteOTP(admin *models.Admin, electionID string) error {
	return s.requestElectionOTP(admin, electionID, otpKeyDeleteElection, "election deletion")
}

// ConfirmDelete verifies the code and deletes the election with all its
// candidates, electors, votes and receipts.
func (s *ElectionService) ConfirmDelete(admin *models.Admin, electionID, code string) error {
	if err := s.verifyCode(otpKeyDeleteElection+electionID+":"+admin.ID, code); err != nil {
		return err
	}
	if err := s.db.DeleteElection(electionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete election: %w", err)
	}

	s.logger.Info("election deleted", zap.String("election_id", electionID), zap.String("admin_id", admin.ID))
	return nil
}

// RequestReleaseOTP emails a confirmation code for releasing results.
func (s *ElectionService) RequestReleaseOTP(admin *models.Admin, electionID string) error {
	return s.requestElectionOTP(admin, electionID, otpKeyReleaseResults, "result release")
}

// ConfirmRelease verifies the code and makes the results publicly visible.
// Only completed elections can release results.
func (s *ElectionService) ConfirmRelease(admin *models.Admin, electionID, code string) error {
	if err := s.verifyCode(otpKeyReleaseResults+electionID+":"+admin.ID, code); err != nil {
		return err
	}

	e, err := s.Get(electionID)
	if err != nil {
		return err
	}
	if e.Status != models.ElectionCompleted {
		return Validation("results can only be released for completed elections")
	}

	e.ShowResults = true
	if err := s.db.UpdateElection(e); err != nil {
		return fmt.Errorf("failed to release results: %w", err)
	}
	if err := s.db.PurgeReceipts(electionID); err != nil {
		return fmt.Errorf("failed to purge ballot receipts: %w", err)
	}

	s.mailResultsReport(e)

	s.logger.Info("election results released", zap.String("election_id", electionID), zap.String("admin_id", admin.ID))
	return nil
}

// mailResultsReport sends the final tally to every admin. Delivery problems
// never undo the release.
func (s *ElectionService) mailResultsReport(e *models.Election) {
	results, err := s.GetResults(e.ID, true)
	if err != nil {
		s.logger.Error("failed to tally released election", zap.String("election_id", e.ID), zap.Error(err))
		return
	}
	admins, err := s.db.ListAdmins()
	if err != nil {
		s.logger.Error("failed to list admins for results report", zap.Error(err))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Results for election %q have been released.\n\n", e.Title)
	for i, tally := range results.Tallies {
		fmt.Fprintf(&b, "%d. %s: %d votes\n", i+1, tally.Candidate.Name, tally.Votes)
	}
	fmt.Fprintf(&b, "\nTotal votes: %d (%d of %d approved electors voted)\n",
		results.TotalVotes, results.Voted, results.Approved)

	for _, a := range admins {
		s.mail.Enqueue(mailer.Message{
			To:      a.Email,
			Subject: fmt.Sprintf("Election results released: %s", e.Title),
			Body:    b.String(),
		})
	}
}

func (s *ElectionService) requestElectionOTP(admin *models.Admin, electionID, prefix, action string) error {
	e, err := s.Get(electionID)
	if err != nil {
		return err
	}

	code, err := s.codes.Issue(prefix + electionID + ":" + admin.ID)
	if err != nil {
		return fmt.Errorf("failed to issue confirmation code: %w", err)
	}

	s.mail.Enqueue(mailer.Message{
		To:      admin.Email,
		Subject: fmt.Sprintf("Votely confirmation code: %s", action),
		Body: fmt.Sprintf("Your confirmation code for %s of election %q is %s. It expires in 10 minutes.",
			action, e.Title, code),
	})
	return nil
}

// Results describes the outcome of an election.
type Results struct {
	Election   *models.Election           `json:"election"`
	Tallies    []*database.CandidateTally `json:"tallies"`
	TotalVotes int                        `json:"total_votes"`
	Approved   int                        `json:"approved_electors"`
	Voted      int                        `json:"voted_electors"`
}

// GetResults tallies an election. Public callers only see results for
// elections whose window has closed and whose results have been released.
func (s *ElectionService) GetResults(electionID string, adminView bool) (*Results, error) {
	e, err := s.Get(electionID)
	if err != nil {
		return nil, err
	}
	if !adminView && !e.ResultsVisible(s.now()) {
		return nil, ErrForbidden
	}

	tallies, err := s.db.TallyVotes(electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to tally votes: %w", err)
	}
	total, err := s.db.CountVotes(electionID)
	if err != nil {
		return nil, err
	}
	approved, err := s.db.CountElectors(electionID, models.ElectorApproved)
	if err != nil {
		return nil, err
	}
	voted, err := s.db.CountVoted(electionID)
	if err != nil {
		return nil, err
	}

	return &Results{
		Election:   e,
		Tallies:    tallies,
		TotalVotes: total,
		Approved:   approved,
		Voted:      voted,
	}, nil
}

// Candidate operations

// Nominate submits a public candidate nomination. The election must be
// published and its nomination window open; field requirements follow the
// election's age and photo configuration tiers.
func (s *ElectionService) Nominate(electionID, name, email string, age *int, photoPath string) (*models.Candidate, error) {
	e, err := s.Get(electionID)
	if err != nil {
		return nil, err
	}
	if e.Status == models.ElectionDraft {
		return nil, ErrNotFound
	}
	if !e.NominationOpen(s.now()) {
		return nil, ErrNominationOver
	}

	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return nil, Validation("name and email are required")
	}

	if _, err := s.db.GetCandidateByEmail(electionID, email); err == nil {
		return nil, Validation("a nomination with this email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check existing nominations: %w", err)
	}

	c := &models.Candidate{
		ID:         uuid.New().String(),
		ElectionID: electionID,
		Name:       name,
		Email:      sql.NullString{String: email, Valid: true},
		Status:     models.CandidatePending,
	}

	switch e.ConfigAge {
	case models.FieldHidden:
		if age != nil {
			return nil, Validation("age is not collected for this election")
		}
	case models.FieldOptional, models.FieldRequired:
		if age == nil {
			if e.ConfigAge == models.FieldRequired {
				return nil, Validation("age is required")
			}
		} else {
			if *age < e.MinAge {
				return nil, Validation(fmt.Sprintf("candidates must be at least %d years old", e.MinAge))
			}
			c.Age = sql.NullInt64{Int64: int64(*age), Valid: true}
		}
	}

	switch e.ConfigPhoto {
	case models.FieldHidden:
		if photoPath != "" {
			return nil, Validation("photos are not collected for this election")
		}
	case models.FieldOptional, models.FieldRequired:
		if photoPath == "" && e.ConfigPhoto == models.FieldRequired {
			return nil, Validation("a photo is required")
		}
		if photoPath != "" {
			c.PhotoPath = sql.NullString{String: photoPath, Valid: true}
		}
	}

	if err := s.db.CreateCandidate(c); err != nil {
		return nil, fmt.Errorf("failed to create nomination: %w", err)
	}

	s.logger.Info("nomination received",
		zap.String("election_id", electionID),
		zap.String("candidate_id", c.ID))
	return c, nil
}

// ListCandidates returns candidates for an election. Public callers only see
// approved candidates plus NOTA; admins see every nomination.
func (s *ElectionService) ListCandidates(electionID string, adminView bool) ([]*models.Candidate, error) {
	if _, err := s.Get(electionID); err != nil {
		return nil, err
	}
	if adminView {
		return s.db.ListCandidates(electionID)
	}
	return s.db.ListCandidates(electionID, models.CandidateApproved, models.CandidateNOTA)
}

// SetCandidateStatus approves or rejects a pending nomination.
func (s *ElectionService) SetCandidateStatus(candidateID string, status models.CandidateStatus) error {
	if status != models.CandidateApproved && status != models.CandidateRejected {
		return Validation("status must be approved or rejected")
	}

	c, err := s.db.GetCandidate(candidateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to look up candidate: %w", err)
	}
	if c.Status == models.CandidateNOTA {
		return ErrForbidden
	}

	if err := s.db.UpdateCandidateStatus(candidateID, status); err != nil {
		return fmt.Errorf("failed to update candidate status: %w", err)
	}

	if c.Email.Valid && c.Email.String != "" {
		election, err := s.db.GetElection(c.ElectionID)
		if err != nil {
			s.logger.Error("failed to load election for candidate notification",
				zap.String("candidate_id", candidateID), zap.Error(err))
			return nil
		}
		if status == models.CandidateApproved {
			s.mail.Enqueue(mailer.Message{
				To:      c.Email.String,
				Subject: fmt.Sprintf("Nomination Approved: %s", election.Title),
				Body: fmt.Sprintf("Dear %s,\n\nCongratulations! Your nomination for %q has been approved. You are now an official candidate.\n\nGood luck!",
					c.Name, election.Title),
			})
		} else {
			s.mail.Enqueue(mailer.Message{
				To:      c.Email.String,
				Subject: fmt.Sprintf("Nomination Update: %s", election.Title),
				Body: fmt.Sprintf("Dear %s,\n\nWe regret to inform you that your nomination for %q has been rejected or withdrawn.\n\nIf you have questions, please contact the administration.",
					c.Name, election.Title),
			})
		}
	}
	return nil
}

// DeleteCandidate removes a candidate. The synthetic NOTA candidate is
// managed through the election's allow_nota flag, not deleted directly.
func (s *ElectionService) DeleteCandidate(candidateID string) error {
	c, err := s.db.GetCandidate(candidateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to look up candidate: %w", err)
	}
	if c.Status == models.CandidateNOTA {
		return ErrForbidden
	}
	return s.db.DeleteCandidate(candidateID)
}

// syncNOTA keeps the synthetic NOTA candidate in lockstep with allow_nota.
func (s *ElectionService) syncNOTA(e *models.Election) error {
	existing, err := s.db.GetNOTACandidate(e.ID)
	switch {
	case err == nil && !e.AllowNOTA:
		if err := s.db.DeleteCandidate(existing.ID); err != nil {
			return fmt.Errorf("failed to remove NOTA candidate: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows) && e.AllowNOTA:
		c := &models.Candidate{
			ID:         uuid.New().String(),
			ElectionID: e.ID,
			Name:       NOTAName,
			Status:     models.CandidateNOTA,
		}
		if err := s.db.CreateCandidate(c); err != nil {
			return fmt.Errorf("failed to create NOTA candidate: %w", err)
		}
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to look up NOTA candidate: %w", err)
	}
	return nil
}

func (s *ElectionService) verifyCode(key, code string) error {
	switch err := s.codes.Verify(key, code); {
	case err == nil:
		return nil
	case errors.Is(err, otp.ErrExpired):
		return ErrCodeExpired
	default:
		return ErrInvalidCode
	}
}
