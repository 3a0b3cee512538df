package service

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JavaBool/votely/internal/database"
	"github.com/JavaBool/votely/internal/database/models"
	"github.com/JavaBool/votely/internal/mailer"
	"github.com/JavaBool/votely/internal/otp"
	"github.com/JavaBool/votely/internal/roll"
)

const (
	otpKeyExportCodes = "export_codes:"
	otpKeyResetCodes  = "reset_codes:"
)

// ElectorInput carries the identity fields of an elector.
type ElectorInput struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	CustomSuccessMsg string `json:"custom_success_msg"`
}

// ImportSummary reports the outcome of a CSV roll import.
type ImportSummary struct {
	Imported         int `json:"imported"`
	SkippedDuplicate int `json:"skipped_duplicate"`
	SkippedNoContact int `json:"skipped_no_contact"`
}

// ElectorService manages the electoral roll of each election
type ElectorService struct {
	db     *database.Database
	codes  *otp.Store
	mail   *mailer.Mailer
	logger *zap.Logger
}

// NewElectorService creates a new elector service
func NewElectorService(db *database.Database, codes *otp.Store, mail *mailer.Mailer, logger *zap.Logger) *ElectorService {
	return &ElectorService{db: db, codes: codes, mail: mail, logger: logger}
}

func normalizeElectorInput(in *ElectorInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" {
		return Validation("name is required")
	}
	if in.Phone == "" && in.Email == "" {
		return Validation("at least one of phone or email is required")
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isDuplicate reports whether another elector in the election already uses
// the phone or email.
func (s *ElectorService) isDuplicate(electionID, phone, email, excludeID string) (bool, error) {
	if phone != "" {
		e, err := s.db.GetElectorByPhone(electionID, phone)
		if err == nil && e.ID != excludeID {
			return true, nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return false, err
		}
	}
	if email != "" {
		e, err := s.db.GetElectorByEmail(electionID, email)
		if err == nil && e.ID != excludeID {
			return true, nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return false, err
		}
	}
	return false, nil
}

// Add registers a single approved elector with a fresh secret code.
func (s *ElectorService) Add(electionID string, in *ElectorInput) (*models.Elector, error) {
	if err := normalizeElectorInput(in); err != nil {
		return nil, err
	}
	if _, err := s.db.GetElection(electionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	dup, err := s.isDuplicate(electionID, in.Phone, in.Email, "")
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicates: %w", err)
	}
	if dup {
		return nil, Validation("an elector with this phone or email already exists")
	}

	e := &models.Elector{
		ID:               uuid.New().String(),
		ElectionID:       electionID,
		Name:             in.Name,
		Phone:            nullable(in.Phone),
		Email:            nullable(in.Email),
		SecretCode:       roll.GenerateSecretCode(),
		Status:           models.ElectorApproved,
		CustomSuccessMsg: nullable(in.CustomSuccessMsg),
	}
	if err := s.db.CreateElector(e); err != nil {
		return nil, fmt.Errorf("failed to create elector: %w", err)
	}
	return e, nil
}

// RequestAccess files a public self-registration request. The elector enters
// the roll as pending until an admin approves or rejects them.
func (s *ElectorService) RequestAccess(electionID string, in *ElectorInput) (*models.Elector, error) {
	election, err := s.db.GetElection(electionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if election.Status == models.ElectionDraft {
		return nil, ErrNotFound
	}
	if election.Status == models.ElectionCompleted {
		return nil, ErrVotingClosed
	}
	if err := normalizeElectorInput(in); err != nil {
		return nil, err
	}

	dup, err := s.isDuplicate(electionID, in.Phone, in.Email, "")
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicates: %w", err)
	}
	if dup {
		return nil, Validation("a request or registration with this phone or email already exists")
	}

	e := &models.Elector{
		ID:         uuid.New().String(),
		ElectionID: electionID,
		Name:       in.Name,
		Phone:      nullable(in.Phone),
		Email:      nullable(in.Email),
		SecretCode: roll.GenerateSecretCode(),
		Status:     models.ElectorPending,
	}
	if err := s.db.CreateElector(e); err != nil {
		return nil, fmt.Errorf("failed to create access request: %w", err)
	}

	if admins, err := s.db.ListAdmins(); err != nil {
		s.logger.Error("failed to list admins for access request alert", zap.Error(err))
	} else {
		for _, a := range admins {
			s.mail.Enqueue(mailer.Message{
				To:      a.Email,
				Subject: fmt.Sprintf("New voting access request: %s", election.Title),
				Body: fmt.Sprintf("%s has requested voting access to election %q and is awaiting review.",
					e.Name, election.Title),
			})
		}
	}

	s.logger.Info("elector access requested",
		zap.String("election_id", electionID),
		zap.String("elector_id", e.ID))
	return e, nil
}

// SetStatus approves or rejects a pending elector. Approval notifies the
// elector by email when an address is on file.
func (s *ElectorService) SetStatus(electorID string, status models.ElectorStatus) error {
	if status != models.ElectorApproved && status != models.ElectorRejected {
		return Validation("status must be approved or rejected")
	}

	e, err := s.db.GetElector(electorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to look up elector: %w", err)
	}

	if err := s.db.UpdateElectorStatus(electorID, status); err != nil {
		return fmt.Errorf("failed to update elector status: %w", err)
	}

	if status == models.ElectorApproved && e.Email.Valid {
		election, err := s.db.GetElection(e.ElectionID)
		title := "the election"
		if err == nil {
			title = election.Title
		}
		s.mail.Enqueue(mailer.Message{
			To:      e.Email.String,
			Subject: "Your voting registration has been approved",
			Body:    fmt.Sprintf("Hello %s,\n\nYour registration for %q has been approved. You can vote once the voting window opens.", e.Name, title),
		})
	}
	return nil
}

// List returns the full roll for an election.
func (s *ElectorService) List(electionID string) ([]*models.Elector, error) {
	if _, err := s.db.GetElection(electionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.db.ListElectors(electionID)
}

// Update edits an elector's identity fields.
func (s *ElectorService) Update(electorID string, in *ElectorInput) (*models.Elector, error) {
	if err := normalizeElectorInput(in); err != nil {
		return nil, err
	}

	e, err := s.db.GetElector(electorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up elector: %w", err)
	}

	dup, err := s.isDuplicate(e.ElectionID, in.Phone, in.Email, e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicates: %w", err)
	}
	if dup {
		return nil, Validation("an elector with this phone or email already exists")
	}

	e.Name = in.Name
	e.Phone = nullable(in.Phone)
	e.Email = nullable(in.Email)
	e.CustomSuccessMsg = nullable(in.CustomSuccessMsg)
	if err := s.db.UpdateElector(e); err != nil {
		return nil, fmt.Errorf("failed to update elector: %w", err)
	}
	return e, nil
}

// Delete removes an elector; a still-linked vote is removed with them.
func (s *ElectorService) Delete(electorID string) error {
	if err := s.db.DeleteElector(electorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete elector: %w", err)
	}
	return nil
}

// BulkDelete removes several electors. Returns how many were deleted.
func (s *ElectorService) BulkDelete(electorIDs []string) (int, error) {
	deleted := 0
	for _, id := range electorIDs {
		err := s.db.DeleteElector(id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return deleted, fmt.Errorf("failed to delete elector %s: %w", id, err)
		}
		deleted++
	}
	return deleted, nil
}

// ImportCSV bulk-loads electors from an uploaded CSV. Rows already present
// in the roll (by phone or email) and rows with no contact details are
// skipped, and the summary says how many.
func (s *ElectorService) ImportCSV(electionID string, r io.Reader) (*ImportSummary, error) {
	if _, err := s.db.GetElection(electionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	parsed, err := roll.ParseCSV(r)
	if err != nil {
		return nil, Validation(err.Error())
	}

	summary := &ImportSummary{SkippedNoContact: parsed.SkippedNoContact}
	for _, entry := range parsed.Entries {
		dup, err := s.isDuplicate(electionID, entry.Phone, entry.Email, "")
		if err != nil {
			return nil, fmt.Errorf("failed to check for duplicates: %w", err)
		}
		if dup {
			summary.SkippedDuplicate++
			continue
		}

		name := entry.Name
		if name == "" {
			name = entry.Email
		}
		if name == "" {
			name = entry.Phone
		}

		e := &models.Elector{
			ID:         uuid.New().String(),
			ElectionID: electionID,
			Name:       name,
			Phone:      nullable(entry.Phone),
			Email:      nullable(entry.Email),
			SecretCode: roll.GenerateSecretCode(),
			Status:     models.ElectorApproved,
		}
		if err := s.db.CreateElector(e); err != nil {
			return nil, fmt.Errorf("failed to import elector: %w", err)
		}
		summary.Imported++
	}

	s.logger.Info("elector roll imported",
		zap.String("election_id", electionID),
		zap.Int("imported", summary.Imported),
		zap.Int("skipped_duplicate", summary.SkippedDuplicate),
		zap.Int("skipped_no_contact", summary.SkippedNoContact))
	return summary, nil
}

// ExportCSV writes the roll as CSV, without secret codes.
func (s *ElectorService) ExportCSV(electionID string, w io.Writer) error {
	electors, err := s.List(electionID)
	if err != nil {
		return err
	}
	return roll.WriteElectors(w, electors)
}

// RequestExportCodesOTP emails a confirmation code for exporting secret codes.
func (s *ElectorService) RequestExportCodesOTP(admin *models.Admin, electionID string) error {
	return s.requestRollOTP(admin, electionID, otpKeyExportCodes, "secret code export")
}

// ConfirmExportCodes verifies the code and writes the secret-code CSV.
func (s *ElectorService) ConfirmExportCodes(admin *models.Admin, electionID, code string, w io.Writer) error {
	if err := s.verifyCode(otpKeyExportCodes+electionID+":"+admin.ID, code); err != nil {
		return err
	}
	electors, err := s.List(electionID)
	if err != nil {
		return err
	}

	s.logger.Info("secret codes exported",
		zap.String("election_id", electionID),
		zap.String("admin_id", admin.ID))
	return roll.WriteSecretCodes(w, electors)
}

// GetSecretCode returns a single elector's secret code.
func (s *ElectorService) GetSecretCode(electorID string) (string, error) {
	e, err := s.db.GetElector(electorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to look up elector: %w", err)
	}
	return e.SecretCode, nil
}

// ResetSecretCode regenerates one elector's secret code and returns it.
func (s *ElectorService) ResetSecretCode(electorID string) (string, error) {
	if _, err := s.db.GetElector(electorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to look up elector: %w", err)
	}

	code := roll.GenerateSecretCode()
	if err := s.db.UpdateElectorSecretCode(electorID, code); err != nil {
		return "", fmt.Errorf("failed to reset secret code: %w", err)
	}
	return code, nil
}

// RequestResetCodesOTP emails a confirmation code for regenerating every
// secret code in an election.
func (s *ElectorService) RequestResetCodesOTP(admin *models.Admin, electionID string) error {
	return s.requestRollOTP(admin, electionID, otpKeyResetCodes, "secret code reset")
}

// ConfirmResetCodes verifies the code and regenerates every elector's secret
// code. Returns how many codes were reset.
func (s *ElectorService) ConfirmResetCodes(admin *models.Admin, electionID, code string) (int, error) {
	if err := s.verifyCode(otpKeyResetCodes+electionID+":"+admin.ID, code); err != nil {
		return 0, err
	}

	election, err := s.db.GetElection(electionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if election.Status == models.ElectionCompleted {
		return 0, Validation("secret codes cannot be reset after an election completes")
	}

	count, err := s.db.ResetAllSecretCodes(electionID, roll.GenerateSecretCode)
	if err != nil {
		return 0, fmt.Errorf("failed to reset secret codes: %w", err)
	}

	s.logger.Info("all secret codes reset",
		zap.String("election_id", electionID),
		zap.String("admin_id", admin.ID),
		zap.Int("count", count))
	return count, nil
}

// CleanupSummary reports the outcome of a rejected-elector sweep.
type CleanupSummary struct {
	Deleted   int `json:"deleted"`
	Anomalies int `json:"anomalies"`
}

// CleanupRejected removes rejected electors that never voted, across all
// elections. A rejected elector with a recorded vote is left untouched for
// manual review and counted as an anomaly.
func (s *ElectorService) CleanupRejected() (*CleanupSummary, error) {
	deleted, anomalies, err := s.db.PurgeRejectedElectors()
	if err != nil {
		return nil, fmt.Errorf("failed to purge rejected electors: %w", err)
	}
	if anomalies > 0 {
		s.logger.Warn("rejected electors with recorded votes left in place",
			zap.Int("count", anomalies))
	}
	s.logger.Info("rejected electors purged", zap.Int("deleted", deleted))
	return &CleanupSummary{Deleted: deleted, Anomalies: anomalies}, nil
}

func (s *ElectorService) requestRollOTP(admin *models.Admin, electionID, prefix, action string) error {
	election, err := s.db.GetElection(electionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
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
			action, election.Title, code),
	})
	return nil
}

func (s *ElectorService) verifyCode(key, code string) error {
	switch err := s.codes.Verify(key, code); {
	case err == nil:
		return nil
	case errors.Is(err, otp.ErrExpired):
		return ErrCodeExpired
	default:
		return ErrInvalidCode
	}
}
