package service

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JavaBool/votely/internal/auth"
	"github.com/JavaBool/votely/internal/database"
	"github.com/JavaBool/votely/internal/database/models"
	"github.com/JavaBool/votely/internal/mailer"
	"github.com/JavaBool/votely/internal/otp"
)

// OTP key prefixes. Identity is embedded in the key because the API is
// stateless between the request and verify steps.
const (
	otpKeyLogin         = "login_otp:"
	otpKeyPasswordReset = "password_reset:"
)

// MailerWorkersKey is the system_config key persisting the notification
// worker-pool size across restarts.
const MailerWorkersKey = "mailer_workers"

const (
	minMailerWorkers = 1
	maxMailerWorkers = 20
)

// AdminService handles admin authentication and account management
type AdminService struct {
	db     *database.Database
	codes  *otp.Store
	mail   *mailer.Mailer
	tokens *auth.JWTManager
	logger *zap.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(db *database.Database, codes *otp.Store, mail *mailer.Mailer, tokens *auth.JWTManager, logger *zap.Logger) *AdminService {
	return &AdminService{db: db, codes: codes, mail: mail, tokens: tokens, logger: logger}
}

// EnsureDefaultAdmin seeds the initial super admin when the admins table is
// empty. The generated password is written to the log once and must be
// changed on first login.
func (s *AdminService) EnsureDefaultAdmin(email string) error {
	count, err := s.db.CountAdmins()
	if err != nil {
		return fmt.Errorf("failed to count admins: %w", err)
	}
	if count > 0 {
		return nil
	}

	password, err := auth.GenerateTempPassword()
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	admin := &models.Admin{
		ID:                  uuid.New().String(),
		Username:            "admin",
		Email:               email,
		PasswordHash:        hash,
		IsSuperAdmin:        true,
		ForceChangePassword: true,
		CreatedAt:           time.Now(),
	}
	if err := s.db.CreateAdmin(admin); err != nil {
		return fmt.Errorf("failed to create default admin: %w", err)
	}

	s.logger.Warn("created default super admin, change this password immediately",
		zap.String("username", admin.Username),
		zap.String("password", password))
	return nil
}

// Login verifies credentials and, on success, emails a one-time code. The
// session token is only issued once the code is verified.
func (s *AdminService) Login(login, password string) (*models.Admin, error) {
	admin, err := s.db.GetAdminByLogin(login)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}

	if err := auth.VerifyPassword(password, admin.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	code, err := s.codes.Issue(otpKeyLogin + admin.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue login code: %w", err)
	}

	s.mail.Enqueue(mailer.Message{
		To:      admin.Email,
		Subject: "Votely login verification code",
		Body:    fmt.Sprintf("Your login verification code is %s. It expires in 10 minutes.", code),
	})

	s.logger.Info("admin login code issued", zap.String("admin_id", admin.ID))
	return admin, nil
}

// VerifyLoginOTP checks the emailed code and returns a session token.
func (s *AdminService) VerifyLoginOTP(adminID, code string) (string, *models.Admin, error) {
	if err := s.verifyCode(otpKeyLogin+adminID, code); err != nil {
		return "", nil, err
	}

	admin, err := s.db.GetAdmin(adminID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("failed to look up admin: %w", err)
	}

	token, err := s.tokens.GenerateToken(admin)
	if err != nil {
		return "", nil, err
	}

	s.logger.Info("admin logged in", zap.String("admin_id", admin.ID), zap.String("username", admin.Username))
	return token, admin, nil
}

// ChangePassword sets a new password after checking the current one. A
// successful change clears the force-change flag, so the fresh session token
// returned here no longer carries it.
func (s *AdminService) ChangePassword(adminID, currentPassword, newPassword string) (string, error) {
	admin, err := s.db.GetAdmin(adminID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to look up admin: %w", err)
	}

	if err := auth.VerifyPassword(currentPassword, admin.PasswordHash); err != nil {
		return "", ErrInvalidCredentials
	}
	if err := auth.ValidatePasswordStrength(newPassword); err != nil {
		return "", Validation(err.Error())
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return "", err
	}
	if err := s.db.UpdateAdminPassword(adminID, hash, false); err != nil {
		return "", fmt.Errorf("failed to update password: %w", err)
	}

	admin.ForceChangePassword = false
	token, err := s.tokens.GenerateToken(admin)
	if err != nil {
		return "", err
	}

	s.logger.Info("admin password changed", zap.String("admin_id", adminID))
	return token, nil
}

// ForgotPassword emails a reset code if an account with the email exists.
// The caller gets the same response either way, so the endpoint cannot be
// used to probe for accounts.
func (s *AdminService) ForgotPassword(email string) {
	admin, err := s.db.GetAdminByEmail(email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("failed to look up admin for password reset", zap.Error(err))
		}
		return
	}

	code, err := s.codes.Issue(otpKeyPasswordReset + admin.Email)
	if err != nil {
		s.logger.Error("failed to issue password reset code", zap.Error(err))
		return
	}

	s.mail.Enqueue(mailer.Message{
		To:      admin.Email,
		Subject: "Votely password reset code",
		Body:    fmt.Sprintf("Your password reset code is %s. It expires in 10 minutes.", code),
	})
	s.logger.Info("password reset code issued", zap.String("admin_id", admin.ID))
}

// ResetPassword completes the forgot-password flow with the emailed code.
func (s *AdminService) ResetPassword(email, code, newPassword string) error {
	if err := s.verifyCode(otpKeyPasswordReset+email, code); err != nil {
		return err
	}

	admin, err := s.db.GetAdminByEmail(email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	if err := auth.ValidatePasswordStrength(newPassword); err != nil {
		return Validation(err.Error())
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.db.UpdateAdminPassword(admin.ID, hash, false); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.Info("admin password reset", zap.String("admin_id", admin.ID))
	return nil
}

// CreateAdmin provisions a new admin account with a generated temporary
// password that is emailed to the new admin and must be changed on first
// login.
func (s *AdminService) CreateAdmin(username, email string, manageElections, manageElectors, manageAdmins bool) (*models.Admin, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" || email == "" {
		return nil, Validation("username and email are required")
	}

	password, err := auth.GenerateTempPassword()
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	admin := &models.Admin{
		ID:                  uuid.New().String(),
		Username:            username,
		Email:               email,
		PasswordHash:        hash,
		ForceChangePassword: true,
		PermManageElections: manageElections,
		PermManageElectors:  manageElectors,
		PermManageAdmins:    manageAdmins,
		CreatedAt:           time.Now(),
	}
	if err := s.db.CreateAdmin(admin); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return nil, Validation("username or email already in use")
		}
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}

	s.mail.Enqueue(mailer.Message{
		To:      email,
		Subject: "Your Votely admin account",
		Body: fmt.Sprintf("An admin account has been created for you.\n\nUsername: %s\nTemporary password: %s\n\nYou will be required to change this password on first login.",
			username, password),
	})

	s.logger.Info("admin created", zap.String("admin_id", admin.ID), zap.String("username", username))
	return admin, nil
}

// Get returns one admin account.
func (s *AdminService) Get(id string) (*models.Admin, error) {
	admin, err := s.db.GetAdmin(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}
	return admin, nil
}

// ListAdmins returns all admin accounts.
func (s *AdminService) ListAdmins() ([]*models.Admin, error) {
	return s.db.ListAdmins()
}

// UpdateAdmin changes a non-super admin's email and permission flags.
func (s *AdminService) UpdateAdmin(id, email string, manageElections, manageElectors, manageAdmins bool) (*models.Admin, error) {
	admin, err := s.db.GetAdmin(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}
	if admin.IsSuperAdmin {
		return nil, ErrForbidden
	}

	admin.Email = strings.ToLower(strings.TrimSpace(email))
	if admin.Email == "" {
		return nil, Validation("email is required")
	}
	admin.PermManageElections = manageElections
	admin.PermManageElectors = manageElectors
	admin.PermManageAdmins = manageAdmins

	if err := s.db.UpdateAdmin(admin); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return nil, Validation("email already in use")
		}
		return nil, fmt.Errorf("failed to update admin: %w", err)
	}
	return admin, nil
}

// DeleteAdmin removes an admin account. Super admins cannot be deleted and
// admins cannot delete themselves.
func (s *AdminService) DeleteAdmin(actorID, targetID string) error {
	if actorID == targetID {
		return Validation("cannot delete your own account")
	}

	target, err := s.db.GetAdmin(targetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to look up admin: %w", err)
	}
	if target.IsSuperAdmin {
		return ErrForbidden
	}

	if err := s.db.DeleteAdmin(targetID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	s.logger.Info("admin deleted", zap.String("admin_id", targetID), zap.String("deleted_by", actorID))
	return nil
}

// ResizeMailerPool resizes the notification worker pool and persists the new
// size so it survives restarts.
func (s *AdminService) ResizeMailerPool(workers int) error {
	if workers < minMailerWorkers || workers > maxMailerWorkers {
		return Validation(fmt.Sprintf("worker count must be between %d and %d", minMailerWorkers, maxMailerWorkers))
	}

	s.mail.Resize(workers)
	if err := s.db.SetSystemConfig(MailerWorkersKey, strconv.Itoa(workers)); err != nil {
		return fmt.Errorf("failed to persist worker count: %w", err)
	}
	return nil
}

// MailerWorkers returns the current pool size.
func (s *AdminService) MailerWorkers() int {
	return s.mail.Workers()
}

// verifyCode maps OTP store errors onto service errors.
func (s *AdminService) verifyCode(key, code string) error {
	switch err := s.codes.Verify(key, code); {
	case err == nil:
		return nil
	case errors.Is(err, otp.ErrExpired):
		return ErrCodeExpired
	default:
		return ErrInvalidCode
	}
}
