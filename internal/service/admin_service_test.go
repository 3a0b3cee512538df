package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JavaBool/votely/internal/auth"
	"github.com/JavaBool/votely/internal/database/models"
)

// seedAdmin inserts an admin with a known password, bypassing the temp
// password email of CreateAdmin.
func seedAdmin(t *testing.T, env *testEnv, username, password string, super bool) *models.Admin {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)

	admin := &models.Admin{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		IsSuperAdmin: super,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, env.db.CreateAdmin(admin))
	return admin
}

func TestEnsureDefaultAdmin(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.admins.EnsureDefaultAdmin("root@example.com"))
	count, err := env.db.CountAdmins()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	admin, err := env.db.GetAdminByLogin("admin")
	require.NoError(t, err)
	assert.True(t, admin.IsSuperAdmin)
	assert.True(t, admin.ForceChangePassword)

	// Idempotent: a second call must not seed another account
	require.NoError(t, env.admins.EnsureDefaultAdmin("root@example.com"))
	count, err = env.db.CountAdmins()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	admin := seedAdmin(t, env, "alice", "hunter2passw0rd", false)

	_, err := env.admins.Login("alice", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.admins.Login("nobody", "hunter2passw0rd")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Correct password issues a code but no token yet
	got, err := env.admins.Login("alice", "hunter2passw0rd")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, got.ID)

	code := env.sender.lastCode(t)

	_, _, err = env.admins.VerifyLoginOTP(admin.ID, "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)

	// The wrong guess must not have burned the real code
	token, _, err := env.admins.VerifyLoginOTP(admin.ID, code)
	require.NoError(t, err)

	claims, err := env.tokens.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, claims.AdminID)

	// The code is single use
	_, _, err = env.admins.VerifyLoginOTP(admin.ID, code)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestLoginByEmail(t *testing.T) {
	env := newTestEnv(t)
	seedAdmin(t, env, "alice", "hunter2passw0rd", false)

	got, err := env.admins.Login("alice@example.com", "hunter2passw0rd")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	admin := seedAdmin(t, env, "alice", "hunter2passw0rd", false)

	_, err := env.admins.ChangePassword(admin.ID, "wrong", "newpassw0rd")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.admins.ChangePassword(admin.ID, "hunter2passw0rd", "short")
	assert.True(t, IsValidation(err))

	token, err := env.admins.ChangePassword(admin.ID, "hunter2passw0rd", "newpassw0rd")
	require.NoError(t, err)

	claims, err := env.tokens.ValidateToken(token)
	require.NoError(t, err)
	assert.False(t, claims.ForceChangePassword)

	_, err = env.admins.Login("alice", "newpassw0rd")
	assert.NoError(t, err)
}

func TestForgotPasswordMasksExistence(t *testing.T) {
	env := newTestEnv(t)
	seedAdmin(t, env, "alice", "hunter2passw0rd", false)

	// Unknown address: nothing sent, nothing revealed
	env.admins.ForgotPassword("ghost@example.com")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, env.sender.count())

	env.admins.ForgotPassword("alice@example.com")
	code := env.sender.lastCode(t)

	err := env.admins.ResetPassword("alice@example.com", code, "brandnewpass1")
	require.NoError(t, err)

	_, err = env.admins.Login("alice", "brandnewpass1")
	assert.NoError(t, err)
}

func TestResetPasswordBadCode(t *testing.T) {
	env := newTestEnv(t)
	seedAdmin(t, env, "alice", "hunter2passw0rd", false)

	env.admins.ForgotPassword("alice@example.com")
	env.sender.waitForMessages(t, 1)

	err := env.admins.ResetPassword("alice@example.com", "000000", "brandnewpass1")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestCreateAdmin(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.admins.CreateAdmin("bob", "bob@example.com", true, false, false)
	require.NoError(t, err)
	assert.True(t, created.ForceChangePassword)
	assert.True(t, created.CanManageElections())
	assert.False(t, created.CanManageAdmins())

	msgs := env.sender.waitForMessages(t, 1)
	assert.Equal(t, "bob@example.com", msgs[0].To)

	_, err = env.admins.CreateAdmin("bob", "other@example.com", false, false, false)
	assert.True(t, IsValidation(err), "duplicate username should be rejected")

	_, err = env.admins.CreateAdmin("", "x@example.com", false, false, false)
	assert.True(t, IsValidation(err))
}

func TestUpdateAdmin(t *testing.T) {
	env := newTestEnv(t)
	super := seedAdmin(t, env, "root", "hunter2passw0rd", true)
	admin := seedAdmin(t, env, "bob", "hunter2passw0rd", false)

	updated, err := env.admins.UpdateAdmin(admin.ID, "bob2@example.com", true, true, false)
	require.NoError(t, err)
	assert.Equal(t, "bob2@example.com", updated.Email)
	assert.True(t, updated.PermManageElections)

	_, err = env.admins.UpdateAdmin(super.ID, "root2@example.com", true, true, true)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.admins.UpdateAdmin(uuid.New().String(), "x@example.com", false, false, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAdmin(t *testing.T) {
	env := newTestEnv(t)
	super := seedAdmin(t, env, "root", "hunter2passw0rd", true)
	admin := seedAdmin(t, env, "bob", "hunter2passw0rd", false)

	assert.True(t, IsValidation(env.admins.DeleteAdmin(admin.ID, admin.ID)), "self-deletion should be rejected")
	assert.ErrorIs(t, env.admins.DeleteAdmin(admin.ID, super.ID), ErrForbidden)
	assert.ErrorIs(t, env.admins.DeleteAdmin(super.ID, uuid.New().String()), ErrNotFound)

	require.NoError(t, env.admins.DeleteAdmin(super.ID, admin.ID))
	count, err := env.db.CountAdmins()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestResizeMailerPool(t *testing.T) {
	env := newTestEnv(t)

	assert.True(t, IsValidation(env.admins.ResizeMailerPool(0)))
	assert.True(t, IsValidation(env.admins.ResizeMailerPool(21)))

	require.NoError(t, env.admins.ResizeMailerPool(7))
	assert.Equal(t, 7, env.admins.MailerWorkers())

	// The size is persisted for the next process start
	stored, err := env.db.GetSystemConfig(MailerWorkersKey)
	require.NoError(t, err)
	assert.Equal(t, "7", stored)
}
