package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JavaBool/votely/internal/api/middleware"
	"github.com/JavaBool/votely/internal/service"
)

// AuthHandler handles admin authentication endpoints
type AuthHandler struct {
	admins *service.AdminService
	logger *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(admins *service.AdminService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{admins: admins, logger: logger}
}

type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and emails a one-time code.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "login and password are required"})
		return
	}

	admin, err := h.admins.Login(req.Login, req.Password)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "a verification code has been sent to your email",
		"admin_id": admin.ID,
	})
}

type verifyLoginRequest struct {
	AdminID string `json:"admin_id" binding:"required"`
	Code    string `json:"code" binding:"required"`
}

// VerifyLogin checks the emailed code and returns the session token.
func (h *AuthHandler) VerifyLogin(c *gin.Context) {
	var req verifyLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "admin_id and code are required"})
		return
	}

	token, admin, err := h.admins.VerifyLoginOTP(req.AdminID, req.Code)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"admin": admin,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ChangePassword sets a new password for the authenticated admin.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "current_password and new_password are required"})
		return
	}

	token, err := h.admins.ChangePassword(claims.AdminID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "password changed",
		"token":   token,
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ForgotPassword always responds identically so account existence is not
// disclosed.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a valid email is required"})
		return
	}

	h.admins.ForgotPassword(req.Email)
	c.JSON(http.StatusOK, gin.H{
		"message": "if the address belongs to an account, a reset code has been sent",
	})
}

type resetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ResetPassword completes the forgot-password flow.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, code and new_password are required"})
		return
	}

	if err := h.admins.ResetPassword(req.Email, req.Code, req.NewPassword); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password reset, you can now log in"})
}
