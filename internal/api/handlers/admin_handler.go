package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JavaBool/votely/internal/api/middleware"
	"github.com/JavaBool/votely/internal/service"
)

// AdminHandler handles admin account and system configuration endpoints
type AdminHandler struct {
	admins *service.AdminService
	logger *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(admins *service.AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{admins: admins, logger: logger}
}

// List returns every admin account.
func (h *AdminHandler) List(c *gin.Context) {
	admins, err := h.admins.ListAdmins()
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admins": admins})
}

type createAdminRequest struct {
	Username        string `json:"username" binding:"required"`
	Email           string `json:"email" binding:"required,email"`
	ManageElections bool   `json:"perm_manage_elections"`
	ManageElectors  bool   `json:"perm_manage_electors"`
	ManageAdmins    bool   `json:"perm_manage_admins"`
}

// Create provisions a new admin with an emailed temporary password.
func (h *AdminHandler) Create(c *gin.Context) {
	var req createAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and a valid email are required"})
		return
	}

	admin, err := h.admins.CreateAdmin(req.Username, req.Email, req.ManageElections, req.ManageElectors, req.ManageAdmins)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "admin created, a temporary password has been emailed",
		"admin":   admin,
	})
}

type updateAdminRequest struct {
	Email           string `json:"email" binding:"required,email"`
	ManageElections bool   `json:"perm_manage_elections"`
	ManageElectors  bool   `json:"perm_manage_electors"`
	ManageAdmins    bool   `json:"perm_manage_admins"`
}

// Update changes an admin's email and permissions.
func (h *AdminHandler) Update(c *gin.Context) {
	var req updateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a valid email is required"})
		return
	}

	admin, err := h.admins.UpdateAdmin(c.Param("id"), req.Email, req.ManageElections, req.ManageElectors, req.ManageAdmins)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admin": admin})
}

// Delete removes an admin account.
func (h *AdminHandler) Delete(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}

	if err := h.admins.DeleteAdmin(claims.AdminID, c.Param("id")); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "admin deleted"})
}

// GetMailerWorkers reports the current notification worker-pool size.
func (h *AdminHandler) GetMailerWorkers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"workers": h.admins.MailerWorkers()})
}

type resizeMailerRequest struct {
	Workers int `json:"workers" binding:"required"`
}

// ResizeMailerPool hot-resizes the notification worker pool.
func (h *AdminHandler) ResizeMailerPool(c *gin.Context) {
	var req resizeMailerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workers is required"})
		return
	}

	if err := h.admins.ResizeMailerPool(req.Workers); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "worker pool resized", "workers": req.Workers})
}
