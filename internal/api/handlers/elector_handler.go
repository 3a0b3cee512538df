package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JavaBool/votely/internal/api/middleware"
	"github.com/JavaBool/votely/internal/database/models"
	"github.com/JavaBool/votely/internal/service"
)

// maxImportSize caps uploaded roll files at 8 MiB.
const maxImportSize = 8 << 20

// ElectorHandler handles electoral roll management endpoints
type ElectorHandler struct {
	electors *service.ElectorService
	voting   *service.VotingService
	admins   *service.AdminService
	logger   *zap.Logger
}

// NewElectorHandler creates a new elector handler
func NewElectorHandler(electors *service.ElectorService, voting *service.VotingService, admins *service.AdminService, logger *zap.Logger) *ElectorHandler {
	return &ElectorHandler{electors: electors, voting: voting, admins: admins, logger: logger}
}

func (h *ElectorHandler) requestingAdmin(c *gin.Context) (*models.Admin, bool) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return nil, false
	}
	admin, err := h.admins.Get(claims.AdminID)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return nil, false
	}
	return admin, true
}

// RequestAccess files a public self-registration request for an election.
func (h *ElectorHandler) RequestAccess(c *gin.Context) {
	var in service.ElectorInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	elector, err := h.electors.RequestAccess(c.Param("id"), &in)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "access request received and awaiting review",
		"elector": elector,
	})
}

// List returns the roll of an election.
func (h *ElectorHandler) List(c *gin.Context) {
	electors, err := h.electors.List(c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"electors": electors})
}

// Add registers a single elector.
func (h *ElectorHandler) Add(c *gin.Context) {
	var in service.ElectorInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid elector payload"})
		return
	}

	elector, err := h.electors.Add(c.Param("id"), &in)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"elector": elector})
}

// Import bulk-loads electors from an uploaded CSV file.
func (h *ElectorHandler) Import(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a CSV file upload named 'file' is required"})
		return
	}
	defer file.Close()

	summary, err := h.electors.ImportCSV(c.Param("id"), http.MaxBytesReader(c.Writer, file, maxImportSize))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Export streams the roll as CSV, without secret codes.
func (h *ElectorHandler) Export(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=electors-%s.csv", c.Param("id")))
	if err := h.electors.ExportCSV(c.Param("id"), c.Writer); err != nil {
		respondServiceError(c, h.logger, err)
	}
}

// Update edits an elector's identity fields.
func (h *ElectorHandler) Update(c *gin.Context) {
	var in service.ElectorInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid elector payload"})
		return
	}

	elector, err := h.electors.Update(c.Param("id"), &in)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"elector": elector})
}

// Delete removes an elector.
func (h *ElectorHandler) Delete(c *gin.Context) {
	if err := h.electors.Delete(c.Param("id")); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "elector deleted"})
}

type bulkDeleteRequest struct {
	ElectorIDs []string `json:"elector_ids" binding:"required"`
}

// BulkDelete removes several electors at once.
func (h *ElectorHandler) BulkDelete(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "elector_ids is required"})
		return
	}

	deleted, err := h.electors.BulkDelete(req.ElectorIDs)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

type electorStatusRequest struct {
	Status models.ElectorStatus `json:"status" binding:"required"`
}

// SetStatus approves or rejects a pending access request.
func (h *ElectorHandler) SetStatus(c *gin.Context) {
	var req electorStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	if err := h.electors.SetStatus(c.Param("id"), req.Status); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "elector status updated"})
}

// GetSecretCode discloses one elector's secret code to the admin.
func (h *ElectorHandler) GetSecretCode(c *gin.Context) {
	code, err := h.electors.GetSecretCode(c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"secret_code": code})
}

// ResetSecretCode regenerates one elector's secret code.
func (h *ElectorHandler) ResetSecretCode(c *gin.Context) {
	code, err := h.electors.ResetSecretCode(c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"secret_code": code})
}

// RequestExportCodes emails the confirmation code for a secret-code export.
func (h *ElectorHandler) RequestExportCodes(c *gin.Context) {
	admin, ok := h.requestingAdmin(c)
	if !ok {
		return
	}
	if err := h.electors.RequestExportCodesOTP(admin, c.Param("id")); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "a confirmation code has been sent to your email"})
}

// ConfirmExportCodes streams the secret-code CSV once the code checks out.
func (h *ElectorHandler) ConfirmExportCodes(c *gin.Context) {
	admin, ok := h.requestingAdmin(c)
	if !ok {
		return
	}
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=secret-codes-%s.csv", c.Param("id")))
	if err := h.electors.ConfirmExportCodes(admin, c.Param("id"), req.Code, c.Writer); err != nil {
		respondServiceError(c, h.logger, err)
	}
}

// RequestResetCodes emails the confirmation code for regenerating every
// secret code in an election.
func (h *ElectorHandler) RequestResetCodes(c *gin.Context) {
	admin, ok := h.requestingAdmin(c)
	if !ok {
		return
	}
	if err := h.electors.RequestResetCodesOTP(admin, c.Param("id")); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "a confirmation code has been sent to your email"})
}

// ConfirmResetCodes regenerates every secret code once the code checks out.
func (h *ElectorHandler) ConfirmResetCodes(c *gin.Context) {
	admin, ok := h.requestingAdmin(c)
	if !ok {
		return
	}
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	count, err := h.electors.ConfirmResetCodes(admin, c.Param("id"), req.Code)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "secret codes reset", "count": count})
}

// CleanupRejected sweeps out rejected electors that never voted.
func (h *ElectorHandler) CleanupRejected(c *gin.Context) {
	summary, err := h.electors.CleanupRejected()
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// RequestResetVote emails the confirmation code for erasing an elector's
// ballot.
func (h *ElectorHandler) RequestResetVote(c *gin.Context) {
	admin, ok := h.requestingAdmin(c)
	if !ok {
		return
	}
	if err := h.voting.RequestResetVoteOTP(admin, c.Param("id")); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "a confirmation code has been sent to your email"})
}

// ConfirmResetVote erases the elector's ballot once the code checks out.
func (h *ElectorHandler) ConfirmResetVote(c *gin.Context) {
	admin, ok := h.requestingAdmin(c)
	if !ok {
		return
	}
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	if err := h.voting.ConfirmResetVote(admin, c.Param("id"), req.Code); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "vote reset, the elector may vote again"})
}
