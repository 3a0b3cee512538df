package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JavaBool/votely/internal/api/middleware"
	"github.com/JavaBool/votely/internal/database/models"
	"github.com/JavaBool/votely/internal/service"
)

// ElectionHandler handles election management and public election endpoints
type ElectionHandler struct {
	elections *service.ElectionService
	admins    *service.AdminService
	logger    *zap.Logger
}

// NewElectionHandler creates a new election handler
func NewElectionHandler(elections *service.ElectionService, admins *service.AdminService, logger *zap.Logger) *ElectionHandler {
	return &ElectionHandler{elections: elections, admins: admins, logger: logger}
}

// requestingAdmin resolves the full admin record for the session.
func (h *ElectionHandler) requestingAdmin(c *gin.Context) (*models.Admin, bool) {
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

// Public endpoints

// ListPublic returns all published elections.
func (h *ElectionHandler) ListPublic(c *gin.Context) {
	elections, err := h.elections.List(false)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"elections": elections})
}

// GetPublic returns one published election.
func (h *ElectionHandler) GetPublic(c *gin.Context) {
	e, err := h.elections.Get(c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	if e.Status == models.ElectionDraft {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"election": e})
}

// ListPublicCandidates returns the approved candidates of an election.
func (h *ElectionHandler) ListPublicCandidates(c *gin.Context) {
	candidates, err := h.elections.ListCandidates(c.Param("id"), false)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

type nominationRequest struct {
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Age       *int   `json:"age"`
	PhotoPath string `json:"photo_path"`
}

// Nominate files a public candidate nomination.
func (h *ElectionHandler) Nominate(c *gin.Context) {
	var req nominationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and a valid email are required"})
		return
	}

	candidate, err := h.elections.Nominate(c.Param("id"), req.Name, req.Email, req.Age, req.PhotoPath)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":   "nomination received and awaiting review",
		"candidate": candidate,
	})
}

// PublicResults returns the tally of a completed election whose results have
// been released.
func (h *ElectionHandler) PublicResults(c *gin.Context) {
	results, err := h.elections.GetResults(c.Param("id"), false)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// Admin endpoints

// List returns every election including drafts.
func (h *ElectionHandler) List(c *gin.Context) {
	elections, err := h.elections.List(true)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"elections": elections})
}

// Get returns one election.
func (h *ElectionHandler) Get(c *gin.Context) {
	e, err := h.elections.Get(c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"election": e})
}

// Create creates a draft election.
func (h *ElectionHandler) Create(c *gin.Context) {
	var in service.ElectionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid election payload"})
		return
	}

	e, err := h.elections.Create(&in)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"election": e})
}

// Update edits an election.
func (h *ElectionHandler) Update(c *gin.Context) {
	var in service.ElectionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid election payload"})
		return
	}

	e, err := h.elections.Update(c.Param("id"), &in)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"election": e})
}

// Publish moves a draft election to active.
func (h *ElectionHandler) Publish(c *gin.Context) {
	e, err := h.elections.Publish(c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"election": e})
}

// EndNow completes an active election immediately.
func (h *ElectionHandler) EndNow(c *gin.Context) {
	e, err := h.elections.EndNow(c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"election": e})
}

func (h *ElectionHandler) respondForced(c *gin.Context, e *models.Election, warnings []string, err error) {
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"election": e, "warnings": warnings})
}

type forceWindowRequest struct {
	Minutes int `json:"minutes"`
}

// minutes reads the optional window length from the request body. Zero means
// the service default.
func (h *ElectionHandler) minutes(c *gin.Context) int {
	var req forceWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return 0
	}
	return req.Minutes
}

// StartNominationsNow opens the nomination window immediately.
func (h *ElectionHandler) StartNominationsNow(c *gin.Context) {
	e, warnings, err := h.elections.StartNominationsNow(c.Param("id"), h.minutes(c))
	h.respondForced(c, e, warnings, err)
}

// EndNominationsNow closes the nomination window immediately.
func (h *ElectionHandler) EndNominationsNow(c *gin.Context) {
	e, warnings, err := h.elections.EndNominationsNow(c.Param("id"))
	h.respondForced(c, e, warnings, err)
}

// StartVotingNow opens the voting window immediately.
func (h *ElectionHandler) StartVotingNow(c *gin.Context) {
	e, warnings, err := h.elections.StartVotingNow(c.Param("id"), h.minutes(c))
	h.respondForced(c, e, warnings, err)
}

// RequestDelete emails the confirmation code for deleting an election.
func (h *ElectionHandler) RequestDelete(c *gin.Context) {
	admin, ok := h.requestingAdmin(c)
	if !ok {
		return
	}
	if err := h.elections.RequestDeleteOTP(admin, c.Param("id")); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "a confirmation code has been sent to your email"})
}

type confirmRequest struct {
	Code string `json:"code" binding:"required"`
}

// ConfirmDelete deletes the election once the code checks out.
func (h *ElectionHandler) ConfirmDelete(c *gin.Context) {
	admin, ok := h.requestingAdmin(c)
	if !ok {
		return
	}
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	if err := h.elections.ConfirmDelete(admin, c.Param("id"), req.Code); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "election deleted"})
}

// RequestRelease emails the confirmation code for releasing results.
func (h *ElectionHandler) RequestRelease(c *gin.Context) {
	admin, ok := h.requestingAdmin(c)
	if !ok {
		return
	}
	if err := h.elections.RequestReleaseOTP(admin, c.Param("id")); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "a confirmation code has been sent to your email"})
}

// ConfirmRelease makes the results publicly visible.
func (h *ElectionHandler) ConfirmRelease(c *gin.Context) {
	admin, ok := h.requestingAdmin(c)
	if !ok {
		return
	}
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	if err := h.elections.ConfirmRelease(admin, c.Param("id"), req.Code); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "results released"})
}

// Results returns the tally regardless of release state.
func (h *ElectionHandler) Results(c *gin.Context) {
	results, err := h.elections.GetResults(c.Param("id"), true)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// ListCandidates returns every nomination including pending and rejected.
func (h *ElectionHandler) ListCandidates(c *gin.Context) {
	candidates, err := h.elections.ListCandidates(c.Param("id"), true)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

type candidateStatusRequest struct {
	Status models.CandidateStatus `json:"status" binding:"required"`
}

// SetCandidateStatus approves or rejects a nomination.
func (h *ElectionHandler) SetCandidateStatus(c *gin.Context) {
	var req candidateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	if err := h.elections.SetCandidateStatus(c.Param("id"), req.Status); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "candidate status updated"})
}

// DeleteCandidate removes a candidate.
func (h *ElectionHandler) DeleteCandidate(c *gin.Context) {
	if err := h.elections.DeleteCandidate(c.Param("id")); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "candidate deleted"})
}
