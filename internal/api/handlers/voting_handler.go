package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JavaBool/votely/internal/service"
)

// VotingHandler handles the public voter authentication and ballot endpoints
type VotingHandler struct {
	voting *service.VotingService
	logger *zap.Logger
}

// NewVotingHandler creates a new voting handler
func NewVotingHandler(voting *service.VotingService, logger *zap.Logger) *VotingHandler {
	return &VotingHandler{voting: voting, logger: logger}
}

type phoneAuthRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

// AuthenticatePhone exchanges a phone-provider token for a ballot token.
func (h *VotingHandler) AuthenticatePhone(c *gin.Context) {
	var req phoneAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id_token is required"})
		return
	}

	token, err := h.voting.AuthenticatePhone(c.Request.Context(), c.Param("id"), req.IDToken)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ballot_token": token})
}

type emailOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// RequestEmailOTP emails a voting code. The response never discloses whether
// the address is on the roll.
func (h *VotingHandler) RequestEmailOTP(c *gin.Context) {
	var req emailOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a valid email is required"})
		return
	}

	if err := h.voting.RequestEmailOTP(c.Param("id"), req.Email); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "if the address is registered for this election, a code has been sent",
	})
}

type verifyEmailOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// VerifyEmailOTP completes the email path and returns a ballot token.
func (h *VotingHandler) VerifyEmailOTP(c *gin.Context) {
	var req verifyEmailOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and code are required"})
		return
	}

	token, err := h.voting.VerifyEmailOTP(c.Param("id"), req.Email, req.Code)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ballot_token": token})
}

type secretCodeRequest struct {
	Name       string `json:"name" binding:"required"`
	Identifier string `json:"identifier" binding:"required"`
	Code       string `json:"code" binding:"required"`
}

// AuthenticateSecretCode completes the offline secret-code path.
func (h *VotingHandler) AuthenticateSecretCode(c *gin.Context) {
	var req secretCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, identifier and code are required"})
		return
	}

	token, err := h.voting.AuthenticateSecretCode(c.Param("id"), req.Name, req.Identifier, req.Code)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ballot_token": token})
}

type castBallotRequest struct {
	BallotToken string `json:"ballot_token" binding:"required"`
	CandidateID string `json:"candidate_id" binding:"required"`
}

// CastBallot records the ballot authorized by a ballot token.
func (h *VotingHandler) CastBallot(c *gin.Context) {
	var req castBallotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ballot_token and candidate_id are required"})
		return
	}

	message, err := h.voting.CastBallot(req.BallotToken, req.CandidateID)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}
