// Package handlers implements the HTTP handlers for the Votely API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JavaBool/votely/internal/service"
)

// respondServiceError maps service errors onto HTTP statuses. Anything
// unrecognized is a 500 with the detail kept out of the response body.
func respondServiceError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, service.ErrInvalidCode):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid verification code"})
	case errors.Is(err, service.ErrCodeExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "verification code expired, request a new one"})
	case errors.Is(err, service.ErrNotEligible):
		c.JSON(http.StatusForbidden, gin.H{"error": "verification failed"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "operation not permitted"})
	case errors.Is(err, service.ErrAlreadyVoted):
		c.JSON(http.StatusConflict, gin.H{"error": "a ballot has already been cast"})
	case errors.Is(err, service.ErrVotingClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "the voting window is closed"})
	case errors.Is(err, service.ErrNominationOver):
		c.JSON(http.StatusConflict, gin.H{"error": "the nomination window is closed"})
	case service.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
