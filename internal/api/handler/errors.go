package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ryanmac/youtube-extraction-service/internal/domain"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
)

// writeError maps domain error kinds onto HTTP statuses.
func writeError(c *gin.Context, action string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		logger.CtxError(c.Request.Context(), "%s failed: %v", action, err)
	}
	c.JSON(status, gin.H{"error": action + " failed: " + err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
