// internal/interfaces/http/handlers/common.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/warehouse-backend/internal/domain/shared"
)

// respondError translates domain errors into HTTP responses. Unrecognized
// errors become a 500 with a generic message so internals never leak.
func respondError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, shared.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, shared.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, shared.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, shared.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, shared.ErrInsufficientStock),
		errors.Is(err, shared.ErrOverAllocation),
		errors.Is(err, shared.ErrOverSale),
		errors.Is(err, shared.ErrOverReturn),
		errors.Is(err, shared.ErrCapacityExceeded):
		status = http.StatusUnprocessableEntity
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
		return
	}

	c.JSON(status, gin.H{
		"error": err.Error(),
	})
}

// bindError responds to a request body that failed validation
func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request data",
		"details": err.Error(),
	})
}
