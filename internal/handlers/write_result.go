package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"io.winapps.triptracker/internal/cache"
)

// writeStatus maps a cache write result to an HTTP status. A pending write
// was accepted locally but the store has not answered yet.
func writeStatus(result cache.WriteResult) int {
	switch result {
	case cache.WriteConfirmed:
		return http.StatusOK
	case cache.WritePending:
		return http.StatusAccepted
	default:
		return http.StatusBadGateway
	}
}

// respondWrite answers a mutation. body may be nil.
func respondWrite(c *gin.Context, result cache.WriteResult, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["status"] = result.String()
	if result == cache.WriteFailed {
		body["error"] = "The change could not be saved. It will be reconciled on the next sync."
	}
	c.JSON(writeStatus(result), body)
}
