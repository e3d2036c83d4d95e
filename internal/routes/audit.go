package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"visitor-access-control/internal/storage"
)

const DEFAULT_AUDIT_LIMIT = 100

// AuditRoutes exposes read access to the audit trail. Writes go through the
// services only; there is deliberately no POST here.
func AuditRoutes(r *gin.RouterGroup, store storage.Provider) {

	// Entries for one target (a pass ID or a visitor record ID), newest first
	r.GET("/:target_id", func(c *gin.Context) {
		limit := DEFAULT_AUDIT_LIMIT
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				AbortWithError(c, ErrInvalidRequest)
				return
			}
			limit = parsed
		}

		entries, err := store.ListAuditEntries(c.Request.Context(), c.Param("target_id"), limit)
		if err != nil {
			AbortWithError(c, ErrAuditUnreadable)
			return
		}

		c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
	})
}
