package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"visitor-access-control/internal/storage"
)

func Health(r *gin.RouterGroup, store storage.Provider) {

	r.GET("/health", func(c *gin.Context) {
		version, err := store.GetSchemaVersion(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  "storage unreachable",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"schema_version": version,
		})
	})
}
