package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	. "visitor-access-control/internal/config"
	"visitor-access-control/internal/storage"
	"visitor-access-control/internal/visitor"
)

type createVisitorRequest struct {
	FlatNumber    string `json:"flat_number" binding:"required"`
	VisitorName   string `json:"visitor_name" binding:"required"`
	VisitorPhone  string `json:"visitor_phone"`
	Purpose       string `json:"purpose"`
	VehicleNumber string `json:"vehicle_number"`
	PhotoRef      string `json:"photo_ref"`
}

type denyVisitorRequest struct {
	Reason string `json:"reason"`
}

type visitorResponse struct {
	ID            string     `json:"id"`
	FlatNumber    string     `json:"flat_number"`
	VisitorName   string     `json:"visitor_name"`
	VisitorPhone  string     `json:"visitor_phone,omitempty"`
	Purpose       string     `json:"purpose,omitempty"`
	VehicleNumber string     `json:"vehicle_number,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	DeniedAt      *time.Time `json:"denied_at,omitempty"`
	DenyReason    *string    `json:"deny_reason,omitempty"`
	EnteredAt     *time.Time `json:"entered_at,omitempty"`
	ExitedAt      *time.Time `json:"exited_at,omitempty"`
	RiskScore     int        `json:"risk_score"`
	RiskLevel     string     `json:"risk_level"`
	RiskFactors   []string   `json:"risk_factors,omitempty"`
}

func toVisitorResponse(rec *storage.VisitorRecord) visitorResponse {
	return visitorResponse{
		ID:            rec.ID,
		FlatNumber:    rec.FlatNumber,
		VisitorName:   rec.VisitorName,
		VisitorPhone:  rec.VisitorPhone,
		Purpose:       rec.Purpose,
		VehicleNumber: rec.VehicleNumber,
		Status:        string(rec.Status),
		CreatedAt:     rec.CreatedAt,
		ApprovedAt:    rec.ApprovedAt,
		DeniedAt:      rec.DeniedAt,
		DenyReason:    rec.DenyReason,
		EnteredAt:     rec.EnteredAt,
		ExitedAt:      rec.ExitedAt,
		RiskScore:     rec.RiskScore,
		RiskLevel:     rec.RiskLevel,
		RiskFactors:   rec.RiskFactors,
	}
}

// actorID identifies who performed the action. Resident identity comes from
// the upstream app gateway, which is trusted to set the header.
func actorID(c *gin.Context) string {
	if actor := c.GetHeader("X-Actor-ID"); actor != "" {
		return actor
	}
	return "gate"
}

// VisitorRoutes wires the visit lifecycle endpoints.
func VisitorRoutes(r *gin.RouterGroup, visitors *visitor.Service) {

	// Register a walk-in visitor; the record starts pending
	r.POST("", func(c *gin.Context) {
		var req createVisitorRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("Invalid visitor create request", "error", err)
			AbortWithError(c, ErrInvalidRequest)
			return
		}

		rec, err := visitors.Create(c.Request.Context(), visitor.CreateRequest{
			SocietyID:     Cfg.SocietyID,
			FlatNumber:    req.FlatNumber,
			VisitorName:   req.VisitorName,
			VisitorPhone:  req.VisitorPhone,
			Purpose:       req.Purpose,
			VehicleNumber: req.VehicleNumber,
			PhotoRef:      req.PhotoRef,
			CreatedBy:     actorID(c),
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"visitor": toVisitorResponse(rec)})
	})

	// List visitors, optionally filtered by status
	r.GET("", func(c *gin.Context) {
		status := storage.VisitorStatus(c.Query("status"))

		recs, err := visitors.List(c.Request.Context(), Cfg.SocietyID, status)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		out := make([]visitorResponse, 0, len(recs))
		for i := range recs {
			out = append(out, toVisitorResponse(&recs[i]))
		}
		c.JSON(http.StatusOK, gin.H{"visitors": out})
	})

	r.GET("/:id", func(c *gin.Context) {
		rec, err := visitors.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"visitor": toVisitorResponse(rec)})
	})

	r.POST("/:id/approve", func(c *gin.Context) {
		rec, err := visitors.Approve(c.Request.Context(), c.Param("id"), actorID(c))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"visitor": toVisitorResponse(rec)})
	})

	r.POST("/:id/deny", func(c *gin.Context) {
		var req denyVisitorRequest
		// Body is optional; a bare deny carries no reason
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				AbortWithError(c, ErrInvalidRequest)
				return
			}
		}

		rec, err := visitors.Deny(c.Request.Context(), c.Param("id"), actorID(c), req.Reason)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"visitor": toVisitorResponse(rec)})
	})

	r.POST("/:id/enter", func(c *gin.Context) {
		rec, err := visitors.MarkEntered(c.Request.Context(), c.Param("id"), actorID(c))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"visitor": toVisitorResponse(rec)})
	})

	r.POST("/:id/exit", func(c *gin.Context) {
		rec, err := visitors.MarkExited(c.Request.Context(), c.Param("id"), actorID(c))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"visitor": toVisitorResponse(rec)})
	})
}
