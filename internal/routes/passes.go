package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	. "visitor-access-control/internal/config"
	"visitor-access-control/internal/pass"
	"visitor-access-control/internal/storage"
	"visitor-access-control/internal/utils"
	"visitor-access-control/internal/visitor"
)

type issuePassRequest struct {
	VisitorName  string    `json:"visitor_name" binding:"required"`
	VisitorPhone string    `json:"visitor_phone"`
	FlatNumber   string    `json:"flat_number" binding:"required"`
	ResidentRef  string    `json:"resident_ref"`
	Purpose      string    `json:"purpose"`
	ValidFrom    time.Time `json:"valid_from"`
	ValidUntil   time.Time `json:"valid_until"`
	MaxScans     int       `json:"max_scans"`
}

type redeemPassRequest struct {
	PassID string `json:"pass_id" binding:"required"`
	Token  string `json:"token" binding:"required"`
	// Optional; gates send one per physical scan so a retried request is
	// recognized instead of consuming a second scan.
	IdempotencyKey string `json:"idempotency_key"`
}

type passResponse struct {
	PassID        string     `json:"pass_id"`
	VisitorName   string     `json:"visitor_name"`
	VisitorPhone  string     `json:"visitor_phone,omitempty"`
	FlatNumber    string     `json:"flat_number"`
	Purpose       string     `json:"purpose,omitempty"`
	ValidFrom     time.Time  `json:"valid_from"`
	ValidUntil    time.Time  `json:"valid_until"`
	MaxScans      int        `json:"max_scans"`
	ScansUsed     int        `json:"scans_used"`
	IsActive      bool       `json:"is_active"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
}

func toPassResponse(cred *storage.Credential) passResponse {
	return passResponse{
		PassID:        cred.PassID,
		VisitorName:   cred.VisitorName,
		VisitorPhone:  cred.VisitorPhone,
		FlatNumber:    cred.FlatNumber,
		Purpose:       cred.Purpose,
		ValidFrom:     cred.ValidFrom,
		ValidUntil:    cred.ValidUntil,
		MaxScans:      cred.MaxScans,
		ScansUsed:     cred.ScansUsed,
		IsActive:      cred.IsActive,
		LastScannedAt: cred.LastScannedAt,
	}
}

// redeemURL builds the URL a gate scanner follows. The token rides in the
// query string; it carries no secrets beyond the signature itself.
func redeemURL(c *gin.Context, passID, token string) string {
	base := utils.GetBaseURL(c, Cfg.BaseURL)
	return fmt.Sprintf("%s/api/passes/redeem?pass_id=%s&token=%s",
		base, url.QueryEscape(passID), url.QueryEscape(token))
}

// PassRoutes wires the pass lifecycle endpoints. Services are injected; the
// handlers hold no state of their own.
func PassRoutes(r *gin.RouterGroup, passes *pass.Service, visitors *visitor.Service) {

	// Issue a new pass
	r.POST("", func(c *gin.Context) {
		var req issuePassRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("Invalid pass issue request", "error", err)
			AbortWithError(c, ErrInvalidRequest)
			return
		}

		// Default the validity window and scan limit for the common case of
		// a same-day single-entry pass.
		now := time.Now().UTC()
		if req.ValidFrom.IsZero() {
			req.ValidFrom = now
		}
		if req.ValidUntil.IsZero() {
			req.ValidUntil = req.ValidFrom.Add(time.Duration(Cfg.PassTTL) * time.Minute)
		}
		if req.MaxScans == 0 {
			req.MaxScans = 1
		}

		issued, err := passes.Issue(c.Request.Context(), pass.IssueRequest{
			VisitorName:  req.VisitorName,
			VisitorPhone: req.VisitorPhone,
			FlatNumber:   req.FlatNumber,
			ResidentRef:  req.ResidentRef,
			Purpose:      req.Purpose,
			ValidFrom:    req.ValidFrom,
			ValidUntil:   req.ValidUntil,
			MaxScans:     req.MaxScans,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"pass":   toPassResponse(&issued.Credential),
			"token":  issued.Token,
			"url":    redeemURL(c, issued.Credential.PassID, issued.Token),
			"qr_png": utils.UrlFor(c, r.BasePath()+"/"+issued.Credential.PassID+"/qr.png"),
		})
	})

	// Redeem one scan. This is the gate-device endpoint, so it sits behind
	// the gate key check.
	r.POST("/redeem", GateKeyAuth(Cfg.Secret, Cfg.GateKeyHash), func(c *gin.Context) {
		var req redeemPassRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("Invalid redeem request", "error", err)
			AbortWithError(c, ErrInvalidRequest)
			return
		}

		cred, err := passes.Redeem(c.Request.Context(), req.PassID, req.Token, req.IdempotencyKey)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		// The pass holder was vetted at issue time; record the arrival as an
		// approved visit with no risk scoring.
		rec, err := visitors.CreateFromRedemption(c.Request.Context(), cred, Cfg.SocietyID)
		if err != nil {
			// The scan is consumed either way; surface the record failure.
			AbortWithError(c, err)
			return
		}

		remaining := storage.UnlimitedScans
		if cred.MaxScans != storage.UnlimitedScans {
			remaining = cred.MaxScans - cred.ScansUsed
		}

		c.JSON(http.StatusOK, gin.H{
			"success":         true,
			"pass":            toPassResponse(cred),
			"scans_remaining": remaining,
			"visitor_id":      rec.ID,
		})
	})

	// Fetch a pass
	r.GET("/:pass_id", func(c *gin.Context) {
		cred, err := passes.Get(c.Request.Context(), c.Param("pass_id"))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"pass": toPassResponse(cred)})
	})

	// JSON endpoint for QR data (client-side generation)
	r.GET("/:pass_id/qr.json", func(c *gin.Context) {
		cred, err := passes.Get(c.Request.Context(), c.Param("pass_id"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		token, err := passes.TokenFor(cred)
		if err != nil {
			slog.Error("Failed to derive pass token", "pass_id", cred.PassID, "error", err)
			AbortWithError(c, ErrInternalServer)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"url":        redeemURL(c, cred.PassID, token),
			"expires_at": cred.ValidUntil.Format(time.RFC3339),
		})
	})

	// Server-side rendered QR image
	r.GET("/:pass_id/qr.png", func(c *gin.Context) {
		cred, err := passes.Get(c.Request.Context(), c.Param("pass_id"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		token, err := passes.TokenFor(cred)
		if err != nil {
			slog.Error("Failed to derive pass token", "pass_id", cred.PassID, "error", err)
			AbortWithError(c, ErrInternalServer)
			return
		}

		png, err := qrcode.Encode(redeemURL(c, cred.PassID, token), qrcode.Medium, QR_IMAGE_SIZE)
		if err != nil {
			AbortWithError(c, ErrQRGeneration)
			return
		}

		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, "image/png", png)
	})

	// Revoke a pass. Idempotent: revoking a retired pass is a no-op 200.
	r.POST("/:pass_id/revoke", func(c *gin.Context) {
		actor := c.GetHeader("X-Actor-ID")
		if actor == "" {
			actor = "admin"
		}

		if err := passes.Revoke(c.Request.Context(), c.Param("pass_id"), actor); err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
}
