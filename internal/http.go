package app

import (
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"

	. "visitor-access-control/internal/config"

	"visitor-access-control/internal/pass"
	routes "visitor-access-control/internal/routes"
	"visitor-access-control/internal/storage"
	"visitor-access-control/internal/visitor"

	"github.com/gin-gonic/gin"
)

func securityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Header("X-XSS-Protection", "1; mode=block")

	// Disable caching
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Next()
}

// Middleware to check if the IP is allowed.
func IPAccessControl(allowedCIDRs []string) gin.HandlerFunc {
	// Parse allowed CIDRs
	var parsedCIDRs []*net.IPNet

	// Allow local networks in debug mode
	if os.Getenv("GIN_MODE") != "release" {
		localhostCIDRs := []string{"127.0.0.1/8", "::1/128"}
		allowedCIDRs = append(allowedCIDRs, localhostCIDRs...)
	}

	for _, cidr := range allowedCIDRs {
		_, net, err := net.ParseCIDR(cidr)
		if err != nil {
			slog.Warn("Invalid CIDR", "cidr", cidr)
			continue
		}
		slog.Debug("Allowed CIDR", "cidr", cidr)
		parsedCIDRs = append(parsedCIDRs, net)
	}

	return func(c *gin.Context) {
		clientIP := net.ParseIP(c.ClientIP())
		if clientIP == nil {
			// Should not happen
			slog.Warn("Invalid client IP", "ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}

		for _, cidr := range parsedCIDRs {
			if cidr.Contains(clientIP) {
				c.Next()
				return
			}
		}
		slog.Warn("IP not allowed", "ip", clientIP)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	}
}

// Services carries the wired service graph into the HTTP layer. Everything is
// constructed once at startup; handlers share nothing else.
type Services struct {
	Store    storage.Provider
	Passes   *pass.Service
	Visitors *visitor.Service
}

func HTTPServer(svcs Services) *gin.Engine {
	r := gin.Default()

	if Cfg.AllowedNetworks != "" {
		slog.Debug("Enabling IP access control", "allowed_networks", Cfg.AllowedNetworks)
		var allowedCIDRs []string

		for cidr := range strings.SplitSeq(Cfg.AllowedNetworks, ",") {
			// Remove spaces and ignore empty sets
			if cidr := strings.TrimSpace(cidr); cidr != "" {
				allowedCIDRs = append(allowedCIDRs, cidr)
			}
		}

		r.Use(IPAccessControl(allowedCIDRs))
	}
	r.Use(securityHeaders)
	r.Use(routes.ErrorHandler())

	r.GET("/config.json", func(c *gin.Context) {
		// Provide an initial config for the scanner clients
		var clientCfg = gin.H{
			"PassTTL":    Cfg.PassTTL,
			"SupportURL": Cfg.SupportURL,
			"SocietyID":  Cfg.SocietyID,
		}

		c.JSON(http.StatusOK, clientCfg)
	})

	routes.Health(r.Group(""), svcs.Store)

	api := r.Group("/api")

	// Pass lifecycle routes
	rg := api.Group("/passes")
	routes.PassRoutes(rg, svcs.Passes, svcs.Visitors)

	// Visitor lifecycle routes
	rg = api.Group("/visitors")
	routes.VisitorRoutes(rg, svcs.Visitors)

	// Audit trail (read-only)
	rg = api.Group("/audit")
	routes.AuditRoutes(rg, svcs.Store)

	return r
}
