package security

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// HeadersConfig holds configuration for security headers and CORS
type HeadersConfig struct {
	// Content Security Policy directives
	CSPDirectives map[string][]string

	// HSTS configuration
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	HSTSPreload           bool

	// CORS configuration
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration

	// Permissions Policy
	PermissionsPolicy map[string][]string

	// Additional security headers
	ReferrerPolicy      string
	XFrameOptions       string
	XContentTypeOptions bool
}

// DefaultHeadersConfig returns defaults suitable for a JSON API. The CSP
// locks everything down since the service never serves HTML.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSPDirectives: map[string][]string{
			"default-src":     {"'none'"},
			"frame-ancestors": {"'none'"},
			"base-uri":        {"'none'"},
		},
		HSTSMaxAge:            31536000, // 1 year
		HSTSIncludeSubdomains: true,
		HSTSPreload:           false,
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:8080",
			"https://*.scribeflow.io",
		},
		AllowedMethods: []string{
			"GET", "POST", "PUT", "DELETE", "OPTIONS",
		},
		AllowedHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			"X-Requested-With", "X-Request-ID",
		},
		ExposedHeaders: []string{
			"X-Request-ID", "Retry-After",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
		PermissionsPolicy: map[string][]string{
			"camera":      {"'none'"},
			"microphone":  {"'none'"},
			"geolocation": {"'none'"},
			"payment":     {"'none'"},
		},
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		XFrameOptions:       "DENY",
		XContentTypeOptions: true,
	}
}

// HeadersMiddleware returns a Gin middleware that sets security headers
func HeadersMiddleware(config HeadersConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(config.CSPDirectives) > 0 {
			c.Header("Content-Security-Policy", buildCSP(config.CSPDirectives))
		}

		if config.HSTSMaxAge > 0 {
			c.Header("Strict-Transport-Security", buildHSTS(config.HSTSMaxAge, config.HSTSIncludeSubdomains, config.HSTSPreload))
		}

		if len(config.PermissionsPolicy) > 0 {
			c.Header("Permissions-Policy", buildPermissionsPolicy(config.PermissionsPolicy))
		}

		if config.ReferrerPolicy != "" {
			c.Header("Referrer-Policy", config.ReferrerPolicy)
		}

		if config.XFrameOptions != "" {
			c.Header("X-Frame-Options", config.XFrameOptions)
		}

		if config.XContentTypeOptions {
			c.Header("X-Content-Type-Options", "nosniff")
		}

		c.Header("X-Robots-Tag", "noindex, nofollow")
		c.Header("Server", "ScribeFlow")

		c.Next()
	}
}

// CORSMiddleware returns a CORS middleware with the given configuration
func CORSMiddleware(config HeadersConfig) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowOrigins:     config.AllowedOrigins,
		AllowMethods:     config.AllowedMethods,
		AllowHeaders:     config.AllowedHeaders,
		ExposeHeaders:    config.ExposedHeaders,
		AllowCredentials: config.AllowCredentials,
		MaxAge:           config.MaxAge,
	}

	// Wildcard subdomain patterns need custom validation
	if containsWildcard(config.AllowedOrigins) {
		corsConfig.AllowOriginFunc = func(origin string) bool {
			return isOriginAllowed(origin, config.AllowedOrigins)
		}
		corsConfig.AllowOrigins = nil
	}

	return cors.New(corsConfig)
}

func buildCSP(directives map[string][]string) string {
	var parts []string
	for directive, sources := range directives {
		if len(sources) > 0 {
			parts = append(parts, directive+" "+strings.Join(sources, " "))
		}
	}
	return strings.Join(parts, "; ")
}

func buildHSTS(maxAge int, includeSubdomains, preload bool) string {
	hsts := fmt.Sprintf("max-age=%d", maxAge)
	if includeSubdomains {
		hsts += "; includeSubDomains"
	}
	if preload {
		hsts += "; preload"
	}
	return hsts
}

func buildPermissionsPolicy(policies map[string][]string) string {
	var parts []string
	for feature, allowlist := range policies {
		if len(allowlist) > 0 {
			parts = append(parts, feature+"=("+strings.Join(allowlist, " ")+")")
		}
	}
	return strings.Join(parts, ", ")
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if strings.Contains(origin, "*") {
			return true
		}
	}
	return false
}

func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if matchOrigin(origin, allowed) {
			return true
		}
	}
	return false
}

// matchOrigin checks an origin against a pattern. Patterns of the form
// https://*.example.com match any subdomain plus the bare domain.
func matchOrigin(origin, pattern string) bool {
	if pattern == "*" {
		return true
	}

	if !strings.Contains(pattern, "*") {
		return origin == pattern
	}

	if strings.HasPrefix(pattern, "https://*.") {
		domain := strings.TrimPrefix(pattern, "https://*.")
		return strings.HasSuffix(origin, "."+domain) || origin == "https://"+domain
	}

	if strings.HasPrefix(pattern, "http://*.") {
		domain := strings.TrimPrefix(pattern, "http://*.")
		return strings.HasSuffix(origin, "."+domain) || origin == "http://"+domain
	}

	return false
}

// Middleware combines the CORS and header middlewares with request size
// and timeout limits
func Middleware(config HeadersConfig) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		CORSMiddleware(config),
		HeadersMiddleware(config),
		RequestSizeMiddleware(10 << 20), // 10MB
		RequestTimeoutMiddleware(30 * time.Second),
	}
}

// RequestSizeMiddleware limits the size of request bodies
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":    "Request body too large",
				"max_size": maxSize,
			})
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// RequestTimeoutMiddleware aborts requests that outlive the timeout
func RequestTimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		done := make(chan struct{})
		go func() {
			defer close(done)
			c.Next()
		}()

		select {
		case <-done:
			return
		case <-ctx.Done():
			c.JSON(http.StatusRequestTimeout, gin.H{
				"error":   "Request timeout",
				"timeout": timeout.String(),
			})
			c.Abort()
			return
		}
	}
}
