package server

import (
	"net/http"
	"strings"
	"time"

	"auction-engine/internal/auth"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":    c.Request.Method,
		"path":      c.Request.URL.Path,
		"status":    c.Writer.Status(),
		"latency":   time.Since(start).String(),
		"client_ip": c.ClientIP(),
	}
	if p, ok := helpers.Principal(c); ok {
		fields["user_id"] = p.UserID
	}
	utils.Info("HTTP Request", fields)
}

// CORSMiddleware answers preflight requests and echoes allowed origins.
// Credentials are allowed because the access token may travel as a cookie.
func CORSMiddleware(allowed []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if _, ok := origins[origin]; ok && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Authenticate resolves the caller from the bearer header or the access
// token cookie. Requests without a valid token continue anonymously;
// RequireAuth rejects them where a caller is mandatory.
func Authenticate(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.TokenFromRequest(c.Request)
		if token == "" {
			c.Next()
			return
		}
		p, err := verifier.Verify(token)
		if err != nil {
			utils.Debug("auth: ignoring invalid token", map[string]any{"path": c.Request.URL.Path, "error": err.Error()})
			c.Next()
			return
		}
		c.Set(helpers.PrincipalKey, p)
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// RequireAuth aborts with 401 when Authenticate found no caller.
func RequireAuth(c *gin.Context) {
	if _, ok := helpers.Principal(c); !ok {
		utils.AbortWithError(c, http.StatusUnauthorized, "authentication required", "Unauthenticated")
		return
	}
	c.Next()
}

// RateLimitMiddleware takes one token per request from the caller's bucket,
// keyed by user id or, for anonymous callers, by client IP.
func RateLimitMiddleware(limiter *helpers.KeyedLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if p, ok := helpers.Principal(c); ok {
			key = "user:" + p.UserID
		}
		if !limiter.Allow(key) {
			utils.Warn("rate limit exceeded", map[string]any{"key": key, "path": c.Request.URL.Path})
			utils.AbortWithError(c, http.StatusTooManyRequests, "rate limit exceeded", "RateLimited")
			return
		}
		c.Next()
	}
}
