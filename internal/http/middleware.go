package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tazhibayda/features-service/internal/metrics"
	"github.com/tazhibayda/features-service/internal/repo"
	"github.com/tazhibayda/features-service/internal/security"
)

const authUserKey = "authUser"

type AuthUser struct {
	UID   string
	Email string
}

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("X-Request-ID", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.InFlight.Inc()
		c.Next()
		metrics.InFlight.Dec()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.ReqDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(h), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer"})
			return
		}
		tok := strings.TrimSpace(h[len("Bearer "):])
		claims, err := security.ParseAccess(secret, tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		uid := claims.UID
		if uid == "" && claims.Subject != "" {
			uid = claims.Subject
		}
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no uid"})
			return
		}
		c.Set(authUserKey, AuthUser{UID: uid, Email: claims.Email})
		c.Next()
	}
}

// RateLimitLogin защищает только auth-ручки; engagement-операции не
// лимитируются.
func RateLimitLogin(rds *repo.Redis, perMin int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rds == nil || perMin <= 0 {
			c.Next()
			return
		}
		key := c.ClientIP()
		if key == "" {
			key = "unknown"
		}
		if !rds.AllowLogin(c.Request.Context(), key, perMin) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
