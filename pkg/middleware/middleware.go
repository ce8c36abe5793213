package middleware

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/auth"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/metrics"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.RWMutex

	// Configure limits per endpoint type
	authLimit     = rate.Limit(10.0 / 60.0)   // 10 requests per minute
	tradingLimit  = rate.Limit(600.0 / 60.0)  // 600 requests per minute
	internalLimit = rate.Limit(6000.0 / 60.0) // 6000 requests per minute
	queryLimit    = rate.Limit(1200.0 / 60.0) // 1200 requests per minute
)

// Cleanup old visitors periodically
func init() {
	go cleanupVisitors()
}

func limitFor(path string) (rate.Limit, int) {
	switch {
	case strings.HasPrefix(path, "/api/v1/auth"):
		return authLimit, 1
	case strings.HasPrefix(path, "/api/v1/internal"):
		return internalLimit, 50
	case strings.HasPrefix(path, "/api/v1/orders") && !strings.Contains(path, "executions"):
		return tradingLimit, 10
	case strings.HasPrefix(path, "/api/v1/"):
		return queryLimit, 20
	default:
		return rate.Inf, 1
	}
}

func getLimiter(path, visitorID string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := visitorID + ":" + path
	v, exists := visitors[key]

	if !exists {
		limit, burst := limitFor(path)
		v = &visitor{
			limiter:  rate.NewLimiter(limit, burst),
			lastSeen: time.Now(),
		}
		visitors[key] = v
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		mu.Lock()
		for key, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, key)
			}
		}
		mu.Unlock()
	}
}

// RateLimit limits requests per route class. Mounted after JWTAuth or
// InternalAuth it keys on the account, otherwise on the client IP.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		visitorID := auth.GetAccountID(c)
		if visitorID == "" {
			visitorID = c.ClientIP()
		}

		limiter := getLimiter(c.FullPath(), visitorID)
		if !limiter.Allow() {
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuth requires a valid bearer token and stores its claims in the context.
func JWTAuth(service *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, service)
		if !ok {
			return
		}

		c.Set(auth.ContextClaims, claims)
		c.Set(auth.ContextAccountID, claims.AccountID)
		c.Next()
	}
}

// InternalAuth requires a valid bearer token carrying the internal
// permission. It guards endpoints called by other services, such as trade
// submission from the venue and recalculation requests.
func InternalAuth(service *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, service)
		if !ok {
			return
		}

		if !claims.HasPermission(auth.PermissionInternal) {
			response.Forbidden(c, "Internal permission required")
			c.Abort()
			return
		}

		c.Set(auth.ContextClaims, claims)
		c.Set(auth.ContextAccountID, claims.AccountID)
		c.Next()
	}
}

func authenticate(c *gin.Context, service *auth.Service) (*auth.Claims, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		response.Unauthorized(c, "Authorization header required")
		c.Abort()
		return nil, false
	}

	bearerToken := strings.Split(authHeader, " ")
	if len(bearerToken) != 2 || strings.ToLower(bearerToken[0]) != "bearer" {
		response.Unauthorized(c, "Invalid authorization header format")
		c.Abort()
		return nil, false
	}

	claims, err := service.ValidateToken(bearerToken[1])
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		c.Abort()
		return nil, false
	}

	return claims, true
}

// Metrics records the duration of every request by route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// RequestLogger logs every request through zerolog.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Info()
		if c.Writer.Status() >= 500 {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request handled")
	}
}
