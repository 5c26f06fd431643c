package middleware

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/collectpay/collect-api/internal/auth"
	"github.com/collectpay/collect-api/internal/types"
	"github.com/collectpay/collect-api/pkg/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.RWMutex

	// Configure limits per endpoint type
	authLimit   = rate.Limit(10.0 / 60.0)   // 10 requests per minute
	orderLimit  = rate.Limit(100.0 / 60.0)  // 100 requests per minute
	notifyLimit = rate.Limit(1000.0 / 60.0) // 1000 requests per minute
)

// Cleanup old visitors periodically
func init() {
	go cleanupVisitors()
}

func getLimiter(path, clientIP string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := clientIP + ":" + path
	v, exists := visitors[key]

	if !exists {
		var limit rate.Limit
		switch {
		case strings.HasPrefix(path, "/api/auth"):
			limit = authLimit
		case strings.HasPrefix(path, "/api/v1/orders"):
			limit = orderLimit
		case strings.HasPrefix(path, "/api/v1/notifications"):
			limit = notifyLimit
		default:
			limit = rate.Inf // No limit for other paths
		}

		v = &visitor{
			limiter:  rate.NewLimiter(limit, 1), // burst of 1
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
		for ip, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, ip)
			}
		}
		mu.Unlock()
	}
}

// RateLimit throttles clients per endpoint class.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("merchantID")
		if clientID == "" {
			clientID = c.ClientIP()
		}

		limiter := getLimiter(c.FullPath(), clientID)
		if !limiter.Allow() {
			response.BadRequest(c, "rate limit exceeded, please try again later")
			c.Abort()
			return
		}

		c.Next()
	}
}

// SessionAuth validates the dashboard JWT and loads the merchant into the
// request context.
func SessionAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		bearerToken := strings.Split(c.GetHeader("Authorization"), " ")
		if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "bearer") {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(bearerToken[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		merchant, err := authService.GetMerchant(claims.MerchantID)
		if err != nil {
			response.InternalError(c, "authentication failed")
			c.Abort()
			return
		}
		if merchant == nil {
			response.Unauthorized(c, "merchant not found")
			c.Abort()
			return
		}

		c.Set("merchant", merchant)
		c.Set("merchantID", merchant.ID)
		c.Next()
	}
}

// AdminOnly gates admin endpoints. Requires SessionAuth upstream.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get("merchant")
		merchant, ok := value.(*types.Merchant)
		if !exists || !ok || merchant.Role != types.RoleAdmin {
			response.Forbidden(c, "admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// APIKeyAuth is the signing gate for third-party order creation: API key
// lookup, domain allowlist check, then HMAC verification over the raw
// request body. The body is re-buffered for downstream binding, but the
// signature is always computed over the bytes as received.
func APIKeyAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-Api-Key")
		if apiKey == "" {
			response.Unauthorized(c, "API key required")
			c.Abort()
			return
		}

		signature := c.GetHeader("X-Signature")
		if signature == "" {
			response.Unauthorized(c, "signature required")
			c.Abort()
			return
		}

		merchant, err := authService.GetMerchantByAPIKey(apiKey)
		if err != nil {
			response.InternalError(c, "authentication failed")
			c.Abort()
			return
		}
		if merchant == nil {
			response.Unauthorized(c, "invalid API key")
			c.Abort()
			return
		}

		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = c.GetHeader("Referer")
		}
		if err := authService.CheckOrigin(merchant, origin); err != nil {
			if errors.Is(err, auth.ErrDomainNotAllowed) {
				response.Forbidden(c, "domain not allowed")
			} else {
				response.InternalError(c, "authentication failed")
			}
			c.Abort()
			return
		}

		rawBody, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.BadRequest(c, "unreadable request body")
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(rawBody))

		if err := authService.VerifyRequestSignature(merchant, rawBody, signature); err != nil {
			response.Unauthorized(c, "invalid signature")
			c.Abort()
			return
		}

		c.Set("merchant", merchant)
		c.Set("merchantID", merchant.ID)
		c.Next()
	}
}
