package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xmhha/btcwatcher/pkg/logger"
)

// TokenIssuer is the issuer set on and required of API tokens.
const TokenIssuer = "btcwatcher"

// AuthMiddleware handles API authentication. A request passes with either
// a valid HS256 bearer token or the configured API key.
type AuthMiddleware struct {
	jwtSecret []byte
	apiKey    []byte
	logger    *logger.Logger
}

// Claims represents JWT claims
type Claims struct {
	jwt.RegisteredClaims
}

// NewAuthMiddleware creates a new authentication middleware. An empty
// apiKey or jwtSecret disables that method.
func NewAuthMiddleware(apiKey, jwtSecret string, logger *logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: []byte(jwtSecret),
		apiKey:    []byte(apiKey),
		logger:    logger,
	}
}

// Authenticate returns a middleware function for authentication
func (a *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for Bearer token
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if a.validateJWT(c, token) {
				c.Next()
				return
			}
		}

		// Check for API key
		if key := c.GetHeader("X-API-Key"); key != "" && a.validateAPIKey(key) {
			c.Set("auth_method", "api_key")
			c.Next()
			return
		}

		// No valid authentication
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Authentication required",
		})
		c.Abort()
	}
}

// validateJWT validates a JWT token
func (a *AuthMiddleware) validateJWT(c *gin.Context, tokenString string) bool {
	if len(a.jwtSecret) == 0 {
		return false
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		a.logger.Debug("JWT validation failed", zap.Error(err))
		return false
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || !claims.VerifyIssuer(TokenIssuer, true) {
		return false
	}

	c.Set("auth_method", "jwt")
	c.Set("subject", claims.Subject)
	return true
}

// validateAPIKey compares key in constant time
func (a *AuthMiddleware) validateAPIKey(key string) bool {
	if len(a.apiKey) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), a.apiKey) == 1
}

// GenerateJWT generates a signed token for subject valid for ttl
func GenerateJWT(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("JWT secret is not configured")
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    TokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// idleClientTTL is how long an idle client's bucket is kept.
const idleClientTTL = 3 * time.Minute

// NewRateLimiter allows each client requestsPerMinute requests per minute,
// all of which may arrive in a burst.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	return &RateLimiter{
		limit:     rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:     requestsPerMinute,
		clients:   make(map[string]*clientLimiter),
		lastSweep: time.Now(),
	}
}

// Middleware returns the rate limiting handler
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) allow(ip string) bool {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) > time.Minute {
		for key, cl := range r.clients {
			if now.Sub(cl.lastSeen) > idleClientTTL {
				delete(r.clients, key)
			}
		}
		r.lastSweep = now
	}

	cl, ok := r.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}
