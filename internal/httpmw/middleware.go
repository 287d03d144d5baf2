// Package httpmw provides the Gin middleware shared by the webhook and
// operator HTTP surfaces: security headers, request logging, panic recovery,
// rate limiting, and JWT auth for operator endpoints.
package httpmw

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	apperrors "github.com/drivelog/tripcore/pkg/errors"

	"github.com/drivelog/tripcore/internal/logging"
)

// SecurityHeaders adds the standard set of defensive HTTP headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// RequestLogging assigns a request ID and logs method/path/status/duration
// for every request.
func RequestLogging(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Set("request_id", requestID)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		logger.LogHTTPRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), duration)

		if len(c.Errors) > 0 {
			logger.Error("request error", "errors", c.Errors.String(), "path", c.Request.URL.Path)
		}
	}
}

// Recovery converts a panic into a 500 AppError response instead of
// crashing the process.
func Recovery(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", "error", r, "path", c.Request.URL.Path)
				WriteError(c, apperrors.NewInternalError("internal server error"))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// RateLimit enforces a fixed requests-per-minute ceiling shared across all
// callers. The telemetry ingestion endpoint is expected to see many
// concurrent vehicles, so this is intentionally coarse rather than per-key.
func RateLimit(requestsPerMinute int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			WriteError(c, apperrors.NewTooManyRequestsError("rate limit exceeded"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// operatorClaims is the JWT payload for operator-endpoint callers.
type operatorClaims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// OperatorAuth validates a bearer JWT signed with secret and stores the
// caller's subject in the Gin context under "operator_id".
func OperatorAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == "" || tokenString == authHeader {
			WriteError(c, apperrors.NewUnauthorizedError("missing bearer token"))
			c.Abort()
			return
		}

		token, err := jwt.ParseWithClaims(tokenString, &operatorClaims{}, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			WriteError(c, apperrors.NewUnauthorizedError("invalid token"))
			c.Abort()
			return
		}

		claims := token.Claims.(*operatorClaims)
		c.Set("operator_id", claims.Subject)
		c.Next()
	}
}

// WriteError renders an AppError (or a generic error wrapped as one) as the
// standard JSON error body.
func WriteError(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)
	c.JSON(appErr.Status, gin.H{
		"error":   appErr.Code,
		"message": appErr.Message,
	})
}

// WebhookToken checks a static shared-secret bearer token on the ingestion
// endpoint against its bcrypt hash. Distinct from OperatorAuth: webhook
// senders are machines with a long-lived static credential, not JWT-bearing
// human operators, so there's no session to mint — just a stored hash to
// compare against.
func WebhookToken(tokenHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenHash == "" {
			c.Next()
			return
		}
		authHeader := c.GetHeader("Authorization")
		got := strings.TrimPrefix(authHeader, "Bearer ")
		if got == "" || bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(got)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"accepted": false})
			c.Abort()
			return
		}
		c.Next()
	}
}

// HashWebhookToken bcrypt-hashes a shared secret for storage in config, so
// the plaintext token never sits at rest. Operators run this once when
// provisioning a webhook credential; the resulting hash is what config
// carries and WebhookToken compares against.
func HashWebhookToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
