// Package httpkit is the gin glue shared by every module: request ids,
// access logging, admin token checks, per-IP throttling and the JSON error
// envelope.
package httpkit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/syed-c/standzon-sub008/platform/apperr"
	"github.com/syed-c/standzon-sub008/platform/config"
	"github.com/syed-c/standzon-sub008/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// ContextSubjectKey is the gin context key for the authenticated token subject.
	ContextSubjectKey = "subject"
	// ContextRolesKey is the gin context key for the operator's roles.
	ContextRolesKey = "roles"
	// HeaderRequestID carries the request correlation id.
	HeaderRequestID = "X-Request-ID"

	errMissingToken = "missing token"
	errInvalidToken = "invalid token"
)

// RequestID assigns a correlation id and stores it on the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogger logs every request with its latency, and the last handler
// error for failed ones.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		var err error
		if last := c.Errors.Last(); last != nil {
			err = last.Err
		}
		log.WithContext(c.Request.Context()).
			HTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start), c.ClientIP(), err)
	}
}

// SecurityHeaders adds security headers to responses.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'")

		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
	log      *logger.Logger
}

func NewIPRateLimiter(r rate.Limit, burst int, log *logger.Logger) *IPRateLimiter {
	return &IPRateLimiter{rate: r, burst: burst, log: log}
}

// NewSubmissionRateLimiter allows perMinute lead submissions per client IP,
// all of which may arrive as one burst.
func NewSubmissionRateLimiter(perMinute int, log *logger.Logger) *IPRateLimiter {
	if perMinute < 1 {
		perMinute = 10
	}
	return NewIPRateLimiter(rate.Limit(float64(perMinute)/60.0), perMinute, log)
}

func (i *IPRateLimiter) limiterFor(ip string) *rate.Limiter {
	limiter, _ := i.limiters.LoadOrStore(ip, rate.NewLimiter(i.rate, i.burst))
	return limiter.(*rate.Limiter)
}

// RateLimit rejects requests over budget with 429 and a Retry-After header.
func (i *IPRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		r := i.limiterFor(ip).Reserve()
		if delay := r.Delay(); delay > 0 {
			r.Cancel()
			if i.log != nil {
				i.log.RateLimitExceeded(ip, c.Request.URL.Path)
			}
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			abort(c, apperr.RateLimited("rate limit exceeded"))
			return
		}
		c.Next()
	}
}

// AuthRequired accepts HS256 bearer tokens with type=access and a subject.
func AuthRequired(cfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawToken, ok := extractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			abort(c, apperr.Unauthorized(errMissingToken))
			return
		}

		claims, err := parseAccessClaims(rawToken, cfg)
		if err != nil {
			abort(c, apperr.Unauthorized(errInvalidToken))
			return
		}

		subject, _ := claims["sub"].(string)
		if strings.TrimSpace(subject) == "" {
			abort(c, apperr.Unauthorized(errInvalidToken))
			return
		}

		c.Set(ContextSubjectKey, subject)
		c.Set(ContextRolesKey, extractRoles(claims))
		c.Next()
	}
}

// RequireRole must run after AuthRequired.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetIdentity(c).HasRole(role) {
			abort(c, apperr.Forbidden("forbidden"))
			return
		}
		c.Next()
	}
}

// extractRoles reads the "roles" array claim, falling back to a single
// "role" string.
func extractRoles(claims jwt.MapClaims) []string {
	roles := make([]string, 0, 1)
	switch typed := claims["roles"].(type) {
	case []string:
		roles = append(roles, typed...)
	case []any:
		for _, item := range typed {
			if text, ok := item.(string); ok {
				roles = append(roles, text)
			}
		}
	}
	if role, ok := claims["role"].(string); ok && role != "" {
		roles = append(roles, role)
	}
	return roles
}

func extractBearerToken(authHeader string) (string, bool) {
	rawToken, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return "", false
	}
	rawToken = strings.TrimSpace(rawToken)
	return rawToken, rawToken != ""
}

func parseAccessClaims(rawToken string, cfg config.JWTConfig) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.GetJWTAccessSecret()), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if tokenType, _ := claims["type"].(string); tokenType != "access" {
		return nil, errors.New(errInvalidToken)
	}
	return claims, nil
}

func abort(c *gin.Context, err *apperr.Error) {
	c.AbortWithStatusJSON(err.HTTPStatus(), ErrorResponse{
		Error:     err.Message,
		Kind:      err.Kind.String(),
		RequestID: requestID(c),
	})
}
