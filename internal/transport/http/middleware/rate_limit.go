package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/srm-service/internal/core/port"
)

const (
	rateLimitProblemType  = "https://srm.example.com/problems/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// BatchLimit is a request budget per authenticated actor shared by every route that uses it.
type BatchLimit struct {
	Name   string
	Limit  int
	Window time.Duration
	// ScopeParam splits the budget by a path parameter such as tagId, so hammering one tag
	// does not lock the actor out of the others. Empty means one budget per actor.
	ScopeParam string
}

// RateLimiter enforces batch budgets backed by a port.RateLimitStore.
type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

// ProblemDetails represents an RFC 9457 compatible error payload for rate limits.
type ProblemDetails struct {
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Status     int            `json:"status"`
	Detail     string         `json:"detail"`
	Instance   string         `json:"instance"`
	RetryAfter int            `json:"retry_after"`
	TraceID    string         `json:"trace_id,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the clock.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// Limit returns a Gin middleware enforcing the budget. It must run after RequireAuth; requests
// without an actor pass through. Store failures fail open.
func (rl *RateLimiter) Limit(limit BatchLimit) gin.HandlerFunc {
	if limit.Name == "" {
		limit.Name = "batch"
	}
	if rl.store == nil || limit.Limit <= 0 || limit.Window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		actorID, ok := GetAuthenticatedUserID(c)
		if !ok {
			c.Next()
			return
		}

		key := limit.key(c, actorID)
		now := rl.now()

		window, err := rl.store.Admit(c.Request.Context(), key, limit.Limit, limit.Window, now)
		if err != nil {
			rl.logger.Warn("rate limit check failed", zap.String("limit", limit.Name), zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		reset := now.Add(limit.Window)
		if !window.Oldest.IsZero() {
			reset = window.Oldest.Add(limit.Window)
		}

		headers := c.Writer.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(limit.Limit))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(max(limit.Limit-window.Count, 0)))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !window.Admitted {
			retryAfter := max(int(math.Ceil(reset.Sub(now).Seconds())), 0)
			headers.Set("Retry-After", strconv.Itoa(retryAfter))
			rl.reject(c, limit, retryAfter)
			return
		}

		c.Next()
	}
}

func (l BatchLimit) key(c *gin.Context, actorID string) string {
	var b strings.Builder
	b.WriteString(l.Name)
	b.WriteByte(':')
	b.WriteString(actorID)
	if l.ScopeParam != "" {
		if value := strings.TrimSpace(c.Param(l.ScopeParam)); value != "" {
			fmt.Fprintf(&b, ":%s=%s", l.ScopeParam, value)
		}
	}
	return b.String()
}

func (rl *RateLimiter) reject(c *gin.Context, limit BatchLimit, retryAfter int) {
	instance := c.Request.URL.Path

	extensions := map[string]any{
		"limit":  limit.Name,
		"budget": limit.Limit,
	}
	if limit.ScopeParam != "" {
		extensions["scope"] = limit.ScopeParam
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many batch requests. Try again in %d seconds.", retryAfter),
		Instance:   instance,
		RetryAfter: retryAfter,
		TraceID:    GetTraceID(c),
		Extensions: extensions,
	})
}
