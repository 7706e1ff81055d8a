package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/srm-service/internal/core/domain"
	"github.com/arklim/srm-service/internal/usecase"
)

const authorizationKey = "authorization"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// TokenVerifier validates a bearer token and returns the user id it asserts.
type TokenVerifier interface {
	Verify(raw string) (string, error)
}

// AuthorizationProvider resolves the authorization payload of a user.
type AuthorizationProvider interface {
	BuildForUserID(ctx context.Context, userID string) (domain.AuthorizationPayload, error)
}

// RequireAuth validates the Authorization header and stores the caller's user id.
func RequireAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing authorization header"))
			return
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing access token"))
			return
		}

		userID, err := verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid access token"))
			return
		}

		c.Set(UserIDKey, userID)
		GetRequestContext(c).UserID = userID

		c.Next()
	}
}

// RequirePermission loads the caller's authorization payload and requires at least one
// of the listed permissions. With no permissions it only loads the payload.
func RequirePermission(authz AuthorizationProvider, permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, ok := LoadAuthorization(c, authz)
		if !ok {
			return
		}

		if len(permissions) > 0 && !hasAnyPermission(payload, permissions) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient permissions"))
			return
		}

		c.Next()
	}
}

// LoadAuthorization returns the caller's payload, building it once per request. On failure it
// aborts the request and returns false.
func LoadAuthorization(c *gin.Context, authz AuthorizationProvider) (domain.AuthorizationPayload, bool) {
	if cached, exists := c.Get(authorizationKey); exists {
		if payload, ok := cached.(domain.AuthorizationPayload); ok {
			return payload, true
		}
	}

	userID, ok := GetAuthenticatedUserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorResponse(c, "authentication required"))
		return domain.AuthorizationPayload{}, false
	}

	payload, err := authz.BuildForUserID(c.Request.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "unknown user"))
		case errors.Is(err, usecase.ErrDependencyUnavailable):
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				newErrorResponse(c, "authorization temporarily unavailable"))
		default:
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				newErrorResponse(c, "authorization failed"))
		}
		return domain.AuthorizationPayload{}, false
	}

	c.Set(authorizationKey, payload)
	return payload, true
}

func hasAnyPermission(payload domain.AuthorizationPayload, required []string) bool {
	for _, permission := range required {
		if payload.HasPermission(permission) {
			return true
		}
	}
	return false
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers)
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	id := c.GetString(UserIDKey)
	return id, id != ""
}
