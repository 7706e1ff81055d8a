package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/srm-service/internal/transport/http/middleware"
)

// SessionHandler exposes the caller's authorization payload.
type SessionHandler struct {
	authz middleware.AuthorizationProvider
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(authz middleware.AuthorizationProvider) *SessionHandler {
	return &SessionHandler{authz: authz}
}

// Session godoc
// @Summary Current authorization payload
// @Description Returns functions, effective and functional permissions, purchasing groups and leader status of the caller.
// @Tags Auth
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} domain.AuthorizationSnapshot
// @Failure 401 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/auth/session [get]
func (h *SessionHandler) Session(c *gin.Context) {
	payload, ok := middleware.LoadAuthorization(c, h.authz)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, payload.Snapshot())
}
