package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/srm-service/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
// An empty case message echoes the error text. Unmapped errors are attached to the gin context for the access log.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			message := cs.Message
			if message == "" {
				message = err.Error()
			}
			c.JSON(cs.Status, NewErrorResponse(c, message))
			return
		}
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// usecaseErrorCases is the standard mapping of usecase sentinels.
func usecaseErrorCases(notFoundMessage string) []ErrorCase {
	return []ErrorCase{
		{Err: usecase.ErrValidation, Status: http.StatusBadRequest},
		{Err: usecase.ErrNotFound, Status: http.StatusNotFound, Message: notFoundMessage},
		{Err: usecase.ErrConflict, Status: http.StatusConflict},
		{Err: usecase.ErrDependencyUnavailable, Status: http.StatusServiceUnavailable, Message: "dependency temporarily unavailable"},
	}
}
