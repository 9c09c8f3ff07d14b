package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type errorResponse struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error"`
	StatusCode int       `json:"statusCode"`
}

var errorStatuses = []struct {
	err     error
	status  int
	message string
}{
	{common.ErrInvalidCredentials, http.StatusUnauthorized, "invalid username or password"},
	{common.ErrSessionInvalid, http.StatusUnauthorized, "invalid refresh token"},
	{common.ErrInvalidToken, http.StatusUnauthorized, "invalid access token"},
	{common.ErrNotVerified, http.StatusBadRequest, "email is not verified"},
	{common.ErrAlreadyVerified, http.StatusBadRequest, "email is already verified"},
	{common.ErrDuplicateIdentifier, http.StatusBadRequest, "username or email already registered"},
	{common.ErrValidation, http.StatusBadRequest, ""},
	{common.ErrInvalidCode, http.StatusNotFound, "invalid or expired code"},
	{common.ErrorNotFound, http.StatusNotFound, "not found"},
	{common.ErrConcurrentModification, http.StatusConflict, "account was modified concurrently, retry"},
}

// statusFor maps the error taxonomy to a status and a message safe to show
// the client. Validation errors carry their own message.
func statusFor(err error) (int, string) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			if e.message == "" {
				return e.status, err.Error()
			}
			return e.status, e.message
		}
	}
	return http.StatusInternalServerError, "internal error"
}

func (s *Server) abortWithError(c *gin.Context, err error) {
	status, message := statusFor(err)
	resp := errorResponse{
		ID:         uuid.NewString(),
		Timestamp:  s.clock.Now(),
		Error:      message,
		StatusCode: status,
	}

	ctx := c.Request.Context()
	if status >= http.StatusInternalServerError {
		s.logger.Error(ctx, "request failed", "error_id", resp.ID, "route", c.FullPath(), "error", err)
	} else {
		s.logger.Debug(ctx, "request rejected", "error_id", resp.ID, "route", c.FullPath(), "status", status)
	}

	c.AbortWithStatusJSON(status, resp)
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.abortWithError(c, fmt.Errorf("%w: %v", common.ErrValidation, err))
}
