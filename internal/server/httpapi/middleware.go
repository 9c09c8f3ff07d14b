package httpapi

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/common"
	"github.com/dmitrijs2005/inboxview/internal/server/metrics"
	"github.com/gin-gonic/gin"
)

const (
	usernameKey    = "username"
	accessTokenKey = "accessToken"
)

// observe records the request duration histogram and a debug access log.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		metrics.ObserveHTTPRequest(c.Request.Method, route, strconv.Itoa(status), elapsed)
		s.logger.Debug(c.Request.Context(), "request", "method", c.Request.Method, "route", route, "status", status, "duration", elapsed)
	}
}

// requireBearer resolves the caller from the Authorization header and stores
// the username for the handlers.
func (s *Server) requireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			s.abortWithError(c, common.ErrInvalidToken)
			return
		}

		username, err := s.services.Auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			s.abortWithError(c, err)
			return
		}

		c.Set(usernameKey, username)
		c.Set(accessTokenKey, token)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader(common.AuthorizationHeaderName)
	n := len(common.BearerPrefix)
	if len(header) <= n || !strings.EqualFold(header[:n], common.BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[n:])
	return token, token != ""
}

func currentUsername(c *gin.Context) (string, error) {
	username := c.GetString(usernameKey)
	if username == "" {
		return "", errors.Join(common.ErrInvalidToken, errors.New("no authenticated user"))
	}
	return username, nil
}
