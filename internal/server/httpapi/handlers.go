package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/inboxview/internal/common"
	"github.com/dmitrijs2005/inboxview/internal/server/services"
	"github.com/gin-gonic/gin"
)

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	pair, err := s.services.Auth.Login(c.Request.Context(), req.identifier(), req.Password)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, ExpireAt: pair.ExpiresAt})
}

func (s *Server) refreshToken(c *gin.Context) {
	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	pair, err := s.services.Auth.RefreshToken(c.Request.Context(), req.RefreshToken, req.AccessToken)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, ExpireAt: pair.ExpiresAt})
}

// logout revokes the refresh token from the body or, when the body carries
// none, the session paired with the bearer access token.
func (s *Server) logout(c *gin.Context) {
	var req refreshTokenRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, err)
			return
		}
	}

	ctx := c.Request.Context()
	var err error
	switch {
	case req.RefreshToken != "":
		err = s.services.Auth.Logout(ctx, req.RefreshToken)
	default:
		token, ok := bearerToken(c)
		if !ok {
			s.badRequest(c, errors.New("refresh token is required"))
			return
		}
		err = s.services.Auth.LogoutByAccessToken(ctx, token)
	}
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) register(c *gin.Context) {
	var req registrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	res, err := s.services.Auth.Register(c.Request.Context(), services.RegistrationRequest{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if res == nil {
		s.abortWithError(c, err)
		return
	}

	body := registrationResponse{
		ID:                        res.Account.GUID,
		Email:                     res.Account.Email,
		FirstName:                 res.Account.FirstName,
		LastName:                  res.Account.LastName,
		Phone:                     res.Account.Phone,
		EmailVerificationRequired: true,
		EmailVerificationSent:     res.VerificationSent,
	}
	if err != nil {
		// the account exists; the client may call resend-verify with the id
		s.logger.Warn(c.Request.Context(), "registered without verification email", "account_guid", res.Account.GUID)
		c.JSON(http.StatusAccepted, body)
		return
	}
	c.JSON(http.StatusCreated, body)
}

func (s *Server) verifyEmail(c *gin.Context) {
	id, code := c.Query("id"), c.Query("code")
	if id == "" || code == "" {
		s.badRequest(c, errors.New("id and code are required"))
		return
	}

	account, err := s.services.Verification.Consume(c.Request.Context(), id, code)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(account))
}

func (s *Server) resendVerification(c *gin.Context) {
	var req resendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if req.ID == "" {
		s.badRequest(c, errors.New("id is required"))
		return
	}

	if err := s.services.Verification.Resend(c.Request.Context(), req.ID); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) emailReset(c *gin.Context) {
	var req passwordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	if err := s.services.Resets.RequestReset(c.Request.Context(), req.Username); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) resetPassword(c *gin.Context) {
	var req passwordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	err := s.services.Resets.ConfirmReset(c.Request.Context(), services.ConfirmResetRequest{
		AccountGUID:          req.ID,
		Token:                req.Token,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getUser(c *gin.Context) {
	username, err := currentUsername(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	account, err := s.services.Profiles.Get(c.Request.Context(), username)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(account))
}

func (s *Server) updateUser(c *gin.Context) {
	username, err := currentUsername(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	account, err := s.services.Profiles.Update(c.Request.Context(), username, services.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(account))
}

func (s *Server) deleteUser(c *gin.Context) {
	username, err := currentUsername(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	if err := s.services.Profiles.Delete(c.Request.Context(), username); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listTransactions(c *gin.Context) {
	username, err := currentUsername(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		s.abortWithError(c, fmt.Errorf("%w: year must be a number", common.ErrValidation))
		return
	}
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil {
		s.abortWithError(c, fmt.Errorf("%w: month must be a number", common.ErrValidation))
		return
	}

	txs, err := s.services.Profiles.ListTransactions(c.Request.Context(), username, year, month)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTransactionResponses(txs))
}
