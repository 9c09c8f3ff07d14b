// Package httpapi is the REST transport of the account service. It binds
// JSON requests, calls the services and translates their error taxonomy into
// HTTP status codes.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/logging"
	"github.com/dmitrijs2005/inboxview/internal/server/models"
	"github.com/dmitrijs2005/inboxview/internal/server/services"
	"github.com/dmitrijs2005/inboxview/internal/timex"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// Authenticator is the part of services.AuthService the transport needs.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken, accessToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutByAccessToken(ctx context.Context, accessToken string) error
	Register(ctx context.Context, req services.RegistrationRequest) (*services.RegistrationResult, error)
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

type EmailVerifier interface {
	Consume(ctx context.Context, accountGUID, code string) (*models.Account, error)
	Resend(ctx context.Context, accountGUID string) error
}

type PasswordResetter interface {
	RequestReset(ctx context.Context, username string) error
	ConfirmReset(ctx context.Context, req services.ConfirmResetRequest) error
}

type Profiles interface {
	Get(ctx context.Context, username string) (*models.Account, error)
	Update(ctx context.Context, username string, upd services.ProfileUpdate) (*models.Account, error)
	Delete(ctx context.Context, username string) error
	ListTransactions(ctx context.Context, username string, year, month int) ([]models.MailboxTransaction, error)
}

// Services groups the collaborators behind the routes.
type Services struct {
	Auth         Authenticator
	Verification EmailVerifier
	Resets       PasswordResetter
	Profiles     Profiles
}

type Server struct {
	address  string
	logger   logging.Logger
	clock    timex.Clock
	services Services
	router   *gin.Engine
}

func NewServer(address string, allowedOrigins []string, l logging.Logger, clock timex.Clock, svc Services) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		address:  address,
		logger:   l.With("module", "http_server"),
		clock:    clock,
		services: svc,
		router:   gin.New(),
	}

	s.router.Use(gin.Recovery(), s.observe())
	// cors refuses an empty origin list; no origins means same-origin only
	if len(allowedOrigins) > 0 {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins:     allowedOrigins,
			AllowMethods:     []string{"POST", "GET", "PUT", "DELETE"},
			AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "Content-Length"},
			ExposeHeaders:    []string{"Content-Type", "Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	s.routes()

	return s
}

func (s *Server) routes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", s.login)
		authGroup.POST("/refresh-token", s.refreshToken)
		authGroup.POST("/logout", s.logout)
	}

	registration := api.Group("/registration")
	{
		registration.POST("/register", s.register)
		registration.GET("/email/verify", s.verifyEmail)
		registration.POST("/email/resend-verify", s.resendVerification)
	}

	password := api.Group("/password")
	{
		password.POST("/email-reset", s.emailReset)
		password.POST("/reset", s.resetPassword)
	}

	user := api.Group("/user", s.requireBearer())
	{
		user.GET("/me", s.getUser)
		user.PUT("/", s.updateUser)
		user.DELETE("/", s.deleteUser)
		user.GET("/mailbox-transaction/:year/:month", s.listTransactions)
	}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "HTTP shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
