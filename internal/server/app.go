// Package server wires the account service together: configuration,
// logging, the Postgres store, mail delivery, the services and the HTTP and
// gRPC listeners. It also owns signal handling and graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/logging"
	"github.com/dmitrijs2005/inboxview/internal/server/auth"
	"github.com/dmitrijs2005/inboxview/internal/server/config"
	"github.com/dmitrijs2005/inboxview/internal/server/httpapi"
	"github.com/dmitrijs2005/inboxview/internal/server/mailer"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/inboxview/internal/server/services"
	"github.com/dmitrijs2005/inboxview/internal/timex"
	"github.com/sethvargo/go-retry"

	gs "github.com/dmitrijs2005/inboxview/internal/server/grpc"
)

// dbRetryBase is the first delay between readiness pings.
var dbRetryBase = 250 * time.Millisecond

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	dispatcher *mailer.Dispatcher
	closeMail  func()
	httpServer *httpapi.Server
	grpcServer *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(c.LogLevel, c.LogFile)
	slog.SetDefault(logger.Slog())

	db, err := repomanager.Open(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := waitForDB(ctx, db, c.DBConnectTimeout, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	transport, closeMail, err := newTransport(c, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dispatcher := mailer.NewDispatcher(transport, logger.With("module", "mailer"), c.SMTPTimeout)

	clock := timex.SystemClock{}
	codes := auth.UUIDCodes{}
	hasher := auth.NewArgon2idHasher()
	tokens := auth.NewJWTIssuer([]byte(c.SecretKey), c.TokenIssuer, clock)

	sessions := services.NewSessionManager(db, rm, codes, clock, logger)
	verification := services.NewVerificationManager(db, rm, dispatcher, codes, clock, logger, c.AppURL)
	resets := services.NewPasswordResetManager(db, rm, hasher, sessions, dispatcher, codes, clock, logger, c.AppURL)
	profiles := services.NewProfileService(db, rm, clock, logger)
	authService, err := services.NewAuthService(db, rm, c, hasher, tokens, sessions, verification, clock, logger)
	if err != nil {
		closeMail()
		_ = db.Close()
		return nil, err
	}

	httpServer := httpapi.NewServer(c.EndpointAddrHTTP, c.CORSAllowedOrigins, logger, clock, httpapi.Services{
		Auth:         authService,
		Verification: verification,
		Resets:       resets,
		Profiles:     profiles,
	})
	grpcServer := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, db)

	return &App{
		config:     c,
		logger:     logger,
		db:         db,
		dispatcher: dispatcher,
		closeMail:  closeMail,
		httpServer: httpServer,
		grpcServer: grpcServer,
	}, nil
}

// waitForDB pings with exponential backoff until the database answers or
// timeout elapses.
func waitForDB(ctx context.Context, db *sql.DB, timeout time.Duration, logger logging.Logger) error {
	backoff := retry.WithMaxDuration(timeout, retry.WithCappedDuration(5*time.Second, retry.NewExponential(dbRetryBase)))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.PingContext(ctx); err != nil {
			logger.Warn(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("database not reachable after %d attempts: %w", attempt, err)
	}
	return nil
}

// newTransport picks SMTP when a host is configured and logs mail otherwise.
func newTransport(c *config.Config, logger logging.Logger) (mailer.Transport, func(), error) {
	if c.SMTPHost == "" {
		logger.Warn(context.Background(), "no SMTP host configured, emails are logged only")
		return mailer.NewLogTransport(logger), func() {}, nil
	}

	t, err := mailer.NewSMTPTransport(mailer.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUser,
		Password: c.SMTPPassword,
		From:     c.MailFrom,
		MaxConns: c.SMTPMaxConns,
		Timeout:  c.SMTPTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return t, t.Close, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

type runner interface {
	Run(ctx context.Context) error
}

// Run serves HTTP and gRPC until a signal arrives, ctx is cancelled or a
// listener fails, then drains pending mail and closes the database.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(ctx, cancelFunc)

	errs := app.serve(ctx, cancelFunc, map[string]runner{
		"http": app.httpServer,
		"grpc": app.grpcServer,
	})

	app.logger.Info(context.Background(), "Shutting down...")
	app.dispatcher.Close()
	app.closeMail()
	if err := app.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close db: %w", err))
	}

	return errors.Join(errs...)
}

// serve runs every listener and cancels the rest as soon as one fails.
func (app *App) serve(ctx context.Context, cancelFunc context.CancelFunc, runners map[string]runner) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for name, r := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				app.logger.Error(ctx, "listener failed", "listener", name, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancelFunc()
			}
		}()
	}

	wg.Wait()
	return errs
}
