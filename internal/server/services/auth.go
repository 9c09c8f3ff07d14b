package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/common"
	"github.com/dmitrijs2005/inboxview/internal/logging"
	"github.com/dmitrijs2005/inboxview/internal/server/auth"
	"github.com/dmitrijs2005/inboxview/internal/server/config"
	"github.com/dmitrijs2005/inboxview/internal/server/metrics"
	"github.com/dmitrijs2005/inboxview/internal/server/models"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/inboxview/internal/timex"
	"github.com/google/uuid"
)

// TokenPair is what a client holds after login or refresh. RefreshToken is
// the session id; ExpiresAt is when AccessToken stops being accepted.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// RegistrationRequest describes a new account. An empty Username defaults
// to Email.
type RegistrationRequest struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// RegistrationResult reports both steps of registration. The account is
// created even when the verification email could not be sent; Register then
// returns the result together with a common.ErrDependencyFailure error.
type RegistrationResult struct {
	Account          *models.Account
	VerificationSent bool
}

// AuthService composes the credential store, token issuer, session manager
// and verification manager into login, refresh, logout and registration.
type AuthService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	hasher       auth.PasswordHasher
	tokens       auth.TokenIssuer
	sessions     *SessionManager
	verification VerificationSender
	clock        timex.Clock
	logger       logging.Logger

	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration

	// dummyHash is verified against when the username is unknown so that
	// both failure paths cost one hash computation.
	dummyHash string
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, hasher auth.PasswordHasher,
	tokens auth.TokenIssuer, sessions *SessionManager, verification VerificationSender,
	clock timex.Clock, logger logging.Logger) (*AuthService, error) {

	secret, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	dummy, err := hasher.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &AuthService{
		db:                           db,
		repomanager:                  m,
		hasher:                       hasher,
		tokens:                       tokens,
		sessions:                     sessions,
		verification:                 verification,
		clock:                        clock,
		logger:                       logger.With("module", "auth"),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		dummyHash:                    dummy,
	}, nil
}

// Login checks the password and, for a verified account, issues an access
// token (subject = username) and a new refresh session. Unknown username and
// wrong password both fail with common.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	repo := s.repomanager.Accounts(s.db)

	account, err := repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_, _ = s.hasher.Verify(password, s.dummyHash)
			metrics.RecordLogin(metrics.ResultInvalidCredentials)
			return nil, common.ErrInvalidCredentials
		}
		metrics.RecordLogin(metrics.ResultError)
		return nil, dependencyError("find account", err)
	}

	ok, err := s.hasher.Verify(password, account.Password)
	if err != nil {
		s.logger.Error(ctx, "stored password hash is unreadable", "account_id", account.ID, "error", err)
	}
	if !ok {
		metrics.RecordLogin(metrics.ResultInvalidCredentials)
		return nil, common.ErrInvalidCredentials
	}

	if !account.Verified() {
		metrics.RecordLogin(metrics.ResultNotVerified)
		return nil, common.ErrNotVerified
	}

	if s.hasher.NeedsUpgrade(account.Password) {
		s.upgradeHash(ctx, account, password)
	}

	pair, err := s.issuePair(ctx, account)
	if err != nil {
		metrics.RecordLogin(metrics.ResultError)
		return nil, err
	}

	metrics.RecordLogin(metrics.ResultSuccess)
	return pair, nil
}

// RefreshToken exchanges a session id and its currently paired access token
// for a new access token. The session id stays the same.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken, accessToken string) (*TokenPair, error) {
	session, err := s.sessions.Lookup(ctx, refreshToken, accessToken)
	if err != nil {
		return nil, err
	}

	account, err := s.repomanager.Accounts(s.db).FindByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "refresh session of a deleted account", "account_id", session.AccountID)
			return nil, common.ErrSessionInvalid
		}
		return nil, dependencyError("find account", err)
	}

	access, expiresAt, err := s.mintAccessToken(account)
	if err != nil {
		return nil, err
	}

	rotated, err := s.sessions.Rotate(ctx, refreshToken, accessToken, access, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: rotated.AccessToken, RefreshToken: rotated.GUID, ExpiresAt: expiresAt}, nil
}

// Logout revokes the session. Unknown sessions are not an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.Revoke(ctx, refreshToken)
}

// LogoutByAccessToken revokes the session paired with accessToken.
func (s *AuthService) LogoutByAccessToken(ctx context.Context, accessToken string) error {
	return s.sessions.RevokeByAccessToken(ctx, accessToken)
}

// Register creates an unverified account and sends its verification email.
// A taken username or email fails with common.ErrDuplicateIdentifier and
// sends nothing.
func (s *AuthService) Register(ctx context.Context, req RegistrationRequest) (*RegistrationResult, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		req.Username = req.Email
	}
	if err := validateRegistration(req); err != nil {
		return nil, err
	}

	repo := s.repomanager.Accounts(s.db)

	taken, err := repo.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, dependencyError("check username", err)
	}
	if !taken {
		taken, err = repo.ExistsByEmail(ctx, req.Email)
		if err != nil {
			return nil, dependencyError("check email", err)
		}
	}
	if taken {
		return nil, common.ErrDuplicateIdentifier
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %v", common.ErrorInternal, err)
	}

	now := s.clock.Now()
	account, err := repo.Save(ctx, &models.Account{
		GUID:        uuid.NewString(),
		Username:    req.Username,
		Email:       req.Email,
		Password:    hash,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		DateAdded:   now,
		DateUpdated: now,
	})
	if err != nil {
		return nil, dependencyError("create account", err)
	}
	s.logger.Info(ctx, "account registered", "account_id", account.ID)

	if err := s.verification.SendVerification(ctx, account); err != nil {
		s.logger.Error(ctx, "verification not sent", "account_id", account.ID, "error", err)
		return &RegistrationResult{Account: account, VerificationSent: false}, err
	}
	return &RegistrationResult{Account: account, VerificationSent: true}, nil
}

// Authenticate returns the subject of a valid bearer access token.
func (s *AuthService) Authenticate(_ context.Context, accessToken string) (string, error) {
	subject, err := s.tokens.Verify(accessToken)
	if err != nil {
		return "", common.ErrInvalidToken
	}
	return subject, nil
}

func (s *AuthService) issuePair(ctx context.Context, account *models.Account) (*TokenPair, error) {
	access, expiresAt, err := s.mintAccessToken(account)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Issue(ctx, account.ID, access, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: session.GUID, ExpiresAt: expiresAt}, nil
}

func (s *AuthService) mintAccessToken(account *models.Account) (string, time.Time, error) {
	expiresAt := s.clock.Now().Add(s.accessTokenValidityDuration)
	access, err := s.tokens.Issue(account.Username, s.accessTokenValidityDuration)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: issue access token: %v", common.ErrorInternal, err)
	}
	return access, expiresAt, nil
}

// upgradeHash replaces a legacy hash after a successful login. Failure only
// costs the upgrade.
func (s *AuthService) upgradeHash(ctx context.Context, account *models.Account, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn(ctx, "password hash upgrade failed", "account_id", account.ID, "error", err)
		return
	}
	account.Password = hash
	account.DateUpdated = s.clock.Now()
	if _, err := s.repomanager.Accounts(s.db).Save(ctx, account); err != nil {
		s.logger.Warn(ctx, "password hash upgrade not stored", "account_id", account.ID, "error", err)
	}
}

func validateRegistration(req RegistrationRequest) error {
	var problems []string
	if _, err := mail.ParseAddress(req.Email); err != nil || strings.ContainsAny(req.Email, "<> ") {
		problems = append(problems, "a valid email is required")
	}
	if req.Password == "" {
		problems = append(problems, "password is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", common.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}
