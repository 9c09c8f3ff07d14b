package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/inboxview/internal/common"
	"github.com/dmitrijs2005/inboxview/internal/dbx"
	"github.com/dmitrijs2005/inboxview/internal/logging"
	"github.com/dmitrijs2005/inboxview/internal/server/auth"
	"github.com/dmitrijs2005/inboxview/internal/server/config"
	"github.com/dmitrijs2005/inboxview/internal/server/mailer"
	"github.com/dmitrijs2005/inboxview/internal/server/models"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/refreshsessions"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/transactions"
	"github.com/dmitrijs2005/inboxview/internal/server/repositories/verifications"
	"github.com/dmitrijs2005/inboxview/internal/timex"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// --- in-memory store behind every fake repository ---

type memStore struct {
	mu            sync.Mutex
	nextID        int64
	accounts      map[int64]*models.Account
	sessions      map[string]*models.RefreshSession
	verifications []*models.EmailVerification
	transactions  []models.MailboxTransaction

	calls map[string]int
	fail  map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[int64]*models.Account{},
		sessions: map[string]*models.RefreshSession{},
		calls:    map[string]int{},
		fail:     map[string]error{},
	}
}

// enter counts the call and returns the injected error, if any.
// The caller must hold s.mu.
func (s *memStore) enter(op string) error {
	s.calls[op]++
	return s.fail[op]
}

func (s *memStore) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *memStore) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func copyAccount(a *models.Account) *models.Account {
	c := *a
	return &c
}

func (s *memStore) liveAccount(match func(a *models.Account) bool) *models.Account {
	for _, a := range s.accounts {
		if a.DateDeleted == nil && match(a) {
			return a
		}
	}
	return nil
}

type memAccounts struct{ s *memStore }

func (r memAccounts) find(op string, match func(a *models.Account) bool) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(op); err != nil {
		return nil, err
	}
	a := r.s.liveAccount(match)
	if a == nil {
		return nil, common.ErrorNotFound
	}
	return copyAccount(a), nil
}

func (r memAccounts) FindByID(_ context.Context, id int64) (*models.Account, error) {
	return r.find("Accounts.FindByID", func(a *models.Account) bool { return a.ID == id })
}

func (r memAccounts) FindByUsername(_ context.Context, username string) (*models.Account, error) {
	return r.find("Accounts.FindByUsername", func(a *models.Account) bool { return a.Username == username })
}

func (r memAccounts) FindByGUID(_ context.Context, guid string) (*models.Account, error) {
	return r.find("Accounts.FindByGUID", func(a *models.Account) bool { return a.GUID == guid })
}

func (r memAccounts) FindByGUIDAndResetToken(_ context.Context, guid, token string) (*models.Account, error) {
	return r.find("Accounts.FindByGUIDAndResetToken", func(a *models.Account) bool {
		return a.GUID == guid && a.PasswordResetToken != nil && *a.PasswordResetToken == token
	})
}

func (r memAccounts) ExistsByUsername(_ context.Context, username string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("Accounts.ExistsByUsername"); err != nil {
		return false, err
	}
	return r.s.liveAccount(func(a *models.Account) bool { return a.Username == username }) != nil, nil
}

func (r memAccounts) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("Accounts.ExistsByEmail"); err != nil {
		return false, err
	}
	return r.s.liveAccount(func(a *models.Account) bool { return a.Email == email }) != nil, nil
}

func (r memAccounts) Save(_ context.Context, a *models.Account) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("Accounts.Save"); err != nil {
		return nil, err
	}

	clash := r.s.liveAccount(func(o *models.Account) bool {
		return o.ID != a.ID && (o.Username == a.Username || o.Email == a.Email)
	})
	if clash != nil {
		return nil, common.ErrDuplicateIdentifier
	}

	if a.ID == 0 {
		a.ID = r.s.id()
		a.Version = 0
		if a.GUID == "" {
			a.GUID = uuid.NewString()
		}
		r.s.accounts[a.ID] = copyAccount(a)
		return a, nil
	}

	stored, ok := r.s.accounts[a.ID]
	if !ok || stored.DateDeleted != nil || stored.Version != a.Version {
		return nil, common.ErrConcurrentModification
	}
	a.Version++
	r.s.accounts[a.ID] = copyAccount(a)
	return a, nil
}

func (r memAccounts) SoftDelete(_ context.Context, a *models.Account, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("Accounts.SoftDelete"); err != nil {
		return err
	}
	stored, ok := r.s.accounts[a.ID]
	if !ok || stored.DateDeleted != nil || stored.Version != a.Version {
		return common.ErrConcurrentModification
	}
	a.DateDeleted = &at
	a.Version++
	r.s.accounts[a.ID] = copyAccount(a)
	return nil
}

type memSessions struct{ s *memStore }

func (r memSessions) Create(_ context.Context, sess *models.RefreshSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("Sessions.Create"); err != nil {
		return err
	}
	if _, dup := r.s.sessions[sess.GUID]; dup {
		return fmt.Errorf("duplicate session %s", sess.GUID)
	}
	sess.ID = r.s.id()
	c := *sess
	r.s.sessions[sess.GUID] = &c
	return nil
}

func (r memSessions) FindActive(_ context.Context, guid, accessToken string, now time.Time) (*models.RefreshSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("Sessions.FindActive"); err != nil {
		return nil, err
	}
	sess, ok := r.s.sessions[guid]
	if !ok || sess.AccessToken != accessToken || !sess.Active(now) {
		return nil, common.ErrorNotFound
	}
	c := *sess
	return &c, nil
}

func (r memSessions) Rotate(_ context.Context, guid, presented, next string, now, expiration time.Time) (*models.RefreshSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("Sessions.Rotate"); err != nil {
		return nil, err
	}
	sess, ok := r.s.sessions[guid]
	if !ok || sess.AccessToken != presented || !sess.Active(now) {
		return nil, common.ErrorNotFound
	}
	sess.AccessToken = next
	sess.ExpirationDate = expiration
	c := *sess
	return &c, nil
}

func (r memSessions) deleteWhere(op string, match func(*models.RefreshSession) bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(op); err != nil {
		return err
	}
	for k, sess := range r.s.sessions {
		if match(sess) {
			delete(r.s.sessions, k)
		}
	}
	return nil
}

func (r memSessions) DeleteByGUID(_ context.Context, guid string) error {
	return r.deleteWhere("Sessions.DeleteByGUID", func(s *models.RefreshSession) bool { return s.GUID == guid })
}

func (r memSessions) DeleteByAccessToken(_ context.Context, token string) error {
	return r.deleteWhere("Sessions.DeleteByAccessToken", func(s *models.RefreshSession) bool { return s.AccessToken == token })
}

func (r memSessions) DeleteByAccount(_ context.Context, accountID int64) error {
	return r.deleteWhere("Sessions.DeleteByAccount", func(s *models.RefreshSession) bool { return s.AccountID == accountID })
}

type memVerifications struct{ s *memStore }

func (r memVerifications) Create(_ context.Context, v *models.EmailVerification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("Verifications.Create"); err != nil {
		return err
	}
	v.ID = r.s.id()
	c := *v
	r.s.verifications = append(r.s.verifications, &c)
	return nil
}

func (r memVerifications) FindLatest(_ context.Context, accountID int64) (*models.EmailVerification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("Verifications.FindLatest"); err != nil {
		return nil, err
	}
	var latest *models.EmailVerification
	for _, v := range r.s.verifications {
		if v.AccountID == accountID && v.DateDeleted == nil {
			latest = v
		}
	}
	if latest == nil {
		return nil, common.ErrorNotFound
	}
	c := *latest
	return &c, nil
}

func (r memVerifications) byID(id int64) *models.EmailVerification {
	for _, v := range r.s.verifications {
		if v.ID == id {
			return v
		}
	}
	return nil
}

func (r memVerifications) IncrementAttempts(_ context.Context, id int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("Verifications.IncrementAttempts"); err != nil {
		return 0, err
	}
	v := r.byID(id)
	if v == nil {
		return 0, common.ErrorNotFound
	}
	v.AttemptCount++
	return v.AttemptCount, nil
}

func (r memVerifications) MarkVerified(_ context.Context, id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("Verifications.MarkVerified"); err != nil {
		return err
	}
	v := r.byID(id)
	if v == nil || v.DateVerified != nil || v.DateDeleted != nil {
		return common.ErrorNotFound
	}
	v.DateVerified = &at
	return nil
}

func (r memVerifications) SoftDeleteByAccount(_ context.Context, accountID int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("Verifications.SoftDeleteByAccount"); err != nil {
		return err
	}
	for _, v := range r.s.verifications {
		if v.AccountID == accountID && v.DateDeleted == nil {
			v.DateDeleted = &at
		}
	}
	return nil
}

type memTransactions struct{ s *memStore }

func (r memTransactions) ListByPeriod(_ context.Context, accountID int64, from, to time.Time) ([]models.MailboxTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("Transactions.ListByPeriod"); err != nil {
		return nil, err
	}
	out := make([]models.MailboxTransaction, 0)
	for _, t := range r.s.transactions {
		if t.AccountID == accountID && !t.TransactionDate.Before(from) && t.TransactionDate.Before(to) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionDate.Before(out[j].TransactionDate) })
	return out, nil
}

type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository      { return memAccounts{m.s} }
func (m *fakeRepoManager) RefreshSessions(dbx.DBTX) refreshsessions.Repository {
	return memSessions{m.s}
}
func (m *fakeRepoManager) Verifications(dbx.DBTX) verifications.Repository {
	return memVerifications{m.s}
}
func (m *fakeRepoManager) Transactions(dbx.DBTX) transactions.Repository {
	return memTransactions{m.s}
}

// --- other collaborators ---

type fakeMailer struct {
	mu    sync.Mutex
	sent  []mailer.Message
	async []mailer.Message
	err   error
}

func (f *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeMailer) SendAsync(msg mailer.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.async = append(f.async, msg)
}

func (f *fakeMailer) sentOfKind(kind mailer.Kind) []mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []mailer.Message
	for _, m := range append(append([]mailer.Message(nil), f.sent...), f.async...) {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeMailer) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent) + len(f.async)
}

// fakeHasher stores "hashed:<pw>"; "legacy:<pw>" verifies but asks for an upgrade.
type fakeHasher struct {
	mu       sync.Mutex
	verifies int
}

func (h *fakeHasher) Hash(pw string) (string, error) {
	if pw == "" {
		return "", auth.ErrEmptyPassword
	}
	return "hashed:" + pw, nil
}

func (h *fakeHasher) Verify(pw, hash string) (bool, error) {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	_, stored, ok := strings.Cut(hash, ":")
	if !ok {
		return false, auth.ErrInvalidHash
	}
	return stored == pw, nil
}

func (h *fakeHasher) NeedsUpgrade(hash string) bool {
	return strings.HasPrefix(hash, "legacy:")
}

type seqCodes struct {
	mu sync.Mutex
	n  int
}

func (c *seqCodes) NewCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return fmt.Sprintf("code-%d", c.n)
}

type verificationSpy struct {
	inner VerificationSender
	mu    sync.Mutex
	calls int
}

func (s *verificationSpy) SendVerification(ctx context.Context, a *models.Account) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.inner.SendVerification(ctx, a)
}

func (s *verificationSpy) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// --- environment ---

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const appURL = "https://inboxview.test/"

type env struct {
	db    *sql.DB
	mock  sqlmock.Sqlmock
	store *memStore
	clock *timex.ManualClock
	mail  *fakeMailer
	hash  *fakeHasher
	codes *seqCodes
	jwt   *auth.JWTIssuer
	cfg   *config.Config

	sessions     *SessionManager
	verification *VerificationManager
	verifySpy    *verificationSpy
	resets       *PasswordResetManager
	auth         *AuthService
	profile      *ProfileService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	e := &env{
		db:    db,
		mock:  mock,
		store: newMemStore(),
		clock: timex.NewManualClock(epoch),
		mail:  &fakeMailer{},
		hash:  &fakeHasher{},
		codes: &seqCodes{},
		cfg: &config.Config{
			AccessTokenValidityDuration:  15 * time.Minute,
			RefreshTokenValidityDuration: 24 * time.Hour,
		},
	}
	e.jwt = auth.NewJWTIssuer([]byte("test-secret"), "inboxview", e.clock)

	rm := &fakeRepoManager{s: e.store}
	log := logging.Nop{}

	e.sessions = NewSessionManager(db, rm, e.codes, e.clock, log)
	e.verification = NewVerificationManager(db, rm, e.mail, e.codes, e.clock, log, appURL)
	e.verifySpy = &verificationSpy{inner: e.verification}
	e.resets = NewPasswordResetManager(db, rm, e.hash, e.sessions, e.mail, e.codes, e.clock, log, appURL)
	e.auth, err = NewAuthService(db, rm, e.cfg, e.hash, e.jwt, e.sessions, e.verifySpy, e.clock, log)
	require.NoError(t, err)
	e.profile = NewProfileService(db, rm, e.clock, log)

	return e
}

// seedAccount stores an account whose password is pw.
func (e *env) seedAccount(t *testing.T, username, pw string, verified bool) *models.Account {
	t.Helper()
	a := &models.Account{
		GUID:        uuid.NewString(),
		Username:    username,
		Email:       username + "@x.com",
		Password:    "hashed:" + pw,
		DateAdded:   e.clock.Now(),
		DateUpdated: e.clock.Now(),
	}
	if verified {
		now := e.clock.Now()
		a.DateVerified = &now
	}
	saved, err := memAccounts{e.store}.Save(context.Background(), a)
	require.NoError(t, err)
	e.store.mu.Lock()
	e.store.calls = map[string]int{}
	e.store.mu.Unlock()
	return copyAccount(saved)
}

func (e *env) account(t *testing.T, id int64) *models.Account {
	t.Helper()
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	a, ok := e.store.accounts[id]
	require.True(t, ok)
	return copyAccount(a)
}

func (e *env) expectTx() {
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
}
