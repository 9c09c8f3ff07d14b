package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManager_Issue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	s, err := e.sessions.Issue(ctx, 7, "access-1", 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "code-1", s.GUID)
	assert.Equal(t, "access-1", s.AccessToken)
	assert.Equal(t, int64(7), s.AccountID)
	assert.Equal(t, epoch, s.DateAdded)
	assert.Equal(t, epoch.Add(24*time.Hour), s.ExpirationDate)
	assert.NotZero(t, s.ID)
}

func TestSessionManager_IssueStoreFailure(t *testing.T) {
	e := newEnv(t)
	e.store.fail["Sessions.Create"] = errors.New("db down")

	_, err := e.sessions.Issue(context.Background(), 7, "access-1", time.Hour)
	assert.ErrorIs(t, err, common.ErrDependencyFailure)
}

func TestSessionManager_RotateKeepsSessionID(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	s, err := e.sessions.Issue(ctx, 7, "access-1", time.Hour)
	require.NoError(t, err)

	e.clock.Advance(30 * time.Minute)

	rotated, err := e.sessions.Rotate(ctx, s.GUID, "access-1", "access-2", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, s.GUID, rotated.GUID)
	assert.Equal(t, "access-2", rotated.AccessToken)
	assert.Equal(t, epoch.Add(90*time.Minute), rotated.ExpirationDate)

	// the old access token is no longer paired with the session
	_, err = e.sessions.Rotate(ctx, s.GUID, "access-1", "access-3", time.Hour)
	assert.ErrorIs(t, err, common.ErrSessionInvalid)

	// and the new one keeps working
	_, err = e.sessions.Rotate(ctx, s.GUID, "access-2", "access-3", time.Hour)
	assert.NoError(t, err)
}

func TestSessionManager_RotateRejections(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		access  string
		advance time.Duration
	}{
		{name: "unknown id", id: "nope", access: "access-1"},
		{name: "mismatched access token", id: "code-1", access: "access-x"},
		{name: "expired", id: "code-1", access: "access-1", advance: time.Hour},
		{name: "long expired", id: "code-1", access: "access-1", advance: 48 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()

			_, err := e.sessions.Issue(ctx, 7, "access-1", time.Hour)
			require.NoError(t, err)
			e.clock.Advance(tt.advance)

			_, err = e.sessions.Rotate(ctx, tt.id, tt.access, "access-2", time.Hour)
			assert.ErrorIs(t, err, common.ErrSessionInvalid)

			_, err = e.sessions.Lookup(ctx, tt.id, tt.access)
			assert.ErrorIs(t, err, common.ErrSessionInvalid)
		})
	}
}

func TestSessionManager_OneDaySessionExpiresAfterTwoDays(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	s, err := e.sessions.Issue(ctx, 7, "access-1", 24*time.Hour)
	require.NoError(t, err)

	e.clock.Advance(48 * time.Hour)

	_, err = e.sessions.Rotate(ctx, s.GUID, "access-1", "access-2", 24*time.Hour)
	assert.ErrorIs(t, err, common.ErrSessionInvalid)
}

func TestSessionManager_RevokeThenRotate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	s, err := e.sessions.Issue(ctx, 7, "access-1", time.Hour)
	require.NoError(t, err)

	require.NoError(t, e.sessions.Revoke(ctx, s.GUID))
	require.NoError(t, e.sessions.Revoke(ctx, s.GUID), "revoke is idempotent")

	_, err = e.sessions.Rotate(ctx, s.GUID, "access-1", "access-2", time.Hour)
	assert.ErrorIs(t, err, common.ErrSessionInvalid)
}

func TestSessionManager_RevokeByAccessToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.sessions.Issue(ctx, 7, "access-a", time.Hour)
	require.NoError(t, err)
	b, err := e.sessions.Issue(ctx, 7, "access-b", time.Hour)
	require.NoError(t, err)

	require.NoError(t, e.sessions.RevokeByAccessToken(ctx, "access-a"))
	require.NoError(t, e.sessions.RevokeByAccessToken(ctx, "never-issued"))

	_, err = e.sessions.Lookup(ctx, a.GUID, "access-a")
	assert.ErrorIs(t, err, common.ErrSessionInvalid)
	_, err = e.sessions.Lookup(ctx, b.GUID, "access-b")
	assert.NoError(t, err)
}

func TestSessionManager_RevokeAll(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, _ := e.sessions.Issue(ctx, 7, "access-a", time.Hour)
	other, _ := e.sessions.Issue(ctx, 8, "access-o", time.Hour)

	require.NoError(t, e.sessions.RevokeAll(ctx, 7))

	_, err := e.sessions.Lookup(ctx, a.GUID, "access-a")
	assert.ErrorIs(t, err, common.ErrSessionInvalid)
	_, err = e.sessions.Lookup(ctx, other.GUID, "access-o")
	assert.NoError(t, err)
}

func TestSessionManager_RotateStoreFailure(t *testing.T) {
	e := newEnv(t)
	e.store.fail["Sessions.Rotate"] = errors.New("db down")

	_, err := e.sessions.Rotate(context.Background(), "code-1", "a", "b", time.Hour)
	assert.ErrorIs(t, err, common.ErrDependencyFailure)
	assert.NotErrorIs(t, err, common.ErrSessionInvalid)
}

func TestSessionManager_ConcurrentRotationsSingleWinner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	s, err := e.sessions.Issue(ctx, 7, "access-1", time.Hour)
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.sessions.Rotate(ctx, s.GUID, "access-1", "next", time.Hour)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, common.ErrSessionInvalid)
	}
	assert.Equal(t, 1, wins)
}
