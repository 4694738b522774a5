package eduAuth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshRotatesThenDetectsReuse(t *testing.T) {
	env := newTestEnv(t, nil)
	account := env.addAccount(t, "alice@school.example", "correct-password-123", true)
	ctx := context.Background()

	login, err := env.engine.Login(ctx, "alice@school.example", "correct-password-123")
	require.NoError(t, err)
	original := login.Tokens.RefreshToken

	rotated, err := env.engine.Refresh(ctx, original)
	require.NoError(t, err)
	assert.NotEqual(t, original, rotated.Tokens.RefreshToken)
	assert.Equal(t, account.ID, rotated.Account.ID)

	_, err = env.engine.Refresh(ctx, original)
	require.ErrorIs(t, err, ErrTokenReuseDetected)

	// the whole family is revoked, including the token issued by the rotation
	_, err = env.engine.Refresh(ctx, rotated.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	records, err := env.engine.refresh.ListForUser(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.True(t, rec.Revoked)
	}

	assert.Equal(t, uint64(1), env.counter(MetricRefreshSuccess))
	assert.Equal(t, uint64(1), env.counter(MetricRefreshReuseDetected))
	assert.Equal(t, uint64(2), env.counter(MetricTokensRevoked))
}

func TestRefreshTakesRoleFromCurrentAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	account := env.addAccount(t, "alice@school.example", "correct-password-123", true)
	ctx := context.Background()

	login, err := env.engine.Login(ctx, "alice@school.example", "correct-password-123")
	require.NoError(t, err)
	env.accounts.mutate(account.ID, func(a *Account) { a.Role = "teacher" })

	rotated, err := env.engine.Refresh(ctx, login.Tokens.RefreshToken)
	require.NoError(t, err)

	auth, err := env.engine.ValidateAccess(ctx, rotated.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "teacher", auth.Role)
}

func TestRefreshRejections(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	account := env.addAccount(t, "alice@school.example", "correct-password-123", true)

	login, err := env.engine.Login(ctx, "alice@school.example", "correct-password-123")
	require.NoError(t, err)

	t.Run("garbage", func(t *testing.T) {
		_, err := env.engine.Refresh(ctx, "not-a-token")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
	t.Run("access token presented as refresh", func(t *testing.T) {
		_, err := env.engine.Refresh(ctx, login.Tokens.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
	t.Run("validly signed but never stored", func(t *testing.T) {
		orphan, err := env.engine.jwtManager.IssueRefresh(account.ID, account.Email)
		require.NoError(t, err)
		_, err = env.engine.Refresh(ctx, orphan)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestRefreshAccountGates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	account := env.addAccount(t, "alice@school.example", "correct-password-123", true)

	first, err := env.engine.Login(ctx, "alice@school.example", "correct-password-123")
	require.NoError(t, err)
	second, err := env.engine.Login(ctx, "alice@school.example", "correct-password-123")
	require.NoError(t, err)

	env.accounts.mutate(account.ID, func(a *Account) { a.IsActive = false })
	_, err = env.engine.Refresh(ctx, first.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrAccountDisabled)

	env.accounts.mu.Lock()
	delete(env.accounts.byID, account.ID)
	env.accounts.mu.Unlock()
	_, err = env.engine.Refresh(ctx, second.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRefreshStoreDownIsStorageUnavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addAccount(t, "alice@school.example", "correct-password-123", true)

	login, err := env.engine.Login(ctx, "alice@school.example", "correct-password-123")
	require.NoError(t, err)
	env.mr.Close()

	_, err = env.engine.Refresh(ctx, login.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}
