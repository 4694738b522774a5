// Package refreshtest holds the behavioural contract every refresh.Store
// implementation must satisfy. Backends call [Run] from their own tests.
package refreshtest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/eduAuth/refresh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) refresh.Store

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndFind", func(t *testing.T) { testCreateAndFind(t, newStore(t)) })
	t.Run("FindAbsent", func(t *testing.T) { testFindAbsent(t, newStore(t)) })
	t.Run("MarkUsedOnce", func(t *testing.T) { testMarkUsedOnce(t, newStore(t)) })
	t.Run("MarkUsedSingleWinner", func(t *testing.T) { testMarkUsedSingleWinner(t, newStore(t)) })
	t.Run("UpdateIsMonotonic", func(t *testing.T) { testUpdateIsMonotonic(t, newStore(t)) })
	t.Run("InvalidateAllIdempotent", func(t *testing.T) { testInvalidateAllIdempotent(t, newStore(t)) })
	t.Run("UnknownID", func(t *testing.T) { testUnknownID(t, newStore(t)) })
}

func expiry() time.Time {
	return time.Now().Add(time.Hour).Truncate(time.Millisecond)
}

func testCreateAndFind(t *testing.T, s refresh.Store) {
	ctx := context.Background()
	exp := expiry()

	rec, err := s.Create(ctx, "u1", "token-a", exp)
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	assert.NotEqual(t, "token-a", rec.TokenHash)
	assert.False(t, rec.Used)
	assert.False(t, rec.Revoked)

	got, err := s.FindByToken(ctx, "token-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, exp.Equal(got.ExpiresAt), "expires_at %v != %v", got.ExpiresAt, exp)
}

func testFindAbsent(t *testing.T, s refresh.Store) {
	got, err := s.FindByToken(context.Background(), "never-issued")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testMarkUsedOnce(t *testing.T, s refresh.Store) {
	ctx := context.Background()
	rec, err := s.Create(ctx, "u1", "token-a", expiry())
	require.NoError(t, err)

	won, err := s.MarkUsed(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.MarkUsed(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, won)

	got, err := s.FindByToken(ctx, "token-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Used)
}

func testMarkUsedSingleWinner(t *testing.T, s refresh.Store) {
	ctx := context.Background()
	rec, err := s.Create(ctx, "u1", "token-a", expiry())
	require.NoError(t, err)

	const workers = 16
	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			won, err := s.MarkUsed(ctx, rec.ID)
			if err != nil {
				t.Errorf("mark used: %v", err)
				return
			}
			if won {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func testUpdateIsMonotonic(t *testing.T, s refresh.Store) {
	ctx := context.Background()
	rec, err := s.Create(ctx, "u1", "token-a", expiry())
	require.NoError(t, err)

	got, err := s.Update(ctx, rec.ID, refresh.Update{MarkUsed: true})
	require.NoError(t, err)
	assert.True(t, got.Used)

	got, err = s.Update(ctx, rec.ID, refresh.Update{})
	require.NoError(t, err)
	assert.True(t, got.Used, "an empty patch must not clear used")

	got, err = s.Update(ctx, rec.ID, refresh.Update{Revoke: true})
	require.NoError(t, err)
	assert.True(t, got.Used)
	assert.True(t, got.Revoked)
}

func testInvalidateAllIdempotent(t *testing.T, s refresh.Store) {
	ctx := context.Background()
	for _, tok := range []string{"a", "b", "c"} {
		_, err := s.Create(ctx, "u1", tok, expiry())
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, "u2", "other", expiry())
	require.NoError(t, err)

	n, err := s.InvalidateAllForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.InvalidateAllForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	recs, err := s.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for _, r := range recs {
		assert.True(t, r.Revoked)
	}

	other, err := s.FindByToken(ctx, "other")
	require.NoError(t, err)
	require.NotNil(t, other)
	assert.False(t, other.Revoked)

	won, err := s.MarkUsed(ctx, recs[0].ID)
	require.NoError(t, err)
	assert.False(t, won, "revoked records cannot be marked used")

	n, err = s.InvalidateAllForUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testUnknownID(t *testing.T, s refresh.Store) {
	ctx := context.Background()
	_, err := s.MarkUsed(ctx, "missing")
	assert.ErrorIs(t, err, refresh.ErrNotFound)
	_, err = s.Update(ctx, "missing", refresh.Update{Revoke: true})
	assert.ErrorIs(t, err, refresh.ErrNotFound)
}
