package eduAuth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrEthical07/eduAuth/refresh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runConcurrentRefresh(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	env.addAccount(t, "alice@school.example", "correct-password-123", true)

	login, err := env.engine.Login(ctx, "alice@school.example", "correct-password-123")
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := env.engine.Refresh(ctx, login.Tokens.RefreshToken)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	// Losers either lose the used-flag race or arrive after the family was
	// already revoked; neither may receive tokens.
	success, reuse, revoked := 0, 0, 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrTokenReuseDetected):
			reuse++
		case errors.Is(err, ErrInvalidCredentials):
			revoked++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	assert.Equal(t, 1, success)
	assert.GreaterOrEqual(t, reuse, 1)
	assert.Equal(t, n-1, reuse+revoked)
	assert.Equal(t, uint64(reuse), env.counter(MetricRefreshReuseDetected))
}

func TestRefreshConcurrencySingleWinnerRedis(t *testing.T) {
	runConcurrentRefresh(t, newTestEnv(t, nil))
}

func TestRefreshConcurrencySingleWinnerMemory(t *testing.T) {
	env := newTestEnv(t, nil, func(b *Builder) {
		b.WithRefreshStore(refresh.NewMemoryStore())
	})
	runConcurrentRefresh(t, env)
}
