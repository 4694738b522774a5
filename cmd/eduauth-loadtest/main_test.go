package main

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/eduAuth/refresh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(9), percentile(sorted, 95))
	assert.Equal(t, time.Duration(10), percentile(sorted, 100))
	assert.Equal(t, time.Duration(10), percentile(sorted, 150))
	assert.Zero(t, percentile(nil, 50))
}

func TestSummarizeSortsSamples(t *testing.T) {
	s := summarize(time.Second, []time.Duration{30, 10, 20}, 1)
	assert.Equal(t, 3, s.ops)
	assert.Equal(t, time.Duration(20), s.p50)
	assert.InDelta(t, 3.0, s.rate(), 1e-9)
	assert.Contains(t, s.format("rotate"), "rotate: ops=3 failures=1")
}

func TestPhasesAgainstMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := refresh.NewMemoryStore()
	expiresAt := time.Now().Add(time.Hour)

	accounts, err := seed(ctx, store, 4, expiresAt)
	require.NoError(t, err)

	rot := runRotatePhase(ctx, store, accounts, 40, 4, expiresAt)
	assert.Equal(t, 40, rot.ops)
	assert.Zero(t, rot.failures)

	_, tally := runReplayPhase(ctx, store, accounts, len(accounts), 6)
	assert.Equal(t, int64(len(accounts)), tally.winners.Load())
	assert.Equal(t, int64(len(accounts)*5), tally.reuse.Load())
	assert.Positive(t, tally.revoked.Load())
}

func TestRunRejectsBadOptions(t *testing.T) {
	err := run(context.Background(), options{users: 1, workers: 1, rotations: 1, replays: 1, racers: 1})
	assert.Error(t, err)
}

func TestRunEndToEndOnMiniredis(t *testing.T) {
	err := run(context.Background(), options{
		users: 20, workers: 4, rotations: 100, racers: 3, replays: 10, prefix: "test:rt",
	})
	require.NoError(t, err)
}
