package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/eduAuth/refresh"
	"golang.org/x/sync/errgroup"
)

// account is one seeded user and its current refresh token. mu serialises
// rotations so the rotate phase never replays by accident.
type account struct {
	mu     sync.Mutex
	userID string
	token  string
}

var errLostRotation = errors.New("lost rotation")

// rotate does what a refresh does to the store: find, claim, replace.
func (a *account) rotate(ctx context.Context, store refresh.Store, expiresAt time.Time) (time.Duration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	rec, err := store.FindByToken(ctx, a.token)
	switch {
	case err != nil:
		return time.Since(start), err
	case rec == nil:
		return time.Since(start), fmt.Errorf("%s: token not found", a.userID)
	}
	won, err := store.MarkUsed(ctx, rec.ID)
	if err != nil {
		return time.Since(start), err
	}
	if !won {
		return time.Since(start), errLostRotation
	}
	next := newToken()
	if _, err := store.Create(ctx, a.userID, next, expiresAt); err != nil {
		return time.Since(start), err
	}
	a.token = next
	return time.Since(start), nil
}

func runRotatePhase(ctx context.Context, store refresh.Store, accounts []*account, ops, workers int, expiresAt time.Time) phaseStats {
	var (
		claimed  atomic.Int64
		failures atomic.Int64
		samples  = make([][]time.Duration, workers)
	)

	start := time.Now()
	var g errgroup.Group
	for w := range workers {
		rng := rand.New(rand.NewPCG(uint64(w), uint64(start.UnixNano())))
		g.Go(func() error {
			for claimed.Add(1) <= int64(ops) {
				d, err := accounts[rng.IntN(len(accounts))].rotate(ctx, store, expiresAt)
				if err != nil {
					failures.Add(1)
				}
				samples[w] = append(samples[w], d)
			}
			return nil
		})
	}
	_ = g.Wait()
	return summarize(time.Since(start), slices.Concat(samples...), failures.Load())
}

type replayTally struct {
	winners atomic.Int64
	reuse   atomic.Int64
	revoked atomic.Int64
}

// runReplayPhase races racers presenters of each of the first n tokens.
// One claim must win; every loser revokes the owner's tokens the way the
// engine does on reuse.
func runReplayPhase(ctx context.Context, store refresh.Store, accounts []*account, n, racers int) (phaseStats, *replayTally) {
	tally := &replayTally{}
	var (
		failures atomic.Int64
		mu       sync.Mutex
		samples  = make([]time.Duration, 0, n*racers)
	)

	start := time.Now()
	for _, a := range accounts[:min(n, len(accounts))] {
		rec, err := store.FindByToken(ctx, a.token)
		if err != nil || rec == nil {
			failures.Add(1)
			continue
		}

		gate := make(chan struct{})
		var g errgroup.Group
		for range racers {
			g.Go(func() error {
				<-gate
				t0 := time.Now()
				won, err := store.MarkUsed(ctx, rec.ID)
				switch {
				case err != nil:
					failures.Add(1)
				case won:
					tally.winners.Add(1)
				default:
					tally.reuse.Add(1)
					revoked, err := store.InvalidateAllForUser(ctx, a.userID)
					if err != nil {
						failures.Add(1)
					}
					tally.revoked.Add(int64(revoked))
				}
				d := time.Since(t0)
				mu.Lock()
				samples = append(samples, d)
				mu.Unlock()
				return nil
			})
		}
		close(gate)
		_ = g.Wait()
	}
	return summarize(time.Since(start), samples, failures.Load()), tally
}
