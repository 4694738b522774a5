// Command eduauth-loadtest hammers the Redis refresh store with rotations
// and with concurrent replays of the same token, then prints latency
// percentiles and how many replays were caught.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/MrEthical07/eduAuth/internal"
	"github.com/MrEthical07/eduAuth/refresh"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type options struct {
	users, workers, rotations int
	racers, replays           int
	redisAddr, prefix         string
}

func main() {
	var o options
	flag.IntVar(&o.users, "users", 10000, "accounts seeded with one refresh token each")
	flag.IntVar(&o.workers, "concurrency", 256, "rotate-phase workers")
	flag.IntVar(&o.rotations, "ops", 100000, "rotations in the rotate phase")
	flag.IntVar(&o.racers, "racers", 8, "goroutines presenting the same token in the replay phase")
	flag.IntVar(&o.replays, "replays", 2000, "tokens raced in the replay phase")
	flag.StringVar(&o.redisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "redis address; empty starts miniredis")
	flag.StringVar(&o.prefix, "prefix", "eduauth:loadtest:rt", "refresh key prefix")
	flag.Parse()

	if err := run(context.Background(), o); err != nil {
		fmt.Fprintln(os.Stderr, "loadtest:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	if o.users <= 0 || o.workers <= 0 || o.rotations <= 0 || o.replays <= 0 || o.racers < 2 {
		return errors.New("users, concurrency, ops and replays must be positive and racers at least 2")
	}

	addr := o.redisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Println("redis: in-process miniredis at", addr)
	} else {
		fmt.Println("redis:", addr)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()

	store := refresh.NewRedisStore(client, o.prefix, time.Hour)
	expiresAt := time.Now().Add(24 * time.Hour)

	t0 := time.Now()
	accounts, err := seed(ctx, store, o.users, expiresAt)
	if err != nil {
		return err
	}
	fmt.Printf("seeded %d tokens in %s\n", len(accounts), time.Since(t0).Round(time.Millisecond))

	rot := runRotatePhase(ctx, store, accounts, o.rotations, o.workers, expiresAt)
	rep, tally := runReplayPhase(ctx, store, accounts, o.replays, o.racers)

	fmt.Println(rot.format("rotate"))
	fmt.Println(rep.format("replay"))
	fmt.Printf("replay: tokens=%d winners=%d reuse_detected=%d revoked=%d\n",
		min(o.replays, len(accounts)), tally.winners.Load(), tally.reuse.Load(), tally.revoked.Load())

	if got, want := tally.winners.Load(), int64(min(o.replays, len(accounts))); got != want {
		return fmt.Errorf("%d rotation winners for %d raced tokens", got, want)
	}
	return nil
}

func seed(ctx context.Context, store refresh.Store, n int, expiresAt time.Time) ([]*account, error) {
	accounts := make([]*account, n)
	for i := range accounts {
		a := &account{userID: fmt.Sprintf("learner-%d", i), token: newToken()}
		if _, err := store.Create(ctx, a.userID, a.token, expiresAt); err != nil {
			return nil, fmt.Errorf("seed %s: %w", a.userID, err)
		}
		accounts[i] = a
	}
	return accounts, nil
}

func newToken() string {
	tok, err := internal.NewStateToken()
	if err != nil {
		panic(err)
	}
	return tok
}
