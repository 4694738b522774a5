// Command eduauthd serves the eduAuth login, refresh and OAuth flows over
// HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	eduAuth "github.com/MrEthical07/eduAuth"
	"github.com/MrEthical07/eduAuth/identity"
	promexport "github.com/MrEthical07/eduAuth/metrics/export/prometheus"
	"github.com/MrEthical07/eduAuth/sqlstore"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loadEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("eduauthd stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

func run(ctx context.Context, cfg serverEnv, logger *zap.Logger) error {
	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// The OAuth state store degrades to memory; refresh tokens do not.
		logger.Warn("redis unreachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	db, err := sqlstore.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	builder := eduAuth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithLogger(logger).
		WithAccountStore(sqlstore.NewAccounts(db)).
		WithAuditSink(eduAuth.NewZapSink(logger.Named("audit")))
	if cfg.SQLRefreshTokens {
		builder.WithRefreshStore(sqlstore.NewRefreshTokens(db))
	}
	if cfg.oauthEnabled() {
		provider, err := identity.New(cfg.identityConfig())
		if err != nil {
			return fmt.Errorf("identity provider: %w", err)
		}
		builder.WithIdentityProvider(provider)
	} else {
		logger.Info("oauth disabled: EDUAUTH_OAUTH_CLIENT_ID or EDUAUTH_OAUTH_REDIRECT_URL unset")
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := engine.Shutdown(drainCtx); err != nil {
			logger.Warn("engine shutdown", zap.Error(err), zap.Uint64("audit_dropped", engine.AuditDropped()))
		}
	}()

	a := &api{engine: engine, logger: logger}
	if engineCfg.Metrics.Enabled {
		a.metrics = promexport.NewCollector(engine).Handler()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
