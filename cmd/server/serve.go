package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/console-auth/internal/audit"
	"github.com/and161185/console-auth/internal/config"
	pkgcrypto "github.com/and161185/console-auth/internal/crypto"
	"github.com/and161185/console-auth/internal/limiter"
	"github.com/and161185/console-auth/internal/metrics"
	"github.com/and161185/console-auth/internal/migrate"
	"github.com/and161185/console-auth/internal/repository"
	"github.com/and161185/console-auth/internal/repository/memory"
	"github.com/and161185/console-auth/internal/repository/postgres"
	httpserver "github.com/and161185/console-auth/internal/server/http"
	"github.com/and161185/console-auth/internal/service"
	"github.com/and161185/console-auth/internal/telemetry"
)

// backend is the credential store plus what depends on its lifetime.
type backend struct {
	users  repository.UserRepository
	tokens repository.RefreshTokenRepository
	audit  audit.Recorder
	ping   func(context.Context) error
	close  func()
}

func openBackend(ctx context.Context, cfg config.Config, inMemory, skipMigrations bool, log *zap.Logger) (*backend, error) {
	if inMemory {
		log.Warn("using in-memory credential store; state is lost on exit")
		st := memory.New(nil)
		return &backend{users: st.Users(), tokens: st.Tokens(), audit: audit.Nop, ping: st.Ping, close: func() {}}, nil
	}
	if !skipMigrations {
		if err := migrate.Up(ctx, cfg.DatabaseDSN); err != nil {
			return nil, fmt.Errorf("migrate up: %w", err)
		}
	}
	db, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return &backend{
		users:  postgres.NewUserRepo(db),
		tokens: postgres.NewTokenRepo(db),
		audit:  audit.NewPGRecorder(db.Pool),
		ping:   db.Ping,
		close:  db.Close,
	}, nil
}

// counterStore picks Redis behind a circuit breaker when configured, else process memory.
func counterStore(ctx context.Context, cfg config.Config, log *zap.Logger) (limiter.Store, func()) {
	if cfg.RedisAddr == "" {
		return limiter.NewMemoryStore(), func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable at startup; category failure policies apply", zap.Error(err))
	}
	store := limiter.NewBreakerStore(limiter.NewRedisStore(rdb, "console-auth:rl:"), "redis-ratelimit", log)
	return store, func() { _ = rdb.Close() }
}

type services struct {
	tokens   *service.TokenService
	auth     *service.AuthService
	accounts *service.AccountService
}

func buildServices(cfg config.Config, b *backend, rec audit.Recorder, log *zap.Logger) (*services, error) {
	tokens, err := service.NewTokenService(b.tokens, service.TokenConfig{
		Secret:       []byte(cfg.JWTSecret),
		Algorithm:    cfg.JWTAlgorithm,
		Issuer:       cfg.JWTIssuer,
		AccessTTL:    cfg.AccessTokenTTL,
		RefreshTTL:   cfg.RefreshTokenTTL,
		StoreTimeout: cfg.StoreTimeout,
	}, service.WithTokenLogger(log))
	if err != nil {
		return nil, err
	}
	hasher := pkgcrypto.NewHasher(cfg.BcryptCost)
	return &services{
		tokens: tokens,
		auth: service.NewAuthService(service.AuthDeps{
			Users: b.users, Tokens: tokens, Hasher: hasher, Audit: rec, Log: log, StoreTimeout: cfg.StoreTimeout,
		}),
		accounts: service.NewAccountService(service.AccountDeps{
			Users: b.users, Tokens: tokens, Hasher: hasher, Audit: rec, Log: log, StoreTimeout: cfg.StoreTimeout,
		}),
	}, nil
}

func newServeCommand() *cobra.Command {
	var inMemory, skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log, inMemory, skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&inMemory, "memory", false, "keep users and sessions in process memory (development only)")
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply migrations at startup")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger, inMemory, skipMigrations bool) error {
	log.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTPAddr),
	)

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTLPEndpoint, version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Error("shutdown tracing", zap.Error(err))
		}
	}()

	b, err := openBackend(ctx, cfg, inMemory, skipMigrations, log)
	if err != nil {
		return err
	}
	defer b.close()

	m := metrics.New()
	recorders := []audit.Recorder{audit.NewZapRecorder(log), b.audit, m}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("console-auth"))
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = nc.Drain() }()
		recorders = append(recorders, audit.NewNATSRecorder(nc, cfg.NATSAuditSubject))
	}
	rec := audit.Multi(recorders...)

	svc, err := buildServices(cfg, b, rec, log)
	if err != nil {
		return err
	}
	if in, ok := cfg.BootstrapAdmin(); ok {
		created, err := svc.accounts.EnsureAdmin(ctx, in)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			log.Info("bootstrap admin created", zap.String("username", in.Username))
		}
	}

	store, closeStore := counterStore(ctx, cfg, log)
	defer closeStore()
	lim, err := limiter.New(store, cfg.Policies(),
		limiter.WithLogger(log),
		limiter.WithObserver(m),
		limiter.WithFailClosedRetry(cfg.FailClosedRetry),
	)
	if err != nil {
		return err
	}

	api, err := httpserver.New(httpserver.Options{
		Sessions:       svc.auth,
		Accounts:       svc.accounts,
		Limiter:        lim,
		Metrics:        m,
		Log:            log,
		Cookies:        httpserver.CookieConfig{Secure: cfg.CookieSecure, Domain: cfg.CookieDomain},
		Audit:          rec,
		AllowedOrigins: cfg.AllowedOrigins,
		Ready:          b.ping,
	})
	if err != nil {
		return err
	}

	go svc.tokens.RunSweeper(ctx, cfg.SweepInterval)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error("shutdown server", zap.Error(err))
	}
	log.Info("shutdown complete")
	return nil
}
