// Command server runs the account lockout service over HTTP.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	auth "github.com/goliatone/go-auth-lockout"
	"github.com/goliatone/go-auth-lockout/activity/asynqsink"
	"github.com/goliatone/go-auth-lockout/config"
	"github.com/goliatone/go-auth-lockout/locker/redislock"
	"github.com/goliatone/go-auth-lockout/provider/auth0"
	"github.com/goliatone/go-auth-lockout/provider/firebase"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var errRegistrationUpstream = goerrors.New("registration is handled by the identity provider", goerrors.CategoryOperation).
	WithTextCode("REGISTRATION_UNSUPPORTED").
	WithCode(501)

func main() {
	configPath := flag.String("config", "", "path to a config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := auth.NewZerologLogger(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	manager := auth.NewRepositoryManager(db)
	if err := manager.Validate(); err != nil {
		return err
	}
	if err := manager.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	verifier, registrar, err := buildVerifier(ctx, cfg, manager, logger)
	if err != nil {
		return err
	}

	metrics := auth.NewPrometheusMetrics(nil)

	guardOpts := []auth.GuardOption{
		auth.WithGuardConfig(cfg),
		auth.WithGuardLogger(logger),
		auth.WithGuardMetrics(metrics),
		auth.WithGuardHistory(manager.StateChanges()),
	}
	var sink auth.ActivitySink

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		activity, client := asynqsink.NewFromRedis(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, asynqsink.WithNormalized())
		defer client.Close()
		sink = activity

		guardOpts = append(guardOpts,
			auth.WithGuardLocker(redislock.New(rdb, redislock.WithLogger(logger))),
			auth.WithGuardActivitySink(sink),
		)
		logger.Info("redis lock and activity queue enabled", "addr", cfg.Redis.Addr)
	}

	guard := auth.NewGuard(manager.Accounts(), manager.Attempts(), verifier, guardOpts...)
	admin := auth.NewAdmin(manager.Accounts(), guard.StateMachine(),
		auth.WithAdminLogger(logger),
		auth.WithAdminLocker(guard.Locker()),
		auth.WithAdminMetrics(metrics),
	)

	registerOpts := []auth.RegisterAccountOption{auth.WithRegisterLogger(logger)}
	if sink != nil {
		registerOpts = append(registerOpts, auth.WithRegisterActivitySink(sink))
	}
	register := auth.NewRegisterAccountHandler(manager.Accounts(), registrar, registerOpts...)

	sessions := auth.NewSessionManager(cfg, auth.WithSessionLogger(logger))
	auther := auth.NewAuthenticator(guard, sessions).WithLogger(logger)

	controller := auth.NewAuthController(auther, admin, register, manager.Accounts(),
		auth.WithControllerLogger(logger),
		auth.WithControllerDebug(cfg.Server.Debug),
	)

	var app *fiber.App
	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		app = router.DefaultFiberOptions(fiber.New(fiber.Config{
			DisableStartupMessage: true,
			ReadTimeout:           10 * time.Second,
			WriteTimeout:          10 * time.Second,
		}))
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
		return app
	})
	auth.RegisterAuthRoutes(srv.Router(), controller)

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "verifier", cfg.Verifier.Kind)
		errc <- srv.Serve(cfg.Server.Addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

func buildVerifier(ctx context.Context, cfg *config.Config, manager auth.RepositoryManager, logger auth.Logger) (auth.CredentialVerifier, auth.Registrar, error) {
	switch cfg.Verifier.Kind {
	case config.VerifierFirebase:
		v := firebase.New(cfg.Verifier.Firebase.APIKey,
			firebase.WithEndpoint(cfg.Verifier.Firebase.Endpoint),
			firebase.WithTimeout(cfg.Verifier.Firebase.Timeout),
			firebase.WithLogger(logger),
		)
		return v, v, nil

	case config.VerifierAuth0:
		c := cfg.Verifier.Auth0
		auth0Cfg := auth0.DefaultConfig(c.Domain, c.ClientID, c.ClientSecret)
		if c.Realm != "" {
			auth0Cfg.Realm = c.Realm
		}
		v, err := auth0.New(ctx, auth0Cfg)
		if err != nil {
			return nil, nil, err
		}
		unsupported := auth.RegistrarFunc(func(context.Context, string, string) (string, error) {
			return "", errRegistrationUpstream.Clone()
		})
		return v, unsupported, nil

	default:
		v := auth.NewLocalVerifier(manager.Credentials(), auth.WithLocalVerifierLogger(logger))
		return v, v, nil
	}
}
