package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/hostsession"
	"github.com/MrEthical07/goMFA/httpapi"
	"github.com/MrEthical07/goMFA/method"
	"github.com/MrEthical07/goMFA/methods/backupcodes"
	"github.com/MrEthical07/goMFA/methods/basicmath"
	"github.com/MrEthical07/goMFA/methods/totp"
	promexport "github.com/MrEthical07/goMFA/metrics/export/prometheus"
	"github.com/MrEthical07/goMFA/notify"
	"github.com/MrEthical07/goMFA/password"
	"github.com/MrEthical07/goMFA/records"
	"github.com/MrEthical07/goMFA/registry"
	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func serve(ctx context.Context, cfg ServerConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// ---------- infrastructure ----------
	client, closeRedis, err := openRedis(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	repo, closeRepo, err := openRepository(ctx, cfg, client)
	if err != nil {
		return err
	}
	defer closeRepo()

	handlers := []notify.Handler{notify.NewLogHandler(logger)}
	if cfg.SMTP.Enabled {
		email, err := notify.NewEmailHandler(notify.EmailConfig{
			Addr:     cfg.SMTP.Addr,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		})
		if err != nil {
			return errors.Wrap(err, "smtp handler")
		}
		handlers = append(handlers, email)
	}

	// ---------- build engine ----------
	engine, err := goMFA.New().
		WithConfig(engineConfig(cfg)).
		WithCatalogue(buildCatalogue(cfg)).
		WithRepository(repo).
		WithRedis(client).
		WithLogger(logger).
		WithNotificationHandlers(handlers...).
		Build()
	if err != nil {
		return errors.Wrap(err, "engine build")
	}
	defer engine.Close()

	sessions, err := hostsession.NewManager(client, hostsession.Config{
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		KeyPrefix:  cfg.Records.KeyPrefix + ":hs",
		Secure:     cfg.Session.Secure && !cfg.Dev,
		SigningKey: []byte(cfg.Session.SigningKey),
		Issuer:     cfg.Session.Issuer,
	})
	if err != nil {
		return errors.Wrap(err, "host sessions")
	}

	api, err := httpapi.New(engine, httpapi.Options{
		Members:  httpapi.HeaderMemberResolver(cfg.Identity.MemberHeader, cfg.Identity.EmailHeader),
		Sessions: httpapi.ManagerSessions(sessions),
		Logger:   logger,
	})
	if err != nil {
		return errors.Wrap(err, "http api")
	}

	// ---------- routes ----------
	router := mux.NewRouter()
	api.Mount(router)
	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, promexport.NewPrometheusExporter(engine).Handler()).Methods(http.MethodGet)
	}
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := client.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.Strings("methods", cfg.Methods))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "listen")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

func newLogger(cfg ServerConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Dev || cfg.Log.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Log.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	zcfg.Level = level
	logger, err := zcfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return logger.Named("mfa-server"), nil
}

// openRedis connects to cfg.Redis, or to an in-process miniredis in dev
// mode.
func openRedis(cfg ServerConfig, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if cfg.Dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, errors.Wrap(err, "start miniredis")
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		logger.Warn("using in-process redis, state is lost on exit", zap.String("addr", mr.Addr()))
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Redis.Addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return client, func() { _ = client.Close() }, nil
}

func openRepository(ctx context.Context, cfg ServerConfig, client redis.UniversalClient) (records.Repository, func(), error) {
	noop := func() {}
	switch cfg.Records.Driver {
	case "memory":
		return records.NewMemory(), noop, nil
	case "redis":
		return records.NewRedis(client, cfg.Records.KeyPrefix), noop, nil
	case "postgres":
		db, err := records.OpenPostgres(cfg.Records.DSN)
		if err != nil {
			return nil, nil, err
		}
		repo := records.NewGorm(db)
		if err := repo.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		closeDB := noop
		if sqlDB, err := db.DB(); err == nil {
			closeDB = func() { _ = sqlDB.Close() }
		}
		return repo, closeDB, nil
	default:
		return nil, nil, errors.Newf("unknown records driver %q", cfg.Records.Driver)
	}
}

func engineConfig(cfg ServerConfig) goMFA.Config {
	c := goMFA.DefaultConfig()
	c.Methods = append([]string(nil), cfg.Methods...)
	c.RoutePrefix = cfg.Policy.RoutePrefix
	c.Policy.Required = cfg.Policy.Required
	c.Policy.GracePeriodEnd = cfg.Policy.gracePeriodEnd()
	c.Policy.RequiredFactors = cfg.Policy.RequiredFactors
	c.Policy.BackupMethod = cfg.Policy.BackupMethod
	c.Verification.MaxAttempts = cfg.Policy.MaxAttempts
	c.Verification.Cooldown = cfg.Policy.Cooldown
	c.Metrics.Enabled = cfg.Metrics.Enabled
	c.Metrics.EnableLatencyHistograms = cfg.Metrics.Enabled
	return c
}

// buildCatalogue lists every method the binary knows how to construct.
// Config.Methods picks which of them are enabled.
func buildCatalogue(cfg ServerConfig) registry.Catalogue {
	return registry.Catalogue{
		basicmath.URLSegment: func() (method.Method, error) {
			return basicmath.New(basicmath.Config{}), nil
		},
		backupcodes.URLSegment: func() (method.Method, error) {
			hasher, err := password.NewArgon2(password.DefaultConfig())
			if err != nil {
				return nil, err
			}
			m, err := backupcodes.New(hasher, backupcodes.Config{})
			if err != nil {
				return nil, err
			}
			return m, nil
		},
		totp.URLSegment: func() (method.Method, error) {
			tc := totp.DefaultConfig()
			tc.Issuer = cfg.TOTP.Issuer
			m, err := totp.New(tc)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
	}
}
