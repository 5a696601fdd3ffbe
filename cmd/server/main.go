package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"authgate/internal/audit"
	"authgate/internal/cache"
	"authgate/internal/captcha"
	"authgate/internal/email"
	"authgate/internal/engine"
	"authgate/internal/hash"
	"authgate/internal/platform/config"
	"authgate/internal/platform/httpserver"
	"authgate/internal/platform/logger"
	"authgate/internal/platform/metrics"
	platformredis "authgate/internal/platform/redis"
	"authgate/internal/session"
	"authgate/internal/store"
	"authgate/internal/token"
	httptransport "authgate/internal/transport/http"
)

// main wires the dependency graph and runs the two servers. Business logic
// lives in internal packages; everything here is construction and lifecycle.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schemas, err := buildRegistry()
	if err != nil {
		return err
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var records store.RecordStore
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		records = store.NewPostgresStore(pool)
		log.Info("using postgres record store")
	} else {
		records = store.NewInMemoryStore()
		log.Warn("no postgres configured, records are not durable")
	}

	var denylist session.InvalidationStore
	if redisClient != nil {
		denylist = session.NewRedisStore(redisClient.Client)
	} else {
		denylist = session.NewInMemoryStore()
		log.Warn("no redis configured, session revocation is process-local")
	}

	issuer := token.NewIssuer(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.TokenTTL)
	m := metrics.New()
	auditor := audit.NewPublisher(audit.NewInMemoryStore(), log, audit.WithAsyncBuffer(256))
	defer auditor.Close()

	eng := engine.New(schemas, records, hash.NewService(), issuer, denylist, log,
		engine.WithAudit(auditor),
		engine.WithMetrics(m),
		engine.WithEmailVerification(cfg.EmailVerification),
		engine.WithRevocationTTL(cfg.RevocationTTL),
	)

	var notifier httptransport.Notifier
	if cfg.SMTP.Addr != "" {
		sender := email.NewSMTPSender(cfg.SMTP.Addr, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
		notifier = email.NewNotifier(sender, schemas)
	} else if cfg.EmailVerification {
		log.Warn("email verification enabled but no smtp configured, tokens will not be delivered")
	}

	deps := httptransport.RouterDeps{
		Auth:     httptransport.NewAuthHandler(eng, schemas, notifier, log),
		Issuer:   issuer,
		Denylist: denylist,
	}
	if redisClient != nil && cfg.CaptchaSiteKey != "" {
		verifier, err := captcha.New(cfg.CaptchaSiteKey)
		if err != nil {
			return err
		}
		deps.Captcha = verifier
		deps.Cache = httptransport.NewCacheHandler(cache.NewService(redisClient.Client, schemas))
	}

	appSrv := httpserver.New(cfg.Addr, httptransport.NewRouter(deps))
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := httpserver.New(cfg.MetricsAddr, metricsMux)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", "addr", cfg.Addr)
		if err := appSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting metrics server", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := appSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return metricsSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
