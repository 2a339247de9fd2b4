package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	audithandler "repairhub/internal/audit/handler"
	authhandler "repairhub/internal/auth/handler"
	"repairhub/internal/auth/models"
	authservice "repairhub/internal/auth/service"
	"repairhub/internal/auth/store/revocation"
	"repairhub/internal/cors"
	jwttoken "repairhub/internal/jwt_token"
	"repairhub/internal/platform/config"
	"repairhub/internal/platform/httpserver"
	"repairhub/internal/platform/logger"
	"repairhub/internal/platform/metrics"
	"repairhub/internal/platform/postgres"
	platformredis "repairhub/internal/platform/redis"
	rlhandler "repairhub/internal/ratelimit/handler"
	rlmetrics "repairhub/internal/ratelimit/metrics"
	rlmw "repairhub/internal/ratelimit/middleware"
	"repairhub/internal/ratelimit/ports"
	"repairhub/internal/ratelimit/service"
	"repairhub/internal/ratelimit/store/window"
	"repairhub/internal/secret"
	httptransport "repairhub/internal/transport/http"
	audit "repairhub/pkg/platform/audit"
	"repairhub/pkg/platform/audit/forwarder"
	"repairhub/pkg/platform/audit/publisher"
	"repairhub/pkg/platform/audit/store/file"
	"repairhub/pkg/platform/audit/store/memory"
	pgstore "repairhub/pkg/platform/audit/store/postgres"
	"repairhub/pkg/platform/circuit"
	"repairhub/pkg/platform/middleware/admin"
	authmw "repairhub/pkg/platform/middleware/auth"
	"repairhub/pkg/platform/middleware/metadata"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "repairhub:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing or weak secret in production stops the process here.
	signing, err := secret.Load(secret.Config{Value: cfg.Secret, Production: cfg.IsProduction()}, log)
	if err != nil {
		log.Error("secret provisioning failed", "error", err)
		return err
	}
	log.Info("signing secret loaded", "secret", signing)

	m := metrics.New()
	var closers closeStack
	defer closers.run(log)

	app, err := build(ctx, cfg, log, m, signing, &closers)
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(app.deps), log)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting repairhub", "addr", cfg.Server.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	for _, job := range app.background {
		g.Go(func() error {
			if err := job(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

type application struct {
	deps       httptransport.Deps
	background []func(context.Context) error
}

func build(ctx context.Context, cfg *config.Config, log *slog.Logger, m *metrics.Metrics, signing *secret.Provider, closers *closeStack) (*application, error) {
	app := &application{}
	health := map[string]httptransport.HealthCheck{}

	store, err := auditStore(ctx, cfg, log, closers, health)
	if err != nil {
		return nil, err
	}

	pubOpts := []publisher.Option{
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics(m.Registry)),
		publisher.WithTracer(otel.Tracer("repairhub/audit")),
	}
	if len(cfg.Audit.KafkaBrokers) > 0 {
		fwd, err := auditForwarder(ctx, cfg, log, m, closers)
		if err != nil {
			return nil, err
		}
		pubOpts = append(pubOpts, publisher.WithForwarder(fwd))
	}
	pub, err := publisher.NewPublisher(store, pubOpts...)
	if err != nil {
		return nil, err
	}
	closers.push("audit store", func(context.Context) error { return pub.Close() })
	if err := pub.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize audit trail: %w", err)
	}
	health["audit"] = func(context.Context) error {
		if !pub.Ready() {
			return publisher.ErrNotInitialized
		}
		return nil
	}

	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		closers.push("redis", func(context.Context) error { return rc.Close() })
		health["redis"] = rc.Health
	}

	counters, degraded, err := windowStore(rc, cfg, log, app)
	if err != nil {
		return nil, err
	}
	rlm := rlmetrics.New(m.Registry)
	apiLimiter, err := service.New(counters, cfg.RateLimit.DefaultPolicy(), service.WithLogger(log), service.WithMetrics(rlm))
	if err != nil {
		return nil, err
	}
	authLimiter, err := service.New(counters, cfg.RateLimit.AuthPolicy(), service.WithLogger(log), service.WithMetrics(rlm))
	if err != nil {
		return nil, err
	}
	limitOpts := []rlmw.Option{rlmw.WithAuditPublisher(pub), rlmw.WithMetrics(rlm)}
	if degraded != nil {
		limitOpts = append(limitOpts, rlmw.WithDegradedReporter(degraded))
	}

	allow, err := cors.ParseAllowList(cfg.CORSOrigins)
	if err != nil {
		return nil, fmt.Errorf("CORS_ALLOWED_ORIGINS: %w", err)
	}
	if allow.Len() == 0 {
		log.Warn("no CORS origins configured; every gated route will reject browser and non-browser callers")
	}

	tokens, err := jwttoken.NewJWTService(signing.Bytes(), jwttoken.DefaultIssuer, jwttoken.DefaultAudience)
	if err != nil {
		return nil, err
	}
	var trl revocationList
	if rc != nil {
		trl = revocation.NewRedisTRL(rc.Client, revocation.WithRegisterer(m.Registry))
	} else {
		mem := revocation.NewInMemoryTRL()
		app.background = append(app.background, func(ctx context.Context) error {
			mem.StartCleanup(ctx, cfg.RateLimit.SweepInterval)
			return nil
		})
		trl = mem
	}

	var operators []models.Operator
	if cfg.Operator.Enabled() {
		operators = append(operators, models.Operator{
			ID:           cfg.Operator.ID,
			Email:        cfg.Operator.Email,
			Role:         admin.RoleAdmin,
			PasswordHash: cfg.Operator.PasswordHash,
		})
	} else {
		log.Warn("operator login disabled: OPERATOR_EMAIL or OPERATOR_PASSWORD_HASH not set")
	}
	authSvc, err := authservice.New(operators, tokens, trl, pub,
		authservice.WithLogger(log), authservice.WithTokenTTL(cfg.Operator.TokenTTL))
	if err != nil {
		return nil, err
	}

	proxies := cfg.TrustedProxies
	if len(proxies) == 0 {
		proxies = metadata.DefaultTrustedProxies
	}
	clientIP, err := metadata.NewResolver(proxies)
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	app.deps = httptransport.Deps{
		Logger:         log,
		ClientIP:       clientIP,
		Metrics:        m,
		CORS:           cors.NewGate(allow, log, cors.WithRegisterer(m.Registry)),
		APILimit:       rlmw.New(apiLimiter, log, limitOpts...),
		AuthLimit:      rlmw.New(authLimiter, log, limitOpts...),
		Tokens:         tokens.MiddlewareValidator(),
		Revocations:    trl,
		Auth:           authhandler.New(authSvc, log),
		Audit:          audithandler.New(pub, log),
		RateLimitAdmin: rlhandler.New([]rlhandler.Resetter{apiLimiter, authLimiter}, log, rlhandler.WithAuditPublisher(pub)),
		Health:         health,
	}
	return app, nil
}

func auditStore(ctx context.Context, cfg *config.Config, log *slog.Logger, closers *closeStack, health map[string]httptransport.HealthCheck) (audit.Store, error) {
	switch cfg.Audit.Store {
	case config.AuditStorePostgres:
		pool, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.DefaultOptions())
		if err != nil {
			return nil, err
		}
		closers.push("postgres", func(context.Context) error { pool.Close(); return nil })
		health["postgres"] = pool.Ping
		log.Info("audit store selected", "backend", "postgres", "retention", cfg.Audit.Retention)
		return pgstore.New(pool, pgstore.WithRetention(cfg.Audit.Retention), pgstore.WithLogger(log))
	case config.AuditStoreMemory:
		log.Warn("audit store is in memory; the trail will not survive a restart")
		return memory.NewInMemoryStore(cfg.Audit.Retention), nil
	default:
		log.Info("audit store selected", "backend", "file", "path", cfg.Audit.FilePath, "retention", cfg.Audit.Retention)
		return file.New(cfg.Audit.FilePath, file.WithRetention(cfg.Audit.Retention), file.WithLogger(log)), nil
	}
}

func auditForwarder(ctx context.Context, cfg *config.Config, log *slog.Logger, m *metrics.Metrics, closers *closeStack) (*forwarder.Forwarder, error) {
	client, err := forwarder.NewClient(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := forwarder.EnsureTopic(ctx, client, cfg.Audit.KafkaTopic, 3, 1); err != nil {
		// The trail stays authoritative; forwarding is best effort.
		log.Warn("could not ensure audit topic", "topic", cfg.Audit.KafkaTopic, "error", err)
	}
	fwd, err := forwarder.New(client, cfg.Audit.KafkaTopic, forwarder.WithLogger(log), forwarder.WithRegisterer(m.Registry))
	if err != nil {
		client.Close()
		return nil, err
	}
	closers.push("audit forwarder", fwd.Close)
	log.Info("audit forwarding enabled", "brokers", cfg.Audit.KafkaBrokers, "topic", cfg.Audit.KafkaTopic)
	return fwd, nil
}

type degradable interface{ Degraded() bool }

// revocationList is written by logout and read by the auth middleware.
type revocationList interface {
	authservice.TokenRevocationList
	authmw.TokenRevocationChecker
}

func windowStore(rc *platformredis.Client, cfg *config.Config, log *slog.Logger, app *application) (ports.WindowStore, degradable, error) {
	mem := window.NewInMemoryStore()
	app.background = append(app.background, func(ctx context.Context) error {
		return mem.StartCleanup(ctx, cfg.RateLimit.SweepInterval)
	})
	if rc == nil {
		return mem, nil, nil
	}

	primary, err := window.NewRedisStore(rc.Client, "repairhub:")
	if err != nil {
		return nil, nil, err
	}
	failover, err := window.NewFailoverStore(primary, mem, circuit.New("ratelimit-redis"), log)
	if err != nil {
		return nil, nil, err
	}
	return failover, failover, nil
}

// closeStack releases resources in reverse acquisition order.
type closeStack struct {
	names []string
	fns   []func(context.Context) error
}

func (c *closeStack) push(name string, fn func(context.Context) error) {
	c.names = append(c.names, name)
	c.fns = append(c.fns, fn)
}

func (c *closeStack) run(log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(c.fns) - 1; i >= 0; i-- {
		if err := c.fns[i](ctx); err != nil {
			log.Error("failed to close resource", "resource", c.names[i], "error", err)
		}
	}
}
