// Package app wires the service's dependencies once at startup. Nothing here is global; cmd/server
// builds an App and hands its parts to the servers.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"keyrotation-auth/internal/audit"
	auditrepo "keyrotation-auth/internal/audit/repository"
	"keyrotation-auth/internal/config"
	"keyrotation-auth/internal/db"
	healthhandler "keyrotation-auth/internal/health/handler"
	identityhandler "keyrotation-auth/internal/identity/handler"
	"keyrotation-auth/internal/identity/service"
	"keyrotation-auth/internal/keystore"
	"keyrotation-auth/internal/policy/engine"
	principalrepo "keyrotation-auth/internal/principal/repository"
	"keyrotation-auth/internal/ratelimit"
	"keyrotation-auth/internal/security"
	"keyrotation-auth/internal/server"
	"keyrotation-auth/internal/server/interceptors"
	"keyrotation-auth/internal/telemetry"
	otelsetup "keyrotation-auth/internal/telemetry/otel"
)

// App holds the long-lived dependencies of the server process.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *sql.DB
	Dialect   db.Dialect
	Redis     redis.UniversalClient
	Telemetry *otelsetup.Providers
	Metrics   *telemetry.AuthMetrics

	Principals *principalrepo.SQLRepository
	Keys       *keystore.Store
	Issuer     *service.SessionIssuer
	Gate       *interceptors.Gate
	Audit      *audit.Logger
	AuditRepo  *auditrepo.SQLRepository
	Policy     *engine.OPAAuthorizer
	Limiter    *ratelimit.Limiter
	Health     *healthhandler.Checker
	Proxies    interceptors.TrustedProxies
}

// New opens the database, telemetry, policy engine and optional Redis limiter and wires the
// authentication core. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.Telemetry, err = otelsetup.NewProviders(ctx, otelsetup.Options{
		Endpoint:        cfg.OTLPEndpoint,
		ServiceName:     cfg.ServiceName,
		Insecure:        cfg.OTLPInsecure,
		MetricsExporter: cfg.MetricsExporter,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.Telemetry.SetGlobal()
	a.Metrics, err = telemetry.NewAuthMetrics(a.Telemetry.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	a.Dialect, err = db.DialectFor(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.DB, err = db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}

	a.Proxies, err = interceptors.ParseTrustedProxies(cfg.TrustedProxyList())
	if err != nil {
		return nil, fmt.Errorf("config: TRUSTED_PROXIES: %w", err)
	}

	module, err := engine.LoadPolicyFile(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	a.Policy, err = engine.NewOPAAuthorizer(ctx, module)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}

	issuerOpts := []service.Option{service.WithMetrics(a.Metrics), service.WithLogger(logger)}
	var limiterPinger healthhandler.LimiterPinger
	if cfg.ThrottleEnabled() {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.Limiter = ratelimit.New(a.Redis, ratelimit.Config{
			MaxAttempts: cfg.LoginMaxAttempts,
			Window:      cfg.LoginCooldownDuration(),
		})
		if pingErr := a.Limiter.Ping(ctx); pingErr != nil {
			logger.Warn("redis unreachable at startup; login throttling fails open", "error", pingErr)
		}
		issuerOpts = append(issuerOpts, service.WithLimiter(a.Limiter))
		limiterPinger = a.Limiter
	}

	emitter := otelsetup.NewEventEmitter(a.Telemetry.LoggerProvider)
	a.AuditRepo = auditrepo.NewSQLRepository(a.DB, a.Dialect)
	a.Audit = audit.NewLogger(a.AuditRepo, emitter, interceptors.ClientIP, logger)
	issuerOpts = append(issuerOpts, service.WithAudit(a.Audit))

	codec := security.NewTokenCodec()
	a.Principals = principalrepo.NewSQLRepository(a.DB, a.Dialect)
	a.Keys = keystore.New(a.Principals)
	a.Issuer = service.NewSessionIssuer(
		a.Principals,
		a.Keys,
		codec,
		security.NewHasher(cfg.BcryptCost),
		cfg.AccessTTL(),
		cfg.RefreshTTL(),
		issuerOpts...,
	)
	a.Gate = interceptors.NewGate(codec, a.Keys,
		interceptors.WithGateMetrics(a.Metrics),
		interceptors.WithGateAudit(a.Audit),
		interceptors.WithGateLogger(logger),
	)
	a.Health = healthhandler.NewChecker(a.DB, a.Policy, limiterPinger)
	return a, nil
}

// HTTPHandler returns the HTTP API.
func (a *App) HTTPHandler() http.Handler {
	identity := identityhandler.New(a.Issuer, a.Gate, a.Policy, identityhandler.CookieConfig{
		Name:   a.Config.RefreshCookieName,
		Path:   a.Config.RefreshCookiePath,
		MaxAge: a.Config.RefreshTTL(),
		Secure: a.Config.SecureCookies(),
	}, a.Logger, identityhandler.WithAuditReader(a.AuditRepo))
	return server.NewHTTPHandler(server.HTTPDeps{
		Identity:       identity,
		Health:         a.Health,
		Metrics:        a.Telemetry.MetricsHandler,
		TrustedProxies: a.Proxies,
		Logger:         a.Logger,
	})
}

// GRPCServer returns the gRPC server.
func (a *App) GRPCServer() *grpc.Server {
	return server.NewGRPCServer(server.GRPCDeps{Gate: a.Gate, Health: a.Health})
}

// Close releases the database, Redis and telemetry providers. Safe on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Telemetry != nil && a.Telemetry.Shutdown != nil {
		errs = append(errs, a.Telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
