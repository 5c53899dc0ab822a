package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	consenthandler "convertviral/internal/consent/handler"
	fileshandler "convertviral/internal/files/handler"
	"convertviral/internal/formats"
	jwttoken "convertviral/internal/jwt_token"
	"convertviral/internal/platform/config"
	"convertviral/internal/platform/httpserver"
	"convertviral/internal/platform/logger"
	"convertviral/internal/platform/metrics"
	"convertviral/internal/ratelimit"
	httptransport "convertviral/internal/transport/http"
)

const shutdownTimeout = 15 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{
		Production: cfg.Server.IsProduction(),
		Level:      cfg.Server.LogLevel,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	deps, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close(log)

	jwtValidator := jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer))
	secureCookies := cfg.Server.IsProduction()

	var (
		throttle func(http.Handler) http.Handler
		limiter  *ratelimit.Limiter
	)
	if cfg.Limits.Writes > 0 {
		proxies, err := cfg.Limits.ProxyPrefixes()
		if err != nil {
			return fmt.Errorf("trusted proxies: %w", err)
		}
		limiter = ratelimit.New(cfg.Limits.Writes, cfg.Limits.Window)
		throttle = ratelimit.Writes(limiter, log, ratelimit.WithTrustedProxies(proxies...))
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		Metrics:        metrics.New(),
		RequestTimeout: cfg.Server.RequestTimeout,
		Checks:         deps.checks,
		Throttle:       throttle,
		Handlers: []httptransport.Registrar{
			consenthandler.New(deps.consent, log, jwtValidator, secureCookies,
				consenthandler.WithAuthAuditor(deps.audit),
			),
			fileshandler.New(deps.files, log, jwtValidator),
			formats.NewHandler(
				formats.NewService(deps.cache, formats.WithLogger(log), formats.WithTTL(cfg.Cache.LongTTL)),
				log,
				cfg.Cache.ShortTTL,
			),
		},
	})
	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.RequestTimeout)

	deps.cache.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(gctx, srv, shutdownTimeout, log)
	})
	if limiter != nil {
		g.Go(func() error {
			limiter.Run(gctx, cfg.Limits.Window)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := deps.files.Close(stopCtx); err != nil {
			log.Warn("file scheduler did not stop cleanly", "error", err)
		}
		if err := deps.cache.Stop(stopCtx); err != nil {
			log.Warn("cache did not stop cleanly", "error", err)
		}
		return nil
	})
	return g.Wait()
}
