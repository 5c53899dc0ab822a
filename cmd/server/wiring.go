package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"convertviral/internal/audit"
	"convertviral/internal/cache"
	consentservice "convertviral/internal/consent/service"
	consentstore "convertviral/internal/consent/store"
	"convertviral/internal/files"
	"convertviral/internal/platform/config"
	"convertviral/internal/platform/kv"
	"convertviral/internal/platform/redis"
	"convertviral/internal/storage"
	httptransport "convertviral/internal/transport/http"
)

const (
	auditBuffer      = 1024
	auditPartitions  = 3
	auditReplication = 1
	setupTimeout     = 15 * time.Second
)

// infra holds the long-lived dependencies built from configuration.
type infra struct {
	cache   *cache.Cache
	consent *consentservice.Service
	files   *files.Service
	audit   *audit.Publisher
	checks  map[string]httptransport.HealthCheck
	closers []func() error
}

func (i *infra) close(log *slog.Logger) {
	for j := len(i.closers) - 1; j >= 0; j-- {
		if err := i.closers[j](); err != nil {
			log.Warn("failed to release resource", "error", err)
		}
	}
}

func buildInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *infra, err error) {
	setupCtx, cancel := context.WithTimeout(ctx, setupTimeout)
	defer cancel()

	deps := &infra{checks: make(map[string]httptransport.HealthCheck)}
	defer func() {
		if err != nil {
			deps.close(log)
		}
	}()

	store, err := buildKV(setupCtx, cfg, log, deps)
	if err != nil {
		return nil, err
	}

	deps.cache, err = cache.New(store,
		cache.WithLogger(log),
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithSweepInterval(cfg.Cache.SweepInterval),
		cache.WithOpTimeout(cfg.Cache.OpTimeout),
		cache.WithAsyncWrites(cfg.Cache.AsyncWrites),
		cache.WithBreaker(cfg.Cache.BreakerThreshold, cfg.Cache.BreakerCooldown),
	)
	if err != nil {
		return nil, fmt.Errorf("build cache: %w", err)
	}

	publisher, err := buildAuditPublisher(setupCtx, cfg, log)
	if err != nil {
		return nil, err
	}
	deps.closers = append(deps.closers, publisher.Close)
	deps.audit = publisher

	consentOpts := []consentservice.Option{
		consentservice.WithLogger(log),
		consentservice.WithAuditPublisher(publisher),
		consentservice.WithRetention(cfg.Consent.Retention),
		consentservice.WithFeedLimit(cfg.Consent.FeedLimit),
		consentservice.WithHistoryLimit(cfg.Consent.HistoryLimit),
		consentservice.WithFormVersion(cfg.Consent.FormVersion),
		consentservice.WithTxTimeout(cfg.Consent.TxTimeout),
	}
	if cfg.Archive.DatabaseURL != "" {
		archive, err := openArchive(setupCtx, cfg.Archive.DatabaseURL, deps)
		if err != nil {
			return nil, err
		}
		consentOpts = append(consentOpts, consentservice.WithArchive(archive))
		log.Info("consent compliance archive enabled")
	}
	deps.consent = consentservice.New(consentstore.New(store), consentOpts...)

	objects, err := buildObjectStore(setupCtx, cfg.Files, log, deps)
	if err != nil {
		return nil, err
	}
	deps.files = files.New(objects, files.NewScheduler(files.WithSchedulerLogger(log)),
		files.WithLogger(log),
		files.WithAuditPublisher(publisher),
		files.WithURLTTL(cfg.Files.URLTTL),
		files.WithRetention(cfg.Files.Retention),
		files.WithMaxBytes(cfg.Files.MaxBytes),
	)
	return deps, nil
}

// buildKV connects Redis when configured and otherwise falls back to the
// in-process store, which only suits a single instance.
func buildKV(ctx context.Context, cfg config.Config, log *slog.Logger, deps *infra) (kv.Store, error) {
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if client == nil {
		if cfg.Server.IsProduction() {
			log.Warn("REDIS_URL not set, using in-process key/value store")
		}
		return kv.NewMemoryStore(), nil
	}
	deps.closers = append(deps.closers, client.Close)
	deps.checks["redis"] = client.Health
	return kv.NewRedisStore(client.Client), nil
}

func buildAuditPublisher(ctx context.Context, cfg config.Config, log *slog.Logger) (*audit.Publisher, error) {
	sinks := audit.Fanout{audit.NewLogSink(log)}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, log)
		if err != nil {
			return nil, err
		}
		if err := kafka.EnsureTopic(ctx, auditPartitions, auditReplication); err != nil {
			_ = kafka.Close()
			return nil, err
		}
		sinks = append(sinks, kafka)
		log.Info("kafka audit sink enabled", "topic", cfg.Kafka.AuditTopic)
	}
	return audit.NewPublisher(sinks,
		audit.WithLogger(log),
		audit.WithAsyncBuffer(auditBuffer),
	), nil
}

func openArchive(ctx context.Context, dsn string, deps *infra) (*consentstore.PostgresArchive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	deps.closers = append(deps.closers, db.Close)
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping archive database: %w", err)
	}
	archive := consentstore.NewPostgresArchive(db)
	if err := archive.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	deps.checks["archive"] = db.PingContext
	return archive, nil
}

func buildObjectStore(ctx context.Context, cfg config.FilesConfig, log *slog.Logger, deps *infra) (storage.ObjectStore, error) {
	if !cfg.Enabled() {
		log.Warn("S3 storage not configured, uploads are kept in memory")
		return storage.NewMemoryStore(cfg.Bucket), nil
	}
	store, err := storage.NewMinioStore(storage.MinioConfig{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		UseSSL:    cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	deps.checks["storage"] = store.Health
	return store, nil
}
