package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration, parsed from the environment so
// main stays lean.
type Config struct {
	Server  Server
	Redis   RedisConfig
	Cache   CacheConfig
	Consent ConsentConfig
	Auth    AuthConfig
	Archive ArchiveConfig
	Kafka   KafkaConfig
	Files   FilesConfig
	Limits  RateLimitConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string `env:"CV_ADDR" envDefault:":8080"`
	Environment string `env:"GO_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	// RequestTimeout bounds every request handled by the router.
	RequestTimeout time.Duration `env:"CV_REQUEST_TIMEOUT" envDefault:"30s"`
}

// IsProduction reports whether the process runs with production defaults.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// RedisConfig configures the shared key/value store. An empty URL selects the
// in-process store, which is only suitable for a single instance.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// CacheConfig sets the TTL categories and the memory-tier sweep cadence.
type CacheConfig struct {
	DefaultTTL    time.Duration `env:"CACHE_DEFAULT_TTL" envDefault:"5m"`
	ShortTTL      time.Duration `env:"CACHE_SHORT_TTL" envDefault:"60s"`
	LongTTL       time.Duration `env:"CACHE_LONG_TTL" envDefault:"24h"`
	SweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"60s"`
	OpTimeout     time.Duration `env:"CACHE_OP_TIMEOUT" envDefault:"2s"`
	AsyncWrites   bool          `env:"CACHE_ASYNC_WRITES" envDefault:"false"`
	// BreakerThreshold consecutive persistent-tier failures switch the cache
	// to memory-only until BreakerCooldown has passed.
	BreakerThreshold int           `env:"CACHE_BREAKER_THRESHOLD" envDefault:"5"`
	BreakerCooldown  time.Duration `env:"CACHE_BREAKER_COOLDOWN" envDefault:"30s"`
}

// ConsentConfig controls retention and the audit feed bound.
type ConsentConfig struct {
	// Retention is the GDPR retention window for current state and audit entries.
	Retention    time.Duration `env:"CONSENT_RETENTION" envDefault:"61320h"`
	FeedLimit    int64         `env:"CONSENT_FEED_LIMIT" envDefault:"1000"`
	HistoryLimit int           `env:"CONSENT_HISTORY_LIMIT" envDefault:"50"`
	FormVersion  string        `env:"CONSENT_FORM_VERSION" envDefault:"1.0"`
	TxTimeout    time.Duration `env:"CONSENT_TX_TIMEOUT" envDefault:"5s"`
}

// AuthConfig configures access-token validation.
type AuthConfig struct {
	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string `env:"JWT_ISSUER" envDefault:"convertviral"`
}

// ArchiveConfig enables the Postgres compliance archive when DatabaseURL is set.
type ArchiveConfig struct {
	DatabaseURL string `env:"DATABASE_URL"`
}

// KafkaConfig enables the Kafka audit publisher when Brokers is non-empty.
type KafkaConfig struct {
	Brokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	AuditTopic string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"convertviral.audit.security"`
}

// FilesConfig configures the S3-compatible object store.
type FilesConfig struct {
	Endpoint  string        `env:"S3_ENDPOINT"`
	AccessKey string        `env:"S3_ACCESS_KEY"`
	SecretKey string        `env:"S3_SECRET_KEY"`
	Bucket    string        `env:"S3_BUCKET" envDefault:"convertviral-uploads"`
	UseSSL    bool          `env:"S3_USE_SSL" envDefault:"true"`
	URLTTL    time.Duration `env:"FILE_URL_TTL" envDefault:"1h"`
	Retention time.Duration `env:"FILE_RETENTION" envDefault:"24h"`
	MaxBytes  int64         `env:"FILE_MAX_BYTES" envDefault:"104857600"`
}

// Enabled reports whether object storage is configured.
func (f FilesConfig) Enabled() bool {
	return f.Endpoint != "" && f.AccessKey != "" && f.SecretKey != ""
}

// RateLimitConfig bounds state-changing requests per client IP. A zero limit
// disables throttling.
type RateLimitConfig struct {
	Writes int           `env:"RATE_LIMIT_WRITES" envDefault:"60"`
	Window time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	// TrustedProxies lists the addresses or CIDR ranges of reverse proxies
	// whose X-Forwarded-For entries may name the client. Empty means the
	// socket peer is always the client.
	TrustedProxies []string `env:"RATE_LIMIT_TRUSTED_PROXIES" envSeparator:","`
}

// ProxyPrefixes parses TrustedProxies. A bare address becomes a single-host
// prefix.
func (c RateLimitConfig) ProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// FromEnv parses the configuration and validates cross-field constraints.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Cache.ShortTTL < time.Second || c.Cache.DefaultTTL < time.Second || c.Cache.LongTTL < time.Second {
		return fmt.Errorf("cache TTLs must be at least one second")
	}
	if c.Cache.ShortTTL > c.Cache.DefaultTTL || c.Cache.DefaultTTL > c.Cache.LongTTL {
		return fmt.Errorf("cache TTLs must satisfy short <= default <= long")
	}
	if c.Cache.SweepInterval <= 0 {
		return fmt.Errorf("cache sweep interval must be positive")
	}
	if c.Cache.BreakerThreshold <= 0 || c.Cache.BreakerCooldown <= 0 {
		return fmt.Errorf("cache breaker threshold and cooldown must be positive")
	}
	if c.Consent.FeedLimit <= 0 || c.Consent.HistoryLimit <= 0 {
		return fmt.Errorf("consent feed and history limits must be positive")
	}
	if c.Consent.Retention <= 0 {
		return fmt.Errorf("consent retention must be positive")
	}
	if c.Limits.Writes < 0 || (c.Limits.Writes > 0 && c.Limits.Window <= 0) {
		return fmt.Errorf("rate limit requires a non-negative limit and a positive window")
	}
	if _, err := c.Limits.ProxyPrefixes(); err != nil {
		return err
	}
	if c.Server.IsProduction() && c.Auth.JWTSigningKey == "dev-secret-key-change-in-production" {
		return fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	}
	return nil
}
