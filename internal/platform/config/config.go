package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	rlmodels "repairhub/internal/ratelimit/models"
	audit "repairhub/pkg/platform/audit"
	pstrings "repairhub/pkg/platform/strings"
)

// Audit backends selectable with AUDIT_STORE.
const (
	AuditStoreFile     = "file"
	AuditStorePostgres = "postgres"
	AuditStoreMemory   = "memory"
)

const (
	EnvironmentProduction  = "production"
	EnvironmentDevelopment = "development"
)

// Config is the full process configuration read once at startup.
type Config struct {
	Server      Server
	Environment string
	LogLevel    slog.Level
	// Secret is the raw signing secret; provisioning rules live in internal/secret.
	Secret      string
	CORSOrigins []string

	// TrustedProxies are CIDRs whose forwarding headers name the client.
	// Empty means loopback and private ranges.
	TrustedProxies []string
	RateLimit      RateLimitConfig
	Audit          AuditConfig
	DatabaseURL    string
	Redis          RedisConfig
	Operator       OperatorConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type RateLimitConfig struct {
	Window        time.Duration
	MaxRequests   int
	AuthWindow    time.Duration
	AuthMax       int
	SweepInterval time.Duration
}

// DefaultPolicy returns the general API policy with any overrides applied.
func (c RateLimitConfig) DefaultPolicy() rlmodels.Policy {
	return rlmodels.Policy{Name: rlmodels.DefaultPolicy().Name, Window: c.Window, MaxRequests: c.MaxRequests}
}

// AuthPolicy returns the login policy with any overrides applied.
func (c RateLimitConfig) AuthPolicy() rlmodels.Policy {
	return rlmodels.Policy{Name: rlmodels.AuthPolicy().Name, Window: c.AuthWindow, MaxRequests: c.AuthMax}
}

type AuditConfig struct {
	Store        string
	FilePath     string
	Retention    int
	KafkaBrokers []string
	KafkaTopic   string
}

// RedisConfig holds connection settings; an empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// OperatorConfig describes the single configured back-office operator.
type OperatorConfig struct {
	ID           string
	Email        string
	PasswordHash string
	TokenTTL     time.Duration
}

// Enabled reports whether operator login is configured.
func (o OperatorConfig) Enabled() bool {
	return o.Email != "" && o.PasswordHash != ""
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

// FromEnv builds the configuration from environment variables so main stays
// lean. Every malformed variable is reported, not just the first.
func FromEnv() (*Config, error) {
	return fromLookup(os.LookupEnv)
}

type lookupFunc func(string) (string, bool)

func fromLookup(lookup lookupFunc) (*Config, error) {
	r := reader{lookup: lookup}
	def := rlmodels.DefaultPolicy()
	auth := rlmodels.AuthPolicy()

	cfg := &Config{
		Server: Server{
			Addr:            r.str("ADDR", ":8080"),
			ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Environment:    strings.ToLower(r.str("ENVIRONMENT", EnvironmentDevelopment)),
		LogLevel:       r.level("LOG_LEVEL", slog.LevelInfo),
		Secret:         r.str("JWT_SECRET", ""),
		CORSOrigins:    pstrings.SplitList(r.str("CORS_ALLOWED_ORIGINS", ""), ","),
		TrustedProxies: pstrings.SplitList(r.str("TRUSTED_PROXIES", ""), ","),
		RateLimit: RateLimitConfig{
			Window:        r.millis("RATE_LIMIT_WINDOW_MS", def.Window),
			MaxRequests:   r.positiveInt("RATE_LIMIT_MAX", def.MaxRequests),
			AuthWindow:    r.millis("AUTH_RATE_LIMIT_WINDOW_MS", auth.Window),
			AuthMax:       r.positiveInt("AUTH_RATE_LIMIT_MAX", auth.MaxRequests),
			SweepInterval: r.duration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),
		},
		Audit: AuditConfig{
			Store:        strings.ToLower(r.str("AUDIT_STORE", AuditStoreFile)),
			FilePath:     r.str("AUDIT_FILE_PATH", "data/audit.log"),
			Retention:    r.positiveInt("AUDIT_RETENTION", audit.DefaultRetention),
			KafkaBrokers: pstrings.SplitList(r.str("KAFKA_BROKERS", ""), ","),
			KafkaTopic:   r.str("AUDIT_KAFKA_TOPIC", "repairhub.audit.events"),
		},
		DatabaseURL: r.str("DATABASE_URL", ""),
		Redis: RedisConfig{
			URL:          r.str("REDIS_URL", ""),
			PoolSize:     r.positiveInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.positiveInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Operator: OperatorConfig{
			ID:           r.str("OPERATOR_ID", "operator"),
			Email:        strings.ToLower(r.str("OPERATOR_EMAIL", "")),
			PasswordHash: r.str("OPERATOR_PASSWORD_HASH", ""),
			TokenTTL:     r.duration("OPERATOR_TOKEN_TTL", 15*time.Minute),
		},
	}

	switch cfg.Environment {
	case EnvironmentProduction, EnvironmentDevelopment, "test":
	default:
		r.fail("ENVIRONMENT", "must be production, development or test")
	}
	switch cfg.Audit.Store {
	case AuditStoreFile, AuditStoreMemory:
	case AuditStorePostgres:
		if cfg.DatabaseURL == "" {
			r.fail("DATABASE_URL", "is required when AUDIT_STORE=postgres")
		}
	default:
		r.fail("AUDIT_STORE", "must be file, postgres or memory")
	}
	if cfg.IsProduction() && cfg.Audit.Store == AuditStoreMemory {
		r.fail("AUDIT_STORE", "memory is not durable and cannot be used in production")
	}

	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

type reader struct {
	lookup lookupFunc
	errs   []error
}

func (r *reader) fail(key, reason string) {
	r.errs = append(r.errs, fmt.Errorf("%s %s", key, reason))
}

func (r *reader) str(key, fallback string) string {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (r *reader) positiveInt(key string, fallback int) int {
	raw := r.str(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		r.fail(key, "must be a positive integer")
		return fallback
	}
	return n
}

func (r *reader) millis(key string, fallback time.Duration) time.Duration {
	raw := r.str(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		r.fail(key, "must be a positive number of milliseconds")
		return fallback
	}
	return time.Duration(n) * time.Millisecond
}

func (r *reader) duration(key string, fallback time.Duration) time.Duration {
	raw := r.str(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		r.fail(key, "must be a positive duration such as 30s")
		return fallback
	}
	return d
}

func (r *reader) level(key string, fallback slog.Level) slog.Level {
	raw := r.str(key, "")
	if raw == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		r.fail(key, "must be debug, info, warn or error")
		return fallback
	}
	return lvl
}
