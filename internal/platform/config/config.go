package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Server    Server
	Auth      Auth
	Gateway   Gateway
	Breaker   Breaker
	Cache     Cache
	Redis     RedisConfig
	Postgres  Postgres
	Kafka     Kafka
	Query     Query
	RateLimit RateLimit
	Log       Log
	Seed      Seed
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Auth configures bearer token validation.
type Auth struct {
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
}

// Gateway configures the upstream registry client.
type Gateway struct {
	BaseURL        string
	Endpoint       string
	ServiceID      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
	HealthInterval time.Duration
}

// Breaker configures the upstream circuit breaker.
type Breaker struct {
	WindowSize       int
	MinimumCalls     int
	FailureRate      float64
	Cooldown         time.Duration
	SuccessThreshold int
}

// Cache configures the result cache. Backend is "memory" or "redis".
type Cache struct {
	Backend    string
	TTL        time.Duration
	MaxEntries int
	KeyPrefix  string
}

// RedisConfig is empty-URL disabled.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Postgres is empty-DSN disabled; the in-memory stores are used instead.
type Postgres struct {
	DSN            string
	MaxConns       int32
	MigrateOnStart bool
}

// Kafka is empty-brokers disabled; audit events go to memory.
type Kafka struct {
	Brokers     []string
	AuditTopic  string
	ClientID    string
	AuditBuffer int
}

// Query configures the metered lookup orchestration.
type Query struct {
	UnitCost          int64
	BillCircuitOpen   bool
	CompletionTimeout time.Duration
	AsyncWorkers      int
	AsyncQueue        int
	StaleAfter        time.Duration
	SweepInterval     time.Duration
	Timezone          string
}

// RateLimit bounds lookups per caller in a sliding window.
type RateLimit struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

// Seed provisions one funded caller at startup for local runs. Empty
// CallerID disables it.
type Seed struct {
	CallerID string
	Balance  int64
}

// Log selects slog level and handler.
type Log struct {
	Level  string
	Format string
}

// Location resolves Query.Timezone, falling back to UTC.
func (q Query) Location() *time.Location {
	if q.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FromEnv builds the config from environment variables so main stays lean.
// Every value has a development default; parse failures are collected and
// returned together.
func FromEnv() (*Config, error) {
	e := &envReader{}
	cfg := &Config{
		Server: Server{
			Addr:            e.str("IDLOOKUP_ADDR", ":8080"),
			ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Auth: Auth{
			// Use a default for development - should be overridden in production
			JWTSigningKey: e.str("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     e.str("JWT_ISSUER", ""),
			JWTAudience:   e.str("JWT_AUDIENCE", ""),
		},
		Gateway: Gateway{
			BaseURL:        e.str("REGISTRY_BASE_URL", "http://localhost:9090"),
			Endpoint:       e.str("REGISTRY_ENDPOINT", "/"),
			ServiceID:      e.str("REGISTRY_SERVICE_ID", ""),
			ConnectTimeout: e.duration("REGISTRY_CONNECT_TIMEOUT", 5*time.Second),
			ReadTimeout:    e.duration("REGISTRY_READ_TIMEOUT", 15*time.Second),
			MaxAttempts:    e.integer("REGISTRY_MAX_ATTEMPTS", 3),
			InitialBackoff: e.duration("REGISTRY_INITIAL_BACKOFF", time.Second),
			Multiplier:     e.float("REGISTRY_BACKOFF_MULTIPLIER", 2),
			MaxBackoff:     e.duration("REGISTRY_MAX_BACKOFF", 10*time.Second),
			HealthInterval: e.duration("REGISTRY_HEALTH_INTERVAL", 30*time.Minute),
		},
		Breaker: Breaker{
			WindowSize:       e.integer("BREAKER_WINDOW_SIZE", 20),
			MinimumCalls:     e.integer("BREAKER_MINIMUM_CALLS", 10),
			FailureRate:      e.float("BREAKER_FAILURE_RATE", 0.5),
			Cooldown:         e.duration("BREAKER_COOLDOWN", 30*time.Second),
			SuccessThreshold: e.integer("BREAKER_SUCCESS_THRESHOLD", 3),
		},
		Cache: Cache{
			Backend:    strings.ToLower(e.str("CACHE_BACKEND", "memory")),
			TTL:        e.duration("CACHE_TTL", time.Hour),
			MaxEntries: e.integer("CACHE_MAX_ENTRIES", 10000),
			KeyPrefix:  e.str("CACHE_KEY_PREFIX", "idlookup:result:"),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: Postgres{
			DSN:            e.str("DATABASE_URL", ""),
			MaxConns:       int32(e.integer("DATABASE_MAX_CONNS", 10)),
			MigrateOnStart: e.boolean("DATABASE_MIGRATE", true),
		},
		Kafka: Kafka{
			Brokers:     e.list("KAFKA_BROKERS"),
			AuditTopic:  e.str("KAFKA_AUDIT_TOPIC", "idlookup.audit"),
			ClientID:    e.str("KAFKA_CLIENT_ID", "idlookup"),
			AuditBuffer: e.integer("AUDIT_BUFFER", 1000),
		},
		Query: Query{
			UnitCost:          int64(e.integer("QUERY_UNIT_COST", 1)),
			BillCircuitOpen:   e.boolean("QUERY_BILL_CIRCUIT_OPEN", true),
			CompletionTimeout: e.duration("QUERY_COMPLETION_TIMEOUT", 2*time.Minute),
			AsyncWorkers:      e.integer("QUERY_ASYNC_WORKERS", 5),
			AsyncQueue:        e.integer("QUERY_ASYNC_QUEUE", 100),
			StaleAfter:        e.duration("QUERY_STALE_AFTER", 15*time.Minute),
			SweepInterval:     e.duration("QUERY_SWEEP_INTERVAL", 5*time.Minute),
			Timezone:          e.str("QUERY_TIMEZONE", "UTC"),
		},
		RateLimit: RateLimit{
			Enabled: e.boolean("RATELIMIT_ENABLED", true),
			Limit:   e.integer("RATELIMIT_QUERIES", 10),
			Window:  e.duration("RATELIMIT_WINDOW", time.Minute),
		},
		Log: Log{
			Level:  e.str("LOG_LEVEL", "info"),
			Format: e.str("LOG_FORMAT", "json"),
		},
		Seed: Seed{
			CallerID: e.str("SEED_CALLER_ID", ""),
			Balance:  int64(e.integer("SEED_BALANCE", 100)),
		},
	}
	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	if cfg.Cache.Backend != "memory" && cfg.Cache.Backend != "redis" {
		return nil, fmt.Errorf("CACHE_BACKEND must be memory or redis, got %q", cfg.Cache.Backend)
	}
	if cfg.Breaker.FailureRate < 0 || cfg.Breaker.FailureRate >= 1 {
		return nil, fmt.Errorf("BREAKER_FAILURE_RATE must be in [0,1), got %v", cfg.Breaker.FailureRate)
	}
	if cfg.Cache.Backend == "redis" && cfg.Redis.URL == "" {
		return nil, errors.New("CACHE_BACKEND=redis requires REDIS_URL")
	}
	return cfg, nil
}

type envReader struct {
	errs []error
}

func (e *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *envReader) list(key string) []string {
	raw := e.str(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *envReader) integer(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (e *envReader) float(key string, def float64) float64 {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (e *envReader) boolean(key string, def bool) bool {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}
