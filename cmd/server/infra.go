package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	accountmodels "idlookup/internal/account/models"
	accountstore "idlookup/internal/account/store"
	"idlookup/internal/lookup/cache"
	"idlookup/internal/lookup/gateway"
	lookupmetrics "idlookup/internal/lookup/metrics"
	"idlookup/internal/platform/config"
	"idlookup/internal/platform/postgres"
	redisclient "idlookup/internal/platform/redis"
	"idlookup/internal/query/ports"
	querystore "idlookup/internal/query/store"
	rlmetrics "idlookup/internal/ratelimit/metrics"
	rlmw "idlookup/internal/ratelimit/middleware"
	"idlookup/internal/ratelimit/store/bucket"
	audit "idlookup/pkg/platform/audit"
	"idlookup/pkg/platform/audit/publisher"
	"idlookup/pkg/platform/audit/publishers/kafka"
	auditmemory "idlookup/pkg/platform/audit/store/memory"
	auditpostgres "idlookup/pkg/platform/audit/store/postgres"
	"idlookup/pkg/platform/circuit"
	"idlookup/pkg/platform/sentinel"
)

const (
	auditPartitions  = 3
	auditReplication = 1
)

// accountStore is the ledger plus the directory plus provisioning.
type accountStore interface {
	ports.TokenLedger
	ports.UserDirectory
	CreateCaller(ctx context.Context, caller *accountmodels.Caller) error
	TopUp(ctx context.Context, callerID string, amount int64) error
}

// infra holds the stores and clients chosen from configuration. Every
// external system is optional; without it the in-memory variant is used.
type infra struct {
	accounts accountStore
	queries  ports.ResultStore
	auditor  *publisher.Publisher

	redis   *redisclient.Client
	closers []func()
}

func buildInfra(ctx context.Context, cfg *config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}
	var auditSink audit.Sink = auditmemory.NewInMemoryStore()

	if cfg.Postgres.DSN != "" {
		if cfg.Postgres.MigrateOnStart {
			if err := postgres.Migrate(cfg.Postgres.DSN, log); err != nil {
				return nil, err
			}
		}
		pool, err := postgres.Connect(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, log)
		if err != nil {
			return nil, err
		}
		in.closers = append(in.closers, pool.Close)

		db, err := postgres.OpenSQL(ctx, cfg.Postgres.DSN, int(cfg.Postgres.MaxConns))
		if err != nil {
			in.Close()
			return nil, err
		}
		in.closers = append(in.closers, func() { _ = db.Close() })

		in.queries = querystore.NewPostgres(pool)
		in.accounts = accountstore.NewPostgres(db)
		auditSink = auditpostgres.New(db)
		log.Info("using postgres stores")
	} else {
		in.queries = querystore.NewInMemoryStore()
		in.accounts = accountstore.NewInMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	if cfg.Redis.URL != "" {
		client, err := redisclient.New(cfg.Redis)
		if err != nil {
			in.Close()
			return nil, err
		}
		in.redis = client
		in.closers = append(in.closers, func() { _ = client.Close() })
	}

	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := kafka.NewSink(kafka.Config{
			Brokers:           cfg.Kafka.Brokers,
			Topic:             cfg.Kafka.AuditTopic,
			ClientID:          cfg.Kafka.ClientID,
			Partitions:        auditPartitions,
			ReplicationFactor: auditReplication,
		})
		if err != nil {
			in.Close()
			return nil, err
		}
		in.closers = append(in.closers, sink.Close)
		topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = kafka.EnsureTopic(topicCtx, sink.Client(), cfg.Kafka.AuditTopic, auditPartitions, auditReplication)
		cancel()
		if err != nil {
			in.Close()
			return nil, err
		}
		auditSink = sink
		log.Info("audit events go to kafka", "topic", cfg.Kafka.AuditTopic)
	}

	// Registered after the sink's closer so Close drains the queue first.
	in.auditor = publisher.NewPublisher(auditSink,
		publisher.WithAsyncBuffer(cfg.Kafka.AuditBuffer),
		publisher.WithLogger(log),
	)
	in.closers = append(in.closers, in.auditor.Close)

	if err := seedCaller(ctx, in.accounts, cfg.Seed, log); err != nil {
		in.Close()
		return nil, err
	}
	return in, nil
}

// Close releases clients in reverse order of acquisition.
func (in *infra) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
	in.closers = nil
}

func (in *infra) pingers() map[string]pinger {
	deps := map[string]pinger{}
	if in.redis != nil {
		deps["redis"] = in.redis.Health
	}
	return deps
}

func buildCache(cfg *config.Config, in *infra, m *lookupmetrics.Metrics) gateway.ResultCache {
	if cfg.Cache.Backend == "redis" && in.redis != nil {
		return cache.NewRedisCache(in.redis.Client, cfg.Cache.TTL, cfg.Cache.KeyPrefix, m)
	}
	return cache.NewMemoryCache(cfg.Cache.MaxEntries, cfg.Cache.TTL, m)
}

// buildRateLimiter prefers Redis so limits hold across replicas, falling
// back to a process-local window while Redis is failing.
func buildRateLimiter(cfg *config.Config, in *infra, log *slog.Logger) *rlmw.Middleware {
	opts := []rlmw.Option{
		rlmw.WithLimit(cfg.RateLimit.Limit, cfg.RateLimit.Window),
		rlmw.WithMetrics(rlmetrics.New()),
		rlmw.WithDisabled(!cfg.RateLimit.Enabled),
	}
	local := bucket.New()
	if in.redis == nil {
		return rlmw.New(local, log, opts...)
	}
	breaker := circuit.New("ratelimit-redis",
		circuit.WithWindowSize(10),
		circuit.WithMinimumCalls(5),
		circuit.WithCooldown(10*time.Second),
	)
	opts = append(opts, rlmw.WithFallback(local, breaker))
	return rlmw.New(bucket.NewRedis(in.redis.Client, ""), log, opts...)
}

func seedCaller(ctx context.Context, accounts accountStore, seed config.Seed, log *slog.Logger) error {
	if seed.CallerID == "" {
		return nil
	}
	err := accounts.CreateCaller(ctx, &accountmodels.Caller{
		ID:          seed.CallerID,
		DisplayName: seed.CallerID,
		Active:      true,
		CreatedAt:   time.Now(),
	})
	if errors.Is(err, sentinel.ErrConflict) {
		log.Info("seed caller already exists", "caller_id", seed.CallerID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed caller: %w", err)
	}
	if seed.Balance > 0 {
		if err := accounts.TopUp(ctx, seed.CallerID, seed.Balance); err != nil {
			return fmt.Errorf("seed balance: %w", err)
		}
	}
	log.Info("seeded caller", "caller_id", seed.CallerID, "balance", seed.Balance)
	return nil
}
