package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/splitledger/splitledger/internal/archive"
	s3blob "github.com/splitledger/splitledger/internal/blob/s3"
	"github.com/splitledger/splitledger/internal/cache/redis"
	"github.com/splitledger/splitledger/internal/config"
	"github.com/splitledger/splitledger/internal/domain"
	"github.com/splitledger/splitledger/internal/events"
	"github.com/splitledger/splitledger/internal/ledger"
	"github.com/splitledger/splitledger/internal/metrics"
	"github.com/splitledger/splitledger/internal/server/middleware"
	"github.com/splitledger/splitledger/internal/store/memory"
	"github.com/splitledger/splitledger/internal/store/postgres"
	"github.com/splitledger/splitledger/internal/transfer/evm"
	"github.com/splitledger/splitledger/internal/transfer/noop"
)

// Dependencies bundles everything the running service needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store    domain.Store
	EventLog domain.EventLog
	Ledger   *ledger.Ledger
	Transfer domain.ValueTransfer
	Metrics  *metrics.Metrics

	// Redis-backed facilities; nil when redis is disabled.
	Bus         *redis.EventBus
	RateLimiter middleware.RateLimiter
	Locks       *redis.LockManager

	// Exporter is non-nil when event archival is enabled.
	Exporter *archive.Exporter
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
	}

	// --- Storage ---
	switch strings.ToLower(cfg.Storage.Mode) {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Store = postgres.NewStore(pool)
		deps.EventLog = postgres.NewEventStore(pool)

	default: // memory
		deps.Store = memory.New()
		deps.EventLog = memory.NewEventLog()
	}

	// --- Redis (event fan-out, rate limiting, writer lock) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Bus = redis.NewEventBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
	}

	// --- Value transfer ---
	switch strings.ToLower(cfg.Transfer.Mode) {
	case "evm":
		transferor, err := evm.New(ctx, evm.Config{
			RPCURL:         cfg.Transfer.EVM.RPCURL,
			PrivateKey:     cfg.Transfer.EVM.PrivateKey,
			ChainID:        cfg.Transfer.EVM.ChainID,
			ConfirmTimeout: cfg.Transfer.EVM.ConfirmTimeout.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: evm transferor: %w", err)
		}
		deps.Transfer = transferor
	default: // noop
		deps.Transfer = noop.New(logger)
	}

	// --- Event sink + ledger ---
	var publisher events.Publisher
	if deps.Bus != nil {
		publisher = deps.Bus
	}
	sink := events.NewSink(deps.EventLog, publisher, deps.Metrics, logger)
	deps.Ledger = ledger.New(deps.Store, deps.Transfer, sink, logger).WithMetrics(deps.Metrics)

	// --- Event archival ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Exporter = archive.NewExporter(
			deps.EventLog,
			s3blob.NewWriter(s3Client),
			cfg.Archive.Prefix,
			logger,
		)
	}

	return deps, cleanup, nil
}
