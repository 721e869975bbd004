// Package app wires stores and optional infrastructure from config for the
// api and worker binaries.
package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pennywise/internal/audit"
	"pennywise/internal/recurring"
	"pennywise/internal/repository"
	"pennywise/internal/repository/sqlite"
	"pennywise/internal/service"
	"pennywise/pkg/circuitbreaker"
	"pennywise/pkg/config"
	"pennywise/pkg/db"
	"pennywise/pkg/mq"
	redisclient "pennywise/pkg/redis"
	"pennywise/pkg/util"
)

// Ledger is the transaction collaborator: writes and traceability reads.
type Ledger interface {
	recurring.LedgerWriter
	recurring.TransactionQuery
}

// Stores are the persistence collaborators for one database.
type Stores struct {
	Rules  recurring.RuleStore
	Ledger Ledger
	Audit  audit.Store
	Users  service.UserStore
	Ping   func(ctx context.Context) error
	Close  func()
}

// OpenStores connects to the configured driver.
func OpenStores(ctx context.Context, cfg config.DBConfig, log *zap.Logger) (*Stores, error) {
	switch cfg.Driver {
	case "sqlite":
		log.Info("Opening SQLite database", zap.String("path", cfg.Path))
		conn, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Rules:  sqlite.NewRuleStore(conn),
			Ledger: sqlite.NewTransactionStore(conn),
			Audit:  sqlite.NewAuditStore(conn),
			Users:  sqlite.NewUserStore(conn),
			Ping:   conn.PingContext,
			Close:  func() { _ = conn.Close() },
		}, nil

	case "postgres", "":
		pool, err := db.NewConnection(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		if err := repository.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &Stores{
			Rules:  repository.NewRuleRepository(pool),
			Ledger: repository.NewTransactionRepository(pool),
			Audit:  repository.NewAuditRepository(pool),
			Users:  repository.NewUserRepository(pool),
			Ping:   pool.Ping,
			Close:  pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
}

// NewAuditRecorder stores audit events and, when mq.url is set, publishes
// them. A broker that cannot be reached is logged and skipped.
func NewAuditRecorder(cfg config.MQConfig, store audit.Store, log *zap.Logger) (*audit.Recorder, func()) {
	if cfg.URL == "" {
		return audit.NewRecorder(store, nil, log), func() {}
	}
	publisher, err := mq.NewPublisher(cfg.URL)
	if err != nil {
		log.Warn("RabbitMQ unavailable, audit events will not be published", zap.Error(err))
		return audit.NewRecorder(store, nil, log), func() {}
	}
	log.Info("Publishing audit events", zap.String("exchange", mq.ExchangeName))
	return audit.NewRecorder(store, publisher, log), publisher.Close
}

// EngineOptions builds engine options from the scheduler config. Redis-backed
// claims and failure streaks are enabled only when redis.addr is set and
// reachable.
func EngineOptions(ctx context.Context, sched config.SchedulerConfig, redisCfg config.RedisConfig, log *zap.Logger) ([]recurring.EngineOption, func()) {
	opts := []recurring.EngineOption{
		recurring.WithWorkers(sched.Workers),
		recurring.WithConditionalAdvance(sched.ConditionalAdvance),
		recurring.WithCircuitBreaker(circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig())),
	}
	if redisCfg.Addr == "" {
		return opts, func() {}
	}

	rdb, err := redisclient.NewRedisClient(ctx, redisCfg)
	if err != nil {
		log.Warn("Redis unavailable, running without cycle claims", zap.Error(err))
		return opts, func() {}
	}
	opts = append(opts,
		recurring.WithClaimer(util.NewCycleClaimer(rdb, sched.ClaimTTL, log)),
		recurring.WithFailureCounter(util.NewFailureCounter(rdb, 7*24*time.Hour)),
	)
	return opts, func() { closeRedis(rdb, log) }
}

func closeRedis(rdb *goredis.Client, log *zap.Logger) {
	if err := rdb.Close(); err != nil {
		log.Warn("Failed to close redis client", zap.Error(err))
	}
}
