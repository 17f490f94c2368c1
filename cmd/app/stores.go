package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"async-ask-bot/internal/config"
	"async-ask-bot/internal/domain/ports/repository"
	pg "async-ask-bot/internal/infra/db/postgres"
	"async-ask-bot/internal/infra/db/sqlite"
	"async-ask-bot/internal/infra/memory"
	red "async-ask-bot/internal/infra/redis"
	"async-ask-bot/internal/infra/security"
)

// stores bundles the persistence the pipeline needs, whichever drivers back it.
type stores struct {
	jobs    repository.JobRepository
	steps   repository.StepLog
	locker  repository.Locker
	limiter repository.RateLimiter

	closers []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, log *zerolog.Logger) (*stores, error) {
	st := &stores{}
	var sqliteDB *sql.DB

	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := pg.Connect(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, pool.Close)
		if err := pg.Migrate(ctx, pool); err != nil {
			st.Close()
			return nil, err
		}
		go pg.ReportPoolStats(ctx, pool, 15*time.Second)

		enc, err := security.Optional(cfg.Storage.EncryptionKey)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("storage.encryption_key: %w", err)
		}
		var cipher pg.FieldCipher
		if enc != nil {
			cipher = enc
			log.Info().Msg("job payloads encrypted at rest")
		}
		st.jobs = pg.NewJobRepo(pool, pg.NewTxManager(pool), cipher)
		if cfg.StepLog.Driver == "postgres" {
			st.steps = pg.NewStepLog(pool)
		}
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = db.Close() })
		sqliteDB = db
		st.jobs = sqlite.NewJobRepo(db)
	case "memory":
		log.Warn().Msg("memory storage: jobs are lost on restart")
		st.jobs = memory.NewJobRepo()
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}

	var rc *red.Client
	if cfg.Redis.URL != "" {
		c, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		st.closers = append(st.closers, func() { _ = c.Close() })
		rc = c
		st.locker = red.NewLocker(rc)
		st.limiter = red.NewRateLimiter(rc)
	} else {
		log.Warn().Msg("redis not configured: job locks and rate limits are process-local")
		st.locker = memory.NewLocker()
		st.limiter = memory.NewRateLimiter()
	}

	switch cfg.StepLog.Driver {
	case "redis":
		st.steps = red.NewStepLog(rc, cfg.StepLog.TTL)
	case "sqlite":
		st.steps = sqlite.NewStepLog(sqliteDB)
	case "memory":
		st.steps = memory.NewStepLog()
	}
	if st.steps == nil {
		st.Close()
		return nil, fmt.Errorf("unsupported step log driver %q", cfg.StepLog.Driver)
	}
	return st, nil
}
