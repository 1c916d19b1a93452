// Package storage opens the record store selected by configuration.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DeafMist/boletin-radar/internal/config"
	"github.com/DeafMist/boletin-radar/internal/dedupe"
	"github.com/DeafMist/boletin-radar/internal/elasticsearch"
	"github.com/DeafMist/boletin-radar/internal/redis"
	"github.com/DeafMist/boletin-radar/internal/sqlite"
)

// memoryCapacity bounds the in-memory backend.
const memoryCapacity = 10000

// Pruner deletes records older than a max age.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// Backend is an opened record store.
type Backend struct {
	Name  string
	Store dedupe.Store
	// Pruner is nil when the backend expires records on its own or keeps
	// nothing across runs.
	Pruner Pruner
	close  func() error
}

// Close releases the backend's connections.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open connects to the configured backend and prepares its schema.
func Open(ctx context.Context, cfg config.Store, log *slog.Logger) (*Backend, error) {
	switch cfg.Backend {
	case config.StoreElasticsearch:
		es, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			return nil, err
		}
		if err := es.Ping(ctx); err != nil {
			return nil, err
		}
		if err := es.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		return &Backend{Name: cfg.Backend, Store: es, Pruner: es}, nil

	case config.StoreRedis:
		rdb, err := redis.NewClient(redis.Config{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		s := redis.NewStore(rdb, cfg.RedisRecordTTL)
		return &Backend{Name: cfg.Backend, Store: s, close: s.Close}, nil

	case config.StoreSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Backend{Name: cfg.Backend, Store: s, Pruner: s, close: s.Close}, nil

	case config.StoreMemory:
		log.Warn("using in-memory record store; dedup state is lost on exit")
		return &Backend{Name: cfg.Backend, Store: dedupe.NewMemoryStore(memoryCapacity)}, nil

	default:
		return nil, fmt.Errorf("%w: unknown record store %q", config.ErrConfiguration, cfg.Backend)
	}
}
