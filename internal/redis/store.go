// Package redis stores dedup records as Redis hashes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DeafMist/boletin-radar/internal/dedupe"
	"github.com/DeafMist/boletin-radar/internal/models"
	"github.com/DeafMist/boletin-radar/internal/processing"
)

// Config holds Redis connection configuration.
type Config struct {
	Address  string
	Password string
	DB       int
}

// ErrEmptyAddress is returned when Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// connectionTimeout is the timeout for verifying Redis connection.
const connectionTimeout = 5 * time.Second

const keyPrefix = "boletin:record:"

const (
	fieldKey       = "record_key"
	fieldTimestamp = "timestamp"
	fieldMessage   = "message"
)

// NewClient creates a new Redis client and verifies the connection.
func NewClient(cfg Config) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// Store is a dedupe.Store over Redis. The stored timestamp string doubles
// as the record revision; writes run inside WATCH transactions.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ dedupe.Store = (*Store)(nil)

// NewStore wraps rdb. When ttl is positive every write also sets the key's
// expiry, so Redis prunes old records by itself.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func redisKey(key string) string {
	return keyPrefix + processing.BuildRecordID(key)
}

// Get fetches the record stored under key.
func (s *Store) Get(ctx context.Context, key string) (models.Record, bool, error) {
	vals, err := s.rdb.HGetAll(ctx, redisKey(key)).Result()
	if err != nil {
		return models.Record{}, false, fmt.Errorf("get record: %w", err)
	}
	if len(vals) == 0 {
		return models.Record{}, false, nil
	}

	raw := vals[fieldTimestamp]
	ts, err := models.ParseTimestamp(raw)
	if err != nil {
		return models.Record{}, false, fmt.Errorf("parse record timestamp: %w", err)
	}

	return models.Record{
		Key:       vals[fieldKey],
		Timestamp: ts,
		Message:   vals[fieldMessage],
		Revision:  raw,
	}, true, nil
}

// Create writes rec only if its key is absent.
func (s *Store) Create(ctx context.Context, rec models.Record) error {
	k := redisKey(rec.Key)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, k).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return dedupe.ErrConflict
		}
		return s.write(ctx, tx, k, rec)
	}, k)
	return wrapTxErr("create record", err)
}

// Replace overwrites prev with next if the stored timestamp still matches
// prev's revision.
func (s *Store) Replace(ctx context.Context, prev, next models.Record) error {
	k := redisKey(prev.Key)
	next.Key = prev.Key
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, k, fieldTimestamp).Result()
		if errors.Is(err, redis.Nil) {
			return dedupe.ErrConflict
		}
		if err != nil {
			return err
		}
		if cur != prev.Revision {
			return dedupe.ErrConflict
		}
		return s.write(ctx, tx, k, next)
	}, k)
	return wrapTxErr("replace record", err)
}

func (s *Store) write(ctx context.Context, tx *redis.Tx, k string, rec models.Record) error {
	_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k,
			fieldKey, rec.Key,
			fieldTimestamp, models.FormatTimestamp(rec.Timestamp),
			fieldMessage, rec.Message,
		)
		if s.ttl > 0 {
			p.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	return err
}

func wrapTxErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dedupe.ErrConflict), errors.Is(err, redis.TxFailedErr):
		return dedupe.ErrConflict
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}
