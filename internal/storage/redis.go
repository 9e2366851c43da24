package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amm-analytics/internal/config"
	"github.com/amm-analytics/internal/ledger"
	"github.com/amm-analytics/internal/models"
)

// DefaultRedisPrefix namespaces ledger keys
const DefaultRedisPrefix = "amm"

// NewRedisClient creates a Redis client and checks the connection
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// RedisStore keeps ledger entities as JSON strings under <prefix>:<kind>:<id>.
// Apply runs inside MULTI/EXEC.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed ledger store
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(kind models.Kind, id string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, kind, id)
}

// kindSet holds the ids of every stored entity of a kind
func (s *RedisStore) kindSet(kind models.Kind) string {
	return fmt.Sprintf("%s:%s", s.prefix, kind)
}

// Get returns the stored document, or nil when the entity does not exist
func (s *RedisStore) Get(ctx context.Context, kind models.Kind, id string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", kind, id, err)
	}
	return data, nil
}

// Apply writes all mutations in one MULTI/EXEC block
func (s *RedisStore) Apply(ctx context.Context, mutations []ledger.Mutation) error {
	if len(mutations) == 0 {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range mutations {
			if m.IsDelete() {
				pipe.Del(ctx, s.key(m.Kind, m.ID))
				pipe.SRem(ctx, s.kindSet(m.Kind), m.ID)
				continue
			}
			pipe.Set(ctx, s.key(m.Kind, m.ID), m.Data, 0)
			pipe.SAdd(ctx, s.kindSet(m.Kind), m.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply %d mutations: %w", len(mutations), err)
	}
	return nil
}

// Count returns the number of stored entities of a kind
func (s *RedisStore) Count(ctx context.Context, kind models.Kind) (int64, error) {
	count, err := s.client.SCard(ctx, s.kindSet(kind)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", kind, err)
	}
	return count, nil
}
