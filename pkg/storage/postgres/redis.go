package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/schemaforge/registry-core/pkg/schema"
	"github.com/schemaforge/registry-core/pkg/storage"
)

// RedisClient is the L2 cache-aside layer in front of the store of record.
type RedisClient struct {
	client *redis.Client
	config storage.Config
}

// NewRedisClient creates a new Redis client.
func NewRedisClient(config storage.Config) (*RedisClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB >= 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client, config: config}, nil
}

func (c *RedisClient) GetSubject(ctx context.Context, key string) (*schema.Subject, error) {
	data, err := c.client.Get(ctx, "subject:"+key).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var subject schema.Subject
	if err := json.Unmarshal([]byte(data), &subject); err != nil {
		c.client.Del(ctx, "subject:"+key)
		return nil, fmt.Errorf("failed to unmarshal subject: %w", err)
	}
	return &subject, nil
}

func (c *RedisClient) SetSubject(ctx context.Context, subject *schema.Subject) error {
	data, err := json.Marshal(subject)
	if err != nil {
		return fmt.Errorf("failed to marshal subject: %w", err)
	}
	return c.client.Set(ctx, "subject:"+subject.Key(), data, c.config.CacheTTL["subject"]).Err()
}

func (c *RedisClient) GetSchema(ctx context.Context, id string) (*schema.Schema, error) {
	data, err := c.client.Get(ctx, "schema:"+id).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var sc schema.Schema
	if err := json.Unmarshal([]byte(data), &sc); err != nil {
		c.client.Del(ctx, "schema:"+id)
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	return &sc, nil
}

func (c *RedisClient) SetSchema(ctx context.Context, sc *schema.Schema) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	return c.client.Set(ctx, "schema:"+sc.ID, data, c.config.CacheTTL["schema"]).Err()
}

// InvalidateSchema removes a cached schema row and its subject's version list.
func (c *RedisClient) InvalidateSchema(ctx context.Context, subjectKey, id string) error {
	return c.client.Del(ctx, "schema:"+id, fmt.Sprintf("version_list:%s", subjectKey)).Err()
}

func (c *RedisClient) InvalidateSubject(ctx context.Context, subjectKey string) error {
	return c.client.Del(ctx, "subject:"+subjectKey).Err()
}

// InvalidatePatterns removes keys matching glob patterns via SCAN, used for
// bulk invalidation (e.g. all version lists under a subject).
func (c *RedisClient) InvalidatePatterns(ctx context.Context, patterns ...string) error {
	for _, pattern := range patterns {
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("scan failed for pattern %s: %w", pattern, err)
		}
	}
	return nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisClient) GetClient() *redis.Client {
	return c.client
}

func (c *RedisClient) Close() error {
	return c.client.Close()
}

func (c *RedisClient) GetPoolStats() *redis.PoolStats {
	return c.client.PoolStats()
}

var _ storage.CacheInvalidator = (*RedisClient)(nil)
