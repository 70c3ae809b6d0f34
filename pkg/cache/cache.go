// Package cache implements the two-tier read cache in front of the store of
// record: an in-process LRU (L1) backed by a shared Redis tier (L2), with
// singleflight-deduplicated fills so a cold key under concurrent load issues
// exactly one L2/store round trip.
package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/schemaforge/registry-core/pkg/schema"
)

// L2 is the shared cache tier behind L1, implemented by postgres.RedisClient.
type L2 interface {
	GetSchema(ctx context.Context, id string) (*schema.Schema, error)
	SetSchema(ctx context.Context, s *schema.Schema) error
	GetSubject(ctx context.Context, key string) (*schema.Subject, error)
	SetSubject(ctx context.Context, s *schema.Subject) error
}

// Loader fetches from the store of record on a total cache miss.
type Loader interface {
	GetSchema(ctx context.Context, id string) (*schema.Schema, error)
	GetSubject(ctx context.Context, key string) (*schema.Subject, error)
}

// Stats tracks per-tier hit/miss counters for observability.
type Stats struct {
	L1Hits   int64
	L2Hits   int64
	Misses   int64
	Fills    int64
	FillDups int64 // calls deduplicated onto an in-flight fill
}

// Cache composes an L1 LRU, an optional L2, and a loader of last resort.
type Cache struct {
	schemas  *lru.Cache[string, *schema.Schema]
	subjects *lru.Cache[string, *schema.Subject]
	l2       L2
	loader   Loader
	group    singleflight.Group
	stats    Stats
}

// New builds a Cache with the given L1 capacity (number of entries; the
// schema LRU and the subject LRU each get this capacity). l2 may be nil to
// run L1-only.
func New(l1Size int, l2 L2, loader Loader) (*Cache, error) {
	if l1Size <= 0 {
		l1Size = 1000
	}
	schemas, err := lru.New[string, *schema.Schema](l1Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema LRU: %w", err)
	}
	subjects, err := lru.New[string, *schema.Subject](l1Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create subject LRU: %w", err)
	}
	return &Cache{schemas: schemas, subjects: subjects, l2: l2, loader: loader}, nil
}

// GetSchema resolves id through L1, then L2, then the loader, populating
// every tier it skipped on the way back up. Concurrent misses on the same id
// collapse onto a single loader call via singleflight.
func (c *Cache) GetSchema(ctx context.Context, id string) (*schema.Schema, error) {
	if sc, ok := c.schemas.Get(id); ok {
		c.stats.L1Hits++
		return sc, nil
	}

	v, err, shared := c.group.Do("schema:"+id, func() (any, error) {
		return c.fillSchema(ctx, id)
	})
	if shared {
		c.stats.FillDups++
	}
	if err != nil {
		return nil, err
	}
	return v.(*schema.Schema), nil
}

func (c *Cache) fillSchema(ctx context.Context, id string) (*schema.Schema, error) {
	if c.l2 != nil {
		if sc, err := c.l2.GetSchema(ctx, id); err == nil && sc != nil {
			c.stats.L2Hits++
			c.schemas.Add(id, sc)
			return sc, nil
		}
	}

	c.stats.Misses++
	c.stats.Fills++
	sc, err := c.loader.GetSchema(ctx, id)
	if err != nil {
		return nil, err
	}
	c.schemas.Add(id, sc)
	if c.l2 != nil {
		_ = c.l2.SetSchema(ctx, sc)
	}
	return sc, nil
}

// GetSubject is the subject-keyed analogue of GetSchema.
func (c *Cache) GetSubject(ctx context.Context, key string) (*schema.Subject, error) {
	if s, ok := c.subjects.Get(key); ok {
		c.stats.L1Hits++
		return s, nil
	}

	v, err, shared := c.group.Do("subject:"+key, func() (any, error) {
		return c.fillSubject(ctx, key)
	})
	if shared {
		c.stats.FillDups++
	}
	if err != nil {
		return nil, err
	}
	return v.(*schema.Subject), nil
}

func (c *Cache) fillSubject(ctx context.Context, key string) (*schema.Subject, error) {
	if c.l2 != nil {
		if s, err := c.l2.GetSubject(ctx, key); err == nil && s != nil {
			c.stats.L2Hits++
			c.subjects.Add(key, s)
			return s, nil
		}
	}

	c.stats.Misses++
	c.stats.Fills++
	s, err := c.loader.GetSubject(ctx, key)
	if err != nil {
		return nil, err
	}
	c.subjects.Add(key, s)
	if c.l2 != nil {
		_ = c.l2.SetSubject(ctx, s)
	}
	return s, nil
}

// InvalidateSchema evicts id from L1. L2 invalidation is the store's
// responsibility (it owns the write path and already calls it there).
func (c *Cache) InvalidateSchema(id string) {
	c.schemas.Remove(id)
}

// InvalidateSubject evicts key from L1.
func (c *Cache) InvalidateSubject(key string) {
	c.subjects.Remove(key)
}

// Stats returns a snapshot of hit/miss counters.
func (c *Cache) Stats() Stats {
	return c.stats
}

// WarmSchemas preloads a set of hot schema ids into L1, skipping entries
// already present. Intended to run on a schedule (see Warmer).
func (c *Cache) WarmSchemas(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, ok := c.schemas.Peek(id); ok {
			continue
		}
		if _, err := c.GetSchema(ctx, id); err != nil {
			return fmt.Errorf("failed to warm schema %s: %w", id, err)
		}
	}
	return nil
}

// warmInterval is the default period between warmer runs when none is given.
const warmInterval = 5 * time.Minute
