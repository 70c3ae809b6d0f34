package cache

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/schemaforge/registry-core/pkg/async"
)

// HotKeysSource supplies the ids a Warmer should keep resident in L1, e.g.
// the most-queried subjects' latest active schema.
type HotKeysSource func(ctx context.Context) ([]string, error)

// Warmer runs WarmSchemas on a cron schedule via pkg/async, so a slow or
// panicking warm cycle never takes down the registry.
type Warmer struct {
	cache  *Cache
	source HotKeysSource
	cron   *cron.Cron
}

// NewWarmer builds a Warmer that refreshes c's L1 from source on schedule.
// schedule is a standard 5-field cron expression; "*/5 * * * *" matches
// warmInterval.
func NewWarmer(c *Cache, source HotKeysSource, schedule string) (*Warmer, error) {
	if schedule == "" {
		schedule = "*/5 * * * *"
	}
	w := &Warmer{cache: c, source: source, cron: cron.New()}

	_, err := w.cron.AddFunc(schedule, func() {
		async.SafeGoNoError(context.Background(), warmInterval, "cache warm cycle", w.runOnce)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule cache warmer: %w", err)
	}
	return w, nil
}

// Start begins the cron schedule. Stop must be called to release it.
func (w *Warmer) Start() {
	w.cron.Start()
}

// Stop halts the schedule and waits for a running cron job to return. That
// job only starts the warm cycle through async.SafeGoNoError, so a warm
// cycle still in progress is not waited for.
func (w *Warmer) Stop() {
	<-w.cron.Stop().Done()
}

func (w *Warmer) runOnce(ctx context.Context) {
	ids, err := w.source(ctx)
	if err != nil {
		log.Printf("[cache.Warmer] failed to list hot keys: %v", err)
		return
	}
	if err := w.cache.WarmSchemas(ctx, ids); err != nil {
		log.Printf("[cache.Warmer] warm cycle error: %v", err)
	}
}
