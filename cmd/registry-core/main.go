// Command registry-core wires the library packages together and walks a
// subject through register v1 -> activate v1 -> register v2 -> activate v2
// (which demotes v1) -> read the active version, logging each step. It is a runnable example of composing the registry, not an HTTP
// server: this module has no public API surface of its own (see SPEC_FULL.md
// Non-goals).
package main

import (
	"context"
	"log"
	"os"

	"github.com/schemaforge/registry-core/pkg/audit"
	"github.com/schemaforge/registry-core/pkg/cache"
	"github.com/schemaforge/registry-core/pkg/config"
	"github.com/schemaforge/registry-core/pkg/events"
	"github.com/schemaforge/registry-core/pkg/observability"
	"github.com/schemaforge/registry-core/pkg/registry"
	"github.com/schemaforge/registry-core/pkg/schema"
	"github.com/schemaforge/registry-core/pkg/storage"
	"github.com/schemaforge/registry-core/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting registry-core example")

	store, err := openStorage(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to open storage")
		log.Fatal(err)
	}

	l1, err := cache.New(cfg.Storage.L1CacheSize, nil, store)
	if err != nil {
		logger.WithError(err).Error("failed to build cache")
		log.Fatal(err)
	}

	bus := events.NewBus()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	go func() {
		for evt := range sub.Events() {
			logger.WithField("type", string(evt.Type)).WithField("schema_id", evt.SchemaID).Info("event published")
		}
	}()

	svc := registry.NewService(store,
		registry.WithCache(l1),
		registry.WithEventBus(bus),
	)

	ctx := audit.WithStore(context.Background(), audit.NewLog())
	subject := schema.Subject{Namespace: "orders", Name: "created-event"}

	v1, err := svc.Register(ctx, registry.RegisterRequest{
		Subject: subject,
		Format:  schema.FormatJSONSchema,
		Content: []byte(`{"type":"object","properties":{"order_id":{"type":"string"}},"required":["order_id"]}`),
		Actor:   "example",
	})
	if err != nil {
		logger.WithError(err).Error("register v1 failed")
		log.Fatal(err)
	}
	logger.WithField("id", v1.ID).Info("registered v1")

	v1, err = svc.Activate(ctx, v1.ID, "example")
	if err != nil {
		logger.WithError(err).Error("activate v1 failed")
		log.Fatal(err)
	}
	logger.WithField("id", v1.ID).Info("activated v1")

	v2, err := svc.Register(ctx, registry.RegisterRequest{
		Subject: subject,
		Format:  schema.FormatJSONSchema,
		Content: []byte(`{"type":"object","properties":{"order_id":{"type":"string"},"customer_email":{"type":"string","default":""}},"required":["order_id"]}`),
		Actor:   "example",
	})
	if err != nil {
		logger.WithError(err).Error("register v2 failed")
		log.Fatal(err)
	}
	v2, err = svc.Activate(ctx, v2.ID, "example")
	if err != nil {
		logger.WithError(err).Error("activate v2 failed")
		log.Fatal(err)
	}
	logger.WithField("id", v2.ID).Info("activated v2, v1 demoted to deprecated")

	active, err := svc.GetBySubject(ctx, subject.Key())
	if err != nil {
		logger.WithError(err).Error("get by subject failed")
		log.Fatal(err)
	}
	logger.WithField("id", active.ID).WithField("version", active.Version.String()).Info("current active version")
}

// openStorage selects the storage backend named by cfg.Type. "postgres" is
// the production backend; anything else falls back to a filesystem store
// rooted at REGISTRY_FILESYSTEM_ROOT (or the working directory's
// ./registry-data), suitable for this example and local development.
func openStorage(cfg storage.Config) (storage.Storage, error) {
	if cfg.Type == "postgres" && cfg.PostgresURL != "" {
		return postgres.New(cfg)
	}
	root := os.Getenv("REGISTRY_FILESYSTEM_ROOT")
	if root == "" {
		root = "./registry-data"
	}
	return storage.NewFileSystemStorage(root)
}
