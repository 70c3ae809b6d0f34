// Package events implements the registry's event spine.
//
// # Overview
//
// Every schema and subject mutation worth telling someone about is
// published as a SchemaEvent. The Bus fans events out to in-process
// subscribers (e.g. the event logger in cmd/registry-core); the Dispatcher
// fans the same events out to registered external webhook Endpoints.
//
// # Bus
//
// Bus.Publish never blocks on a slow subscriber: a subscriber whose buffer
// fills has events dropped for it and its Lagged counter incremented,
// rather than stalling the publisher or every other subscriber.
//
// # Webhook Delivery
//
// Dispatcher delivers at-least-once with bounded exponential backoff
// (github.com/cenkalti/backoff/v4). Each endpoint has its own CircuitBreaker:
// after enough consecutive failures it stops sending and, once its reset
// timeout has passed, lets trial requests through to decide whether to
// close again.
//
// # Usage
//
//	bus := events.NewBus()
//	sub := bus.Subscribe()
//	defer bus.Unsubscribe(sub)
//
//	dispatcher := events.NewDispatcher(events.DefaultDispatchConfig())
//	dispatcher.RegisterEndpoint(&events.Endpoint{
//		URL:   "https://example.com/hooks",
//		Types: []events.Type{events.TypeSchemaRegistered},
//	})
//
//	event := &events.SchemaEvent{Type: events.TypeSchemaRegistered, Subject: "orders.created"}
//	bus.Publish(event)
//	dispatcher.Dispatch(ctx, event)
//
// # Related Packages
//
//   - pkg/audit: persists the same mutations to the hash-chained trail
//   - pkg/registry: publishes a SchemaEvent on the Bus for each mutation
package events
