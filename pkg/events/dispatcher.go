package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Endpoint is a registered webhook destination.
type Endpoint struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Types       []Type    `json:"types"`
	Secret      string    `json:"secret,omitempty"`
	Active      bool      `json:"active"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (e *Endpoint) interestedIn(t Type) bool {
	for _, want := range e.Types {
		if want == t {
			return true
		}
	}
	return false
}

// DispatchConfig controls the Dispatcher's HTTP client and retry schedule.
type DispatchConfig struct {
	HTTPTimeout   time.Duration
	MaxRetries    uint64
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	CircuitConfig CircuitBreakerConfig
}

// DefaultDispatchConfig gives a 10s HTTP timeout, up to 5 retries on an
// exponential schedule starting at 500ms and capped at 30s between
// attempts.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		HTTPTimeout:   10 * time.Second,
		MaxRetries:    5,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		CircuitConfig: DefaultCircuitBreakerConfig(),
	}
}

// Dispatcher delivers SchemaEvents to registered webhook Endpoints over
// HTTP, at-least-once, with bounded exponential backoff retry and a
// per-endpoint circuit breaker that stops hammering an endpoint that is
// persistently failing.
type Dispatcher struct {
	config DispatchConfig
	client *http.Client

	mu         sync.RWMutex
	endpoints  map[string]*Endpoint
	breakers   map[string]*CircuitBreaker
	deliveries *deliveryLogStore
}

// NewDispatcher creates a Dispatcher with no registered endpoints.
func NewDispatcher(config DispatchConfig) *Dispatcher {
	return &Dispatcher{
		config:     config,
		client:     &http.Client{Timeout: config.HTTPTimeout},
		endpoints:  make(map[string]*Endpoint),
		breakers:   make(map[string]*CircuitBreaker),
		deliveries: newDeliveryLogStore(1000),
	}
}

// DeliveryLogs returns the most recent delivery outcomes for an endpoint,
// most recent first.
func (d *Dispatcher) DeliveryLogs(endpointID string, limit int) []*DeliveryRecord {
	return d.deliveries.byEndpoint(endpointID, limit)
}

// DeliveryStats summarizes delivery outcomes for an endpoint.
func (d *Dispatcher) DeliveryStats(endpointID string) DeliveryStats {
	return d.deliveries.stats(endpointID)
}

// RegisterEndpoint adds a new webhook endpoint and returns its assigned ID.
func (d *Dispatcher) RegisterEndpoint(ep *Endpoint) (string, error) {
	if ep.URL == "" {
		return "", fmt.Errorf("endpoint URL is required")
	}
	if len(ep.Types) == 0 {
		return "", fmt.Errorf("at least one event type is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ep.ID = uuid.NewString()
	ep.Active = true
	ep.CreatedAt = time.Now()
	ep.UpdatedAt = time.Now()
	d.endpoints[ep.ID] = ep
	d.breakers[ep.ID] = NewCircuitBreaker(d.config.CircuitConfig)
	return ep.ID, nil
}

// UnregisterEndpoint removes a webhook endpoint.
func (d *Dispatcher) UnregisterEndpoint(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.endpoints[id]; !ok {
		return fmt.Errorf("endpoint not found: %s", id)
	}
	delete(d.endpoints, id)
	delete(d.breakers, id)
	return nil
}

// SetEndpointActive toggles delivery for a webhook endpoint without
// removing its registration.
func (d *Dispatcher) SetEndpointActive(id string, active bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ep, ok := d.endpoints[id]
	if !ok {
		return fmt.Errorf("endpoint not found: %s", id)
	}
	ep.Active = active
	ep.UpdatedAt = time.Now()
	return nil
}

// ListEndpoints returns all registered webhook endpoints.
func (d *Dispatcher) ListEndpoints() []*Endpoint {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Endpoint, 0, len(d.endpoints))
	for _, ep := range d.endpoints {
		out = append(out, ep)
	}
	return out
}

// Dispatch delivers event to every active endpoint subscribed to its Type.
// Each delivery runs in its own goroutine so a slow or unreachable endpoint
// never blocks delivery to the others; DeliveryResult lets a caller that
// cares about completion drain the returned channel, but Dispatch does not
// require the caller to do so.
func (d *Dispatcher) Dispatch(ctx context.Context, event *SchemaEvent) <-chan DeliveryResult {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	d.mu.RLock()
	targets := make([]*Endpoint, 0, len(d.endpoints))
	for _, ep := range d.endpoints {
		if ep.Active && ep.interestedIn(event.Type) {
			targets = append(targets, ep)
		}
	}
	d.mu.RUnlock()

	results := make(chan DeliveryResult, len(targets))
	if len(targets) == 0 {
		close(results)
		return results
	}

	var wg sync.WaitGroup
	for _, ep := range targets {
		wg.Add(1)
		go func(ep *Endpoint) {
			defer wg.Done()
			results <- d.deliverWithRetry(ctx, ep, event)
		}(ep)
	}
	go func() { wg.Wait(); close(results) }()

	return results
}

// DeliveryResult reports the outcome of delivering one event to one
// endpoint.
type DeliveryResult struct {
	EndpointID string
	EventID    string
	Attempts   int
	Err        error
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, ep *Endpoint, event *SchemaEvent) DeliveryResult {
	d.mu.RLock()
	breaker := d.breakers[ep.ID]
	d.mu.RUnlock()

	start := time.Now()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.config.InitialDelay
	bo.MaxInterval = d.config.MaxDelay
	wrapped := backoff.WithContext(backoff.WithMaxRetries(bo, d.config.MaxRetries), ctx)

	attempts := 0
	result := DeliveryResult{EndpointID: ep.ID, EventID: event.ID}

	err := backoff.Retry(func() error {
		attempts++
		if breaker != nil && !breaker.Allow() {
			return backoff.Permanent(ErrCircuitOpen)
		}
		err := d.send(ctx, ep, event)
		if breaker != nil {
			if err != nil {
				breaker.RecordFailure()
			} else {
				breaker.RecordSuccess()
			}
		}
		return err
	}, wrapped)

	result.Attempts = attempts
	result.Err = err

	record := &DeliveryRecord{
		ID:         uuid.NewString(),
		EndpointID: ep.ID,
		EventID:    event.ID,
		EventType:  event.Type,
		Attempts:   attempts,
		CreatedAt:  start,
		Duration:   time.Since(start),
		Status:     DeliveryStatusSuccess,
	}
	if err != nil {
		record.Status = DeliveryStatusFailed
		record.Error = err.Error()
		log.Printf("[events.Dispatcher] giving up delivering %s to endpoint %s after %d attempts: %v", event.ID, ep.ID, attempts, err)
	}
	d.deliveries.add(record)

	return result
}

func (d *Dispatcher) send(ctx context.Context, ep *Endpoint, event *SchemaEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to marshal event: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Registry-Event", string(event.Type))
	req.Header.Set("X-Registry-Event-ID", event.ID)
	req.Header.Set("X-Registry-Delivery", time.Now().Format(time.RFC3339))
	if ep.Secret != "" {
		req.Header.Set("X-Registry-Signature", sign(payload, ep.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return backoff.Permanent(fmt.Errorf("endpoint returned %d", resp.StatusCode))
	}
	return nil
}

// VerifySignature checks an inbound X-Registry-Signature header against
// the payload and shared secret, for endpoints that want to authenticate
// the registry as the sender.
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(sign(payload, secret)), []byte(signature))
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
