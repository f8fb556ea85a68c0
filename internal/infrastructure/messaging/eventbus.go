// Package messaging fans domain events out to subscribers, either inside one
// process or across worker instances over Redis pub/sub.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fiberfriends/companion-engine/internal/domain/shared"
	"github.com/fiberfriends/companion-engine/pkg/logger"
)

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic is returned when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus delivers events to handlers registered in this process.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	workerPool  chan struct{}
	log         *logger.Logger
	metrics     *EventBusMetrics
	closed      bool
	wg          sync.WaitGroup
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers on a bounded worker pool instead of inline.
	AsyncMode bool

	WorkerPoolSize int

	Logger *logger.Logger
}

// DefaultInMemoryEventBusConfig returns sensible defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}

	return &InMemoryEventBus{
		handlers:   make(map[shared.EventType][]shared.EventHandler),
		asyncMode:  config.AsyncMode,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		log:        config.Logger.With(logger.String("component", "eventbus")),
		metrics:    NewEventBusMetrics(),
	}
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish sends an event to all subscribed handlers. Handler failures are
// logged and never returned to the publisher.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	// Accepted deliveries are counted before Close can start waiting.
	if b.asyncMode {
		b.wg.Add(len(handlers))
	}
	b.mu.RUnlock()

	b.metrics.RecordPublish(event.EventType())
	if len(handlers) == 0 {
		return nil
	}

	for _, handler := range handlers {
		if b.asyncMode {
			b.executeAsync(event, handler)
			continue
		}
		if err := b.execute(event, handler); err != nil {
			b.log.Error("handler error",
				logger.String("event_type", string(event.EventType())),
				logger.Err(err),
			)
		}
	}
	return nil
}

// executeAsync runs one delivery already counted in wg. Every accepted
// delivery waits for a worker slot, including after Close.
func (b *InMemoryEventBus) executeAsync(event shared.Event, handler shared.EventHandler) {
	go func() {
		defer b.wg.Done()

		b.workerPool <- struct{}{}
		defer func() { <-b.workerPool }()

		if err := b.execute(event, handler); err != nil {
			b.log.Error("async handler error",
				logger.String("event_type", string(event.EventType())),
				logger.Err(err),
			)
		}
	}()
}

func (b *InMemoryEventBus) execute(event shared.Event, handler shared.EventHandler) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
		b.metrics.RecordHandlerExecution(event.EventType(), time.Since(start), err == nil)
	}()
	return handler(event)
}

// Close stops accepting events and waits until every accepted delivery,
// queued or running, has finished.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	b.log.Info("event bus closed")
	return nil
}

// Metrics returns the bus counters.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisClient is the pub/sub surface the Redis bus needs.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
	Close() error
}

// RedisMessage represents a message received from Redis Pub/Sub.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

// RedisEventBus publishes every event to a Redis channel as a
// shared.EventEnvelope and replays envelopes from other instances to local
// handlers.
type RedisEventBus struct {
	client      RedisClient
	localBus    *InMemoryEventBus
	channelName string
	instanceID  string
	log         *logger.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
}

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	Client RedisClient

	// ChannelName defaults to "companion:events".
	ChannelName string

	// InstanceID filters out this instance's own messages. Generated when empty.
	InstanceID string

	LocalBusConfig InMemoryEventBusConfig

	Logger *logger.Logger
}

type wireMessage struct {
	InstanceID string               `json:"instance_id"`
	Event      shared.EventEnvelope `json:"event"`
}

// NewRedisEventBus creates a Redis-backed bus and starts its subscriber.
func NewRedisEventBus(config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = "companion:events"
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	bus := &RedisEventBus{
		client:      config.Client,
		localBus:    NewInMemoryEventBus(config.LocalBusConfig),
		channelName: config.ChannelName,
		instanceID:  config.InstanceID,
		log:         config.Logger.With(logger.String("component", "redis_eventbus")),
		ctx:         ctx,
		cancel:      cancel,
	}

	messages, err := bus.client.Subscribe(ctx, bus.channelName)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start subscriber: %w", err)
	}
	bus.wg.Add(1)
	go func() {
		defer bus.wg.Done()
		bus.subscriptionLoop(messages)
	}()

	return bus, nil
}

var _ shared.EventBus = (*RedisEventBus)(nil)

// Subscribe registers a handler for a specific event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.localBus.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.localBus.SubscribeAll(handler)
}

// Publish sends the event to Redis and to local handlers. A Redis failure is
// logged and local delivery still happens.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrEventBusClosed
	}

	env, err := shared.NewEnvelope(uuid.NewString(), event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data, err := json.Marshal(wireMessage{InstanceID: b.instanceID, Event: env})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.client.Publish(b.ctx, b.channelName, string(data)); err != nil {
		b.log.Error("failed to publish to redis",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}

	return b.localBus.Publish(event)
}

func (b *RedisEventBus) subscriptionLoop(messages <-chan RedisMessage) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Err != nil {
				b.log.Error("redis subscription error", logger.Err(msg.Err))
				continue
			}
			b.handleRedisMessage(msg)
		}
	}
}

func (b *RedisEventBus) handleRedisMessage(msg RedisMessage) {
	var wire wireMessage
	if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
		b.log.Warn("dropping malformed event", logger.Err(err))
		return
	}
	if wire.InstanceID == b.instanceID {
		return
	}

	event, err := decodeEnvelope(wire.Event)
	if err != nil {
		b.log.Warn("dropping malformed event", logger.Err(err))
		return
	}
	if err := b.localBus.Publish(event); err != nil {
		b.log.Error("failed to process remote event", logger.Err(err))
	}
}

// Close stops the subscriber and the local bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return b.localBus.Close()
}

// Metrics returns the counters of the local bus.
func (b *RedisEventBus) Metrics() *EventBusMetrics {
	return b.localBus.Metrics()
}

// remoteEvent is an event rebuilt from an envelope published elsewhere.
type remoteEvent struct {
	eventType     shared.EventType
	aggregateID   string
	occurredAt    time.Time
	correlationID string
	payload       map[string]interface{}
}

func decodeEnvelope(env shared.EventEnvelope) (*remoteEvent, error) {
	if env.Type == "" {
		return nil, errors.New("envelope has no event type")
	}
	payload := make(map[string]interface{})
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	return &remoteEvent{
		eventType:     env.Type,
		aggregateID:   env.AggregateID,
		occurredAt:    env.Timestamp,
		correlationID: env.CorrelationID,
		payload:       payload,
	}, nil
}

func (e *remoteEvent) EventType() shared.EventType { return e.eventType }
func (e *remoteEvent) AggregateID() string { return e.aggregateID }
func (e *remoteEvent) OccurredAt() time.Time { return e.occurredAt }
func (e *remoteEvent) Payload() map[string]interface{} { return e.payload }
func (e *remoteEvent) CorrelationID() string { return e.correlationID }

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics counts publishes and handler outcomes.
type EventBusMetrics struct {
	mu sync.RWMutex

	published        map[shared.EventType]int64
	executions       int64
	failures         int64
	handlerTotalTime time.Duration
}

// NewEventBusMetrics creates an empty metrics tracker.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{published: make(map[shared.EventType]int64)}
}

// RecordPublish records a publish.
func (m *EventBusMetrics) RecordPublish(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[eventType]++
}

// RecordHandlerExecution records one handler run.
func (m *EventBusMetrics) RecordHandlerExecution(_ shared.EventType, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions++
	m.handlerTotalTime += duration
	if !success {
		m.failures++
	}
}

// EventBusMetricsSnapshot is a point-in-time copy of the counters.
type EventBusMetricsSnapshot struct {
	Published              map[shared.EventType]int64
	TotalPublished         int64
	HandlerExecutions      int64
	HandlerFailures        int64
	AverageHandlerDuration time.Duration
}

// Snapshot returns a copy of the current counters.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := EventBusMetricsSnapshot{
		Published:         make(map[shared.EventType]int64, len(m.published)),
		HandlerExecutions: m.executions,
		HandlerFailures:   m.failures,
	}
	for k, v := range m.published {
		snap.Published[k] = v
		snap.TotalPublished += v
	}
	if m.executions > 0 {
		snap.AverageHandlerDuration = m.handlerTotalTime / time.Duration(m.executions)
	}
	return snap
}
