package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberfriends/companion-engine/internal/domain/shared"
)

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventTierUnlocked, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewTierUnlockedEvent("u1", 2, "Sprout", nil)))
	require.NoError(t, bus.Publish(shared.NewPointsGrantedEvent("u1", "g1", "daily_checkin", "engagement", 10, 10, 1)))

	assert.Equal(t, []shared.EventType{shared.EventTierUnlocked}, typed)
	assert.Equal(t, []shared.EventType{shared.EventTierUnlocked, shared.EventPointsGranted}, all)
	assert.Equal(t, int64(2), bus.Metrics().Snapshot().TotalPublished)
}

func TestInMemoryEventBus_HandlerFailuresAreContained(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("bad handler") }))

	assert.NoError(t, bus.Publish(shared.NewProgressResetEvent("u1", 10, 1)))
	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.HandlerExecutions)
	assert.Equal(t, int64(2), snap.HandlerFailures)
}

func TestInMemoryEventBus_AsyncAndClose(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())

	var n atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		n.Add(1)
		return nil
	}))
	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(shared.NewCelebrationAcknowledgedEvent("u1", 2)))
	}
	require.NoError(t, bus.Close())
	assert.Equal(t, int32(20), n.Load())

	assert.ErrorIs(t, bus.Publish(shared.NewCelebrationAcknowledgedEvent("u1", 2)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_CloseDrainsQueuedDeliveries(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 1})

	release := make(chan struct{})
	var n atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		<-release
		n.Add(1)
		return nil
	}))
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewCelebrationAcknowledgedEvent("u1", 2)))
	}

	closed := make(chan struct{})
	go func() {
		_ = bus.Close()
		close(closed)
	}()

	// Close must not return while deliveries are still queued behind the pool.
	select {
	case <-closed:
		t.Fatal("Close returned before queued deliveries ran")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, int32(5), n.Load())
}

// fakeRedis is a single-channel pub/sub loopback.
type fakeRedis struct {
	mu        sync.Mutex
	published []string
	ch        chan RedisMessage
	failPub   bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{ch: make(chan RedisMessage, 16)}
}

func (f *fakeRedis) Publish(_ context.Context, _ string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPub {
		return errors.New("redis down")
	}
	f.published = append(f.published, message.(string))
	return nil
}

func (f *fakeRedis) Subscribe(context.Context, ...string) (<-chan RedisMessage, error) {
	return f.ch, nil
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisEventBus_PublishesEnvelope(t *testing.T) {
	client := newFakeRedis()
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         client,
		InstanceID:     "worker-a",
		LocalBusConfig: InMemoryEventBusConfig{AsyncMode: false},
	})
	require.NoError(t, err)
	defer bus.Close()

	require.NoError(t, bus.Publish(shared.NewTierUnlockedEvent("u1", 3, "Bloom", []string{"forum_posting"})))

	require.Len(t, client.published, 1)
	var wire wireMessage
	require.NoError(t, json.Unmarshal([]byte(client.published[0]), &wire))
	assert.Equal(t, "worker-a", wire.InstanceID)
	assert.Equal(t, shared.EventTierUnlocked, wire.Event.Type)
	assert.Equal(t, "u1", wire.Event.AggregateID)
	assert.NotEmpty(t, wire.Event.ID)
}

func TestRedisEventBus_ReplaysRemoteEventsOnly(t *testing.T) {
	client := newFakeRedis()
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         client,
		InstanceID:     "worker-a",
		LocalBusConfig: InMemoryEventBusConfig{AsyncMode: false},
	})
	require.NoError(t, err)
	defer bus.Close()

	received := make(chan shared.Event, 4)
	require.NoError(t, bus.Subscribe(shared.EventAchievementUnlocked, func(e shared.Event) error {
		received <- e
		return nil
	}))

	env, err := shared.NewEnvelope("evt-1", shared.NewAchievementUnlockedEvent("u2", "steady_flame", "Steady Flame", "consistency"))
	require.NoError(t, err)
	own, _ := json.Marshal(wireMessage{InstanceID: "worker-a", Event: env})
	remote, _ := json.Marshal(wireMessage{InstanceID: "worker-b", Event: env})

	client.ch <- RedisMessage{Payload: string(own)}
	client.ch <- RedisMessage{Payload: "not json"}
	client.ch <- RedisMessage{Payload: string(remote)}

	select {
	case e := <-received:
		assert.Equal(t, "u2", e.AggregateID())
		assert.Equal(t, "steady_flame", e.Payload()["achievement_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("remote event not delivered")
	}

	select {
	case e := <-received:
		t.Fatalf("unexpected second delivery: %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisEventBus_LocalDeliveryWhenRedisFails(t *testing.T) {
	client := newFakeRedis()
	client.failPub = true
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         client,
		LocalBusConfig: InMemoryEventBusConfig{AsyncMode: false},
	})
	require.NoError(t, err)
	defer bus.Close()

	delivered := false
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		delivered = true
		return nil
	}))
	assert.NoError(t, bus.Publish(shared.NewCountersResetEvent("daily", 3)))
	assert.True(t, delivered)
}
