package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"confhub/internal/types"
	"confhub/internal/value"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testEvent(name string, version int64) ConfigChanged {
	return ConfigChanged{
		ProjectID: "p1",
		ConfigID:  "id-" + name,
		Name:      name,
		Version:   version,
		Config: &types.Config{
			ID:        "id-" + name,
			ProjectID: "p1",
			Name:      name,
			Version:   version,
			Value:     value.Number(float64(version)),
		},
		Operation: "update",
		At:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func receive(t *testing.T, sub *Subscription) ConfigChanged {
	t.Helper()
	select {
	case event, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return ConfigChanged{}
	}
}

func assertNoEvent(t *testing.T, sub *Subscription, wait time.Duration) {
	t.Helper()
	select {
	case event := <-sub.C:
		t.Fatalf("unexpected event %s@%d", event.Name, event.Version)
	case <-time.After(wait):
	}
}

func TestMemoryBusFanOut(t *testing.T) {
	bus := NewMemoryBus(zaptest.NewLogger(t))
	ctx := context.Background()

	a := bus.Subscribe(4)
	b := bus.Subscribe(4)
	require.Equal(t, 2, bus.Len())

	require.NoError(t, bus.Publish(ctx, testEvent("x", 2)))
	assert.Equal(t, int64(2), receive(t, a).Version)
	assert.Equal(t, int64(2), receive(t, b).Version)

	b.Close()
	b.Close()
	assert.Equal(t, 1, bus.Len())
	_, ok := <-b.C
	assert.False(t, ok)
}

func TestMemoryBusDropsForFullSubscriber(t *testing.T) {
	bus := NewMemoryBus(zaptest.NewLogger(t))
	ctx := context.Background()

	slow := bus.Subscribe(1)
	fast := bus.Subscribe(8)

	for v := int64(1); v <= 3; v++ {
		require.NoError(t, bus.Publish(ctx, testEvent("x", v)))
	}

	assert.Equal(t, int64(2), slow.Dropped())
	assert.Equal(t, int64(1), receive(t, slow).Version)
	for v := int64(1); v <= 3; v++ {
		assert.Equal(t, v, receive(t, fast).Version)
	}
	assert.Zero(t, fast.Dropped())

	// Two drops leave a single pending lag signal
	select {
	case <-slow.Lagged:
	default:
		t.Fatal("full subscriber was not marked as lagged")
	}
	select {
	case <-slow.Lagged:
		t.Fatal("lag signals should coalesce")
	default:
	}
	select {
	case <-fast.Lagged:
		t.Fatal("subscriber that kept up was marked as lagged")
	default:
	}
}

func TestMemoryBusClose(t *testing.T) {
	bus := NewMemoryBus(zaptest.NewLogger(t))
	sub := bus.Subscribe(1)
	bus.Close()

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.ErrorIs(t, bus.Publish(context.Background(), testEvent("x", 1)), ErrBusClosed)

	late := bus.Subscribe(1)
	_, ok = <-late.C
	assert.False(t, ok)
	sub.Close()
}

func TestRedisBridgeFanOut(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := zaptest.NewLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newInstance := func() (*MemoryBus, *RedisBridge) {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		bus := NewMemoryBus(logger)
		bridge := NewRedisBridge(client, bus, "confhub:changes", 16, logger)
		require.NoError(t, bridge.Start(ctx))
		t.Cleanup(bridge.Stop)
		return bus, bridge
	}

	busA, bridgeA := newInstance()
	busB, _ := newInstance()

	subA := busA.Subscribe(8)
	subB := busB.Subscribe(8)

	require.NoError(t, busA.Publish(ctx, testEvent("x", 5)))

	local := receive(t, subA)
	assert.True(t, local.IsLocal())

	remote := receive(t, subB)
	assert.Equal(t, "x", remote.Name)
	assert.Equal(t, int64(5), remote.Version)
	assert.Equal(t, bridgeA.InstanceID(), remote.Origin)
	require.NotNil(t, remote.Config)
	assert.True(t, value.Equal(value.Number(5), remote.Config.Value))

	// Neither instance sees an echo of the event
	assertNoEvent(t, subA, 200*time.Millisecond)
	assertNoEvent(t, subB, 50*time.Millisecond)
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	written  chan struct{}
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	w.messages = append(w.messages, msgs...)
	w.mu.Unlock()
	w.written <- struct{}{}
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestKafkaChangeLogWritesLocalEvents(t *testing.T) {
	bus := NewMemoryBus(zaptest.NewLogger(t))
	writer := &fakeWriter{written: make(chan struct{}, 4)}
	changelog := NewKafkaChangeLog(writer, bus, 8, zaptest.NewLogger(t))
	changelog.Start(context.Background())

	remote := testEvent("y", 3)
	remote.Origin = "other-instance"
	require.NoError(t, bus.Publish(context.Background(), remote))
	require.NoError(t, bus.Publish(context.Background(), testEvent("x", 2)))

	select {
	case <-writer.written:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for kafka write")
	}
	require.NoError(t, changelog.Stop())

	writer.mu.Lock()
	defer writer.mu.Unlock()
	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "id-x", string(msg.Key))

	var event ConfigChanged
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "x", event.Name)
	assert.Equal(t, int64(2), event.Version)
	assert.True(t, writer.closed)
}
