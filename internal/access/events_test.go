package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/hms-access/pkg/config"
)

func receiveEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBus_PublishesOverrideLifecycle(t *testing.T) {
	rec := &recorderEmitter{}
	bus := NewBus()
	cfg := &config.OverrideConfig{DurationSeconds: 1800, MinReasonLength: 10}
	c := NewController(cfg, rec, bus, nil, newTestLogger())

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	_, err := c.Activate(context.Background(), testActor, "Stroke patient needs immediate imaging access")
	require.NoError(t, err)

	ev := receiveEvent(t, ch)
	assert.Equal(t, EventOverrideActivated, ev.Type)
	assert.True(t, ev.State.Active)
	assert.Equal(t, "user-42", ev.State.ActivatedBy)

	require.NoError(t, c.Deactivate(context.Background()))

	ev = receiveEvent(t, ch)
	assert.Equal(t, EventOverrideDeactivated, ev.Type)
	assert.False(t, ev.State.Active)
}

func TestBus_PublishesExpiry(t *testing.T) {
	rec := &recorderEmitter{}
	bus := NewBus()
	cfg := &config.OverrideConfig{DurationSeconds: 1800, MinReasonLength: 10}
	c := NewController(cfg, rec, bus, nil, newTestLogger(), WithDuration(80*time.Millisecond))

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	_, err := c.Activate(context.Background(), testActor, "Emergency surgery consent lookup required")
	require.NoError(t, err)

	ev := receiveEvent(t, ch)
	assert.Equal(t, EventOverrideActivated, ev.Type)

	ev = receiveEvent(t, ch)
	assert.Equal(t, EventOverrideExpired, ev.Type)
	assert.False(t, ev.State.Active)
}

func TestBus_PublishesSessionEnded(t *testing.T) {
	bus := NewBus()

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.SessionEnded("user-42")

	ev := receiveEvent(t, ch)
	assert.Equal(t, EventSessionEnded, ev.Type)
	assert.Equal(t, "user-42", ev.Actor)
	assert.False(t, ev.State.Active)
	assert.False(t, ev.At.IsZero())
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()

	ch, unsubscribe := bus.Subscribe()
	unsubscribe()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	bus.Publish(Event{Type: EventOverrideActivated})
}

func TestBus_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus()

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	// Fill the subscriber buffer and keep publishing; Publish must
	// return instead of stalling the controller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: EventOverrideActivated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The subscriber still sees the buffered prefix.
	assert.Equal(t, EventOverrideActivated, (<-ch).Type)
}
