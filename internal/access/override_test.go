package access

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/hms-access/internal/audit"
	"github.com/medicore/hms-access/pkg/config"
	"github.com/medicore/hms-access/pkg/logger"
	"github.com/medicore/hms-access/pkg/types"
)

// recorderEmitter captures audit entries synchronously for assertions.
type recorderEmitter struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recorderEmitter) Emit(_ context.Context, entry audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recorderEmitter) byAction(action string) []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Entry
	for _, e := range r.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// manualClock is a settable clock for expiry-boundary tests.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Now()}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testActor = types.User{ID: "user-42", Name: "Dr. Osei", Role: types.RoleDoctor}

func newTestLogger() *logger.Logger {
	return logger.New("error")
}

func newTestController(t *testing.T, opts ...ControllerOption) (*Controller, *recorderEmitter, *Bus) {
	t.Helper()
	rec := &recorderEmitter{}
	bus := NewBus()
	cfg := &config.OverrideConfig{DurationSeconds: 1800, MinReasonLength: 10}
	c := NewController(cfg, rec, bus, nil, newTestLogger(), opts...)
	return c, rec, bus
}

func TestController_ActivateRejectsShortReason(t *testing.T) {
	c, rec, _ := newTestController(t)

	state, err := c.Activate(context.Background(), testActor, "too short")
	require.Error(t, err)
	assert.Nil(t, state)
	assert.True(t, types.IsType(err, types.ErrorTypeValidation))

	// Rejected before any state mutation or audit write.
	assert.False(t, c.IsActive())
	assert.Empty(t, rec.byAction(audit.ActionOverrideActivated))
	assert.Equal(t, types.OverrideInactive, c.Phase())
}

func TestController_ReasonLengthCountsCharacters(t *testing.T) {
	c, _, _ := newTestController(t)

	// Nine characters across multibyte encodings: under the minimum even
	// though the byte length is well over it.
	_, err := c.Activate(context.Background(), testActor, "緊急事態発生です！")
	require.Error(t, err)
	assert.True(t, types.IsType(err, types.ErrorTypeValidation))

	state, err := c.Activate(context.Background(), testActor, "緊急手術のため全権限が必要")
	require.NoError(t, err)
	assert.True(t, state.Active)
}

func TestController_ActivateElevatesImmediately(t *testing.T) {
	c, rec, _ := newTestController(t)

	state, err := c.Activate(context.Background(), testActor, "Cardiac arrest in ward 3, need full access")
	require.NoError(t, err)
	require.NotNil(t, state)

	assert.True(t, state.Active)
	assert.True(t, c.IsActive())
	assert.Equal(t, types.OverrideActive, c.Phase())
	assert.Equal(t, "user-42", state.ActivatedBy)
	assert.Equal(t, 1800, state.RemainingSeconds)
	assert.Equal(t, state.ActivatedAt.Add(30*time.Minute), state.ExpiresAt)

	activated := rec.byAction(audit.ActionOverrideActivated)
	require.Len(t, activated, 1)
	assert.Equal(t, "user-42", activated[0].Actor)
	assert.Equal(t, "emergency_override", activated[0].EntityType)
	assert.Equal(t, "Cardiac arrest in ward 3, need full access", activated[0].Details["reason"])
}

func TestController_ActivateWhileActiveFails(t *testing.T) {
	c, rec, _ := newTestController(t)

	first, err := c.Activate(context.Background(), testActor, "Cardiac arrest in ward 3, need full access")
	require.NoError(t, err)

	second, err := c.Activate(context.Background(), testActor, "Another emergency needing full access")
	require.Error(t, err)
	assert.Nil(t, second)
	assert.True(t, types.IsType(err, types.ErrorTypeConflict))

	// The first override's window is untouched.
	assert.True(t, c.IsActive())
	assert.Equal(t, first.ExpiresAt, c.State().ExpiresAt)
	assert.Len(t, rec.byAction(audit.ActionOverrideActivated), 1)
}

func TestController_AutoExpiry(t *testing.T) {
	c, rec, _ := newTestController(t, WithDuration(100*time.Millisecond))

	_, err := c.Activate(context.Background(), testActor, "Trauma admission requires full chart access")
	require.NoError(t, err)
	assert.True(t, c.IsActive())

	// No poke: the scheduled task alone must end the elevation.
	time.Sleep(300 * time.Millisecond)

	assert.False(t, c.IsActive())
	assert.Equal(t, 0, c.RemainingSeconds())
	assert.Equal(t, types.OverrideInactive, c.Phase())
	assert.False(t, c.State().Active)

	expired := rec.byAction(audit.ActionOverrideExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, "user-42", expired[0].Actor)
	assert.Empty(t, rec.byAction(audit.ActionOverrideDeactivated))
}

func TestController_DeactivateCancelsExpiry(t *testing.T) {
	c, rec, _ := newTestController(t, WithDuration(150*time.Millisecond))

	_, err := c.Activate(context.Background(), testActor, "Emergency transfusion order needs sign-off")
	require.NoError(t, err)

	require.NoError(t, c.Deactivate(context.Background()))
	assert.False(t, c.IsActive())

	// Well past the original window: the cancelled timer must not fire.
	time.Sleep(300 * time.Millisecond)

	assert.Len(t, rec.byAction(audit.ActionOverrideDeactivated), 1)
	assert.Empty(t, rec.byAction(audit.ActionOverrideExpired))
}

func TestController_DeactivateIsIdempotent(t *testing.T) {
	c, rec, _ := newTestController(t)

	require.NoError(t, c.Deactivate(context.Background()))
	assert.Empty(t, rec.byAction(audit.ActionOverrideDeactivated))

	_, err := c.Activate(context.Background(), testActor, "Sepsis protocol needs immediate med orders")
	require.NoError(t, err)

	require.NoError(t, c.Deactivate(context.Background()))
	require.NoError(t, c.Deactivate(context.Background()))

	// One audit entry per override cycle, not per call.
	assert.Len(t, rec.byAction(audit.ActionOverrideDeactivated), 1)
}

func TestController_ExpiryDerivedFromClockNotCallback(t *testing.T) {
	clock := newManualClock()
	c, rec, _ := newTestController(t, WithClock(clock.Now), WithDuration(time.Hour))

	_, err := c.Activate(context.Background(), testActor, "Overnight coverage for collapsed patient")
	require.NoError(t, err)
	assert.True(t, c.IsActive())

	// The window has elapsed but the real timer (1h) has not fired:
	// reads must still report the override as over.
	clock.Advance(2 * time.Hour)

	assert.False(t, c.IsActive())
	assert.Equal(t, 0, c.RemainingSeconds())
	assert.Equal(t, types.OverrideExpired, c.Phase())

	// A new activation treats the stale one as expired, not as active.
	state, err := c.Activate(context.Background(), testActor, "Second emergency after the first lapsed")
	require.NoError(t, err)
	assert.True(t, state.Active)

	assert.Len(t, rec.byAction(audit.ActionOverrideExpired), 1)
	assert.Len(t, rec.byAction(audit.ActionOverrideActivated), 2)
}

func TestController_RemainingSecondsNeverNegative(t *testing.T) {
	clock := newManualClock()
	c, _, _ := newTestController(t, WithClock(clock.Now), WithDuration(time.Minute))

	assert.Equal(t, 0, c.RemainingSeconds())

	_, err := c.Activate(context.Background(), testActor, "Code blue response in the east wing")
	require.NoError(t, err)
	assert.Equal(t, 60, c.RemainingSeconds())

	clock.Advance(30 * time.Second)
	assert.Equal(t, 30, c.RemainingSeconds())

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 0, c.RemainingSeconds())
}

func TestController_ConcurrentReadsDuringExpiry(t *testing.T) {
	c, _, _ := newTestController(t, WithDuration(50*time.Millisecond))

	_, err := c.Activate(context.Background(), testActor, "Mass casualty intake, full access needed")
	require.NoError(t, err)

	// Readers racing the expiry callback must never observe a torn
	// state: active with zero remaining time past the boundary.
	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if c.IsActive() {
					// Within the window some time must remain.
					assert.Greater(t, c.State().RemainingSeconds+1, 0)
				}
			}
		}()
	}

	time.Sleep(200 * time.Millisecond)
	close(done)
	wg.Wait()

	assert.False(t, c.IsActive())
}
