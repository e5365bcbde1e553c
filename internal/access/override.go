package access

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/medicore/hms-access/internal/audit"
	"github.com/medicore/hms-access/pkg/config"
	"github.com/medicore/hms-access/pkg/logger"
	"github.com/medicore/hms-access/pkg/types"
)

// Clock supplies the current time. time.Time values from time.Now carry
// a monotonic reading, so expiry comparisons are immune to wall-clock
// adjustments.
type Clock func() time.Time

// Controller governs the emergency override lifecycle:
//
//	INACTIVE -> PENDING_ACTIVATION -> ACTIVE -> (EXPIRED | DEACTIVATED) -> INACTIVE
//
// Exactly one override may be active at a time and exactly one expiry
// timer exists per activation. Expiry is self-enforcing: a scheduled
// task ends the elevation even if nothing else touches the session.
// Readers always re-derive "active" from the clock, never from a stale
// flag, so a read racing the expiry callback cannot observe elevation
// past the legal window.
type Controller struct {
	duration  time.Duration
	minReason int
	emitter   audit.Emitter
	bus       *Bus
	metrics   *Metrics
	logger    *logger.Logger
	now       Clock

	mu    sync.Mutex
	phase types.OverridePhase
	rec   *overrideRecord
	timer *time.Timer
	epoch uint64
}

// overrideRecord is the live state of one activation cycle.
type overrideRecord struct {
	id          string
	reason      string
	activatedBy string
	activatedAt time.Time
	expiresAt   time.Time
}

// ControllerOption customises a Controller.
type ControllerOption func(*Controller)

// WithClock replaces the controller's clock.
func WithClock(clock Clock) ControllerOption {
	return func(c *Controller) { c.now = clock }
}

// WithDuration replaces the configured override window.
func WithDuration(d time.Duration) ControllerOption {
	return func(c *Controller) { c.duration = d }
}

// NewController creates an override controller.
func NewController(cfg *config.OverrideConfig, emitter audit.Emitter, bus *Bus, metrics *Metrics, log *logger.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		duration:  cfg.Duration(),
		minReason: cfg.MinReasonLength,
		emitter:   emitter,
		bus:       bus,
		metrics:   metrics,
		logger:    log,
		now:       time.Now,
		phase:     types.OverrideInactive,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Activate starts an emergency override for the acting user. The reason
// is mandatory and validated before any state mutation or audit write;
// activation while another override is live is rejected without touching
// the first override's timer.
func (c *Controller) Activate(ctx context.Context, actor types.User, reason string) (*types.OverrideState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	// An override past its window counts as expired even if the timer
	// callback has not fired yet.
	if c.rec != nil && !now.Before(c.rec.expiresAt) {
		c.finalizeLocked(ctx, types.OverrideExpired)
	}

	if utf8.RuneCountInString(strings.TrimSpace(reason)) < c.minReason {
		return nil, types.NewValidationError(types.ErrCodeReasonTooShort,
			"override reason must explain the emergency")
	}

	if c.rec != nil {
		return nil, types.NewConflictError(types.ErrCodeOverrideActive,
			"an emergency override is already active for this session")
	}

	c.phase = types.OverridePendingActivation

	rec := &overrideRecord{
		id:          uuid.New().String(),
		reason:      strings.TrimSpace(reason),
		activatedBy: actor.ID,
		activatedAt: now,
		expiresAt:   now.Add(c.duration),
	}
	c.rec = rec
	c.epoch++
	epoch := c.epoch
	c.timer = time.AfterFunc(c.duration, func() { c.expire(epoch) })
	c.phase = types.OverrideActive

	c.emitter.Emit(ctx, audit.Entry{
		Action:     audit.ActionOverrideActivated,
		EntityType: "emergency_override",
		EntityID:   rec.id,
		Actor:      actor.ID,
		Details: map[string]interface{}{
			"reason":           rec.reason,
			"duration_seconds": int(c.duration / time.Second),
			"expires_at":       rec.expiresAt.UTC(),
		},
	})

	state := c.stateLocked(now)
	c.bus.Publish(Event{Type: EventOverrideActivated, State: state, Actor: actor.ID, At: now})
	if c.metrics != nil {
		c.metrics.OverrideActivations.Inc()
		c.metrics.OverrideActive.Set(1)
	}

	c.logger.Security("override_activated", actor.ID, map[string]interface{}{
		"reason":     rec.reason,
		"expires_at": rec.expiresAt.UTC(),
	})

	snapshot := state
	return &snapshot, nil
}

// Deactivate ends the override early. Deactivating an inactive override
// is a no-op. The pending expiry timer is cancelled before returning, so
// no spurious EXPIRED transition can follow.
func (c *Controller) Deactivate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec == nil {
		return nil
	}

	// Past the window, the cycle legally ended by expiry; record it as
	// such rather than as a manual deactivation.
	if !c.now().Before(c.rec.expiresAt) {
		c.finalizeLocked(ctx, types.OverrideExpired)
		return nil
	}

	c.finalizeLocked(ctx, types.OverrideDeactivated)
	return nil
}

// expire is the scheduled expiry task. The epoch guard makes a timer
// from a cancelled or superseded activation a no-op.
func (c *Controller) expire(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch || c.rec == nil {
		return
	}
	c.finalizeLocked(context.Background(), types.OverrideExpired)
}

// finalizeLocked ends the current cycle with the given terminal phase,
// emits the matching audit entry and event, and resets to INACTIVE.
// Callers hold the lock.
func (c *Controller) finalizeLocked(ctx context.Context, terminal types.OverridePhase) {
	rec := c.rec

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.epoch++ // invalidate any in-flight timer callback
	c.rec = nil
	c.phase = types.OverrideInactive

	now := c.now()
	ended := types.OverrideState{Active: false}

	switch terminal {
	case types.OverrideExpired:
		c.emitter.Emit(ctx, audit.Entry{
			Action:     audit.ActionOverrideExpired,
			EntityType: "emergency_override",
			EntityID:   rec.id,
			Actor:      rec.activatedBy,
			Details: map[string]interface{}{
				"activated_at": rec.activatedAt.UTC(),
				"expired_at":   rec.expiresAt.UTC(),
			},
		})
		c.bus.Publish(Event{Type: EventOverrideExpired, State: ended, Actor: rec.activatedBy, At: now})
		if c.metrics != nil {
			c.metrics.OverrideExpiries.Inc()
		}
		c.logger.Security("override_expired", rec.activatedBy, map[string]interface{}{
			"activated_at": rec.activatedAt.UTC(),
		})
	case types.OverrideDeactivated:
		c.emitter.Emit(ctx, audit.Entry{
			Action:     audit.ActionOverrideDeactivated,
			EntityType: "emergency_override",
			EntityID:   rec.id,
			Actor:      rec.activatedBy,
			Details: map[string]interface{}{
				"activated_at": rec.activatedAt.UTC(),
			},
		})
		c.bus.Publish(Event{Type: EventOverrideDeactivated, State: ended, Actor: rec.activatedBy, At: now})
		if c.metrics != nil {
			c.metrics.OverrideDeactivations.Inc()
		}
		c.logger.Security("override_deactivated", rec.activatedBy, nil)
	}

	if c.metrics != nil {
		c.metrics.OverrideActive.Set(0)
	}
}

// IsActive reports whether an override is currently in force. Derived
// from the clock, not from the timer having fired.
func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec != nil && c.now().Before(c.rec.expiresAt)
}

// RemainingSeconds returns the countdown for display. Never negative;
// reaches zero at the same instant the override stops being in force.
func (c *Controller) RemainingSeconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec == nil {
		return 0
	}
	remaining := c.rec.expiresAt.Sub(c.now())
	if remaining <= 0 {
		return 0
	}
	return int((remaining + time.Second - 1) / time.Second)
}

// State returns an observable snapshot for countdown banners.
func (c *Controller) State() types.OverrideState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked(c.now())
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() types.OverridePhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec != nil && !c.now().Before(c.rec.expiresAt) {
		return types.OverrideExpired
	}
	return c.phase
}

func (c *Controller) stateLocked(now time.Time) types.OverrideState {
	if c.rec == nil || !now.Before(c.rec.expiresAt) {
		return types.OverrideState{Active: false}
	}
	remaining := c.rec.expiresAt.Sub(now)
	return types.OverrideState{
		Active:           true,
		Reason:           c.rec.reason,
		ActivatedBy:      c.rec.activatedBy,
		ActivatedAt:      c.rec.activatedAt,
		ExpiresAt:        c.rec.expiresAt,
		RemainingSeconds: int((remaining + time.Second - 1) / time.Second),
	}
}
