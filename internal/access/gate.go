package access

import (
	"context"

	"github.com/medicore/hms-access/internal/audit"
	"github.com/medicore/hms-access/pkg/logger"
	"github.com/medicore/hms-access/pkg/types"
)

// RoleSource supplies the current session's identity. Implemented by the
// session store.
type RoleSource interface {
	CurrentUser() (*types.User, bool)
}

// Gate is the single decision point every feature area queries for
// authorization. It composes the resolver's base level with the override
// controller's live state: while an override is in force the effective
// level is ADMIN for every module, uniformly.
type Gate struct {
	resolver *Resolver
	override *Controller
	roles    RoleSource
	emitter  audit.Emitter
	metrics  *Metrics
	logger   *logger.Logger
}

// NewGate creates an access gate.
func NewGate(resolver *Resolver, override *Controller, roles RoleSource, emitter audit.Emitter, metrics *Metrics, log *logger.Logger) *Gate {
	return &Gate{
		resolver: resolver,
		override: override,
		roles:    roles,
		emitter:  emitter,
		metrics:  metrics,
		logger:   log,
	}
}

// EffectiveLevel returns the level the current session holds for a
// module right now. Without a session the gate fails closed.
func (g *Gate) EffectiveLevel(module types.Module) (types.AccessLevel, bool) {
	user, ok := g.roles.CurrentUser()
	if !ok {
		return 0, false
	}
	if g.override.IsActive() {
		return types.LevelAdmin, true
	}
	return g.resolver.AccessLevel(user.Role, module), true
}

// CanPerform reports whether the current session may perform an action
// requiring the given level on a module.
func (g *Gate) CanPerform(module types.Module, required types.AccessLevel) bool {
	level, ok := g.EffectiveLevel(module)
	if !ok {
		return false
	}
	allowed := level.Satisfies(required)
	g.count(module, allowed)
	return allowed
}

// HasModuleAccess reports whether the module is navigable at all for the
// current session.
func (g *Gate) HasModuleAccess(module types.Module) bool {
	return g.CanPerform(module, types.LevelView)
}

// Authorize is CanPerform with an attributed denial. ADMIN-gated denials
// are audit-logged for compliance review; plain navigation checks are
// not, to keep the trail meaningful.
func (g *Gate) Authorize(ctx context.Context, module types.Module, required types.AccessLevel) error {
	user, ok := g.roles.CurrentUser()
	if !ok {
		g.count(module, false)
		return types.NewAuthenticationError(types.ErrCodeNotAuthenticated, "no authenticated session")
	}

	level := g.resolver.AccessLevel(user.Role, module)
	overridden := g.override.IsActive()
	if overridden {
		level = types.LevelAdmin
	}

	if level.Satisfies(required) {
		g.count(module, true)
		return nil
	}
	g.count(module, false)

	if required >= types.LevelAdmin {
		g.emitter.Emit(ctx, audit.Entry{
			Action:     audit.ActionAccessDenied,
			EntityType: "module",
			EntityID:   string(module),
			Actor:      user.ID,
			Details: map[string]interface{}{
				"required_level": required.String(),
				"held_level":     level.String(),
				"role":           user.Role,
			},
		})
	}

	// Attribute the denial so the caller can prompt the right remedy:
	// a role that could never reach the level, or a missing override.
	if required >= types.LevelAdmin && !overridden {
		return types.NewForbiddenError(types.ErrCodeInsufficientRole,
			"action requires an active emergency override").
			WithDetails(map[string]interface{}{"remedy": "activate_override"})
	}
	return types.NewForbiddenError(types.ErrCodeInsufficientRole,
		"role does not hold the required access level").
		WithDetails(map[string]interface{}{"remedy": "insufficient_role"})
}

// NavigableModules lists the modules the current session may open.
func (g *Gate) NavigableModules() []types.Module {
	var out []types.Module
	for _, m := range types.Modules {
		level, ok := g.EffectiveLevel(m)
		if ok && level.Satisfies(types.LevelView) {
			out = append(out, m)
		}
	}
	return out
}

// DefaultView returns the landing view for the current session.
func (g *Gate) DefaultView() (types.View, bool) {
	user, ok := g.roles.CurrentUser()
	if !ok {
		return "", false
	}
	return g.resolver.DefaultView(user.Role), true
}

func (g *Gate) count(module types.Module, allowed bool) {
	if g.metrics == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	g.metrics.Decisions.WithLabelValues(string(module), outcome).Inc()
}
