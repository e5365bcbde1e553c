package access

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/hms-access/internal/audit"
	"github.com/medicore/hms-access/pkg/types"
)

// fakeSession is a RoleSource with a swappable identity.
type fakeSession struct {
	mu   sync.Mutex
	user *types.User
}

func (f *fakeSession) CurrentUser() (*types.User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil {
		return nil, false
	}
	u := *f.user
	return &u, true
}

func (f *fakeSession) set(user *types.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = user
}

func newTestGate(t *testing.T, user *types.User, opts ...ControllerOption) (*Gate, *Controller, *fakeSession, *recorderEmitter) {
	t.Helper()
	c, rec, _ := newTestController(t, opts...)
	sess := &fakeSession{user: user}
	gate := NewGate(NewResolver(), c, sess, rec, nil, newTestLogger())
	return gate, c, sess, rec
}

func TestGate_BasePermissions(t *testing.T) {
	testCases := []struct {
		name     string
		role     types.Role
		module   types.Module
		required types.AccessLevel
		expected bool
	}{
		{"doctor edits OPD", types.RoleDoctor, types.ModuleOPD, types.LevelEdit, true},
		{"doctor cannot admin OPD", types.RoleDoctor, types.ModuleOPD, types.LevelAdmin, false},
		{"doctor views billing only", types.RoleDoctor, types.ModuleBilling, types.LevelEdit, false},
		{"pharmacist edits pharmacy", types.RolePharmacist, types.ModulePharmacy, types.LevelEdit, true},
		{"patient cannot edit anything", types.RolePatient, types.ModuleOPD, types.LevelEdit, false},
		{"admin holds admin everywhere", types.RoleAdmin, types.ModuleHR, types.LevelAdmin, true},
		{"absent table entry fails closed to view", types.RoleNurse, types.ModuleHR, types.LevelEdit, false},
		{"view floor keeps modules navigable", types.RoleNurse, types.ModuleHR, types.LevelView, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gate, _, _, _ := newTestGate(t, &types.User{ID: "u1", Role: tc.role})
			// Deterministic and repeatable.
			for i := 0; i < 3; i++ {
				assert.Equal(t, tc.expected, gate.CanPerform(tc.module, tc.required))
			}
		})
	}
}

func TestGate_NoSessionFailsClosed(t *testing.T) {
	gate, _, _, _ := newTestGate(t, nil)

	assert.False(t, gate.CanPerform(types.ModuleOPD, types.LevelView))
	assert.False(t, gate.HasModuleAccess(types.ModuleOPD))

	err := gate.Authorize(context.Background(), types.ModuleOPD, types.LevelView)
	require.Error(t, err)
	assert.True(t, types.IsType(err, types.ErrorTypeAuthentication))

	_, ok := gate.DefaultView()
	assert.False(t, ok)
	assert.Empty(t, gate.NavigableModules())
}

func TestGate_OverrideDominatesAllModules(t *testing.T) {
	receptionist := &types.User{ID: "recep-1", Role: types.RoleReceptionist}
	gate, override, _, _ := newTestGate(t, receptionist)

	// Base level for billing is EDIT: ADMIN-gated actions are denied.
	assert.False(t, gate.CanPerform(types.ModuleBilling, types.LevelAdmin))

	_, err := override.Activate(context.Background(), *receptionist, "Patient requires urgent billing override")
	require.NoError(t, err)

	// Session-wide elevation, not per-module.
	for _, module := range types.Modules {
		assert.True(t, gate.CanPerform(module, types.LevelAdmin),
			"override must grant ADMIN on %s", module)
	}

	require.NoError(t, override.Deactivate(context.Background()))
	assert.False(t, gate.CanPerform(types.ModuleBilling, types.LevelAdmin))
	assert.True(t, gate.CanPerform(types.ModuleBilling, types.LevelEdit))
}

func TestGate_OverrideExpiryRevertsWithoutPoke(t *testing.T) {
	receptionist := &types.User{ID: "recep-1", Role: types.RoleReceptionist}
	gate, override, _, _ := newTestGate(t, receptionist, WithDuration(120*time.Millisecond))

	_, err := override.Activate(context.Background(), *receptionist, "Patient requires urgent billing override")
	require.NoError(t, err)
	assert.True(t, gate.CanPerform(types.ModuleBilling, types.LevelAdmin))

	time.Sleep(300 * time.Millisecond)

	// No manual action between activation and these checks.
	assert.False(t, gate.CanPerform(types.ModuleBilling, types.LevelAdmin))
	assert.True(t, gate.CanPerform(types.ModuleBilling, types.LevelEdit))
}

func TestGate_DeniedAdminActionIsAudited(t *testing.T) {
	gate, _, _, rec := newTestGate(t, &types.User{ID: "nurse-7", Role: types.RoleNurse})

	err := gate.Authorize(context.Background(), types.ModuleBilling, types.LevelAdmin)
	require.Error(t, err)
	assert.True(t, types.IsType(err, types.ErrorTypeForbidden))

	denied := rec.byAction(audit.ActionAccessDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, "nurse-7", denied[0].Actor)
	assert.Equal(t, string(types.ModuleBilling), denied[0].EntityID)
	assert.Equal(t, "admin", denied[0].Details["required_level"])
}

func TestGate_NavigationDenialsAreNotAudited(t *testing.T) {
	gate, _, _, rec := newTestGate(t, &types.User{ID: "pat-1", Role: types.RolePatient})

	err := gate.Authorize(context.Background(), types.ModuleOPD, types.LevelEdit)
	require.Error(t, err)

	// Sub-ADMIN denials stay out of the audit trail to avoid flooding.
	assert.Empty(t, rec.byAction(audit.ActionAccessDenied))
}

func TestGate_DenialAttribution(t *testing.T) {
	gate, override, _, _ := newTestGate(t, &types.User{ID: "doc-1", Role: types.RoleDoctor})

	err := gate.Authorize(context.Background(), types.ModuleBilling, types.LevelAdmin)
	require.Error(t, err)
	ae, ok := types.AsAccessError(err)
	require.True(t, ok)
	assert.Equal(t, "activate_override", ae.Details["remedy"])

	_, err = override.Activate(context.Background(), types.User{ID: "doc-1"}, "Emergency billing correction required now")
	require.NoError(t, err)
	assert.NoError(t, gate.Authorize(context.Background(), types.ModuleBilling, types.LevelAdmin))
}

func TestGate_NoStateLeakageAcrossSessions(t *testing.T) {
	userA := &types.User{ID: "user-a", Role: types.RoleDoctor}
	gate, override, sess, _ := newTestGate(t, userA)

	_, err := override.Activate(context.Background(), *userA, "Emergency access for deteriorating patient")
	require.NoError(t, err)
	assert.True(t, gate.CanPerform(types.ModuleHR, types.LevelAdmin))

	// Logout terminates the override before the next user signs in.
	require.NoError(t, override.Deactivate(context.Background()))
	sess.set(nil)
	sess.set(&types.User{ID: "user-b", Role: types.RoleNurse})

	assert.False(t, gate.CanPerform(types.ModuleHR, types.LevelAdmin))
	assert.False(t, override.IsActive())
}

func TestGate_NavigableModulesAndDefaultView(t *testing.T) {
	gate, _, _, _ := newTestGate(t, &types.User{ID: "ph-1", Role: types.RolePharmacist})

	// The VIEW floor keeps every module navigable; edit rights stay scoped.
	assert.Len(t, gate.NavigableModules(), len(types.Modules))

	view, ok := gate.DefaultView()
	require.True(t, ok)
	assert.Equal(t, types.ViewPharmacy, view)
}
