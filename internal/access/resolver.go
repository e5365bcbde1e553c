package access

import (
	"github.com/medicore/hms-access/pkg/types"
)

// Resolver maps (role, module) to the base access level and role to the
// default landing view. Both tables are immutable configuration data
// built once; resolution is pure, deterministic, and side-effect free.
//
// Lookups fail closed: a (role, module) pair absent from the table
// resolves to VIEW, the most restrictive level, never to an elevated
// one.
type Resolver struct {
	matrix       map[types.Role]map[types.Module]types.AccessLevel
	defaultViews map[types.Role]types.View
}

// NewResolver builds the static permission tables.
func NewResolver() *Resolver {
	return &Resolver{
		matrix: map[types.Role]map[types.Module]types.AccessLevel{
			types.RoleAdmin: {
				types.ModuleOPD:       types.LevelAdmin,
				types.ModuleIPD:       types.LevelAdmin,
				types.ModuleBeds:      types.LevelAdmin,
				types.ModuleBilling:   types.LevelAdmin,
				types.ModulePharmacy:  types.LevelAdmin,
				types.ModuleLab:       types.LevelAdmin,
				types.ModuleRadiology: types.LevelAdmin,
				types.ModuleHR:        types.LevelAdmin,
				types.ModuleReports:   types.LevelAdmin,
				types.ModuleSettings:  types.LevelAdmin,
			},
			types.RoleDoctor: {
				types.ModuleOPD:       types.LevelEdit,
				types.ModuleIPD:       types.LevelEdit,
				types.ModuleBeds:      types.LevelView,
				types.ModuleBilling:   types.LevelView,
				types.ModulePharmacy:  types.LevelView,
				types.ModuleLab:       types.LevelEdit,
				types.ModuleRadiology: types.LevelEdit,
				types.ModuleReports:   types.LevelView,
			},
			types.RolePharmacist: {
				types.ModulePharmacy: types.LevelEdit,
				types.ModuleOPD:      types.LevelView,
				types.ModuleIPD:      types.LevelView,
				types.ModuleReports:  types.LevelView,
			},
			types.RoleNurse: {
				types.ModuleIPD:      types.LevelEdit,
				types.ModuleBeds:     types.LevelEdit,
				types.ModuleOPD:      types.LevelView,
				types.ModulePharmacy: types.LevelView,
				types.ModuleLab:      types.LevelView,
			},
			types.RoleReceptionist: {
				types.ModuleOPD:     types.LevelEdit,
				types.ModuleBilling: types.LevelEdit,
				types.ModuleBeds:    types.LevelView,
				types.ModuleReports: types.LevelView,
			},
			types.RolePatient: {
				types.ModuleOPD:     types.LevelView,
				types.ModuleBilling: types.LevelView,
			},
			// Demo sessions see everything, change nothing.
			types.RoleDemo: {},
		},
		defaultViews: map[types.Role]types.View{
			types.RoleAdmin:        types.ViewDashboard,
			types.RoleDoctor:       types.ViewOPD,
			types.RolePharmacist:   types.ViewPharmacy,
			types.RoleNurse:        types.ViewIPD,
			types.RoleReceptionist: types.ViewBilling,
			types.RolePatient:      types.ViewPortal,
			types.RoleDemo:         types.ViewDashboard,
		},
	}
}

// AccessLevel returns the base access level a role holds for a module.
func (r *Resolver) AccessLevel(role types.Role, module types.Module) types.AccessLevel {
	modules, ok := r.matrix[role]
	if !ok {
		return types.LevelView
	}
	level, ok := modules[module]
	if !ok {
		return types.LevelView
	}
	return level
}

// DefaultView returns the landing view a role is routed to after login.
func (r *Resolver) DefaultView(role types.Role) types.View {
	if view, ok := r.defaultViews[role]; ok {
		return view
	}
	return types.ViewDashboard
}
