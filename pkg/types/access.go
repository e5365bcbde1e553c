package types

import (
	"fmt"
)

// Module identifies a functional area of the hospital system gated by
// the access-control core.
type Module string

const (
	ModuleOPD       Module = "opd"
	ModuleIPD       Module = "ipd"
	ModuleBeds      Module = "beds"
	ModuleBilling   Module = "billing"
	ModulePharmacy  Module = "pharmacy"
	ModuleLab       Module = "lab"
	ModuleRadiology Module = "radiology"
	ModuleHR        Module = "hr"
	ModuleReports   Module = "reports"
	ModuleSettings  Module = "settings"
)

// Modules lists every gated module in a stable order.
var Modules = []Module{
	ModuleOPD,
	ModuleIPD,
	ModuleBeds,
	ModuleBilling,
	ModulePharmacy,
	ModuleLab,
	ModuleRadiology,
	ModuleHR,
	ModuleReports,
	ModuleSettings,
}

// ParseModule validates a module identifier received over the wire.
func ParseModule(s string) (Module, error) {
	for _, m := range Modules {
		if string(m) == s {
			return m, nil
		}
	}
	return "", NewValidationError(ErrCodeUnknownModule, fmt.Sprintf("unknown module %q", s))
}

// AccessLevel is an ordered capability tier. Higher levels include every
// capability of the levels below them, so comparisons use ordering
// rather than set membership.
type AccessLevel int

const (
	LevelView AccessLevel = iota
	LevelEdit
	LevelAdmin
)

// String returns the wire name of the level.
func (l AccessLevel) String() string {
	switch l {
	case LevelView:
		return "view"
	case LevelEdit:
		return "edit"
	case LevelAdmin:
		return "admin"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// Satisfies reports whether a held level covers the required one.
func (l AccessLevel) Satisfies(required AccessLevel) bool {
	return l >= required
}

// ParseAccessLevel validates a level name received over the wire.
func ParseAccessLevel(s string) (AccessLevel, error) {
	switch s {
	case "view":
		return LevelView, nil
	case "edit":
		return LevelEdit, nil
	case "admin":
		return LevelAdmin, nil
	default:
		return 0, NewValidationError(ErrCodeUnknownLevel, fmt.Sprintf("unknown access level %q", s))
	}
}

// View names the landing screen a role is routed to after login.
type View string

const (
	ViewDashboard View = "dashboard"
	ViewOPD       View = "opd"
	ViewIPD       View = "ipd"
	ViewPharmacy  View = "pharmacy"
	ViewBilling   View = "billing"
	ViewPortal    View = "portal"
)
