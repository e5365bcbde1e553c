package types

import (
	"fmt"
	"time"
)

// Role represents the staff roles recognised by the access-control core.
// The set is closed; the backend owns role assignment.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleDoctor       Role = "doctor"
	RolePharmacist   Role = "pharmacist"
	RoleNurse        Role = "nurse"
	RoleReceptionist Role = "receptionist"
	RolePatient      Role = "patient"
	RoleDemo         Role = "demo"
)

// Roles lists every known role in a stable order.
var Roles = []Role{
	RoleAdmin,
	RoleDoctor,
	RolePharmacist,
	RoleNurse,
	RoleReceptionist,
	RolePatient,
	RoleDemo,
}

// ParseRole validates a role identifier received over the wire.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", NewValidationError(ErrCodeUnknownRole, fmt.Sprintf("unknown role %q", s))
}

// User is a read-only projection of the authenticated identity, owned by
// the authentication backend and held only for the session's lifetime.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	EmployeeID string `json:"employee_id,omitempty"`
}

// Credentials carries a login request to the auth backend.
type Credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Session is the authenticated state held by the session store.
type Session struct {
	User     User      `json:"user"`
	Token    string    `json:"-"`
	Demo     bool      `json:"demo"`
	IssuedAt time.Time `json:"issued_at"`
}

// OverridePhase names a state of the emergency override lifecycle.
type OverridePhase string

const (
	OverrideInactive          OverridePhase = "inactive"
	OverridePendingActivation OverridePhase = "pending_activation"
	OverrideActive            OverridePhase = "active"
	OverrideExpired           OverridePhase = "expired"
	OverrideDeactivated       OverridePhase = "deactivated"
)

// OverrideState is a snapshot of an emergency override. It is created on
// activation, mutated only by the override controller, and reset to the
// zero value on expiry or manual termination. It is never persisted: a
// process restart must not resurrect an in-progress override.
type OverrideState struct {
	Active           bool      `json:"active"`
	Reason           string    `json:"reason,omitempty"`
	ActivatedBy      string    `json:"activated_by,omitempty"`
	ActivatedAt      time.Time `json:"activated_at,omitempty"`
	ExpiresAt        time.Time `json:"expires_at,omitempty"`
	RemainingSeconds int       `json:"remaining_seconds"`
}
