package auth

import "gatehouse/internal/models"

type Policy int

const (
	RequireLogin Policy = iota
	RequireAdmin
)

type DenyReason string

const (
	DenyUnauthenticated DenyReason = "unauthenticated"
	DenyNotAdmin        DenyReason = "not_admin"
)

// Decision is the result of an authorization check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func Allowed() Decision { return Decision{Allowed: true} }

func Denied(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Authorize evaluates policy for the caller. A nil identity is anonymous.
func Authorize(id *models.Identity, policy Policy) Decision {
	if id == nil {
		return Denied(DenyUnauthenticated)
	}
	if policy == RequireAdmin && !id.IsAdmin {
		return Denied(DenyNotAdmin)
	}
	return Allowed()
}
