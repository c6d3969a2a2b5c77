package models

import "time"

// User is an analyst or admin: the subject referenced by Session.AnalystID
// and TimelineEvent.AnalystID, and the account that the /auth routes
// register and log in and that pkg/auth issues tokens for.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// Principal is the authenticated caller context threaded through session and
// event-bus operations. It is what an external verify_access_token(token)
// predicate (spec §6) is assumed to produce.
type Principal struct {
	Subject string
	Role    UserRole
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
