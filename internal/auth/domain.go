package auth

import "time"

// Credential is the stored identity record for a principal. It is owned by
// the identity store; this package only reads it.
type Credential struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Roles        []string
	Active       bool
}

// Principal is the result of a successful authentication. The role list is
// ordered with the active role first. SessionID is the jti minted for this
// login; two logins for the same principal produce independent sessions.
type Principal struct {
	ID        string
	Roles     []string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ActiveRole returns the role the principal is currently operating as.
func (p *Principal) ActiveRole() string {
	if p == nil || len(p.Roles) == 0 {
		return ""
	}
	return p.Roles[0]
}
