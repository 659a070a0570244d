package types

import "time"

// Project holds the review policy shared by all configs of a project
type Project struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	RequireProposals   bool      `json:"require_proposals"`
	AllowSelfApprovals bool      `json:"allow_self_approvals"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ProjectRole represents the caller's role within a project
type ProjectRole string

const (
	RoleOwner  ProjectRole = "owner"
	RoleAdmin  ProjectRole = "admin"
	RoleMember ProjectRole = "member"
	RoleViewer ProjectRole = "viewer"
)

// Valid reports whether r is a known role
func (r ProjectRole) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// IsAdmin reports whether r manages the whole project
func (r ProjectRole) IsAdmin() bool {
	return r == RoleOwner || r == RoleAdmin
}

// CanWrite reports whether r may create configs and proposals
func (r ProjectRole) CanWrite() bool {
	return r.IsAdmin() || r == RoleMember
}

// Identity is an already authenticated caller together with its project role
type Identity struct {
	Email string      `json:"email"`
	Role  ProjectRole `json:"role"`
}
