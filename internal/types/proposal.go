package types

import (
	"time"

	"confhub/internal/value"
)

// ProposalStatus represents the lifecycle state of a proposal
type ProposalStatus string

const (
	ProposalStatusPending    ProposalStatus = "pending"
	ProposalStatusApproved   ProposalStatus = "approved"
	ProposalStatusRejected   ProposalStatus = "rejected"
	ProposalStatusSuperseded ProposalStatus = "superseded"
)

// Proposal represents a pending reviewable change to a config.
// Each proposed field is set only when it differs from the base version.
type Proposal struct {
	ID                  string         `json:"id"`
	ConfigID            string         `json:"config_id"`
	BaseVersion         int64          `json:"base_version"`
	ProposedValue       *value.Value   `json:"proposed_value,omitempty"`
	ProposedDescription *string        `json:"proposed_description,omitempty"`
	ProposedSchema      *value.Value   `json:"proposed_schema,omitempty"`
	ProposedOverrides   *[]Override    `json:"proposed_overrides,omitempty"`
	Message             string         `json:"message,omitempty"`
	AuthorEmail         string         `json:"author_email"`
	Status              ProposalStatus `json:"status"`
	ReviewerEmail       string         `json:"reviewer_email,omitempty"`
	RejectionReason     string         `json:"rejection_reason,omitempty"`
	AppliedVersion      int64          `json:"applied_version,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	ReviewedAt          *time.Time     `json:"reviewed_at,omitempty"`
}

// IsClosed reports whether the proposal was already reviewed or superseded
func (p *Proposal) IsClosed() bool {
	return p.Status != ProposalStatusPending
}
