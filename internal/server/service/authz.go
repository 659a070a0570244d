package service

import "confhub/internal/types"

// requireRole checks that the caller has any project role
func requireRole(identity types.Identity) error {
	if identity.Email == "" || !identity.Role.Valid() {
		return types.Forbidden("a project role is required")
	}
	return nil
}

// requireAdmin checks that the caller owns or administers the project
func requireAdmin(identity types.Identity) error {
	if err := requireRole(identity); err != nil {
		return err
	}
	if !identity.Role.IsAdmin() {
		return types.Forbidden("only project owners and admins can do this")
	}
	return nil
}

// requireWriter checks that the caller may create configs and proposals
func requireWriter(identity types.Identity) error {
	if err := requireRole(identity); err != nil {
		return err
	}
	if !identity.Role.CanWrite() {
		return types.Forbidden("viewers cannot change configs")
	}
	return nil
}

// canEdit reports whether the caller may change the config's contents
func canEdit(identity types.Identity, cfg *types.Config) bool {
	return identity.Role.IsAdmin() || cfg.IsEditor(identity.Email)
}

// canManageMembers reports whether the caller may change maintainers and editors
func canManageMembers(identity types.Identity, cfg *types.Config) bool {
	return identity.Role.IsAdmin() || cfg.IsMaintainer(identity.Email)
}

// authorizeEdit checks a direct edit or restore. Projects that require
// proposals only accept member list changes directly.
func authorizeEdit(identity types.Identity, project *types.Project, cfg *types.Config, contentChanged, membersChanged bool) error {
	if err := requireRole(identity); err != nil {
		return err
	}
	if contentChanged {
		if !canEdit(identity, cfg) {
			return types.Forbidden("you are not allowed to edit config %q", cfg.Name)
		}
		if project.RequireProposals {
			return types.Forbidden("project %q requires changes to go through proposals", project.Name)
		}
	}
	if membersChanged && !canManageMembers(identity, cfg) {
		return types.Forbidden("only maintainers can change the members of config %q", cfg.Name)
	}
	return nil
}

// authorizeApprove checks a proposal approval
func authorizeApprove(identity types.Identity, project *types.Project, cfg *types.Config, proposal *types.Proposal) error {
	if err := requireRole(identity); err != nil {
		return err
	}
	if !canEdit(identity, cfg) {
		return types.Forbidden("you are not allowed to approve proposals for config %q", cfg.Name)
	}
	if proposal.AuthorEmail == identity.Email && !project.AllowSelfApprovals {
		return types.Forbidden("you cannot approve your own proposal")
	}
	return nil
}

// authorizeReject checks a rejection. Authors may withdraw their own proposals.
func authorizeReject(identity types.Identity, cfg *types.Config, proposal *types.Proposal) error {
	if err := requireRole(identity); err != nil {
		return err
	}
	if canEdit(identity, cfg) || proposal.AuthorEmail == identity.Email {
		return nil
	}
	return types.Forbidden("you are not allowed to reject proposals for config %q", cfg.Name)
}
