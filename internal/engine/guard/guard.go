package guard

import (
	"fmt"
	"strings"

	"trackline/internal/domain"
)

// ForbiddenError names the specific authority the principal is missing.
// It is never downgraded to a silent success or a generic failure.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

// UnauthenticatedError indicates a missing or unresolved credential.
type UnauthenticatedError struct{}

func (UnauthenticatedError) Error() string { return "authentication required" }

// CheckTenant enforces multi-tenant isolation: the acting principal's
// organization must match the resource's organization unless the principal
// holds platform-wide authority.
func CheckTenant(p domain.Principal, resourceOrgID string) error {
	if p.UserID == "" {
		return UnauthenticatedError{}
	}
	if p.Role == domain.RolePlatformAdmin {
		return nil
	}
	if p.OrgID == "" || p.OrgID != resourceOrgID {
		return ForbiddenError{Reason: "resource belongs to a different organization"}
	}
	return nil
}

// CanSubmitEvidence rejects read-only principals.
func CanSubmitEvidence(role domain.Role) bool {
	return role != domain.RoleClientViewer && domain.ValidRole(role)
}

// CanDecideEvidence applies the approval authority rule, including the
// criticality escalation: high-criticality units require program owner or
// platform admin, a workstream lead is not enough.
func CanDecideEvidence(role domain.Role, highCriticality bool) bool {
	switch role {
	case domain.RolePlatformAdmin, domain.RoleProgramOwner:
		return true
	case domain.RoleWorkstreamLead:
		return !highCriticality
	default:
		return false
	}
}

// CanConfirmBlock reports whether the role may set a unit blocked directly.
// Lesser roles may only propose a block.
func CanConfirmBlock(role domain.Role) bool {
	switch role {
	case domain.RolePlatformAdmin, domain.RoleProgramOwner, domain.RoleWorkstreamLead:
		return true
	}
	return false
}

// CanUnblock is stricter than CanConfirmBlock: clearing a block re-opens
// automatic escalation, so it stays with owners and admins.
func CanUnblock(role domain.Role) bool {
	return role == domain.RolePlatformAdmin || role == domain.RoleProgramOwner
}

// CanConfirmUnit reports whether the role may ratify a contributor-created unit.
func CanConfirmUnit(role domain.Role) bool {
	return CanConfirmBlock(role)
}

// CanCreateUnit excludes read-only viewers.
func CanCreateUnit(role domain.Role) bool {
	return role != domain.RoleClientViewer && domain.ValidRole(role)
}

// CanArchiveUnit restricts archival to owners and admins.
func CanArchiveUnit(role domain.Role) bool {
	return role == domain.RolePlatformAdmin || role == domain.RoleProgramOwner
}

// CanResolveEscalation mirrors block-confirmation authority.
func CanResolveEscalation(role domain.Role) bool {
	return CanConfirmBlock(role)
}

// SameActor matches an acting principal against an identity by id or email.
// Email comparison is case-insensitive; the separation-of-duties check uses
// this so an uploader cannot approve their own evidence under an alias actor id.
func SameActor(p domain.Principal, actorID, email string) bool {
	if p.UserID != "" && p.UserID == actorID {
		return true
	}
	if p.Email != "" && email != "" && strings.EqualFold(p.Email, email) {
		return true
	}
	return false
}
