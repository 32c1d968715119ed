// Package policy holds the authorization decisions for the Action Hub.
// Everything here is pure: no I/O, no blocking.
package policy

import (
	"slices"

	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/apperr"
	"github.com/lalith-99/disruptionhub/internal/models"
)

type Operation string

const (
	OpViewActionHub Operation = "action_hub.view"
	OpViewLogs      Operation = "action_hub.view_logs"
	OpFlag          Operation = "alert.flag"
	OpFollow        Operation = "alert.follow"
	OpUpdateStatus  Operation = "action_hub.update_status"
	OpAddNote       Operation = "action_hub.add_note"
	OpAddGuests     Operation = "action_hub.add_guests"
	OpSetTab        Operation = "action_hub.set_tab"
	OpNotifyGuests  Operation = "action_hub.notify_guests"
	OpNotifyTeam    Operation = "action_hub.notify_team"
)

type rule struct {
	roles   []models.Role
	premium bool
}

var (
	allRoles = []models.Role{models.RoleUser, models.RoleAdmin, models.RoleManager, models.RoleViewer, models.RoleEditor}
	writers  = []models.Role{models.RoleUser, models.RoleAdmin, models.RoleManager, models.RoleEditor}
)

// ElevatedRoles bypass the ownership check on Action Items.
var ElevatedRoles = []models.Role{models.RoleAdmin, models.RoleManager}

var table = map[Operation]rule{
	OpViewActionHub: {roles: allRoles},
	OpViewLogs:      {roles: allRoles},
	OpFlag:          {roles: writers},
	OpFollow:        {roles: writers},
	OpUpdateStatus:  {roles: writers},
	OpAddNote:       {roles: writers},
	OpAddGuests:     {roles: writers},
	OpSetTab:        {roles: allRoles},
	OpNotifyGuests:  {roles: writers},
	OpNotifyTeam:    {roles: []models.Role{models.RoleUser, models.RoleAdmin, models.RoleManager}, premium: true},
}

// AllowedRoles returns the role set for op. Unknown operations allow nobody.
func AllowedRoles(op Operation) []models.Role {
	return slices.Clone(table[op].roles)
}

// Authorize applies the role and premium rules registered for op.
func Authorize(id *models.Identity, op Operation) error {
	r, ok := table[op]
	if !ok {
		return apperr.Forbidden(apperr.ReasonRoleInsufficient, nil, effectiveRole(id))
	}
	if err := RequireRole(id, r.roles...); err != nil {
		return err
	}
	if r.premium {
		return RequirePremium(id)
	}
	return nil
}

// RequireRole checks the effective role against the allowed set.
func RequireRole(id *models.Identity, allowed ...models.Role) error {
	role := effectiveRole(id)
	if id == nil || !slices.Contains(allowed, role) {
		return apperr.Forbidden(apperr.ReasonRoleInsufficient, allowed, role)
	}
	return nil
}

// RequirePremium looks at the primary account's flag; collaborators inherit it.
func RequirePremium(id *models.Identity) error {
	if id == nil || !id.Premium {
		return apperr.Forbidden(apperr.ReasonPremiumRequired, nil, effectiveRole(id))
	}
	return nil
}

// RequireOwnership passes when ownerID is the identity's primary account or
// the effective role is elevated.
func RequireOwnership(id *models.Identity, ownerID uuid.UUID) error {
	if id == nil {
		return apperr.Forbidden(apperr.ReasonNotOwner, nil, "")
	}
	if id.AccountID == ownerID || IsElevated(id) {
		return nil
	}
	return apperr.Forbidden(apperr.ReasonNotOwner, ElevatedRoles, id.EffectiveRole())
}

func IsElevated(id *models.Identity) bool {
	return id != nil && slices.Contains(ElevatedRoles, id.EffectiveRole())
}

func effectiveRole(id *models.Identity) models.Role {
	if id == nil {
		return ""
	}
	return id.EffectiveRole()
}
