package application

import "context"

// PrivilegeAuthorizer grants edits to admins and to holders of the event
// management privilege.
type PrivilegeAuthorizer struct{}

// CanEdit implements Authorizer.
func (PrivilegeAuthorizer) CanEdit(_ context.Context, _ Event, principal Principal) bool {
	if principal.UserID == "" {
		return false
	}
	return principal.IsAdmin || principal.HasPrivilege(PrivilegeEventManagement)
}
