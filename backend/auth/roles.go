package auth

import "warehouse-mro/backend/models"

// Roles, lowest to highest privilege.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
	RoleOwner = "owner"
)

func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin || role == RoleOwner
}

// CheckRoleChange decides whether actor may move target to newRole.
// otherOwners is the number of owner accounts excluding target; requiring it
// as an input keeps the decision pure over {actor, target, role, owner count}
// and directly unit-testable. The rules, in order:
//
//   - newRole must be a known role;
//   - an owner's role can only be changed by that owner itself;
//   - the sole owner cannot demote itself without a successor owner, so
//     the system never reaches zero owners;
//   - only an owner may assign the owner role.
func CheckRoleChange(actor, target *models.User, newRole string, otherOwners int64) error {
	if !ValidRole(newRole) {
		return ErrInvalidRole
	}
	if target.Role == RoleOwner && actor.ID != target.ID {
		return ErrOwnerProtected
	}
	if target.Role == RoleOwner && actor.ID == target.ID && newRole != RoleOwner && otherOwners < 1 {
		return ErrLastOwner
	}
	if newRole == RoleOwner && actor.Role != RoleOwner {
		return ErrOwnerAssignment
	}
	return nil
}
