package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"warehouse-mro/backend/auth"
	"warehouse-mro/backend/database"
	"warehouse-mro/backend/models"
	"warehouse-mro/frontend/templates"
)

func (h *Auth) RolesPage(w http.ResponseWriter, r *http.Request) {
	var users []models.User
	if err := h.DB.Order("username ASC").Find(&users).Error; err != nil {
		slog.Error("could not list users", "source", "roles", "error", err.Error())
		storageFailure(w, r, "/profile")
		return
	}
	templates.RolesList(users, popFlashes(w, r)).Render(r.Context(), w)
}

// ChangeRole applies a role change after the guard approves it. Guard and
// write run in one transaction so the owner count the decision saw is the
// one the write commits against.
func (h *Auth) ChangeRole(w http.ResponseWriter, r *http.Request) {
	actor := h.CurrentUser(r)
	if actor == nil {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}

	targetID, err := strconv.ParseUint(r.FormValue("user_id"), 10, 32)
	if err != nil {
		flashRedirect(w, r, "danger", "Invalid user.", "/roles")
		return
	}
	newRole := r.FormValue("role")

	var oldRole string
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		target, err := database.FindUserByID(tx, uint(targetID))
		if err != nil {
			return err
		}
		otherOwners, err := database.CountOwnersExcluding(tx, target.ID)
		if err != nil {
			return err
		}
		if err := auth.CheckRoleChange(actor, target, newRole, otherOwners); err != nil {
			return err
		}
		oldRole = target.Role
		target.Role = newRole
		return database.SaveUser(tx, target)
	})

	switch {
	case err == nil:
		slog.Info("role updated", "source", "roles", "user_id", actor.ID,
			"target_id", targetID, "old_role", oldRole, "new_role", newRole)
		flashRedirect(w, r, "success", "Role updated.", "/roles")
	case errors.Is(err, auth.ErrInvalidRole):
		flashRedirect(w, r, "danger", "Invalid role.", "/roles")
	case errors.Is(err, auth.ErrOwnerProtected):
		flashRedirect(w, r, "danger", "You cannot change the owner's role.", "/roles")
	case errors.Is(err, auth.ErrLastOwner):
		flashRedirect(w, r, "danger", "At least one owner must remain. Promote a successor first.", "/roles")
	case errors.Is(err, auth.ErrOwnerAssignment):
		flashRedirect(w, r, "danger", "Only an owner may assign the owner role.", "/roles")
	case errors.Is(err, gorm.ErrRecordNotFound):
		flashRedirect(w, r, "danger", "User not found.", "/roles")
	default:
		slog.Error("role change failed", "source", "roles", "user_id", actor.ID,
			"target_id", targetID, "error", err.Error())
		storageFailure(w, r, "/roles")
	}
}
