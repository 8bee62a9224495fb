package models

import (
	"github.com/google/uuid"
)

type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleGymOwner UserRole = "gym_owner"
	RoleStaff    UserRole = "staff"
)

// UserInfo represents user information from JWT claims
type UserInfo struct {
	Subject string     `json:"sub"`
	Email   string     `json:"email"`
	Role    UserRole   `json:"role"`
	GymID   *uuid.UUID `json:"gym_id,omitempty"`
}

func (ui *UserInfo) IsAdmin() bool {
	return ui.Role == RoleAdmin
}

func (ui *UserInfo) IsGymOwner() bool {
	return ui.Role == RoleGymOwner
}

func (ui *UserInfo) CanManageGym(gymID uuid.UUID) bool {
	if ui.IsAdmin() {
		return true
	}
	return ui.IsGymOwner() && ui.GymID != nil && *ui.GymID == gymID
}

func (ui *UserInfo) CanAccessGym(gymID uuid.UUID) bool {
	if ui.IsAdmin() {
		return true
	}
	return ui.GymID != nil && *ui.GymID == gymID
}
