package models

import (
	"fmt"

	"gorm.io/gorm"
)

// MembershipRole is the role a user holds within a tenant workspace
type MembershipRole string

// Membership role constants
const (
	RoleOwner  MembershipRole = "owner"
	RoleMember MembershipRole = "member"
	RoleViewer MembershipRole = "viewer"
)

// Membership links a user to a tenant workspace. It backs the AccessGuard
// lookup; session management itself lives outside this core.
type Membership struct {
	gorm.Model
	TenantID uint           `json:"tenant_id" gorm:"not null;uniqueIndex:idx_tenant_user"`
	UserID   uint           `json:"user_id" gorm:"not null;uniqueIndex:idx_tenant_user"`
	Role     MembershipRole `json:"role" gorm:"not null"`
	APIToken string         `json:"-" gorm:"index"`
}

// Validate ensures that the membership data is valid
func (m *Membership) Validate() error {
	if err := ValidateTenantID(m.TenantID); err != nil {
		return err
	}
	if m.UserID == 0 {
		return fmt.Errorf("user id is required")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new membership
func (m *Membership) BeforeCreate(_ *gorm.DB) error {
	if m.Role == "" {
		m.Role = RoleMember
	}
	return m.Validate()
}

// CanMutate reports whether the role may start jobs and mutate records
func (m *Membership) CanMutate() bool {
	return m.Role == RoleOwner || m.Role == RoleMember
}
