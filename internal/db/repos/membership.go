package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
)

// MembershipRepository handles database operations for tenant memberships
type MembershipRepository struct {
	store[models.Membership]
}

// NewMembershipRepository creates a new instance of MembershipRepository
func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{store[models.Membership]{db: db}}
}

// GetByToken resolves an API token to a membership within a tenant
func (r *MembershipRepository) GetByToken(ctx context.Context, token string, tenantID uint) (*models.Membership, error) {
	var membership models.Membership
	err := r.db.WithContext(ctx).
		Where("api_token = ? AND tenant_id = ?", token, tenantID).
		First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}
