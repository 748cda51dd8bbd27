// Package models contains the database models for the order-management core.
package models

import "fmt"

// DefaultLimit is the default number of records returned by list queries
const DefaultLimit = 100

// ListOptions represents pagination and filtering options for list operations
type ListOptions struct {
	Limit          int
	Offset         int
	IncludeDeleted bool
}

// ValidateTenantID ensures a tenant identifier has been provided explicitly.
// There is no ambient "current tenant": every query must carry one.
func ValidateTenantID(tenantID uint) error {
	if tenantID == 0 {
		return fmt.Errorf("tenant id is required")
	}
	return nil
}
