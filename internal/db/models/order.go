package models

import (
	"gorm.io/gorm"
)

// Order is consumed read-mostly by the matching engine. AmazonOrderID is the
// external identifier settlement rows resolve against.
type Order struct {
	gorm.Model
	TenantID      uint    `json:"tenant_id" gorm:"not null;index"`
	AmazonOrderID string  `json:"amazon_order_id" gorm:"not null;index"`
	TotalCost     float64 `json:"total_cost"`
	NetRevenue    float64 `json:"net_revenue"`
	IsDeleted     bool    `json:"is_deleted" gorm:"not null;default:false;index"`
}

// OrderLine carries per-line cost data used as the COGS fallback when the
// order has no total cost.
type OrderLine struct {
	gorm.Model
	TenantID uint    `json:"tenant_id" gorm:"not null;index"`
	OrderID  uint    `json:"order_id" gorm:"not null;index"`
	SKUID    uint    `json:"sku_id" gorm:"index"`
	Quantity int     `json:"quantity"`
	UnitCost float64 `json:"unit_cost"`
}

// SKU is a tenant's stock keeping unit with its catalog cost price.
type SKU struct {
	gorm.Model
	TenantID  uint    `json:"tenant_id" gorm:"not null;index"`
	Code      string  `json:"code" gorm:"not null;index"`
	CostPrice float64 `json:"cost_price"`
	Stock     int     `json:"stock"`
}
