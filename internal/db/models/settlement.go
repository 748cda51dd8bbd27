package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ImportStatus represents the lifecycle of one settlement report import
type ImportStatus string

// Import status constants
const (
	ImportStatusQueued              ImportStatus = "queued"
	ImportStatusProcessing          ImportStatus = "processing"
	ImportStatusCompleted           ImportStatus = "completed"
	ImportStatusCompletedWithErrors ImportStatus = "completed_with_errors"
	ImportStatusFailed              ImportStatus = "failed"
)

// IsTerminal reports whether the import reached a final status
func (s ImportStatus) IsTerminal() bool {
	switch s {
	case ImportStatusCompleted, ImportStatusCompletedWithErrors, ImportStatusFailed:
		return true
	}
	return false
}

// MatchStatus represents how a settlement row resolved against internal records
type MatchStatus string

// Match status constants
const (
	// MatchStatusMatched indicates both the order and the SKU resolved
	MatchStatusMatched MatchStatus = "matched"
	// MatchStatusUnmatchedOrder indicates no order was found after normalization
	MatchStatusUnmatchedOrder MatchStatus = "unmatched_order"
	// MatchStatusUnmatchedSKU indicates the order resolved but the SKU did not.
	// The order pointer is retained: orders are the authoritative link.
	MatchStatusUnmatchedSKU MatchStatus = "unmatched_sku"
)

// COGS source constants, in priority order
const (
	// COGSSourceOrderTotal means Order.TotalCost was used
	COGSSourceOrderTotal = "ORDER_TOTAL"
	// COGSSourceOrderLines means the order lines (with SKU cost fallback) were summed
	COGSSourceOrderLines = "ORDER_LINES_SKU_COST"
	// COGSSourceMissing means no cost source produced a positive value
	COGSSourceMissing = "MISSING"
)

// SettlementTotals is the cached aggregate written when an import finalizes
type SettlementTotals struct {
	Revenue float64 `json:"revenue"`
	COGS    float64 `json:"cogs"`
	Profit  float64 `json:"profit"`
	Margin  float64 `json:"margin"`
}

// ParseError records one rejected line from phase A
type ParseError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// StagedRow is one parsed settlement line staged by phase A for chunked
// processing in phase B. The row index is the idempotency key.
type StagedRow struct {
	RowIndex int       `json:"row_index"`
	PostedAt time.Time `json:"posted_at"`
	OrderID  string    `json:"order_id"`
	SKU      string    `json:"sku"`
	Type     string    `json:"type"`
	Quantity int       `json:"quantity"`
	Revenue  float64   `json:"revenue"`
	Fees     float64   `json:"fees"`
	Total    float64   `json:"total"`
}

// SettlementImport represents one uploaded settlement report
type SettlementImport struct {
	gorm.Model
	TenantID      uint             `json:"tenant_id" gorm:"not null;index"`
	Reference     string           `json:"reference" gorm:"not null;uniqueIndex"`
	FileName      string           `json:"file_name" gorm:"not null"`
	Status        ImportStatus     `json:"status" gorm:"not null;index"`
	MonthKey      string           `json:"month_key" gorm:"index"`
	TotalRows     int              `json:"total_rows" gorm:"not null;default:0"`
	ProcessedRows int              `json:"processed_rows" gorm:"not null;default:0"`
	MatchedRows   int              `json:"matched_rows" gorm:"not null;default:0"`
	UnmatchedRows int              `json:"unmatched_rows" gorm:"not null;default:0"`
	Cursor        int              `json:"cursor" gorm:"not null;default:0"`
	ChunkSize     int              `json:"chunk_size" gorm:"not null;default:50"`
	StagedRows    []StagedRow      `json:"-" gorm:"serializer:json"`
	TotalsCached  SettlementTotals `json:"totals_cached" gorm:"serializer:json;column:totals_cached_json"`
	ParseErrors   []ParseError     `json:"parse_errors,omitempty" gorm:"serializer:json"`
	Error         string           `json:"error,omitempty" gorm:"type:text"`
}

// Validate ensures that the import data is valid
func (i *SettlementImport) Validate() error {
	if err := ValidateTenantID(i.TenantID); err != nil {
		return err
	}
	if i.FileName == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new import
func (i *SettlementImport) BeforeCreate(_ *gorm.DB) error {
	if i.Status == "" {
		i.Status = ImportStatusQueued
	}
	if i.Reference == "" {
		i.Reference = uuid.NewString()
	}
	return i.Validate()
}

// SettlementRow is one parsed settlement transaction line. It is the
// authoritative record for match state; no secondary table is ever read for
// match decisions.
type SettlementRow struct {
	gorm.Model
	ImportID          uint        `json:"import_id" gorm:"not null;uniqueIndex:idx_import_row"`
	RowIndex          int         `json:"row_index" gorm:"not null;uniqueIndex:idx_import_row"`
	TenantID          uint        `json:"tenant_id" gorm:"not null;index"`
	PostedAt          time.Time   `json:"posted_at"`
	Type              string      `json:"type"`
	RawOrderID        string      `json:"raw_order_id"`
	NormalizedOrderID string      `json:"normalized_order_id" gorm:"index"`
	SKU               string      `json:"sku"`
	Quantity          int         `json:"quantity"`
	Revenue           float64     `json:"revenue"`
	Fees              float64     `json:"fees"`
	Total             float64     `json:"total"`
	COGS              float64     `json:"cogs"`
	COGSSource        string      `json:"cogs_source"`
	MatchStatus       MatchStatus `json:"match_status" gorm:"index"`
	MatchedOrderID    *uint       `json:"matched_order_id,omitempty" gorm:"index"`
	MatchedSKUID      *uint       `json:"matched_sku_id,omitempty"`
	MatchStrategy     string      `json:"match_strategy,omitempty"`
	NotFoundReason    string      `json:"not_found_reason,omitempty"`
	IsDeleted         bool        `json:"is_deleted" gorm:"not null;default:false;index"`
}
