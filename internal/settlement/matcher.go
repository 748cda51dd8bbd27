package settlement

import (
	"github.com/sellerdesk/sellerdesk/internal/db/models"
	"github.com/sellerdesk/sellerdesk/internal/normalize"
)

// Match strategy constants
const (
	// StrategyExactSKU means the order resolved and the SKU matched by exact code
	StrategyExactSKU = "exact_sku"
	// StrategyNormalizedSKU means the SKU matched only after normalization
	StrategyNormalizedSKU = "normalized_sku"
	// StrategyOrderOnly means the order resolved but the SKU did not
	StrategyOrderOnly = "order_only"
)

// Not-found reason constants, shared by ingestion, recompute, and audit
const (
	ReasonOrderNotFound  = "order not found after normalization"
	ReasonSKUNotFound    = "sku not resolved against tenant catalog"
	ReasonNoOrderLines   = "no order lines"
	ReasonSKUCostMissing = "SKU cost missing"
	ReasonCostMissing    = "order matched but cost missing everywhere"
)

// Indexes holds the precomputed lookup maps the matcher works against. They
// are built once per top-level operation, never per row.
type Indexes struct {
	ordersByNorm map[string]*models.Order
	ordersByID   map[uint]*models.Order
	skusByCode   map[string]*models.SKU
	skusByNorm   map[string]*models.SKU
	skusByID     map[uint]*models.SKU
	linesByOrder map[uint][]models.OrderLine
}

// BuildIndexes precomputes the matcher's lookup maps from a tenant's orders,
// SKUs, and order lines.
func BuildIndexes(orders []models.Order, skus []models.SKU, lines []models.OrderLine) *Indexes {
	idx := &Indexes{
		ordersByNorm: make(map[string]*models.Order, len(orders)),
		ordersByID:   make(map[uint]*models.Order, len(orders)),
		skusByCode:   make(map[string]*models.SKU, len(skus)),
		skusByNorm:   make(map[string]*models.SKU, len(skus)),
		skusByID:     make(map[uint]*models.SKU, len(skus)),
		linesByOrder: make(map[uint][]models.OrderLine),
	}
	for i := range orders {
		o := &orders[i]
		if o.IsDeleted {
			continue
		}
		idx.ordersByNorm[normalize.OrderID(o.AmazonOrderID)] = o
		idx.ordersByID[o.ID] = o
	}
	for i := range skus {
		s := &skus[i]
		idx.skusByCode[s.Code] = s
		idx.skusByNorm[normalize.SKU(s.Code)] = s
		idx.skusByID[s.ID] = s
	}
	for i := range lines {
		l := lines[i]
		idx.linesByOrder[l.OrderID] = append(idx.linesByOrder[l.OrderID], l)
	}
	return idx
}

// Order resolves a raw order id against the normalized index
func (idx *Indexes) Order(rawOrderID string) *models.Order {
	return idx.ordersByNorm[normalize.OrderID(rawOrderID)]
}

// OrderByID resolves an internal order id
func (idx *Indexes) OrderByID(id uint) *models.Order {
	return idx.ordersByID[id]
}

// Lines returns the order lines for an internal order id
func (idx *Indexes) Lines(orderID uint) []models.OrderLine {
	return idx.linesByOrder[orderID]
}

// MatchResult is the matcher's verdict for one settlement row
type MatchResult struct {
	Status         models.MatchStatus
	MatchedOrderID *uint
	MatchedSKUID   *uint
	Strategy       string
	NotFoundReason string
}

// Match resolves one settlement row against the indexes. The order pointer is
// retained even when SKU resolution fails: SKU mismatch degrades the status
// but never discards the order link.
func Match(rawOrderID, skuCode string, idx *Indexes) MatchResult {
	order := idx.Order(rawOrderID)
	if order == nil {
		return MatchResult{
			Status:         models.MatchStatusUnmatchedOrder,
			NotFoundReason: ReasonOrderNotFound,
		}
	}

	orderID := order.ID
	if sku, ok := idx.skusByCode[skuCode]; ok && skuCode != "" {
		skuID := sku.ID
		return MatchResult{
			Status:         models.MatchStatusMatched,
			MatchedOrderID: &orderID,
			MatchedSKUID:   &skuID,
			Strategy:       StrategyExactSKU,
		}
	}
	if sku, ok := idx.skusByNorm[normalize.SKU(skuCode)]; ok && skuCode != "" {
		skuID := sku.ID
		return MatchResult{
			Status:         models.MatchStatusMatched,
			MatchedOrderID: &orderID,
			MatchedSKUID:   &skuID,
			Strategy:       StrategyNormalizedSKU,
		}
	}
	return MatchResult{
		Status:         models.MatchStatusUnmatchedSKU,
		MatchedOrderID: &orderID,
		Strategy:       StrategyOrderOnly,
		NotFoundReason: ReasonSKUNotFound,
	}
}

// COGSResult is the outcome of cost attribution for one matched order
type COGSResult struct {
	Amount float64
	Source string
	Reason string
}

// ComputeCOGS attributes cost of goods sold to a matched order with a fixed
// source priority. This is the single source of truth for the formula:
// ingestion, recompute, and audit all call it.
//
//	(a) Order.TotalCost when positive
//	(b) sum of line quantity x unit cost, SKU cost price as line fallback
//	(c) missing, with a reason distinguishing the failure mode
func ComputeCOGS(order *models.Order, idx *Indexes) COGSResult {
	if order == nil {
		return COGSResult{Source: models.COGSSourceMissing, Reason: ReasonOrderNotFound}
	}
	if order.TotalCost > 0 {
		return COGSResult{Amount: order.TotalCost, Source: models.COGSSourceOrderTotal}
	}

	lines := idx.Lines(order.ID)
	if len(lines) == 0 {
		return COGSResult{Source: models.COGSSourceMissing, Reason: ReasonNoOrderLines}
	}

	var sum float64
	costSeen := false
	for _, line := range lines {
		unit := line.UnitCost
		if unit == 0 {
			if sku := idx.skusByID[line.SKUID]; sku != nil {
				unit = sku.CostPrice
			}
		}
		if unit != 0 {
			costSeen = true
		}
		sum += float64(line.Quantity) * unit
	}
	if sum > 0 {
		return COGSResult{Amount: sum, Source: models.COGSSourceOrderLines}
	}
	if !costSeen {
		return COGSResult{Source: models.COGSSourceMissing, Reason: ReasonSKUCostMissing}
	}
	return COGSResult{Source: models.COGSSourceMissing, Reason: ReasonCostMissing}
}

// AggregateTotals recomputes the aggregate KPIs from active settlement rows
// and their matched orders using the canonical COGS formula.
func AggregateTotals(rows []models.SettlementRow, idx *Indexes) models.SettlementTotals {
	var totals models.SettlementTotals
	for i := range rows {
		row := &rows[i]
		if row.IsDeleted {
			continue
		}
		totals.Revenue += row.Total
		if row.MatchedOrderID != nil {
			cogs := ComputeCOGS(idx.OrderByID(*row.MatchedOrderID), idx)
			totals.COGS += cogs.Amount
		}
	}
	totals.Profit = totals.Revenue - totals.COGS
	if totals.Revenue != 0 {
		totals.Margin = totals.Profit / totals.Revenue * 100
	}
	return totals
}
