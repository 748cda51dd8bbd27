package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
)

func gormModel(id uint) gorm.Model {
	return gorm.Model{ID: id}
}

func testIndexes() *Indexes {
	orders := []models.Order{
		{Model: gormModel(1), TenantID: 1, AmazonOrderID: "123-4567890-1234567", TotalCost: 50},
		{Model: gormModel(2), TenantID: 1, AmazonOrderID: "123-4567890-7654321", TotalCost: 0},
		{Model: gormModel(3), TenantID: 1, AmazonOrderID: "123-4567890-0000003", TotalCost: 0},
		{Model: gormModel(4), TenantID: 1, AmazonOrderID: "123-4567890-0000004", TotalCost: 0},
		{Model: gormModel(9), TenantID: 1, AmazonOrderID: "123-4567890-0000009", TotalCost: 10, IsDeleted: true},
	}
	skus := []models.SKU{
		{Model: gormModel(10), TenantID: 1, Code: "WIDGET-1", CostPrice: 4},
		{Model: gormModel(11), TenantID: 1, Code: "WIDGET-2", CostPrice: 0},
	}
	lines := []models.OrderLine{
		// order 2: two lines, 2x10 + 1x10 (unit cost falls back to SKU cost for line 2)
		{Model: gormModel(20), TenantID: 1, OrderID: 2, SKUID: 10, Quantity: 2, UnitCost: 10},
		{Model: gormModel(21), TenantID: 1, OrderID: 2, SKUID: 10, Quantity: 1, UnitCost: 0},
		// order 4: lines exist but no cost anywhere
		{Model: gormModel(22), TenantID: 1, OrderID: 4, SKUID: 11, Quantity: 3, UnitCost: 0},
	}
	return BuildIndexes(orders, skus, lines)
}

func TestMatchResolvesNormalizedOrder(t *testing.T) {
	idx := testIndexes()

	// Whitespace and hyphen noise does not defeat the match.
	for _, raw := range []string{
		"123-4567890-1234567",
		"123 4567890 1234567",
		" 123-4567890-1234567 ",
	} {
		verdict := Match(raw, "WIDGET-1", idx)
		assert.Equal(t, models.MatchStatusMatched, verdict.Status, "input %q", raw)
		require.NotNil(t, verdict.MatchedOrderID)
		assert.Equal(t, uint(1), *verdict.MatchedOrderID)
	}
}

func TestMatchUnknownOrder(t *testing.T) {
	idx := testIndexes()
	verdict := Match("000-0000000-0000000", "WIDGET-1", idx)
	assert.Equal(t, models.MatchStatusUnmatchedOrder, verdict.Status)
	assert.Nil(t, verdict.MatchedOrderID)
	assert.NotEmpty(t, verdict.NotFoundReason)
}

func TestMatchKeepsOrderOnSKUMiss(t *testing.T) {
	idx := testIndexes()
	verdict := Match("123-4567890-1234567", "UNKNOWN-SKU", idx)
	assert.Equal(t, models.MatchStatusUnmatchedSKU, verdict.Status)
	require.NotNil(t, verdict.MatchedOrderID, "order link survives SKU resolution failure")
	assert.Equal(t, uint(1), *verdict.MatchedOrderID)
	assert.Nil(t, verdict.MatchedSKUID)
	assert.Equal(t, StrategyOrderOnly, verdict.Strategy)
	assert.Equal(t, ReasonSKUNotFound, verdict.NotFoundReason)
}

func TestMatchNormalizedSKUFallback(t *testing.T) {
	idx := testIndexes()
	verdict := Match("123-4567890-1234567", "widget-1 ", idx)
	assert.Equal(t, models.MatchStatusMatched, verdict.Status)
	assert.Equal(t, StrategyNormalizedSKU, verdict.Strategy)
	require.NotNil(t, verdict.MatchedSKUID)
	assert.Equal(t, uint(10), *verdict.MatchedSKUID)
}

func TestMatchSkipsDeletedOrders(t *testing.T) {
	idx := testIndexes()
	verdict := Match("123-4567890-0000009", "WIDGET-1", idx)
	assert.Equal(t, models.MatchStatusUnmatchedOrder, verdict.Status)
}

func TestComputeCOGSPriority(t *testing.T) {
	idx := testIndexes()

	// Order total wins even when lines would sum differently.
	withTotal := ComputeCOGS(idx.OrderByID(1), idx)
	assert.Equal(t, models.COGSSourceOrderTotal, withTotal.Source)
	assert.InDelta(t, 50.0, withTotal.Amount, 0.001)

	// Zero order total falls through to the line sum with SKU cost fallback:
	// 2x10 + 1x4 = 24.
	fromLines := ComputeCOGS(idx.OrderByID(2), idx)
	assert.Equal(t, models.COGSSourceOrderLines, fromLines.Source)
	assert.InDelta(t, 24.0, fromLines.Amount, 0.001)
}

func TestComputeCOGSMissingReasons(t *testing.T) {
	idx := testIndexes()

	noLines := ComputeCOGS(idx.OrderByID(3), idx)
	assert.Equal(t, models.COGSSourceMissing, noLines.Source)
	assert.Equal(t, ReasonNoOrderLines, noLines.Reason)

	noCost := ComputeCOGS(idx.OrderByID(4), idx)
	assert.Equal(t, models.COGSSourceMissing, noCost.Source)
	assert.Equal(t, ReasonSKUCostMissing, noCost.Reason)

	nilOrder := ComputeCOGS(nil, idx)
	assert.Equal(t, models.COGSSourceMissing, nilOrder.Source)
}

func TestAggregateTotals(t *testing.T) {
	idx := testIndexes()
	orderID1, orderID2 := uint(1), uint(2)
	rows := []models.SettlementRow{
		{Total: 100, MatchedOrderID: &orderID1},
		{Total: 50, MatchedOrderID: &orderID2},
		{Total: 25}, // unmatched contributes revenue only
		{Total: 999, IsDeleted: true},
	}

	totals := AggregateTotals(rows, idx)
	assert.InDelta(t, 175.0, totals.Revenue, 0.001)
	assert.InDelta(t, 74.0, totals.COGS, 0.001)
	assert.InDelta(t, 101.0, totals.Profit, 0.001)
	assert.InDelta(t, 101.0/175.0*100, totals.Margin, 0.001)
}
