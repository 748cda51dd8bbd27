package repos

import (
	"gorm.io/gorm"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
)

func (s *DBRepositoryTestSuite) TestImportTenantScoping() {
	tenantA := s.randomTenantID()
	tenantB := tenantA + 1
	imp := s.createTestImport(tenantA, 3)

	found, err := s.importRepo.GetByID(s.ctx, tenantA, imp.ID)
	s.Require().NoError(err)
	s.Equal(imp.ID, found.ID)
	s.NotEmpty(found.Reference)

	_, err = s.importRepo.GetByID(s.ctx, tenantB, imp.ID)
	s.Require().ErrorIs(err, gorm.ErrRecordNotFound)
}

func (s *DBRepositoryTestSuite) TestImportProgressAndFinalize() {
	tenantID := s.randomTenantID()
	imp := s.createTestImport(tenantID, 10)

	err := s.importRepo.UpdateProgress(s.ctx, imp.ID, 5, 5, 4, 1)
	s.Require().NoError(err)

	fresh, err := s.importRepo.GetByID(s.ctx, tenantID, imp.ID)
	s.Require().NoError(err)
	s.Equal(5, fresh.Cursor)
	s.Equal(5, fresh.ProcessedRows)
	s.Equal(4, fresh.MatchedRows)
	s.Equal(1, fresh.UnmatchedRows)

	totals := models.SettlementTotals{Revenue: 100, COGS: 40, Profit: 60, Margin: 60}
	err = s.importRepo.Finalize(s.ctx, imp.ID, models.ImportStatusCompleted, totals, "")
	s.Require().NoError(err)

	fresh, err = s.importRepo.GetByID(s.ctx, tenantID, imp.ID)
	s.Require().NoError(err)
	s.Equal(models.ImportStatusCompleted, fresh.Status)
	s.InDelta(100.0, fresh.TotalsCached.Revenue, 0.001)
	s.InDelta(60.0, fresh.TotalsCached.Profit, 0.001)
}

func (s *DBRepositoryTestSuite) TestRowIndexUniqueness() {
	tenantID := s.randomTenantID()
	imp := s.createTestImport(tenantID, 2)

	row := &models.SettlementRow{
		ImportID:    imp.ID,
		RowIndex:    0,
		TenantID:    tenantID,
		MatchStatus: models.MatchStatusUnmatchedOrder,
	}
	s.Require().NoError(s.rowRepo.Create(s.ctx, row))

	dup := &models.SettlementRow{
		ImportID:    imp.ID,
		RowIndex:    0,
		TenantID:    tenantID,
		MatchStatus: models.MatchStatusUnmatchedOrder,
	}
	err := s.rowRepo.Create(s.ctx, dup)
	s.Require().Error(err, "duplicate (import_id, row_index) must be rejected")
}

func (s *DBRepositoryTestSuite) TestExistingRowIndexes() {
	tenantID := s.randomTenantID()
	imp := s.createTestImport(tenantID, 5)

	for _, idx := range []int{0, 2, 4} {
		row := &models.SettlementRow{
			ImportID:    imp.ID,
			RowIndex:    idx,
			TenantID:    tenantID,
			MatchStatus: models.MatchStatusMatched,
		}
		s.Require().NoError(s.rowRepo.Create(s.ctx, row))
	}

	existing, err := s.rowRepo.ExistingRowIndexes(s.ctx, imp.ID, 0, 4)
	s.Require().NoError(err)
	s.True(existing[0])
	s.False(existing[1])
	s.True(existing[2])
	s.False(existing[4], "upper bound is exclusive")

	count, err := s.rowRepo.CountByImport(s.ctx, imp.ID)
	s.Require().NoError(err)
	s.EqualValues(3, count)
}

func (s *DBRepositoryTestSuite) TestListActiveSkipsDeletedRows() {
	tenantID := s.randomTenantID()
	imp := s.createTestImport(tenantID, 2)

	active := &models.SettlementRow{ImportID: imp.ID, RowIndex: 0, TenantID: tenantID, MatchStatus: models.MatchStatusMatched}
	deleted := &models.SettlementRow{ImportID: imp.ID, RowIndex: 1, TenantID: tenantID, MatchStatus: models.MatchStatusMatched, IsDeleted: true}
	s.Require().NoError(s.rowRepo.Create(s.ctx, active))
	s.Require().NoError(s.rowRepo.Create(s.ctx, deleted))

	rows, err := s.rowRepo.ListActiveByImport(s.ctx, imp.ID)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(active.ID, rows[0].ID)

	byTenant, err := s.rowRepo.ListActiveByTenant(s.ctx, tenantID)
	s.Require().NoError(err)
	s.Len(byTenant, 1)
}

func (s *DBRepositoryTestSuite) TestOrderSoftDelete() {
	tenantID := s.randomTenantID()
	order := s.createTestOrder(tenantID, "111-2223334-5556667", 42)

	s.Require().NoError(s.orderRepo.SoftDelete(s.ctx, tenantID, order.ID))

	active, err := s.orderRepo.ListActive(s.ctx, tenantID)
	s.Require().NoError(err)
	s.Empty(active)

	ids, err := s.orderRepo.ListIDs(s.ctx, tenantID)
	s.Require().NoError(err)
	s.Empty(ids)
}

func (s *DBRepositoryTestSuite) TestSKUResetStock() {
	tenantID := s.randomTenantID()
	sku := s.createTestSKU(tenantID, "WIDGET-1", 3.50)

	s.Require().NoError(s.skuRepo.ResetStock(s.ctx, tenantID, sku.ID))

	fresh, err := s.skuRepo.GetByID(s.ctx, tenantID, sku.ID)
	s.Require().NoError(err)
	s.Equal(0, fresh.Stock)

	err = s.skuRepo.ResetStock(s.ctx, tenantID+1, sku.ID)
	s.Require().ErrorIs(err, gorm.ErrRecordNotFound)
}

func (s *DBRepositoryTestSuite) TestMembershipGetByToken() {
	tenantID := s.randomTenantID()
	membership := &models.Membership{
		TenantID: tenantID,
		UserID:   7,
		Role:     models.RoleMember,
		APIToken: "tok-123",
	}
	s.Require().NoError(s.membershipRepo.Create(s.ctx, membership))

	found, err := s.membershipRepo.GetByToken(s.ctx, "tok-123", tenantID)
	s.Require().NoError(err)
	s.Equal(uint(7), found.UserID)

	// A valid token does not unlock another tenant.
	_, err = s.membershipRepo.GetByToken(s.ctx, "tok-123", tenantID+1)
	s.Require().ErrorIs(err, gorm.ErrRecordNotFound)
}
