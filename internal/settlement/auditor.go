package settlement

import (
	"context"
	"fmt"
	"math"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
	"github.com/sellerdesk/sellerdesk/internal/db/repos"
	"github.com/sellerdesk/sellerdesk/internal/metrics"
)

// Audit issue codes
const (
	IssueRowsMismatch     = "ROWS_MISMATCH"
	IssueKPIMismatch      = "KPI_MISMATCH"
	IssueZeroKPIsWithData = "ZERO_KPIS_WITH_DATA"
)

// Audit statuses
const (
	AuditHealthy     = "HEALTHY"
	AuditIssuesFound = "ISSUES_FOUND"
)

// kpiTolerance is the absolute money tolerance for cached-vs-recomputed KPIs
const kpiTolerance = 0.01

// Issue is one finding from an integrity audit
type Issue struct {
	Code        string `json:"code"`
	Severity    string `json:"severity"`
	ImportID    uint   `json:"import_id"`
	Message     string `json:"message"`
	Remediation string `json:"remediation"`
}

// Report is the outcome of an integrity audit. The audit is read-only; acting
// on findings is left to the rebuild and recompute operations it points at.
type Report struct {
	TenantID       uint    `json:"tenant_id"`
	Status         string  `json:"status"`
	ImportsChecked int     `json:"imports_checked"`
	Issues         []Issue `json:"issues"`
}

// Auditor cross-checks cached import state against recomputed reality
type Auditor struct {
	imports *repos.SettlementImportRepository
	rows    *repos.SettlementRowRepository
	orders  *repos.OrderRepository
	skus    *repos.SKURepository
}

// NewAuditor creates an integrity auditor
func NewAuditor(imports *repos.SettlementImportRepository, rows *repos.SettlementRowRepository, orders *repos.OrderRepository, skus *repos.SKURepository) *Auditor {
	return &Auditor{imports: imports, rows: rows, orders: orders, skus: skus}
}

// Audit checks one import, or every terminal import of the tenant when
// importID is nil. It writes nothing.
func (a *Auditor) Audit(ctx context.Context, tenantID uint, importID *uint) (*Report, error) {
	var imports []models.SettlementImport
	if importID != nil {
		imp, err := a.imports.GetByID(ctx, tenantID, *importID)
		if err != nil {
			return nil, fmt.Errorf("settlement import %d: %w", *importID, err)
		}
		imports = append(imports, *imp)
	} else {
		all, err := a.imports.ListByTenant(ctx, tenantID, nil)
		if err != nil {
			return nil, err
		}
		for _, imp := range all {
			if imp.Status.IsTerminal() {
				imports = append(imports, imp)
			}
		}
	}

	idx, err := loadIndexes(ctx, tenantID, a.orders, a.skus)
	if err != nil {
		return nil, err
	}

	report := &Report{TenantID: tenantID, Status: AuditHealthy, Issues: []Issue{}}
	for i := range imports {
		issues, err := a.auditImport(ctx, &imports[i], idx)
		if err != nil {
			return nil, err
		}
		report.ImportsChecked++
		report.Issues = append(report.Issues, issues...)
	}
	if len(report.Issues) > 0 {
		report.Status = AuditIssuesFound
	}
	metrics.AuditsRun.WithLabelValues(report.Status).Inc()
	return report, nil
}

func (a *Auditor) auditImport(ctx context.Context, imp *models.SettlementImport, idx *Indexes) ([]Issue, error) {
	var issues []Issue

	count, err := a.rows.CountByImport(ctx, imp.ID)
	if err != nil {
		return nil, err
	}
	if int(count) != imp.TotalRows {
		issues = append(issues, Issue{
			Code:        IssueRowsMismatch,
			Severity:    "error",
			ImportID:    imp.ID,
			Message:     fmt.Sprintf("import declares %d rows but %d are materialized", imp.TotalRows, count),
			Remediation: "run a rebuild for this import to re-materialize missing rows",
		})
	}

	rows, err := a.rows.ListActiveByImport(ctx, imp.ID)
	if err != nil {
		return nil, err
	}
	recomputed := AggregateTotals(rows, idx)
	cached := imp.TotalsCached

	if len(rows) > 0 && cached.Revenue == 0 && cached.COGS == 0 && cached.Profit == 0 {
		issues = append(issues, Issue{
			Code:        IssueZeroKPIsWithData,
			Severity:    "error",
			ImportID:    imp.ID,
			Message:     fmt.Sprintf("cached KPIs are all zero while %d active rows exist", len(rows)),
			Remediation: "run a COGS recompute to refresh the cached totals",
		})
		return issues, nil
	}

	for _, kpi := range []struct {
		name             string
		cached, expected float64
	}{
		{"revenue", cached.Revenue, recomputed.Revenue},
		{"cogs", cached.COGS, recomputed.COGS},
		{"profit", cached.Profit, recomputed.Profit},
	} {
		if math.Abs(kpi.cached-kpi.expected) > kpiTolerance {
			issues = append(issues, Issue{
				Code:        IssueKPIMismatch,
				Severity:    "warning",
				ImportID:    imp.ID,
				Message:     fmt.Sprintf("cached %s %.2f differs from recomputed %.2f", kpi.name, kpi.cached, kpi.expected),
				Remediation: "run a COGS recompute to refresh the cached totals",
			})
		}
	}
	return issues, nil
}
