// Package settlement implements the settlement reconciliation pipeline:
// report parsing (phase A), chunked idempotent row processing (phase B), the
// matching engine, repair operations, and the integrity auditor.
package settlement

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
	"github.com/sellerdesk/sellerdesk/internal/normalize"
)

// headerScanLimit bounds the header search; settlement exports carry at most
// a short preamble before the column row.
const headerScanLimit = 20

// canonical column names
const (
	colPostedAt = "posted_at"
	colOrderID  = "order_id"
	colSKU      = "sku"
	colType     = "type"
	colQuantity = "quantity"
	colRevenue  = "revenue"
	colFees     = "fees"
	colTotal    = "total"
)

// headerAliases maps normalized header cells to canonical column names.
// Marketplace exports disagree on naming between regions and versions.
var headerAliases = map[string]string{
	"date time":     colPostedAt,
	"date":          colPostedAt,
	"posted date":   colPostedAt,
	"purchase date": colPostedAt,

	"order id":        colOrderID,
	"orderid":         colOrderID,
	"amazon order id": colOrderID,
	"order":           colOrderID,

	"sku":          colSKU,
	"msku":         colSKU,
	"merchant sku": colSKU,
	"seller sku":   colSKU,

	"type":             colType,
	"transaction type": colType,

	"quantity": colQuantity,
	"qty":      colQuantity,

	"product sales": colRevenue,
	"revenue":       colRevenue,

	"selling fees": colFees,
	"fees":         colFees,
	"total fees":   colFees,

	"total":        colTotal,
	"total amount": colTotal,
	"amount":       colTotal,
}

// columns required before a candidate line is accepted as the header row
var requiredHeaderColumns = []string{colPostedAt, colOrderID, colSKU, colTotal}

// postedAtLayouts are tried in order when parsing the date/time cell
var postedAtLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
	"Jan 2, 2006 3:04:05 PM MST",
	"Jan 2, 2006",
	"02.01.2006",
	"01/02/2006",
}

// ParseResult is the outcome of phase A for one report
type ParseResult struct {
	Rows     []models.StagedRow
	Errors   []models.ParseError
	MonthKey string
}

// Err aggregates the per-row parse errors into a single error, or nil when
// every line parsed. Parse errors never abort an import; this is for logging
// and for surfacing the collected list.
func (r *ParseResult) Err() error {
	var merr *multierror.Error
	for _, pe := range r.Errors {
		merr = multierror.Append(merr, fmt.Errorf("line %d: %s", pe.Line, pe.Message))
	}
	return merr.ErrorOrNil()
}

// Parse reads a raw settlement report and produces typed staged rows. The
// header row is located by column-presence heuristic; rows missing a
// hard-required field are collected as parse errors, not failures.
func Parse(r io.Reader) (*ParseResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	columns, headerLine, err := locateHeader(reader)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{}
	line := headerLine
	rowIndex := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Errors = append(result.Errors, models.ParseError{Line: line, Message: err.Error()})
			continue
		}
		row, perr := parseRow(record, columns)
		if perr != "" {
			result.Errors = append(result.Errors, models.ParseError{Line: line, Message: perr})
			continue
		}
		row.RowIndex = rowIndex
		rowIndex++
		result.Rows = append(result.Rows, row)
		if result.MonthKey == "" {
			result.MonthKey = row.PostedAt.Format("2006-01")
		}
	}
	return result, nil
}

// locateHeader scans at most headerScanLimit lines for a row whose cells map
// to every required canonical column. It returns the column index map and the
// 1-based line number of the header.
func locateHeader(reader *csv.Reader) (map[string]int, int, error) {
	for line := 1; line <= headerScanLimit; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		columns := map[string]int{}
		for i, cell := range record {
			canonical, ok := headerAliases[normalize.HeaderCell(cell)]
			if !ok {
				continue
			}
			if _, seen := columns[canonical]; !seen {
				columns[canonical] = i
			}
		}
		if hasRequiredColumns(columns) {
			return columns, line, nil
		}
	}
	return nil, 0, fmt.Errorf("no header row found within the first %d lines", headerScanLimit)
}

func hasRequiredColumns(columns map[string]int) bool {
	for _, name := range requiredHeaderColumns {
		if _, ok := columns[name]; !ok {
			return false
		}
	}
	return true
}

// parseRow converts one record into a staged row. It returns a non-empty
// message when a hard-required field is absent or unparsable.
func parseRow(record []string, columns map[string]int) (models.StagedRow, string) {
	cell := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	rawDate := cell(colPostedAt)
	if rawDate == "" {
		return models.StagedRow{}, "missing date/time"
	}
	postedAt, ok := parsePostedAt(rawDate)
	if !ok {
		return models.StagedRow{}, fmt.Sprintf("unparsable date/time %q", rawDate)
	}

	orderID := cell(colOrderID)
	if orderID == "" {
		return models.StagedRow{}, "missing order id"
	}

	rawTotal := cell(colTotal)
	if rawTotal == "" {
		return models.StagedRow{}, "missing total"
	}
	total, ok := parseMoney(rawTotal)
	if !ok {
		return models.StagedRow{}, fmt.Sprintf("unparsable total %q", rawTotal)
	}

	row := models.StagedRow{
		PostedAt: postedAt,
		OrderID:  orderID,
		SKU:      cell(colSKU),
		Type:     cell(colType),
		Total:    total,
	}

	// Soft fields parse tolerantly and default to zero.
	row.Quantity = parseQuantity(cell(colQuantity))
	row.Revenue, _ = parseMoney(cell(colRevenue))
	row.Fees, _ = parseMoney(cell(colFees))

	// A refund marker or a negative total flips the sign of the movement.
	if isRefund(row.Type) || total < 0 {
		row.Quantity = -absInt(row.Quantity)
		row.Total = -math.Abs(row.Total)
		row.Revenue = -math.Abs(row.Revenue)
	}
	return row, ""
}

func parsePostedAt(raw string) (time.Time, bool) {
	for _, layout := range postedAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseMoney strips currency symbols, thousands separators, and accounting
// parentheses. Empty or unparsable input yields (0, false).
func parseMoney(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	negative := false
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}
	cleaned = strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', '¥', ',', ' ', ' ':
			return -1
		}
		return r
	}, cleaned)
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		value = -value
	}
	return value, true
}

func parseQuantity(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}

func isRefund(transactionType string) bool {
	return strings.Contains(strings.ToLower(transactionType), "refund")
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
