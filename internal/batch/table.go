// Package batch scores uploaded transaction tables and exports the enriched result.
package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// Column names recognized in uploaded tables.
const (
	ColumnAmount           = "Amount"
	ColumnCurrency         = "Currency"
	ColumnCountry          = "Country"
	ColumnUsualCountry     = "Usual_Country"
	ColumnMerchantCategory = "Merchant_Category"
	ColumnChannel          = "Channel"
	ColumnHour             = "Hour"
	ColumnCardPresent      = "Card_Present"

	ColumnDeviceID      = "Device_ID"
	ColumnCardID        = "Card_ID"
	ColumnEmail         = "Email"
	ColumnTransactionID = "Transaction_ID"
)

// Enrichment columns appended on export.
const (
	ColumnRiskScore    = "Risk_Score"
	ColumnResult       = "Result"
	ColumnReasons      = "Reasons"
	ColumnVelocityFlag = "Velocity_Flag"
)

// RequiredColumns must all be present for a table to be scored.
var RequiredColumns = []string{
	ColumnAmount,
	ColumnCurrency,
	ColumnCountry,
	ColumnUsualCountry,
	ColumnMerchantCategory,
	ColumnChannel,
	ColumnHour,
	ColumnCardPresent,
}

const utf8BOM = "\ufeff"

// Table is an uploaded transaction table. Header order and cell values are
// preserved exactly for export.
type Table struct {
	Header []string
	Rows   [][]string

	index map[string]int
}

// NewTable builds a table and checks the required columns.
func NewTable(header []string, rows [][]string) (*Table, error) {
	t := &Table{
		Header: make([]string, len(header)),
		Rows:   rows,
		index:  make(map[string]int, len(header)),
	}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		h = strings.TrimSpace(h)
		t.Header[i] = h
		if _, dup := t.index[h]; !dup {
			t.index[h] = i
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if !t.Has(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingRequiredColumn, strings.Join(missing, ", "))
	}
	return t, nil
}

// ReadTable parses a CSV table with a header row.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty table", domain.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", domain.ErrInvalidInput, err)
	}

	var rows [][]string
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: malformed table: %v", domain.ErrInvalidInput, err)
		}
		rows = append(rows, record)
	}

	return NewTable(header, rows)
}

// Has reports whether the table carries the named column.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Value returns the trimmed cell for row and col, or "" when absent.
func (t *Table) Value(row int, col string) string {
	return strings.TrimSpace(t.Raw(row, col))
}

// Raw returns the cell exactly as read, or "" when absent.
func (t *Table) Raw(row int, col string) string {
	i, ok := t.index[col]
	if !ok || row < 0 || row >= len(t.Rows) || i >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][i]
}

// Column returns every value of col in row order, or nil when the column is absent.
func (t *Table) Column(col string) []string {
	if !t.Has(col) {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i := range t.Rows {
		out[i] = t.Value(i, col)
	}
	return out
}

// Transaction builds the scorer input for one data row.
func (t *Table) Transaction(row int) (domain.TransactionInput, error) {
	var tx domain.TransactionInput

	amount, err := parseAmount(t.Value(row, ColumnAmount))
	if err != nil {
		return tx, cellError(ColumnAmount, err)
	}
	cur, err := domain.ParseCurrency(t.Value(row, ColumnCurrency))
	if err != nil {
		return tx, cellError(ColumnCurrency, err)
	}
	merchant, err := domain.ParseMerchantCategory(t.Value(row, ColumnMerchantCategory))
	if err != nil {
		return tx, cellError(ColumnMerchantCategory, err)
	}
	channel, err := domain.ParseChannel(t.Value(row, ColumnChannel))
	if err != nil {
		return tx, cellError(ColumnChannel, err)
	}
	hour, err := strconv.Atoi(t.Value(row, ColumnHour))
	if err != nil {
		return tx, cellError(ColumnHour, fmt.Errorf("%w: hour %q is not an integer", domain.ErrInvalidInput, t.Value(row, ColumnHour)))
	}
	cardPresent, err := domain.ParseBool(t.Value(row, ColumnCardPresent))
	if err != nil {
		return tx, cellError(ColumnCardPresent, err)
	}

	tx = domain.TransactionInput{
		Amount:           amount,
		Currency:         cur,
		Country:          t.Raw(row, ColumnCountry),
		UsualCountry:     t.Raw(row, ColumnUsualCountry),
		MerchantCategory: merchant,
		Channel:          channel,
		Hour:             hour,
		CardPresent:      cardPresent,
		DeviceID:         t.Value(row, ColumnDeviceID),
	}
	if err := tx.Validate(); err != nil {
		return tx, err
	}
	return tx, nil
}

// parseAmount accepts plain decimals and comma thousands separators.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a number", domain.ErrInvalidInput, s)
	}
	return d, nil
}

func cellError(col string, err error) error {
	return fmt.Errorf("column %s: %w", col, err)
}
