package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// WriteCSV exports every scored row with its original cells followed by the
// enrichment columns. Rejected rows are omitted.
func WriteCSV(w io.Writer, res *Result) error {
	cw := csv.NewWriter(w)

	width := len(res.Table.Header)
	header := append(append([]string{}, res.Table.Header...),
		ColumnRiskScore, ColumnResult, ColumnReasons, ColumnVelocityFlag)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := range res.Rows {
		row := &res.Rows[i]
		if !row.OK() {
			continue
		}
		record := make([]string, width, width+4)
		copy(record, res.Table.Rows[row.Row])
		record = append(record,
			strconv.Itoa(row.Score),
			row.Label.Name,
			strings.Join(row.Reasons, domain.ReasonSeparator),
			row.VelocityFlag,
		)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row.Row, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// HistoryColumns is the header written by WriteHistoryCSV.
var HistoryColumns = []string{
	"Timestamp",
	ColumnAmount,
	ColumnCurrency,
	ColumnCountry,
	ColumnUsualCountry,
	ColumnMerchantCategory,
	ColumnChannel,
	ColumnHour,
	ColumnCardPresent,
	ColumnDeviceID,
	ColumnRiskScore,
	ColumnResult,
	ColumnReasons,
}

// WriteHistoryCSV exports a session history, oldest entry first.
func WriteHistoryCSV(w io.Writer, entries []domain.HistoryEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(HistoryColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, e := range entries {
		tx := e.Transaction
		record := []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			tx.Amount.String(),
			string(tx.Currency),
			tx.Country,
			tx.UsualCountry,
			string(tx.MerchantCategory),
			string(tx.Channel),
			strconv.Itoa(tx.Hour),
			strconv.FormatBool(tx.CardPresent),
			tx.DeviceID,
			strconv.Itoa(e.Result.Score),
			e.Label.Name,
			e.Result.ReasonsText(),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write entry %s: %w", e.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
