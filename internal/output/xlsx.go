package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jmylchreest/campwatch/internal/model"
)

const (
	sheetResults = "Results"
	sheetAlerts  = "Alerts"
)

var resultColumns = []string{
	"Company", "Adapter", "Country", "Currency", "Location", "Pickup", "Dropoff",
	"Results", "Min", "Max", "Avg", "Base nightly rate", "Review avg", "Review count",
	"Promotions", "Completeness %", "Success", "Strategy", "Retries", "Notes", "URL",
}

var alertColumns = []string{"Severity", "Competitor", "Deviation %", "Message", "Recommended action"}

// XLSXWriter writes a workbook with a results sheet and an alerts sheet.
// The workbook is produced on Write; it is not streamable.
type XLSXWriter struct {
	w io.Writer
}

// NewXLSXWriter creates an XLSX writer.
func NewXLSXWriter(w io.Writer) *XLSXWriter {
	return &XLSXWriter{w: w}
}

// Write renders the summary into a workbook and writes it out.
func (w *XLSXWriter) Write(summary *model.RunSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetResults); err != nil {
		return err
	}
	if _, err := f.NewSheet(sheetAlerts); err != nil {
		return err
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := writeRow(f, sheetResults, 1, toAny(resultColumns)); err != nil {
		return err
	}
	for i, rec := range summary.Results {
		if err := writeRow(f, sheetResults, i+2, resultRow(rec)); err != nil {
			return err
		}
	}

	if err := writeRow(f, sheetAlerts, 1, toAny(alertColumns)); err != nil {
		return err
	}
	for i, a := range summary.Alerts {
		if err := writeRow(f, sheetAlerts, i+2, []any{a.Severity, a.Competitor, deref(a.DeviationPct), a.Message, a.RecommendedAction}); err != nil {
			return err
		}
	}

	for sheet, cols := range map[string]int{sheetResults: len(resultColumns), sheetAlerts: len(alertColumns)} {
		last, _ := excelize.CoordinatesToCellName(cols, 1)
		if err := f.SetCellStyle(sheet, "A1", last, header); err != nil {
			return err
		}
	}

	return f.Write(w.w)
}

// Close is a no-op; Write emits the whole workbook.
func (w *XLSXWriter) Close() error {
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func resultRow(rec model.CompetitorRecord) []any {
	var reviewCount any
	if rec.ReviewCount != nil {
		reviewCount = *rec.ReviewCount
	}
	return []any{
		rec.CompanyName, rec.Adapter, rec.Country, rec.Currency, rec.SearchLocation,
		rec.SearchStartDate, rec.SearchEndDate, rec.NumResults,
		deref(rec.MinPrice), deref(rec.MaxPrice), deref(rec.AvgPrice), deref(rec.BaseNightlyRate),
		deref(rec.ReviewAvg), reviewCount,
		strings.Join(rec.ActivePromotions, "; "), rec.DataCompletenessPct, rec.Success,
		rec.Strategy, rec.RetryCount, rec.Notes, rec.URL,
	}
}

// deref returns nil for a nil pointer so the cell stays empty.
func deref(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
