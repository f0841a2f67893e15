package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/campwatch/internal/model"
)

func testSummary() *model.RunSummary {
	avg := 107.5
	lo, hi := 95.0, 120.0
	dev := 16.67
	count := 12
	return &model.RunSummary{
		RunID:               "run-1",
		Date:                "2025-03-01",
		CompetitorsAnalyzed: 2,
		DataCompletenessAvg: 56.25,
		AlertsGenerated:     1,
		Results: []model.CompetitorRecord{
			{
				Adapter: "alpha", CompanyName: "Alpha Campers", Currency: "USD",
				NumResults: 2, MinPrice: &lo, MaxPrice: &hi, AvgPrice: &avg, BaseNightlyRate: &avg,
				PricesFound: []float64{95, 120}, ReviewCount: &count,
				ActivePromotions: []string{"10% off", "Early bird"}, DataCompletenessPct: 62.5, Success: true,
			},
			{
				Adapter: "beta", CompanyName: "Beta RV", Currency: "USD",
				PricesFound: []float64{}, ActivePromotions: []string{}, DataCompletenessPct: 50,
				Notes: "no prices found: page contains no digits",
			},
		},
		Alerts: []model.Alert{{
			Severity: model.SeverityMedium, Competitor: "Alpha Campers", DeviationPct: &dev,
			Message: "above median", RecommendedAction: "review pricing",
		}},
	}
}

// --- NewWriter Factory Tests ---

func TestNewWriter_Formats(t *testing.T) {
	for _, f := range Formats() {
		w, err := NewWriter(&bytes.Buffer{}, f)
		if err != nil {
			t.Fatalf("NewWriter(%s) error = %v", f, err)
		}
		if w == nil {
			t.Fatalf("NewWriter(%s) returned nil", f)
		}
	}
}

func TestNewWriter_UnsupportedFormat(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, Format("csv"))
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("expected error containing 'unsupported', got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" XLSX ")
	if err != nil || f != FormatXLSX {
		t.Errorf("ParseFormat(XLSX) = %q, %v", f, err)
	}
	if _, err := ParseFormat("toml"); err == nil {
		t.Error("expected error for toml")
	}
}

// --- JSONWriter Tests ---

func TestJSONWriter_Summary(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewJSONWriter(buf, true, "  ")
	if err := w.Write(testSummary()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("failed to unmarshal output: %v", err)
	}
	for _, key := range []string{"date", "competitors_analyzed", "data_completeness_avg", "alerts_generated", "results", "alerts"} {
		if _, ok := got[key]; !ok {
			t.Errorf("summary is missing %q", key)
		}
	}

	results := got["results"].([]any)
	beta := results[1].(map[string]any)
	if beta["min_price"] != nil || beta["avg_price"] != nil {
		t.Errorf("empty stats should be null, got min=%v avg=%v", beta["min_price"], beta["avg_price"])
	}
	if _, ok := beta["review_avg"]; !ok {
		t.Error("review_avg should be present as null")
	}
}

func TestJSONWriter_Compact(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewJSONWriter(buf, false, "")
	if err := w.Write(testSummary()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Errorf("expected single line in compact output, got %d lines", len(lines))
	}
}

func TestJSONWriter_CustomIndent(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewJSONWriter(buf, true, "\t")
	if err := w.Write(testSummary()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.Contains(buf.String(), "\t") {
		t.Errorf("expected tab indentation")
	}
}

// --- JSONLWriter Tests ---

func TestJSONLWriter_OneRecordPerLine(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewJSONLWriter(buf)
	if err := w.Write(testSummary()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var rec model.CompetitorRecord
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("line 1 is not a record: %v", err)
	}
	if rec.Adapter != "alpha" || *rec.AvgPrice != 107.5 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

// --- YAMLWriter Tests ---

func TestYAMLWriter_UsesJSONFieldNames(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewYAMLWriter(buf)
	if err := w.Write(testSummary()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var got map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("failed to unmarshal output: %v", err)
	}
	if got["competitors_analyzed"] != 2 {
		t.Errorf("competitors_analyzed = %v", got["competitors_analyzed"])
	}
	if !strings.Contains(buf.String(), "company_name: Alpha Campers") {
		t.Errorf("expected snake_case keys, got:\n%s", buf.String())
	}
}

// --- XLSXWriter Tests ---

func TestXLSXWriter_Sheets(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewXLSXWriter(buf)
	if err := w.Write(testSummary()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetResults)
	if err != nil {
		t.Fatalf("GetRows(results) error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Company" || rows[1][0] != "Alpha Campers" {
		t.Errorf("unexpected first column: %q, %q", rows[0][0], rows[1][0])
	}
	if rows[1][14] != "10% off; Early bird" {
		t.Errorf("promotions cell = %q", rows[1][14])
	}

	alerts, err := f.GetRows(sheetAlerts)
	if err != nil {
		t.Fatalf("GetRows(alerts) error = %v", err)
	}
	if len(alerts) != 2 || alerts[1][0] != "medium" {
		t.Errorf("unexpected alerts sheet: %v", alerts)
	}
}
