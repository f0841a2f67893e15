package model

import (
	"strings"
	"time"
)

// DateLayout is used for search dates in records.
const DateLayout = "2006-01-02"

// Alert severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// CompetitorRecord is the normalized result of one adapter invocation.
// Nil pointers serialize as null.
type CompetitorRecord struct {
	Adapter             string           `json:"adapter"`
	CompanyName         string           `json:"company_name"`
	Country             string           `json:"country"`
	Currency            string           `json:"currency"`
	SearchLocation      string           `json:"search_location"`
	SearchStartDate     string           `json:"search_start_date"`
	SearchEndDate       string           `json:"search_end_date"`
	Timestamp           string           `json:"timestamp"`
	URL                 string           `json:"url"`
	NumResults          int              `json:"num_results"`
	MinPrice            *float64         `json:"min_price"`
	MaxPrice            *float64         `json:"max_price"`
	AvgPrice            *float64         `json:"avg_price"`
	PricesFound         []float64        `json:"prices_found"`
	BaseNightlyRate     *float64         `json:"base_nightly_rate"`
	ReviewAvg           *float64         `json:"review_avg"`
	ReviewCount         *int             `json:"review_count"`
	ActivePromotions    []string         `json:"active_promotions"`
	PromoCodes          []string         `json:"promo_codes,omitempty"`
	DataCompletenessPct float64          `json:"data_completeness_pct" jsonschema:"minimum=0,maximum=100"`
	Notes               string           `json:"notes"`
	ScreenshotPath      string           `json:"screenshot_path"`
	HTMLPath            string           `json:"html_path,omitempty"`
	CapturedPath        string           `json:"captured_path,omitempty"`
	Success             bool             `json:"success"`
	Strategy            string           `json:"strategy,omitempty"`
	RetryCount          int              `json:"retry_count"`
	PriceEvidence       []PriceEvidence  `json:"price_evidence,omitempty"`
	Vehicles            []VehicleListing `json:"vehicles,omitempty"`
}

// PriceEvidence explains where a deduplicated price came from.
type PriceEvidence struct {
	Value      float64 `json:"value"`
	Sources    int     `json:"sources"`
	Confidence float64 `json:"confidence"`
	Locator    string  `json:"locator"`
}

// VehicleListing is an optional per-vehicle breakdown. Prices maps a
// pickup date (YYYY-MM-DD) to the nightly price in the record currency.
type VehicleListing struct {
	Name     string             `json:"name"`
	Category string             `json:"category,omitempty"`
	Sleeps   *int               `json:"sleeps,omitempty"`
	Features []string           `json:"features,omitempty"`
	Prices   map[string]float64 `json:"prices,omitempty"`
}

// Alert is produced by the alert rules over a run summary.
type Alert struct {
	Severity          string   `json:"severity" jsonschema:"enum=high,enum=medium,enum=low"`
	Competitor        string   `json:"competitor"`
	Message           string   `json:"message"`
	RecommendedAction string   `json:"recommended_action"`
	DeviationPct      *float64 `json:"deviation_pct,omitempty"`
}

// RunSummary aggregates one run.
type RunSummary struct {
	RunID               string             `json:"run_id,omitempty"`
	Date                string             `json:"date"`
	CompetitorsAnalyzed int                `json:"competitors_analyzed"`
	DataCompletenessAvg float64            `json:"data_completeness_avg"`
	AlertsGenerated     int                `json:"alerts_generated"`
	Results             []CompetitorRecord `json:"results"`
	Alerts              []Alert            `json:"alerts"`
}

// NewRecord returns a record carrying the identity and search fields of cfg.
// Stats stay null until the normalizer fills them.
func NewRecord(cfg CompetitorConfig, rc RunContext) *CompetitorRecord {
	pickup, dropoff := rc.Window(cfg)
	return &CompetitorRecord{
		Adapter:          cfg.Name,
		CompanyName:      cfg.Company,
		Country:          cfg.Country,
		Currency:         cfg.Currency,
		SearchLocation:   cfg.Location,
		SearchStartDate:  pickup.Format(DateLayout),
		SearchEndDate:    dropoff.Format(DateLayout),
		Timestamp:        rc.Timestamp.Format(time.RFC3339),
		PricesFound:      []float64{},
		ActivePromotions: []string{},
	}
}

// AddNote appends a note, separating entries with "; ".
func (r *CompetitorRecord) AddNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if r.Notes == "" {
		r.Notes = note
		return
	}
	r.Notes += "; " + note
}

// Succeeded counts successful records.
func (s *RunSummary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Success {
			n++
		}
	}
	return n
}
