// Package model holds the data shared by every stage of an acquisition run:
// competitor configuration and recipes, the run context, and the records
// and summaries a run emits.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// Kind selects the driver an adapter fetches with.
type Kind string

const (
	KindBrowser Kind = "browser"
	KindHTTP    Kind = "http"
	KindAuto    Kind = "auto"
)

// DecimalPolicy pins how ambiguous numbers like "1.234" or "85,5" are read.
type DecimalPolicy string

const (
	DecimalAuto  DecimalPolicy = "auto"
	DecimalDot   DecimalPolicy = "dot"
	DecimalComma DecimalPolicy = "comma"
)

// DefaultCompletenessFloor is the completeness below which a record is retried.
const DefaultCompletenessFloor = 20.0

// Band is the plausible nightly rate range in the adapter's currency.
type Band struct {
	Lo float64 `yaml:"lo" json:"lo" validate:"gt=0"`
	Hi float64 `yaml:"hi" json:"hi" validate:"gtfield=Lo"`
}

// Contains reports whether v lies within the band, inclusive.
func (b Band) Contains(v float64) bool {
	return v >= b.Lo && v <= b.Hi
}

// CompetitorConfig identifies a competitor and how to scrape it.
// It is immutable for the duration of a run.
type CompetitorConfig struct {
	Name              string        `yaml:"name" validate:"required,max=64,excludesall= /\\"`
	Company           string        `yaml:"company" validate:"required"`
	Country           string        `yaml:"country" validate:"required,iso3166_1_alpha2"`
	Currency          string        `yaml:"currency" validate:"required,iso4217"`
	Kind              Kind          `yaml:"kind" validate:"required,oneof=browser http auto"`
	EntryURLs         []string      `yaml:"entry_urls" validate:"required,min=1,dive,required"`
	Location          string        `yaml:"location" validate:"required"`
	LookaheadDays     int           `yaml:"lookahead_days" validate:"gte=0,lte=365"`
	StayNights        int           `yaml:"stay_nights" validate:"gte=0,lte=60"`
	Band              Band          `yaml:"band"`
	CompletenessFloor float64       `yaml:"completeness_floor" validate:"gte=0,lte=100"`
	DecimalPolicy     DecimalPolicy `yaml:"decimal_policy" validate:"omitempty,oneof=auto dot comma"`
	Timeout           time.Duration `yaml:"timeout" validate:"gte=0"`
	Recipe            Recipe        `yaml:"recipe"`
}

// Cost is the scheduling weight of the adapter. Browser-driven adapters
// hold a Chrome tab for the whole invocation and cost twice as much.
func (c CompetitorConfig) Cost() int64 {
	if c.Kind == KindHTTP {
		return 1
	}
	return 2
}

// Floor returns the completeness floor, falling back to the default.
func (c CompetitorConfig) Floor() float64 {
	if c.CompletenessFloor > 0 {
		return c.CompletenessFloor
	}
	return DefaultCompletenessFloor
}

// Recipe is the declarative part of a site adapter.
type Recipe struct {
	Steps        []fetcher.Step  `yaml:"steps" validate:"dive"`
	WaitSelector string          `yaml:"wait_selector"`
	ReuseContext bool            `yaml:"reuse_context"`
	ScanTitle    bool            `yaml:"scan_title"`
	HTML         []HTMLRule      `yaml:"html" validate:"dive"`
	Network      []NetworkRule   `yaml:"network" validate:"dive"`
	Attributes   []AttributeRule `yaml:"attributes" validate:"dive"`
	Promotions   []PromotionRule `yaml:"promotions" validate:"dive"`
	Review       *ReviewRule     `yaml:"review"`
	Listings     *ListingRule    `yaml:"listings"`
}

// HTMLRule selects elements whose text is scanned for prices.
type HTMLRule struct {
	Selector string `yaml:"selector" validate:"required"`
}

// NetworkRule matches intercepted JSON responses by URL. Paths are gjson
// paths; when empty the whole payload is mined depth-first.
type NetworkRule struct {
	URLPattern string   `yaml:"url_pattern" validate:"required"`
	Paths      []string `yaml:"paths"`
}

// AttributeRule reads a numeric DOM attribute such as data-price.
type AttributeRule struct {
	Selector  string `yaml:"selector" validate:"required"`
	Attribute string `yaml:"attribute" validate:"required"`
}

// PromotionRule is a regex over visible text. A named group "code"
// captures a promo code when present.
type PromotionRule struct {
	Pattern  string `yaml:"pattern" validate:"required"`
	Selector string `yaml:"selector"`
}

// ReviewRule locates the average rating and review count, either in the
// DOM or in an intercepted JSON payload.
type ReviewRule struct {
	AvgSelector   string `yaml:"avg_selector"`
	CountSelector string `yaml:"count_selector"`
	URLPattern    string `yaml:"url_pattern"`
	AvgPath       string `yaml:"avg_path"`
	CountPath     string `yaml:"count_path"`
}

// ListingRule extracts vehicle cards.
type ListingRule struct {
	Card     string `yaml:"card" validate:"required"`
	Name     string `yaml:"name" validate:"required"`
	Category string `yaml:"category"`
	Sleeps   string `yaml:"sleeps"`
	Features string `yaml:"features"`
	Price    string `yaml:"price"`
}

// RunContext is created once per run by the coordinator and is read-only
// downstream.
type RunContext struct {
	ID            string
	Timestamp     time.Time
	LookaheadDays int
	StayNights    int
	ArtifactDir   string
}

// NewRunContext creates a run context stamped at now (converted to UTC).
func NewRunContext(now time.Time, lookaheadDays, stayNights int) RunContext {
	return RunContext{
		ID:            uuid.New().String(),
		Timestamp:     now.UTC(),
		LookaheadDays: lookaheadDays,
		StayNights:    stayNights,
	}
}

// Stamp is the directory-safe run timestamp.
func (rc RunContext) Stamp() string {
	return rc.Timestamp.Format("20060102T150405Z")
}

// Window returns the pickup and dropoff dates for a competitor. Competitor
// settings override the run-level ones when non-zero.
func (rc RunContext) Window(cfg CompetitorConfig) (pickup, dropoff time.Time) {
	lookahead := rc.LookaheadDays
	if cfg.LookaheadDays > 0 {
		lookahead = cfg.LookaheadDays
	}
	stay := rc.StayNights
	if cfg.StayNights > 0 {
		stay = cfg.StayNights
	}
	if stay <= 0 {
		stay = 7
	}
	day := time.Date(rc.Timestamp.Year(), rc.Timestamp.Month(), rc.Timestamp.Day(), 0, 0, 0, 0, time.UTC)
	pickup = day.AddDate(0, 0, lookahead)
	return pickup, pickup.AddDate(0, 0, stay)
}
