// Package normalize turns extracted price candidates into the stats of a
// CompetitorRecord and scores how complete the record is. Everything here
// is pure: the same candidates always give the same record.
package normalize

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jmylchreest/campwatch/internal/extract"
	"github.com/jmylchreest/campwatch/internal/model"
)

// Outcome notes for records without prices.
const (
	NoteNoDigits   = "no prices found: page contains no digits"
	NoteNoMatches  = "no prices found: no price-like values on page"
	noteOutOfBand  = "no prices in band %s-%s %s (%d candidates rejected)"
	noteOtherMoney = "ignored %d candidates in other currencies"
)

// Apply fills rec's price fields from cands. hasDigits tells whether the
// source page had any digits at all, which picks the note for an empty
// result.
func Apply(rec *model.CompetitorRecord, cfg model.CompetitorConfig, cands []extract.Candidate, hasDigits bool) {
	kept, foreign, outOfBand := filter(cfg, cands)
	evidence := dedupe(kept)

	prices := make([]float64, 0, len(evidence))
	for _, ev := range evidence {
		prices = append(prices, ev.Value)
	}

	rec.PricesFound = prices
	rec.PriceEvidence = evidence
	rec.NumResults = len(prices)
	rec.MinPrice, rec.MaxPrice, rec.AvgPrice = Stats(prices)
	rec.BaseNightlyRate = rec.AvgPrice
	rec.Success = len(prices) > 0

	if foreign > 0 {
		rec.AddNote(fmt.Sprintf(noteOtherMoney, foreign))
	}
	if len(prices) == 0 {
		switch {
		case !hasDigits:
			rec.AddNote(NoteNoDigits)
		case outOfBand == 0:
			rec.AddNote(NoteNoMatches)
		default:
			rec.AddNote(fmt.Sprintf(noteOutOfBand, trim(cfg.Band.Lo), trim(cfg.Band.Hi), cfg.Currency, outOfBand))
		}
	}

	rec.DataCompletenessPct = Completeness(rec)
}

// filter keeps candidates in the declared currency and the band.
func filter(cfg model.CompetitorConfig, cands []extract.Candidate) (kept []extract.Candidate, foreign, outOfBand int) {
	for _, c := range cands {
		switch {
		case c.Currency != cfg.Currency:
			foreign++
		case !cfg.Band.Contains(c.Value):
			outOfBand++
		default:
			kept = append(kept, c)
		}
	}
	return kept, foreign, outOfBand
}

// dedupe merges candidates with the same value (to the cent). Each extra
// source raises the confidence: sources are combined as independent
// signals, 1 - Π(1 - c). The result is sorted by value.
func dedupe(cands []extract.Candidate) []model.PriceEvidence {
	type group struct {
		ev   model.PriceEvidence
		miss float64
	}
	groups := map[int64]*group{}
	var order []int64

	for _, c := range cands {
		key := int64(math.Round(c.Value * 100))
		g, ok := groups[key]
		if !ok {
			g = &group{ev: model.PriceEvidence{Value: c.Value, Locator: c.Locator}, miss: 1}
			groups[key] = g
			order = append(order, key)
		}
		g.ev.Sources++
		conf := c.Confidence
		if conf <= 0 || conf > 1 {
			conf = 0.5
		}
		g.miss *= 1 - conf
	}

	out := make([]model.PriceEvidence, 0, len(order))
	for _, key := range order {
		g := groups[key]
		g.ev.Confidence = round2(1 - g.miss)
		out = append(out, g.ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// Stats returns min, max and the average rounded to two decimals, or three
// nils for an empty slice.
func Stats(prices []float64) (minPrice, maxPrice, avg *float64) {
	if len(prices) == 0 {
		return nil, nil, nil
	}
	lo, hi := prices[0], prices[0]
	sum := decimal.Zero
	for _, p := range prices {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
		sum = sum.Add(decimal.NewFromFloat(p))
	}
	a, _ := sum.Div(decimal.NewFromInt(int64(len(prices)))).Round(2).Float64()
	// Rounding can only push the average past a bound when every price
	// equals that bound.
	a = math.Min(math.Max(a, lo), hi)
	return &lo, &hi, &a
}

// ChecklistSize is the number of fields Completeness scores.
const ChecklistSize = 8

// Completeness is the percentage of the fixed checklist populated in rec:
// company, currency, search location, at least one price, promotions,
// reviews, screenshot reference and HTML reference.
func Completeness(rec *model.CompetitorRecord) float64 {
	checks := []bool{
		rec.CompanyName != "",
		rec.Currency != "",
		rec.SearchLocation != "",
		rec.NumResults > 0,
		len(rec.ActivePromotions) > 0,
		rec.ReviewAvg != nil || rec.ReviewCount != nil,
		rec.ScreenshotPath != "",
		rec.HTMLPath != "",
	}
	populated := 0
	for _, ok := range checks {
		if ok {
			populated++
		}
	}
	pct, _ := decimal.NewFromInt(int64(populated * 100)).Div(decimal.NewFromInt(ChecklistSize)).Round(2).Float64()
	return pct
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

func trim(v float64) string {
	return decimal.NewFromFloat(v).String()
}
