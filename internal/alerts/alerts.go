// Package alerts derives pricing alerts from a run summary.
package alerts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jmylchreest/campwatch/internal/model"
)

// Deviation thresholds from the median, in percent.
var (
	HighThreshold   = decimal.NewFromInt(25)
	MediumThreshold = decimal.NewFromInt(10)
)

var hundred = decimal.NewFromInt(100)

// Generate compares every successful record's base nightly rate to the
// median of its currency group and reports failed competitors.
func Generate(records []model.CompetitorRecord) []model.Alert {
	medians := currencyMedians(records)

	alerts := []model.Alert{}
	for _, rec := range records {
		if !rec.Success {
			alerts = append(alerts, failureAlert(rec))
			continue
		}
		if rec.BaseNightlyRate == nil {
			continue
		}
		median, ok := medians[rec.Currency]
		if !ok || median.IsZero() {
			continue
		}

		dev := decimal.NewFromFloat(*rec.BaseNightlyRate).Sub(median).Div(median).Mul(hundred)
		var severity string
		switch abs := dev.Abs(); {
		case abs.GreaterThan(HighThreshold):
			severity = model.SeverityHigh
		case abs.GreaterThan(MediumThreshold):
			severity = model.SeverityMedium
		default:
			continue
		}
		alerts = append(alerts, deviationAlert(rec, severity, dev, median))
	}
	return alerts
}

func deviationAlert(rec model.CompetitorRecord, severity string, dev, median decimal.Decimal) model.Alert {
	pct, _ := dev.Round(1).Float64()
	direction, action := "above", "review positioning: competitor is priced above market, hold or raise rates"
	if dev.IsNegative() {
		direction, action = "below", "review pricing: competitor is undercutting the market"
	}
	return model.Alert{
		Severity:   severity,
		Competitor: rec.CompanyName,
		Message: fmt.Sprintf("%s nightly rate %s %s is %s%% %s the %s median of %s",
			rec.CompanyName,
			decimal.NewFromFloat(*rec.BaseNightlyRate).StringFixed(2), rec.Currency,
			dev.Abs().StringFixed(1), direction,
			rec.Currency, median.StringFixed(2)),
		RecommendedAction: action,
		DeviationPct:      &pct,
	}
}

func failureAlert(rec model.CompetitorRecord) model.Alert {
	reason := "no reason recorded"
	if rec.Notes != "" {
		reason = strings.SplitN(rec.Notes, "; ", 2)[0]
	}
	return model.Alert{
		Severity:          model.SeverityLow,
		Competitor:        rec.CompanyName,
		Message:           fmt.Sprintf("no pricing collected for %s: %s", rec.CompanyName, reason),
		RecommendedAction: "inspect the adapter artifacts and update its recipe if the site changed",
	}
}

// currencyMedians returns the median base rate of successful records per
// currency.
func currencyMedians(records []model.CompetitorRecord) map[string]decimal.Decimal {
	groups := map[string][]decimal.Decimal{}
	for _, rec := range records {
		if !rec.Success || rec.BaseNightlyRate == nil {
			continue
		}
		groups[rec.Currency] = append(groups[rec.Currency], decimal.NewFromFloat(*rec.BaseNightlyRate))
	}

	out := make(map[string]decimal.Decimal, len(groups))
	for cur, vals := range groups {
		out[cur] = Median(vals)
	}
	return out
}

// Median returns the median of vals, or zero for none.
func Median(vals []decimal.Decimal) decimal.Decimal {
	if len(vals) == 0 {
		return decimal.Zero
	}
	sorted := append([]decimal.Decimal(nil), vals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}
