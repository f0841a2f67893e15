package alerts

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/campwatch/internal/model"
)

func rate(v float64) *float64 { return &v }

func ok(company, currency string, base float64) model.CompetitorRecord {
	return model.CompetitorRecord{CompanyName: company, Currency: currency, Success: true, BaseNightlyRate: rate(base)}
}

func TestMedian(t *testing.T) {
	d := func(vs ...int64) []decimal.Decimal {
		out := make([]decimal.Decimal, len(vs))
		for i, v := range vs {
			out[i] = decimal.NewFromInt(v)
		}
		return out
	}
	assert.True(t, Median(nil).IsZero())
	assert.Equal(t, "120", Median(d(140, 100)).String())
	assert.Equal(t, "100", Median(d(300, 100, 90)).String())
	assert.Equal(t, "95", Median(d(80, 110, 90, 100)).String())
}

func TestGenerateMediumDeviation(t *testing.T) {
	alerts := Generate([]model.CompetitorRecord{
		ok("Alpha", "USD", 100),
		ok("Beta", "USD", 140),
	})

	require.Len(t, alerts, 2)
	var beta model.Alert
	for _, a := range alerts {
		assert.Equal(t, model.SeverityMedium, a.Severity)
		if a.Competitor == "Beta" {
			beta = a
		}
	}
	require.NotNil(t, beta.DeviationPct)
	assert.Equal(t, 16.7, *beta.DeviationPct)
	assert.Contains(t, beta.Message, "16.7% above the USD median of 120.00")
	assert.NotEmpty(t, beta.RecommendedAction)
}

func TestGenerateHighAndQuiet(t *testing.T) {
	alerts := Generate([]model.CompetitorRecord{
		ok("A", "EUR", 100),
		ok("B", "EUR", 105),
		ok("C", "EUR", 200),
	})

	require.Len(t, alerts, 1)
	assert.Equal(t, model.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, "C", alerts[0].Competitor)
	assert.Equal(t, 90.5, *alerts[0].DeviationPct)
}

func TestGenerateGroupsByCurrency(t *testing.T) {
	alerts := Generate([]model.CompetitorRecord{
		ok("Euro Vans", "EUR", 100),
		ok("Kiwi Vans", "NZD", 200),
	})
	assert.Empty(t, alerts, "single-member groups never deviate")
}

func TestGenerateFailureAlerts(t *testing.T) {
	alerts := Generate([]model.CompetitorRecord{
		{CompanyName: "Down Co", Notes: "fetch failed: timeout; entry[1] failed: timeout"},
		{CompanyName: "Silent Co"},
		ok("Fine Co", "USD", 100),
	})

	require.Len(t, alerts, 2)
	assert.Equal(t, model.SeverityLow, alerts[0].Severity)
	assert.Equal(t, "no pricing collected for Down Co: fetch failed: timeout", alerts[0].Message)
	assert.Nil(t, alerts[0].DeviationPct)
	assert.Contains(t, alerts[1].Message, "no reason recorded")
}

func TestGenerateSkipsMissingBaseRate(t *testing.T) {
	rec := ok("A", "USD", 0)
	rec.BaseNightlyRate = nil
	assert.Empty(t, Generate([]model.CompetitorRecord{rec, ok("B", "USD", 100)}))
}
