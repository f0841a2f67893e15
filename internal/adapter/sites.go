package adapter

import (
	"time"

	"github.com/jmylchreest/campwatch/internal/model"
	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// BuiltinSites is the default competitor set. A registry file may override
// any of them by name.
var BuiltinSites = []model.CompetitorConfig{
	{
		Name:          "roadsurfer",
		Company:       "Roadsurfer",
		Country:       "DE",
		Currency:      "EUR",
		Kind:          model.KindBrowser,
		Location:      "Munich",
		DecimalPolicy: model.DecimalComma,
		EntryURLs: []string{
			"https://roadsurfer.com/de/rv-rental/?station=munich&pickup={pickup}&return={dropoff}",
			"https://roadsurfer.com/rv-rental/munich/",
		},
		Band:    model.Band{Lo: 40, Hi: 400},
		Timeout: 90 * time.Second,
		Recipe: model.Recipe{
			WaitSelector: "[data-testid='vehicle-card'], .vehicle-card",
			Network: []model.NetworkRule{
				{URLPattern: `/api/.*(search|availability|prices)`},
			},
			HTML: []model.HTMLRule{
				{Selector: ".vehicle-card .price, [data-testid='price']"},
			},
			Listings: &model.ListingRule{
				Card:     ".vehicle-card",
				Name:     "h3",
				Category: ".vehicle-category",
				Sleeps:   ".sleeping-places",
				Features: ".feature",
				Price:    ".price",
			},
		},
	},
	{
		Name:     "indie-campers",
		Company:  "Indie Campers",
		Country:  "PT",
		Currency: "EUR",
		Kind:     model.KindBrowser,
		Location: "Lisbon",
		EntryURLs: []string{
			"https://indiecampers.com/campervan-hire/search?location={location}&start_date={pickup}&end_date={dropoff}",
			"https://indiecampers.com/campervan-hire/portugal/lisbon",
		},
		Band:    model.Band{Lo: 35, Hi: 350},
		Timeout: 90 * time.Second,
		Recipe: model.Recipe{
			Steps: []fetcher.Step{
				{Action: fetcher.ActionWaitIdle},
				{Action: fetcher.ActionClick, Selector: "button[data-test='search-button']"},
				{Action: fetcher.ActionWaitIdle},
			},
			Network: []model.NetworkRule{
				{URLPattern: `/api/v\d+/(search|quotes)`, Paths: []string{"results.#.daily_price", "results.#.price_per_day"}},
			},
			Review: &model.ReviewRule{
				AvgSelector:   ".trustpilot-widget [data-rating]",
				CountSelector: ".trustpilot-widget .review-count",
			},
		},
	},
	{
		Name:          "mcrent",
		Company:       "McRent",
		Country:       "DE",
		Currency:      "EUR",
		Kind:          model.KindAuto,
		Location:      "Frankfurt",
		DecimalPolicy: model.DecimalComma,
		EntryURLs: []string{
			"https://www.mcrent.de/en/motorhome-rental/germany/frankfurt/",
		},
		Band: model.Band{Lo: 50, Hi: 450},
		Recipe: model.Recipe{
			HTML: []model.HTMLRule{
				{Selector: ".price-box, .vehicle-teaser__price"},
			},
			Attributes: []model.AttributeRule{
				{Selector: "[data-price]", Attribute: "data-price"},
			},
		},
	},
	{
		Name:     "cruise-america",
		Company:  "Cruise America",
		Country:  "US",
		Currency: "USD",
		Kind:     model.KindBrowser,
		Location: "Los Angeles",
		EntryURLs: []string{
			"https://www.cruiseamerica.com/rv-rental/reservations?pickup={location}&start={pickup}&end={dropoff}",
			"https://www.cruiseamerica.com/rv-rental/california/los-angeles",
		},
		Band:    model.Band{Lo: 30, Hi: 500},
		Timeout: 2 * time.Minute,
		Recipe: model.Recipe{
			ReuseContext: true,
			Steps: []fetcher.Step{
				{Action: fetcher.ActionFill, Selector: "#pickup-location", Value: "Los Angeles"},
				{Action: fetcher.ActionPress, Value: "Enter"},
				{Action: fetcher.ActionWaitIdle},
			},
			Network: []model.NetworkRule{
				{URLPattern: `/api/(rates|quote)`},
			},
			ScanTitle: true,
		},
	},
	{
		Name:     "jucy",
		Company:  "JUCY",
		Country:  "NZ",
		Currency: "NZD",
		Kind:     model.KindHTTP,
		Location: "Auckland",
		EntryURLs: []string{
			"https://www.jucy.com/nz/en/campervan-hire/auckland",
		},
		Band: model.Band{Lo: 40, Hi: 600},
		Recipe: model.Recipe{
			HTML: []model.HTMLRule{
				{Selector: ".fleet-card__price, .price"},
			},
			Listings: &model.ListingRule{
				Card:     ".fleet-card",
				Name:     ".fleet-card__title",
				Sleeps:   ".fleet-card__sleeps",
				Features: ".fleet-card__feature",
				Price:    ".fleet-card__price",
			},
		},
	},
	{
		Name:     "apollo",
		Company:  "Apollo Motorhome Holidays",
		Country:  "AU",
		Currency: "AUD",
		Kind:     model.KindAuto,
		Location: "Sydney",
		EntryURLs: []string{
			"https://apollocamper.com/campervan-hire/australia/sydney?pickup={pickup}&dropoff={dropoff}",
			"https://apollocamper.com/specials",
		},
		Band: model.Band{Lo: 50, Hi: 700},
		Recipe: model.Recipe{
			Promotions: []model.PromotionRule{
				{Pattern: `(?i)(relocation deal[^.]*|\d{1,2}\s?% off[^.]*)`},
			},
			Review: &model.ReviewRule{
				URLPattern: `reviews\.(io|co\.uk)/api`,
				AvgPath:    "stats.average_rating",
				CountPath:  "stats.total_reviews",
			},
		},
	},
}

// Builtin returns a registry holding BuiltinSites.
func Builtin() (*Registry, error) {
	r := NewRegistry()
	for _, cfg := range BuiltinSites {
		if err := r.Register(cfg, nil); err != nil {
			return nil, err
		}
	}
	return r, nil
}
