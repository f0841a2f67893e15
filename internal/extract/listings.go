package extract

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/campwatch/internal/model"
	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// Listings reads vehicle cards. A card's price, when it parses and lies in
// the band, is recorded against date (the pickup date, YYYY-MM-DD).
func (e *Extractor) Listings(res *fetcher.Result, date string) []model.VehicleListing {
	rule := e.cfg.Recipe.Listings
	if rule == nil || res.HTML == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.HTML))
	if err != nil {
		return nil
	}

	var out []model.VehicleListing
	doc.Find(rule.Card).Each(func(_ int, card *goquery.Selection) {
		name := SelectionText(card.Find(rule.Name).First())
		if name == "" {
			return
		}
		v := model.VehicleListing{Name: name}
		if rule.Category != "" {
			v.Category = SelectionText(card.Find(rule.Category).First())
		}
		if rule.Sleeps != "" {
			if m := sleepsRe.FindString(SelectionText(card.Find(rule.Sleeps).First())); m != "" {
				if n, err := strconv.Atoi(m); err == nil && n > 0 {
					v.Sleeps = &n
				}
			}
		}
		if rule.Features != "" {
			card.Find(rule.Features).Each(func(_ int, f *goquery.Selection) {
				if t := SelectionText(f); t != "" {
					v.Features = append(v.Features, t)
				}
			})
		}
		if rule.Price != "" {
			if p, ok := e.listingPrice(SelectionText(card.Find(rule.Price).First())); ok {
				v.Prices = map[string]float64{date: p}
			}
		}
		out = append(out, v)
	})
	return out
}

func (e *Extractor) listingPrice(text string) (float64, bool) {
	for _, m := range scan(text, e.cfg.Currency) {
		if m.currency != e.cfg.Currency {
			continue
		}
		if v, ok := ParseAmount(m.raw, e.policy); ok && e.cfg.Band.Contains(v) {
			return v, true
		}
	}
	if v, ok := Reparse(text, e.policy); ok && e.cfg.Band.Contains(v) {
		return v, true
	}
	return 0, false
}
