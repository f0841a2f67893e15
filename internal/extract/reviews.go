package extract

import (
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// Reviews returns the average rating and review count. The recipe's review
// rule is tried first (DOM selectors, then intercepted JSON); without a
// hit, schema.org aggregateRating in JSON-LD blocks is used.
func (e *Extractor) Reviews(res *fetcher.Result) (avg *float64, count *int) {
	var doc *goquery.Document
	if res.HTML != "" {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(res.HTML))
	}

	if rule := e.cfg.Recipe.Review; rule != nil {
		if doc != nil {
			if rule.AvgSelector != "" {
				avg = e.ratingFrom(SelectionText(doc.Find(rule.AvgSelector).First()))
			}
			if rule.CountSelector != "" {
				count = e.countFrom(SelectionText(doc.Find(rule.CountSelector).First()))
			}
		}
		if e.reviewRe != nil {
			for _, ev := range res.Events {
				if !ev.HasJSON() || !e.reviewRe.MatchString(ev.URL) {
					continue
				}
				if avg == nil && rule.AvgPath != "" {
					avg = e.ratingFrom(gjson.GetBytes(ev.Body, rule.AvgPath).String())
				}
				if count == nil && rule.CountPath != "" {
					count = e.countFrom(gjson.GetBytes(ev.Body, rule.CountPath).String())
				}
			}
		}
	}

	if avg == nil && doc != nil {
		ldAvg, ldCount := jsonLDRating(doc)
		avg = e.ratingFrom(ldAvg)
		if count == nil {
			count = e.countFrom(ldCount)
		}
	}
	return avg, count
}

func (e *Extractor) ratingFrom(s string) *float64 {
	v, ok := Reparse(s, e.policy)
	if !ok || v <= 0 || v > 10 {
		return nil
	}
	v = math.Round(v*100) / 100
	return &v
}

func (e *Extractor) countFrom(s string) *int {
	v, ok := Reparse(s, e.policy)
	if !ok || v < 0 || v != math.Trunc(v) {
		return nil
	}
	n := int(v)
	return &n
}

// jsonLDRating finds the first aggregateRating in the page's JSON-LD.
func jsonLDRating(doc *goquery.Document) (avg, count string) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		body := strings.TrimSpace(s.Text())
		if !gjson.Valid(body) {
			return true
		}
		if r, ok := findKey(gjson.Parse(body), "aggregateRating"); ok {
			avg = r.Get("ratingValue").String()
			count = r.Get("reviewCount").String()
			if count == "" {
				count = r.Get("ratingCount").String()
			}
			return avg == ""
		}
		return true
	})
	return avg, count
}

// findKey searches node depth-first for an object field named key.
func findKey(node gjson.Result, key string) (gjson.Result, bool) {
	var found gjson.Result
	var ok bool
	var walk func(n gjson.Result)
	walk = func(n gjson.Result) {
		if ok || !(n.IsObject() || n.IsArray()) {
			return
		}
		n.ForEach(func(k, v gjson.Result) bool {
			if n.IsObject() && k.String() == key && v.IsObject() {
				found, ok = v, true
				return false
			}
			walk(v)
			return !ok
		})
	}
	walk(node)
	return found, ok
}
