// Package extract turns fetched pages into raw price candidates and the
// auxiliary signals a record carries: promotions, reviews and vehicle
// listings. Every candidate keeps a locator that Resolve can follow back
// to the exact substring it was parsed from.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/campwatch/internal/logger"
	"github.com/jmylchreest/campwatch/internal/model"
	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// Source says where a candidate was found.
type Source string

const (
	SourceText      Source = "visible-text"
	SourceAttribute Source = "html-attribute"
	SourceJSON      Source = "json-field"
	SourceTitle     Source = "page-title"
)

// Candidate is a raw price before normalization.
type Candidate struct {
	Value      float64 `json:"value"`
	Currency   string  `json:"currency"`
	Source     Source  `json:"source"`
	Locator    string  `json:"locator"`
	Raw        string  `json:"raw"`
	Confidence float64 `json:"confidence"`
}

const (
	confidenceJSON      = 0.9
	confidenceAttribute = 0.8
	confidenceTitle     = 0.4
)

type networkRule struct {
	re    *regexp.Regexp
	paths []string
}

type promotionRule struct {
	re       *regexp.Regexp
	selector string
}

// Extractor applies one competitor's capture rules.
type Extractor struct {
	cfg      model.CompetitorConfig
	policy   model.DecimalPolicy
	network  []networkRule
	promos   []promotionRule
	reviewRe *regexp.Regexp
}

// New compiles the capture rules of cfg.
func New(cfg model.CompetitorConfig) (*Extractor, error) {
	e := &Extractor{cfg: cfg, policy: cfg.DecimalPolicy}
	if e.policy == "" {
		e.policy = model.DecimalAuto
	}

	for _, r := range cfg.Recipe.Network {
		re, err := regexp.Compile(r.URLPattern)
		if err != nil {
			return nil, fmt.Errorf("network rule %q: %w", r.URLPattern, err)
		}
		e.network = append(e.network, networkRule{re: re, paths: r.Paths})
	}

	promos := cfg.Recipe.Promotions
	if len(promos) == 0 {
		promos = DefaultPromotions
	}
	for _, p := range promos {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("promotion rule %q: %w", p.Pattern, err)
		}
		e.promos = append(e.promos, promotionRule{re: re, selector: p.Selector})
	}

	if rv := cfg.Recipe.Review; rv != nil && rv.URLPattern != "" {
		re, err := regexp.Compile(rv.URLPattern)
		if err != nil {
			return nil, fmt.Errorf("review rule %q: %w", rv.URLPattern, err)
		}
		e.reviewRe = re
	}
	return e, nil
}

// Policy returns the decimal policy in force.
func (e *Extractor) Policy() model.DecimalPolicy {
	return e.policy
}

// Intercepts reports whether a response at url should have its JSON body
// captured.
func (e *Extractor) Intercepts(url string) bool {
	for _, r := range e.network {
		if r.re.MatchString(url) {
			return true
		}
	}
	return e.reviewRe != nil && e.reviewRe.MatchString(url)
}

// Candidates mines res with every capture rule. Order is stable: JSON
// payloads in arrival order, then attributes, then text, then the title.
func (e *Extractor) Candidates(res *fetcher.Result) []Candidate {
	var out []Candidate
	out = append(out, e.jsonCandidates(res.Events)...)

	if res.HTML != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.HTML))
		if err != nil {
			logger.Debug("html parse failed", "adapter", e.cfg.Name, "error", err)
		} else {
			out = append(out, e.attributeCandidates(doc)...)
			out = append(out, e.textCandidates(doc)...)
		}
	}

	if e.cfg.Recipe.ScanTitle && res.Title != "" {
		for _, m := range scan(res.Title, e.cfg.Currency) {
			if v, ok := ParseAmount(m.raw, e.policy); ok {
				out = append(out, Candidate{
					Value:      v,
					Currency:   m.currency,
					Source:     SourceTitle,
					Locator:    fmt.Sprintf("title:%d-%d", m.start, m.end),
					Raw:        m.raw,
					Confidence: confidenceTitle,
				})
			}
		}
	}

	logger.Debug("candidates extracted", "adapter", e.cfg.Name, "count", len(out))
	return out
}

// textCandidates scans the HTML rules' elements, or the whole visible
// page when the recipe names none.
func (e *Extractor) textCandidates(doc *goquery.Document) []Candidate {
	var out []Candidate
	if len(e.cfg.Recipe.HTML) == 0 {
		text := SelectionText(doc.Find("body"))
		for _, m := range scan(text, e.cfg.Currency) {
			out = e.appendText(out, m, fmt.Sprintf("text:%d-%d", m.start, m.end))
		}
		return out
	}

	for _, rule := range e.cfg.Recipe.HTML {
		doc.Find(rule.Selector).Each(func(i int, s *goquery.Selection) {
			text := SelectionText(s)
			for _, m := range scan(text, e.cfg.Currency) {
				out = e.appendText(out, m, fmt.Sprintf("html:%s#%d:%d-%d", rule.Selector, i, m.start, m.end))
			}
		})
	}
	return out
}

func (e *Extractor) appendText(out []Candidate, m match, locator string) []Candidate {
	v, ok := ParseAmount(m.raw, e.policy)
	if !ok {
		return out
	}
	return append(out, Candidate{
		Value:      v,
		Currency:   m.currency,
		Source:     SourceText,
		Locator:    locator,
		Raw:        m.raw,
		Confidence: m.confidence,
	})
}

func (e *Extractor) attributeCandidates(doc *goquery.Document) []Candidate {
	var out []Candidate
	for _, rule := range e.cfg.Recipe.Attributes {
		doc.Find(rule.Selector).Each(func(i int, s *goquery.Selection) {
			val, ok := s.Attr(rule.Attribute)
			if !ok {
				return
			}
			raw := numberRe.FindString(val)
			v, ok := ParseAmount(raw, e.policy)
			if !ok {
				return
			}
			cur := e.cfg.Currency
			if m := symbolRe.FindString(val); m != "" {
				cur = currencyFor(m, e.cfg.Currency)
			}
			out = append(out, Candidate{
				Value:      v,
				Currency:   cur,
				Source:     SourceAttribute,
				Locator:    fmt.Sprintf("attr:%s#%d@%s", rule.Selector, i, rule.Attribute),
				Raw:        raw,
				Confidence: confidenceAttribute,
			})
		})
	}
	return out
}

var symbolRe = regexp.MustCompile(symbolExpr)

// PageHasDigits reports whether the visible page text contains a digit.
func PageHasDigits(res *fetcher.Result) bool {
	if HasDigits(PageText(res.HTML)) {
		return true
	}
	for _, ev := range res.Events {
		if ev.HasJSON() && HasDigits(string(ev.Body)) {
			return true
		}
	}
	return false
}
