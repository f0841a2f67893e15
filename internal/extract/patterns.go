package extract

import (
	"regexp"
	"sort"
	"strings"
)

// symbolExpr lists currency markers, longest first so that "NZ$" wins
// over "$".
const symbolExpr = `US\$|AU\$|A\$|NZ\$|CA\$|C\$|€|£|\$|\b(?:EUR|USD|GBP|AUD|NZD|CAD|CHF|SEK|NOK|DKK)\b|\bkr\.?`

type pattern struct {
	name       string
	re         *regexp.Regexp
	confidence float64

	// rejectAfter discards a hit when the text following the number
	// matches, e.g. "from 120 reviews".
	rejectAfter *regexp.Regexp
}

// The price regex bank. Each pattern exposes a "num" group and optional
// "sym" (before the number) and "sym2" (after it) groups.
var bank = []pattern{
	{
		name:       "per-day",
		re:         regexp.MustCompile(`(?i)(?P<sym>` + symbolExpr + `)?\s?(?P<num>` + numberExpr + `)\s?(?P<sym2>` + symbolExpr + `)?\s*(?:/|per|a|pro)\s*(?:day|night|nacht|tag|jour|nuit|día|dia|noche|dag|døgn|natt)\b`),
		confidence: 0.75,
	},
	{
		name:        "from",
		re:          regexp.MustCompile(`(?i)\b(?:from|ab|desde|vanaf|dès|partir de|fra|från)\s*(?P<sym>` + symbolExpr + `)?\s?(?P<num>` + numberExpr + `)`),
		confidence:  0.7,
		rejectAfter: regexp.MustCompile(`(?i)^\s*(?:reviews?|ratings?|votes?|bewertungen|avis|opiniones|people|persons?|personen|guests?|gäste|customers?|kunden|travell?ers?|users?|stars?)\b`),
	},
	{
		name:       "leading",
		re:         regexp.MustCompile(`(?P<sym>` + symbolExpr + `)\s?(?P<num>` + numberExpr + `)`),
		confidence: 0.6,
	},
	{
		name:       "trailing",
		re:         regexp.MustCompile(`(?P<num>` + numberExpr + `)\s?(?P<sym2>` + symbolExpr + `)`),
		confidence: 0.6,
	},
}

var dollarCurrencies = map[string]bool{"USD": true, "AUD": true, "NZD": true, "CAD": true}
var kronaCurrencies = map[string]bool{"SEK": true, "NOK": true, "DKK": true}

// currencyFor maps a matched symbol to an ISO code. Ambiguous symbols
// resolve to the declared currency when it is compatible, and no symbol
// at all means the declared currency.
func currencyFor(sym, declared string) string {
	s := strings.ToUpper(strings.TrimSpace(sym))
	switch s {
	case "":
		return declared
	case "€":
		return "EUR"
	case "£":
		return "GBP"
	case "US$":
		return "USD"
	case "AU$", "A$":
		return "AUD"
	case "NZ$":
		return "NZD"
	case "CA$", "C$":
		return "CAD"
	case "$":
		if dollarCurrencies[declared] {
			return declared
		}
		return "USD"
	case "KR", "KR.":
		if kronaCurrencies[declared] {
			return declared
		}
		return "SEK"
	}
	return s
}

// match is one price found in a text, one per number span.
type match struct {
	start, end int // span of the number
	raw        string
	currency   string
	confidence float64
}

// hit is a single pattern match before spans are resolved.
type hit struct {
	start, end int
	sym        string
	symAt      int // offset of sym, -1 without one
	leading    bool
	confidence float64
}

// scan runs the regex bank over text and returns one match per number.
//
// A symbol sitting between two numbers, as in "$95 €120", is claimed by
// the number it precedes unless that number carries its own trailing
// symbol. A number whose only symbol belongs to its neighbour is dropped.
func scan(text, declared string) []match {
	spans := map[[2]int][]hit{}
	var order [][2]int
	for _, p := range bank {
		num := p.re.SubexpIndex("num")
		sym := p.re.SubexpIndex("sym")
		sym2 := p.re.SubexpIndex("sym2")
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			if loc[2*num] < 0 {
				continue
			}
			h := hit{start: loc[2*num], end: loc[2*num+1], symAt: -1, confidence: p.confidence}
			if p.rejectAfter != nil && p.rejectAfter.MatchString(text[h.end:]) {
				continue
			}
			if s := group(text, loc, sym); s != "" {
				h.sym, h.symAt, h.leading = s, loc[2*sym], true
			} else if s := group(text, loc, sym2); s != "" {
				h.sym, h.symAt = s, loc[2*sym2]
			}
			key := [2]int{h.start, h.end}
			if _, ok := spans[key]; !ok {
				order = append(order, key)
			}
			spans[key] = append(spans[key], h)
		}
	}

	// trailingOf maps a symbol offset to the span using it as a suffix;
	// claimed holds the prefixes of spans without a suffix of their own.
	trailingOf := map[int][2]int{}
	claimed := map[int]bool{}
	for key, hits := range spans {
		suffixed := false
		for _, h := range hits {
			if h.symAt >= 0 && !h.leading {
				trailingOf[h.symAt] = key
				suffixed = true
			}
		}
		if !suffixed {
			for _, h := range hits {
				if h.leading {
					claimed[h.symAt] = true
				}
			}
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i][0] != order[j][0] {
			return order[i][0] < order[j][0]
		}
		return order[i][1] < order[j][1]
	})

	var out []match
	for _, key := range order {
		chosen, ok := pickSymbol(key, spans[key], trailingOf, claimed)
		if !ok {
			continue
		}
		m := match{start: key[0], end: key[1], raw: text[key[0]:key[1]], currency: currencyFor(chosen.sym, declared)}
		for _, h := range spans[key] {
			if (h.symAt < 0 || h.symAt == chosen.symAt) && h.confidence > m.confidence {
				m.confidence = h.confidence
			}
		}
		out = append(out, m)
	}
	return out
}

// pickSymbol chooses the hit whose symbol decides a span's currency: an
// uncontested prefix, then an unclaimed suffix, then a contested prefix,
// then a bare number.
func pickSymbol(key [2]int, hits []hit, trailingOf map[int][2]int, claimed map[int]bool) (hit, bool) {
	var contested, suffix, bare *hit
	for i := range hits {
		h := &hits[i]
		switch {
		case h.symAt < 0:
			bare = h
		case h.leading:
			if owner, ok := trailingOf[h.symAt]; ok && owner != key {
				contested = h
				continue
			}
			return *h, true
		case !claimed[h.symAt]:
			suffix = h
		}
	}
	for _, h := range []*hit{suffix, contested, bare} {
		if h != nil {
			return *h, true
		}
	}
	return hit{}, false
}

func group(text string, loc []int, idx int) string {
	if idx < 0 || loc[2*idx] < 0 {
		return ""
	}
	return text[loc[2*idx]:loc[2*idx+1]]
}
