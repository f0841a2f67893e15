package extract

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// PriceKeywords mark a JSON field name as price-like.
var PriceKeywords = []string{"price", "rate", "cost", "total", "charge", "daily", "fee", "amount"}

func priceField(name string) bool {
	lower := strings.ToLower(name)
	for _, k := range PriceKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// jsonCandidates mines every intercepted payload that a network rule
// matches, in arrival order.
func (e *Extractor) jsonCandidates(events []fetcher.NetworkEvent) []Candidate {
	var out []Candidate
	for _, ev := range events {
		if !ev.HasJSON() {
			continue
		}
		for _, rule := range e.network {
			if !rule.re.MatchString(ev.URL) {
				continue
			}
			if len(rule.paths) == 0 {
				out = append(out, e.mine(ev.Seq, gjson.ParseBytes(ev.Body), "")...)
				continue
			}
			for _, p := range rule.paths {
				out = append(out, e.atPath(ev, p)...)
			}
		}
	}
	return out
}

// atPath reads a configured gjson path. Scalars are taken as they are;
// objects and arrays found at the path are mined depth-first.
func (e *Extractor) atPath(ev fetcher.NetworkEvent, path string) []Candidate {
	body := string(ev.Body)
	r := gjson.Get(body, path)
	if !r.Exists() {
		return nil
	}

	if strings.Contains(path, "#") && r.IsArray() {
		elems := r.Array()
		paths := r.Paths(body)
		var out []Candidate
		for i, el := range elems {
			p := path
			if len(paths) == len(elems) {
				p = paths[i]
			}
			out = append(out, e.scalar(ev.Seq, el, p)...)
		}
		return out
	}
	return e.scalar(ev.Seq, r, path)
}

func (e *Extractor) scalar(seq int, r gjson.Result, path string) []Candidate {
	switch r.Type {
	case gjson.Number:
		return []Candidate{e.jsonCandidate(seq, path, r.Raw, r.Float())}
	case gjson.String:
		if v, ok := jsonLiteral(r.Str); ok {
			return []Candidate{e.jsonCandidate(seq, path, strings.TrimSpace(r.Str), v)}
		}
		raw := numberRe.FindString(r.Str)
		v, ok := ParseAmount(raw, e.policy)
		if !ok {
			return nil
		}
		c := e.jsonCandidate(seq, path, raw, v)
		if sym := symbolRe.FindString(r.Str); sym != "" {
			c.Currency = currencyFor(sym, e.cfg.Currency)
		}
		return []Candidate{c}
	case gjson.JSON:
		return e.mine(seq, r, path)
	}
	return nil
}

func (e *Extractor) jsonCandidate(seq int, path, raw string, v float64) Candidate {
	return Candidate{
		Value:      v,
		Currency:   e.cfg.Currency,
		Source:     SourceJSON,
		Locator:    fmt.Sprintf("json:%d:%s", seq, path),
		Raw:        raw,
		Confidence: confidenceJSON,
	}
}

// mine walks r depth-first and emits numeric fields whose name looks like
// a price and whose value lies in the band. prefix is r's own path.
func (e *Extractor) mine(seq int, r gjson.Result, prefix string) []Candidate {
	var out []Candidate
	var walk func(node gjson.Result, path, field string)
	walk = func(node gjson.Result, path, field string) {
		switch {
		case node.IsObject() || node.IsArray():
			node.ForEach(func(key, value gjson.Result) bool {
				child := key.String()
				name := field
				if node.IsObject() {
					name = child
				}
				walk(value, joinPath(path, escapeKey(child)), name)
				return true
			})
		case node.Type == gjson.Number:
			if priceField(field) && e.cfg.Band.Contains(node.Float()) {
				out = append(out, e.jsonCandidate(seq, path, node.Raw, node.Float()))
			}
		}
	}
	walk(r, prefix, "")
	return out
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// escapeKey escapes the characters gjson treats as path syntax.
func escapeKey(key string) string {
	var b strings.Builder
	for _, c := range key {
		switch c {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
