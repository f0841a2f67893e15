package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/campwatch/internal/model"
	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// DefaultPromotions apply when a recipe declares no promotion rules.
var DefaultPromotions = []model.PromotionRule{
	{Pattern: `(?i:promo(?:tion)?\s*code|discount\s*code|coupon(?:\s*code)?|use\s+code|rabattcode|code\s+promo)\s*[:\-]?\s*(?P<code>[A-Z0-9]{4,16})\b`},
	{Pattern: `(?i)\b(?:save\s+)?\d{1,2}\s?%\s*(?:off|discount|rabatt|korting|de\s+descuento|de\s+réduction)\b[^.!\n]{0,60}`},
	{Pattern: `(?i)\b(?:early\s+bird|last\s+minute|special\s+offer|flash\s+sale|free\s+(?:kilometres|kilometers|miles|cancellation))\b[^.!\n]{0,60}`},
}

const maxPromotionLen = 120

// Promotions returns the distinct promotion texts found on the page and
// any promo codes they name, both in first-seen order.
func (e *Extractor) Promotions(res *fetcher.Result) (promos, codes []string) {
	if res.HTML == "" {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.HTML))
	if err != nil {
		return nil, nil
	}
	page := SelectionText(doc.Find("body"))

	seenPromo := map[string]bool{}
	seenCode := map[string]bool{}
	for _, rule := range e.promos {
		text := page
		if rule.selector != "" {
			text = SelectionText(doc.Find(rule.selector))
		}
		codeIdx := rule.re.SubexpIndex("code")
		for _, m := range rule.re.FindAllStringSubmatch(text, -1) {
			promo := strings.TrimSpace(m[0])
			if r := []rune(promo); len(r) > maxPromotionLen {
				promo = strings.TrimSpace(string(r[:maxPromotionLen]))
			}
			key := strings.ToLower(promo)
			if promo != "" && !seenPromo[key] {
				seenPromo[key] = true
				promos = append(promos, promo)
			}
			if codeIdx >= 0 && m[codeIdx] != "" {
				code := strings.ToUpper(m[codeIdx])
				if !seenCode[code] {
					seenCode[code] = true
					codes = append(codes, code)
				}
			}
		}
	}
	return promos, codes
}
