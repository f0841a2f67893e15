package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jmylchreest/campwatch/internal/model"
)

// numberExpr matches an integer or decimal with optional thousands grouping.
const numberExpr = `\d{1,3}(?:[.,']\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d+)?`

var numberRe = regexp.MustCompile(numberExpr)

// ParseAmount reads a number matched by numberExpr under the given policy.
//
// With DecimalAuto, when both '.' and ',' occur the last one is the decimal
// mark and the other groups thousands; a lone separator followed by exactly
// three digits groups thousands, any other lone separator is decimal.
func ParseAmount(raw string, policy model.DecimalPolicy) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	raw = strings.ReplaceAll(raw, "'", "")

	var decimal byte
	switch policy {
	case model.DecimalDot:
		decimal = '.'
	case model.DecimalComma:
		decimal = ','
	default:
		decimal = autoDecimalMark(raw)
	}

	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == decimal:
			b.WriteByte('.')
		case c == '.' || c == ',':
			// grouping
		default:
			return 0, false
		}
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// autoDecimalMark returns the decimal separator of raw, or 0 for none.
func autoDecimalMark(raw string) byte {
	lastDot := strings.LastIndexByte(raw, '.')
	lastComma := strings.LastIndexByte(raw, ',')

	if lastDot >= 0 && lastComma >= 0 {
		if lastDot > lastComma {
			return '.'
		}
		return ','
	}

	sep, last := byte('.'), lastDot
	if lastComma >= 0 {
		sep, last = ',', lastComma
	}
	if last < 0 {
		return 0
	}
	if strings.Count(raw, string(sep)) > 1 {
		return 0
	}
	if len(raw)-last-1 == 3 {
		return 0
	}
	return sep
}

// Reparse finds the first number in s and parses it.
func Reparse(s string, policy model.DecimalPolicy) (float64, bool) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	return ParseAmount(m, policy)
}

// jsonLiteralRe matches a string holding a bare JSON number.
var jsonLiteralRe = regexp.MustCompile(`^\d+(?:\.\d+)?(?:[eE][+-]?\d+)?$`)

// jsonLiteral parses strings such as "89.00" that APIs use to carry
// numbers. They follow JSON number syntax, so '.' is always the decimal
// mark whatever the competitor's locale.
func jsonLiteral(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !jsonLiteralRe.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ReparseAt parses raw as resolved from locator. Values under a json
// locator are read as JSON numbers when they look like one; everything
// else goes through Reparse.
func ReparseAt(locator, raw string, policy model.DecimalPolicy) (float64, bool) {
	if strings.HasPrefix(locator, "json:") {
		if v, ok := jsonLiteral(raw); ok {
			return v, true
		}
	}
	return Reparse(raw, policy)
}

// HasDigits reports whether s contains any ASCII digit.
func HasDigits(s string) bool {
	return strings.IndexAny(s, "0123456789") >= 0
}

var sleepsRe = regexp.MustCompile(`\d{1,2}`)
