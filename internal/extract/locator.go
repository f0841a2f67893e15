package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// Resolve follows a candidate locator back into res and returns the
// substring it points at. ReparseAt on that substring yields the
// candidate's value.
//
// Locator forms:
//
//	text:<start>-<end>                  visible page text
//	html:<selector>#<i>:<start>-<end>   text of the i-th match of selector
//	attr:<selector>#<i>@<attribute>     attribute of the i-th match
//	json:<seq>:<path>                   gjson path in the event with that seq
//	title:<start>-<end>                 page title
func Resolve(res *fetcher.Result, locator string) (string, error) {
	kind, rest, ok := strings.Cut(locator, ":")
	if !ok {
		return "", fmt.Errorf("malformed locator %q", locator)
	}

	switch kind {
	case "text":
		return slice(PageText(res.HTML), rest)
	case "title":
		return slice(res.Title, rest)
	case "html":
		i := strings.LastIndexByte(rest, ':')
		if i < 0 {
			return "", fmt.Errorf("malformed locator %q", locator)
		}
		sel, idx, err := splitIndex(rest[:i], '#')
		if err != nil {
			return "", err
		}
		s, err := nth(res.HTML, sel, idx)
		if err != nil {
			return "", err
		}
		return slice(SelectionText(s), rest[i+1:])
	case "attr":
		at := strings.LastIndexByte(rest, '@')
		if at < 0 {
			return "", fmt.Errorf("malformed locator %q", locator)
		}
		sel, idx, err := splitIndex(rest[:at], '#')
		if err != nil {
			return "", err
		}
		s, err := nth(res.HTML, sel, idx)
		if err != nil {
			return "", err
		}
		val, _ := s.Attr(rest[at+1:])
		return numberRe.FindString(val), nil
	case "json":
		seqStr, path, ok := strings.Cut(rest, ":")
		if !ok {
			return "", fmt.Errorf("malformed locator %q", locator)
		}
		seq, err := strconv.Atoi(seqStr)
		if err != nil {
			return "", fmt.Errorf("malformed locator %q: %w", locator, err)
		}
		for _, ev := range res.Events {
			if ev.Seq != seq {
				continue
			}
			r := gjson.GetBytes(ev.Body, path)
			if r.Type == gjson.String {
				if _, ok := jsonLiteral(r.Str); ok {
					return strings.TrimSpace(r.Str), nil
				}
				return numberRe.FindString(r.Str), nil
			}
			return r.Raw, nil
		}
		return "", fmt.Errorf("no network event %d", seq)
	}
	return "", fmt.Errorf("unknown locator kind %q", kind)
}

func slice(text, span string) (string, error) {
	a, b, ok := strings.Cut(span, "-")
	if !ok {
		return "", fmt.Errorf("malformed span %q", span)
	}
	start, err1 := strconv.Atoi(a)
	end, err2 := strconv.Atoi(b)
	if err1 != nil || err2 != nil || start < 0 || end > len(text) || start > end {
		return "", fmt.Errorf("span %q out of range", span)
	}
	return text[start:end], nil
}

func splitIndex(s string, sep byte) (string, int, error) {
	i := strings.LastIndexByte(s, sep)
	if i < 0 {
		return "", 0, fmt.Errorf("missing index in %q", s)
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("bad index in %q: %w", s, err)
	}
	return s[:i], n, nil
}

func nth(html, selector string, i int) (*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	s := doc.Find(selector)
	if i >= s.Length() {
		return nil, fmt.Errorf("selector %q has no match %d", selector, i)
	}
	return s.Eq(i), nil
}
