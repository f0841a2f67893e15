package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/jmylchreest/campwatch/internal/antibot"
)

// tabPage adapts a chromedp tab to antibot.Page.
type tabPage struct {
	ctx context.Context
}

var _ antibot.Page = (*tabPage)(nil)

func (p *tabPage) Snapshot(ctx context.Context) (antibot.Snapshot, error) {
	var title, html string
	err := chromedp.Run(p.ctx,
		chromedp.Evaluate(`document.title`, &title),
		chromedp.Evaluate(`document.documentElement ? document.documentElement.outerHTML : ""`, &html),
	)
	if err != nil {
		return antibot.Snapshot{}, err
	}
	return antibot.Snapshot{Title: title, Text: antibot.VisibleText(html), HTML: html}, nil
}

const clickSelectorJS = `(function(sel) {
    let el;
    try { el = document.querySelector(sel); } catch (e) { return false; }
    if (!el) { return false; }
    const r = el.getBoundingClientRect();
    const st = window.getComputedStyle(el);
    if (r.width === 0 || r.height === 0 || st.visibility === 'hidden' || st.display === 'none') { return false; }
    el.click();
    return true;
})(%s)`

func (p *tabPage) ClickSelector(ctx context.Context, selector string) (bool, error) {
	arg, _ := json.Marshal(selector)
	var clicked bool
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(fmt.Sprintf(clickSelectorJS, arg), &clicked)); err != nil {
		return false, err
	}
	return clicked, nil
}

const clickButtonTextJS = `(function(tokens) {
    const nodes = document.querySelectorAll('button, [role="button"], a, input[type="button"], input[type="submit"]');
    for (const el of nodes) {
        const r = el.getBoundingClientRect();
        if (r.width === 0 || r.height === 0) { continue; }
        const text = (el.innerText || el.value || '').trim().toLowerCase();
        if (!text || text.length > 40) { continue; }
        for (const t of tokens) {
            if (text.includes(t)) { el.click(); return text; }
        }
    }
    return '';
})(%s)`

func (p *tabPage) ClickButtonWithText(ctx context.Context, tokens []string) (string, error) {
	arg, _ := json.Marshal(tokens)
	var text string
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(fmt.Sprintf(clickButtonTextJS, arg), &text)); err != nil {
		return "", err
	}
	return text, nil
}

// overlayJS looks for a fixed or sticky element that covers a large part of
// the viewport or mentions cookies.
const overlayJS = `(function() {
    const vw = window.innerWidth, vh = window.innerHeight;
    for (const el of document.querySelectorAll('body *')) {
        const st = window.getComputedStyle(el);
        if (st.position !== 'fixed' && st.position !== 'sticky') { continue; }
        if (st.display === 'none' || st.visibility === 'hidden') { continue; }
        const r = el.getBoundingClientRect();
        if (r.width === 0 || r.height === 0) { continue; }
        const text = (el.innerText || '').toLowerCase();
        if (r.width * r.height > vw * vh * 0.3 || text.includes('cookie') || text.includes('consent')) { return true; }
    }
    return false;
})()`

func (p *tabPage) OverlayPresent(ctx context.Context) (bool, error) {
	var present bool
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(overlayJS, &present)); err != nil {
		return false, err
	}
	return present, nil
}

func (p *tabPage) PressEscape(ctx context.Context) error {
	return chromedp.Run(p.ctx, chromedp.KeyEvent(kb.Escape))
}

// elementExists reports whether selector matches anything right now.
func elementExists(ctx context.Context, selector string) bool {
	arg, _ := json.Marshal(selector)
	var ok bool
	js := fmt.Sprintf(`(function(sel){ try { return document.querySelector(sel) !== null; } catch (e) { return false; } })(%s)`, arg)
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &ok)); err != nil {
		return false
	}
	return ok
}
