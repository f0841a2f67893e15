package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/jmylchreest/campwatch/internal/logger"
	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// DefaultStepTimeout bounds a step that sets no timeout of its own.
const DefaultStepTimeout = 10 * time.Second

var namedKeys = map[string]string{
	"enter":      kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"esc":        kb.Escape,
	"arrowdown":  kb.ArrowDown,
	"arrowup":    kb.ArrowUp,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"pagedown":   kb.PageDown,
	"end":        kb.End,
}

// runSteps executes a navigation recipe. A step whose element is missing or
// whose action fails is skipped and described in the returned notes.
func runSteps(ctx context.Context, rec *recorder, steps []fetcher.Step) (ran int, notes []string) {
	for i, step := range steps {
		if ctx.Err() != nil {
			notes = append(notes, fmt.Sprintf("step %d (%s) not run: %v", i+1, step.Action, ctx.Err()))
			return ran, notes
		}
		if err := runStep(ctx, rec, step); err != nil {
			logger.Debug("navigation step skipped", "index", i+1, "action", step.Action, "selector", step.Selector, "error", err)
			notes = append(notes, fmt.Sprintf("step %d (%s %s) skipped: %v", i+1, step.Action, step.Selector, err))
			continue
		}
		ran++
	}
	return ran, notes
}

func runStep(ctx context.Context, rec *recorder, step fetcher.Step) error {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}

	switch step.Action {
	case fetcher.ActionWaitIdle:
		if !rec.waitIdle(ctx, timeout) {
			return fmt.Errorf("network not idle after %s", timeout)
		}
		return nil
	case fetcher.ActionPress:
		key, ok := namedKeys[strings.ToLower(step.Value)]
		if !ok {
			key = step.Value
		}
		return chromedp.Run(ctx, chromedp.KeyEvent(key))
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch step.Action {
	case fetcher.ActionWaitSelector:
		return chromedp.Run(stepCtx, chromedp.WaitReady(step.Selector, chromedp.ByQuery))
	case fetcher.ActionClick:
		if !elementExists(ctx, step.Selector) {
			return fmt.Errorf("no element matches %q", step.Selector)
		}
		return chromedp.Run(stepCtx, chromedp.Click(step.Selector, chromedp.ByQuery, chromedp.NodeVisible))
	case fetcher.ActionFill:
		if !elementExists(ctx, step.Selector) {
			return fmt.Errorf("no element matches %q", step.Selector)
		}
		return chromedp.Run(stepCtx,
			chromedp.SetValue(step.Selector, "", chromedp.ByQuery),
			chromedp.SendKeys(step.Selector, step.Value, chromedp.ByQuery),
		)
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}
