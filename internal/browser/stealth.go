package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// stealthTemplate hides the automation signals headless Chrome exposes.
// The two %s verbs receive the identity's languages and platform as JSON.
const stealthTemplate = `
(function() {
    'use strict';
    const languages = %s;
    const platform = %s;

    Object.defineProperty(navigator, 'webdriver', { get: () => undefined, configurable: true });
    delete Object.getPrototypeOf(navigator).webdriver;

    Object.defineProperty(navigator, 'languages', { get: () => Object.freeze(languages.slice()), configurable: true });
    Object.defineProperty(navigator, 'platform', { get: () => platform, configurable: true });

    // Headless Chrome reports no plugins.
    const names = ['PDF Viewer', 'Chrome PDF Viewer', 'Chromium PDF Viewer'];
    const plugins = Object.create(PluginArray.prototype);
    names.forEach((name, i) => {
        const p = Object.create(Plugin.prototype);
        Object.defineProperties(p, {
            name: { value: name, enumerable: true },
            filename: { value: 'internal-pdf-viewer', enumerable: true },
            description: { value: 'Portable Document Format', enumerable: true },
            length: { value: 1, enumerable: true }
        });
        plugins[i] = p;
        plugins[name] = p;
    });
    Object.defineProperty(plugins, 'length', { value: names.length });
    Object.defineProperty(plugins, 'item', { value: (i) => plugins[i] || null });
    Object.defineProperty(plugins, 'namedItem', { value: (n) => plugins[n] || null });
    Object.defineProperty(navigator, 'plugins', { get: () => plugins, configurable: true });

    if (!window.chrome) {
        Object.defineProperty(window, 'chrome', { value: {}, writable: true, enumerable: true, configurable: false });
    }
    if (!window.chrome.runtime) {
        window.chrome.runtime = { connect: function() {}, sendMessage: function() {}, get id() { return undefined; } };
    }

    const query = Permissions.prototype.query;
    Permissions.prototype.query = function(parameters) {
        if (parameters && parameters.name === 'notifications') {
            return Promise.resolve({ state: Notification.permission });
        }
        return query.call(this, parameters);
    };

    const spoofGL = {
        apply: function(target, ctx, args) {
            if (args[0] === 37445) { return 'Intel Inc.'; }
            if (args[0] === 37446) { return 'Intel Iris OpenGL Engine'; }
            return Reflect.apply(target, ctx, args);
        }
    };
    try {
        WebGLRenderingContext.prototype.getParameter = new Proxy(WebGLRenderingContext.prototype.getParameter, spoofGL);
        WebGL2RenderingContext.prototype.getParameter = new Proxy(WebGL2RenderingContext.prototype.getParameter, spoofGL);
    } catch (e) {}

    if (!navigator.hardwareConcurrency) {
        Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => 8, configurable: true });
    }
    if (!navigator.deviceMemory) {
        Object.defineProperty(navigator, 'deviceMemory', { get: () => 8, configurable: true });
    }
})();
`

// stealthScript renders the evasion script for an identity.
func stealthScript(id fetcher.Identity) string {
	langs, _ := json.Marshal(languageTags(id.AcceptLanguage))
	platform, _ := json.Marshal(id.Platform)
	return fmt.Sprintf(stealthTemplate, langs, platform)
}

// languageTags turns "en-GB,en;q=0.9" into ["en-GB", "en"].
func languageTags(acceptLanguage string) []string {
	var tags []string
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return []string{"en-US", "en"}
	}
	return tags
}

// allocatorOptions returns Chrome flags for a headless, low-signal browser.
func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),

		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("useAutomationExtension", false),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),

		chromedp.WindowSize(fetcher.DefaultIdentity.Width, fetcher.DefaultIdentity.Height),
		chromedp.Flag("lang", "en-US,en"),
		chromedp.UserAgent(fetcher.DefaultIdentity.UserAgent),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.BrowserPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.BrowserPath))
	}
	if cfg.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.ProxyURL))
	}
	return opts
}

// injectStealth registers the evasion script for id before any page script
// runs. A reused tab already carrying another identity's script has it
// replaced, so navigator.languages follows the current identity.
func injectStealth(s *session, id fetcher.Identity) chromedp.Action {
	source := stealthScript(id)
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if !s.needsStealth(source) {
			return nil
		}
		if s.script != "" {
			if err := page.RemoveScriptToEvaluateOnNewDocument(s.script).Do(ctx); err != nil {
				return fmt.Errorf("remove stealth script: %w", err)
			}
			s.script, s.scriptSource = "", ""
		}
		sid, err := page.AddScriptToEvaluateOnNewDocument(source).Do(ctx)
		if err != nil {
			return err
		}
		s.script, s.scriptSource = sid, source
		return nil
	})
}

// captureScreenshot grabs the viewport, or nil if the tab is unusable.
func captureScreenshot(ctx context.Context) []byte {
	var shot []byte
	captureCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := chromedp.Run(captureCtx, chromedp.CaptureScreenshot(&shot)); err != nil {
		return nil
	}
	return shot
}
