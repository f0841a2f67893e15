package antibot

// ConsentSelectors covers the consent platforms campervan rental sites use
// most: OneTrust, Cookiebot, Didomi, Usercentrics, Quantcast, TrustArc,
// Complianz, Borlabs and a few generic patterns.
var ConsentSelectors = []string{
	"#onetrust-accept-btn-handler",
	"#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll",
	"#CybotCookiebotDialogBodyButtonAccept",
	"#didomi-notice-agree-button",
	"[data-testid='uc-accept-all-button']",
	"button#accept",
	".qc-cmp2-summary-buttons button[mode='primary']",
	"#truste-consent-button",
	".cmplz-btn.cmplz-accept",
	"a._brlbs-btn-accept-all",
	"button[aria-label*='Accept all' i]",
	"button[aria-label*='Accept cookies' i]",
	"[data-cookie-accept], [data-action='accept-cookies']",
	".cc-allow, .cc-accept, .cookie-accept, #cookie-accept",
}

// AcceptTokens are matched case-insensitively against button text.
var AcceptTokens = []string{
	"accept all",
	"allow all",
	"accept",
	"agree",
	"alle akzeptieren",
	"akzeptieren",
	"zustimmen",
	"tout accepter",
	"accepter",
	"aceptar",
	"accetta",
	"aceitar",
	"got it",
}
