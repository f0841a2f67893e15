package browser

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/campwatch/internal/logger"
	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// quietPeriod is how long the network must stay idle to count as settled.
const quietPeriod = 500 * time.Millisecond

// recorder observes the tab's network traffic during one fetch. Events are
// numbered on arrival; JSON bodies of intercepted responses are fetched in
// the background once loading finishes.
type recorder struct {
	ctx       context.Context
	intercept func(string) bool
	maxBody   int64
	mainFrame cdp.FrameID

	mu           sync.Mutex
	events       []*fetcher.NetworkEvent
	byID         map[network.RequestID]*fetcher.NetworkEvent
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
	docStatus    int
	docURL       string

	bodies sync.WaitGroup
}

func newRecorder(ctx context.Context, intercept func(string) bool, maxBody int64) *recorder {
	r := &recorder{
		ctx:          ctx,
		intercept:    intercept,
		maxBody:      maxBody,
		byID:         make(map[network.RequestID]*fetcher.NetworkEvent),
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
	if c := chromedp.FromContext(ctx); c != nil && c.Target != nil {
		r.mainFrame = cdp.FrameID(c.Target.TargetID)
	}
	return r
}

// listen attaches the recorder to the tab until ctx is done.
func (r *recorder) listen(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			r.onRequest(e)
		case *network.EventResponseReceived:
			r.onResponse(e)
		case *network.EventLoadingFinished:
			r.onFinished(e.RequestID)
		case *network.EventLoadingFailed:
			r.onFailed(e.RequestID)
		}
	})
}

func (r *recorder) onRequest(e *network.EventRequestWillBeSent) {
	if e.Request == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActivity = time.Now()
	// Long-lived streams never finish and would hold idle detection open.
	if e.Type == network.ResourceTypeWebSocket || e.Type == network.ResourceTypeEventSource {
		return
	}
	r.inflight[e.RequestID] = struct{}{}

	if ev, ok := r.byID[e.RequestID]; ok {
		// A redirect reuses the request id; follow the new URL.
		ev.URL = e.Request.URL
		return
	}
	ev := &fetcher.NetworkEvent{
		Seq:          len(r.events),
		Time:         time.Now(),
		Method:       e.Request.Method,
		URL:          e.Request.URL,
		ResourceType: string(e.Type),
	}
	r.events = append(r.events, ev)
	r.byID[e.RequestID] = ev
}

func (r *recorder) onResponse(e *network.EventResponseReceived) {
	if e.Response == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActivity = time.Now()
	if ev, ok := r.byID[e.RequestID]; ok {
		ev.URL = e.Response.URL
		ev.Status = int(e.Response.Status)
		ev.MIMEType = e.Response.MimeType
	}
	if e.Type == network.ResourceTypeDocument && (r.mainFrame == "" || e.FrameID == r.mainFrame) {
		r.docStatus = int(e.Response.Status)
		r.docURL = e.Response.URL
	}
}

func (r *recorder) onFinished(id network.RequestID) {
	r.mu.Lock()
	r.lastActivity = time.Now()
	delete(r.inflight, id)
	ev, ok := r.byID[id]
	wanted := ok && r.intercept != nil && fetcher.IsJSONContentType(ev.MIMEType) && r.intercept(ev.URL)
	var url string
	if ok {
		url = ev.URL
	}
	r.mu.Unlock()

	if !wanted {
		return
	}
	// Event handlers must not block on CDP calls.
	r.bodies.Add(1)
	go func() {
		defer r.bodies.Done()
		r.fetchBody(id, url, ev)
	}()
}

func (r *recorder) onFailed(id network.RequestID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastActivity = time.Now()
	delete(r.inflight, id)
}

func (r *recorder) fetchBody(id network.RequestID, url string, ev *fetcher.NetworkEvent) {
	c := chromedp.FromContext(r.ctx)
	if c == nil || c.Target == nil {
		return
	}
	body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(r.ctx, c.Target))
	if err != nil {
		logger.Debug("response body unavailable", "url", url, "error", err)
		return
	}
	if !json.Valid(body) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ev.BodySize = len(body)
	if r.maxBody > 0 && int64(len(body)) > r.maxBody {
		logger.Debug("response body over size cap", "url", url, "size", len(body))
		return
	}
	ev.Body = json.RawMessage(body)
}

// waitIdle blocks until no requests have been in flight for quietPeriod,
// budget elapses, or ctx is done. It reports whether the network settled.
func (r *recorder) waitIdle(ctx context.Context, budget time.Duration) bool {
	deadline := time.Now().Add(budget)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		r.mu.Lock()
		idle := len(r.inflight) == 0 && time.Since(r.lastActivity) >= quietPeriod
		r.mu.Unlock()
		if idle {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// waitBodies waits for pending body fetches for at most d.
func (r *recorder) waitBodies(d time.Duration) {
	done := make(chan struct{})
	go func() {
		r.bodies.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		logger.Debug("gave up waiting for response bodies", "after", d)
	}
}

// document returns the status and URL of the last main-frame document.
func (r *recorder) document() (int, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docStatus, r.docURL
}

// snapshot copies the recorded events in arrival order.
func (r *recorder) snapshot() []fetcher.NetworkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]fetcher.NetworkEvent, len(r.events))
	for i, ev := range r.events {
		out[i] = *ev
	}
	return out
}
