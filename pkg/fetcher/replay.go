package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Artifact file names shared with the artifact store.
const (
	PageFile       = "page.html"
	ScreenshotFile = "screenshot.png"
	CapturedFile   = "captured.json"
)

// ReplayFetcher serves fetches from a previous run's artifact directory, so
// extraction can be rerun without touching the network.
type ReplayFetcher struct {
	dir string
}

// NewReplay creates a fetcher over artifacts/<run-ts>.
func NewReplay(runDir string) *ReplayFetcher {
	return &ReplayFetcher{dir: runDir}
}

// Fetch loads page.html and captured.json stored for req.Adapter.
func (f *ReplayFetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base := filepath.Join(f.dir, req.Adapter)
	result := &Result{
		URL:        req.URL,
		FinalURL:   req.URL,
		StatusCode: 200,
		Driver:     f.Type(),
		FetchedAt:  time.Now(),
	}

	html, err := os.ReadFile(filepath.Join(base, PageFile)) //#nosec G304 -- replay reads its own artifact tree
	if err != nil && !os.IsNotExist(err) {
		return result, fmt.Errorf("replay %s: %w", req.Adapter, err)
	}
	result.HTML = string(html)
	if result.HTML != "" {
		result.HTMLPath = filepath.Join(base, PageFile)
		result.Title = pageTitle(result.HTML)
	}

	if raw, err := os.ReadFile(filepath.Join(base, CapturedFile)); err == nil { //#nosec G304
		if err := json.Unmarshal(raw, &result.Events); err != nil {
			return result, fmt.Errorf("replay %s: decoding %s: %w", req.Adapter, CapturedFile, err)
		}
	}
	for _, ev := range result.Events {
		if ev.ResourceType == "Document" && ev.URL != "" {
			result.FinalURL = ev.URL
			result.StatusCode = ev.Status
			break
		}
	}

	if shot := filepath.Join(base, ScreenshotFile); fileExists(shot) {
		result.ScreenshotPath = shot
	}

	if result.HTML == "" && len(result.Events) == 0 {
		return result, fmt.Errorf("replay %s: %w", req.Adapter, os.ErrNotExist)
	}
	return result, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Close releases resources.
func (f *ReplayFetcher) Close() error {
	return nil
}

// Type returns the fetcher type.
func (f *ReplayFetcher) Type() string {
	return "replay"
}
