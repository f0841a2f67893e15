// Package artifacts owns the on-disk layout of a run:
//
//	<root>/<run-ts>/<adapter>/page.html
//	<root>/<run-ts>/<adapter>/screenshot.png
//	<root>/<run-ts>/<adapter>/captured.json
//	<root>/<run-ts>/summary.json
//	<root>/<run-ts>/metrics.prom
//
// Each adapter writes only inside its own directory.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/campwatch/internal/logger"
	"github.com/jmylchreest/campwatch/internal/model"
	"github.com/jmylchreest/campwatch/internal/output"
	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

// File names inside a run directory.
const (
	SummaryFile = "summary.json"
	MetricsFile = "metrics.prom"
)

// DefaultMaxBody is the largest intercepted body kept in captured.json.
const DefaultMaxBody = 256 * 1024

// Store writes the artifacts of one run.
type Store struct {
	runDir  string
	maxBody int64
}

// New creates <root>/<stamp> for rc.
func New(root string, rc model.RunContext, maxBody int64) (*Store, error) {
	dir := filepath.Join(root, rc.Stamp())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return &Store{runDir: dir, maxBody: maxBody}, nil
}

// Open returns a store over an existing run directory, as used by replay.
func Open(runDir string) (*Store, error) {
	st, err := os.Stat(runDir)
	if err != nil {
		return nil, fmt.Errorf("open run directory: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("open run directory: %s is not a directory", runDir)
	}
	return &Store{runDir: runDir, maxBody: DefaultMaxBody}, nil
}

// RunDir is the run's directory.
func (s *Store) RunDir() string {
	return s.runDir
}

// MaxBody is the captured body size cap.
func (s *Store) MaxBody() int64 {
	return s.maxBody
}

// AdapterDir returns the adapter's directory, creating it.
func (s *Store) AdapterDir(adapter string) (string, error) {
	dir := filepath.Join(s.runDir, adapter)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create adapter directory: %w", err)
	}
	return dir, nil
}

// WriteHTML stores the page HTML and returns its path.
func (s *Store) WriteHTML(adapter, html string) (string, error) {
	dir, err := s.AdapterDir(adapter)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fetcher.PageFile)
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return "", fmt.Errorf("write page html: %w", err)
	}
	return path, nil
}

// WriteCaptured stores the network events. Bodies above the size cap are
// dropped; BodySize still records their original size.
func (s *Store) WriteCaptured(adapter string, events []fetcher.NetworkEvent) (string, error) {
	dir, err := s.AdapterDir(adapter)
	if err != nil {
		return "", err
	}

	kept := make([]fetcher.NetworkEvent, len(events))
	dropped := 0
	for i, ev := range events {
		if int64(len(ev.Body)) > s.maxBody {
			if ev.BodySize == 0 {
				ev.BodySize = len(ev.Body)
			}
			ev.Body = nil
			dropped++
		}
		kept[i] = ev
	}
	if dropped > 0 {
		logger.Debug("dropped large captured bodies", "adapter", adapter, "count", dropped, "limit", humanize.IBytes(uint64(s.maxBody)))
	}

	data, err := json.MarshalIndent(kept, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode captured events: %w", err)
	}
	path := filepath.Join(dir, fetcher.CapturedFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write captured events: %w", err)
	}
	return path, nil
}

// WriteSummary stores summary.json.
func (s *Store) WriteSummary(summary *model.RunSummary) (string, error) {
	path := filepath.Join(s.runDir, SummaryFile)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	defer f.Close()

	w := output.NewJSONWriter(f, true, "  ")
	if err := w.Write(summary); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return path, f.Close()
}

// MetricsPath is where the run's metrics textfile goes.
func (s *Store) MetricsPath() string {
	return filepath.Join(s.runDir, MetricsFile)
}

// ParseSize reads a size such as "256KB" or "1MiB".
func ParseSize(v string) (int64, error) {
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", v, err)
	}
	return int64(n), nil
}
