package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/campwatch/internal/model"
	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

func newStore(t *testing.T, maxBody int64) *Store {
	t.Helper()
	rc := model.NewRunContext(time.Date(2025, 3, 1, 6, 30, 0, 0, time.UTC), 14, 7)
	s, err := New(t.TempDir(), rc, maxBody)
	require.NoError(t, err)
	return s
}

func TestLayout(t *testing.T) {
	s := newStore(t, 0)
	assert.Equal(t, "20250301T063000Z", filepath.Base(s.RunDir()))

	html, err := s.WriteHTML("roadsurfer", "<html></html>")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.RunDir(), "roadsurfer", "page.html"), html)
	assert.FileExists(t, html)

	assert.Equal(t, filepath.Join(s.RunDir(), "metrics.prom"), s.MetricsPath())
}

func TestWriteCapturedDropsLargeBodies(t *testing.T) {
	s := newStore(t, 16)
	events := []fetcher.NetworkEvent{
		{Seq: 0, URL: "https://x.test/small", Body: json.RawMessage(`{"p":1}`)},
		{Seq: 1, URL: "https://x.test/large", Body: json.RawMessage(`{"prices":[1,2,3,4,5,6,7,8,9]}`)},
	}
	path, err := s.WriteCaptured("jucy", events)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []fetcher.NetworkEvent
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"p":1}`, string(got[0].Body))
	assert.Empty(t, got[1].Body)
	assert.Equal(t, 30, got[1].BodySize)

	assert.NotEmpty(t, events[1].Body, "caller's events are not modified")
}

func TestWriteSummary(t *testing.T) {
	s := newStore(t, 0)
	path, err := s.WriteSummary(&model.RunSummary{Date: "2025-03-01", Results: []model.CompetitorRecord{}, Alerts: []model.Alert{}})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{"))
	assert.Contains(t, string(data), `"date": "2025-03-01"`)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, s.RunDir())

	_, err = Open(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	n, err := ParseSize("256KB")
	require.NoError(t, err)
	assert.Equal(t, int64(256000), n)

	n, err = ParseSize("1MiB")
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), n)

	_, err = ParseSize("lots")
	assert.Error(t, err)
}
