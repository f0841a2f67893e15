package fetcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayFetcher(t *testing.T) {
	run := t.TempDir()
	dir := filepath.Join(run, "roadsurfer")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, PageFile), []byte("<html><head><title>Roadsurfer</title></head><body>€ 89</body></html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, CapturedFile),
		[]byte(`[{"seq":0,"method":"GET","url":"https://roadsurfer.example/de","resource_type":"Document","status":200},
		{"seq":1,"method":"GET","url":"https://roadsurfer.example/api/prices","resource_type":"XHR","status":200,"body":{"price":89}}]`), 0o644))

	f := NewReplay(run)
	res, err := f.Fetch(context.Background(), Request{Adapter: "roadsurfer", URL: "https://roadsurfer.example"})
	require.NoError(t, err)

	assert.Equal(t, "Roadsurfer", res.Title)
	assert.Equal(t, "https://roadsurfer.example/de", res.FinalURL)
	assert.Len(t, res.Events, 2)
	assert.True(t, res.Events[1].HasJSON())
	assert.Equal(t, "replay", res.Driver)
	assert.Empty(t, res.ScreenshotPath)
}

func TestReplayFetcher_Missing(t *testing.T) {
	f := NewReplay(t.TempDir())
	_, err := f.Fetch(context.Background(), Request{Adapter: "ghost", URL: "https://ghost.example"})
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
