package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsStable(t *testing.T) {
	first := Init()
	second := Init()
	assert.Equal(t, first, second)
	assert.Equal(t, runtime.GOOS, first.OS)
	if first.Container {
		assert.True(t, first.NoSandbox)
	}
}

func TestFindBrowserPathOverride(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bit semantics differ")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "fake-chrome")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	assert.Equal(t, bin, FindBrowserPath(bin))

	t.Setenv(BrowserEnv, bin)
	assert.Equal(t, bin, FindBrowserPath(""))
}

func TestArtifactRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "artifacts")
	abs, err := ArtifactRoot(root)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))
	st, err := os.Stat(abs)
	require.NoError(t, err)
	assert.True(t, st.IsDir())

	entries, err := os.ReadDir(abs)
	require.NoError(t, err)
	assert.Empty(t, entries, "write probe is removed")
}

func TestArtifactRootNotWritable(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain-file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := ArtifactRoot(filepath.Join(file, "artifacts"))
	assert.Error(t, err)
}
