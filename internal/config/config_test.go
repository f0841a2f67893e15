package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with HOME pointing at it, so
// no stray .campwatch.yaml, .env or host fallback variable is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	for _, name := range []string{"CHROME_BIN", "HTTPS_PROXY", "DATABASE_URL"} {
		t.Setenv(name, "")
	}
	return dir
}

func load(t *testing.T, cfgFile string, envFiles ...string) (*Config, error) {
	t.Helper()
	v := viper.New()
	require.NoError(t, Init(v, cfgFile, envFiles...))
	return Load(v)
}

func TestDefaults(t *testing.T) {
	isolate(t)

	cfg, err := load(t, "")
	require.NoError(t, err)

	assert.Equal(t, "artifacts", cfg.ArtifactRoot)
	assert.Equal(t, 3, cfg.Parallel)
	assert.Equal(t, 14, cfg.Lookahead)
	assert.Equal(t, 7, cfg.StayNights)
	assert.True(t, cfg.Headless)
	assert.False(t, cfg.HTTPOnly)
	assert.Equal(t, 15*time.Minute, cfg.RunTimeout)
	assert.Equal(t, 3*time.Minute, cfg.AdapterTimeout)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 2*time.Minute, cfg.Breaker.RecoveryTimeout)
	assert.Equal(t, 30*time.Second, cfg.Challenge.Budget)
	assert.Equal(t, time.Second, cfg.Challenge.PollInterval)

	n, err := cfg.Capture.MaxBodyBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(256000), n)
}

func TestEnvironmentOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("CAMPWATCH_PARALLEL", "5")
	t.Setenv("CAMPWATCH_ARTIFACT_ROOT", "/tmp/cw")
	t.Setenv("CAMPWATCH_RETRY_ATTEMPTS", "4")
	t.Setenv("CAMPWATCH_BREAKER_RECOVERY_TIMEOUT", "90s")
	t.Setenv("CHROME_BIN", "/usr/bin/chromium")
	t.Setenv("HTTPS_PROXY", "http://proxy.test:3128")

	cfg, err := load(t, "")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Parallel)
	assert.Equal(t, "/tmp/cw", cfg.ArtifactRoot)
	assert.Equal(t, 4, cfg.Retry.Attempts)
	assert.Equal(t, 90*time.Second, cfg.Breaker.RecoveryTimeout)
	assert.Equal(t, "/usr/bin/chromium", cfg.BrowserPath)
	assert.Equal(t, "http://proxy.test:3128", cfg.ProxyURL)
}

func TestPrefixedEnvWinsOverFallback(t *testing.T) {
	isolate(t)
	t.Setenv("CAMPWATCH_BROWSER_PATH", "/opt/chrome")
	t.Setenv("CHROME_BIN", "/usr/bin/chromium")

	cfg, err := load(t, "")
	require.NoError(t, err)
	assert.Equal(t, "/opt/chrome", cfg.BrowserPath)
}

func TestConfigFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "campwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
parallel: 2
lookahead: 30
headless: false
retry:
  attempts: 2
  initial_delay: 500ms
challenge:
  budget: 45s
capture:
  max_body: 1MiB
`), 0o644))

	cfg, err := load(t, path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Parallel)
	assert.Equal(t, 30, cfg.Lookahead)
	assert.False(t, cfg.Headless)
	assert.Equal(t, 2, cfg.Retry.Attempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, 45*time.Second, cfg.Challenge.Budget)

	n, err := cfg.Capture.MaxBodyBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), n)
}

func TestDefaultConfigFileInWorkingDir(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".campwatch.yaml"), []byte("stay_nights: 3\n"), 0o644))

	cfg, err := load(t, "")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.StayNights)
}

func TestDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CAMPWATCH_LOOKAHEAD=21\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("CAMPWATCH_LOOKAHEAD") })

	cfg, err := load(t, "")
	require.NoError(t, err)
	assert.Equal(t, 21, cfg.Lookahead)
}

func TestMissingExplicitEnvFile(t *testing.T) {
	dir := isolate(t)
	err := Init(viper.New(), "", filepath.Join(dir, "nope.env"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestMissingExplicitConfigFile(t *testing.T) {
	dir := isolate(t)
	err := Init(viper.New(), filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
		want string
	}{
		{"parallel zero", "parallel", 0, "Parallel"},
		{"stay nights", "stay_nights", 0, "StayNights"},
		{"bad proxy", "proxy_url", "not a url", "ProxyURL"},
		{"retry attempts", "retry.attempts", 0, "Retry.Attempts"},
		{"poll above budget", "challenge.poll_interval", time.Minute, "Challenge.PollInterval"},
		{"bad size", "capture.max_body", "lots", "capture.max_body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			v := viper.New()
			require.NoError(t, Init(v, ""))
			v.Set(tt.key, tt.val)

			_, err := Load(v)
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
