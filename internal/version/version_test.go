package version

import (
	"strings"
	"testing"
	"time"
)

func withBuild(t *testing.T, version, dirty, date string) {
	t.Helper()
	v, d, b := Version, Dirty, BuildDate
	Version, Dirty, BuildDate = version, dirty, date
	t.Cleanup(func() { Version, Dirty, BuildDate = v, d, b })
}

func TestString(t *testing.T) {
	withBuild(t, "1.2.0", "true", "unknown")
	if got := String(); got != "1.2.0-dirty" {
		t.Errorf("String() = %q, want %q", got, "1.2.0-dirty")
	}
	if got := UserAgentToken(); got != "campwatch/1.2.0-dirty" {
		t.Errorf("UserAgentToken() = %q", got)
	}
}

func TestFull(t *testing.T) {
	withBuild(t, "1.2.0", "false", "unknown")
	full := Full()
	if !strings.HasPrefix(full, "campwatch 1.2.0\n") {
		t.Errorf("Full() header wrong: %q", full)
	}
	if strings.Contains(full, "Dirty") {
		t.Errorf("clean build should not report dirty: %q", full)
	}
}

func TestBuiltAt(t *testing.T) {
	withBuild(t, "dev", "false", "2025-06-01T00:00:00Z")
	now := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)
	if got := builtAt(now); got != "2025-06-01T00:00:00Z (3 days ago)" {
		t.Errorf("builtAt() = %q", got)
	}

	BuildDate = "unknown"
	if got := builtAt(now); got != "unknown" {
		t.Errorf("builtAt() = %q, want unknown", got)
	}
}

func TestGet(t *testing.T) {
	withBuild(t, "0.1.0", "true", "unknown")
	info := Get()
	if info.Version != "0.1.0" || !info.Dirty {
		t.Errorf("Get() = %+v", info)
	}
}
