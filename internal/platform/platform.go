// Package platform holds the process-level facts the engine depends on:
// which OS it runs on, whether it is inside a container, where the browser
// binary lives and where artifacts go. Init runs once at process entry.
package platform

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/jmylchreest/campwatch/internal/logger"
)

// BrowserEnv is the conventional browser override honoured alongside the
// configured browser_path.
const BrowserEnv = "CHROME_BIN"

// Info describes the host.
type Info struct {
	OS        string
	Arch      string
	Container bool
	// NoSandbox is set where Chrome's sandbox cannot start (containers, root).
	NoSandbox bool
}

var (
	initOnce sync.Once
	info     Info
)

// Init detects the host once. Later calls return the first result.
func Init() Info {
	initOnce.Do(func() {
		info = Info{
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			Container: inContainer(),
		}
		info.NoSandbox = info.Container || (runtime.GOOS == "linux" && os.Geteuid() == 0)
		logger.Debug("platform detected",
			"os", info.OS,
			"arch", info.Arch,
			"container", info.Container,
			"no_sandbox", info.NoSandbox)
	})
	return info
}

func inContainer() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	for _, marker := range []string{"/.dockerenv", "/run/.containerenv"} {
		if _, err := os.Stat(marker); err == nil {
			return true
		}
	}
	data, err := os.ReadFile("/proc/1/cgroup")
	if err != nil {
		return false
	}
	s := string(data)
	return strings.Contains(s, "docker") || strings.Contains(s, "kubepods") || strings.Contains(s, "containerd")
}

// Common Chrome/Chromium binary names across different systems
var browserBinaryNames = map[string][]string{
	"linux": {
		"google-chrome-stable",
		"google-chrome",
		"chromium",
		"chromium-browser",
		"chrome",
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	},
	"darwin": {
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
		"google-chrome",
		"chromium",
	},
	"windows": {
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		"chrome.exe",
	},
}

// FindBrowserPath resolves the Chrome binary: an explicit override first,
// then CHROME_BIN, then PATH lookup and the OS's common install locations.
// It returns "" when nothing is found, leaving chromedp to its own lookup.
func FindBrowserPath(override string) string {
	for _, candidate := range []string{override, os.Getenv(BrowserEnv)} {
		if candidate == "" {
			continue
		}
		if path, err := exec.LookPath(candidate); err == nil {
			return path
		}
		logger.Warn("configured browser binary not usable", "path", candidate)
	}

	names := browserBinaryNames[runtime.GOOS]
	if names == nil {
		names = browserBinaryNames["linux"]
	}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			logger.Debug("found browser binary", "name", name, "path", path)
			return path
		}
	}
	logger.Warn("no Chrome binary found - browser fetches may not work")
	return ""
}

// ArtifactRoot makes root absolute and ensures it exists and is writable.
func ArtifactRoot(root string) (string, error) {
	if root == "" {
		root = "artifacts"
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("artifact root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("artifact root %q: %w", abs, err)
	}
	probe, err := os.CreateTemp(abs, ".write-probe-*")
	if err != nil {
		return "", fmt.Errorf("artifact root %q is not writable: %w", abs, err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return abs, nil
}
