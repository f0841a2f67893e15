package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// capture points the package logger at a buffer for the test.
func capture(t *testing.T, opts Options) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	opts.Output = buf
	Init(opts)
	t.Cleanup(func() { Init(Options{}) })
	return buf
}

func TestOptionsLevel(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want slog.Level
	}{
		{"default", Options{}, slog.LevelInfo},
		{"debug", Options{Debug: true}, slog.LevelDebug},
		{"quiet", Options{Quiet: true}, slog.LevelError},
		{"quiet wins over debug", Options{Debug: true, Quiet: true}, slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.Level(); got != tt.want {
				t.Errorf("Level() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInitFiltersByLevel(t *testing.T) {
	buf := capture(t, Options{})

	Debug("hidden detail")
	Info("run starting")
	if strings.Contains(buf.String(), "hidden detail") {
		t.Error("debug line written at info level")
	}
	if !strings.Contains(buf.String(), "run starting") {
		t.Error("info line missing at info level")
	}
}

func TestInitCustomLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Logger: slog.New(slog.NewTextHandler(buf, nil)), Quiet: true})
	t.Cleanup(func() { Init(Options{}) })

	Info("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Error("custom logger should ignore Quiet")
	}
}

func TestScopedLoggerTagsRunAndAdapter(t *testing.T) {
	buf := capture(t, Options{JSON: true})

	ctx := ForAdapter(ForRun(context.Background(), "run-42"), "roadsurfer")
	FromContext(ctx).Info("adapter succeeded", "prices", 3)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not a JSON line: %v: %s", err, buf.String())
	}
	if line["run_id"] != "run-42" {
		t.Errorf("run_id = %v", line["run_id"])
	}
	if line["adapter"] != "roadsurfer" {
		t.Errorf("adapter = %v", line["adapter"])
	}
	if line["prices"] != float64(3) {
		t.Errorf("prices = %v", line["prices"])
	}
	if got := RunID(ctx); got != "run-42" {
		t.Errorf("RunID() = %q", got)
	}
}

func TestForAdapterSameNameIsNoop(t *testing.T) {
	buf := capture(t, Options{})

	ctx := ForAdapter(context.Background(), "jucy")
	if again := ForAdapter(ctx, "jucy"); again != ctx {
		t.Error("re-scoping to the same adapter should return ctx unchanged")
	}

	FromContext(ForAdapter(ctx, "jucy")).Info("strategy failed")
	if n := strings.Count(buf.String(), "adapter=jucy"); n != 1 {
		t.Errorf("adapter attr written %d times: %s", n, buf.String())
	}
}

func TestFromContextFallsBackToPackageLogger(t *testing.T) {
	buf := capture(t, Options{Debug: true})

	FromContext(context.Background()).Debug("unscoped line")
	if !strings.Contains(buf.String(), "unscoped line") {
		t.Error("unscoped context should log through the package logger")
	}
	if RunID(context.Background()) != "" {
		t.Error("unscoped context has no run id")
	}
}

func TestScopedLoggerKeepsItsHandler(t *testing.T) {
	first := capture(t, Options{})
	ctx := ForRun(context.Background(), "run-1")

	second := &bytes.Buffer{}
	Init(Options{Output: second})

	FromContext(ctx).Info("still scoped")
	if !strings.Contains(first.String(), "run_id=run-1") {
		t.Errorf("scoped logger should keep writing where it was scoped: %q", first.String())
	}
	if second.Len() != 0 {
		t.Errorf("re-initialised logger received a scoped line: %q", second.String())
	}
}
