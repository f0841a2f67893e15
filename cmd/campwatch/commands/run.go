package commands

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/campwatch/internal/adapter"
	"github.com/jmylchreest/campwatch/internal/antibot"
	"github.com/jmylchreest/campwatch/internal/artifacts"
	"github.com/jmylchreest/campwatch/internal/browser"
	"github.com/jmylchreest/campwatch/internal/config"
	"github.com/jmylchreest/campwatch/internal/coordinator"
	"github.com/jmylchreest/campwatch/internal/logger"
	"github.com/jmylchreest/campwatch/internal/metrics"
	"github.com/jmylchreest/campwatch/internal/model"
	"github.com/jmylchreest/campwatch/internal/output"
	"github.com/jmylchreest/campwatch/internal/platform"
	"github.com/jmylchreest/campwatch/internal/resilience"
	"github.com/jmylchreest/campwatch/internal/store"
	"github.com/jmylchreest/campwatch/internal/version"
	"github.com/jmylchreest/campwatch/pkg/fetcher"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape competitors and write a run summary",
	Long: `Run the selected competitor adapters and write the run summary.

Every adapter produces a record, successful or not. Pages, screenshots,
captured network responses, the summary and a metrics textfile are kept
under <artifact_root>/<run timestamp>/.

Exit codes:
  0  every competitor succeeded
  2  some competitors failed
  3  every competitor failed
  4  configuration error
  1  any other error

Examples:
  campwatch run --all
  campwatch run -a roadsurfer -a mcrent --lookahead 30 --parallel 2
  campwatch run --all --http-only --format yaml
  campwatch run --all --replay artifacts/20260101T060000Z`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
	bindRunFlags(runCmd, viper.GetViper())
}

func addRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	// Selection
	flags.StringArrayP("adapter", "a", nil, "competitor to scrape (can be repeated)")
	flags.Bool("all", false, "scrape every registered competitor")

	// Search window
	flags.Int("lookahead", 14, "days from today to the pickup date")
	flags.Int("stay-nights", 7, "nights between pickup and dropoff")

	// Execution
	flags.Int("parallel", 3, "browser adapters running at once (HTTP adapters cost half a slot)")
	flags.Bool("headless", true, "run Chrome without a window")
	flags.Bool("no-headless", false, "show the Chrome window")
	flags.Bool("http-only", false, "fetch every competitor over HTTP, never starting Chrome")
	flags.String("replay", "", "re-extract from a previous run directory instead of fetching")
	flags.String("artifact-root", "", "artifact directory (default ./artifacts)")

	// Output
	flags.StringP("output", "o", "", "output file (default: stdout)")
	flags.String("format", "json", "output format: json, jsonl, yaml, xlsx")
}

// bindRunFlags ties the run flags that mirror config keys to v.
func bindRunFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	_ = v.BindPFlag("lookahead", flags.Lookup("lookahead"))
	_ = v.BindPFlag("stay_nights", flags.Lookup("stay-nights"))
	_ = v.BindPFlag("parallel", flags.Lookup("parallel"))
	_ = v.BindPFlag("headless", flags.Lookup("headless"))
	_ = v.BindPFlag("http_only", flags.Lookup("http-only"))
	_ = v.BindPFlag("artifact_root", flags.Lookup("artifact-root"))
}

// applyFlagOverrides handles flags that set a config key without being
// bound to it.
func applyFlagOverrides(cmd *cobra.Command, v *viper.Viper) {
	if noHeadless, _ := cmd.Flags().GetBool("no-headless"); noHeadless {
		v.Set("headless", false)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	start := time.Now()
	flags := cmd.Flags()

	applyFlagOverrides(cmd, viper.GetViper())

	cfg, err := setup()
	if err != nil {
		return err
	}
	logger.Debug("run command starting", "version", version.UserAgentToken())

	names, _ := flags.GetStringArray("adapter")
	all, _ := flags.GetBool("all")
	replayDir, _ := flags.GetString("replay")
	outPath, _ := flags.GetString("output")
	formatStr, _ := flags.GetString("format")

	switch {
	case all && len(names) > 0:
		return usageError("--all and --adapter cannot be combined")
	case !all && len(names) == 0:
		return usageError("no competitors selected: use --adapter <name> or --all")
	}
	format, err := output.ParseFormat(formatStr)
	if err != nil {
		return usageError("%v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	info := platform.Init()
	root, err := platform.ArtifactRoot(cfg.ArtifactRoot)
	if err != nil {
		return err
	}

	reg, err := loadRegistry(cfg)
	if err != nil {
		return err
	}
	if all {
		names = reg.Names()
	}
	competitors, err := reg.Configs(names)
	if err != nil {
		return err
	}

	maxBody, err := cfg.Capture.MaxBodyBytes()
	if err != nil {
		return usageError("%v", err)
	}
	rc := model.NewRunContext(time.Now(), cfg.Lookahead, cfg.StayNights)
	arts, err := artifacts.New(root, rc, maxBody)
	if err != nil {
		return err
	}
	rc.ArtifactDir = arts.RunDir()

	deps, closeDrivers, err := buildDeps(cfg, info, replayDir)
	defer closeDrivers()
	if err != nil {
		return err
	}
	deps.Artifacts = arts
	deps.Metrics = metrics.New()

	ctrl := resilience.NewController(cfg.Retry, resilience.NewBreakers(cfg.Breaker), resilience.WithMetrics(deps.Metrics))

	var opts []coordinator.Option
	if cfg.DatabaseURL != "" {
		db, err := openStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		opts = append(opts, coordinator.WithSink(db))
	}

	coord := coordinator.New(coordinator.Config{
		Parallel:       cfg.Parallel,
		RunTimeout:     cfg.RunTimeout,
		AdapterTimeout: cfg.AdapterTimeout,
	}, reg, deps, ctrl, opts...)

	logger.Info("starting run",
		"run_id", rc.ID,
		"competitors", len(competitors),
		"pickup_in_days", cfg.Lookahead,
		"replay", replayDir != "",
		"http_only", cfg.HTTPOnly)

	summary, err := coord.Run(ctx, competitors, rc)
	if err != nil {
		return err
	}

	if err := writeSummary(summary, format, outPath); err != nil {
		return err
	}
	printSummary(summary, arts.RunDir(), time.Since(start))

	if code := coordinator.ExitCode(summary); code != coordinator.ExitOK {
		failed := len(summary.Results) - summary.Succeeded()
		return &exitError{
			code: code,
			msg:  fmt.Sprintf("%d of %d competitors failed", failed, len(summary.Results)),
		}
	}
	return nil
}

// loadRegistry returns the built-in competitors merged with registry_file.
func loadRegistry(cfg *config.Config) (*adapter.Registry, error) {
	reg, err := adapter.Builtin()
	if err != nil {
		return nil, err
	}
	if cfg.RegistryFile != "" {
		if err := reg.LoadFile(cfg.RegistryFile); err != nil {
			return nil, err
		}
		logger.Debug("registry file loaded", "path", cfg.RegistryFile, "adapters", len(reg.Names()))
	}
	return reg, nil
}

// newBrowser creates the browser driver. Chrome itself starts on the
// first fetch.
var newBrowser = func(cfg browser.Config) (fetcher.Fetcher, error) {
	return browser.New(cfg)
}

// browserConfig maps the run configuration onto the browser driver.
func browserConfig(cfg *config.Config, info platform.Info) browser.Config {
	return browser.Config{
		Headless:    cfg.Headless,
		BrowserPath: platform.FindBrowserPath(cfg.BrowserPath),
		NoSandbox:   info.NoSandbox,
		ProxyURL:    cfg.ProxyURL,
		Mediator: antibot.New(antibot.Config{
			Budget:       cfg.Challenge.Budget,
			PollInterval: cfg.Challenge.PollInterval,
		}),
	}
}

// buildDeps creates the drivers. The returned func closes whatever was
// created and is safe to call on error.
func buildDeps(cfg *config.Config, info platform.Info, replayDir string) (adapter.Deps, func(), error) {
	var (
		deps    adapter.Deps
		closers []fetcher.Fetcher
	)
	closeAll := func() {
		for _, f := range closers {
			if err := f.Close(); err != nil {
				logger.Warn("failed to close driver", "driver", f.Type(), "error", err)
			}
		}
	}

	if replayDir != "" {
		prev, err := artifacts.Open(replayDir)
		if err != nil {
			return deps, closeAll, usageError("--replay: %v", err)
		}
		deps.Override = fetcher.NewReplay(prev.RunDir())
		logger.Info("replaying stored artifacts", "dir", prev.RunDir())
		return deps, closeAll, nil
	}

	httpCfg := fetcher.DefaultHTTPConfig()
	httpCfg.ProxyURL = cfg.ProxyURL
	httpCfg.Detect = antibot.DetectHTML
	hf, err := fetcher.NewHTTP(httpCfg)
	if err != nil {
		return deps, closeAll, err
	}
	closers = append(closers, hf)
	deps.HTTP = hf

	if cfg.HTTPOnly {
		deps.Override = hf
		return deps, closeAll, nil
	}

	bf, err := newBrowser(browserConfig(cfg, info))
	if err != nil {
		return deps, closeAll, err
	}
	closers = append(closers, bf)
	deps.Browser = bf
	deps.Auto = fetcher.NewAuto(hf, bf)
	return deps, closeAll, nil
}

// openStore connects the PostgreSQL sink and ensures its tables exist.
func openStore(ctx context.Context, url string) (*store.Store, error) {
	db, err := store.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// writeSummary writes the summary to path, or stdout when path is empty.
func writeSummary(summary *model.RunSummary, format output.Format, path string) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	writer, err := output.NewWriter(w, format)
	if err != nil {
		return err
	}
	if err := writer.Write(summary); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return writer.Close()
}

// printSummary reports per-competitor outcomes on stderr.
func printSummary(summary *model.RunSummary, runDir string, took time.Duration) {
	if viper.GetBool("quiet") {
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "\nRun %s: %d/%d competitors succeeded in %s\n",
		summary.RunID, summary.Succeeded(), len(summary.Results), took.Round(time.Second))
	for _, rec := range summary.Results {
		fmt.Fprintf(&sb, "  %s\n", recordLine(rec))
	}
	if len(summary.Alerts) > 0 {
		fmt.Fprintf(&sb, "Alerts (%d):\n", len(summary.Alerts))
		for _, a := range summary.Alerts {
			fmt.Fprintf(&sb, "  [%s] %s\n", a.Severity, a.Message)
		}
	}
	files, size := dirUsage(runDir)
	fmt.Fprintf(&sb, "Artifacts: %s (%s in %s)", runDir, humanize.IBytes(size), humanize.Comma(int64(files))+" files")
	logInfo("%s", sb.String())
}

func recordLine(rec model.CompetitorRecord) string {
	if !rec.Success {
		reason := rec.Notes
		if i := strings.Index(reason, "; "); i >= 0 {
			reason = reason[:i]
		}
		return fmt.Sprintf("%-16s FAILED  completeness %5.1f%%  %s", rec.Adapter, rec.DataCompletenessPct, reason)
	}
	line := fmt.Sprintf("%-16s ok      completeness %5.1f%%  %d prices", rec.Adapter, rec.DataCompletenessPct, rec.NumResults)
	if rec.AvgPrice != nil {
		line += fmt.Sprintf(", avg %.2f %s", *rec.AvgPrice, rec.Currency)
	}
	if rec.RetryCount > 0 {
		line += fmt.Sprintf(" (%d retries)", rec.RetryCount)
	}
	return line
}

// dirUsage counts the files and bytes under dir.
func dirUsage(dir string) (files int, size uint64) {
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			files++
			size += uint64(fi.Size())
		}
		return nil
	})
	return files, size
}
