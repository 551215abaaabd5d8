package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crateloft/cratesync/internal/api"
	"github.com/crateloft/cratesync/internal/app"
	"github.com/crateloft/cratesync/internal/checker"
	"github.com/crateloft/cratesync/internal/config"
	"github.com/crateloft/cratesync/internal/discogs"
	"github.com/crateloft/cratesync/internal/executor"
	"github.com/crateloft/cratesync/internal/fetch"
	"github.com/crateloft/cratesync/internal/history"
	iduuid "github.com/crateloft/cratesync/internal/id/uuid"
	"github.com/crateloft/cratesync/internal/library"
	"github.com/crateloft/cratesync/internal/monitor"
	"github.com/crateloft/cratesync/internal/pipeline"
	"github.com/crateloft/cratesync/internal/progress"
	"github.com/crateloft/cratesync/internal/progress/sinks"
	"github.com/crateloft/cratesync/internal/report"
)

// exitInterrupted is the conventional exit status for SIGINT.
const exitInterrupted = 130

// osExit is swappable so the interrupt path is testable in-process.
var osExit = os.Exit

// Watch-page shell detection: bodies under the floor or carrying one of the
// keywords get retried through the headless browser.
const detectorMinHTMLBytes = 2048

var detectorKeywords = []string{
	"enable javascript",
	"turn on javascript",
}

// completionsTopic is the default event stream for finished releases;
// events.topic overrides it.
const completionsTopic = "releases.completed"

type syncFlags struct {
	limit        int
	workers      int
	metadataOnly bool
}

func newSyncCmd() *cobra.Command {
	var flags syncFlags
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the collection into the local archive",
		Long: `Lists the collection, skips releases whose directories are already
complete, and runs the pipeline for the rest on a bounded worker pool.
Failures are collected into a categorized summary file next to the
archive; a failed release never stops the run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runSync(cmd.Context(), a, flags)
		},
	}
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "sync at most N releases (0 means all)")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "worker count (0 derives from cores)")
	cmd.Flags().BoolVar(&flags.metadataOnly, "metadata-only", false, "stop after metadata and cover art")
	return cmd
}

func runSync(ctx context.Context, a *app.App, flags syncFlags) error {
	cfg := a.Config
	layout := library.Layout{Root: cfg.Library.Root}
	if err := os.MkdirAll(cfg.Library.Root, 0o750); err != nil {
		return fmt.Errorf("create library root: %w", err)
	}

	chk := checker.New(a.Logger)
	items, err := listPending(ctx, a, layout, chk, flags)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		a.Logger.Info("collection already in sync")
		return nil
	}

	runUUID, err := iduuid.New().NewRawID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	reporter := report.New(report.Config{
		Dir:    reportDir(cfg),
		RunID:  runUUID,
		Clock:  a.Clock,
		Logger: a.Logger,
	})

	hub := buildHub(a)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			a.Logger.Warn("event hub close", zap.Error(err))
		}
	}()

	slots := slotCount(cfg, flags, len(items))
	agg := progress.NewAggregator(progress.AggregatorConfig{
		RunID:     progress.UUIDToBytes(runUUID),
		Slots:     slots,
		Total:     len(items),
		LogLines:  cfg.Dashboard.LogLines,
		Artifacts: cfg.Dashboard.Artifacts,
		Clock:     a.Clock,
		Emitter:   hub,
	})

	var mon *monitor.Monitor
	if cfg.Dashboard.Enabled {
		mon = monitor.New(agg, a.Switch, monitor.Config{Interval: cfg.RenderInterval()})
		if err := mon.Start(); err != nil {
			return fmt.Errorf("start dashboard: %w", err)
		}
	}
	stopMonitor := func() {
		if mon != nil {
			mon.Stop()
		}
	}

	if cfg.Server.Enabled {
		srv, err := api.NewServer(api.Config{
			Addr:     fmt.Sprintf(":%d", cfg.Server.Port),
			Source:   agg,
			Registry: a.Registry,
			Logger:   a.Logger,
		})
		if err != nil {
			stopMonitor()
			return fmt.Errorf("build status server: %w", err)
		}
		srv.Start()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutCtx); err != nil {
				a.Logger.Warn("status server shutdown", zap.Error(err))
			}
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchSignals(runCtx, cancel, agg, func() {
		interruptNow(agg, reporter, len(items), stopMonitor, func(t report.Totals) {
			finishRun(a, runUUID, t, history.RunInterrupted)
		})
	})

	started := a.Clock.Now()
	if a.History != nil {
		if err := a.History.BeginRun(ctx, runUUID, started, len(items)); err != nil {
			a.Logger.Warn("record run start", zap.Error(err))
		}
	}

	pool, err := buildPool(a, chk, agg, reporter, slots, flags.metadataOnly)
	if err != nil {
		stopMonitor()
		return err
	}

	runErr := pool.Run(runCtx, items)

	snap := agg.Snapshot()
	totals := report.Totals{
		Total:     len(items),
		Completed: snap.Completed,
		Errors:    snap.Errors,
	}

	if runErr != nil {
		stopMonitor()
		reporter.RecordRun("run aborted", runErr)
		finishRun(a, runUUID, totals, history.RunError)
		_, _ = reporter.Finalize(totals)
		return runErr
	}

	mirrorCompleted(ctx, a, chk, items)

	stopMonitor()
	status := history.RunSuccess
	if totals.Errors > 0 {
		status = history.RunError
	}
	finishRun(a, runUUID, totals, status)

	path, err := reporter.Finalize(totals)
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	fmt.Printf("synced %d/%d releases (%d errors); summary: %s\n",
		totals.Completed, totals.Total, totals.Errors, path)
	return nil
}

// listPending resolves the release source and drops already-complete
// directories, so reruns only touch what is missing.
func listPending(
	ctx context.Context,
	a *app.App,
	layout library.Layout,
	chk *checker.Checker,
	flags syncFlags,
) ([]library.Item, error) {
	lister, err := buildLister(a, layout)
	if err != nil {
		return nil, err
	}
	all, err := lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collection: %w", err)
	}

	items := make([]library.Item, 0, len(all))
	for _, item := range all {
		as := chk.Assess(item.Dir)
		if flags.metadataOnly {
			if !as.Needs(checker.StepMetadata) && !as.Needs(checker.StepCover) {
				continue
			}
		} else if as.Complete() {
			continue
		}
		items = append(items, item)
	}
	a.Logger.Info("collection listed",
		zap.Int("total", len(all)),
		zap.Int("pending", len(items)))

	if flags.limit > 0 && len(items) > flags.limit {
		items = items[:flags.limit]
	}
	return items, nil
}

func buildLister(a *app.App, layout library.Layout) (library.Lister, error) {
	cfg := a.Config
	switch cfg.Library.Source {
	case "local":
		return library.NewScan(layout), nil
	case "discogs":
		client, err := discogsClient(cfg, a.Logger)
		if err != nil {
			return nil, err
		}
		return discogs.CollectionLister{Client: client, Layout: layout}, nil
	default:
		return nil, fmt.Errorf("unknown library source %q", cfg.Library.Source)
	}
}

func discogsClient(cfg config.Config, logger *zap.Logger) (*discogs.Client, error) {
	if cfg.Discogs.Token == "" {
		return nil, errors.New("discogs.token is not set")
	}
	return discogs.New(discogs.Config{
		Token:     cfg.Discogs.Token,
		Username:  cfg.Discogs.Username,
		BaseURL:   cfg.Discogs.BaseURL,
		UserAgent: cfg.Discogs.UserAgent,
		RPS:       cfg.Discogs.RatePerSecond,
		Timeout:   cfg.DiscogsTimeout(),
		Logger:    logger,
	})
}

func buildHub(a *app.App) *progress.Hub {
	hubSinks := []progress.Sink{sinks.NewLogSink(a.Logger)}
	if promSink, err := sinks.NewPrometheusSink(a.Registry); err == nil {
		hubSinks = append(hubSinks, promSink)
	} else {
		a.Logger.Warn("metrics sink disabled", zap.Error(err))
	}
	if a.History != nil {
		hubSinks = append(hubSinks, sinks.NewStoreSink(a.History, a.Logger))
	}
	if a.Publisher != nil {
		topic := a.Config.Events.Topic
		if topic == "" {
			topic = completionsTopic
		}
		hubSinks = append(hubSinks, sinks.NewPublisherSink(a.Publisher, topic, a.Logger))
	}
	return progress.NewHub(progress.HubConfig{Logger: a.Logger}, hubSinks...)
}

func slotCount(cfg config.Config, flags syncFlags, total int) int {
	if flags.workers > 0 {
		return flags.workers
	}
	if cfg.Workers.Count > 0 {
		return cfg.Workers.Count
	}
	return executor.Workers(executor.Sizing{
		MetadataCap:  cfg.Workers.MetadataCap,
		CoreFraction: cfg.Workers.CoreFraction,
	}, total, flags.metadataOnly, executor.PhysicalCores())
}

func chooseSubstrate(cfg config.Config, metadataOnly bool) executor.Substrate {
	switch cfg.Workers.Substrate {
	case "threads":
		return executor.SubstrateGoroutines
	case "process":
		return executor.SubstrateProcesses
	default:
		return executor.ChooseSubstrate(cfg.Dashboard.Enabled, metadataOnly)
	}
}

func buildPool(
	a *app.App,
	chk *checker.Checker,
	agg *progress.Aggregator,
	reporter *report.Reporter,
	slots int,
	metadataOnly bool,
) (*executor.Pool, error) {
	cfg := a.Config
	substrate := chooseSubstrate(cfg, metadataOnly)

	poolCfg := executor.Config{
		Slots:     slots,
		Substrate: substrate,
		Cancelled: agg.ShutdownRequested,
		Clock:     a.Clock,
		Logger:    a.Logger,
	}

	switch substrate {
	case executor.SubstrateGoroutines:
		runner, err := buildRunner(a, chk, metadataOnly)
		if err != nil {
			return nil, err
		}
		poolCfg.Pipeline = runner.Run
	case executor.SubstrateProcesses:
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		poolCfg.Argv = func(item library.Item, slot int) (string, []string) {
			args := []string{
				workerCommandName,
				"--release", strconv.FormatInt(item.ID, 10),
				"--title", item.Title,
				"--dir", item.Dir,
				"--slot", strconv.Itoa(slot),
			}
			if cfgFile != "" {
				args = append(args, "--config", cfgFile)
			}
			if metadataOnly {
				args = append(args, "--metadata-only")
			}
			return self, args
		}
	}

	return executor.New(agg, reporter, poolCfg)
}

// buildRunner assembles the in-process pipeline from configuration. Shared
// by the goroutine substrate and the worker child command.
func buildRunner(a *app.App, chk *checker.Checker, metadataOnly bool) (*pipeline.Runner, error) {
	cfg := a.Config

	var source pipeline.MetadataSource
	if cfg.Discogs.Token != "" {
		client, err := discogsClient(cfg, a.Logger)
		if err != nil {
			return nil, err
		}
		source = client
	} else {
		// Local-source runs without credentials can still finish releases
		// whose metadata is already on disk.
		source = missingSource{}
	}

	runnerCfg := pipeline.Config{
		Source:       source,
		Checker:      chk,
		MetadataOnly: metadataOnly,
		Logger:       a.Logger,
	}

	fetcher, err := fetch.NewFetcher(fetch.FetcherConfig{
		UserAgent: cfg.Discogs.UserAgent,
		Timeout:   cfg.RequestTimeout(),
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("build fetcher: %w", err)
	}
	runnerCfg.Fetcher = fetcher

	if !metadataOnly {
		prober, err := buildProber(a, fetcher)
		if err != nil {
			return nil, err
		}
		runnerCfg.Prober = prober
		runnerCfg.Downloader = &pipeline.YtdlpDownloader{Bin: cfg.Tools.Ytdlp, Logger: a.Logger}
		runnerCfg.Analyzer = &pipeline.FFmpegAnalyzer{
			Ffmpeg:  cfg.Tools.Ffmpeg,
			Ffprobe: cfg.Tools.Ffprobe,
			Logger:  a.Logger,
		}
		runnerCfg.Match = pipeline.MatchConfig{
			MinScore:         cfg.Match.MinScore,
			DurationRatioMax: cfg.Match.DurationRatioMax,
			DurationRatioMin: cfg.Match.DurationRatioMin,
		}
	}

	return pipeline.NewRunner(runnerCfg)
}

func buildProber(a *app.App, fetcher *fetch.Fetcher) (*pipeline.Prober, error) {
	cfg := a.Config
	detector := fetch.NewDetector(detectorMinHTMLBytes, detectorKeywords)

	var renderer pipeline.PageRenderer
	if cfg.Render.Enabled && cfg.Render.MaxParallel > 0 {
		r, err := fetch.NewRenderer(fetch.RendererConfig{
			UserAgent:   cfg.Discogs.UserAgent,
			MaxParallel: cfg.Render.MaxParallel,
			NavTimeout:  time.Duration(cfg.Render.NavTimeoutSec) * time.Second,
			DomainQPS:   cfg.Render.DomainQPS,
		}, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("start renderer: %w", err)
		}
		renderer = r
	}

	return pipeline.NewProber(fetcher, renderer, detector, a.Logger)
}

// watchSignals terminates the run on SIGINT/SIGTERM. The context cancel is
// only cleanup for the doomed workers; onInterrupt must not return.
func watchSignals(ctx context.Context, cancel context.CancelFunc, agg *progress.Aggregator, onInterrupt func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(ch)
		select {
		case <-ch:
			agg.RequestShutdown()
			cancel()
			onInterrupt()
		case <-ctx.Done():
		}
	}()
}

// interruptNow ends the run from the signal handler: snapshot the live
// counters, write the summary, print the notice and exit 130. Workers are
// not drained; whatever they leave half-written is reconciled by the next
// run's assessment.
func interruptNow(
	agg *progress.Aggregator,
	reporter *report.Reporter,
	total int,
	stopMonitor func(),
	finish func(report.Totals),
) {
	stopMonitor()
	snap := agg.Snapshot()
	totals := report.Totals{Total: total, Completed: snap.Completed, Errors: snap.Errors}
	reporter.RecordRun("run interrupted by signal", nil)
	if finish != nil {
		finish(totals)
	}
	path, err := reporter.Finalize(totals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "interrupted; summary not written: %v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "interrupted; summary written to %s\n", path)
	}
	osExit(exitInterrupted)
}

func finishRun(a *app.App, runUUID uuid.UUID, t report.Totals, status history.RunStatus) {
	if a.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.History.FinishRun(ctx, runUUID, a.Clock.Now(), status, t.Completed, t.Errors, nil); err != nil {
		a.Logger.Warn("record run finish", zap.Error(err))
	}
}

// mirrorCompleted uploads directories the run left complete. Best effort:
// mirror failures are logged, never fatal.
func mirrorCompleted(ctx context.Context, a *app.App, chk *checker.Checker, items []library.Item) {
	if a.Mirror == nil {
		return
	}
	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		if !chk.Assess(item.Dir).Complete() {
			continue
		}
		if err := a.Mirror.MirrorRelease(ctx, item.Dir); err != nil {
			a.Logger.Warn("mirror release",
				zap.Int64("release_id", item.ID),
				zap.Error(err))
		}
	}
}

func reportDir(cfg config.Config) string {
	if cfg.Report.Dir != "" {
		return cfg.Report.Dir
	}
	return cfg.Library.Root
}

// missingSource fails metadata fetches when no Discogs token is configured.
type missingSource struct{}

func (missingSource) Release(context.Context, int64) (library.Release, error) {
	return library.Release{}, errors.New("discogs token not configured; cannot fetch metadata")
}
