package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/elonfeng/govdigest/internal/config"
	"github.com/elonfeng/govdigest/internal/lock"
	"github.com/elonfeng/govdigest/internal/logger"
	"github.com/elonfeng/govdigest/internal/metrics"
	"github.com/elonfeng/govdigest/internal/scheduler"
	"github.com/elonfeng/govdigest/internal/store"
	"github.com/elonfeng/govdigest/pkg/alert"
	"github.com/elonfeng/govdigest/pkg/pipeline"
	"github.com/elonfeng/govdigest/pkg/source"
	"github.com/elonfeng/govdigest/pkg/summarize"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildLogger(cfg *config.Config) *slog.Logger {
	return logger.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
}

func buildFetcher(cfg *config.Config) source.Fetcher {
	var fetchers []source.Fetcher

	if cfg.NewsAPI.URL != "" {
		fetchers = append(fetchers, source.NewNewsAPI(source.NewsAPIConfig{
			BaseURL:   cfg.NewsAPI.URL,
			APIKey:    cfg.NewsAPI.APIKey,
			PerPage:   cfg.NewsAPI.PerPage,
			BatchSize: cfg.NewsAPI.BatchSize,
			Timeout:   cfg.NewsAPI.Timeout,
			Retry:     cfg.Retry,
		}))
	}
	if len(cfg.Feeds) > 0 {
		feeds := make([]source.Feed, len(cfg.Feeds))
		for i, f := range cfg.Feeds {
			feeds[i] = source.Feed{Country: f.Country, Name: f.Name, URL: f.URL}
		}
		fetchers = append(fetchers, source.NewFeedSource(feeds, cfg.NewsAPI.Timeout, cfg.Retry))
	}

	if len(fetchers) == 1 {
		return fetchers[0]
	}
	return source.NewMulti(fetchers...)
}

func buildSummarizer(cfg *config.Config, m *metrics.Metrics, log *slog.Logger) (*summarize.Summarizer, error) {
	completer, err := summarize.NewCompleter(summarize.CompleterConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("build llm client: %w", err)
	}
	log.Debug("llm configured", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	return summarize.New(completer, cfg.Retry,
		summarize.WithRateLimit(cfg.LLM.RequestsPerSecond),
		summarize.WithLogger(log),
		summarize.WithObserver(func(scope summarize.Scope, err error) {
			m.ObserveLLM(string(scope), err)
		}),
	), nil
}

// buildLocker returns the run lock and a func that closes its connection.
func buildLocker(cfg *config.Config) (lock.Locker, func() error, error) {
	if cfg.Lock.RedisURL == "" {
		return lock.Noop{}, func() error { return nil }, nil
	}
	l, err := lock.NewRedis(cfg.Lock.RedisURL, cfg.Lock.Key, cfg.Lock.TTL)
	if err != nil {
		return nil, nil, err
	}
	return l, l.Close, nil
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

// app holds everything a pipeline run needs for one process.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	db       *store.SQLiteStore
	metrics  *metrics.Metrics
	alerts   *alert.Manager
	pipeline *pipeline.Pipeline
	closers  []func() error
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := buildLogger(cfg)

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{cfg: cfg, log: log, db: db, metrics: metrics.New(), alerts: buildAlertManager(cfg)}
	a.closers = append(a.closers, db.Close)

	sum, err := buildSummarizer(cfg, a.metrics, log)
	if err != nil {
		a.close()
		return nil, err
	}
	locker, closeLock, err := buildLocker(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, closeLock)

	a.pipeline = pipeline.New(db, buildFetcher(cfg), sum, pipeline.Options{
		Countries:             cfg.Pipeline.Countries,
		Concurrency:           cfg.Pipeline.Concurrency,
		MaxReleasesPerCountry: cfg.Pipeline.MaxReleasesPerCountry,
		WeekEnd:               cfg.Pipeline.WeekEndDay(),
		CountryFallback:       pipeline.FallbackPolicy(cfg.Pipeline.CountryFallback),
		PruneDays:             cfg.Pipeline.PruneDays,
		Filter:                source.NewFilter(cfg.Pipeline.ExcludeKeywords),
		Locker:                locker,
		Metrics:               a.metrics,
		Logger:                log,
	})
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close", "error", err)
		}
	}
}

// finish prints the report, sends alerts and pushes metrics. The returned
// error is non-nil only when the run made no progress at all.
func (a *app) finish(ctx context.Context, rep *pipeline.Report, runErr error) error {
	printReport(os.Stdout, rep)

	// Notifications and pushes must still go out after an interrupt.
	ctx = context.WithoutCancel(ctx)

	if a.alerts.HasNotifiers() {
		if err := a.alerts.Broadcast(ctx, alert.FromReport(rep)); err != nil {
			a.log.Warn("send alerts", "error", err)
		}
	}
	if a.cfg.Metrics.PushgatewayURL != "" {
		if err := a.metrics.Push(ctx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job); err != nil {
			a.log.Warn("push metrics", "error", err)
		}
	}

	if runErr == nil {
		return nil
	}
	if rep.Progressed() {
		a.log.Warn("run stopped early after making progress", "error", runErr)
		return nil
	}
	return runErr
}

func (r rangeFlags) resolve(cfg *config.Config, now time.Time) (pipeline.Range, error) {
	if r.from != "" {
		return pipeline.ParseRange(r.from, r.to)
	}
	if r.to != "" {
		return pipeline.Range{}, errors.New("--to requires --from")
	}
	days := r.backfill
	if days <= 0 {
		days = cfg.Pipeline.BackfillDays
	}
	return pipeline.BackfillRange(days, now), nil
}

func runGenerate(ctx context.Context, opts rangeFlags) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	r, err := opts.resolve(a.cfg, time.Now())
	if err != nil {
		return err
	}
	rep, err := a.pipeline.Run(ctx, r)
	return a.finish(ctx, rep, err)
}

func runWeekly(ctx context.Context, opts rangeFlags) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	r, err := opts.resolve(a.cfg, time.Now())
	if err != nil {
		return err
	}
	rep, err := a.pipeline.RollupWeeks(ctx, r)
	return a.finish(ctx, rep, err)
}

func runSchedule(ctx context.Context, spec string, runOnStart bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if spec == "" {
		spec = a.cfg.Schedule.Cron
	}
	job := func(ctx context.Context) {
		r := pipeline.BackfillRange(a.cfg.Pipeline.BackfillDays, time.Now())
		rep, err := a.pipeline.Run(ctx, r)
		if err := a.finish(ctx, rep, err); err != nil {
			a.log.Error("scheduled run failed", "error", err)
		}
	}

	opts := []scheduler.Option{scheduler.WithLogger(a.log)}
	if runOnStart {
		opts = append(opts, scheduler.WithRunOnStart())
	}
	sched, err := scheduler.New(spec, job, opts...)
	if err != nil {
		return err
	}

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openReader opens the digest database without write access.
func openReader() (*store.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := store.OpenReadOnly(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

func runShow(ctx context.Context, date string, jsonOutput bool) error {
	db, err := openReader()
	if err != nil {
		return err
	}
	defer db.Close()

	var d *store.DailyDigest
	if date == "" {
		d, err = db.LatestDigest(ctx)
	} else {
		d, err = db.DigestByDate(ctx, date)
	}
	if errors.Is(err, store.ErrNotFound) {
		return notFound("daily digest", date)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(d)
	}
	printDaily(os.Stdout, d)
	return nil
}

func runWeeklyShow(ctx context.Context, weekEnd string, jsonOutput bool) error {
	db, err := openReader()
	if err != nil {
		return err
	}
	defer db.Close()

	var w *store.WeeklyDigest
	if weekEnd == "" {
		w, err = db.LatestWeekly(ctx)
	} else {
		w, err = db.WeeklyByEnd(ctx, weekEnd)
	}
	if errors.Is(err, store.ErrNotFound) {
		return notFound("weekly digest", weekEnd)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(w)
	}
	printWeekly(os.Stdout, w)
	return nil
}

func runDates(ctx context.Context, weekly bool) error {
	db, err := openReader()
	if err != nil {
		return err
	}
	defer db.Close()

	var dates []string
	if weekly {
		dates, err = db.ListWeekEnds(ctx)
	} else {
		dates, err = db.ListDates(ctx)
	}
	if err != nil {
		return err
	}

	if len(dates) == 0 {
		fmt.Println("no digests yet (try: govdigest generate)")
		return nil
	}
	for _, d := range dates {
		fmt.Println(d)
	}
	return nil
}

func runPrune(ctx context.Context, keepDays int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if keepDays <= 0 {
		keepDays = cfg.Pipeline.PruneDays
	}
	if keepDays <= 0 {
		return errors.New("nothing to prune: set --keep-days or pipeline.prune_days")
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	cutoff := time.Now().UTC().AddDate(0, 0, -keepDays).Format(source.DateLayout)
	daily, weekly, err := db.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	fmt.Printf("pruned %d daily and %d weekly digests before %s\n", daily, weekly, cutoff)
	return nil
}

func runDelete(ctx context.Context, date, weekEnd string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	kind, key := "daily digest", date
	var deleted bool
	if date != "" {
		deleted, err = db.DeleteDailyDigest(ctx, date)
	} else {
		kind, key = "weekly digest", weekEnd
		deleted, err = db.DeleteWeeklyDigest(ctx, weekEnd)
	}
	if err != nil {
		return err
	}
	if !deleted {
		return notFound(kind, key)
	}
	fmt.Printf("deleted %s %s\n", kind, key)
	return nil
}

func notFound(kind, key string) error {
	if key == "" {
		return fmt.Errorf("no %s yet (try: govdigest generate)", kind)
	}
	return fmt.Errorf("no %s for %s", kind, key)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
