package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/rickgao/motionfeed/internal/api"
	"github.com/rickgao/motionfeed/internal/config"
	"github.com/rickgao/motionfeed/internal/database"
	"github.com/rickgao/motionfeed/internal/feed"
	"github.com/rickgao/motionfeed/internal/metrics"
	"github.com/rickgao/motionfeed/internal/model"
	"github.com/rickgao/motionfeed/internal/poller"
	"github.com/rickgao/motionfeed/internal/report"
	"github.com/rickgao/motionfeed/internal/version"
	"github.com/rickgao/motionfeed/internal/writer"
)

type pollOptions struct {
	dataURL    string
	addr       string
	interval   time.Duration
	maxEmpty   int
	maxErrors  int
	store      bool
	exitOnStop bool
}

func newPollCommand(root *rootOptions) *cobra.Command {
	opts := &pollOptions{}

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll the data URL and serve the live chart feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("validate config: %w", err)
			}
			return runPoll(cmd.Context(), cfg, opts.exitOnStop)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.dataURL, "url", "", "data URL to poll (overrides source.data_url)")
	f.StringVar(&opts.addr, "addr", "", "HTTP listen address (overrides server.addr)")
	f.DurationVar(&opts.interval, "interval", 0, "poll interval (overrides poller.interval)")
	f.IntVar(&opts.maxEmpty, "max-empty", 0, "consecutive empty responses tolerated (overrides poller.max_empty_responses)")
	f.IntVar(&opts.maxErrors, "max-errors", 0, "consecutive transport errors tolerated (overrides poller.max_errors)")
	f.BoolVar(&opts.store, "store", false, "persist merged points (overrides store.enabled)")
	f.BoolVar(&opts.exitOnStop, "exit-on-stop", false, "exit when polling stops instead of serving the final chart")
	return cmd
}

// apply folds explicitly set flags into cfg.
func (o *pollOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("url") {
		cfg.Source.DataURL = o.dataURL
	}
	if f.Changed("addr") {
		cfg.Server.Addr = o.addr
	}
	if f.Changed("interval") {
		cfg.Poller.Interval = o.interval
	}
	if f.Changed("max-empty") {
		n := o.maxEmpty
		cfg.Poller.MaxEmptyResponses = &n
	}
	if f.Changed("max-errors") {
		n := o.maxErrors
		cfg.Poller.MaxErrors = &n
	}
	if f.Changed("store") {
		cfg.Store.Enabled = o.store
	}
}

func runPoll(parent context.Context, cfg *config.Config, exitOnStop bool) error {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	runID := uuid.New()
	logger.Info("starting motionfeed poll",
		"version", version.Version,
		"commit", version.Commit,
		"run_id", runID,
		"data_url", cfg.Source.DataURL,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.New()
	collector.Registry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	hub := feed.NewHub(feed.Config{
		QueueSize:    cfg.Feed.QueueSize,
		PingInterval: cfg.Feed.PingInterval,
		PongTimeout:  3 * cfg.Feed.PingInterval,
		WriteTimeout: cfg.Feed.WriteTimeout,
	}, logger, collector)

	client := api.NewClient(
		cfg.Source.DataURL,
		cfg.Source.APIKey,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Source.Timeout),
		api.WithRetries(cfg.Source.MaxRetries, time.Second),
	)

	opts := []poller.Option{
		poller.WithChart(hub),
		poller.WithRecorder(collector),
	}

	checks := map[string]healthCheck{}

	var (
		pool *pgxpool.Pool
		pw   *writer.PointWriter
	)
	if cfg.Store.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Store.Database.Host,
			"port", cfg.Store.Database.Port,
			"database", cfg.Store.Database.Name,
		)
		pool, err = database.Connect(ctx, cfg.Store.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		pw = writer.NewPointWriter(writer.WriterConfig{
			BatchSize:     cfg.Store.BatchSize,
			FlushInterval: cfg.Store.FlushInterval,
			QueueSize:     cfg.Store.BufferSize,
		}, runID, pool, logger)
		if err := pw.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := pw.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		opts = append(opts, poller.WithMergeHandler(pw))

		checks["database"] = func(ctx context.Context) (any, error) {
			if err := pool.Ping(ctx); err != nil {
				return nil, err
			}
			return pw.Stats(), nil
		}
	}

	p, err := poller.New(poller.Config{
		Interval:          cfg.Poller.Interval,
		Timeout:           cfg.Poller.Timeout,
		MaxEmptyResponses: *cfg.Poller.MaxEmptyResponses,
		MaxErrors:         *cfg.Poller.MaxErrors,
		Initial: []model.Series{{
			Name:  cfg.Poller.PrimarySeries,
			Color: cfg.Poller.PrimaryColor,
			Data:  []model.Point{},
		}},
	}, client, logger, opts...)
	if err != nil {
		return err
	}

	checks["poller"] = func(context.Context) (any, error) {
		return gin.H{
			"last_index": p.LastIndex(),
			"terminated": p.Terminated(),
			"reason":     p.Reason(),
		}, nil
	}
	checks["feed"] = func(context.Context) (any, error) {
		return gin.H{"viewers": hub.Viewers(), "dropped": hub.Dropped()}, nil
	}

	router := newRouter(logger, checks)
	hub.Register(router, cfg.Server.FeedPath, cfg.Server.SeriesPath)
	router.GET(cfg.Server.MetricsPath, gin.WrapH(collector.Handler()))

	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- serveHTTP(srvCtx, &http.Server{Addr: cfg.Server.Addr, Handler: router}, logger)
	}()

	started := time.Now()
	if err := p.Start(ctx); err != nil {
		return err
	}

	select {
	case <-p.Done():
		logger.Info("polling finished", "reason", p.Reason(), "last_index", p.LastIndex())
		if !exitOnStop {
			logger.Info("serving final chart until interrupted", "addr", cfg.Server.Addr)
			select {
			case <-ctx.Done():
			case err := <-srvErr:
				logServerErr(logger, err)
			}
		}
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-srvErr:
		logServerErr(logger, err)
	}
	elapsed := time.Since(started)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.Stop(shutdownCtx); err != nil {
		logger.Warn("poller stop timed out", "error", err)
	}
	hub.Close()
	srvCancel()

	summary := report.Summary{
		RunID:     runID,
		DataURL:   client.DataURL(),
		Reason:    p.Reason(),
		Duration:  elapsed,
		Stats:     p.Stats(),
		Series:    p.Series(),
		Latency:   collector.Latency(),
		FeedDrops: hub.Dropped(),
	}
	if pw != nil {
		if err := pw.Stop(shutdownCtx); err != nil {
			logger.Warn("writer stop timed out", "error", err)
		}
		st := pw.Stats()
		summary.Writer = &st
	}

	report.Write(os.Stdout, summary)
	logger.Info("motionfeed stopped")
	return nil
}

func logServerErr(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("http server error", "error", err)
	}
}
