package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/rickgao/motionfeed/internal/config"
	"github.com/rickgao/motionfeed/internal/source"
	"github.com/rickgao/motionfeed/internal/version"
)

type serveOptions struct {
	addr    string
	volumes int
	tr      time.Duration
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a synthetic head-motion data source for dry runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if err := cfg.ValidateServe(); err != nil {
				return fmt.Errorf("validate config: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "", "HTTP listen address (overrides server.addr)")
	f.IntVar(&opts.volumes, "volumes", 0, "volumes to emit (overrides generator.volumes)")
	f.DurationVar(&opts.tr, "tr", 0, "time between volumes (overrides generator.tr)")
	return cmd
}

func (o *serveOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.Server.Addr = o.addr
	}
	if f.Changed("volumes") {
		cfg.Generator.Volumes = o.volumes
	}
	if f.Changed("tr") {
		cfg.Generator.TR = o.tr
	}
}

func runServe(parent context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	logger.Info("starting motionfeed serve",
		"version", version.Version,
		"addr", cfg.Server.Addr,
		"data_path", cfg.Generator.DataPath,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := source.NewStore()
	gen, err := source.NewGenerator(source.GeneratorConfig{
		TR:          cfg.Generator.TR,
		Volumes:     cfg.Generator.Volumes,
		SkipVolumes: *cfg.Generator.SkipVolumes,
		Drift:       cfg.Generator.Drift,
		Seed:        cfg.Generator.Seed,
	}, store, logger)
	if err != nil {
		return err
	}

	router := newRouter(logger, map[string]healthCheck{
		"generator": func(context.Context) (any, error) {
			return gin.H{"points": store.Len(source.SeriesMeanDisplacement)}, nil
		},
	})
	source.NewHandler(store, logger).Register(router, cfg.Generator.DataPath)

	go func() {
		if err := gen.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("generator stopped", "error", err)
		}
	}()

	return serveHTTP(ctx, &http.Server{Addr: cfg.Server.Addr, Handler: router}, logger)
}
