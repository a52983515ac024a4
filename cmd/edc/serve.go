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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	counterfactual "github.com/FrenchMajesty/evidence-counterfactual"
	"github.com/FrenchMajesty/evidence-counterfactual/internal/metrics"
	"github.com/FrenchMajesty/evidence-counterfactual/internal/server"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	scorer       scorerOptions
	addr         string
	configPath   string
	maxDimension int
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve explanations over HTTP",
		Long: `Serve exposes POST /v1/explain, GET /healthz and GET /metrics.

Example:
  edc serve --model model.yaml --addr :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	opts.scorer.register(cmd)
	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "Listen address")
	cmd.Flags().IntVar(&opts.maxDimension, "max-dimension", server.DefaultMaxDimension, "Largest instance dimension accepted when no model fixes it")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "YAML search configuration used as request defaults")

	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	cfg := counterfactual.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := loadConfig(opts.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	setup, err := opts.scorer.build(logger)
	if err != nil {
		return err
	}
	defer setup.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cfg.Metrics = metrics.NewRecorder(reg)
	cfg.Logger = logger

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	schema := server.Schema{
		FeatureNames: setup.featureNames,
		Dimension:    setup.dim,
		MaxDimension: opts.maxDimension,
	}
	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           server.New(setup.scorer, schema, cfg, reg, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", opts.addr), zap.String("scorer", opts.scorer.kind))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
