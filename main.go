package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/opendatafab/sirene-lake/metrics"
	"github.com/opendatafab/sirene-lake/pipeline"
	"github.com/opendatafab/sirene-lake/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	env := flag.String("env", "", "Environment name (overrides config)")
	skipIngest := flag.Bool("skip-ingest", false, "Skip bronze ingestion and reuse existing snapshots")
	flag.Parse()

	config, err := LoadConfig(*configPath)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}
	if err := config.Validate(); err != nil {
		zap.NewExample().Fatal("invalid config", zap.Error(err))
	}

	logger := newLogger(config.Logging.Level)
	defer logger.Sync()

	opts, err := config.Resolve(*env, !*skipIngest)
	if err != nil {
		logger.Fatal("failed to resolve environment", zap.Error(err))
	}
	logger.Info("pipeline starting",
		zap.String("service", config.Service.Name),
		zap.String("environment", firstNonEmpty(*env, config.Environment)),
		zap.Int("sample_limit", opts.SampleLimit),
		zap.Int("datasets", len(opts.Datasets)))

	m := metrics.New(config.Metrics)
	if m.IsEnabled() {
		go func() {
			if err := m.StartServer(config.Metrics.Address); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	st, err := store.Open(config.Storage.Root, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer st.Close()

	runID := uuid.NewString()
	lock, err := store.AcquireRunLock(config.Storage.Root, runID)
	if err != nil {
		logger.Fatal("failed to acquire run lock", zap.Error(err))
	}
	defer lock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Warn("shutdown signal received, aborting at next layer boundary")
		cancel()
	}()

	opts.RunID = runID
	runner := pipeline.NewRunner(st, opts, m, logger)
	summary, runErr := runner.Run(ctx)

	// The summary is always emitted, success or failure, so a failed run is
	// diagnosable from the log sink alone.
	logger.Info("run summary", zap.Any("summary", summary))

	if runErr != nil {
		lock.Release()
		st.Close()
		logger.Sync()
		os.Exit(1)
	}

	for _, ds := range opts.Datasets {
		wm, err := st.Watermark(ctx, store.LayerSilver, ds.Name, "ingested_at")
		if err != nil {
			logger.Warn("failed to read silver watermark", zap.String("dataset", ds.Name), zap.Error(err))
			continue
		}
		logger.Info("silver watermark", zap.String("dataset", ds.Name), zap.Time("ingested_at", wm))
	}
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewExample()
	}
	return logger
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
