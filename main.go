package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kartoza/somnia/internal/config"
	"github.com/kartoza/somnia/internal/history"
	"github.com/kartoza/somnia/internal/logging"
	"github.com/kartoza/somnia/internal/otel"
	"github.com/kartoza/somnia/internal/predict"
	"github.com/kartoza/somnia/internal/server"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	cfg, err := config.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to parse configuration: %v", err)
	}

	if *showVersion {
		fmt.Printf("SOMNiA v%s\n", version)
		os.Exit(0)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	shutdownTracing, err := otel.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	s, err := cfg.Schema()
	if err != nil {
		return fmt.Errorf("feature schema: %w", err)
	}

	// Artifacts must load before anything listens
	paths := cfg.ArtifactPaths()
	bundle, err := predict.LoadBundle(ctx, s, paths)
	if err != nil {
		return fmt.Errorf("load artifacts: %w", err)
	}
	logger.Info("artifacts loaded",
		zap.String("model", paths.Model),
		zap.String("scaler", paths.Scaler),
		zap.Int("seq_len", s.SeqLen()),
		zap.Int("n_features", s.Len()),
	)

	opts := []predict.Option{predict.WithLogger(logger)}
	var store *history.Store
	if cfg.HistoryEnabled() {
		store, err = history.Open(cfg.HistoryDBPath)
		if err != nil {
			return err
		}
		opts = append(opts, predict.WithRecorder(store))
		logger.Info("prediction history enabled", zap.String("path", cfg.HistoryDBPath))
	}

	svc := predict.NewService(cfg.ServiceName, bundle, opts...)

	srv, err := server.New(cfg, svc, store, logger, version)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return err
	}

	logger.Info("starting", zap.String("service", cfg.ServiceName), zap.String("version", version), zap.Int("port", cfg.Port))

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if stopErr := srv.Stop(); stopErr != nil {
			logger.Error("error during shutdown", zap.Error(stopErr))
		}
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		return srv.Stop()
	}
}
