// Command knnserve is the KNN serving engine's process entrypoint: it loads
// configuration, builds the logger, loads every configured country into a
// Router, and serves the HTTP boundary until terminated.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	chromem "github.com/philippgille/chromem-go"

	"github.com/partnerknn/knnserve/internal/config"
	"github.com/partnerknn/knnserve/internal/knn"
	"github.com/partnerknn/knnserve/internal/logging"
	"github.com/partnerknn/knnserve/pkg/knnserver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  "info",
		Format: "json",
		Fields: map[string]string{"service": "knnserve", "platform": cfg.Platform},
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info(ctx, "received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	logger.Info(ctx, "starting knnserve",
		zap.String("platform", cfg.Platform),
		zap.String("embedding_version", cfg.EmbeddingVersion),
		zap.Strings("countries", cfg.Countries))

	// One in-memory chromem-go database backs every shard across every
	// country: shards are immutable post-load and never persisted back to
	// disk (spec Non-goal: online updates / index construction).
	db := chromem.NewDB()
	loader := knn.NewLoader(db)

	models := make([]knn.Model, len(cfg.Models))
	needsONNXRuntime := false
	for i, m := range cfg.Models {
		modelType, err := knn.ParseModelType(m.ModelType)
		if err != nil {
			return fmt.Errorf("parsing model type for %s: %w", m.Name, err)
		}
		models[i] = knn.Model{
			Name:      m.Name,
			ModelPath: m.Path,
			ModelType: modelType,
			IsDefault: m.IsDefault,
			Version:   m.Version,
		}
		if modelType == knn.ModelTypeNeural {
			needsONNXRuntime = true
		}
	}

	// onnxruntime_go requires its environment initialized exactly once,
	// before the first session is built, so this runs ahead of
	// LoadCountries rather than inside Service.LoadModel.
	if needsONNXRuntime {
		if err := knn.InitializeRuntime(cfg.ONNXLibraryPath); err != nil {
			return fmt.Errorf("initializing onnx runtime: %w", err)
		}
		defer knn.ShutdownRuntime()
	}

	router := knn.NewRouter(knn.RouterConfig{
		IndicesRoot: cfg.IndicesRoot,
		ModelRoot:   cfg.ModelRoot,
		Platform:    cfg.Platform,
		Version:     cfg.EmbeddingVersion,
		Models:      models,
	}).WithLogger(logger.Named("router"))

	health := knnserver.NewHealthChecker()

	loadIndex := func(path string) (*knn.Registry, error) {
		return loader.LoadIndexFolder(ctx, path)
	}

	if err := router.LoadCountries(cfg.Countries, loadIndex); err != nil {
		return fmt.Errorf("loading countries: %w", err)
	}
	defer func() {
		if err := router.Close(); err != nil {
			logger.Error(context.Background(), "closing router", zap.Error(err))
		}
	}()
	for _, c := range router.GetCountries() {
		health.SetStatus(c, knnserver.StatusServing)
	}

	srv := knnserver.NewServer(router, logger.Named("http"), health)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server exited: %w", err)
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
	}

	logger.Info(context.Background(), "knnserve stopped")
	return nil
}
