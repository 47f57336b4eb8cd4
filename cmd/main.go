package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/l0p7/imageserve/internal/assets"
	"github.com/l0p7/imageserve/internal/cache"
	"github.com/l0p7/imageserve/internal/config"
	"github.com/l0p7/imageserve/internal/logging"
	"github.com/l0p7/imageserve/internal/metrics"
	"github.com/l0p7/imageserve/internal/server"
	"github.com/l0p7/imageserve/internal/transform"
	"github.com/l0p7/imageserve/internal/transform/native"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "IMAGESERVE", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	store, err := assets.NewStore(cfg.Server.Assets.Root)
	if err != nil {
		logger.Error("asset root unusable", slog.String("root", cfg.Server.Assets.Root), slog.Any("error", err))
		os.Exit(1)
	}

	engine, engineClose := buildEngine(logger.With(slog.String("agent", "engine_factory")), cfg.Server.Engine)
	defer engineClose()
	if !engine.Available() {
		logger.Warn("transform engine unavailable, all responses will pass through",
			slog.String("backend", cfg.Server.Engine.Backend))
	}

	derivativeCache := buildDerivativeCache(logger.With(slog.String("agent", "cache_factory")), cfg.Server.Cache)
	defer func() {
		if err := derivativeCache.Close(context.Background()); err != nil {
			logger.Error("cache shutdown failed", slog.Any("error", err))
		}
	}()

	if cfg.Server.Assets.WatchInvalidate {
		watcher, err := assets.Watch(ctx, store, func(relPath string) {
			if err := derivativeCache.DeletePrefix(context.Background(), cache.KeyPrefix(relPath)); err != nil {
				logger.Warn("derivative invalidation failed", slog.String("path", relPath), slog.Any("error", err))
				return
			}
			logger.Debug("source changed, derivatives invalidated", slog.String("path", relPath))
		}, func(err error) {
			logger.Error("asset watcher error", slog.Any("error", err))
		})
		if err != nil {
			logger.Error("asset watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	promRegistry := prometheus.NewRegistry()
	metricsRecorder := metrics.NewRecorder(promRegistry)

	defaultFormat, ok := transform.ParseFormat(cfg.Server.Images.DefaultFormat)
	if !ok {
		defaultFormat = transform.FormatWebP
	}

	svc, err := server.NewService(server.ServiceOptions{
		Assets:            store,
		Engine:            engine,
		Cache:             derivativeCache,
		Logger:            logger,
		Metrics:           metricsRecorder,
		DefaultQuality:    cfg.Server.Images.DefaultQuality,
		DefaultFormat:     defaultFormat,
		CorrelationHeader: cfg.Server.Logging.CorrelationHeader,
	})
	if err != nil {
		logger.Error("unable to construct image service", slog.Any("error", err))
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsRecorder.Handler())
	mux.Handle("/", server.NewImageHandler(svc))

	srv, err := server.New(cfg, logger, mux)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// buildEngine selects the transform backend, falling back to the pure Go
// engine when libvips cannot be initialized so the service still starts.
// The returned func releases backend resources at shutdown.
func buildEngine(logger *slog.Logger, cfg config.EngineConfig) (transform.Engine, func()) {
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	switch backend {
	case config.EngineBackendVips:
		engine, err := native.New(cfg.Concurrency, logger)
		if err != nil {
			if logger != nil {
				logger.Error("vips engine initialization failed", slog.Any("error", err))
				logger.Info("falling back to standard engine")
			}
			return transform.NewStandard(), func() {}
		}
		if logger != nil {
			logger.Info("using vips transform engine", slog.Int("concurrency", cfg.Concurrency))
		}
		return engine, engine.Close
	case config.EngineBackendOff:
		if logger != nil {
			logger.Info("transform engine disabled by configuration")
		}
		return transform.NewDisabled(), func() {}
	case "", config.EngineBackendStandard:
		if logger != nil {
			logger.Info("using standard transform engine")
		}
		return transform.NewStandard(), func() {}
	default:
		if logger != nil {
			logger.Warn("unsupported engine backend, defaulting to standard", slog.String("backend", cfg.Backend))
		}
		return transform.NewStandard(), func() {}
	}
}

// buildDerivativeCache maps the configured eviction policy onto a bounded
// in-memory cache.
func buildDerivativeCache(logger *slog.Logger, cfg config.CacheConfig) cache.DerivativeCache {
	policy := strings.TrimSpace(strings.ToLower(cfg.Policy))
	switch policy {
	case config.CachePolicyLRU:
		if logger != nil {
			logger.Info("using lru derivative cache", slog.Int("capacity", cfg.Capacity))
		}
		return cache.NewLRU(cfg.Capacity)
	case "", config.CachePolicyFIFO:
		if logger != nil {
			logger.Info("using fifo derivative cache", slog.Int("capacity", cfg.Capacity))
		}
		return cache.NewFIFO(cfg.Capacity)
	default:
		if logger != nil {
			logger.Warn("unsupported cache policy, defaulting to fifo", slog.String("policy", cfg.Policy))
		}
		return cache.NewFIFO(cfg.Capacity)
	}
}
