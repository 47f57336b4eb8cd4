package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/l0p7/imageserve/internal/cache"
	"github.com/l0p7/imageserve/internal/metrics"
	"github.com/l0p7/imageserve/internal/transform"
)

// AssetSource is the read-only slice of the asset store the image service
// consumes. *assets.Store satisfies it.
type AssetSource interface {
	Exists(path string) bool
	Open(path string) (io.ReadCloser, error)
	ReadFile(path string) ([]byte, error)
}

// ServiceOptions carries the collaborators the image service composes.
type ServiceOptions struct {
	Assets            AssetSource
	Engine            transform.Engine
	Cache             cache.DerivativeCache
	Logger            *slog.Logger
	Metrics           *metrics.Recorder
	DefaultQuality    int
	DefaultFormat     transform.Format
	CorrelationHeader string
}

// Service serves image derivatives: it resolves transform intent, consults
// the derivative cache, runs the pipeline on misses, and degrades to
// streaming the original asset whenever the transform path fails. The only
// hard failure it surfaces is a missing source asset.
type Service struct {
	assets            AssetSource
	engine            transform.Engine
	cache             cache.DerivativeCache
	logger            *slog.Logger
	metrics           *metrics.Recorder
	defaultQuality    int
	defaultFormat     transform.Format
	correlationHeader string
}

// NewService validates the wiring and returns the image service.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Assets == nil {
		return nil, errors.New("server: asset store required")
	}
	if opts.Engine == nil {
		return nil, errors.New("server: transform engine required")
	}
	if opts.Cache == nil {
		return nil, errors.New("server: derivative cache required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		assets:            opts.Assets,
		engine:            opts.Engine,
		cache:             opts.Cache,
		logger:            logger.With(slog.String("agent", "images")),
		metrics:           opts.Metrics,
		defaultQuality:    opts.DefaultQuality,
		defaultFormat:     opts.DefaultFormat,
		correlationHeader: opts.CorrelationHeader,
	}, nil
}

// ServeImage walks the fallback chain for one request:
// resolve → pass-through | cache hit → respond | miss → transform → store
// and respond | transform failure → serve the original | original gone → 500.
func (s *Service) ServeImage(w http.ResponseWriter, r *http.Request, sourcePath string) {
	start := time.Now()
	logger := s.requestLogger(r).With(slog.String("path", sourcePath))

	if !s.assets.Exists(sourcePath) {
		s.metrics.ObserveRequest(metrics.OutcomeNotFound, metrics.CacheNone, time.Since(start))
		s.WriteError(w, http.StatusNotFound, fmt.Sprintf("image %q not found", sourcePath))
		return
	}

	req := transform.Resolve(r.URL.Query(), transform.ResolveOptions{
		EngineAvailable: s.engine.Available(),
		DefaultQuality:  s.defaultQuality,
		DefaultFormat:   s.defaultFormat,
	})
	if req.PassThrough {
		if err := s.streamOriginal(w, sourcePath); err != nil {
			logger.Error("pass-through stream failed", slog.Any("error", err))
			s.metrics.ObserveRequest(metrics.OutcomeError, metrics.CacheNone, time.Since(start))
			s.WriteError(w, http.StatusInternalServerError, "image could not be served")
			return
		}
		s.metrics.ObserveRequest(metrics.OutcomePassThrough, metrics.CacheNone, time.Since(start))
		return
	}

	key := cache.BuildKey(sourcePath, req.Width, req.Height, req.Quality, req.Format.String())
	entry, ok, err := s.cache.Get(r.Context(), key)
	switch {
	case err != nil:
		logger.Warn("derivative cache get failed", slog.Any("error", err))
		s.metrics.ObserveCacheOperation(metrics.CacheOperationGet, "error")
	case ok:
		s.metrics.ObserveCacheOperation(metrics.CacheOperationGet, "hit")
		writeDerivative(w, entry, cacheStatusHit)
		s.metrics.ObserveRequest(metrics.OutcomeDerivative, metrics.CacheHit, time.Since(start))
		return
	default:
		s.metrics.ObserveCacheOperation(metrics.CacheOperationGet, "miss")
	}

	// A client disconnect must not abort the transform or the cache
	// population: the finished derivative pre-warms the next requester.
	ctx := context.WithoutCancel(r.Context())

	src, err := s.assets.ReadFile(sourcePath)
	if err != nil {
		logger.Warn("source read failed before transform", slog.Any("error", err))
		s.fallbackOriginal(w, sourcePath, start, logger)
		return
	}

	transformStart := time.Now()
	res, err := s.engine.Transform(ctx, src, req.Params)
	if err != nil {
		s.metrics.ObserveTransform(req.Format.String(), metrics.TransformFailed, time.Since(transformStart))
		logger.Warn("transform failed, serving original",
			slog.Int("width", req.Width),
			slog.Int("height", req.Height),
			slog.Int("quality", req.Quality),
			slog.String("format", req.Format.String()),
			slog.Any("error", err))
		s.fallbackOriginal(w, sourcePath, start, logger)
		return
	}
	s.metrics.ObserveTransform(req.Format.String(), metrics.TransformOK, time.Since(transformStart))

	entry = cache.Entry{
		Data:         res.Data,
		ContentType:  res.ContentType,
		OriginalSize: int64(len(src)),
	}
	if err := s.cache.Put(ctx, key, entry); err != nil {
		logger.Warn("derivative cache put failed", slog.Any("error", err))
		s.metrics.ObserveCacheOperation(metrics.CacheOperationPut, "error")
	} else {
		s.metrics.ObserveCacheOperation(metrics.CacheOperationPut, "stored")
	}

	writeDerivative(w, entry, cacheStatusMiss)
	s.metrics.ObserveRequest(metrics.OutcomeDerivative, metrics.CacheMiss, time.Since(start))
}

// fallbackOriginal serves the unmodified source after a transform-path
// failure. Only when the original has vanished between the existence check
// and this read does the caller see an error.
func (s *Service) fallbackOriginal(w http.ResponseWriter, sourcePath string, start time.Time, logger *slog.Logger) {
	if err := s.streamOriginal(w, sourcePath); err != nil {
		logger.Error("fallback unavailable", slog.Any("error", err))
		s.metrics.ObserveRequest(metrics.OutcomeError, metrics.CacheNone, time.Since(start))
		s.WriteError(w, http.StatusInternalServerError, "image processing failed")
		return
	}
	s.metrics.ObserveRequest(metrics.OutcomeFallback, metrics.CacheNone, time.Since(start))
}

// ServeClearCache empties the derivative cache and reports how many
// entries were dropped. Authorization is the surrounding deployment's
// responsibility.
func (s *Service) ServeClearCache(w http.ResponseWriter, r *http.Request) {
	removed, err := s.cache.Clear(r.Context())
	if err != nil {
		s.requestLogger(r).Error("cache clear failed", slog.Any("error", err))
		s.metrics.ObserveCacheOperation(metrics.CacheOperationClear, "error")
		s.WriteError(w, http.StatusInternalServerError, "cache clear failed")
		return
	}
	s.metrics.ObserveCacheOperation(metrics.CacheOperationClear, "ok")
	s.requestLogger(r).Info("derivative cache cleared", slog.Int("removed", removed))
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Cleared %d cached images", removed),
	})
}

// ServeHealth reports engine availability and cache occupancy.
func (s *Service) ServeHealth(w http.ResponseWriter, r *http.Request) {
	size, err := s.cache.Size(r.Context())
	if err != nil {
		s.requestLogger(r).Warn("cache size probe failed", slog.Any("error", err))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"engine":          s.engine.Name(),
		"engineAvailable": s.engine.Available(),
		"cachedImages":    size,
	})
}

// WriteError emits the structured JSON error body shared by every route.
func (s *Service) WriteError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Service) requestLogger(r *http.Request) *slog.Logger {
	if s.correlationHeader == "" {
		return s.logger
	}
	id := r.Header.Get(s.correlationHeader)
	if id == "" {
		return s.logger
	}
	return s.logger.With(slog.String("correlation_id", id))
}
