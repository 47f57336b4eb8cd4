package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/require"

	"github.com/l0p7/imageserve/internal/assets"
	"github.com/l0p7/imageserve/internal/cache"
	"github.com/l0p7/imageserve/internal/transform"
)

// writeSourcePNG drops a gradient PNG under root and returns its bytes.
func writeSourcePNG(t *testing.T, root, rel string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8((x + y) / 2), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, buf.Bytes(), 0o644))
	return buf.Bytes()
}

func newTestService(t *testing.T, root string, engine transform.Engine, dc cache.DerivativeCache) *Service {
	t.Helper()
	store, err := assets.NewStore(root)
	require.NoError(t, err)
	svc, err := NewService(ServiceOptions{
		Assets:         store,
		Engine:         engine,
		Cache:          dc,
		DefaultQuality: 80,
		DefaultFormat:  transform.FormatWebP,
	})
	require.NoError(t, err)
	return svc
}

type failingEngine struct{}

func (failingEngine) Name() string    { return "failing" }
func (failingEngine) Available() bool { return true }
func (failingEngine) Transform(context.Context, []byte, transform.Params) (transform.Result, error) {
	return transform.Result{}, errors.New("encoder exploded")
}

// vanishedAssets reports the source as present but fails every read, which
// is what a file deleted mid-request looks like to the service.
type vanishedAssets struct{}

func (vanishedAssets) Exists(string) bool                 { return true }
func (vanishedAssets) Open(string) (io.ReadCloser, error) { return nil, errors.New("open: vanished") }
func (vanishedAssets) ReadFile(string) ([]byte, error)    { return nil, errors.New("read: vanished") }

func TestServeImageMissingSource(t *testing.T) {
	svc := newTestService(t, t.TempDir(), transform.NewStandard(), cache.NewFIFO(10))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/images/nope.jpg", nil)
	svc.ServeImage(rec, req, "nope.jpg")

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body["error"], "nope.jpg")
}

func TestServeImagePassThroughWithoutParams(t *testing.T) {
	root := t.TempDir()
	src := writeSourcePNG(t, root, "products/shoe.png")
	svc := newTestService(t, root, transform.NewStandard(), cache.NewFIFO(10))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/images/products/shoe.png", nil)
	svc.ServeImage(rec, req, "products/shoe.png")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, src, rec.Body.Bytes())
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	require.Empty(t, rec.Header().Get("X-Image-Optimized"))
	require.Empty(t, rec.Header().Get("X-Cache"))
}

func TestServeImagePassThroughWhenEngineUnavailable(t *testing.T) {
	root := t.TempDir()
	src := writeSourcePNG(t, root, "shoe.png")
	dc := cache.NewFIFO(10)
	svc := newTestService(t, root, transform.NewDisabled(), dc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/images/shoe.png?w=50&q=60", nil)
	svc.ServeImage(rec, req, "shoe.png")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, src, rec.Body.Bytes())
	require.Empty(t, rec.Header().Get("X-Image-Optimized"))

	size, err := dc.Size(context.Background())
	require.NoError(t, err)
	require.Zero(t, size, "pass-through must not populate the cache")
}

func TestServeImageFallbackOnTransformFailure(t *testing.T) {
	root := t.TempDir()
	src := writeSourcePNG(t, root, "shoe.png")
	dc := cache.NewFIFO(10)
	svc := newTestService(t, root, failingEngine{}, dc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/images/shoe.png?w=50", nil)
	svc.ServeImage(rec, req, "shoe.png")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, src, rec.Body.Bytes(), "failed transform serves the untouched original")
	require.Empty(t, rec.Header().Get("X-Image-Optimized"))

	size, err := dc.Size(context.Background())
	require.NoError(t, err)
	require.Zero(t, size, "failed transforms must not poison the cache")
}

func TestServeImageErrorWhenOriginalVanishes(t *testing.T) {
	svc, err := NewService(ServiceOptions{
		Assets: vanishedAssets{},
		Engine: failingEngine{},
		Cache:  cache.NewFIFO(10),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/images/shoe.png?w=50", nil)
	svc.ServeImage(rec, req, "shoe.png")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "image processing failed", body["error"])
}

func TestNewServiceRejectsMissingCollaborators(t *testing.T) {
	store := vanishedAssets{}
	engine := transform.NewStandard()
	dc := cache.NewFIFO(1)

	_, err := NewService(ServiceOptions{Engine: engine, Cache: dc})
	require.Error(t, err)
	_, err = NewService(ServiceOptions{Assets: store, Cache: dc})
	require.Error(t, err)
	_, err = NewService(ServiceOptions{Assets: store, Engine: engine})
	require.Error(t, err)
}

// TestDerivativeFlow exercises the whole surface end to end: a cold request
// transforms and stores, an identical request is served from cache with the
// same bytes, clearing the cache reports the count and forces a fresh miss.
func TestDerivativeFlow(t *testing.T) {
	root := t.TempDir()
	src := writeSourcePNG(t, root, "products/shoe.png")
	svc := newTestService(t, root, transform.NewStandard(), cache.NewFIFO(100))

	server := httptest.NewServer(NewImageHandler(svc))
	defer server.Close()

	expect := httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  server.URL,
		Reporter: httpexpect.NewRequireReporter(t),
	})

	var coldBody string
	t.Run("cold request transforms and stores", func(t *testing.T) {
		result := expect.GET("/images/products/shoe.png").
			WithQuery("w", 50).
			WithQuery("q", 60).
			Expect()

		result.Status(http.StatusOK)
		result.Header("X-Cache").IsEqual("MISS")
		result.Header("X-Image-Optimized").IsEqual("true")
		result.Header("Content-Type").IsEqual("image/webp")
		result.Header("Cache-Control").IsEqual("public, max-age=31536000, immutable")
		result.Header("X-Original-Size").IsEqual(strconv.Itoa(len(src)))

		optimized, err := strconv.Atoi(result.Header("X-Optimized-Size").Raw())
		require.NoError(t, err)
		require.Less(t, optimized, len(src), "derivative should be smaller than the original")

		coldBody = result.Body().Raw()
		require.Len(t, coldBody, optimized)
	})

	t.Run("identical request hits the cache", func(t *testing.T) {
		result := expect.GET("/images/products/shoe.png").
			WithQuery("w", 50).
			WithQuery("q", 60).
			Expect()

		result.Status(http.StatusOK)
		result.Header("X-Cache").IsEqual("HIT")
		result.Body().IsEqual(coldBody)
	})

	t.Run("different parameters miss independently", func(t *testing.T) {
		expect.GET("/images/products/shoe.png").
			WithQuery("w", 80).
			Expect().
			Status(http.StatusOK).
			Header("X-Cache").IsEqual("MISS")
	})

	t.Run("clear cache reports count and forces a miss", func(t *testing.T) {
		expect.POST("/clear-cache").
			Expect().
			Status(http.StatusOK).
			JSON().Object().
			HasValue("message", "Cleared 2 cached images")

		expect.GET("/images/products/shoe.png").
			WithQuery("w", 50).
			WithQuery("q", 60).
			Expect().
			Status(http.StatusOK).
			Header("X-Cache").IsEqual("MISS")
	})

	t.Run("health reports engine and cache occupancy", func(t *testing.T) {
		obj := expect.GET("/health").
			Expect().
			Status(http.StatusOK).
			JSON().Object()
		obj.HasValue("status", "ok")
		obj.HasValue("engine", "standard")
		obj.HasValue("engineAvailable", true)
		obj.HasValue("cachedImages", 1)
	})
}
