// Package native provides the libvips-backed transform engine. It is kept
// in its own package so binaries and tests that only need the pure-Go
// engine do not require libvips at build time.
package native

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/davidbyttow/govips/v2/vips"

	"github.com/l0p7/imageserve/internal/transform"
)

// Engine is the native transform backend built on libvips. It is
// substantially faster than the standard engine and the only backend that
// emits progressive JPEG output.
type Engine struct {
	logger *slog.Logger
}

// New initialises libvips and returns the native engine. concurrency
// controls the libvips worker threads (0 = auto). Callers must Close the
// engine at shutdown to release libvips resources.
func New(concurrency int, logger *slog.Logger) (*Engine, error) {
	if concurrency < 0 {
		return nil, fmt.Errorf("transform: vips concurrency must not be negative, got %d", concurrency)
	}
	vips.LoggingSettings(nil, vips.LogLevelWarning)
	vips.Startup(&vips.Config{ConcurrencyLevel: concurrency})
	if logger != nil {
		logger.Info("libvips started", slog.Int("concurrency", concurrency))
	}
	return &Engine{logger: logger}, nil
}

// Close releases libvips resources. Call once at application shutdown.
func (e *Engine) Close() {
	vips.Shutdown()
}

// Name implements transform.Engine.
func (e *Engine) Name() string { return "vips" }

// Available implements transform.Engine.
func (e *Engine) Available() bool { return true }

// Transform implements transform.Engine.
func (e *Engine) Transform(_ context.Context, src []byte, p transform.Params) (transform.Result, error) {
	img, err := vips.NewImageFromBuffer(src)
	if err != nil {
		return transform.Result{}, &transform.Error{Stage: transform.StageDecode, Err: err}
	}
	defer img.Close()

	// Normalize EXIF orientation before measuring so portrait photos fit
	// the requested box the way the client expects.
	if err := img.AutoRotate(); err != nil {
		return transform.Result{}, &transform.Error{Stage: transform.StageDecode, Err: err}
	}

	if p.Width > 0 || p.Height > 0 {
		if scale := downscaleFactor(img.Width(), img.Height(), p.Width, p.Height); scale < 1 {
			if err := img.Resize(scale, vips.KernelLanczos3); err != nil {
				return transform.Result{}, &transform.Error{Stage: transform.StageResize, Err: err}
			}
		}
	}

	data, contentType, err := export(img, p)
	if err != nil {
		return transform.Result{}, &transform.Error{Stage: transform.StageEncode, Err: err}
	}
	return transform.Result{Data: data, ContentType: contentType}, nil
}

// downscaleFactor computes the contain scale for the requested box. The
// result is capped at 1 so the image is never enlarged; unset dimensions do
// not constrain.
func downscaleFactor(srcWidth, srcHeight, width, height int) float64 {
	scale := 1.0
	if width > 0 && width < srcWidth {
		scale = float64(width) / float64(srcWidth)
	}
	if height > 0 && height < srcHeight {
		if s := float64(height) / float64(srcHeight); s < scale {
			scale = s
		}
	}
	return scale
}

func export(img *vips.ImageRef, p transform.Params) ([]byte, string, error) {
	format := p.Format
	switch format {
	case transform.FormatJPEG, transform.FormatPNG, transform.FormatAVIF, transform.FormatWebP:
	default:
		format = transform.FormatWebP
	}

	switch format {
	case transform.FormatJPEG:
		params := vips.NewJpegExportParams()
		params.Quality = p.Quality
		params.Interlace = true
		params.StripMetadata = true
		data, _, err := img.ExportJpeg(params)
		return data, format.ContentType(), err
	case transform.FormatPNG:
		params := vips.NewPngExportParams()
		params.Compression = transform.PNGEffort(p.Quality)
		params.StripMetadata = true
		data, _, err := img.ExportPng(params)
		return data, format.ContentType(), err
	case transform.FormatAVIF:
		params := vips.NewAvifExportParams()
		params.Quality = p.Quality
		params.StripMetadata = true
		data, _, err := img.ExportAvif(params)
		return data, format.ContentType(), err
	default:
		params := vips.NewWebpExportParams()
		params.Quality = p.Quality
		params.Lossless = false
		params.StripMetadata = true
		data, _, err := img.ExportWebp(params)
		return data, transform.FormatWebP.ContentType(), err
	}
}
