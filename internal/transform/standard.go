package transform

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"

	// Register decoders for the formats stored assets arrive in.
	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// StandardEngine is the pure-Go transform backend. It trades speed for zero
// native dependencies: decode via the image registry, resize via
// disintegration/imaging, and per-format encoders. JPEG output is baseline;
// progressive encoding requires the vips engine.
type StandardEngine struct{}

// NewStandard constructs the pure-Go engine.
func NewStandard() *StandardEngine {
	return &StandardEngine{}
}

// Name implements Engine.
func (e *StandardEngine) Name() string { return "standard" }

// Available implements Engine. The standard engine has no runtime
// dependencies, so it is always available.
func (e *StandardEngine) Available() bool { return true }

// Transform implements Engine.
func (e *StandardEngine) Transform(_ context.Context, src []byte, p Params) (Result, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return Result{}, stageError(StageDecode, err)
	}

	if p.Width > 0 || p.Height > 0 {
		img = fitWithin(img, p.Width, p.Height)
	}

	return encode(img, p)
}

// fitWithin scales the image down to fit inside the requested box while
// preserving aspect ratio. Dimensions at zero are unconstrained; dimensions
// beyond the source are capped at the source so output is never upscaled.
func fitWithin(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	if width <= 0 || width > bounds.Dx() {
		width = bounds.Dx()
	}
	if height <= 0 || height > bounds.Dy() {
		height = bounds.Dy()
	}
	if width == bounds.Dx() && height == bounds.Dy() {
		return img
	}
	return imaging.Fit(img, width, height, imaging.Lanczos)
}

func encode(img image.Image, p Params) (Result, error) {
	var buf bytes.Buffer
	var err error
	format := p.Format

	switch format {
	case FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(p.Quality)})
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.Quality})
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: pngCompressionLevel(PNGEffort(p.Quality))}
		err = enc.Encode(&buf, img)
	case FormatAVIF:
		err = avif.Encode(&buf, img, avif.Options{Quality: p.Quality, QualityAlpha: p.Quality, Speed: 8})
	default:
		// The resolver normalizes formats, so this only guards direct
		// Params construction. Mirror the resolver's webp fallback.
		format = FormatWebP
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(p.Quality)})
	}
	if err != nil {
		return Result{}, stageError(StageEncode, err)
	}
	return Result{Data: buf.Bytes(), ContentType: format.ContentType()}, nil
}

// pngCompressionLevel maps the 1-9 effort scale onto the stdlib encoder's
// coarser levels.
func pngCompressionLevel(effort int) png.CompressionLevel {
	switch {
	case effort <= 3:
		return png.BestSpeed
	case effort <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}
