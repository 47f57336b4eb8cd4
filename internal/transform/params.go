package transform

import (
	"net/url"
	"strconv"
)

// Params carries the resolved transformation parameters for one request.
// A zero Width or Height means that dimension is unconstrained.
type Params struct {
	Width   int
	Height  int
	Quality int
	Format  Format
}

// Request is the outcome of resolving one HTTP request's query parameters.
// PassThrough requests skip the pipeline entirely and stream the source.
type Request struct {
	Params
	PassThrough bool
}

// ResolveOptions feeds the resolver the engine state and configured
// defaults it needs to classify a request.
type ResolveOptions struct {
	EngineAvailable bool
	DefaultQuality  int
	DefaultFormat   Format
}

// Query parameter names recognised by the resolver.
const (
	queryWidth   = "w"
	queryHeight  = "h"
	queryQuality = "q"
	queryFormat  = "f"
)

// Resolve classifies the request and normalizes its parameters. Invalid or
// non-positive dimensions are treated as absent, never as errors. Quality is
// clamped into [1,100]. Unrecognised formats fall back to the configured
// default. The request is pass-through when the engine is unavailable or
// when none of the transform query keys were supplied at all; quality or
// format alone still counts as transformation intent.
func Resolve(query url.Values, opts ResolveOptions) Request {
	if opts.DefaultQuality < 1 || opts.DefaultQuality > 100 {
		opts.DefaultQuality = 80
	}
	if opts.DefaultFormat == "" {
		opts.DefaultFormat = FormatWebP
	}

	intent := query.Has(queryWidth) || query.Has(queryHeight) || query.Has(queryQuality) || query.Has(queryFormat)
	if !opts.EngineAvailable || !intent {
		return Request{PassThrough: true}
	}

	params := Params{
		Width:   parseDimension(query.Get(queryWidth)),
		Height:  parseDimension(query.Get(queryHeight)),
		Quality: parseQuality(query.Get(queryQuality), opts.DefaultQuality),
		Format:  parseFormatOrDefault(query.Get(queryFormat), opts.DefaultFormat),
	}
	return Request{Params: params}
}

func parseDimension(raw string) int {
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}

func parseQuality(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return clampQuality(v)
}

func clampQuality(v int) int {
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}

func parseFormatOrDefault(raw string, fallback Format) Format {
	if raw == "" {
		return fallback
	}
	if f, ok := ParseFormat(raw); ok {
		return f
	}
	return fallback
}
