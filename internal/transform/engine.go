// Package transform turns source image bytes into encoded derivatives:
// decode, fit-inside-box resize without enlargement, and per-format encode.
// The Engine interface models the optional native capability; callers check
// Available once and degrade to pass-through when it reports false.
package transform

import (
	"context"
	"fmt"
)

// Result is one encoded derivative plus the content type to announce.
type Result struct {
	Data        []byte
	ContentType string
}

// Engine is the capability interface over an image-processing backend.
// Implementations are safe for concurrent use; Transform is pure compute
// over the provided bytes and performs no I/O.
type Engine interface {
	Name() string
	Available() bool
	Transform(ctx context.Context, src []byte, p Params) (Result, error)
}

// Stage identifies the pipeline step where a transform failed.
type Stage string

const (
	// StageDecode covers loading the source into the engine's working
	// representation, including unsupported or corrupt inputs.
	StageDecode Stage = "decode"
	// StageResize covers the fit-inside-box scaling step.
	StageResize Stage = "resize"
	// StageEncode covers producing the target-format byte buffer.
	StageEncode Stage = "encode"
)

// Error is the typed failure returned by every engine. Callers recover from
// it by serving the original asset; it never reaches the HTTP caller unless
// the fallback itself fails.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transform: %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func stageError(stage Stage, err error) *Error {
	return &Error{Stage: stage, Err: err}
}

// PNGEffort reinterprets the request quality as a PNG compression-effort
// level. PNG has no lossy quality knob, so the value is clamped into [1,9].
// Shared by every engine so the clamp behaves identically across backends.
func PNGEffort(quality int) int {
	if quality < 1 {
		return 1
	}
	if quality > 9 {
		return 9
	}
	return quality
}
