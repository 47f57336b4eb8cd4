package transform

import (
	"context"
	"errors"
)

// DisabledEngine is the null backend used when no transform capability is
// configured or available. Every request resolves to pass-through against
// it, so Transform should never be reached in practice.
type DisabledEngine struct{}

// NewDisabled constructs the null engine.
func NewDisabled() *DisabledEngine {
	return &DisabledEngine{}
}

// Name implements Engine.
func (e *DisabledEngine) Name() string { return "off" }

// Available implements Engine.
func (e *DisabledEngine) Available() bool { return false }

// Transform implements Engine. It always fails.
func (e *DisabledEngine) Transform(context.Context, []byte, Params) (Result, error) {
	return Result{}, stageError(StageDecode, errors.New("engine disabled"))
}
