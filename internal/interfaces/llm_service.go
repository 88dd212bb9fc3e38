package interfaces

import (
	"context"
	"errors"
)

// ErrGroundingUnsupported is returned by providers that cannot perform
// web-search grounding.
var ErrGroundingUnsupported = errors.New("provider does not support grounded generation")

// GenerateOptions tunes a single text generation call.
type GenerateOptions struct {
	// Temperature overrides the configured default when >= 0.
	Temperature float32

	// System is an optional system instruction.
	System string
}

// GroundedResult carries the model text plus the source URLs the provider
// consulted while grounding.
type GroundedResult struct {
	Text    string
	Sources []GroundingSource
}

// GroundingSource is one web source cited by a grounded generation.
type GroundingSource struct {
	URL   string
	Title string
}

// TextService defines the interface for text generation.
// Implementations may or may not support grounding; grounded calls are
// routed by the factory to a provider that does.
type TextService interface {
	// Generate produces a completion for the given prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// GenerateGrounded produces a completion with web-search grounding and
	// returns the consulted sources. Implementations without grounding
	// support return ErrGroundingUnsupported.
	GenerateGrounded(ctx context.Context, prompt string, opts GenerateOptions) (*GroundedResult, error)

	// SupportsGrounding reports whether GenerateGrounded is available.
	SupportsGrounding() bool

	// Close releases provider resources.
	Close() error
}

// VisionService analyzes page screenshots.
type VisionService interface {
	// AnalyzeImage sends a PNG screenshot with an instruction prompt and
	// returns the model's text response.
	AnalyzeImage(ctx context.Context, png []byte, prompt string) (string, error)
}
