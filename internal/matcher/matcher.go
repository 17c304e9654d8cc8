// Package matcher contains the per-signal card matchers and the
// canonical-key synthesizer. Every matcher is independently pluggable
// and independently fallible: a matcher that cannot produce a match
// returns a zero-confidence result, never an error.
package matcher

import (
	"context"
	"image"

	"go-card-matcher/internal/region"
)

// Matcher method identifiers, also used as fusion weight keys.
const (
	MethodHash        = "hash"
	MethodIcon        = "icon"
	MethodNumber      = "number"
	MethodText        = "text"
	MethodSynthesized = "synthesized"
)

// Request carries one decoded query image plus the hints the region
// registry needs to pick calibrated rectangles.
type Request struct {
	Img   image.Image
	Hints region.Hints
}

// Matcher is a single matching strategy. The fusion engine iterates a
// typed, ordered collection of these.
type Matcher interface {
	// Name returns the stable method identifier.
	Name() string

	// IsReady reports whether the matcher's backing index or template
	// set loaded successfully. Not-ready matchers are skipped by the
	// fusion engine.
	IsReady() bool

	// Match analyzes the request image. The returned result always has
	// a confidence in [0,1]; failures are reported as confidence 0 with
	// an error note in the result metadata.
	Match(ctx context.Context, req Request) Result
}
