// Package index provides the reference hash index consumed by the
// perceptual-hash matcher: an append-only collection of precomputed
// hashes and the card identity each one belongs to.
package index

import "context"

// Entry is one reference image in the index.
type Entry struct {
	ImageID   string
	ImagePath string
	PHash     uint64
	DHash     uint64
	Name      string
	Set       string
	Number    string
}

// Store is the reference index boundary. Queried read-only at request
// time; Append exists for index-building tooling only.
type Store interface {
	// All returns every entry. The hash matcher loads the full index
	// into memory at initialization.
	All(ctx context.Context) ([]Entry, error)

	// Append adds a new reference entry.
	Append(ctx context.Context, entry Entry) error

	// Count returns the number of indexed reference images.
	Count(ctx context.Context) (int, error)

	// Close releases the underlying resources.
	Close() error
}
