// Package storage fetches reference card scans from the places an
// operator keeps them: local disk, plain HTTP, or Azure blob storage.
// Fetchers return raw bytes; decoding and hashing happen upstream.
package storage

import (
	"context"
	"os"
	"strings"

	apperrors "go-card-matcher/internal/errors"
)

type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// FileFetcher reads reference scans from the local filesystem.
type FileFetcher struct{}

func NewFileFetcher() *FileFetcher { return &FileFetcher{} }

func (f *FileFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(ref, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewDecodeError("failed to read reference scan", err)
	}
	return data, nil
}

// ForReference picks a fetcher by reference scheme. Azure blob URLs are
// recognized by host; everything without a scheme is treated as a local
// path.
func ForReference(ref string, azure *AzureFetcher) Fetcher {
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		if azure != nil && strings.Contains(ref, ".blob.core.windows.net") {
			return azure
		}
		return NewHTTPFetcher()
	default:
		return NewFileFetcher()
	}
}
