package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	apperrors "go-card-matcher/internal/errors"
)

// AzureFetcher downloads reference scans from Azure blob storage, for
// operators whose curated scan library lives in a blob container.
type AzureFetcher struct {
	client *azblob.Client
}

func NewAzureFetcher(accountName, accountKey string) (*AzureFetcher, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, apperrors.NewConfigurationError("invalid azure credentials", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, apperrors.NewConfigurationError("azure client init failed", err)
	}
	return &AzureFetcher{client: client}, nil
}

// Fetch expects a URL of the form
// https://<account>.blob.core.windows.net/<container>/<blob-path>.
func (f *AzureFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	container, blob, err := splitBlobURL(ref)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return nil, apperrors.NewDecodeError("blob download failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, apperrors.NewDecodeError("blob read failed", err)
	}
	return data, nil
}

func splitBlobURL(ref string) (container, blob string, err error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", "", apperrors.NewValidationError("invalid blob URL", err)
	}
	parts := strings.SplitN(strings.TrimPrefix(parsed.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apperrors.NewValidationError(
			"blob URL must be <account>.blob.core.windows.net/<container>/<blob>", nil)
	}
	return parts[0], parts[1], nil
}
