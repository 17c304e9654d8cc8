package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"go-card-matcher/internal/container"
	"go-card-matcher/internal/imaging"
	"go-card-matcher/internal/index"
	"go-card-matcher/internal/matcher"
	"go-card-matcher/internal/storage"
)

func newIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the reference hash index",
	}
	cmd.AddCommand(newIndexAddCommand(), newIndexStatsCommand())
	return cmd
}

func newIndexAddCommand() *cobra.Command {
	var name, set, number string
	var jobs int

	cmd := &cobra.Command{
		Use:   "add <scan>...",
		Short: "Hash reference scans and append them to the index",
		Long: "Each scan may be a local path, an HTTP URL, or an Azure blob URL\n" +
			"(set AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY for blob access).",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := container.New(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			azure := azureFetcherFromEnv()

			// Fetch and hash concurrently; sqlite writes stay on this
			// goroutine.
			entries := make([]*index.Entry, len(args))
			errs := make([]error, len(args))
			pool := storage.NewPool(jobs)
			defer pool.Close()
			for i, ref := range args {
				i, ref := i, ref
				pool.Submit(func() {
					entries[i], errs[i] = hashReference(cmd, ref, azure, name, set, number)
				})
			}
			pool.Wait()

			for i, ref := range args {
				if errs[i] != nil {
					return fmt.Errorf("%s: %w", ref, errs[i])
				}
				if err := c.Index.Append(cmd.Context(), *entries[i]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "indexed %s as %s\n", ref, entries[i].ImageID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "card name")
	cmd.Flags().StringVar(&set, "set", "", "set code")
	cmd.Flags().StringVar(&number, "number", "", "collector number")
	cmd.Flags().IntVar(&jobs, "jobs", 0, "concurrent fetch workers (0 = number of CPUs)")
	return cmd
}

func hashReference(cmd *cobra.Command, ref string, azure *storage.AzureFetcher, name, set, number string) (*index.Entry, error) {
	data, err := storage.ForReference(ref, azure).Fetch(cmd.Context(), ref)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	phash, dhash, err := matcher.ComputeReferenceHashes(img)
	if err != nil {
		return nil, fmt.Errorf("hash: %w", err)
	}
	return &index.Entry{
		ImageID:   uuid.NewString(),
		ImagePath: ref,
		PHash:     phash,
		DHash:     dhash,
		Name:      name,
		Set:       set,
		Number:    number,
	}, nil
}

func newIndexStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show reference index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := container.New(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			n, err := c.Index.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reference images: %d\n", n)
			return nil
		},
	}
}

func azureFetcherFromEnv() *storage.AzureFetcher {
	account := os.Getenv("AZURE_STORAGE_ACCOUNT")
	key := os.Getenv("AZURE_STORAGE_KEY")
	if account == "" || key == "" {
		return nil
	}
	fetcher, err := storage.NewAzureFetcher(account, key)
	if err != nil {
		return nil
	}
	return fetcher
}
