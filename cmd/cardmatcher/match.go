package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go-card-matcher/internal/container"
	"go-card-matcher/internal/region"
)

func newMatchCommand() *cobra.Command {
	var hints region.Hints

	cmd := &cobra.Command{
		Use:   "match <image>",
		Short: "Identify the card in an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			c, err := container.New(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			decision, err := c.Engine.Match(cmd.Context(), data, hints)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(decision, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&hints.TemplateID, "template", "", "region template id to use")
	cmd.Flags().StringVar(&hints.Layout, "layout", "", "card layout hint")
	cmd.Flags().StringVar(&hints.Era, "era", "", "card era hint")
	cmd.Flags().BoolVar(&hints.Promo, "promo", false, "treat the card as a promo")
	cmd.Flags().BoolVar(&hints.FirstEdition, "first-edition", false, "treat the card as first edition")
	return cmd
}
