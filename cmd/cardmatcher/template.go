package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go-card-matcher/internal/container"
	"go-card-matcher/internal/region"
)

func newTemplateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage region calibration templates",
	}
	cmd.AddCommand(newTemplateListCommand(), newTemplateImportCommand())
	return cmd
}

func newTemplateListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the loaded region templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := container.New(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLAYOUT\tERA\tREGIONS\tDEFAULT")
			for _, t := range c.Registry.Templates() {
				def := ""
				if t.ID == c.Registry.DefaultID() {
					def = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", t.ID, t.Layout, t.Era, len(t.Regions), def)
			}
			return w.Flush()
		},
	}
}

func newTemplateImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <manifest.toml>",
		Short: "Merge templates from another manifest into the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := container.New(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			imported, err := region.Load(args[0])
			if err != nil {
				return err
			}
			for _, t := range imported.Templates() {
				c.Registry.Upsert(t)
				fmt.Fprintf(cmd.OutOrStdout(), "imported template %s\n", t.ID)
			}
			return c.Registry.Persist()
		},
	}
}
