package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/velinussage/pfp-animate/internal/planner"
)

func newPresetsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List the style presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := ctx.catalog()
			if err != nil {
				return err
			}
			presets := catalog.List()
			if asJSON {
				return writeJSON(cmd, presets)
			}
			rows := make([][]string, 0, len(presets))
			for _, p := range presets {
				name := p.Name
				if name == planner.DefaultPrefix {
					name += " (default)"
				}
				rows = append(rows, []string{
					name,
					displayName(p.Name),
					strconv.FormatFloat(p.MaxYaw, 'f', 0, 64),
					strconv.FormatFloat(p.MaxPitch, 'f', 0, 64),
					p.Description,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Prefix", "Title", "Yaw", "Pitch", "Description"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the catalog as JSON")
	return cmd
}
