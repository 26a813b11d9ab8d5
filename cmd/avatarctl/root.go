package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/velinussage/pfp-animate/internal/infra"
	"github.com/velinussage/pfp-animate/internal/planner"
)

const defaultServerURL = "http://localhost:8080"

type commandContext struct {
	presetsPath string
	verbose     bool
}

func (c *commandContext) logger() *infra.Logger {
	if !c.verbose {
		return infra.NopLogger()
	}
	l := infra.NewLogger("development", "")
	return &l
}

func (c *commandContext) catalog() (*planner.Catalog, error) {
	return planner.LoadPresets(c.presetsPath)
}

func newRootCommand() *cobra.Command {
	_ = godotenv.Load()
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "avatarctl",
		Short:         "Plan and generate avatar look-around grids and animations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.presetsPath, "presets", os.Getenv("STYLE_PRESETS_PATH"), "Style preset catalog (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Log client activity to stderr")

	rootCmd.AddCommand(newPlanCommand(ctx))
	rootCmd.AddCommand(newPresetsCommand(ctx))
	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newMotionsCommand())
	rootCmd.AddCommand(newAnimateCommand(ctx))

	return rootCmd
}
