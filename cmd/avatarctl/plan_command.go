package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/velinussage/pfp-animate/internal/domain"
	"github.com/velinussage/pfp-animate/internal/planner"
)

type planOutput struct {
	Prefix   string            `json:"prefix"`
	XSteps   int               `json:"xSteps"`
	YSteps   int               `json:"ySteps"`
	Jobs     []domain.FrameJob `json:"jobs"`
	Estimate planner.Estimate  `json:"estimate"`
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var xSteps, ySteps int
	var prefix string
	var frameCost float64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the frames and cost of a grid without generating it",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := ctx.catalog()
			if err != nil {
				return err
			}
			p := planner.New(catalog, frameCost)
			jobs, err := p.Plan(xSteps, ySteps, prefix)
			if err != nil {
				return err
			}
			estimate, err := p.Estimate(xSteps, ySteps)
			if err != nil {
				return err
			}
			normalized, _ := planner.NormalizePrefix(prefix)

			if asJSON {
				return writeJSON(cmd, planOutput{Prefix: normalized, XSteps: xSteps, YSteps: ySteps, Jobs: jobs, Estimate: estimate})
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					strconv.Itoa(job.Index),
					job.Step.Name,
					strconv.Itoa(job.Step.Col),
					strconv.Itoa(job.Step.Row),
					strconv.FormatFloat(job.Step.DX, 'f', 4, 64),
					strconv.FormatFloat(job.Step.DY, 'f', 4, 64),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Index", "Name", "Col", "Row", "DX", "DY"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			fmt.Fprintf(out, "%d frames x $%.2f = $%.2f\n", estimate.Frames, estimate.PerFrameUSD, estimate.CostUSD)
			return nil
		},
	}

	cmd.Flags().IntVarP(&xSteps, "x-steps", "x", 5, "Horizontal steps (3-10)")
	cmd.Flags().IntVarP(&ySteps, "y-steps", "y", 5, "Vertical steps (3-10)")
	cmd.Flags().StringVar(&prefix, "prefix", planner.DefaultPrefix, "Frame name prefix and style preset")
	cmd.Flags().Float64Var(&frameCost, "frame-cost", envFloat("FRAME_COST_USD", planner.DefaultFrameCostUSD), "Cost per generated frame in USD")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plan as JSON")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}
