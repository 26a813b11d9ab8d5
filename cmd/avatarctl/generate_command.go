package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/velinussage/pfp-animate/internal/client"
	"github.com/velinussage/pfp-animate/internal/imaging"
	"github.com/velinussage/pfp-animate/internal/orchestrator"
	"github.com/velinussage/pfp-animate/internal/planner"
	"github.com/velinussage/pfp-animate/internal/storage"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var serverURL, outDir, prefix string
	var xSteps, ySteps int
	var zipArchive bool

	cmd := &cobra.Command{
		Use:   "generate <portrait>",
		Short: "Generate a grid through a running API server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read portrait: %w", err)
			}
			if _, err := imaging.Inspect(raw); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if err := planner.ValidateGrid(xSteps, ySteps); err != nil {
				return err
			}
			store, err := storage.NewFrameStore(outDir)
			if err != nil {
				return err
			}

			c := client.New(client.Options{BaseURL: serverURL, Logger: ctx.logger()})
			stderr := cmd.ErrOrStderr()
			req := client.GenerateRequest{XSteps: xSteps, YSteps: ySteps, Prefix: prefix}

			result, runErr := c.Run(cmd.Context(), imaging.EncodeBase64(raw), req, client.Hooks{
				OnStage: func(stage client.Stage, err error) {
					switch stage {
					case client.StagePreprocessing:
						fmt.Fprintln(stderr, "Creating avatar portrait...")
					case client.StageFallback:
						fmt.Fprintf(stderr, "Using original image (%v)\n", err)
					case client.StageGenerating:
						fmt.Fprintf(stderr, "Generating %d frames...\n", xSteps*ySteps)
					}
				},
				OnEvent: func(ev orchestrator.Event) {
					if ev.Type == orchestrator.EventProgress && ev.Step != nil {
						fmt.Fprintf(stderr, "[%3d%%] %s\n", client.Percent(ev), ev.Step.Name)
					}
				},
			})

			written, err := writeFrames(cmd.Context(), store, result)
			if err != nil {
				return err
			}
			if runErr != nil {
				if written > 0 {
					fmt.Fprintf(stderr, "Kept %d finished frames in %s\n", written, outDir)
				}
				return runErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d frames written to %s\n", written, outDir)

			if zipArchive {
				archive, err := c.Export(cmd.Context(), client.NewExportRequest(req, result))
				if err != nil {
					return err
				}
				normalized, _ := planner.NormalizePrefix(prefix)
				target, err := store.WriteArchive(cmd.Context(), normalized, archive)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "archive written to %s\n", target)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", envOr("AVATAR_SERVER_URL", defaultServerURL), "API server base URL")
	cmd.Flags().StringVarP(&outDir, "out", "o", "frames", "Directory for the generated frames")
	cmd.Flags().StringVar(&prefix, "prefix", planner.DefaultPrefix, "Frame name prefix and style preset")
	cmd.Flags().IntVarP(&xSteps, "x-steps", "x", 5, "Horizontal steps (3-10)")
	cmd.Flags().IntVarP(&ySteps, "y-steps", "y", 5, "Vertical steps (3-10)")
	cmd.Flags().BoolVar(&zipArchive, "zip", false, "Also download the grid as a zip archive")
	return cmd
}

// writeFrames stores every received frame, including the ones that arrived
// before a failed run.
func writeFrames(ctx context.Context, store *storage.FrameStore, result *client.Result) (int, error) {
	if result == nil {
		return 0, nil
	}
	written := 0
	for _, frame := range result.Frames {
		if _, err := store.WriteFrame(ctx, frame.Step, frame.Image); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
