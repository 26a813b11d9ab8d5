package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/velinussage/pfp-animate/internal/client"
	"github.com/velinussage/pfp-animate/internal/imaging"
	"github.com/velinussage/pfp-animate/internal/orchestrator"
	"github.com/velinussage/pfp-animate/internal/planner"
	"github.com/velinussage/pfp-animate/internal/storage"
)

func newMotionsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "motions",
		Short: "List the keyframe motions",
		RunE: func(cmd *cobra.Command, args []string) error {
			motions := planner.Motions()
			if asJSON {
				return writeJSON(cmd, motions)
			}
			rows := make([][]string, 0, len(motions))
			for _, m := range motions {
				name := m.Name
				if name == planner.DefaultMotion {
					name += " (default)"
				}
				rows = append(rows, []string{
					name,
					displayName(m.Name),
					strconv.Itoa(len(m.Keyframes)),
					strconv.Itoa(m.FPS),
					m.Description,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Motion", "Title", "Frames", "FPS", "Description"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the motions as JSON")
	return cmd
}

func newAnimateCommand(ctx *commandContext) *cobra.Command {
	var serverURL, outDir, prefix, motionName string
	var keepFrames bool

	cmd := &cobra.Command{
		Use:   "animate <portrait>",
		Short: "Animate a portrait along a keyframe motion and save it as a GIF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read portrait: %w", err)
			}
			if _, err := imaging.Inspect(raw); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			motion, err := planner.LookupMotion(motionName)
			if err != nil {
				return err
			}
			normalized, err := planner.NormalizePrefix(prefix)
			if err != nil {
				return err
			}
			store, err := storage.NewFrameStore(outDir)
			if err != nil {
				return err
			}

			c := client.New(client.Options{BaseURL: serverURL, Logger: ctx.logger()})
			stderr := cmd.ErrOrStderr()
			req := client.AnimateRequest{ImageBase64: imaging.EncodeBase64(raw), Motion: motion.Name, Prefix: normalized}

			fmt.Fprintf(stderr, "Generating %d keyframes for %q...\n", len(motion.Keyframes), motion.Name)
			result, runErr := c.Animate(cmd.Context(), req, func(ev orchestrator.Event) {
				if ev.Type == orchestrator.EventProgress && ev.Step != nil {
					fmt.Fprintf(stderr, "[%3d%%] %s\n", client.Percent(ev), ev.Step.Name)
				}
			})
			if keepFrames {
				if _, err := writeFrames(cmd.Context(), store, result); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}

			data, err := c.ExportGIF(cmd.Context(), client.NewGIFRequest(req, result))
			if err != nil {
				return err
			}
			target, err := store.WriteAnimation(cmd.Context(), normalized, motion.Name, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "animation written to %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", envOr("AVATAR_SERVER_URL", defaultServerURL), "API server base URL")
	cmd.Flags().StringVarP(&outDir, "out", "o", "frames", "Directory for the animation")
	cmd.Flags().StringVar(&prefix, "prefix", planner.DefaultPrefix, "File name prefix and style preset")
	cmd.Flags().StringVarP(&motionName, "motion", "m", planner.DefaultMotion, "Keyframe motion (see motions)")
	cmd.Flags().BoolVar(&keepFrames, "frames", false, "Also keep the individual keyframe images")
	return cmd
}
