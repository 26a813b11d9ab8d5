package client

import (
	"context"

	"github.com/velinussage/pfp-animate/internal/orchestrator"
)

// Stage names the step a Run is in.
type Stage string

const (
	StagePreprocessing Stage = "preprocessing"
	StageFallback      Stage = "fallback"
	StageGenerating    Stage = "generating"
	StageComplete      Stage = "complete"
	StageError         Stage = "error"
)

// Hooks observe a Run. Nil hooks are skipped.
type Hooks struct {
	OnStage    func(stage Stage, err error)
	OnPortrait func(imageBase64 string)
	OnEvent    func(ev orchestrator.Event)
}

func (h Hooks) stage(s Stage, err error) {
	if h.OnStage != nil {
		h.OnStage(s, err)
	}
}

// Run preprocesses imageBase64 and generates the grid from the result. Any
// preprocess failure falls back to the original image and is reported
// through OnStage with StageFallback.
func (c *Client) Run(ctx context.Context, imageBase64 string, req GenerateRequest, hooks Hooks) (*Result, error) {
	hooks.stage(StagePreprocessing, nil)
	source := imageBase64
	styled, err := c.Preprocess(ctx, imageBase64)
	switch {
	case err != nil && ctx.Err() != nil:
		hooks.stage(StageError, ctx.Err())
		return nil, ctx.Err()
	case err != nil:
		c.logger.Warn().Err(err).Msg("preprocess failed, using original image")
		hooks.stage(StageFallback, err)
	default:
		source = styled
		if hooks.OnPortrait != nil {
			hooks.OnPortrait(styled)
		}
	}

	hooks.stage(StageGenerating, nil)
	req.ImageBase64 = source
	result, err := c.Generate(ctx, req, hooks.OnEvent)
	if err != nil {
		hooks.stage(StageError, err)
		return result, err
	}
	hooks.stage(StageComplete, nil)
	return result, nil
}
