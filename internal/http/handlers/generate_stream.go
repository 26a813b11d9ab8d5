package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/velinussage/pfp-animate/internal/domain"
	"github.com/velinussage/pfp-animate/internal/infra"
	"github.com/velinussage/pfp-animate/internal/middleware"
	"github.com/velinussage/pfp-animate/internal/sse"
)

type generateRequest struct {
	ImageBase64 string `json:"imageBase64"`
	XSteps      int    `json:"xSteps"`
	YSteps      int    `json:"ySteps"`
	Prefix      string `json:"prefix"`
}

// GenerateStream plans the grid and streams frame events as they finish.
// Every input and configuration problem is reported as a JSON error before
// the stream opens; afterwards failures travel as error events.
func (a *App) GenerateStream(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(w, r, a.bodyLimit(1), &req); err != nil {
		a.fail(w, r, err)
		return
	}
	jobs, err := a.Planner.Plan(req.XSteps, req.YSteps, req.Prefix)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	image, err := a.decodeImage("imageBase64", req.ImageBase64)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.requireConfigured(a.Frames); err != nil {
		a.fail(w, r, err)
		return
	}

	logger := a.Logger.With().
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Int("x_steps", req.XSteps).
		Int("y_steps", req.YSteps).
		Logger()
	a.streamRun(w, r, &logger, image, jobs)
}

// streamRun executes jobs and relays their events until the run ends or the
// client goes away.
func (a *App) streamRun(w http.ResponseWriter, r *http.Request, logger *infra.Logger, image []byte, jobs []domain.FrameJob) {
	stream := sse.NewWriter(w)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	run := a.Orchestrator.Start(ctx, image, jobs)
	logger.Info().Str("run_id", run.ID).Int("total", len(jobs)).Msg("stream opened")

	for ev := range run.Events() {
		if err := stream.Send(ev); err != nil {
			if errors.Is(err, domain.ErrStream) {
				logger.Warn().Err(err).Str("run_id", run.ID).Msg("stream write failed, abandoning run")
			}
			cancel()
			for range run.Events() {
			}
			return
		}
	}
}
