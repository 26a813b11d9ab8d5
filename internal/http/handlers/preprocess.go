package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/velinussage/pfp-animate/internal/domain"
	"github.com/velinussage/pfp-animate/internal/gateway"
	"github.com/velinussage/pfp-animate/internal/imaging"
	"github.com/velinussage/pfp-animate/internal/middleware"
	"github.com/velinussage/pfp-animate/internal/planner"
)

type preprocessRequest struct {
	ImageBase64 string `json:"imageBase64"`
}

type preprocessResponse struct {
	Success     bool   `json:"success"`
	ImageBase64 string `json:"imageBase64"`
}

// Preprocess converts an uploaded portrait into the stylized, front-facing
// base image the frames are generated from.
func (a *App) Preprocess(w http.ResponseWriter, r *http.Request) {
	var req preprocessRequest
	if err := decodeJSON(w, r, a.bodyLimit(1), &req); err != nil {
		a.fail(w, r, err)
		return
	}
	image, err := a.decodeImage("imageBase64", req.ImageBase64)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.requireConfigured(a.Preprocessor); err != nil {
		a.fail(w, r, err)
		return
	}

	ctx, cancel := a.providerContext(w, r)
	defer cancel()

	start := time.Now()
	styled, err := a.Preprocessor.Generate(ctx, image, planner.PreprocessPrompt, gateway.PreprocessParams)
	if err != nil {
		a.fail(w, r, &domain.PreprocessError{Cause: err})
		return
	}
	a.Logger.Info().
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Int("bytes", len(styled)).
		Dur("duration", time.Since(start)).
		Msg("portrait preprocessed")

	a.json(w, http.StatusOK, preprocessResponse{Success: true, ImageBase64: imaging.EncodeBase64(styled)})
}

// writeGrace is the time left to encode a response once the provider call
// has returned or timed out.
const writeGrace = 10 * time.Second

// providerContext bounds a synchronous provider call by the provider timeout
// and moves the connection write deadline past it, so a slow conversion still
// gets its JSON answer instead of a dropped connection.
func (a *App) providerContext(w http.ResponseWriter, r *http.Request) (context.Context, context.CancelFunc) {
	rc := http.NewResponseController(w)
	timeout := a.Config.ProviderTimeout
	if timeout <= 0 {
		// Not every writer supports deadlines.
		_ = rc.SetWriteDeadline(time.Time{})
		return context.WithCancel(r.Context())
	}
	_ = rc.SetWriteDeadline(time.Now().Add(timeout + writeGrace))
	return context.WithTimeout(r.Context(), timeout)
}
