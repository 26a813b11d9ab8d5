package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/velinussage/pfp-animate/internal/imaging"
	"github.com/velinussage/pfp-animate/internal/middleware"
	"github.com/velinussage/pfp-animate/internal/planner"
)

type motionsResponse struct {
	Default string           `json:"default"`
	Motions []planner.Motion `json:"motions"`
}

// Motions lists the keyframe motions an animation can follow.
func (a *App) Motions(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, motionsResponse{Default: planner.DefaultMotion, Motions: planner.Motions()})
}

type animateRequest struct {
	ImageBase64 string `json:"imageBase64"`
	Motion      string `json:"motion"`
	Prefix      string `json:"prefix"`
}

// AnimateStream generates one frame per keyframe of a motion and streams
// them with the same events as a grid run.
func (a *App) AnimateStream(w http.ResponseWriter, r *http.Request) {
	var req animateRequest
	if err := decodeJSON(w, r, a.bodyLimit(1), &req); err != nil {
		a.fail(w, r, err)
		return
	}
	jobs, motion, err := a.Planner.PlanMotion(req.Motion, req.Prefix)
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
		Str("motion", motion.Name).
		Logger()
	a.streamRun(w, r, &logger, image, jobs)
}

type gifRequest struct {
	Prefix string        `json:"prefix"`
	Motion string        `json:"motion"`
	Frames []exportFrame `json:"frames"`
}

// ExportGIF plays the frames of a motion run back as a looping GIF at the
// motion's frame rate. Keyframes without a frame are skipped.
func (a *App) ExportGIF(w http.ResponseWriter, r *http.Request) {
	var req gifRequest
	if err := decodeJSON(w, r, a.exportBodyLimit(), &req); err != nil {
		a.fail(w, r, err)
		return
	}
	jobs, motion, err := a.Planner.PlanMotion(req.Motion, req.Prefix)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	images, err := a.decodeFrames(req.Frames, len(jobs))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	ordered := make([][]byte, 0, len(images))
	for _, job := range jobs {
		if asset, ok := images[job.Index]; ok {
			ordered = append(ordered, asset.Data)
		}
	}
	data, err := imaging.EncodeGIF(ordered, motion.FPS)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	prefix, _ := planner.NormalizePrefix(req.Prefix)
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.gif"`, prefix, motion.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Missing-Frames", strconv.Itoa(len(jobs)-len(ordered)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
