package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/velinussage/pfp-animate/internal/domain"
	"github.com/velinussage/pfp-animate/internal/planner"
)

const defaultPlanSteps = 5

type planResponse struct {
	Prefix   string            `json:"prefix"`
	XSteps   int               `json:"xSteps"`
	YSteps   int               `json:"ySteps"`
	Jobs     []domain.FrameJob `json:"jobs"`
	Estimate planner.Estimate  `json:"estimate"`
}

// Plan returns the frame jobs for a grid together with the cost estimate,
// without generating anything.
func (a *App) Plan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	xSteps, err := queryInt(q.Get("xSteps"), "xSteps", defaultPlanSteps)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ySteps, err := queryInt(q.Get("ySteps"), "ySteps", defaultPlanSteps)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	prefix, err := planner.NormalizePrefix(q.Get("prefix"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	jobs, err := a.Planner.Plan(xSteps, ySteps, prefix)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	estimate, err := a.Planner.Estimate(xSteps, ySteps)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.json(w, http.StatusOK, planResponse{
		Prefix:   prefix,
		XSteps:   xSteps,
		YSteps:   ySteps,
		Jobs:     jobs,
		Estimate: estimate,
	})
}

func queryInt(raw, field string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(field, "must be an integer")
	}
	return v, nil
}
