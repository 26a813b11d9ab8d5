package handlers

import (
	"net/http"

	"github.com/velinussage/pfp-animate/internal/planner"
)

type presetsResponse struct {
	Default string           `json:"default"`
	Presets []planner.Preset `json:"presets"`
}

func (a *App) Presets(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, presetsResponse{
		Default: planner.DefaultPrefix,
		Presets: a.Planner.Catalog().List(),
	})
}
