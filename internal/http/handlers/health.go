package handlers

import (
	"net/http"
)

type healthResponse struct {
	Status     string `json:"status"`
	Provider   string `json:"provider"`
	Configured bool   `json:"configured"`
}

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Provider: a.Config.GatewayProvider}
	if a.Frames != nil {
		resp.Provider = a.Frames.ProviderName()
		resp.Configured = a.Frames.Configured()
	}
	a.json(w, http.StatusOK, resp)
}
