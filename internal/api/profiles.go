package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tastythames/polyrun/internal/profile"
	"github.com/tastythames/polyrun/internal/runner"
	"github.com/tastythames/polyrun/internal/sshclient"
)

type CheckProfileRequest struct {
	Profile    string           `json:"profile,omitempty"`
	Connection *profile.Profile `json:"connection,omitempty"`
}

type CheckProfileResponse struct {
	runner.ProfileReport
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// CheckProfile handles POST /api/v1/profiles/check. An unreachable host
// is reported in the body, not as an HTTP error.
func (h *Handler) CheckProfile(w http.ResponseWriter, r *http.Request) {
	var req CheckProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var p profile.Profile
	switch {
	case req.Connection != nil:
		p = *req.Connection
	case req.Profile != "":
		var err error
		if p, err = h.cfg.Profile(req.Profile); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "profile or connection is required", http.StatusBadRequest)
		return
	}

	rep, err := h.checker.CheckProfile(r.Context(), p)
	var ce *sshclient.ConnectError
	if err != nil && !rep.Reachable && !errors.As(err, &ce) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := CheckProfileResponse{ProfileReport: rep, OK: err == nil && rep.OK()}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
