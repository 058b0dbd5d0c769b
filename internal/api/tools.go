package api

import (
	"net/http"

	"github.com/tastythames/polyrun/internal/tools"
)

// ListTools handles GET /api/v1/tools
func (h *Handler) ListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools.Names()})
}
