package api

import (
	"net/http"

	"github.com/storefront-kit/webhooks/delivery"
)

type statsResponse struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.engine.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Pending:    counts[delivery.StatusPending],
		Processing: counts[delivery.StatusProcessing],
		Completed:  counts[delivery.StatusCompleted],
		Failed:     counts[delivery.StatusFailed],
	})
}
