package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/storefront-kit/webhooks"
	"github.com/storefront-kit/webhooks/delivery"
	"github.com/storefront-kit/webhooks/id"
)

type enqueueEventRequest struct {
	EventType     string          `json:"event_type"`
	SourceEventID string          `json:"source_event_id"`
	Payload       json.RawMessage `json:"payload"`
}

type enqueueEventResponse struct {
	DeliveryIDs []id.ID `json:"delivery_ids"`
}

func (h *Handler) enqueueEvent(w http.ResponseWriter, r *http.Request) {
	var req enqueueEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.EventType == "" {
		writeError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	if req.SourceEventID == "" {
		writeError(w, http.StatusBadRequest, "source_event_id is required")
		return
	}

	ids, err := h.engine.Enqueue(r.Context(), req.EventType, req.SourceEventID, req.Payload)
	if err != nil {
		switch {
		case errors.Is(err, webhooks.ErrUnknownEventType):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, webhooks.ErrPayloadValidationFailed):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, enqueueEventResponse{DeliveryIDs: ids})
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	opts := delivery.ListOpts{
		Offset:    queryInt(r, "offset", 0),
		Limit:     queryInt(r, "limit", 50),
		EventType: queryParam(r, "event_type"),
	}
	if st := queryParam(r, "status"); st != "" {
		status := delivery.Status(st)
		opts.Status = &status
	}

	ds, err := h.engine.Store().ListDeliveries(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ds)
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	delID, err := id.ParseDeliveryID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid delivery ID")
		return
	}

	d, getErr := h.engine.Store().GetDelivery(r.Context(), delID)
	if getErr != nil {
		if errors.Is(getErr, webhooks.ErrDeliveryNotFound) {
			writeError(w, http.StatusNotFound, "delivery not found")
			return
		}
		writeError(w, http.StatusInternalServerError, getErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) replayDelivery(w http.ResponseWriter, r *http.Request) {
	delID, err := id.ParseDeliveryID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid delivery ID")
		return
	}

	replay, replayErr := h.engine.Replay(r.Context(), delID)
	if replayErr != nil {
		switch {
		case errors.Is(replayErr, webhooks.ErrDeliveryNotFound):
			writeError(w, http.StatusNotFound, "delivery not found")
		case errors.Is(replayErr, webhooks.ErrEndpointNotFound):
			writeError(w, http.StatusConflict, replayErr.Error())
		default:
			writeError(w, http.StatusInternalServerError, replayErr.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, replay)
}
