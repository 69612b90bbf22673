package api

import (
	"errors"
	"net/http"

	"github.com/storefront-kit/webhooks"
	"github.com/storefront-kit/webhooks/delivery"
	"github.com/storefront-kit/webhooks/endpoint"
	"github.com/storefront-kit/webhooks/id"
)

func (h *Handler) createEndpoint(w http.ResponseWriter, r *http.Request) {
	var in endpoint.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ep, err := h.engine.Endpoints().Create(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, ep)
}

func (h *Handler) listEndpoints(w http.ResponseWriter, r *http.Request) {
	opts := endpoint.ListOpts{
		Offset:    queryInt(r, "offset", 0),
		Limit:     queryInt(r, "limit", 50),
		EventType: queryParam(r, "event_type"),
	}
	switch queryParam(r, "active") {
	case "true":
		active := true
		opts.Active = &active
	case "false":
		active := false
		opts.Active = &active
	}

	eps, err := h.engine.Endpoints().List(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, eps)
}

func (h *Handler) getEndpoint(w http.ResponseWriter, r *http.Request) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint ID")
		return
	}

	ep, getErr := h.engine.Endpoints().Get(r.Context(), epID)
	if getErr != nil {
		if errors.Is(getErr, webhooks.ErrEndpointNotFound) {
			writeError(w, http.StatusNotFound, "endpoint not found")
			return
		}
		writeError(w, http.StatusInternalServerError, getErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, ep)
}

func (h *Handler) updateEndpoint(w http.ResponseWriter, r *http.Request) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint ID")
		return
	}

	var patch endpoint.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ep, updateErr := h.engine.Endpoints().Update(r.Context(), epID, patch)
	if updateErr != nil {
		if errors.Is(updateErr, webhooks.ErrEndpointNotFound) {
			writeError(w, http.StatusNotFound, "endpoint not found")
			return
		}
		var vErr *endpoint.ValidationError
		if errors.As(updateErr, &vErr) {
			writeError(w, http.StatusBadRequest, updateErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, updateErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, ep)
}

func (h *Handler) deleteEndpoint(w http.ResponseWriter, r *http.Request) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint ID")
		return
	}

	if deleteErr := h.engine.Endpoints().Delete(r.Context(), epID); deleteErr != nil {
		if errors.Is(deleteErr, webhooks.ErrEndpointNotFound) {
			writeError(w, http.StatusNotFound, "endpoint not found")
			return
		}
		writeError(w, http.StatusInternalServerError, deleteErr.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) activateEndpoint(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) deactivateEndpoint(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint ID")
		return
	}

	if setErr := h.engine.Endpoints().SetActive(r.Context(), epID, active); setErr != nil {
		if errors.Is(setErr, webhooks.ErrEndpointNotFound) {
			writeError(w, http.StatusNotFound, "endpoint not found")
			return
		}
		writeError(w, http.StatusInternalServerError, setErr.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rotateSecret(w http.ResponseWriter, r *http.Request) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint ID")
		return
	}

	newSecret, rotateErr := h.engine.Endpoints().RotateSecret(r.Context(), epID)
	if rotateErr != nil {
		if errors.Is(rotateErr, webhooks.ErrEndpointNotFound) {
			writeError(w, http.StatusNotFound, "endpoint not found")
			return
		}
		writeError(w, http.StatusInternalServerError, rotateErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"secret": newSecret})
}

func (h *Handler) listEndpointDeliveries(w http.ResponseWriter, r *http.Request) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint ID")
		return
	}

	opts := delivery.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}
	if st := queryParam(r, "status"); st != "" {
		status := delivery.Status(st)
		opts.Status = &status
	}

	ds, listErr := h.engine.Store().ListByEndpoint(r.Context(), epID, opts)
	if listErr != nil {
		writeError(w, http.StatusInternalServerError, listErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, ds)
}
