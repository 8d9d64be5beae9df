package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/punchamoorthee/vrfmint/internal/models"
)

const maxBodyBytes = 1 << 20

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (h *Handler) RequestMintHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/mints"))
	defer timer.ObserveDuration()

	var req models.MintRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/mints")
		return
	}
	payment, err := models.ParsePayment(req.Payment)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "POST", "/mints")
		return
	}

	requestID, err := h.service.RequestMint(r.Context(), payment, req.Requester)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/mints")
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/requests/%s", requestID))
	h.respondJSON(w, http.StatusAccepted, models.MintAccepted{RequestID: requestID, Requester: strings.TrimSpace(req.Requester)}, "POST", "/mints")
}

func (h *Handler) BasicMintHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/mints/basic"))
	defer timer.ObserveDuration()

	var req models.BasicMintRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/mints/basic")
		return
	}
	rec, err := h.service.BasicMint(r.Context(), req.Requester)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/mints/basic")
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/tokens/%d", rec.TokenID))
	h.respondJSON(w, http.StatusCreated, rec, "POST", "/mints/basic")
}

// FulfillHandler is the oracle callback.
func (h *Handler) FulfillHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/fulfillments"))
	defer timer.ObserveDuration()

	if !h.authorizedCallback(r) {
		h.respondError(w, http.StatusUnauthorized, "Only the oracle may fulfill", "POST", "/fulfillments")
		return
	}

	var req models.FulfillmentRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/fulfillments")
		return
	}
	words, err := models.ParseRandomWords(req.RandomWords)
	if err != nil {
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), "POST", "/fulfillments")
		return
	}

	rec, err := h.service.Fulfill(r.Context(), req.RequestID, words)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/fulfillments")
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/tokens/%d", rec.TokenID))
	h.respondJSON(w, http.StatusCreated, rec, "POST", "/fulfillments")
}

func (h *Handler) GetRequestHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Pending(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, err, "GET", "/requests/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, models.NewPendingResponse(p), "GET", "/requests/{id}")
}

func (h *Handler) GetTokenHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid token id", "GET", "/tokens/{id}")
		return
	}
	rec, err := h.service.Token(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err, "GET", "/tokens/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, rec, "GET", "/tokens/{id}")
}

func (h *Handler) GetCollectionHandler(w http.ResponseWriter, r *http.Request) {
	counter, err := h.service.TokenCounter(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "GET", "/collection")
		return
	}
	catalog := h.service.Catalog()
	items := make([]models.CatalogItem, len(catalog))
	for i, e := range catalog {
		uri, _ := h.service.CatalogURI(i)
		items[i] = models.CatalogItem{
			Index:     i,
			Class:     e.Class,
			Weight:    e.Weight,
			ContentID: e.ContentID,
			URI:       uri,
		}
	}
	h.respondJSON(w, http.StatusOK, models.CollectionResponse{
		MintFee:      h.service.MintFee().String(),
		TokenCounter: counter,
		Initialized:  h.service.Initialized(),
		Catalog:      items,
	}, "GET", "/collection")
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}
