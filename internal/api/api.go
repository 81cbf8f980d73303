// Package api exposes the consensus engine over a thin JSON HTTP boundary.
// It translates between wire shapes and engine calls and maps the error
// taxonomy onto status codes; no domain rules live here.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joernpreuss/SAVT/internal/config"
	"github.com/joernpreuss/SAVT/internal/engine"
	"github.com/joernpreuss/SAVT/internal/metrics"
	"github.com/joernpreuss/SAVT/internal/models"
	"github.com/joernpreuss/SAVT/internal/naming"
	"github.com/joernpreuss/SAVT/internal/query"
	"github.com/joernpreuss/SAVT/internal/storage"
)

// Handler serves the JSON API.
type Handler struct {
	engine  *engine.Engine
	queries *query.Service
	terms   config.Terminology
}

// New creates a Handler around the engine and query service.
func New(eng *engine.Engine, queries *query.Service, terms config.Terminology) *Handler {
	return &Handler{engine: eng, queries: queries, terms: terms}
}

// Routes registers all API routes on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/items", h.createItem)
	mux.HandleFunc("GET /api/v1/items", h.listItems)
	mux.HandleFunc("GET /api/v1/items/{id}", h.getItem)
	mux.HandleFunc("DELETE /api/v1/items/{id}", h.removeItem)
	mux.HandleFunc("POST /api/v1/items/{id}/restore", h.restoreItem)
	mux.HandleFunc("POST /api/v1/items/{id}/split", h.splitItem)
	mux.HandleFunc("POST /api/v1/items/merge", h.mergeItems)

	mux.HandleFunc("POST /api/v1/features", h.createFeature)
	mux.HandleFunc("GET /api/v1/features", h.listStandaloneFeatures)
	mux.HandleFunc("GET /api/v1/features/{id}", h.getFeature)
	mux.HandleFunc("DELETE /api/v1/features/{id}", h.removeFeature)
	mux.HandleFunc("POST /api/v1/features/{id}/restore", h.restoreFeature)
	mux.HandleFunc("POST /api/v1/features/{id}/move", h.moveFeature)

	mux.HandleFunc("POST /api/v1/users/{user}/features/{id}/veto", h.veto)
	mux.HandleFunc("DELETE /api/v1/users/{user}/features/{id}/veto", h.unveto)

	mux.HandleFunc("GET /api/v1/events/{id}", h.listEvents)

	return mux
}

type itemResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedBy string `json:"created_by,omitempty"`
	CreatedAt int64  `json:"created_at"`
	Removed   bool   `json:"removed"`
}

type featureResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	ItemID    string   `json:"item_id,omitempty"`
	CreatedBy string   `json:"created_by,omitempty"`
	CreatedAt int64    `json:"created_at"`
	VetoedBy  []string `json:"vetoed_by"`
	Vetoed    bool     `json:"vetoed"`
	Removed   bool     `json:"removed"`
}

type itemWithFeaturesResponse struct {
	itemResponse
	Features []featureResponse `json:"features"`
}

type eventResponse struct {
	ID         string `json:"id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	Operation  string `json:"operation"`
	Actor      string `json:"actor,omitempty"`
	Detail     string `json:"detail,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

func toItemResponse(item *models.Item) itemResponse {
	return itemResponse{
		ID:        item.ID,
		Name:      item.Name,
		CreatedBy: item.CreatedBy,
		CreatedAt: item.CreatedAt,
		Removed:   !item.Live(),
	}
}

func toFeatureResponse(f *models.Feature) featureResponse {
	vetoedBy := f.VetoedBy
	if vetoedBy == nil {
		vetoedBy = []string{}
	}
	return featureResponse{
		ID:        f.ID,
		Name:      f.Name,
		ItemID:    f.ItemID,
		CreatedBy: f.CreatedBy,
		CreatedAt: f.CreatedAt,
		VetoedBy:  vetoedBy,
		Vetoed:    f.Vetoed(),
		Removed:   !f.Live(),
	}
}

func toItemWithFeatures(v *query.ItemWithFeatures) itemWithFeaturesResponse {
	resp := itemWithFeaturesResponse{
		itemResponse: toItemResponse(&v.Item),
		Features:     []featureResponse{},
	}
	for i := range v.Features {
		resp.Features = append(resp.Features, toFeatureResponse(&v.Features[i]))
	}
	return resp
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		CreatedBy string `json:"created_by"`
	}
	if !decode(w, r, &req) {
		return
	}

	item, err := h.engine.CreateItem(r.Context(), req.Name, req.CreatedBy)
	if err != nil {
		h.writeError(w, "create_item", h.terms.ItemSingular, err)
		return
	}
	h.countOK("create_item")
	writeJSON(w, http.StatusCreated, toItemResponse(item))
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	includeRemoved := r.URL.Query().Get("include_removed") == "true"
	items, err := h.queries.ListItems(r.Context(), includeRemoved)
	if err != nil {
		h.writeError(w, "list_items", h.terms.ItemPlural, err)
		return
	}
	resp := make([]itemWithFeaturesResponse, 0, len(items))
	for i := range items {
		resp = append(resp, toItemWithFeatures(&items[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": resp})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.queries.GetItemWithFeatures(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, "get_item", h.terms.ItemSingular, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemWithFeatures(item))
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	err := h.engine.RemoveItem(r.Context(), r.PathValue("id"), r.URL.Query().Get("user"))
	if err != nil {
		h.writeError(w, "remove_item", h.terms.ItemSingular, err)
		return
	}
	h.countOK("remove_item")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restoreItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.engine.RestoreItem(r.Context(), r.PathValue("id"), r.URL.Query().Get("user"))
	if err != nil {
		h.writeError(w, "restore_item", h.terms.ItemSingular, err)
		return
	}
	h.countOK("restore_item")
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) splitItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FeatureIDs []string `json:"feature_ids"`
		Name       string   `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}

	item, err := h.engine.Split(r.Context(), r.PathValue("id"), req.FeatureIDs, req.Name)
	if err != nil {
		h.writeError(w, "split_item", h.terms.ItemSingular, err)
		return
	}
	h.countOK("split_item")
	writeJSON(w, http.StatusCreated, toItemResponse(item))
}

func (h *Handler) mergeItems(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemA string `json:"item_a"`
		ItemB string `json:"item_b"`
		Name  string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}

	item, err := h.engine.Merge(r.Context(), req.ItemA, req.ItemB, req.Name)
	if err != nil {
		h.writeError(w, "merge_items", h.terms.ItemPlural, err)
		return
	}
	h.countOK("merge_items")
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) createFeature(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		ItemID    string `json:"item_id"`
		CreatedBy string `json:"created_by"`
	}
	if !decode(w, r, &req) {
		return
	}

	feature, err := h.engine.CreateFeature(r.Context(), req.Name, req.ItemID, req.CreatedBy)
	if err != nil {
		h.writeError(w, "create_feature", h.terms.FeatureSingular, err)
		return
	}
	h.countOK("create_feature")
	writeJSON(w, http.StatusCreated, toFeatureResponse(feature))
}

func (h *Handler) listStandaloneFeatures(w http.ResponseWriter, r *http.Request) {
	features, err := h.queries.ListStandaloneFeatures(r.Context())
	if err != nil {
		h.writeError(w, "list_features", h.terms.FeaturePlural, err)
		return
	}
	resp := make([]featureResponse, 0, len(features))
	for i := range features {
		resp = append(resp, toFeatureResponse(&features[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"features": resp})
}

func (h *Handler) getFeature(w http.ResponseWriter, r *http.Request) {
	feature, err := h.queries.GetFeature(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, "get_feature", h.terms.FeatureSingular, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeatureResponse(feature))
}

func (h *Handler) removeFeature(w http.ResponseWriter, r *http.Request) {
	err := h.engine.RemoveFeature(r.Context(), r.PathValue("id"), r.URL.Query().Get("user"))
	if err != nil {
		h.writeError(w, "remove_feature", h.terms.FeatureSingular, err)
		return
	}
	h.countOK("remove_feature")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restoreFeature(w http.ResponseWriter, r *http.Request) {
	feature, err := h.engine.RestoreFeature(r.Context(), r.PathValue("id"), r.URL.Query().Get("user"))
	if err != nil {
		h.writeError(w, "restore_feature", h.terms.FeatureSingular, err)
		return
	}
	h.countOK("restore_feature")
	writeJSON(w, http.StatusOK, toFeatureResponse(feature))
}

func (h *Handler) moveFeature(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID string `json:"item_id"`
	}
	if !decode(w, r, &req) {
		return
	}

	feature, err := h.engine.Move(r.Context(), r.PathValue("id"), req.ItemID)
	if err != nil {
		h.writeError(w, "move_feature", h.terms.FeatureSingular, err)
		return
	}
	h.countOK("move_feature")
	writeJSON(w, http.StatusOK, toFeatureResponse(feature))
}

func (h *Handler) veto(w http.ResponseWriter, r *http.Request) {
	feature, err := h.engine.Veto(r.Context(), r.PathValue("id"), r.PathValue("user"))
	if err != nil {
		h.writeError(w, "veto", h.terms.FeatureSingular, err)
		return
	}
	h.countOK("veto")
	writeJSON(w, http.StatusOK, toFeatureResponse(feature))
}

func (h *Handler) unveto(w http.ResponseWriter, r *http.Request) {
	feature, err := h.engine.Unveto(r.Context(), r.PathValue("id"), r.PathValue("user"))
	if err != nil {
		h.writeError(w, "unveto", h.terms.FeatureSingular, err)
		return
	}
	h.countOK("unveto")
	writeJSON(w, http.StatusOK, toFeatureResponse(feature))
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.queries.ListEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, "list_events", "events", err)
		return
	}
	resp := make([]eventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, eventResponse{
			ID:         e.ID,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			Operation:  e.Operation,
			Actor:      e.Actor,
			Detail:     e.Detail,
			CreatedAt:  e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": resp})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid_body",
			"message": "request body is not valid JSON",
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) countOK(operation string) {
	metrics.OperationsTotal.WithLabelValues(operation, "ok").Inc()
}

// writeError maps the engine's error taxonomy onto HTTP status codes.
// Duplicate names and validation failures get distinct error codes so the
// caller can show "already exists" vs "invalid name".
func (h *Handler) writeError(w http.ResponseWriter, operation, label string, err error) {
	var nameErr *naming.NameError

	var status int
	var code string
	retryable := false
	switch {
	case errors.As(err, &nameErr):
		status, code = http.StatusBadRequest, "invalid_name"
	case errors.Is(err, engine.ErrSameItem):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, storage.ErrDuplicate):
		status, code = http.StatusConflict, "already_exists"
	case errors.Is(err, storage.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, storage.ErrConflict):
		status, code, retryable = http.StatusConflict, "conflict", true
	case errors.Is(err, storage.ErrUnavailable):
		status, code, retryable = http.StatusServiceUnavailable, "unavailable", true
	default:
		status, code = http.StatusInternalServerError, "internal"
	}

	metrics.OperationsTotal.WithLabelValues(operation, code).Inc()

	message := err.Error()
	switch code {
	case "already_exists":
		message = "a " + label + " with that name already exists"
	case "not_found":
		message = label + " not found"
	}

	writeJSON(w, status, map[string]any{
		"error":     code,
		"message":   message,
		"retryable": retryable,
	})
}
