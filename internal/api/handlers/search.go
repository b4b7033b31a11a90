// HTTP handler for record retrieval.
// POST /api/v1/search — exact-id lookup when entityId is given, semantic
// similarity search otherwise.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinico/clinico/internal/domain/embedding"
	"github.com/clinico/clinico/internal/domain/fault"
)

// SearchHandler handles retrieval HTTP requests.
type SearchHandler struct {
	store *embedding.Store
}

// NewSearchHandler creates a SearchHandler.
func NewSearchHandler(store *embedding.Store) *SearchHandler {
	return &SearchHandler{store: store}
}

// searchRequest is the JSON request body for POST /api/v1/search.
type searchRequest struct {
	Query    string `json:"query,omitempty"`
	EntityID string `json:"entityId,omitempty"`
	TopK     int    `json:"topK,omitempty"`
}

// searchResultItem is a single ranked result.
type searchResultItem struct {
	EntityID string  `json:"entityId"`
	Content  string  `json:"content"`
	Score    float32 `json:"score"`
}

// searchResponse is the JSON response body for POST /api/v1/search.
type searchResponse struct {
	Results []searchResultItem `json:"results"`
}

// Search handles POST /api/v1/search.
//
// An entityId short-circuits to the exact-key lookup (score fixed at 1.0);
// otherwise query runs a similarity search. An unprovisioned index yields an
// empty result list, same as no matches.
//
// Response codes:
//   - 200 OK: results (possibly empty)
//   - 400 Bad Request: invalid JSON, or both query and entityId empty
//   - 502 Bad Gateway: embedding provider failure
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.EntityID != "" {
		match, err := h.store.GetByEntityID(r.Context(), req.EntityID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		results := []searchResultItem{}
		if match != nil {
			results = append(results, searchResultItem{
				EntityID: match.EntityID,
				Content:  match.Content,
				Score:    match.Score,
			})
		}
		writeJSON(w, http.StatusOK, searchResponse{Results: results})
		return
	}

	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query or entityId is required")
		return
	}

	res, err := h.store.SearchSimilar(r.Context(), req.Query, req.TopK)
	if err != nil {
		switch {
		case errors.Is(err, fault.ErrValidation):
			writeError(w, http.StatusBadRequest, "query or entityId is required")
		case errors.Is(err, fault.ErrProvider):
			writeError(w, http.StatusBadGateway, "embedding provider unavailable")
		default:
			writeError(w, http.StatusInternalServerError, "search failed")
		}
		return
	}

	results := make([]searchResultItem, len(res.Matches))
	for i, m := range res.Matches {
		results[i] = searchResultItem{EntityID: m.EntityID, Content: m.Content, Score: m.Score}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}
