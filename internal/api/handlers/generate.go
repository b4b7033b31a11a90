// HTTP handler for text generation.
// POST /api/v1/generate — runs the orchestrator and maps its error taxonomy
// onto HTTP statuses.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinico/clinico/internal/domain/fault"
	"github.com/clinico/clinico/internal/domain/generate"
)

// GenerateHandler handles generation HTTP requests.
type GenerateHandler struct {
	orchestrator *generate.Orchestrator
}

// NewGenerateHandler creates a GenerateHandler.
func NewGenerateHandler(o *generate.Orchestrator) *GenerateHandler {
	return &GenerateHandler{orchestrator: o}
}

// generateRequest is the JSON request body for POST /api/v1/generate.
type generateRequest struct {
	Prompt         string `json:"prompt"`
	SystemMessage  string `json:"systemMessage,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// generateResponse is the JSON response body for POST /api/v1/generate.
type generateResponse struct {
	Text        string  `json:"text"`
	Structured  bool    `json:"structured"`
	Temperature float32 `json:"temperature"`
	Stateful    bool    `json:"stateful"`
}

// Generate handles POST /api/v1/generate.
//
// Response codes:
//   - 200 OK: text produced
//   - 400 Bad Request: invalid JSON or empty prompt
//   - 502 Bad Gateway: generation failed after all fallbacks
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.orchestrator.Generate(r.Context(), generate.Request{
		Prompt:         req.Prompt,
		SystemMessage:  req.SystemMessage,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		switch {
		case errors.Is(err, fault.ErrValidation):
			writeError(w, http.StatusBadRequest, "prompt is required")
		case errors.Is(err, fault.ErrGeneration):
			writeError(w, http.StatusBadGateway, "generation failed")
		default:
			writeError(w, http.StatusInternalServerError, "generation failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		Text:        res.Text,
		Structured:  res.Profile.RequiresStructuredOutput,
		Temperature: res.Profile.Temperature,
		Stateful:    res.Stateful,
	})
}
