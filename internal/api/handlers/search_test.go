package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clinico/clinico/internal/domain/embedding"
	"github.com/clinico/clinico/internal/infra/llm"
	"github.com/clinico/clinico/internal/infra/sqlite"
)

// stubEmbedProvider returns a fixed vector for every text.
type stubEmbedProvider struct {
	err error
}

func (s *stubEmbedProvider) Embed(_ context.Context, req llm.EmbedRequest) (*llm.EmbedResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(req.Texts))
	for i := range req.Texts {
		out[i] = []float32{1, 0, 0}
	}
	return &llm.EmbedResponse{Embeddings: out}, nil
}

func (s *stubEmbedProvider) ChatCompletion(_ context.Context, _ llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not a chat provider")
}
func (s *stubEmbedProvider) ModelInfo() llm.ModelMeta            { return llm.ModelMeta{ID: "stub"} }
func (s *stubEmbedProvider) HealthCheck(_ context.Context) error { return nil }

func newSearchHandler(t *testing.T, provider llm.LLMProvider, withIndex bool) (*SearchHandler, *embedding.Store) {
	t.Helper()
	db, err := sqlite.NewDB(":memory:")
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	var index embedding.Index
	if withIndex {
		idx, err := embedding.NewChromemIndex()
		if err != nil {
			t.Fatalf("NewChromemIndex failed: %v", err)
		}
		index = idx
	}
	store := embedding.NewStore(db, provider, index)
	return NewSearchHandler(store), store
}

func doSearch(t *testing.T, h *SearchHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Search(rec, req)
	return rec
}

func TestSearch_ExactIDShortCircuits(t *testing.T) {
	h, store := newSearchHandler(t, &stubEmbedProvider{}, true)
	if _, err := store.Upsert(context.Background(), "pr-1", "patient summary"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	rec := doSearch(t, h, `{"entityId":"pr-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp searchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	if resp.Results[0].Score != 1.0 {
		t.Errorf("expected score 1.0 for exact lookup, got %f", resp.Results[0].Score)
	}
}

func TestSearch_UnknownIDIsEmptyList(t *testing.T) {
	h, _ := newSearchHandler(t, &stubEmbedProvider{}, true)

	rec := doSearch(t, h, `{"entityId":"missing"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp searchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected empty results, got %d", len(resp.Results))
	}
}

func TestSearch_SemanticQuery(t *testing.T) {
	h, store := newSearchHandler(t, &stubEmbedProvider{}, true)
	if _, err := store.Upsert(context.Background(), "pr-1", "patient summary"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	rec := doSearch(t, h, `{"query":"summary","topK":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp searchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].EntityID != "pr-1" {
		t.Errorf("expected pr-1 in results, got %+v", resp.Results)
	}
}

func TestSearch_NoIndexIsEmptyListNotError(t *testing.T) {
	h, _ := newSearchHandler(t, &stubEmbedProvider{}, false)

	rec := doSearch(t, h, `{"query":"anything"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with an empty list, got %d", rec.Code)
	}
	var resp searchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected empty results, got %d", len(resp.Results))
	}
}

func TestSearch_BothEmptyIs400(t *testing.T) {
	h, _ := newSearchHandler(t, &stubEmbedProvider{}, true)

	rec := doSearch(t, h, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSearch_ProviderDownIs502(t *testing.T) {
	h, _ := newSearchHandler(t, &stubEmbedProvider{err: errors.New("connection refused")}, true)

	rec := doSearch(t, h, `{"query":"anything"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}
