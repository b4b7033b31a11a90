package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clinico/clinico/internal/domain/embedding"
	"github.com/clinico/clinico/internal/domain/generate"
	"github.com/clinico/clinico/internal/domain/session"
	"github.com/clinico/clinico/internal/infra/llm"
	"github.com/clinico/clinico/internal/infra/sqlite"
	pkgauth "github.com/clinico/clinico/pkg/auth"
)

// stubProvider serves both chat and embeddings with canned responses.
type stubProvider struct{}

func (stubProvider) ChatCompletion(_ context.Context, _ llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: "stub answer", StopReason: "stop"}, nil
}

func (stubProvider) Embed(_ context.Context, req llm.EmbedRequest) (*llm.EmbedResponse, error) {
	out := make([][]float32, len(req.Texts))
	for i := range req.Texts {
		out[i] = []float32{1, 0, 0}
	}
	return &llm.EmbedResponse{Embeddings: out}, nil
}

func (stubProvider) ModelInfo() llm.ModelMeta            { return llm.ModelMeta{ID: "stub"} }
func (stubProvider) HealthCheck(_ context.Context) error { return nil }

func newTestRouter(t *testing.T) (http.Handler, *pkgauth.TokenSigner) {
	t.Helper()

	signer, err := pkgauth.NewTokenSigner("test-secret-test-secret-32bytes!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenSigner failed: %v", err)
	}
	hash, err := pkgauth.HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	db, err := sqlite.NewDB(":memory:")
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	provider := stubProvider{}
	cache := session.NewCache(time.Minute, time.Minute)
	index, err := embedding.NewChromemIndex()
	if err != nil {
		t.Fatalf("NewChromemIndex failed: %v", err)
	}

	router := NewRouter(Deps{
		Signer:       signer,
		APIUser:      "api-client",
		APIPassHash:  hash,
		Orchestrator: generate.NewOrchestrator(provider, cache),
		Embeddings:   embedding.NewStore(db, provider, index),
	})
	return router, signer
}

func TestRoutes_HealthIsPublic(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRoutes_ProtectedRoutesRequireToken(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/api/v1/generate", "/api/v1/search"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401 without a token, got %d", path, rec.Code)
		}
	}
}

func TestRoutes_TokenExchangeThenGenerate(t *testing.T) {
	router, _ := newTestRouter(t)

	// Exchange credentials for a token.
	req := httptest.NewRequest(http.MethodPost, "/auth/token",
		strings.NewReader(`{"username":"api-client","password":"correct-horse"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("token exchange: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var tok struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&tok); err != nil {
		t.Fatalf("decode token: %v", err)
	}

	// Use it against the protected generate endpoint.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/generate",
		strings.NewReader(`{"prompt":"what does this mean?"}`))
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("generate: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Text != "stub answer" {
		t.Errorf("unexpected text %q", resp.Text)
	}
}
