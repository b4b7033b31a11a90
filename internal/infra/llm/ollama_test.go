// Tests for the Ollama adapter against an httptest server — no real Ollama.
package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOllamaProvider_Embed_DecodesVectors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("expected embed model, got %q", req.Model)
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3.2:3b", "nomic-embed-text", time.Second)
	resp, err := p.Embed(context.Background(), EmbedRequest{Texts: []string{"chest pain", "headache"}})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(resp.Embeddings) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(resp.Embeddings))
	}
	if len(resp.Embeddings[0]) != 3 {
		t.Errorf("expected 3-dim vector, got %d", len(resp.Embeddings[0]))
	}
}

func TestOllamaProvider_Embed_EmptyInput(t *testing.T) {
	t.Parallel()

	p := NewOllamaProvider("http://unreachable.invalid", "c", "e", time.Second)
	resp, err := p.Embed(context.Background(), EmbedRequest{})
	if err != nil {
		t.Fatalf("expected no call and no error for empty input, got %v", err)
	}
	if len(resp.Embeddings) != 0 {
		t.Errorf("expected empty embeddings, got %d", len(resp.Embeddings))
	}
}

func TestOllamaProvider_ChatCompletion_SendsOptionsAndDecodes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected stream=false")
		}
		if req.Options["num_predict"] != float64(2000) {
			t.Errorf("expected num_predict=2000, got %v", req.Options["num_predict"])
		}
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message:    ollamaChatMessage{Role: "assistant", Content: "hello"},
			DoneReason: "stop",
			Done:       true,
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3.2:3b", "nomic-embed-text", time.Second)
	resp, err := p.ChatCompletion(context.Background(), ChatRequest{
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	if err != nil {
		t.Fatalf("ChatCompletion failed: %v", err)
	}
	if resp.Content != "hello" || resp.StopReason != "stop" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestOllamaProvider_ChatCompletion_Non2xxIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "missing", "missing", time.Second)
	if _, err := p.ChatCompletion(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}}); err == nil {
		t.Error("expected error for non-2xx status")
	}
}

func TestOllamaProvider_HealthCheck(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "c", "e", time.Second)
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}

	srv.Close()
	if err := p.HealthCheck(context.Background()); err == nil {
		t.Error("expected error after server closed")
	}
}
