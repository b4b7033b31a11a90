// Package llm — LLMProvider interface.
// Adapters (Ollama, OpenAI, etc.) implement this interface so the pipeline
// is never coupled to a specific vendor.
package llm

import "context"

// LLMProvider is the model-agnostic interface for LLM operations.
// Every call is expected to honour ctx cancellation; adapters additionally
// apply their own per-call timeout so a hung provider cannot stall callers.
type LLMProvider interface {
	// ChatCompletion performs a non-streaming chat completion.
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Embed computes dense vector representations for a batch of texts.
	Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error)

	// ModelInfo returns static metadata about the provider/model.
	ModelInfo() ModelMeta

	// HealthCheck returns nil if the provider is reachable and operational.
	HealthCheck(ctx context.Context) error
}
