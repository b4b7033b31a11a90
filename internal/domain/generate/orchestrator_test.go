package generate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clinico/clinico/internal/domain/fault"
	"github.com/clinico/clinico/internal/domain/session"
	"github.com/clinico/clinico/internal/infra/llm"
)

// scriptedProvider replays one canned step per ChatCompletion call and
// records every request it sees.
type scriptedStep struct {
	content string
	err     error
}

type scriptedProvider struct {
	steps    []scriptedStep
	requests []llm.ChatRequest
}

func (s *scriptedProvider) ChatCompletion(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return nil, errors.New("scripted provider exhausted")
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	if step.err != nil {
		return nil, step.err
	}
	return &llm.ChatResponse{Content: step.content, StopReason: "stop", Tokens: 7}, nil
}

func (s *scriptedProvider) Embed(_ context.Context, _ llm.EmbedRequest) (*llm.EmbedResponse, error) {
	return nil, errors.New("not an embedding provider")
}
func (s *scriptedProvider) ModelInfo() llm.ModelMeta            { return llm.ModelMeta{ID: "scripted"} }
func (s *scriptedProvider) HealthCheck(_ context.Context) error { return nil }

func newOrchestrator(steps ...scriptedStep) (*Orchestrator, *scriptedProvider, *session.Cache) {
	provider := &scriptedProvider{steps: steps}
	cache := session.NewCache(time.Minute, time.Minute)
	return NewOrchestrator(provider, cache), provider, cache
}

func TestGenerate_EmptyPromptIsValidationError(t *testing.T) {
	t.Parallel()

	o, _, _ := newOrchestrator()
	_, err := o.Generate(context.Background(), Request{Prompt: "   "})
	if !errors.Is(err, fault.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestGenerate_StatelessWithoutConversationID(t *testing.T) {
	t.Parallel()

	o, provider, _ := newOrchestrator(scriptedStep{content: "an answer"})

	res, err := o.Generate(context.Background(), Request{Prompt: "what does this mean?"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if res.Stateful {
		t.Error("expected the stateless path")
	}
	if res.Text != "an answer" {
		t.Errorf("unexpected text %q", res.Text)
	}

	if len(provider.requests) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(provider.requests))
	}
	msgs := provider.requests[0].Messages
	if len(msgs) != 2 || msgs[0].Role != "system" || msgs[1].Role != "user" {
		t.Errorf("expected a single system+user turn, got %+v", msgs)
	}
	if msgs[0].Content != DefaultSystemMessage {
		t.Errorf("expected the default persona, got %q", msgs[0].Content)
	}
}

func TestGenerate_StatefulAppendsHistoryAndReplaysIt(t *testing.T) {
	t.Parallel()

	o, provider, cache := newOrchestrator(
		scriptedStep{content: "first answer"},
		scriptedStep{content: "second answer"},
	)
	ctx := context.Background()

	if _, err := o.Generate(ctx, Request{Prompt: "first question", ConversationID: "c1"}); err != nil {
		t.Fatalf("first Generate failed: %v", err)
	}
	if _, err := o.Generate(ctx, Request{Prompt: "second question", ConversationID: "c1"}); err != nil {
		t.Fatalf("second Generate failed: %v", err)
	}

	sess, _ := cache.GetOrCreate("c1")
	hist := sess.History()
	if len(hist) != 4 {
		t.Fatalf("expected 4 turns in history, got %d", len(hist))
	}
	if hist[0].Content != "first question" || hist[1].Content != "first answer" ||
		hist[2].Content != "second question" || hist[3].Content != "second answer" {
		t.Errorf("history out of order: %+v", hist)
	}

	// The second provider call must carry the first exchange.
	second := provider.requests[1].Messages
	if len(second) != 4 {
		t.Fatalf("expected system + 2 history turns + user, got %d messages", len(second))
	}
	if second[1].Content != "first question" || second[2].Content != "first answer" {
		t.Errorf("prior turns not replayed: %+v", second)
	}
}

func TestGenerate_FallbackKeepsProfileAndHistory(t *testing.T) {
	t.Parallel()

	o, provider, cache := newOrchestrator(
		scriptedStep{err: errors.New("provider timeout")},
		scriptedStep{content: "fallback answer"},
	)

	res, err := o.Generate(context.Background(), Request{
		Prompt:         "show patients with similar symptoms",
		ConversationID: "c1",
	})
	if err != nil {
		t.Fatalf("expected the fallback to succeed, got %v", err)
	}
	if res.Stateful {
		t.Error("expected a stateless fallback result")
	}
	if res.Text == "" {
		t.Error("expected non-empty text from the fallback")
	}
	if !res.Profile.RequiresStructuredOutput || res.Profile.Temperature != 0.3 {
		t.Errorf("expected the structured profile, got %+v", res.Profile)
	}

	// Both attempts use the same profile.
	if len(provider.requests) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(provider.requests))
	}
	if provider.requests[0].Temperature != provider.requests[1].Temperature ||
		provider.requests[0].MaxTokens != provider.requests[1].MaxTokens {
		t.Error("fallback must reuse the stateful attempt's profile")
	}

	// The failed stateful turn and the fallback turn are both unrecorded.
	sess, _ := cache.GetOrCreate("c1")
	if sess.Len() != 0 {
		t.Errorf("expected history unchanged after fallback, got %d turns", sess.Len())
	}
}

func TestGenerate_EmptyStatefulResponseTriggersFallback(t *testing.T) {
	t.Parallel()

	o, _, cache := newOrchestrator(
		scriptedStep{content: "   "},
		scriptedStep{content: "fallback answer"},
	)

	res, err := o.Generate(context.Background(), Request{Prompt: "a question", ConversationID: "c1"})
	if err != nil {
		t.Fatalf("expected the fallback to succeed, got %v", err)
	}
	if res.Text != "fallback answer" {
		t.Errorf("unexpected text %q", res.Text)
	}
	sess, _ := cache.GetOrCreate("c1")
	if sess.Len() != 0 {
		t.Errorf("blank response must not be recorded, got %d turns", sess.Len())
	}
}

func TestGenerate_BothPathsFailIsGenerationError(t *testing.T) {
	t.Parallel()

	o, _, _ := newOrchestrator(
		scriptedStep{err: errors.New("down")},
		scriptedStep{err: errors.New("still down")},
	)

	_, err := o.Generate(context.Background(), Request{Prompt: "a question", ConversationID: "c1"})
	if !errors.Is(err, fault.ErrGeneration) {
		t.Errorf("expected ErrGeneration, got %v", err)
	}
}

func TestGenerate_EmptyStatelessResponseIsTerminal(t *testing.T) {
	t.Parallel()

	o, _, _ := newOrchestrator(scriptedStep{content: ""})

	_, err := o.Generate(context.Background(), Request{Prompt: "a question"})
	if !errors.Is(err, fault.ErrGeneration) {
		t.Errorf("expected ErrGeneration for a textless response, got %v", err)
	}
}

func TestGenerate_CustomSystemMessageIsUsed(t *testing.T) {
	t.Parallel()

	o, provider, _ := newOrchestrator(scriptedStep{content: "ok"})

	_, err := o.Generate(context.Background(), Request{
		Prompt:        "a question",
		SystemMessage: "You are terse.",
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if provider.requests[0].Messages[0].Content != "You are terse." {
		t.Errorf("custom system message not forwarded: %+v", provider.requests[0].Messages[0])
	}
}
