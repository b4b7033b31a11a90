// Package generate produces response text for a prompt. The orchestrator
// derives a formatting profile from the request text, then picks a delivery
// strategy: a memory-aware call through the session cache when a conversation
// id is supplied, with a one-shot stateless retry when that call fails.
package generate

import (
	"context"
	"errors"
	"strings"

	"github.com/clinico/clinico/internal/domain/fault"
	"github.com/clinico/clinico/internal/domain/session"
	"github.com/clinico/clinico/internal/infra/llm"
	"github.com/clinico/clinico/internal/logger"
)

// DefaultSystemMessage is the persona used when a request carries none.
const DefaultSystemMessage = "You are a clinical documentation assistant. " +
	"Answer precisely, using only the information provided."

// Request is one generation call. ConversationID is optional; when present
// the orchestrator replays that conversation's history to the provider.
type Request struct {
	Prompt         string
	SystemMessage  string
	ConversationID string
}

// Result is the produced text plus how it was produced.
type Result struct {
	Text    string
	Profile Profile
	// Stateful reports whether the text came from the memory-aware call.
	// False means the stateless path answered, either directly or as fallback.
	Stateful bool
	Tokens   int
}

// Orchestrator coordinates the session cache and the chat provider. It holds
// no state of its own; both collaborators are borrowed.
type Orchestrator struct {
	provider llm.LLMProvider
	sessions *session.Cache
}

// NewOrchestrator wires a chat provider and a session cache.
func NewOrchestrator(provider llm.LLMProvider, sessions *session.Cache) *Orchestrator {
	return &Orchestrator{provider: provider, sessions: sessions}
}

// Generate produces response text for req.
//
// With a conversation id, the provider is called with the session's
// accumulated history plus the new prompt; on success the user and assistant
// turns are appended to the history. Any failure of that call falls back to
// one stateless retry with the same profile, and the fallback turn is never
// recorded — history only holds turns the memory-aware call actually saw.
// Without a conversation id the stateless path runs directly. A stateless
// response with no extractable text is terminal.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fault.Validationf("prompt is empty")
	}
	systemMessage := req.SystemMessage
	if strings.TrimSpace(systemMessage) == "" {
		systemMessage = DefaultSystemMessage
	}
	profile := ProfileFor(req.Prompt, systemMessage)

	if req.ConversationID != "" {
		res, err := o.generateStateful(ctx, req, systemMessage, profile)
		if err == nil {
			return res, nil
		}
		logger.Log.WithField("conversation_id", req.ConversationID).
			Warnf("stateful generation failed, retrying stateless: %v", err)
	}

	return o.generateStateless(ctx, req, systemMessage, profile)
}

// generateStateful runs the memory-aware call and appends the new turn to the
// session history only when the provider returned usable text.
func (o *Orchestrator) generateStateful(ctx context.Context, req Request, systemMessage string, profile Profile) (*Result, error) {
	sess, err := o.sessions.GetOrCreate(req.ConversationID)
	if err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, sess.Len()+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemMessage})
	messages = append(messages, sess.History()...)
	userTurn := llm.Message{Role: "user", Content: req.Prompt}
	messages = append(messages, userTurn)

	text, tokens, err := o.complete(ctx, messages, profile)
	if err != nil {
		return nil, err
	}

	sess.Append(userTurn, llm.Message{Role: "assistant", Content: text})
	return &Result{Text: text, Profile: profile, Stateful: true, Tokens: tokens}, nil
}

// generateStateless runs a single system+user call with no history.
func (o *Orchestrator) generateStateless(ctx context.Context, req Request, systemMessage string, profile Profile) (*Result, error) {
	messages := []llm.Message{
		{Role: "system", Content: systemMessage},
		{Role: "user", Content: req.Prompt},
	}

	text, tokens, err := o.complete(ctx, messages, profile)
	if err != nil {
		return nil, fault.Generation("stateless completion", err)
	}
	return &Result{Text: text, Profile: profile, Stateful: false, Tokens: tokens}, nil
}

// complete issues one chat call with the profile's parameters. A response
// with no extractable text counts as a failure.
func (o *Orchestrator) complete(ctx context.Context, messages []llm.Message, profile Profile) (string, int, error) {
	resp, err := o.provider.ChatCompletion(ctx, llm.ChatRequest{
		Messages:    messages,
		Temperature: profile.Temperature,
		MaxTokens:   profile.MaxTokens,
	})
	if err != nil {
		return "", 0, fault.Provider("chat completion", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", resp.Tokens, errors.New("response contains no text")
	}
	return resp.Content, resp.Tokens, nil
}
