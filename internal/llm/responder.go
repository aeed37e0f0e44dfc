package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const systemPrompt = `You are a helpful assistant for a clinical trial matching service.
You help people find clinical trials, understand what participating involves, and
check whether they might be eligible. Keep answers short, warm, and factual.
Never give medical advice; suggest speaking with a healthcare provider for
medical questions. Always steer the conversation back toward finding trials or
checking eligibility.`

// FallbackReply is returned when the model is unavailable or produces nothing
// usable.
const FallbackReply = "Hello! I'm here to help you find clinical trials and check eligibility requirements. What would you like to know about clinical trials?"

// ContextualFallback picks the canned reply for a failed turn based on where
// the conversation was, so an internal error still reads like the assistant
// and invites the user to continue.
func ContextualFallback(state string) string {
	switch state {
	case "prescreening_active", "awaiting_age", "awaiting_diagnosis",
		"awaiting_medications", "awaiting_flares":
		return "Sorry, something went wrong on my end. Let's pick up your eligibility check where we left off. Could you repeat your last answer?"
	case "awaiting_location":
		return "Sorry, I hit a snag there. Which city or area should I search in?"
	case "awaiting_condition":
		return "Sorry, I hit a snag there. Which condition are you interested in?"
	case "trials_shown":
		return "Sorry, something went wrong on my end. Would you like more details on one of the trials I showed you, or to check your eligibility?"
	default:
		return "Sorry, something went wrong on my end. Could you try that again? I can help you find clinical trials or check your eligibility."
	}
}

// TurnContext carries the conversational facts the responder folds into the
// prompt for a free-form turn.
type TurnContext struct {
	FocusCondition     string
	FocusLocation      string
	State              string
	PrescreeningActive bool
	History            []ChatMessage
}

// Responder turns free-form user messages into model-generated replies. It
// owns prompt construction; transport stays with the Client.
type Responder struct {
	client  Client
	timeout time.Duration
}

// NewResponder wraps an LLM client. timeout caps each model call so a slow
// provider cannot hold a turn open.
func NewResponder(client Client, timeout time.Duration) *Responder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Responder{client: client, timeout: timeout}
}

// GenerateReply answers a general query using the model, folding the session
// context into the prompt. The error is non-nil when the caller should use
// FallbackReply instead.
func (r *Responder) GenerateReply(ctx context.Context, userMessage string, tc TurnContext) (string, error) {
	if r == nil || r.client == nil {
		return "", fmt.Errorf("llm: no client configured")
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	system := []string{systemPrompt}
	if facts := tc.promptFacts(); facts != "" {
		system = append(system, facts)
	}

	messages := make([]ChatMessage, 0, len(tc.History)+1)
	messages = append(messages, tc.History...)
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: userMessage})

	resp, err := r.client.Complete(ctx, Request{
		System:      system,
		Messages:    messages,
		MaxTokens:   512,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", fmt.Errorf("llm: empty model reply")
	}
	return resp.Text, nil
}

func (tc TurnContext) promptFacts() string {
	var facts []string
	if tc.FocusCondition != "" {
		facts = append(facts, "The user is interested in "+tc.FocusCondition+".")
	}
	if tc.FocusLocation != "" {
		facts = append(facts, "The user is located near "+tc.FocusLocation+".")
	}
	if tc.PrescreeningActive {
		facts = append(facts, "An eligibility check is in progress; keep answers brief and return to the pending question.")
	}
	if tc.State != "" {
		facts = append(facts, "Conversation state: "+tc.State+".")
	}
	if len(facts) == 0 {
		return ""
	}
	return strings.Join(facts, " ")
}
