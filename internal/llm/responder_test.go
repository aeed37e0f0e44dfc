package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeClient struct {
	lastReq Request
	bounded bool
	text    string
	err     error
}

func (f *fakeClient) Complete(ctx context.Context, req Request) (Response, error) {
	f.lastReq = req
	_, f.bounded = ctx.Deadline()
	if f.err != nil {
		return Response{}, f.err
	}
	return Response{Text: f.text}, nil
}

func TestGenerateReplyFoldsContextIntoPrompt(t *testing.T) {
	client := &fakeClient{text: "Happy to help."}
	r := NewResponder(client, time.Second)

	tc := TurnContext{
		FocusCondition:     "gout",
		FocusLocation:      "tulsa",
		PrescreeningActive: true,
		History: []ChatMessage{
			{Role: ChatRoleUser, Content: "hi"},
			{Role: ChatRoleAssistant, Content: "Hello!"},
		},
	}

	got, err := r.GenerateReply(context.Background(), "what happens in a trial?", tc)
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if got != "Happy to help." {
		t.Errorf("reply = %q", got)
	}

	system := strings.Join(client.lastReq.System, " ")
	if !strings.Contains(system, "gout") || !strings.Contains(system, "tulsa") {
		t.Errorf("system prompt missing session facts: %q", system)
	}
	if !strings.Contains(system, "eligibility check is in progress") {
		t.Errorf("system prompt missing prescreening note: %q", system)
	}

	msgs := client.lastReq.Messages
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want history plus the new turn", len(msgs))
	}
	last := msgs[len(msgs)-1]
	if last.Role != ChatRoleUser || last.Content != "what happens in a trial?" {
		t.Errorf("final message = %+v", last)
	}
}

func TestGenerateReplyErrors(t *testing.T) {
	tests := []struct {
		name   string
		client Client
	}{
		{"transport failure", &fakeClient{err: errors.New("boom")}},
		{"blank reply", &fakeClient{text: "   "}},
		{"nil client", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResponder(tt.client, time.Second)
			if _, err := r.GenerateReply(context.Background(), "hi", TurnContext{}); err == nil {
				t.Fatal("expected an error so the caller falls back")
			}
		})
	}
}

func TestGenerateReplyBoundsTheModelCall(t *testing.T) {
	client := &fakeClient{text: "ok"}
	r := NewResponder(client, time.Second)

	if _, err := r.GenerateReply(context.Background(), "hi", TurnContext{}); err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if !client.bounded {
		t.Error("model call should carry a deadline")
	}
}

func TestContextualFallbackVariesByState(t *testing.T) {
	prescreening := ContextualFallback("awaiting_age")
	location := ContextualFallback("awaiting_location")
	general := ContextualFallback("")

	if prescreening == general || location == general || prescreening == location {
		t.Errorf("fallbacks should differ by state:\n%q\n%q\n%q", prescreening, location, general)
	}
	if !strings.Contains(prescreening, "eligibility") {
		t.Errorf("prescreening fallback = %q, want it to resume the check", prescreening)
	}
}

func TestNilResponderIsSafe(t *testing.T) {
	var r *Responder
	if _, err := r.GenerateReply(context.Background(), "hi", TurnContext{}); err == nil {
		t.Fatal("expected an error from a nil responder")
	}
}
