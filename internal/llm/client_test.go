package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/antoniostano/kvchat/internal/conversation"
)

func TestNewAutoWithoutKeysIsUnavailable(t *testing.T) {
	_, err := New(Config{Provider: "auto"})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("New() error = %v, want ErrModelUnavailable", err)
	}
}

func TestNewAutoPrefersGemini(t *testing.T) {
	c, err := New(Config{GeminiAPIKey: "g", OpenAIAPIKey: "o"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if ProviderName(c) != ProviderGemini {
		t.Fatalf("provider = %q, want gemini", ProviderName(c))
	}

	c, err = New(Config{OpenAIAPIKey: "o"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if ProviderName(c) != ProviderOpenAI {
		t.Fatalf("provider = %q, want openai", ProviderName(c))
	}
}

func TestNewExplicitProviderRequiresKey(t *testing.T) {
	for _, p := range []string{ProviderGemini, ProviderOpenAI} {
		if _, err := New(Config{Provider: p}); !errors.Is(err, ErrModelUnavailable) {
			t.Fatalf("New(%s) error = %v, want ErrModelUnavailable", p, err)
		}
	}
	if _, err := New(Config{Provider: "claude-cli"}); err == nil {
		t.Fatalf("New() expected error for unknown provider")
	}
}

func TestUnavailableClient(t *testing.T) {
	_, err := Unavailable{Reason: errors.New("no key")}.Complete(context.Background(), nil, "x")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("error = %v, want ErrModelUnavailable", err)
	}
}

func TestMockClientRemembersLastUserTurn(t *testing.T) {
	c, err := New(Config{Provider: "mock"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	text, err := c.Complete(context.Background(), conversation.History{
		conversation.UserTurn("my name is Ada"),
		conversation.AssistantTurn("hello Ada"),
	}, "hello")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !strings.Contains(text, "I heard you: hello") || !strings.Contains(text, "my name is Ada") {
		t.Fatalf("unexpected mock reply: %q", text)
	}
}

func TestMockClientCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockClient().Complete(ctx, nil, "x")
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrModelRequestFailed) {
		t.Fatalf("error = %v, want canceled request failure", err)
	}
}
