package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/kvchat/internal/conversation"
)

// MockClient provides deterministic local replies when no model is wired up.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Provider() string { return ProviderMock }

func (c *MockClient) Complete(ctx context.Context, history conversation.History, userText string) (string, error) {
	select {
	case <-ctx.Done():
		return "", &RequestError{Provider: ProviderMock, Err: ctx.Err()}
	default:
	}
	return buildMockReply(history, userText), nil
}

func buildMockReply(history conversation.History, userText string) string {
	base := strings.TrimSpace(userText)
	if base == "" {
		base = "..."
	}

	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != conversation.RoleUser {
			continue
		}
		last := strings.TrimSpace(history[i].Text())
		if last == "" {
			break
		}
		return fmt.Sprintf("I heard you: %s\nI also remember: %s", base, last)
	}
	return fmt.Sprintf("I heard you: %s", base)
}
