package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/antoniostano/kvchat/internal/conversation"
	"github.com/antoniostano/kvchat/internal/reliability"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient talks to any OpenAI-compatible chat completions API.
type OpenAIClient struct {
	model  string
	client *openai.Client
}

func NewOpenAIClient(apiKey, model, baseURL string, timeout time.Duration) *OpenAIClient {
	if strings.TrimSpace(model) == "" {
		model = DefaultOpenAIModel
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if u := strings.TrimRight(strings.TrimSpace(baseURL), "/"); u != "" {
		cfg.BaseURL = u
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIClient{
		model:  strings.TrimSpace(model),
		client: openai.NewClientWithConfig(cfg),
	}
}

func (c *OpenAIClient) Provider() string { return ProviderOpenAI }

func (c *OpenAIClient) Complete(ctx context.Context, history conversation.History, userText string) (string, error) {
	turns := history.Append(conversation.UserTurn(userText))
	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == conversation.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Text()})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", openAIRequestError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &RequestError{Provider: ProviderOpenAI, Err: errors.New("no choices in response")}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &RequestError{Provider: ProviderOpenAI, Err: errors.New("empty completion")}
	}
	return text, nil
}

func openAIRequestError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return &RequestError{
		Provider:   ProviderOpenAI,
		StatusCode: status,
		Retryable:  reliability.IsRetryableHTTPStatus(status),
		Err:        err,
	}
}
