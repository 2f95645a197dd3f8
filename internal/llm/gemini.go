package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/antoniostano/kvchat/internal/conversation"
	"github.com/antoniostano/kvchat/internal/reliability"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-1.5-flash"
)

// GeminiClient calls the Generative Language generateContent endpoint.
type GeminiClient struct {
	model string
	http  *resty.Client
}

func NewGeminiClient(apiKey, model, baseURL string, timeout time.Duration) *GeminiClient {
	if strings.TrimSpace(model) == "" {
		model = DefaultGeminiModel
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &GeminiClient{
		model: strings.TrimSpace(model),
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("x-goog-api-key", strings.TrimSpace(apiKey)),
	}
}

func (c *GeminiClient) Provider() string { return ProviderGemini }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *GeminiClient) Complete(ctx context.Context, history conversation.History, userText string) (string, error) {
	req := geminiRequest{Contents: make([]geminiContent, 0, len(history)+1)}
	for _, t := range history.Append(conversation.UserTurn(userText)) {
		parts := make([]geminiPart, 0, len(t.Parts))
		for _, p := range t.Parts {
			parts = append(parts, geminiPart{Text: p.Text})
		}
		req.Contents = append(req.Contents, geminiContent{Role: geminiRole(t.Role), Parts: parts})
	}

	var (
		out    geminiResponse
		apiErr geminiErrorResponse
	)
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1beta/models/" + url.PathEscape(c.model) + ":generateContent")
	if err != nil {
		return "", &RequestError{Provider: ProviderGemini, Err: err}
	}
	if res.IsError() {
		detail := strings.TrimSpace(apiErr.Error.Message)
		if detail == "" {
			detail = truncate(res.String(), 400)
		}
		return "", &RequestError{
			Provider:   ProviderGemini,
			StatusCode: res.StatusCode(),
			Retryable:  reliability.IsRetryableHTTPStatus(res.StatusCode()),
			Err:        errors.New(detail),
		}
	}

	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", &RequestError{Provider: ProviderGemini, Err: fmt.Errorf("prompt blocked: %s", out.PromptFeedback.BlockReason)}
	}
	if len(out.Candidates) == 0 {
		return "", &RequestError{Provider: ProviderGemini, Err: errors.New("no candidates in response")}
	}

	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", &RequestError{
			Provider: ProviderGemini,
			Err:      fmt.Errorf("empty candidate (finish reason %q)", out.Candidates[0].FinishReason),
		}
	}
	return text, nil
}

func geminiRole(r conversation.Role) string {
	if r == conversation.RoleAssistant {
		return "model"
	}
	return "user"
}
