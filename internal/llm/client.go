package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antoniostano/kvchat/internal/conversation"
)

var (
	// ErrModelUnavailable means no completion client could be configured.
	ErrModelUnavailable = errors.New("completion model unavailable")
	// ErrModelRequestFailed means a configured client failed on a specific call.
	ErrModelRequestFailed = errors.New("completion request failed")
)

// Client generates the next assistant reply for a conversation.
type Client interface {
	Complete(ctx context.Context, history conversation.History, userText string) (string, error)
}

// RequestError describes a failed completion call. It matches ErrModelRequestFailed.
type RequestError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s completion failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s completion failed: %v", e.Provider, e.Err)
}

func (e *RequestError) Unwrap() []error {
	return []error{ErrModelRequestFailed, e.Err}
}

const (
	ProviderAuto   = "auto"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Config controls client construction.
type Config struct {
	Provider      string
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	Timeout       time.Duration
}

func New(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if mode == "" {
		mode = ProviderAuto
	}

	switch mode {
	case ProviderAuto:
		// Unlike local dev tooling, auto never falls back to the mock: a missing key has
		// to surface as a configuration error to chat users.
		if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
			return NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, cfg.Timeout), nil
		}
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, cfg.Timeout), nil
		}
		return nil, fmt.Errorf("%w: neither GEMINI_API_KEY nor OPENAI_API_KEY is set", ErrModelUnavailable)
	case ProviderGemini:
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY is required for gemini provider", ErrModelUnavailable)
		}
		return NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, cfg.Timeout), nil
	case ProviderOpenAI:
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is required for openai provider", ErrModelUnavailable)
		}
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, cfg.Timeout), nil
	case ProviderMock:
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// ProviderName returns the metrics/log label for c.
func ProviderName(c Client) string {
	if p, ok := c.(interface{ Provider() string }); ok {
		return p.Provider()
	}
	return "unknown"
}

// Unavailable is the Client used when construction failed at startup.
type Unavailable struct {
	Reason error
}

func (u Unavailable) Complete(context.Context, conversation.History, string) (string, error) {
	if u.Reason == nil {
		return "", ErrModelUnavailable
	}
	if errors.Is(u.Reason, ErrModelUnavailable) {
		return "", u.Reason
	}
	return "", fmt.Errorf("%w: %v", ErrModelUnavailable, u.Reason)
}

func (Unavailable) Provider() string { return "unavailable" }

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
