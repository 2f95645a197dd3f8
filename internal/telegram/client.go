package telegram

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultAPIBase = "https://api.telegram.org"

	// MaxMessageUnits is the Bot API limit for one sendMessage text, in UTF-16 code units.
	MaxMessageUnits = 4096

	ActionTyping = "typing"
)

// Client is a minimal Telegram Bot API client.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the given bot token. apiBase defaults to the public Bot API.
func NewClient(apiBase, token string, timeout time.Duration) *Client {
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http: resty.New().
			SetBaseURL(apiBase+"/bot"+strings.TrimSpace(token)).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

// Response is the generic Bot API response wrapper.
type Response struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

// APIError is returned when the Bot API answers with ok=false.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (status %d): %s", e.Method, e.StatusCode, e.Description)
}

func (c *Client) call(ctx context.Context, method string, payload any) error {
	var out Response
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		SetError(&out).
		Post("/" + method)
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	if res.IsError() || !out.OK {
		desc := out.Description
		if desc == "" {
			desc = truncate(res.String(), 300)
		}
		return &APIError{Method: method, StatusCode: res.StatusCode(), Description: desc}
	}
	return nil
}

// SendMessage sends text to the chat, split into several messages when it exceeds the API limit.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range SplitText(text, MaxMessageUnits) {
		payload := map[string]any{"chat_id": chatID, "text": chunk}
		if err := c.call(ctx, "sendMessage", payload); err != nil {
			return err
		}
	}
	return nil
}

// SendChatAction shows a status such as "typing" to the chat.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	return c.call(ctx, "sendChatAction", map[string]any{"chat_id": chatID, "action": action})
}

// SetWebhook registers url as the update endpoint. secret is echoed back by Telegram in the
// X-Telegram-Bot-Api-Secret-Token header of every update.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	payload := map[string]any{
		"url":             url,
		"allowed_updates": []string{"message"},
	}
	if secret != "" {
		payload["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", payload)
}

// SecretHeader carries the webhook secret on inbound updates.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// VerifySecret reports whether the inbound header matches the configured secret.
// An empty secret disables the check.
func VerifySecret(header, secret string) bool {
	if secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(secret)) == 1
}

// SplitText breaks text into chunks of at most limit UTF-16 code units, the unit the Bot
// API measures message length in, preferring line breaks.
func SplitText(text string, limit int) []string {
	if limit <= 0 || utf16Len(text) <= limit {
		return []string{text}
	}
	runes := []rune(text)
	var out []string
	for len(runes) > 0 {
		units, end, lineBreak := 0, 0, 0
		for end < len(runes) {
			n := runeUnits(runes[end])
			if units+n > limit {
				break
			}
			units += n
			end++
			if runes[end-1] == '\n' && units > limit/2 {
				lineBreak = end
			}
		}
		if end == len(runes) {
			out = append(out, string(runes))
			break
		}
		if end == 0 {
			end = 1
		}
		cut := end
		if lineBreak > 0 {
			cut = lineBreak
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	return out
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

func runeUnits(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
