package telegram

import (
	"strconv"
	"strings"
)

// Update is the subset of the Bot API update payload the webhook consumes.
type Update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *Message `json:"message,omitempty"`
	EditedMessage *Message `json:"edited_message,omitempty"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date,omitempty"`
	Chat      Chat   `json:"chat"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"` // private|group|supergroup|channel
}

type User struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot,omitempty"`
	Username string `json:"username,omitempty"`
}

// TextMessage returns the message carrying user text, or nil when the update has none.
// Edited messages are not answered again.
func (u Update) TextMessage() *Message {
	if u.Message == nil || strings.TrimSpace(u.Message.Text) == "" {
		return nil
	}
	return u.Message
}

// ChatKey is the chat identifier used as the history key.
func (m *Message) ChatKey() string {
	return strconv.FormatInt(m.Chat.ID, 10)
}

// Command returns the bot command at the start of the text ("/restart@mybot x" -> "restart").
func (m *Message) Command() (string, bool) {
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	word := strings.Fields(text)[0][1:]
	if at := strings.IndexByte(word, '@'); at >= 0 {
		word = word[:at]
	}
	if word == "" {
		return "", false
	}
	return strings.ToLower(word), true
}
