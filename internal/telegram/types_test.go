package telegram

import (
	"encoding/json"
	"testing"
)

func TestDecodeUpdate(t *testing.T) {
	raw := `{"update_id":10,"message":{"message_id":5,"date":1700000000,"chat":{"id":-1001,"type":"group"},"from":{"id":7,"username":"ada"},"text":"/restart@kv_bot now"}}`
	var u Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	m := u.TextMessage()
	if m == nil {
		t.Fatalf("TextMessage() = nil")
	}
	if m.ChatKey() != "-1001" {
		t.Fatalf("ChatKey() = %q", m.ChatKey())
	}
	cmd, ok := m.Command()
	if !ok || cmd != "restart" {
		t.Fatalf("Command() = %q, %v", cmd, ok)
	}
}

func TestTextMessageIgnoresNonText(t *testing.T) {
	cases := []Update{
		{UpdateID: 1},
		{UpdateID: 2, Message: &Message{Chat: Chat{ID: 1}}},
		{UpdateID: 3, Message: &Message{Chat: Chat{ID: 1}, Text: "   "}},
		{UpdateID: 4, EditedMessage: &Message{Chat: Chat{ID: 1}, Text: "edited"}},
	}
	for _, u := range cases {
		if m := u.TextMessage(); m != nil {
			t.Fatalf("update %d: TextMessage() = %+v, want nil", u.UpdateID, m)
		}
	}
}

func TestCommandPlainText(t *testing.T) {
	for _, text := range []string{"hello", "/", " not /a command"} {
		m := &Message{Text: text}
		if cmd, ok := m.Command(); ok {
			t.Fatalf("Command(%q) = %q, want none", text, cmd)
		}
	}
}
