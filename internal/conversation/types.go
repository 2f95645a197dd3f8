package conversation

import "strings"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Part is one text segment of a turn. Model replies may arrive in several parts.
type Part struct {
	Text string
}

// Turn stores a single user or assistant message.
type Turn struct {
	Role  Role
	Parts []Part
}

func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Parts: []Part{{Text: text}}}
}

func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Parts: []Part{{Text: text}}}
}

// Text joins all parts of the turn.
func (t Turn) Text() string {
	if len(t.Parts) == 1 {
		return t.Parts[0].Text
	}
	var b strings.Builder
	for _, p := range t.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// History is the chronological list of turns for one chat.
type History []Turn

// Append returns a new history with turns added at the end. The receiver is not modified.
func (h History) Append(turns ...Turn) History {
	out := make(History, 0, len(h)+len(turns))
	out = append(out, h...)
	out = append(out, turns...)
	return out
}

// Window caps the history at maxTurns, keeping the first `pinned` turns and dropping the
// oldest turns after them in whole user/assistant pairs. The pinned head and the newest
// pair always survive, even when maxTurns is too small to hold both. maxTurns <= 0 means
// unbounded.
func (h History) Window(maxTurns, pinned int) History {
	if maxTurns <= 0 || len(h) <= maxTurns {
		return h
	}
	pinned = min(max(pinned, 0), len(h))
	tail := h[pinned:]
	budget := max(maxTurns-pinned, 2)
	drop := len(tail) - budget
	if drop%2 != 0 {
		drop++
	}
	drop = min(drop, len(tail)-2)
	if drop <= 0 {
		return h
	}
	out := make(History, 0, pinned+len(tail)-drop)
	out = append(out, h[:pinned]...)
	out = append(out, tail[drop:]...)
	return out
}
