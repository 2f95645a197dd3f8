package conversation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSerialization is returned when a stored record does not match the turn schema.
var ErrSerialization = errors.New("conversation: malformed history record")

// Stored role names. Assistant turns are written as "model", the completion API's own name
// for them; "assistant" is accepted on read.
const (
	wireRoleUser      = "user"
	wireRoleModel     = "model"
	wireRoleAssistant = "assistant"
)

type wireTurn struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text *string `json:"text"`
}

// Marshal encodes the history as a JSON array of {role, parts:[{text}]} objects.
func Marshal(h History) ([]byte, error) {
	out := make([]wireTurn, 0, len(h))
	for i, t := range h {
		role, err := wireRole(t.Role)
		if err != nil {
			return nil, fmt.Errorf("%w: turn %d: %v", ErrSerialization, i, err)
		}
		parts := make([]wirePart, 0, len(t.Parts))
		for _, p := range t.Parts {
			text := p.Text
			parts = append(parts, wirePart{Text: &text})
		}
		out = append(out, wireTurn{Role: role, Parts: parts})
	}
	return json.Marshal(out)
}

// Unmarshal decodes a stored record. Empty input yields an empty history.
func Unmarshal(data []byte) (History, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return History{}, nil
	}
	if data[0] != '[' {
		return nil, fmt.Errorf("%w: top level is not an array", ErrSerialization)
	}

	var raw []wireTurn
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	h := make(History, 0, len(raw))
	for i, wt := range raw {
		role, err := parseRole(wt.Role)
		if err != nil {
			return nil, fmt.Errorf("%w: turn %d: %v", ErrSerialization, i, err)
		}
		if wt.Parts == nil {
			return nil, fmt.Errorf("%w: turn %d: missing parts", ErrSerialization, i)
		}
		parts := make([]Part, 0, len(wt.Parts))
		for j, p := range wt.Parts {
			if p.Text == nil {
				return nil, fmt.Errorf("%w: turn %d part %d: missing text", ErrSerialization, i, j)
			}
			parts = append(parts, Part{Text: *p.Text})
		}
		h = append(h, Turn{Role: role, Parts: parts})
	}
	return h, nil
}

func wireRole(r Role) (string, error) {
	switch r {
	case RoleUser:
		return wireRoleUser, nil
	case RoleAssistant:
		return wireRoleModel, nil
	default:
		return "", fmt.Errorf("unknown role %q", string(r))
	}
}

func parseRole(s string) (Role, error) {
	switch s {
	case wireRoleUser:
		return RoleUser, nil
	case wireRoleModel, wireRoleAssistant:
		return RoleAssistant, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}
