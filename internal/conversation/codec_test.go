package conversation

import (
	"errors"
	"reflect"
	"testing"
)

func TestMarshalUsesStoredRoleNames(t *testing.T) {
	h := History{UserTurn("hello"), AssistantTurn("hi there")}
	got, err := Marshal(h)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `[{"role":"user","parts":[{"text":"hello"}]},{"role":"model","parts":[{"text":"hi there"}]}]`
	if string(got) != want {
		t.Fatalf("Marshal() = %s, want %s", got, want)
	}
}

func TestRoundTripPreservesMultiPartTurns(t *testing.T) {
	h := History{
		UserTurn("first"),
		{Role: RoleAssistant, Parts: []Part{{Text: "a"}, {Text: ""}, {Text: "b"}}},
		UserTurn("second"),
		UserTurn("dangling user turn after a crash"),
	}
	raw, err := Marshal(h)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	back, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(back, h) {
		t.Fatalf("round trip = %+v, want %+v", back, h)
	}
	if back[1].Text() != "ab" {
		t.Fatalf("Text() = %q, want %q", back[1].Text(), "ab")
	}
}

func TestUnmarshalEmptyRecord(t *testing.T) {
	for _, in := range []string{"", "  ", "null", "[]"} {
		h, err := Unmarshal([]byte(in))
		if err != nil {
			t.Fatalf("Unmarshal(%q) error = %v", in, err)
		}
		if len(h) != 0 {
			t.Fatalf("Unmarshal(%q) = %+v, want empty", in, h)
		}
	}
}

func TestUnmarshalAcceptsAssistantAlias(t *testing.T) {
	h, err := Unmarshal([]byte(`[{"role":"assistant","parts":[{"text":"ok"}]}]`))
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if h[0].Role != RoleAssistant {
		t.Fatalf("role = %q, want %q", h[0].Role, RoleAssistant)
	}
}

func TestUnmarshalRejectsMalformedRecords(t *testing.T) {
	cases := map[string]string{
		"object":        `{"role":"user"}`,
		"bad json":      `[{"role":`,
		"unknown role":  `[{"role":"system","parts":[{"text":"x"}]}]`,
		"missing parts": `[{"role":"user"}]`,
		"missing text":  `[{"role":"user","parts":[{}]}]`,
		"wrong type":    `[{"role":"user","parts":"x"}]`,
	}
	for name, in := range cases {
		_, err := Unmarshal([]byte(in))
		if !errors.Is(err, ErrSerialization) {
			t.Fatalf("%s: error = %v, want ErrSerialization", name, err)
		}
	}
}

func TestMarshalRejectsUnknownRole(t *testing.T) {
	_, err := Marshal(History{{Role: "system", Parts: []Part{{Text: "x"}}}})
	if !errors.Is(err, ErrSerialization) {
		t.Fatalf("error = %v, want ErrSerialization", err)
	}
}
