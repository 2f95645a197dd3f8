package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/antoniostano/kvchat/internal/conversation"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	return newTestRedisStoreWithPrefix(t, "test:h:", ttl)
}

func newTestRedisStoreWithPrefix(t *testing.T, prefix string, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), "redis://"+mr.Addr()+"/0", prefix, ttl)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStoreContract(t *testing.T) {
	s, _ := newTestRedisStore(t, 0)
	runStoreContract(t, s)
}

func TestRedisStoreWritesDocumentedLayout(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	h := conversation.History{conversation.UserTurn("hello"), conversation.AssistantTurn("hi there")}
	if err := s.Replace(context.Background(), "42", h); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	got, err := mr.Get("test:h:42")
	if err != nil {
		t.Fatalf("miniredis Get() error = %v", err)
	}
	want := `[{"role":"user","parts":[{"text":"hello"}]},{"role":"model","parts":[{"text":"hi there"}]}]`
	if got != want {
		t.Fatalf("stored = %s, want %s", got, want)
	}
	if ttl := mr.TTL("test:h:42"); ttl != 0 {
		t.Fatalf("TTL = %v, want none", ttl)
	}
}

func TestRedisStoreAppliesTTL(t *testing.T) {
	s, mr := newTestRedisStore(t, time.Hour)
	if err := s.Replace(context.Background(), "1", conversation.History{conversation.UserTurn("x")}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if ttl := mr.TTL("test:h:1"); ttl != time.Hour {
		t.Fatalf("TTL = %v, want 1h", ttl)
	}
	mr.FastForward(2 * time.Hour)
	h, err := s.Fetch(context.Background(), "1")
	if err != nil || len(h) != 0 {
		t.Fatalf("Fetch() after expiry = %+v, %v; want empty", h, err)
	}
}

func TestRedisStoreReadsRecordUnderBareChatID(t *testing.T) {
	s, mr := newTestRedisStoreWithPrefix(t, "", 0)
	_ = mr.Set("5", `[{"role": "user", "parts": [{"text": "hey"}]}, {"role": "model", "parts": [{"text": "yo"}, {"text": "!"}]}]`)
	h, err := s.Fetch(context.Background(), "5")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(h) != 2 || h[0].Text() != "hey" || h[1].Role != conversation.RoleAssistant || h[1].Text() != "yo!" {
		t.Fatalf("Fetch() = %+v", h)
	}

	h = h.Append(conversation.UserTurn("again"), conversation.AssistantTurn("sure"))
	if err := s.Replace(context.Background(), "5", h); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	keys := mr.Keys()
	if len(keys) != 1 || keys[0] != "5" {
		t.Fatalf("keys = %v, want only the chat id", keys)
	}
}

func TestRedisStoreEmptyPrefixUsesChatIDAsKey(t *testing.T) {
	s, mr := newTestRedisStoreWithPrefix(t, "", 0)
	if err := s.Replace(context.Background(), "42", conversation.History{conversation.UserTurn("hello"), conversation.AssistantTurn("hi there")}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if !mr.Exists("42") {
		t.Fatalf("record not stored under bare chat id; keys = %v", mr.Keys())
	}
	if err := s.Clear(context.Background(), "42"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if mr.Exists("42") {
		t.Fatalf("record still present after Clear")
	}
}

func TestRedisStoreMalformedRecord(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	_ = mr.Set("test:h:5", `{"not":"a list"}`)
	if _, err := s.Fetch(context.Background(), "5"); !errors.Is(err, ErrSerialization) {
		t.Fatalf("Fetch() error = %v, want ErrSerialization", err)
	}
}

func TestRedisStoreIOErrorAfterServerGone(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.Fetch(ctx, "1"); !errors.Is(err, ErrStoreIO) {
		t.Fatalf("Fetch() error = %v, want ErrStoreIO", err)
	}
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := NewRedisStore(context.Background(), "redis://"+addr, "", 0)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("NewRedisStore() error = %v, want ErrStoreUnavailable", err)
	}
}

func TestBuildUniversalOptionsCluster(t *testing.T) {
	opts, err := buildUniversalOptions("redis://:secret@a:6379/2, b:6380")
	if err != nil {
		t.Fatalf("buildUniversalOptions() error = %v", err)
	}
	if len(opts.Addrs) != 2 || opts.Addrs[0] != "a:6379" || opts.Addrs[1] != "b:6380" {
		t.Fatalf("Addrs = %v", opts.Addrs)
	}
	if opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("Password/DB = %q/%d", opts.Password, opts.DB)
	}
	if _, err := buildUniversalOptions(" , "); err == nil {
		t.Fatalf("expected error for empty address list")
	}
}

func TestOpenPicksRedisFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	s, l, err := Open(context.Background(), Options{RedisURL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()
	if _, ok := s.(*RedisStore); !ok {
		t.Fatalf("store type = %T, want *RedisStore", s)
	}
	if _, ok := l.(*RedisLocker); !ok {
		t.Fatalf("locker type = %T, want *RedisLocker", l)
	}
}
