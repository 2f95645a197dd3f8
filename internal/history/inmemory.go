package history

import (
	"context"
	"sync"

	"github.com/antoniostano/kvchat/internal/conversation"
)

// InMemoryStore is a simple in-process store for local/dev use. Records are kept encoded so
// reads go through the same codec as the remote backends.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]byte)}
}

func (s *InMemoryStore) Fetch(_ context.Context, chatID string) (conversation.History, error) {
	s.mu.RLock()
	raw, ok := s.records[chatID]
	s.mu.RUnlock()
	if !ok {
		return conversation.History{}, nil
	}
	return conversation.Unmarshal(raw)
}

func (s *InMemoryStore) Replace(_ context.Context, chatID string, h conversation.History) error {
	payload, err := conversation.Marshal(h)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[chatID] = payload
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, chatID)
	return nil
}

// Raw returns the stored bytes for chatID.
func (s *InMemoryStore) Raw(chatID string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.records[chatID]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, true
}

// Put stores raw bytes for chatID without validation.
func (s *InMemoryStore) Put(chatID string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[chatID] = append([]byte(nil), raw...)
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }
