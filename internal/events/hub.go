package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event summarizes how one webhook update was handled. Text fields are redacted previews.
type Event struct {
	ID           string    `json:"id"`
	Time         time.Time `json:"time"`
	UpdateID     int64     `json:"update_id"`
	ChatID       string    `json:"chat_id,omitempty"`
	Outcome      string    `json:"outcome"`
	UserPreview  string    `json:"user_preview,omitempty"`
	ReplyPreview string    `json:"reply_preview,omitempty"`
	Error        string    `json:"error,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
}

// Subscription receives published events until it is closed by Hub.Unsubscribe.
type Subscription struct {
	ID      string
	C       <-chan Event
	ch      chan Event
	dropped atomic.Int64
}

// Dropped counts events discarded because the subscriber fell behind.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Hub fans events out to live subscribers. Publishing never blocks: a subscriber whose
// buffer is full misses the event.
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]*Subscription
	buffer   int
	closed   bool
	onChange func(active int)
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[string]*Subscription), buffer: buffer}
}

// SetCountHook registers a callback invoked with the subscriber count after it changes.
func (h *Hub) SetCountHook(hook func(active int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = hook
}

func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Event, h.buffer)
	s := &Subscription{ID: uuid.NewString(), C: ch, ch: ch}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return s
	}
	h.subs[s.ID] = s
	n, hook := len(h.subs), h.onChange
	h.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return s
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	s, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(s.ch)
	}
	n, hook := len(h.subs), h.onChange
	h.mu.Unlock()

	if ok && hook != nil {
		hook(n)
	}
}

// Close ends every subscription and rejects new ones. Live feeds see their channel closed.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for id, s := range h.subs {
		delete(h.subs, id)
		close(s.ch)
	}
	hook := h.onChange
	h.mu.Unlock()

	if hook != nil {
		hook(0)
	}
}

func (h *Hub) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
