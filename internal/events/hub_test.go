package events

import "testing"

func TestPublishReachesSubscribers(t *testing.T) {
	h := NewHub(4)
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish(Event{ChatID: "42", Outcome: "replied"})

	for _, s := range []*Subscription{a, b} {
		e := <-s.C
		if e.ChatID != "42" || e.Outcome != "replied" {
			t.Fatalf("event = %+v", e)
		}
		if e.ID == "" || e.Time.IsZero() {
			t.Fatalf("event missing id/time: %+v", e)
		}
	}
}

func TestPublishDropsWhenSubscriberIsFull(t *testing.T) {
	h := NewHub(1)
	s := h.Subscribe()
	h.Publish(Event{Outcome: "one"})
	h.Publish(Event{Outcome: "two"})

	if got := (<-s.C).Outcome; got != "one" {
		t.Fatalf("first event = %q, want one", got)
	}
	if s.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", s.Dropped())
	}
}

func TestUnsubscribeClosesChannelAndRunsHook(t *testing.T) {
	h := NewHub(1)
	var counts []int
	h.SetCountHook(func(n int) { counts = append(counts, n) })

	s := h.Subscribe()
	h.Unsubscribe(s.ID)
	h.Unsubscribe(s.ID)

	if _, ok := <-s.C; ok {
		t.Fatalf("channel still open after Unsubscribe")
	}
	if h.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", h.Count())
	}
	if len(counts) != 2 || counts[0] != 1 || counts[1] != 0 {
		t.Fatalf("hook counts = %v, want [1 0]", counts)
	}
	h.Publish(Event{Outcome: "after"})
}

func TestCloseEndsSubscriptionsAndRejectsNewOnes(t *testing.T) {
	h := NewHub(4)
	var counts []int
	h.SetCountHook(func(active int) { counts = append(counts, active) })
	s := h.Subscribe()

	h.Close()
	h.Close()
	if _, ok := <-s.C; ok {
		t.Fatalf("expected subscription channel closed")
	}
	if h.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", h.Count())
	}
	if len(counts) != 2 || counts[1] != 0 {
		t.Fatalf("hook counts = %v, want [1 0]", counts)
	}

	late := h.Subscribe()
	if _, ok := <-late.C; ok {
		t.Fatalf("expected subscription after Close to be closed")
	}
	h.Unsubscribe(late.ID)
	h.Publish(Event{Outcome: "replied"})
}
