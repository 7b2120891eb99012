// Package stream fans loan and catalog activity out to live subscribers,
// feeding the admin dashboard's SSE endpoint.
package stream

import (
	"context"
	"sync"
	"time"
)

// Actions carried by activity events.
const (
	ActionBorrowed = "borrowed"
	ActionReturned = "returned"
	ActionExpired  = "expired"
	ActionReviewed = "reviewed"
	ActionUploaded = "uploaded"
)

// Event describes one piece of library activity.
type Event struct {
	Action    string    `json:"action"`
	UserID    string    `json:"user_id,omitempty"`
	BookID    string    `json:"book_id,omitempty"`
	BookTitle string    `json:"book_title,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs activity events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers. A zero timestamp is stamped
// with the current time.
func (s *Stream) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Subscribers reports how many clients are currently attached.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
