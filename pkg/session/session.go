package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport is the outbound side of a live connection. Satisfied by
// *transport.Connection; tests substitute a recorder.
type Transport interface {
	Send(message []byte)
	Close(err error)
}

// Session is the fully-typed per-connection state. Identity fields are set
// once at authentication and never mutated afterwards.
type Session struct {
	ConnID      uuid.UUID
	UserID      int64
	DisplayName string
	CreatedAt   time.Time
	Transport   Transport

	mu       sync.Mutex
	channels map[string]struct{}
}

func New(connID uuid.UUID, userID int64, displayName string, tr Transport) *Session {
	return &Session{
		ConnID:      connID,
		UserID:      userID,
		DisplayName: displayName,
		CreatedAt:   time.Now(),
		Transport:   tr,
		channels:    make(map[string]struct{}),
	}
}

func (s *Session) subscribe(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channelID] = struct{}{}
}

func (s *Session) unsubscribe(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, channelID)
}

// Channels returns a snapshot of the session's local subscriptions.
func (s *Session) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for id := range s.channels {
		out = append(out, id)
	}
	return out
}

func (s *Session) Subscribed(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[channelID]
	return ok
}
