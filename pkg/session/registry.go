package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks the sessions attached to this process and which
// room/channel ids each one is locally subscribed to. It is the local half
// of presence; the shared half lives in the presence store.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	byUser   map[int64]map[uuid.UUID]*Session
	channels map[string]map[uuid.UUID]*Session

	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		byUser:   make(map[int64]map[uuid.UUID]*Session),
		channels: make(map[string]map[uuid.UUID]*Session),
		logger:   logger.With(slog.String("component", "session_registry")),
	}
}

func (r *Registry) Register(sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sess.ConnID]; exists {
		return errors.New("session is already registered")
	}
	r.sessions[sess.ConnID] = sess
	userConns, ok := r.byUser[sess.UserID]
	if !ok {
		userConns = make(map[uuid.UUID]*Session)
		r.byUser[sess.UserID] = userConns
	}
	userConns[sess.ConnID] = sess

	r.logger.Debug("Session registered", slog.String("connID", sess.ConnID.String()), slog.Int64("userID", sess.UserID))
	return nil
}

// Deregister removes a session and all of its local subscriptions, returning
// the removed session so the caller can run disconnect cleanup. Returns nil
// if the session was already gone.
func (r *Registry) Deregister(connID uuid.UUID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return nil
	}
	delete(r.sessions, connID)

	if userConns, ok := r.byUser[sess.UserID]; ok {
		delete(userConns, connID)
		if len(userConns) == 0 {
			delete(r.byUser, sess.UserID)
		}
	}
	for _, channelID := range sess.Channels() {
		r.dropSubscriber(channelID, connID)
	}

	r.logger.Debug("Session deregistered", slog.String("connID", connID.String()))
	return sess
}

func (r *Registry) Get(connID uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[connID]
	return sess, ok
}

// Subscribe marks a session as a local subscriber of a room/channel id.
// Subscribing twice is a no-op.
func (r *Registry) Subscribe(connID uuid.UUID, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return errors.New("cannot subscribe unknown session")
	}
	subs, ok := r.channels[channelID]
	if !ok {
		subs = make(map[uuid.UUID]*Session)
		r.channels[channelID] = subs
	}
	subs[connID] = sess
	sess.subscribe(channelID)
	return nil
}

func (r *Registry) Unsubscribe(connID uuid.UUID, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[connID]; ok {
		sess.unsubscribe(channelID)
	}
	r.dropSubscriber(channelID, connID)
}

// dropSubscriber must be called with the registry lock held.
func (r *Registry) dropSubscriber(channelID string, connID uuid.UUID) {
	subs, ok := r.channels[channelID]
	if !ok {
		return
	}
	delete(subs, connID)
	if len(subs) == 0 {
		delete(r.channels, channelID)
	}
}

// Subscribers returns the local sessions subscribed to a room/channel id.
func (r *Registry) Subscribers(channelID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.channels[channelID]
	out := make([]*Session, 0, len(subs))
	for _, sess := range subs {
		out = append(out, sess)
	}
	return out
}

func (r *Registry) UserConnectionCount(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// OldestUserConnection is used by the connection limiter's cycle mode.
func (r *Registry) OldestUserConnection(userID int64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var oldest *Session
	for _, sess := range r.byUser[userID] {
		if oldest == nil || sess.CreatedAt.Before(oldest.CreatedAt) {
			oldest = sess
		}
	}
	return oldest, oldest != nil
}

func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}
