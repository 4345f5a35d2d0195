// Package storage is the persistence collaborator: it assigns ids and
// timestamps to accepted messages and owns the direct-message channel
// records.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message is a persisted chat message as returned to subscribers, with its
// assigned id and timestamp.
type Message struct {
	ID          uuid.UUID `json:"messageId"`
	RoomID      string    `json:"roomId,omitempty"`
	ChannelID   int64     `json:"channelId,omitempty"`
	UserID      int64     `json:"userId"`
	DisplayName string    `json:"displayName"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	CreatedAt   time.Time `json:"createdAt"`
}

type MessageStore interface {
	SaveRoomMessage(ctx context.Context, roomID string, userID int64, displayName, content, messageType string) (Message, error)
	SaveDirectMessage(ctx context.Context, channelID int64, senderID int64, displayName, content, messageType string) (Message, error)

	// ListRoomMessages returns up to limit of the newest messages for a
	// room, sorted ascending by creation time for display.
	ListRoomMessages(ctx context.Context, roomID string, limit int) ([]Message, error)

	// ListDirectMessages is the direct-channel counterpart of
	// ListRoomMessages.
	ListDirectMessages(ctx context.Context, channelID int64, limit int) ([]Message, error)
}

// ChannelStore resolves the canonical channel for a pair of users.
type ChannelStore interface {
	// ResolveChannel orders the two user ids ascending and returns the
	// existing channel for that pair, creating it atomically on first
	// contact. ResolveChannel(a, b) == ResolveChannel(b, a), including under
	// concurrent first-contact races.
	ResolveChannel(ctx context.Context, userA, userB int64) (int64, error)
}
