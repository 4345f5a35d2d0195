// Package presence tracks live room membership in shared state. All server
// processes read and write the same keys; no process owns a room.
package presence

import (
	"context"
	"errors"
)

// ErrNotParticipant rejects EnterRoom for a user who never joined the room.
// It is raised before any state mutation.
var ErrNotParticipant = errors.New("not a participant in this room")

// Store is the shared presence state. Operations on missing keys behave as
// empty set / zero count; only EnterRoom's membership guard errors.
//
// Each method issues individually atomic primitive operations without a
// surrounding transaction. The participant counter is adjusted independently
// of the participant set, so the two can drift under concurrent or repeated
// calls; callers must not call JoinRoom twice for a still-joined connection.
type Store interface {
	// JoinRoom adds the connection to the room's participant set, increments
	// the participant counter, records the user's active connection (last
	// writer wins) and indexes the room under the user.
	JoinRoom(ctx context.Context, roomID string, userID int64, connID string) error

	// EnterRoom re-attaches a new connection for a user who is already a
	// member, without touching the counter. Fails with ErrNotParticipant
	// before any mutation if the user never joined the room.
	EnterRoom(ctx context.Context, roomID string, userID int64, connID string) error

	// LeaveRoom removes the connection from the participant set, decrements
	// the counter (no clamping at zero), unindexes the room and clears the
	// user's active-connection mapping.
	LeaveRoom(ctx context.Context, roomID string, userID int64, connID string) error

	// IsParticipant reports whether the room is indexed under the user.
	IsParticipant(ctx context.Context, roomID string, userID int64) (bool, error)

	// MarkOffline clears the user's active-connection and reverse mapping on
	// disconnect. Room memberships are left untouched: disconnect is not
	// leave.
	MarkOffline(ctx context.Context, userID int64, connID string) error

	// RoomSize returns the participant counter, zero when absent.
	RoomSize(ctx context.Context, roomID string) (int64, error)

	// UserForConn resolves the reverse connection mapping, zero when absent.
	UserForConn(ctx context.Context, connID string) (int64, error)
}
