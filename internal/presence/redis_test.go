package presence

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	return NewRedisStore(rdb, logger)
}

func TestJoinLeaveRoom(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	req.NoError(s.JoinRoom(ctx, "42", 7, "conn-a"))

	in, err := s.IsParticipant(ctx, "42", 7)
	req.NoError(err)
	req.True(in)

	size, err := s.RoomSize(ctx, "42")
	req.NoError(err)
	req.EqualValues(1, size)

	userID, err := s.UserForConn(ctx, "conn-a")
	req.NoError(err)
	req.EqualValues(7, userID)

	req.NoError(s.LeaveRoom(ctx, "42", 7, "conn-a"))

	in, err = s.IsParticipant(ctx, "42", 7)
	req.NoError(err)
	req.False(in)

	size, err = s.RoomSize(ctx, "42")
	req.NoError(err)
	req.EqualValues(0, size)

	userID, err = s.UserForConn(ctx, "conn-a")
	req.NoError(err)
	req.Zero(userID)
}

func TestEnterRoomRequiresMembership(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	err := s.EnterRoom(ctx, "42", 7, "conn-a")
	req.ErrorIs(err, ErrNotParticipant)

	// The failed guard must not have mutated anything.
	size, err := s.RoomSize(ctx, "42")
	req.NoError(err)
	req.Zero(size)
	userID, err := s.UserForConn(ctx, "conn-a")
	req.NoError(err)
	req.Zero(userID)
}

func TestEnterRoomReattachesWithoutIncrement(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	req.NoError(s.JoinRoom(ctx, "42", 7, "conn-a"))

	// Reconnect with a fresh connection id.
	req.NoError(s.EnterRoom(ctx, "42", 7, "conn-b"))

	size, err := s.RoomSize(ctx, "42")
	req.NoError(err)
	req.EqualValues(1, size, "enter must not re-increment the counter")

	userID, err := s.UserForConn(ctx, "conn-b")
	req.NoError(err)
	req.EqualValues(7, userID)
}

func TestMarkOfflineKeepsMembership(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	req.NoError(s.JoinRoom(ctx, "42", 7, "conn-a"))
	req.NoError(s.MarkOffline(ctx, 7, "conn-a"))

	// Disconnect is not leave: the room index survives.
	in, err := s.IsParticipant(ctx, "42", 7)
	req.NoError(err)
	req.True(in)

	userID, err := s.UserForConn(ctx, "conn-a")
	req.NoError(err)
	req.Zero(userID)
}

func TestDoubleJoinDriftsCounter(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	// The set add is idempotent, the counter increment is not. The drift is
	// part of the observable contract.
	req.NoError(s.JoinRoom(ctx, "42", 7, "conn-a"))
	req.NoError(s.JoinRoom(ctx, "42", 7, "conn-a"))

	size, err := s.RoomSize(ctx, "42")
	req.NoError(err)
	req.EqualValues(2, size)
}

func TestLeaveEmptyRoomGoesNegative(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	// No clamping at zero.
	req.NoError(s.LeaveRoom(ctx, "42", 7, "conn-a"))

	size, err := s.RoomSize(ctx, "42")
	req.NoError(err)
	req.EqualValues(-1, size)
}

func TestRoomSizeMissingRoom(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	size, err := s.RoomSize(context.Background(), "no-such-room")
	req.NoError(err)
	req.Zero(size)
}
