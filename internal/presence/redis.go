package presence

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a shared Redis instance using the primitive
// set/counter/key operations directly, without MULTI/EXEC. This mirrors the
// availability-over-consistency choice of the design: a crash between steps
// can leave the participant set and the counter out of step.
type RedisStore struct {
	rdb    *redis.Client
	logger *slog.Logger
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		logger: logger.With(slog.String("component", "presence_redis")),
	}
}

func (s *RedisStore) JoinRoom(ctx context.Context, roomID string, userID int64, connID string) error {
	if err := s.rdb.SAdd(ctx, roomParticipantsKey(roomID), connID).Err(); err != nil {
		return fmt.Errorf("join room %s: add participant: %w", roomID, err)
	}
	if err := s.rdb.Incr(ctx, roomParticipantCountKey(roomID)).Err(); err != nil {
		return fmt.Errorf("join room %s: increment count: %w", roomID, err)
	}
	if err := s.rdb.Set(ctx, userSocketKey(userID), connID, 0).Err(); err != nil {
		return fmt.Errorf("join room %s: record active connection: %w", roomID, err)
	}
	if err := s.rdb.Set(ctx, socketUserKey(connID), strconv.FormatInt(userID, 10), 0).Err(); err != nil {
		return fmt.Errorf("join room %s: record reverse mapping: %w", roomID, err)
	}
	if err := s.rdb.SAdd(ctx, userRoomsKey(userID), roomID).Err(); err != nil {
		return fmt.Errorf("join room %s: index user room: %w", roomID, err)
	}

	s.logger.Debug("User joined room",
		slog.Int64("userID", userID),
		slog.String("roomID", roomID),
		slog.String("connID", connID),
	)
	return nil
}

func (s *RedisStore) EnterRoom(ctx context.Context, roomID string, userID int64, connID string) error {
	member, err := s.rdb.SIsMember(ctx, userRoomsKey(userID), roomID).Result()
	if err != nil {
		return fmt.Errorf("enter room %s: membership check: %w", roomID, err)
	}
	if !member {
		return ErrNotParticipant
	}

	if err := s.rdb.SAdd(ctx, roomParticipantsKey(roomID), connID).Err(); err != nil {
		return fmt.Errorf("enter room %s: add participant: %w", roomID, err)
	}
	if err := s.rdb.Set(ctx, userSocketKey(userID), connID, 0).Err(); err != nil {
		return fmt.Errorf("enter room %s: record active connection: %w", roomID, err)
	}
	if err := s.rdb.Set(ctx, socketUserKey(connID), strconv.FormatInt(userID, 10), 0).Err(); err != nil {
		return fmt.Errorf("enter room %s: record reverse mapping: %w", roomID, err)
	}

	s.logger.Debug("User re-entered room",
		slog.Int64("userID", userID),
		slog.String("roomID", roomID),
		slog.String("connID", connID),
	)
	return nil
}

func (s *RedisStore) LeaveRoom(ctx context.Context, roomID string, userID int64, connID string) error {
	if err := s.rdb.SRem(ctx, roomParticipantsKey(roomID), connID).Err(); err != nil {
		return fmt.Errorf("leave room %s: remove participant: %w", roomID, err)
	}
	// The counter is decremented unconditionally; it is not clamped at zero.
	if err := s.rdb.Decr(ctx, roomParticipantCountKey(roomID)).Err(); err != nil {
		return fmt.Errorf("leave room %s: decrement count: %w", roomID, err)
	}
	if err := s.rdb.SRem(ctx, userRoomsKey(userID), roomID).Err(); err != nil {
		return fmt.Errorf("leave room %s: unindex user room: %w", roomID, err)
	}
	if err := s.rdb.Del(ctx, userSocketKey(userID)).Err(); err != nil {
		return fmt.Errorf("leave room %s: clear active connection: %w", roomID, err)
	}
	if err := s.rdb.Del(ctx, socketUserKey(connID)).Err(); err != nil {
		return fmt.Errorf("leave room %s: clear reverse mapping: %w", roomID, err)
	}

	s.logger.Debug("User left room",
		slog.Int64("userID", userID),
		slog.String("roomID", roomID),
		slog.String("connID", connID),
	)
	return nil
}

func (s *RedisStore) IsParticipant(ctx context.Context, roomID string, userID int64) (bool, error) {
	member, err := s.rdb.SIsMember(ctx, userRoomsKey(userID), roomID).Result()
	if err != nil {
		return false, fmt.Errorf("participant check for room %s: %w", roomID, err)
	}
	return member, nil
}

func (s *RedisStore) MarkOffline(ctx context.Context, userID int64, connID string) error {
	if err := s.rdb.Del(ctx, userSocketKey(userID)).Err(); err != nil {
		return fmt.Errorf("mark offline: clear active connection: %w", err)
	}
	if err := s.rdb.Del(ctx, socketUserKey(connID)).Err(); err != nil {
		return fmt.Errorf("mark offline: clear reverse mapping: %w", err)
	}

	s.logger.Debug("User marked offline",
		slog.Int64("userID", userID),
		slog.String("connID", connID),
	)
	return nil
}

func (s *RedisStore) RoomSize(ctx context.Context, roomID string) (int64, error) {
	val, err := s.rdb.Get(ctx, roomParticipantCountKey(roomID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("room size for %s: %w", roomID, err)
	}
	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("room size for %s: malformed counter %q: %w", roomID, val, err)
	}
	return count, nil
}

func (s *RedisStore) UserForConn(ctx context.Context, connID string) (int64, error) {
	val, err := s.rdb.Get(ctx, socketUserKey(connID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("user lookup for connection %s: %w", connID, err)
	}
	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("user lookup for connection %s: malformed value %q: %w", connID, val, err)
	}
	return userID, nil
}
