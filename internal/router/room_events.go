package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dltjwls02/ON-AIR-mate/internal/presence"
	"github.com/dltjwls02/ON-AIR-mate/pkg/session"
)

const defaultHistoryLimit = 50

func (r *EventRouter) handleJoinRoom(ctx context.Context, sess *session.Session, payload json.RawMessage) error {
	if err := requireFields(payload, "roomId", "displayName"); err != nil {
		return err
	}
	var p joinRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode joinRoom payload: %w", err)
	}

	if err := r.presence.JoinRoom(ctx, p.RoomID, sess.UserID, sess.ConnID.String()); err != nil {
		return err
	}
	if err := r.registry.Subscribe(sess.ConnID, roomChannel(p.RoomID)); err != nil {
		return err
	}

	count, err := r.presence.RoomSize(ctx, p.RoomID)
	if err != nil {
		return err
	}
	r.logger.Info("User joined room",
		slog.Int64("userID", sess.UserID),
		slog.String("roomID", p.RoomID),
		slog.Int64("participantCount", count),
	)
	return r.broadcast(ctx, roomChannel(p.RoomID), "userJoined", userJoinedPayload{
		DisplayName:      p.DisplayName,
		ParticipantCount: count,
	}, sess, false)
}

func (r *EventRouter) handleEnterRoom(ctx context.Context, sess *session.Session, payload json.RawMessage) error {
	if err := requireFields(payload, "roomId", "displayName"); err != nil {
		return err
	}
	var p joinRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode enterRoom payload: %w", err)
	}

	// EnterRoom guards membership itself and rejects before mutating.
	if err := r.presence.EnterRoom(ctx, p.RoomID, sess.UserID, sess.ConnID.String()); err != nil {
		return err
	}
	if err := r.registry.Subscribe(sess.ConnID, roomChannel(p.RoomID)); err != nil {
		return err
	}

	r.logger.Info("User re-entered room",
		slog.Int64("userID", sess.UserID),
		slog.String("roomID", p.RoomID),
	)
	return nil
}

func (r *EventRouter) handleSendRoomMessage(ctx context.Context, sess *session.Session, payload json.RawMessage) error {
	if err := requireFields(payload, "roomId", "displayName", "content", "messageType"); err != nil {
		return err
	}
	var p sendRoomMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode sendRoomMessage payload: %w", err)
	}

	in, err := r.presence.IsParticipant(ctx, p.RoomID, sess.UserID)
	if err != nil {
		return err
	}
	if !in {
		return fmt.Errorf("send to room %s: %w", p.RoomID, presence.ErrNotParticipant)
	}

	// Persist first; the broadcast carries the assigned id and timestamp.
	msg, err := r.messages.SaveRoomMessage(ctx, p.RoomID, sess.UserID, p.DisplayName, p.Content, p.MessageType)
	if err != nil {
		return fmt.Errorf("persist room message: %w", err)
	}

	// The sender is a room subscriber like everyone else and receives its
	// own message back.
	return r.broadcast(ctx, roomChannel(p.RoomID), "receiveMessage", receiveMessagePayload{Message: msg}, sess, false)
}

func (r *EventRouter) handleLeaveRoom(ctx context.Context, sess *session.Session, payload json.RawMessage) error {
	if err := requireFields(payload, "roomId"); err != nil {
		return err
	}
	var p leaveRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode leaveRoom payload: %w", err)
	}

	if err := r.presence.LeaveRoom(ctx, p.RoomID, sess.UserID, sess.ConnID.String()); err != nil {
		return err
	}
	r.registry.Unsubscribe(sess.ConnID, roomChannel(p.RoomID))

	r.logger.Info("User left room",
		slog.Int64("userID", sess.UserID),
		slog.String("roomID", p.RoomID),
	)
	return r.broadcast(ctx, roomChannel(p.RoomID), "userLeft", userLeftPayload{
		UserID:       sess.UserID,
		ConnectionID: sess.ConnID.String(),
	}, sess, false)
}

func (r *EventRouter) handleRoomHistory(ctx context.Context, sess *session.Session, payload json.RawMessage) error {
	if err := requireFields(payload, "roomId"); err != nil {
		return err
	}
	var p roomHistoryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode roomHistory payload: %w", err)
	}
	if p.Limit <= 0 {
		p.Limit = defaultHistoryLimit
	}

	in, err := r.presence.IsParticipant(ctx, p.RoomID, sess.UserID)
	if err != nil {
		return err
	}
	if !in {
		return fmt.Errorf("history for room %s: %w", p.RoomID, presence.ErrNotParticipant)
	}

	messages, err := r.messages.ListRoomMessages(ctx, p.RoomID, p.Limit)
	if err != nil {
		return fmt.Errorf("list room history: %w", err)
	}
	// History goes to the requester only, not through the bus.
	r.sendEvent(sess, "roomHistory", roomHistoryResponse{RoomID: p.RoomID, Messages: messages})
	return nil
}
