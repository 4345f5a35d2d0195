package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dltjwls02/ON-AIR-mate/pkg/session"
)

func (r *EventRouter) handleJoinChannel(ctx context.Context, sess *session.Session, payload json.RawMessage) error {
	if err := requireFields(payload, "peerUserId"); err != nil {
		return err
	}
	var p joinChannelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode joinChannel payload: %w", err)
	}

	// The channel record is the only persistence; there is no membership
	// bookkeeping for direct channels.
	channelID, err := r.channels.ResolveChannel(ctx, sess.UserID, p.PeerUserID)
	if err != nil {
		return err
	}
	if err := r.registry.Subscribe(sess.ConnID, dmChannel(channelID)); err != nil {
		return err
	}

	r.logger.Info("User joined direct channel",
		slog.Int64("userID", sess.UserID),
		slog.Int64("peerUserID", p.PeerUserID),
		slog.Int64("channelID", channelID),
	)
	return nil
}

func (r *EventRouter) handleSendDirectMessage(ctx context.Context, sess *session.Session, payload json.RawMessage) error {
	if err := requireFields(payload, "peerUserId", "displayName", "content", "messageType"); err != nil {
		return err
	}
	var p sendDirectMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode sendDirectMessage payload: %w", err)
	}

	channelID, err := r.channels.ResolveChannel(ctx, sess.UserID, p.PeerUserID)
	if err != nil {
		return err
	}
	// Sending implies being attached to the channel; subscribing again is a
	// no-op.
	if err := r.registry.Subscribe(sess.ConnID, dmChannel(channelID)); err != nil {
		return err
	}

	msg, err := r.messages.SaveDirectMessage(ctx, channelID, sess.UserID, p.DisplayName, p.Content, p.MessageType)
	if err != nil {
		return fmt.Errorf("persist direct message: %w", err)
	}

	// The sender's own connection is excluded from delivery.
	return r.broadcast(ctx, dmChannel(channelID), "receiveDirectMessage", receiveDirectMessagePayload{
		SenderDisplayName: p.DisplayName,
		Message:           msg,
	}, sess, true)
}

// handleLeaveChannel detaches the connection from a direct channel. The
// channel record itself is never deleted here; tearing it down is the
// un-friending collaborator's concern.
func (r *EventRouter) handleLeaveChannel(ctx context.Context, sess *session.Session, payload json.RawMessage) error {
	if err := requireFields(payload, "peerUserId"); err != nil {
		return err
	}
	var p joinChannelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode leaveChannel payload: %w", err)
	}

	channelID, err := r.channels.ResolveChannel(ctx, sess.UserID, p.PeerUserID)
	if err != nil {
		return err
	}
	r.registry.Unsubscribe(sess.ConnID, dmChannel(channelID))

	r.logger.Info("User left direct channel",
		slog.Int64("userID", sess.UserID),
		slog.Int64("channelID", channelID),
	)
	return nil
}
