// Package router dispatches inbound real-time events to their handlers and
// emits outbound events through the fan-out bus. One connection's failure
// never propagates to another: handler errors are surfaced to the offending
// connection as an error event and dropped.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/dltjwls02/ON-AIR-mate/internal/fanout"
	"github.com/dltjwls02/ON-AIR-mate/internal/presence"
	"github.com/dltjwls02/ON-AIR-mate/internal/storage"
	"github.com/dltjwls02/ON-AIR-mate/pkg/session"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrMissingField = errors.New("required field missing")
)

// HandlerFunc handles one inbound event for an authenticated session.
type HandlerFunc func(ctx context.Context, sess *session.Session, payload json.RawMessage) error

type EventRouter struct {
	logger   *slog.Logger
	presence presence.Store
	messages storage.MessageStore
	channels storage.ChannelStore
	registry *session.Registry
	bus      fanout.Bus

	handlers map[string]HandlerFunc
}

func NewEventRouter(logger *slog.Logger, store presence.Store, messages storage.MessageStore, channels storage.ChannelStore, registry *session.Registry, bus fanout.Bus) *EventRouter {
	r := &EventRouter{
		logger:   logger.With(slog.String("component", "event_router")),
		presence: store,
		messages: messages,
		channels: channels,
		registry: registry,
		bus:      bus,
		handlers: make(map[string]HandlerFunc),
	}

	r.Register("joinRoom", r.handleJoinRoom)
	r.Register("enterRoom", r.handleEnterRoom)
	r.Register("sendRoomMessage", r.handleSendRoomMessage)
	r.Register("leaveRoom", r.handleLeaveRoom)
	r.Register("roomHistory", r.handleRoomHistory)
	r.Register("joinChannel", r.handleJoinChannel)
	r.Register("sendDirectMessage", r.handleSendDirectMessage)
	r.Register("leaveChannel", r.handleLeaveChannel)

	return r
}

// Register binds an event name to its handler. Registering a duplicate name
// is a programming error.
func (r *EventRouter) Register(event string, fn HandlerFunc) {
	if _, exists := r.handlers[event]; exists {
		panic("event handler already registered: " + event)
	}
	r.handlers[event] = fn
}

// Start subscribes the router to the fan-out bus. Envelopes received there
// (this node's own publishes included) are re-emitted to locally attached
// connections subscribed to the envelope's room/channel.
func (r *EventRouter) Start(ctx context.Context) error {
	return r.bus.Subscribe(ctx, r.deliver)
}

// HandleMessage is the transport's inbound callback.
func (r *EventRouter) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	sess, ok := r.registry.Get(connID)
	if !ok {
		r.logger.Error("Received message for unknown session", slog.String("connID", connID.String()))
		return
	}

	var clientMsg ClientMessage
	if err := json.Unmarshal(msg, &clientMsg); err != nil {
		r.logger.Warn("Failed to unmarshal client message", slog.String("connID", connID.String()), slog.Any("error", err))
		r.sendError(sess, "malformed message")
		return
	}

	handler, ok := r.handlers[clientMsg.Event]
	if !ok {
		r.logger.Warn("Received unknown event", slog.String("event", clientMsg.Event), slog.String("connID", connID.String()))
		r.sendError(sess, fmt.Sprintf("%s: %s", ErrUnknownEvent, clientMsg.Event))
		return
	}

	r.logger.Debug("Dispatching event",
		slog.String("event", clientMsg.Event),
		slog.String("connID", connID.String()),
		slog.Int64("userID", sess.UserID),
	)
	if err := handler(ctx, sess, clientMsg.Payload); err != nil {
		r.logger.Warn("Event handler failed",
			slog.String("event", clientMsg.Event),
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
		r.sendError(sess, err.Error())
	}
}

// HandleDisconnect runs disconnect cleanup for a closed connection. It marks
// the user offline but revokes no room memberships; cleanup failures are
// logged and swallowed.
func (r *EventRouter) HandleDisconnect(ctx context.Context, connID uuid.UUID) {
	sess := r.registry.Deregister(connID)
	if sess == nil {
		return
	}
	if err := r.presence.MarkOffline(ctx, sess.UserID, connID.String()); err != nil {
		r.logger.Error("Disconnect cleanup failed",
			slog.String("connID", connID.String()),
			slog.Int64("userID", sess.UserID),
			slog.Any("error", err),
		)
	}
}

// deliver re-emits a bus envelope to this node's subscribers of the target
// room/channel, skipping the origin connection when the envelope asks for it.
func (r *EventRouter) deliver(env fanout.Envelope) {
	out, err := json.Marshal(ClientMessage{Event: env.Event, Payload: env.Payload})
	if err != nil {
		r.logger.Error("Failed to marshal outbound event", slog.String("event", env.Event), slog.Any("error", err))
		return
	}
	for _, sess := range r.registry.Subscribers(env.Channel) {
		if env.ExcludeOrigin && sess.ConnID.String() == env.OriginConn {
			continue
		}
		sess.Transport.Send(out)
	}
}

// broadcast publishes an outbound event for every subscriber of the
// room/channel across all nodes.
func (r *EventRouter) broadcast(ctx context.Context, channel, event string, payload any, origin *session.Session, excludeOrigin bool) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	env := fanout.Envelope{
		Channel:       channel,
		Event:         event,
		Payload:       data,
		OriginConn:    origin.ConnID.String(),
		ExcludeOrigin: excludeOrigin,
	}
	if err := r.bus.Publish(ctx, env); err != nil {
		return fmt.Errorf("broadcast %s to %s: %w", event, channel, err)
	}
	return nil
}

// sendEvent delivers an event to a single connection, bypassing the bus.
func (r *EventRouter) sendEvent(sess *session.Session, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("Failed to marshal direct event", slog.String("event", event), slog.Any("error", err))
		return
	}
	out, err := json.Marshal(ClientMessage{Event: event, Payload: data})
	if err != nil {
		r.logger.Error("Failed to marshal direct event", slog.String("event", event), slog.Any("error", err))
		return
	}
	sess.Transport.Send(out)
}

func (r *EventRouter) sendError(sess *session.Session, message string) {
	r.sendEvent(sess, "error", errorPayload{Message: message})
}

// requireFields validates that each named payload field is present and
// non-empty before the payload is decoded. A zero numeric id counts as
// missing; there is no user 0.
func requireFields(payload json.RawMessage, fields ...string) error {
	for _, field := range fields {
		value := gjson.GetBytes(payload, field)
		if !value.Exists() || value.String() == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, field)
		}
		if value.Type == gjson.Number && value.Int() == 0 {
			return fmt.Errorf("%w: %s", ErrMissingField, field)
		}
	}
	return nil
}
