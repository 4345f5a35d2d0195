package router

import (
	"encoding/json"
	"strconv"

	"github.com/dltjwls02/ON-AIR-mate/internal/storage"
)

// ClientMessage is the wire shape of every inbound and outbound event.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound payloads.

type joinRoomPayload struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
}

type sendRoomMessagePayload struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
}

type leaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

type joinChannelPayload struct {
	PeerUserID int64 `json:"peerUserId"`
}

type sendDirectMessagePayload struct {
	PeerUserID  int64  `json:"peerUserId"`
	DisplayName string `json:"displayName"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
}

type roomHistoryPayload struct {
	RoomID string `json:"roomId"`
	Limit  int    `json:"limit"`
}

// Outbound payloads.

type userJoinedPayload struct {
	DisplayName      string `json:"displayName"`
	ParticipantCount int64  `json:"participantCount"`
}

type receiveMessagePayload struct {
	Message storage.Message `json:"message"`
}

type userLeftPayload struct {
	UserID       int64  `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

type receiveDirectMessagePayload struct {
	SenderDisplayName string          `json:"senderDisplayName"`
	Message           storage.Message `json:"message"`
}

type roomHistoryResponse struct {
	RoomID   string            `json:"roomId"`
	Messages []storage.Message `json:"messages"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// roomChannel and dmChannel derive the fan-out routing keys. Rooms and
// direct channels share the bus, so the key carries the kind.
func roomChannel(roomID string) string {
	return "room:" + roomID
}

func dmChannel(channelID int64) string {
	return "dm:" + strconv.FormatInt(channelID, 10)
}
