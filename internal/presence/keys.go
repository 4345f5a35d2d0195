package presence

import "fmt"

// Shared key namespace. Every process derives the same keys.

func roomParticipantsKey(roomID string) string {
	return fmt.Sprintf("room:%s:participants", roomID)
}

func roomParticipantCountKey(roomID string) string {
	return fmt.Sprintf("room:%s:participantsCount", roomID)
}

func userSocketKey(userID int64) string {
	return fmt.Sprintf("user:%d:socketId", userID)
}

func socketUserKey(connID string) string {
	return fmt.Sprintf("socket:%s:userId", connID)
}

func userRoomsKey(userID int64) string {
	return fmt.Sprintf("user:%d:rooms", userID)
}
