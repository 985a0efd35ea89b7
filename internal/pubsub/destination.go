package pubsub

import "strings"

const (
	topicPrefix = "/topic/"
	queuePrefix = "/queue/"
)

func TopicSignal(roomCode string) string { return topicPrefix + "room/" + roomCode + "/signal" }
func TopicChat(roomCode string) string   { return topicPrefix + "room/" + roomCode + "/chat" }
func TopicParticipant(roomCode string) string {
	return topicPrefix + "room/" + roomCode + "/participant"
}
func QueueSignal(sessionID string) string { return queuePrefix + "signal/" + sessionID }

func IsTopic(dest string) bool { return strings.HasPrefix(dest, topicPrefix) }
func IsQueue(dest string) bool { return strings.HasPrefix(dest, queuePrefix) }

// RoomOfTopic извлекает код комнаты из /topic/room/{code}/...
func RoomOfTopic(dest string) (string, bool) {
	rest, ok := strings.CutPrefix(dest, topicPrefix+"room/")
	if !ok {
		return "", false
	}
	code, kind, ok := strings.Cut(rest, "/")
	if !ok || code == "" {
		return "", false
	}
	switch kind {
	case "signal", "chat", "participant":
		return code, true
	default:
		return "", false
	}
}
