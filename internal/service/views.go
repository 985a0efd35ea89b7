package service

import (
	"time"

	"github.com/cwrk-planet/meet-service/internal/domain"
)

// JSON-представления, общие для HTTP, gRPC и рассылок по топикам.

type ParticipantView struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	SessionID      string     `json:"sessionId"`
	JoinedAt       time.Time  `json:"joinedAt"`
	LeftAt         *time.Time `json:"leftAt,omitempty"`
	IsConnected    bool       `json:"isConnected"`
	IsMuted        bool       `json:"isMuted"`
	IsVideoEnabled bool       `json:"isVideoEnabled"`
}

type RoomView struct {
	ID           string            `json:"id"`
	RoomCode     string            `json:"roomCode"`
	RoomName     string            `json:"roomName"`
	CreatedAt    time.Time         `json:"createdAt"`
	ClosedAt     *time.Time        `json:"closedAt,omitempty"`
	IsActive     bool              `json:"isActive"`
	Participants []ParticipantView `json:"participants"`
}

type ChatView struct {
	SenderUsername  string    `json:"senderUsername"`
	SenderSessionID string    `json:"senderSessionId"`
	Message         string    `json:"message"`
	SentAt          time.Time `json:"sentAt"`
}

func NewParticipantView(p domain.Participant) ParticipantView {
	return ParticipantView{
		ID:             p.ID,
		Username:       p.Username,
		SessionID:      p.SessionID,
		JoinedAt:       p.JoinedAt,
		LeftAt:         p.LeftAt,
		IsConnected:    p.IsConnected,
		IsMuted:        p.IsMuted,
		IsVideoEnabled: p.IsVideoEnabled,
	}
}

// NewRoomView — participants всегда массив, даже пустой.
func NewRoomView(r domain.Room, ps []domain.Participant) RoomView {
	items := make([]ParticipantView, 0, len(ps))
	for _, p := range ps {
		items = append(items, NewParticipantView(p))
	}
	return RoomView{
		ID:           r.ID,
		RoomCode:     r.RoomCode,
		RoomName:     r.RoomName,
		CreatedAt:    r.CreatedAt,
		ClosedAt:     r.ClosedAt,
		IsActive:     r.IsActive,
		Participants: items,
	}
}

func NewChatView(m domain.ChatMessage) ChatView {
	return ChatView{
		SenderUsername:  m.SenderUsername,
		SenderSessionID: m.SenderSessionID,
		Message:         m.Message,
		SentAt:          m.SentAt,
	}
}

func NewChatViews(ms []domain.ChatMessage) []ChatView {
	out := make([]ChatView, 0, len(ms))
	for _, m := range ms {
		out = append(out, NewChatView(m))
	}
	return out
}
