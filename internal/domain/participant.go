package domain

import (
	"strings"
	"time"
)

type Participant struct {
	ID             string     `db:"id"`
	Username       string     `db:"username"`
	SessionID      string     `db:"session_id"`
	RoomID         string     `db:"room_id"`
	JoinedAt       time.Time  `db:"joined_at"`
	LeftAt         *time.Time `db:"left_at"`
	IsConnected    bool       `db:"is_connected"`
	IsMuted        bool       `db:"is_muted"`
	IsVideoEnabled bool       `db:"is_video_enabled"`
}

func NewParticipant(id, roomID, username, sessionID string, now time.Time) (*Participant, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrEmptyUsername
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	return &Participant{
		ID:             id,
		Username:       username,
		SessionID:      sessionID,
		RoomID:         roomID,
		JoinedAt:       now,
		IsConnected:    true,
		IsMuted:        false,
		IsVideoEnabled: true,
	}, nil
}

// Leave отмечает уход участника. Запись после ухода назад не «подключается».
func (p *Participant) Leave(now time.Time) bool {
	if !p.IsConnected {
		return false
	}
	p.IsConnected = false
	p.LeftAt = &now

	return true
}

// StatusUpdate — частичное обновление; nil означает «не менять».
type StatusUpdate struct {
	Muted        *bool
	VideoEnabled *bool
}

func (u StatusUpdate) Empty() bool {
	return u.Muted == nil && u.VideoEnabled == nil
}

func (p *Participant) Apply(u StatusUpdate) {
	if u.Muted != nil {
		p.IsMuted = *u.Muted
	}
	if u.VideoEnabled != nil {
		p.IsVideoEnabled = *u.VideoEnabled
	}
}

// SessionBinding связывает подключённую сессию с кодом комнаты.
type SessionBinding struct {
	SessionID string
	RoomCode  string
}
