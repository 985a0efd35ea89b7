package domain

import (
	"strings"
	"time"
	"unicode/utf16"
)

const DefaultMaxMessageLength = 2000

type ChatMessage struct {
	ID              string    `db:"id"`
	RoomID          string    `db:"room_id"`
	SenderUsername  string    `db:"sender_username"`
	SenderSessionID string    `db:"sender_session_id"`
	Message         string    `db:"message"`
	SentAt          time.Time `db:"sent_at"`
	Seq             int64     `db:"seq"`
}

// NewChatMessage проверяет текст и собирает сообщение. Длина считается в UTF-16 code units,
// как у браузерного клиента.
func NewChatMessage(id, roomID, username, sessionID, text string, maxLen int, sentAt time.Time) (*ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	if len(utf16.Encode([]rune(text))) > maxLen {
		return nil, ErrMessageTooLong
	}

	return &ChatMessage{
		ID:              id,
		RoomID:          roomID,
		SenderUsername:  strings.TrimSpace(username),
		SenderSessionID: strings.TrimSpace(sessionID),
		Message:         text,
		SentAt:          sentAt,
	}, nil
}
