package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	RoomCodeLength    = 8
	MaxRoomNameLength = 100
)

type Room struct {
	ID        string     `db:"id"`
	RoomCode  string     `db:"room_code"`
	RoomName  string     `db:"room_name"`
	CreatedAt time.Time  `db:"created_at"`
	ClosedAt  *time.Time `db:"closed_at"`
	IsActive  bool       `db:"is_active"`
}

// NewRoom собирает активную комнату; код и id выдаёт вызывающий.
func NewRoom(id, code, name string, now time.Time) (*Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyRoomName
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return nil, ErrRoomNameTooLong
	}

	return &Room{
		ID:        id,
		RoomCode:  code,
		RoomName:  name,
		CreatedAt: now,
		IsActive:  true,
	}, nil
}

// Close переводит комнату в неактивное состояние. Повторный вызов ничего не меняет.
func (r *Room) Close(now time.Time) bool {
	if !r.IsActive {
		return false
	}
	r.IsActive = false
	r.ClosedAt = &now

	return true
}

// NormalizeRoomCode приводит пользовательский ввод к каноничному виду кода.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
