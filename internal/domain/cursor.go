package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

var ErrInvalidCursor = fmt.Errorf("%w: invalid cursor", ErrValidation)

// RoomCursor — позиция в списке комнат (created_at DESC, id DESC).
type RoomCursor struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

// After сообщает, идёт ли комната r в выдаче после позиции курсора.
func (c RoomCursor) After(r Room) bool {
	if r.CreatedAt.Equal(c.CreatedAt) {
		return r.ID < c.ID
	}
	return r.CreatedAt.Before(c.CreatedAt)
}

func EncodeRoomCursor(r Room) string {
	data, _ := json.Marshal(RoomCursor{CreatedAt: r.CreatedAt, ID: r.ID})
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeRoomCursor: пустая строка — первая страница (nil, nil).
func DecodeRoomCursor(s string) (*RoomCursor, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var c RoomCursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}
