package idgen

import (
	"strings"

	"github.com/google/uuid"

	"github.com/cwrk-planet/meet-service/internal/domain"
)

// Generator выдаёт идентификаторы для комнат, участников и сессий.
type Generator interface {
	ID() string
	SessionID() string
	RoomCode() string
}

type UUIDGenerator struct{}

func New() UUIDGenerator { return UUIDGenerator{} }

func (UUIDGenerator) ID() string { return uuid.NewString() }

func (UUIDGenerator) SessionID() string { return uuid.NewString() }

// RoomCode — первые 8 hex-символов случайного UUID в верхнем регистре.
// Уникальность проверяет хранилище, генератор только даёт кандидата.
func (UUIDGenerator) RoomCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:domain.RoomCodeLength])
}

// IsValidRoomCode проверяет формат: 8 символов A-Z0-9.
func IsValidRoomCode(code string) bool {
	if len(code) != domain.RoomCodeLength {
		return false
	}
	for _, c := range code {
		if !isUpperAlphanumeric(c) {
			return false
		}
	}
	return true
}

func isUpperAlphanumeric(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z')
}
