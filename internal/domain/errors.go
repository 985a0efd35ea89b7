package domain

import (
	"errors"
	"fmt"
)

// Базовые категории ошибок. Транспортные слои маппят их через errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrRoomInactive = errors.New("room is inactive")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("store unavailable")
)

var (
	ErrRoomNotFound        = fmt.Errorf("room %w", ErrNotFound)
	ErrParticipantNotFound = fmt.Errorf("participant %w", ErrNotFound)
	ErrSessionNotFound     = fmt.Errorf("session %w", ErrNotFound)

	ErrEmptyRoomName   = fmt.Errorf("%w: room name is required", ErrValidation)
	ErrRoomNameTooLong = fmt.Errorf("%w: room name too long", ErrValidation)
	ErrEmptyUsername   = fmt.Errorf("%w: username is required", ErrValidation)
	ErrEmptyRoomCode   = fmt.Errorf("%w: room code is required", ErrValidation)
	ErrEmptySessionID  = fmt.Errorf("%w: session id is required", ErrValidation)
	ErrEmptyMessage    = fmt.Errorf("%w: empty message", ErrValidation)
	ErrMessageTooLong  = fmt.Errorf("%w: message too long", ErrValidation)
	ErrBadSignalType   = fmt.Errorf("%w: unsupported signal type", ErrValidation)
	ErrForeignSession  = fmt.Errorf("%w: session does not belong to this room", ErrValidation)
	ErrForeignRoom     = fmt.Errorf("%w: room id does not match destination", ErrValidation)

	ErrSessionConflict = fmt.Errorf("%w: session id already in use", ErrConflict)
	ErrRoomNotEmpty    = fmt.Errorf("%w: room still has connected participants", ErrConflict)

	// ErrAlreadyExists возвращается репозиториями при нарушении уникальности.
	ErrAlreadyExists = errors.New("already exists")
)
