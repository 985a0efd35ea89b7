package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwrk-planet/meet-service/internal/domain"
	"github.com/cwrk-planet/meet-service/internal/idgen"
	"github.com/cwrk-planet/meet-service/internal/syncx"
)

// MaxCodeAttempts — сколько раз генерируем код при коллизиях, прежде чем сдаться.
const MaxCodeAttempts = 8

type RoomService struct {
	roomRepo RoomRepository
	presence Presence
	ids      idgen.Generator
	locks    *syncx.KeyedMutex
	opts     options
}

func NewRoomService(roomRepo RoomRepository, presence Presence, ids idgen.Generator, locks *syncx.KeyedMutex, opts ...Option) *RoomService {
	return &RoomService{
		roomRepo: roomRepo,
		presence: presence,
		ids:      ids,
		locks:    locks,
		opts:     buildOptions(opts),
	}
}

// CreateRoom создаёт активную комнату с новым уникальным кодом.
func (s *RoomService) CreateRoom(ctx context.Context, name string) (*domain.Room, error) {
	for attempt := 1; attempt <= MaxCodeAttempts; attempt++ {
		room, err := domain.NewRoom(s.ids.ID(), s.ids.RoomCode(), name, s.opts.timestamp())
		if err != nil {
			return nil, err
		}

		err = storeExec(ctx, s.opts, func(ctx context.Context) error {
			return s.roomRepo.Create(ctx, room)
		})
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, fmt.Errorf("roomRepo.Create: %w", err)
		}
		slog.Debug("room code collision, retrying", "code", room.RoomCode, "attempt", attempt)
	}

	return nil, fmt.Errorf("%w: no free room code after %d attempts", domain.ErrUnavailable, MaxCodeAttempts)
}

// GetActiveRoomByCode — только активные комнаты; закрытая считается отсутствующей.
func (s *RoomService) GetActiveRoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	code = domain.NormalizeRoomCode(code)
	if code == "" {
		return nil, domain.ErrEmptyRoomCode
	}
	return storeCall(ctx, s.opts, func(ctx context.Context) (*domain.Room, error) {
		return s.roomRepo.GetActiveByCode(ctx, code)
	})
}

// GetRoomByCode возвращает комнату независимо от состояния.
func (s *RoomService) GetRoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	code = domain.NormalizeRoomCode(code)
	if code == "" {
		return nil, domain.ErrEmptyRoomCode
	}
	return storeCall(ctx, s.opts, func(ctx context.Context) (*domain.Room, error) {
		return s.roomRepo.GetByCode(ctx, code)
	})
}

func (s *RoomService) GetRoomByID(ctx context.Context, id string) (*domain.Room, error) {
	if id == "" {
		return nil, domain.ErrRoomNotFound
	}
	return storeCall(ctx, s.opts, func(ctx context.Context) (*domain.Room, error) {
		return s.roomRepo.GetByID(ctx, id)
	})
}

// ListRooms возвращает активные комнаты с курсорной пагинацией.
func (s *RoomService) ListRooms(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.storeTimeout)
	defer cancel()

	rooms, next, err := s.roomRepo.List(ctx, limit, cursor)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		}
		return nil, "", err
	}
	return rooms, next, nil
}

// CloseRoom закрывает комнату и отключает оставшихся участников. Повторный вызов — no-op.
func (s *RoomService) CloseRoom(ctx context.Context, code string) (*domain.Room, error) {
	code = domain.NormalizeRoomCode(code)
	if code == "" {
		return nil, domain.ErrEmptyRoomCode
	}
	unlock := s.locks.Lock(roomKey(code))
	defer unlock()

	room, err := s.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return room, nil
	}

	now := s.opts.timestamp()
	sessions, err := storeCall(ctx, s.opts, func(ctx context.Context) ([]string, error) {
		return s.roomRepo.Close(ctx, room.ID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("roomRepo.Close: %w", err)
	}
	for _, sid := range sessions {
		s.presence.Remove(sid)
	}

	room.Close(now)
	slog.Info("room closed", "code", code, "disconnected", len(sessions))
	return room, nil
}

// DeleteRoom удаляет комнату вместе с историей. Пока кто-то подключён — ErrRoomNotEmpty.
func (s *RoomService) DeleteRoom(ctx context.Context, code string) error {
	code = domain.NormalizeRoomCode(code)
	if code == "" {
		return domain.ErrEmptyRoomCode
	}
	unlock := s.locks.Lock(roomKey(code))
	defer unlock()

	room, err := s.GetRoomByCode(ctx, code)
	if err != nil {
		return err
	}
	err = storeExec(ctx, s.opts, func(ctx context.Context) error {
		return s.roomRepo.Delete(ctx, room.ID)
	})
	if err != nil {
		return err
	}
	if s.opts.onDelete != nil {
		s.opts.onDelete(room.ID)
	}
	slog.Info("room deleted", "code", code)
	return nil
}
