package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cwrk-planet/meet-service/internal/domain"
	"github.com/cwrk-planet/meet-service/internal/idgen"
	"github.com/cwrk-planet/meet-service/internal/presence"
	"github.com/cwrk-planet/meet-service/internal/pubsub"
	"github.com/cwrk-planet/meet-service/internal/syncx"
)

// MemberService ведёт участников: вход, выход, статус и события присутствия.
// Хранилище и presence меняются под блокировкой сессии (а вход — ещё и комнаты),
// поэтому для вызывающего обе мутации выглядят атомарными.
type MemberService struct {
	roomRepo        RoomRepository
	participantRepo ParticipantRepository
	presence        Presence
	publisher       Publisher
	ids             idgen.Generator
	locks           *syncx.KeyedMutex
	opts            options
}

func NewMemberService(
	roomRepo RoomRepository,
	participantRepo ParticipantRepository,
	presence Presence,
	publisher Publisher,
	ids idgen.Generator,
	locks *syncx.KeyedMutex,
	opts ...Option,
) *MemberService {
	return &MemberService{
		roomRepo:        roomRepo,
		participantRepo: participantRepo,
		presence:        presence,
		publisher:       publisher,
		ids:             ids,
		locks:           locks,
		opts:            buildOptions(opts),
	}
}

// JoinRoom выдаёт новую сессию и добавляет участника в активную комнату.
func (s *MemberService) JoinRoom(ctx context.Context, roomCode, username string) (*domain.Participant, error) {
	if strings.TrimSpace(username) == "" {
		return nil, domain.ErrEmptyUsername
	}
	return s.AddParticipant(ctx, roomCode, username, s.ids.SessionID())
}

func (s *MemberService) AddParticipant(ctx context.Context, roomCode, username, sessionID string) (*domain.Participant, error) {
	roomCode = domain.NormalizeRoomCode(roomCode)
	if roomCode == "" {
		return nil, domain.ErrEmptyRoomCode
	}
	p, err := domain.NewParticipant(s.ids.ID(), "", username, sessionID, s.opts.timestamp())
	if err != nil {
		return nil, err
	}

	unlockRoom := s.locks.Lock(roomKey(roomCode))
	defer unlockRoom()
	unlockSession := s.locks.Lock(sessionKey(p.SessionID))
	defer unlockSession()

	room, err := storeCall(ctx, s.opts, func(ctx context.Context) (*domain.Room, error) {
		return s.roomRepo.GetByCode(ctx, roomCode)
	})
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, domain.ErrRoomInactive
	}

	p.RoomID = room.ID
	err = storeExec(ctx, s.opts, func(ctx context.Context) error {
		return s.participantRepo.Join(ctx, p)
	})
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		return nil, domain.ErrSessionConflict
	case err != nil:
		return nil, fmt.Errorf("participantRepo.Join: %w", err)
	}

	s.presence.Add(p.SessionID, room.RoomCode)
	slog.Info("participant joined", "room", room.RoomCode, "session", p.SessionID, "username", p.Username)
	return p, nil
}

// MarkLeft отключает участника. Повторный вызов — ErrParticipantNotFound.
func (s *MemberService) MarkLeft(ctx context.Context, sessionID string) (*domain.Participant, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.ErrEmptySessionID
	}
	unlock := s.locks.Lock(sessionKey(sessionID))
	defer unlock()

	now := s.opts.timestamp()
	p, err := storeCall(ctx, s.opts, func(ctx context.Context) (*domain.Participant, error) {
		return s.participantRepo.MarkLeft(ctx, sessionID, now)
	})
	if err != nil {
		return nil, err
	}

	s.presence.Remove(sessionID)
	slog.Info("participant left", "session", sessionID)
	return p, nil
}

// UpdateStatus — частичное обновление: nil-поля не трогаются.
func (s *MemberService) UpdateStatus(ctx context.Context, sessionID string, upd domain.StatusUpdate) (*domain.Participant, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.ErrEmptySessionID
	}
	unlock := s.locks.Lock(sessionKey(sessionID))
	defer unlock()

	return storeCall(ctx, s.opts, func(ctx context.Context) (*domain.Participant, error) {
		if upd.Empty() {
			p, err := s.participantRepo.GetBySession(ctx, sessionID)
			if err == nil && !p.IsConnected {
				return nil, domain.ErrParticipantNotFound
			}
			return p, err
		}
		return s.participantRepo.UpdateStatus(ctx, sessionID, upd)
	})
}

// ListConnectedParticipants — в порядке входа.
func (s *MemberService) ListConnectedParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	return storeCall(ctx, s.opts, func(ctx context.Context) ([]domain.Participant, error) {
		return s.participantRepo.ListConnected(ctx, roomID)
	})
}

// RoomDetails — активная комната со списком подключённых.
func (s *MemberService) RoomDetails(ctx context.Context, roomCode string) (*domain.Room, []domain.Participant, error) {
	roomCode = domain.NormalizeRoomCode(roomCode)
	if roomCode == "" {
		return nil, nil, domain.ErrEmptyRoomCode
	}
	room, err := storeCall(ctx, s.opts, func(ctx context.Context) (*domain.Room, error) {
		return s.roomRepo.GetActiveByCode(ctx, roomCode)
	})
	if err != nil {
		return nil, nil, err
	}
	ps, err := s.ListConnectedParticipants(ctx, room.ID)
	if err != nil {
		return nil, nil, err
	}
	return room, ps, nil
}

// StatusFrame — тело /app/participant/{code}/status. Рассылается как есть.
type StatusFrame struct {
	SessionID      string `json:"sessionId"`
	IsMuted        *bool  `json:"isMuted"`
	IsVideoEnabled *bool  `json:"isVideoEnabled"`
}

// PublishStatus сохраняет статус (если указана сессия) и рассылает тело без изменений.
func (s *MemberService) PublishStatus(ctx context.Context, roomCode string, body json.RawMessage) error {
	var f StatusFrame
	if err := json.Unmarshal(body, &f); err != nil {
		return fmt.Errorf("%w: status frame: %v", domain.ErrValidation, err)
	}
	roomCode = domain.NormalizeRoomCode(roomCode)
	if f.SessionID != "" {
		if err := s.checkBinding(f.SessionID, roomCode); err != nil {
			return err
		}
		upd := domain.StatusUpdate{Muted: f.IsMuted, VideoEnabled: f.IsVideoEnabled}
		if _, err := s.UpdateStatus(ctx, f.SessionID, upd); err != nil {
			return err
		}
	}

	return s.publish(ctx, pubsub.TopicParticipant(roomCode), body)
}

// Announce рассылает join/leave, если событие новое для сессии.
// participant — тело клиента, уходит внутрь события без изменений.
func (s *MemberService) Announce(ctx context.Context, roomCode string, kind domain.ParticipantEventType, participant json.RawMessage) (bool, error) {
	var ref struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(participant, &ref); err != nil {
		return false, fmt.Errorf("%w: participant frame: %v", domain.ErrValidation, err)
	}
	if strings.TrimSpace(ref.SessionID) == "" {
		return false, domain.ErrEmptySessionID
	}
	roomCode = domain.NormalizeRoomCode(roomCode)
	if err := s.checkBinding(ref.SessionID, roomCode); err != nil {
		return false, err
	}

	var ann presence.Announcement
	switch kind {
	case domain.ParticipantJoined:
		ann = presence.Join
	case domain.ParticipantLeft:
		ann = presence.Leave
	default:
		return false, fmt.Errorf("%w: participant event %q", domain.ErrValidation, kind)
	}
	if !s.presence.Announce(ref.SessionID, ann) {
		slog.Debug("participant event is not novel, skipping", "room", roomCode, "session", ref.SessionID, "type", kind)
		return false, nil
	}

	return true, s.publishEvent(ctx, roomCode, kind, participant)
}

// checkBinding не даёт сессии говорить от имени чужой комнаты.
// Неизвестная сессия проходит: дальше её отсеет хранилище или дедупликация.
func (s *MemberService) checkBinding(sessionID, roomCode string) error {
	if code, ok := s.presence.Binding(sessionID); ok && code != roomCode {
		return domain.ErrForeignSession
	}
	return nil
}

// Disconnect — уборка при обрыве соединения. Идемпотентна относительно явного выхода.
func (s *MemberService) Disconnect(ctx context.Context, sessionID string) error {
	p, err := s.MarkLeft(ctx, sessionID)
	switch {
	case errors.Is(err, domain.ErrParticipantNotFound):
		p = nil
	case err != nil:
		return err
	}

	if !s.presence.Announce(sessionID, presence.Leave) {
		return nil
	}

	if p == nil {
		p, err = storeCall(ctx, s.opts, func(ctx context.Context) (*domain.Participant, error) {
			return s.participantRepo.GetBySession(ctx, sessionID)
		})
		if err != nil {
			return err
		}
	}
	room, err := storeCall(ctx, s.opts, func(ctx context.Context) (*domain.Room, error) {
		return s.roomRepo.GetByID(ctx, p.RoomID)
	})
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{"username": p.Username, "sessionId": p.SessionID})
	if err != nil {
		return err
	}
	return s.publishEvent(ctx, room.RoomCode, domain.ParticipantLeft, body)
}

func (s *MemberService) publishEvent(ctx context.Context, roomCode string, kind domain.ParticipantEventType, participant json.RawMessage) error {
	body, err := json.Marshal(domain.ParticipantEvent{
		Type:        kind,
		Participant: participant,
		Timestamp:   s.opts.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	return s.publish(ctx, pubsub.TopicParticipant(roomCode), body)
}

func (s *MemberService) publish(ctx context.Context, topic string, body json.RawMessage) error {
	res, err := s.publisher.Publish(ctx, topic, body)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	if res.Dropped > 0 {
		slog.Warn("participant event dropped for slow subscribers", "topic", topic, "dropped", res.Dropped)
	}
	return nil
}
