package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/meet-service/internal/domain"
	"github.com/cwrk-planet/meet-service/internal/idgen"
	"github.com/cwrk-planet/meet-service/internal/pubsub"
	"github.com/cwrk-planet/meet-service/internal/syncx"
)

// ChatService сохраняет сообщение и рассылает его в топик комнаты.
// «Сохранить → разослать» для одной комнаты выполняется строго по очереди,
// поэтому подписчики видят сообщения в порядке истории.
type ChatService struct {
	roomRepo  RoomRepository
	chatRepo  ChatRepository
	publisher Publisher
	ids       idgen.Generator
	locks     *syncx.KeyedMutex
	opts      options

	mu       sync.Mutex
	lastSent map[string]time.Time // roomID -> sentAt последнего сообщения
}

func NewChatService(roomRepo RoomRepository, chatRepo ChatRepository, publisher Publisher, ids idgen.Generator, locks *syncx.KeyedMutex, opts ...Option) *ChatService {
	return &ChatService{
		roomRepo:  roomRepo,
		chatRepo:  chatRepo,
		publisher: publisher,
		ids:       ids,
		locks:     locks,
		opts:      buildOptions(opts),
		lastSent:  make(map[string]time.Time),
	}
}

func (s *ChatService) SendMessage(ctx context.Context, roomID, senderUsername, senderSessionID, text string) (*domain.ChatMessage, error) {
	room, err := storeCall(ctx, s.opts, func(ctx context.Context) (*domain.Room, error) {
		return s.roomRepo.GetByID(ctx, roomID)
	})
	if err != nil {
		return nil, err
	}

	msg, err := domain.NewChatMessage(s.ids.ID(), room.ID, senderUsername, senderSessionID, text, s.opts.maxMsgLen, time.Time{})
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(chatKey(room.ID))
	defer unlock()

	msg.SentAt = s.nextSentAt(room.ID)
	err = storeExec(ctx, s.opts, func(ctx context.Context) error {
		return s.chatRepo.Save(ctx, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("chatRepo.Save: %w", err)
	}
	s.remember(room.ID, msg.SentAt)

	// Сообщение уже в истории; ошибка рассылки только логируется.
	s.broadcast(ctx, room.RoomCode, *msg)
	return msg, nil
}

// nextSentAt не даёт времени в комнате идти назад, даже если часы откатились.
func (s *ChatService) nextSentAt(roomID string) time.Time {
	now := s.opts.timestamp()
	s.mu.Lock()
	last := s.lastSent[roomID]
	s.mu.Unlock()
	if now.Before(last) {
		return last
	}
	return now
}

func (s *ChatService) remember(roomID string, at time.Time) {
	s.mu.Lock()
	s.lastSent[roomID] = at
	s.mu.Unlock()
}

// ForgetRoom сбрасывает состояние удалённой комнаты.
func (s *ChatService) ForgetRoom(roomID string) {
	s.mu.Lock()
	delete(s.lastSent, roomID)
	s.mu.Unlock()
}

func (s *ChatService) broadcast(ctx context.Context, roomCode string, msg domain.ChatMessage) {
	body, err := json.Marshal(NewChatView(msg))
	if err != nil {
		slog.Error("chat marshal failed", "room", roomCode, "err", err)
		return
	}
	res, err := s.publisher.Publish(ctx, pubsub.TopicChat(roomCode), body)
	if err != nil {
		slog.Warn("chat publish failed", "room", roomCode, "msg", msg.ID, "err", err)
		return
	}
	if res.Dropped > 0 {
		slog.Warn("chat message dropped for slow subscribers", "room", roomCode, "dropped", res.Dropped)
	}
}

// GetHistory — по возрастанию sentAt, при равенстве в порядке вставки.
func (s *ChatService) GetHistory(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	room, err := storeCall(ctx, s.opts, func(ctx context.Context) (*domain.Room, error) {
		return s.roomRepo.GetByID(ctx, roomID)
	})
	if err != nil {
		return nil, err
	}
	return s.history(ctx, room.ID)
}

// GetHistoryByCode работает и для закрытых комнат: история их переживает.
func (s *ChatService) GetHistoryByCode(ctx context.Context, roomCode string) ([]domain.ChatMessage, error) {
	roomCode = domain.NormalizeRoomCode(roomCode)
	if roomCode == "" {
		return nil, domain.ErrEmptyRoomCode
	}
	room, err := storeCall(ctx, s.opts, func(ctx context.Context) (*domain.Room, error) {
		return s.roomRepo.GetByCode(ctx, roomCode)
	})
	if err != nil {
		return nil, err
	}
	return s.history(ctx, room.ID)
}

func (s *ChatService) history(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	return storeCall(ctx, s.opts, func(ctx context.Context) ([]domain.ChatMessage, error) {
		return s.chatRepo.History(ctx, roomID)
	})
}
