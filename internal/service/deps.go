package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/meet-service/internal/domain"
	"github.com/cwrk-planet/meet-service/internal/presence"
	"github.com/cwrk-planet/meet-service/internal/pubsub"
)

// Репозитории реализованы в postgres и memstore.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id string) (*domain.Room, error)
	GetByCode(ctx context.Context, code string) (*domain.Room, error)
	GetActiveByCode(ctx context.Context, code string) (*domain.Room, error)
	List(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error)
	Close(ctx context.Context, id string, at time.Time) ([]string, error)
	Delete(ctx context.Context, id string) error
}

type ParticipantRepository interface {
	Join(ctx context.Context, p *domain.Participant) error
	GetBySession(ctx context.Context, sessionID string) (*domain.Participant, error)
	MarkLeft(ctx context.Context, sessionID string, at time.Time) (*domain.Participant, error)
	UpdateStatus(ctx context.Context, sessionID string, upd domain.StatusUpdate) (*domain.Participant, error)
	ListConnected(ctx context.Context, roomID string) ([]domain.Participant, error)
}

type ChatRepository interface {
	Save(ctx context.Context, m *domain.ChatMessage) error
	History(ctx context.Context, roomID string) ([]domain.ChatMessage, error)
}

type Presence interface {
	Add(sessionID, roomCode string)
	Remove(sessionID string)
	Binding(sessionID string) (string, bool)
	Announce(sessionID string, kind presence.Announcement) bool
}

type Publisher interface {
	Publish(ctx context.Context, topic string, body json.RawMessage) (pubsub.Result, error)
}

const DefaultStoreTimeout = 5 * time.Second

type options struct {
	storeTimeout time.Duration
	now          func() time.Time
	maxMsgLen    int
	onDelete     func(roomID string)
}

type Option func(*options)

// WithStoreTimeout ограничивает каждое обращение к хранилищу.
func WithStoreTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.storeTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithMaxMessageLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxMsgLen = n
		}
	}
}

// WithRoomDeleted вызывается после успешного удаления комнаты.
func WithRoomDeleted(fn func(roomID string)) Option {
	return func(o *options) {
		o.onDelete = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{
		storeTimeout: DefaultStoreTimeout,
		now:          time.Now,
		maxMsgLen:    domain.DefaultMaxMessageLength,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// timestamp — время в точности хранилища (timestamptz хранит микросекунды).
func (o options) timestamp() time.Time {
	return o.now().UTC().Truncate(time.Microsecond)
}

// storeCall выполняет обращение к хранилищу с таймаутом.
// Истёкший дедлайн превращается в ErrUnavailable: запрос можно повторить.
func storeCall[T any](ctx context.Context, o options, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, o.storeTimeout)
	defer cancel()

	v, err := fn(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		var zero T
		return zero, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return v, err
}

func storeExec(ctx context.Context, o options, fn func(ctx context.Context) error) error {
	_, err := storeCall(ctx, o, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func roomKey(code string) string   { return "room:" + code }
func sessionKey(sid string) string { return "session:" + sid }
func chatKey(roomID string) string { return "chat:" + roomID }
