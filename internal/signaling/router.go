// Package signaling решает, куда отправить WebRTC-сигнал: в очередь одной сессии
// или в топик комнаты. Полезная нагрузка не разбирается и уходит как пришла.
package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cwrk-planet/meet-service/internal/domain"
	"github.com/cwrk-planet/meet-service/internal/pubsub"
)

type Outcome int

const (
	Dropped Outcome = iota
	Unicast
	Broadcast
)

func (o Outcome) String() string {
	switch o {
	case Unicast:
		return "unicast"
	case Broadcast:
		return "broadcast"
	default:
		return "dropped"
	}
}

type Transport interface {
	Publish(ctx context.Context, topic string, body json.RawMessage) (pubsub.Result, error)
	Send(ctx context.Context, queue string, body json.RawMessage) (bool, error)
}

type Presence interface {
	RoomOf(sessionID string) (string, error)
}

type Router struct {
	transport Transport
	presence  Presence
}

func NewRouter(t Transport, p Presence) *Router {
	return &Router{transport: t, presence: p}
}

// Route разбирает конверт только ради type и targetSessionId; в транспорт уходит исходный body.
// Адресат должен быть подключён к той же комнате, иначе сигнал отбрасывается без ошибки.
func (r *Router) Route(ctx context.Context, roomCode string, body json.RawMessage) (Outcome, error) {
	var env domain.SignalEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Dropped, fmt.Errorf("%w: signal envelope: %v", domain.ErrValidation, err)
	}
	if !env.Type.Valid() {
		return Dropped, fmt.Errorf("%w: %q", domain.ErrBadSignalType, env.Type)
	}

	if env.Targeted() {
		target := env.TargetSessionID
		code, err := r.presence.RoomOf(target)
		if err != nil || code != roomCode {
			slog.Warn("signal target is not connected, dropping",
				"room", roomCode, "type", env.Type, "from", env.SenderSessionID, "to", target)
			return Dropped, nil
		}

		ok, err := r.transport.Send(ctx, pubsub.QueueSignal(target), body)
		if err != nil {
			return Dropped, fmt.Errorf("send to %s: %w", target, err)
		}
		if !ok {
			slog.Warn("signal queue did not accept message",
				"room", roomCode, "type", env.Type, "to", target)
			return Dropped, nil
		}
		return Unicast, nil
	}

	res, err := r.transport.Publish(ctx, pubsub.TopicSignal(roomCode), body)
	if err != nil {
		return Dropped, fmt.Errorf("publish signal: %w", err)
	}
	if res.Dropped > 0 {
		slog.Warn("signal broadcast dropped for slow subscribers",
			"room", roomCode, "dropped", res.Dropped, "delivered", res.Delivered)
	}
	return Broadcast, nil
}
