package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cwrk-planet/meet-service/internal/domain"
	"github.com/cwrk-planet/meet-service/internal/pubsub"
	"github.com/cwrk-planet/meet-service/internal/ratelimit"
	"github.com/cwrk-planet/meet-service/internal/signaling"
)

type Broker interface {
	Subscribe(topic string, sub pubsub.Subscriber) (cancel func())
	Bind(queue string, sub pubsub.Subscriber) (cancel func())
}

type Presence interface {
	RoomOf(sessionID string) (string, error)
}

type SignalRouter interface {
	Route(ctx context.Context, roomCode string, body json.RawMessage) (signaling.Outcome, error)
}

type RoomSvc interface {
	GetRoomByCode(ctx context.Context, code string) (*domain.Room, error)
}

type MemberSvc interface {
	PublishStatus(ctx context.Context, roomCode string, body json.RawMessage) error
	Announce(ctx context.Context, roomCode string, kind domain.ParticipantEventType, participant json.RawMessage) (bool, error)
	Disconnect(ctx context.Context, sessionID string) error
}

type ChatSvc interface {
	SendMessage(ctx context.Context, roomID, senderUsername, senderSessionID, text string) (*domain.ChatMessage, error)
}

type Config struct {
	PingPeriod     time.Duration
	ReadLimit      int64
	SendBuffer     int
	AllowedOrigins []string
}

type Server struct {
	upgrader  websocket.Upgrader
	hub       *Hub
	broker    Broker
	presence  Presence
	router    SignalRouter
	roomSvc   RoomSvc
	memberSvc MemberSvc
	chatSvc   ChatSvc
	limiter   ratelimit.Limiter
	tracer    trace.Tracer

	pingEvery  time.Duration
	readLimit  int64
	sendBuffer int

	conns sync.WaitGroup

	// base — контекст фоновых вызовов: уборка после обрыва не должна зависеть от r.Context().
	base context.Context
}

type Deps struct {
	Broker   Broker
	Presence Presence
	Router   SignalRouter
	Rooms    RoomSvc
	Members  MemberSvc
	Chat     ChatSvc
	Limiter  ratelimit.Limiter
}

func NewServer(d Deps, cfg Config) *Server {
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 15 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 64 << 10
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.NewMemory(0, time.Second)
	}

	return &Server{
		hub:       NewHub(),
		broker:    d.Broker,
		presence:  d.Presence,
		router:    d.Router,
		roomSvc:   d.Rooms,
		memberSvc: d.Members,
		chatSvc:   d.Chat,
		limiter:   d.Limiter,
		tracer:    otel.Tracer("meet-service/ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		pingEvery:  cfg.PingPeriod,
		readLimit:  cfg.ReadLimit,
		sendBuffer: cfg.SendBuffer,
		base:       context.Background(),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeHTTP — GET /ws?sessionId=...
// Сессия должна быть подключена к комнате через POST /api/rooms/join.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sid := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if sid == "" {
		http.Error(w, "missing sessionId", http.StatusBadRequest)
		return
	}
	roomCode, err := s.presence.RoomOf(sid)
	if err != nil {
		http.Error(w, "unknown sessionId", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам ответил клиенту.
		slog.Warn("ws upgrade failed", "session", sid, "err", err)
		return
	}

	s.conns.Add(1)
	defer s.conns.Done()

	c := newClient(conn, sid, roomCode, s.sendBuffer)
	if prev := s.hub.Add(c); prev != nil {
		slog.Info("ws session reconnected, closing previous connection", "session", sid)
		prev.untrackAll()
		prev.close()
	}
	queue := pubsub.QueueSignal(sid)
	c.track(queue, func() func() { return s.broker.Bind(queue, c) })

	slog.Info("ws connected", "session", sid, "room", roomCode)

	go c.writeLoop(s.pingEvery)
	s.readLoop(c)

	c.untrackAll()
	c.close()
	if !s.hub.Remove(c) {
		// Соединение вытеснено новым той же сессии: участник не уходил.
		return
	}
	s.cleanup(c)
}

func (s *Server) cleanup(c *client) {
	ctx, cancel := context.WithTimeout(s.base, 10*time.Second)
	defer cancel()

	if err := s.memberSvc.Disconnect(ctx, c.sessionID); err != nil {
		slog.Warn("ws disconnect cleanup failed", "session", c.sessionID, "err", err)
	}
	if err := s.limiter.Forget(ctx, c.sessionID); err != nil {
		slog.Debug("ws limiter forget failed", "session", c.sessionID, "err", err)
	}
	slog.Info("ws disconnected", "session", c.sessionID, "room", c.roomCode)
}

func (s *Server) readLoop(c *client) {
	c.conn.SetReadLimit(s.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("ws read failed", "session", c.sessionID, "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))

		if err := s.handleFrame(c, data); err != nil {
			slog.Warn("ws frame rejected", "session", c.sessionID, "err", err)
			c.sendError(errorMessage(err))
		}
	}
}

// handleFrame обрабатывает кадр целиком до чтения следующего: порядок кадров одного клиента сохраняется.
func (s *Server) handleFrame(c *client, data []byte) (err error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: malformed frame: %v", domain.ErrValidation, err)
	}

	ctx, span := s.tracer.Start(s.base, "ws."+strings.ToLower(f.Command),
		trace.WithAttributes(
			attribute.String("ws.session", c.sessionID),
			attribute.String("ws.destination", f.Destination),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	allowed, err := s.limiter.Allow(ctx, c.sessionID)
	if err != nil {
		// лимитер недоступен — кадр пропускаем, а не теряем
		slog.Warn("ws rate limiter failed", "session", c.sessionID, "err", err)
	} else if !allowed {
		return errRateLimited
	}

	switch f.Command {
	case CmdSubscribe:
		return s.subscribe(c, f.Destination)
	case CmdUnsubscribe:
		if !c.untrack(f.Destination) {
			return fmt.Errorf("%w: not subscribed to %s", domain.ErrValidation, f.Destination)
		}
		return nil
	case CmdSend:
		return s.dispatch(ctx, c, f)
	default:
		return fmt.Errorf("%w: unknown command %q", domain.ErrValidation, f.Command)
	}
}

var errRateLimited = errors.New("rate limit exceeded")

func (s *Server) subscribe(c *client, dest string) error {
	switch {
	case pubsub.IsQueue(dest):
		if dest != pubsub.QueueSignal(c.sessionID) {
			return fmt.Errorf("%w: queue %s belongs to another session", domain.ErrValidation, dest)
		}
		c.track(dest, func() func() { return s.broker.Bind(dest, c) })
	case pubsub.IsTopic(dest):
		code, ok := pubsub.RoomOfTopic(dest)
		if !ok {
			return fmt.Errorf("%w: unknown topic %s", domain.ErrValidation, dest)
		}
		if code != c.roomCode {
			return fmt.Errorf("%w: topic %s is outside room %s", domain.ErrValidation, dest, c.roomCode)
		}
		c.track(dest, func() func() { return s.broker.Subscribe(dest, c) })
	default:
		return fmt.Errorf("%w: unknown destination %s", domain.ErrValidation, dest)
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context, c *client, f Frame) error {
	kind, code := appRoute(f.Destination)
	if kind == appUnknown {
		return fmt.Errorf("%w: unknown destination %s", domain.ErrValidation, f.Destination)
	}
	if code != c.roomCode {
		return fmt.Errorf("%w: destination %s is outside room %s", domain.ErrValidation, f.Destination, c.roomCode)
	}
	if len(f.Body) == 0 {
		return fmt.Errorf("%w: empty body", domain.ErrValidation)
	}

	switch kind {
	case appSignal:
		outcome, err := s.router.Route(ctx, code, f.Body)
		if err != nil {
			return err
		}
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("signal.outcome", outcome.String()))
		return nil
	case appChat:
		return s.chat(ctx, c, code, f.Body)
	case appStatus:
		return s.memberSvc.PublishStatus(ctx, code, f.Body)
	case appJoin:
		_, err := s.memberSvc.Announce(ctx, code, domain.ParticipantJoined, f.Body)
		return err
	case appLeave:
		_, err := s.memberSvc.Announce(ctx, code, domain.ParticipantLeft, f.Body)
		return err
	}
	return nil
}

func (s *Server) chat(ctx context.Context, c *client, code string, body json.RawMessage) error {
	var cf ChatFrame
	if err := json.Unmarshal(body, &cf); err != nil {
		return fmt.Errorf("%w: chat frame: %v", domain.ErrValidation, err)
	}
	// комнату задаёт назначение; roomId в теле может только совпасть с ним
	room, err := s.roomSvc.GetRoomByCode(ctx, code)
	if err != nil {
		return err
	}
	if cf.RoomID != "" && cf.RoomID != room.ID {
		return domain.ErrForeignRoom
	}
	cf.RoomID = room.ID
	if cf.SenderSessionID == "" {
		cf.SenderSessionID = c.sessionID
	}

	_, err = s.chatSvc.SendMessage(ctx, cf.RoomID, cf.SenderUsername, cf.SenderSessionID, cf.Message)
	return err
}

// Shutdown закрывает все соединения и ждёт, пока их read loop завершит уборку.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// errorMessage — текст ERROR-кадра; внутренние ошибки клиенту не раскрываются.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, errRateLimited),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrRoomInactive),
		errors.Is(err, domain.ErrConflict):
		return err.Error()
	case errors.Is(err, domain.ErrUnavailable):
		return "service unavailable, retry later"
	default:
		return "internal error"
	}
}
