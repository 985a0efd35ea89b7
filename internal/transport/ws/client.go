package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/meet-service/internal/pubsub"
)

const writeWait = 5 * time.Second

// client — одно websocket-соединение. Все записи идут через send и writeLoop.
type client struct {
	conn      *websocket.Conn
	sessionID string
	roomCode  string

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	subsMu sync.Mutex
	subs   map[string]func() // destination -> cancel
}

func newClient(conn *websocket.Conn, sessionID, roomCode string, buffer int) *client {
	if buffer <= 0 {
		buffer = 64
	}
	return &client{
		conn:      conn,
		sessionID: sessionID,
		roomCode:  roomCode,
		send:      make(chan []byte, buffer),
		closed:    make(chan struct{}),
		subs:      make(map[string]func()),
	}
}

// TrySend реализует pubsub.Subscriber: не блокирует издателя,
// при полном буфере сообщение для этого клиента теряется.
func (c *client) TrySend(m pubsub.Message) bool {
	frame, err := encodeMessage(m.Destination, m.Body)
	if err != nil {
		return false
	}
	return c.enqueue(frame)
}

func (c *client) enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) sendError(msg string) {
	_ = c.enqueue(encodeError(msg))
}

// track запоминает подписку; повторная подписка на то же назначение — no-op.
func (c *client) track(dest string, subscribe func() func()) bool {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	if _, ok := c.subs[dest]; ok {
		return false
	}
	c.subs[dest] = subscribe()
	return true
}

func (c *client) untrack(dest string) bool {
	c.subsMu.Lock()
	cancel, ok := c.subs[dest]
	delete(c.subs, dest)
	c.subsMu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

func (c *client) untrackAll() {
	c.subsMu.Lock()
	subs := c.subs
	c.subs = make(map[string]func())
	c.subsMu.Unlock()

	for _, cancel := range subs {
		cancel()
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// writeLoop — единственный писатель в conn: кадры из send и ping по таймеру.
func (c *client) writeLoop(pingEvery time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
