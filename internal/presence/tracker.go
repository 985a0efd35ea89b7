// Package presence — индекс «сессия → комната» для подключённых участников.
// Состояние производно от хранилища: Room Store обновляет его вместе со своими мутациями,
// а при старте индекс прогревается через Load.
package presence

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/cwrk-planet/meet-service/internal/domain"
)

const shardCount = 32

type Announcement int

const (
	Join Announcement = iota + 1
	Leave
)

type entry struct {
	roomCode  string
	connected bool
	announced Announcement // последнее разосланное событие; 0 — ничего
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

type Tracker struct {
	shards [shardCount]shard
}

func New() *Tracker {
	t := &Tracker{}
	for i := range t.shards {
		t.shards[i].sessions = make(map[string]*entry)
	}
	return t
}

func (t *Tracker) shard(sessionID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return &t.shards[h.Sum32()%shardCount]
}

func (t *Tracker) Add(sessionID, roomCode string) {
	sh := t.shard(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.sessions[sessionID]; ok {
		e.roomCode = roomCode
		e.connected = true
		return
	}
	sh.sessions[sessionID] = &entry{roomCode: roomCode, connected: true}
}

// Remove снимает сессию с присутствия. Если join был разослан, а leave ещё нет,
// запись остаётся до Announce(Leave), чтобы уход не потерялся.
func (t *Tracker) Remove(sessionID string) {
	sh := t.shard(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.sessions[sessionID]
	if !ok {
		return
	}
	e.connected = false
	if e.announced != Join {
		delete(sh.sessions, sessionID)
	}
}

func (t *Tracker) IsConnected(sessionID string) bool {
	sh := t.shard(sessionID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.sessions[sessionID]
	return ok && e.connected
}

func (t *Tracker) RoomOf(sessionID string) (string, error) {
	sh := t.shard(sessionID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.sessions[sessionID]
	if !ok || !e.connected {
		return "", domain.ErrSessionNotFound
	}
	return e.roomCode, nil
}

// Binding — комната, к которой привязана сессия. Учитывает и отключённую сессию,
// чей leave ещё не разослан.
func (t *Tracker) Binding(sessionID string) (string, bool) {
	sh := t.shard(sessionID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.sessions[sessionID]
	if !ok {
		return "", false
	}
	return e.roomCode, true
}

// Sessions — подключённые сессии комнаты, отсортированные для стабильного вывода.
func (t *Tracker) Sessions(roomCode string) []string {
	var out []string
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.RLock()
		for sid, e := range sh.sessions {
			if e.connected && e.roomCode == roomCode {
				out = append(out, sid)
			}
		}
		sh.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

// Announce отмечает рассылку события и сообщает, новое ли оно.
// join — только для подключённой сессии и не дважды подряд;
// leave — только после разосланного join.
func (t *Tracker) Announce(sessionID string, kind Announcement) bool {
	sh := t.shard(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.sessions[sessionID]
	if !ok {
		return false
	}

	switch kind {
	case Join:
		if !e.connected || e.announced == Join {
			return false
		}
		e.announced = Join
		return true
	case Leave:
		if e.announced != Join {
			return false
		}
		e.announced = Leave
		if !e.connected {
			delete(sh.sessions, sessionID)
		}
		return true
	default:
		return false
	}
}

// Source — всё, что нужно для прогрева: подключённые сессии из хранилища.
type Source interface {
	SessionBindings(ctx context.Context) ([]domain.SessionBinding, error)
}

// Load заполняет индекс по хранилищу. Вызывается один раз при старте.
func (t *Tracker) Load(ctx context.Context, src Source) (int, error) {
	bindings, err := src.SessionBindings(ctx)
	if err != nil {
		return 0, err
	}
	for _, b := range bindings {
		t.Add(b.SessionID, b.RoomCode)
	}
	return len(bindings), nil
}
