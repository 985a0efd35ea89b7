package ws

import (
	"sync"
)

// Hub — реестр живых соединений по sessionId.
// Одна сессия — одно соединение: новое вытесняет старое.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*client // sessionID -> client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// Add регистрирует клиента и возвращает вытесненного (или nil).
func (h *Hub) Add(c *client) *client {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.clients[c.sessionID]
	h.clients[c.sessionID] = c
	return prev
}

// Remove удаляет клиента, только если он всё ещё текущий для своей сессии.
func (h *Hub) Remove(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.clients[c.sessionID]; ok && cur == c {
		delete(h.clients, c.sessionID)
		return true
	}
	return false
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll закрывает все соединения; read loop каждого сам выполнит уборку.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	cs := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		cs = append(cs, c)
	}
	h.mu.Unlock()

	for _, c := range cs {
		c.close()
	}
}
