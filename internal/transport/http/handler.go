package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pion/webrtc/v4"

	"github.com/cwrk-planet/meet-service/internal/domain"
	"github.com/cwrk-planet/meet-service/internal/service"
)

type RoomSvc interface {
	CreateRoom(ctx context.Context, name string) (*domain.Room, error)
	ListRooms(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error)
	CloseRoom(ctx context.Context, code string) (*domain.Room, error)
	DeleteRoom(ctx context.Context, code string) error
}

type MemberSvc interface {
	JoinRoom(ctx context.Context, roomCode, username string) (*domain.Participant, error)
	MarkLeft(ctx context.Context, sessionID string) (*domain.Participant, error)
	RoomDetails(ctx context.Context, roomCode string) (*domain.Room, []domain.Participant, error)
}

type ChatSvc interface {
	GetHistoryByCode(ctx context.Context, roomCode string) ([]domain.ChatMessage, error)
}

// Pinger — проверка готовности хранилища для /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	roomSvc   RoomSvc
	memberSvc MemberSvc
	chatSvc   ChatSvc
	store     Pinger
	ice       []webrtc.ICEServer
}

func NewHandler(room RoomSvc, member MemberSvc, chat ChatSvc, store Pinger, iceServers []webrtc.ICEServer) *Handler {
	return &Handler{
		roomSvc:   room,
		memberSvc: member,
		chatSvc:   chat,
		store:     store,
		ice:       iceServers,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", slog.Any("err", err))
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json: %v", domain.ErrValidation, err)
	}
	return nil
}

// POST /api/rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, "handler.CreateRoom.Decode", err)
		return
	}
	room, err := h.roomSvc.CreateRoom(r.Context(), req.RoomName)
	if err != nil {
		writeError(r.Context(), w, "handler.CreateRoom", err)
		return
	}

	writeJSON(w, http.StatusOK, service.NewRoomView(*room, nil))
}

// GET /api/rooms?limit=&cursor=
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(r.Context(), w, "handler.ListRooms", fmt.Errorf("%w: limit must be a number", domain.ErrValidation))
			return
		}
		limit = n
	}

	rooms, next, err := h.roomSvc.ListRooms(r.Context(), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(r.Context(), w, "handler.ListRooms", err)
		return
	}
	resp := RoomsListResponse{Items: make([]service.RoomView, 0, len(rooms)), NextCursor: next}
	for _, rm := range rooms {
		resp.Items = append(resp.Items, service.NewRoomView(rm, nil))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GET /api/rooms/{code}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, participants, err := h.memberSvc.RoomDetails(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(r.Context(), w, "handler.GetRoom", err)
		return
	}

	writeJSON(w, http.StatusOK, service.NewRoomView(*room, participants))
}

// POST /api/rooms/join
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, "handler.JoinRoom.Decode", err)
		return
	}
	p, err := h.memberSvc.JoinRoom(r.Context(), req.RoomCode, req.Username)
	if err != nil {
		writeError(r.Context(), w, "handler.JoinRoom", err)
		return
	}

	writeJSON(w, http.StatusOK, service.NewParticipantView(*p))
}

// POST /api/rooms/leave/{sessionId}
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	if _, err := h.memberSvc.MarkLeft(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
		writeError(r.Context(), w, "handler.LeaveRoom", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GET /api/rooms/{code}/messages
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.chatSvc.GetHistoryByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(r.Context(), w, "handler.GetChatHistory", err)
		return
	}

	writeJSON(w, http.StatusOK, service.NewChatViews(msgs))
}

// POST /api/rooms/{code}/close
func (h *Handler) CloseRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.roomSvc.CloseRoom(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(r.Context(), w, "handler.CloseRoom", err)
		return
	}

	writeJSON(w, http.StatusOK, service.NewRoomView(*room, nil))
}

// DELETE /api/rooms/{code}
func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.roomSvc.DeleteRoom(r.Context(), chi.URLParam(r, "code")); err != nil {
		writeError(r.Context(), w, "handler.DeleteRoom", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GET /api/webrtc/ice-servers
func (h *Handler) ICEServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"iceServers": h.ice})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			slog.Warn("readiness check failed", slog.Any("err", err))
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
