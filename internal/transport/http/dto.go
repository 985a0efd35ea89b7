package http

import "github.com/cwrk-planet/meet-service/internal/service"

type CreateRoomRequest struct {
	RoomName string `json:"roomName"`
}

type JoinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Username string `json:"username"`
}

type RoomsListResponse struct {
	Items      []service.RoomView `json:"items"`
	NextCursor string             `json:"nextCursor,omitempty"`
}
