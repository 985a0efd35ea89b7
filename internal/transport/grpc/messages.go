package grpcx

import "github.com/cwrk-planet/meet-service/internal/service"

type CreateRoomRequest struct {
	RoomName string `json:"roomName"`
}

type GetRoomRequest struct {
	RoomCode string `json:"roomCode"`
}

type ListRoomsRequest struct {
	Limit  int32  `json:"limit,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

type ListRoomsResponse struct {
	Items      []service.RoomView `json:"items"`
	NextCursor string             `json:"nextCursor,omitempty"`
}

type JoinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Username string `json:"username"`
}

type LeaveRoomRequest struct {
	SessionID string `json:"sessionId"`
}

type LeaveRoomResponse struct{}

type GetChatHistoryRequest struct {
	RoomCode string `json:"roomCode"`
}

type GetChatHistoryResponse struct {
	Items []service.ChatView `json:"items"`
}

type CloseRoomRequest struct {
	RoomCode string `json:"roomCode"`
}
