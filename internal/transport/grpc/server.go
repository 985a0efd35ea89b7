package grpcx

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cwrk-planet/meet-service/internal/domain"
	"github.com/cwrk-planet/meet-service/internal/service"
)

type RoomSvc interface {
	CreateRoom(ctx context.Context, name string) (*domain.Room, error)
	ListRooms(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error)
	CloseRoom(ctx context.Context, code string) (*domain.Room, error)
}

type MemberSvc interface {
	JoinRoom(ctx context.Context, roomCode, username string) (*domain.Participant, error)
	MarkLeft(ctx context.Context, sessionID string) (*domain.Participant, error)
	RoomDetails(ctx context.Context, roomCode string) (*domain.Room, []domain.Participant, error)
}

type ChatSvc interface {
	GetHistoryByCode(ctx context.Context, roomCode string) ([]domain.ChatMessage, error)
}

type Server struct {
	roomSvc   RoomSvc
	memberSvc MemberSvc
	chatSvc   ChatSvc
}

var _ RoomServiceServer = (*Server)(nil)

func NewServer(roomSvc RoomSvc, memberSvc MemberSvc, chatSvc ChatSvc) *Server {
	return &Server{
		roomSvc:   roomSvc,
		memberSvc: memberSvc,
		chatSvc:   chatSvc,
	}
}

// -------- helpers --------

// mapErr переводит доменные ошибки в gRPC-коды.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrRoomInactive):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}

// -------- methods --------

func (s *Server) CreateRoom(ctx context.Context, in *CreateRoomRequest) (*service.RoomView, error) {
	room, err := s.roomSvc.CreateRoom(ctx, in.RoomName)
	if err != nil {
		return nil, mapErr(err)
	}
	v := service.NewRoomView(*room, nil)

	return &v, nil
}

func (s *Server) GetRoom(ctx context.Context, in *GetRoomRequest) (*service.RoomView, error) {
	room, participants, err := s.memberSvc.RoomDetails(ctx, in.RoomCode)
	if err != nil {
		return nil, mapErr(err)
	}
	v := service.NewRoomView(*room, participants)

	return &v, nil
}

func (s *Server) ListRooms(ctx context.Context, in *ListRoomsRequest) (*ListRoomsResponse, error) {
	items, cursor, err := s.roomSvc.ListRooms(ctx, int(in.Limit), in.Cursor)
	if err != nil {
		return nil, mapErr(err)
	}
	out := &ListRoomsResponse{
		Items:      make([]service.RoomView, 0, len(items)),
		NextCursor: cursor,
	}
	for _, r := range items {
		out.Items = append(out.Items, service.NewRoomView(r, nil))
	}

	return out, nil
}

func (s *Server) JoinRoom(ctx context.Context, in *JoinRoomRequest) (*service.ParticipantView, error) {
	p, err := s.memberSvc.JoinRoom(ctx, in.RoomCode, in.Username)
	if err != nil {
		return nil, mapErr(err)
	}
	v := service.NewParticipantView(*p)

	return &v, nil
}

func (s *Server) LeaveRoom(ctx context.Context, in *LeaveRoomRequest) (*LeaveRoomResponse, error) {
	if _, err := s.memberSvc.MarkLeft(ctx, in.SessionID); err != nil {
		return nil, mapErr(err)
	}

	return &LeaveRoomResponse{}, nil
}

func (s *Server) GetChatHistory(ctx context.Context, in *GetChatHistoryRequest) (*GetChatHistoryResponse, error) {
	msgs, err := s.chatSvc.GetHistoryByCode(ctx, in.RoomCode)
	if err != nil {
		return nil, mapErr(err)
	}

	return &GetChatHistoryResponse{Items: service.NewChatViews(msgs)}, nil
}

func (s *Server) CloseRoom(ctx context.Context, in *CloseRoomRequest) (*service.RoomView, error) {
	room, err := s.roomSvc.CloseRoom(ctx, in.RoomCode)
	if err != nil {
		return nil, mapErr(err)
	}
	v := service.NewRoomView(*room, nil)

	return &v, nil
}
