package grpcx

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cwrk-planet/meet-service/internal/service"
)

const ServiceName = "meet.v1.RoomService"

// RoomServiceServer — серверная сторона meet.v1.RoomService.
type RoomServiceServer interface {
	CreateRoom(context.Context, *CreateRoomRequest) (*service.RoomView, error)
	GetRoom(context.Context, *GetRoomRequest) (*service.RoomView, error)
	ListRooms(context.Context, *ListRoomsRequest) (*ListRoomsResponse, error)
	JoinRoom(context.Context, *JoinRoomRequest) (*service.ParticipantView, error)
	LeaveRoom(context.Context, *LeaveRoomRequest) (*LeaveRoomResponse, error)
	GetChatHistory(context.Context, *GetChatHistoryRequest) (*GetChatHistoryResponse, error)
	CloseRoom(context.Context, *CloseRoomRequest) (*service.RoomView, error)
}

// unary собирает обработчик метода. На проводе google.protobuf.Struct,
// внутри — типизированные запрос и ответ.
func unary[Req any, Resp any](method string, call func(RoomServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			wire := &structpb.Struct{}
			if err := dec(wire); err != nil {
				return nil, err
			}
			in := new(Req)
			if err := fromStruct(wire, in); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "%s: %v", method, err)
			}

			s := srv.(RoomServiceServer)
			var (
				out any
				err error
			)
			if interceptor == nil {
				out, err = call(s, ctx, in)
			} else {
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
				out, err = interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
					return call(s, ctx, req.(*Req))
				})
			}
			if err != nil {
				return nil, err
			}

			resp, err := toStruct(out)
			if err != nil {
				return nil, status.Errorf(codes.Internal, "%s: encode response: %v", method, err)
			}
			return resp, nil
		},
	}
}

var RoomServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RoomServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateRoom", RoomServiceServer.CreateRoom),
		unary("GetRoom", RoomServiceServer.GetRoom),
		unary("ListRooms", RoomServiceServer.ListRooms),
		unary("JoinRoom", RoomServiceServer.JoinRoom),
		unary("LeaveRoom", RoomServiceServer.LeaveRoom),
		unary("GetChatHistory", RoomServiceServer.GetChatHistory),
		unary("CloseRoom", RoomServiceServer.CloseRoom),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "meet/v1/room.proto",
}

func Register(s grpc.ServiceRegistrar, srv RoomServiceServer) {
	s.RegisterService(&RoomServiceDesc, srv)
}

// RoomServiceClient — клиент с типизированными сообщениями; используется в тестах и утилитах.
type RoomServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewRoomServiceClient(cc grpc.ClientConnInterface) *RoomServiceClient {
	return &RoomServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	req, err := toStruct(in)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", method, err)
	}
	wire := &structpb.Struct{}
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, wire, opts...); err != nil {
		return nil, err
	}
	out := new(Resp)
	if err := fromStruct(wire, out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", method, err)
	}
	return out, nil
}

func (c *RoomServiceClient) CreateRoom(ctx context.Context, in *CreateRoomRequest, opts ...grpc.CallOption) (*service.RoomView, error) {
	return invoke[service.RoomView](ctx, c.cc, "CreateRoom", in, opts)
}

func (c *RoomServiceClient) GetRoom(ctx context.Context, in *GetRoomRequest, opts ...grpc.CallOption) (*service.RoomView, error) {
	return invoke[service.RoomView](ctx, c.cc, "GetRoom", in, opts)
}

func (c *RoomServiceClient) ListRooms(ctx context.Context, in *ListRoomsRequest, opts ...grpc.CallOption) (*ListRoomsResponse, error) {
	return invoke[ListRoomsResponse](ctx, c.cc, "ListRooms", in, opts)
}

func (c *RoomServiceClient) JoinRoom(ctx context.Context, in *JoinRoomRequest, opts ...grpc.CallOption) (*service.ParticipantView, error) {
	return invoke[service.ParticipantView](ctx, c.cc, "JoinRoom", in, opts)
}

func (c *RoomServiceClient) LeaveRoom(ctx context.Context, in *LeaveRoomRequest, opts ...grpc.CallOption) (*LeaveRoomResponse, error) {
	return invoke[LeaveRoomResponse](ctx, c.cc, "LeaveRoom", in, opts)
}

func (c *RoomServiceClient) GetChatHistory(ctx context.Context, in *GetChatHistoryRequest, opts ...grpc.CallOption) (*GetChatHistoryResponse, error) {
	return invoke[GetChatHistoryResponse](ctx, c.cc, "GetChatHistory", in, opts)
}

func (c *RoomServiceClient) CloseRoom(ctx context.Context, in *CloseRoomRequest, opts ...grpc.CallOption) (*service.RoomView, error) {
	return invoke[service.RoomView](ctx, c.cc, "CloseRoom", in, opts)
}
