// Package pb defines the status service RPC contract shared by the gateway,
// the backends and the status server. Messages are hand-written structs
// carried by the JSON codec in codec.go; the service shape mirrors a unary
// gRPC service definition.
package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "chatroom.status.StatusService"

// Request / response messages.

type ServerRegisterReq struct {
	ServerID   uint32 `json:"server_id"`
	ServerAddr string `json:"server_addr"`
	Load       uint32 `json:"load"`
}

type StatusReportReq struct {
	ServerID uint32 `json:"server_id"`
	Load     uint32 `json:"load"`
}

type MinimalLoadServerReq struct{}

type ServerAddrResp struct {
	Ret        int32  `json:"ret"`
	ServerID   uint32 `json:"server_id"`
	ServerAddr string `json:"server_addr"`
}

type GeneralResp struct {
	Ret int32 `json:"ret"`
}

type DumpServerListReq struct{}

type ServerItem struct {
	ID     uint32 `json:"id"`
	Addr   string `json:"addr"`
	Load   uint32 `json:"load"`
	LastTS int64  `json:"last_ts"`
}

type ServerItemListResp struct {
	Ret     int32        `json:"ret"`
	Servers []ServerItem `json:"servers"`
}

type KickRequest struct {
	UID uint64 `json:"uid"`
}

type UserCheckReq struct {
	UID uint64 `json:"uid"`
}

// StatusServiceClient is the client API for the status service.
type StatusServiceClient interface {
	RegisterServer(ctx context.Context, in *ServerRegisterReq, opts ...grpc.CallOption) (*GeneralResp, error)
	ReportServerLoad(ctx context.Context, in *StatusReportReq, opts ...grpc.CallOption) (*GeneralResp, error)
	CheckMinimalLoadServer(ctx context.Context, in *MinimalLoadServerReq, opts ...grpc.CallOption) (*ServerAddrResp, error)
	DumpServerList(ctx context.Context, in *DumpServerListReq, opts ...grpc.CallOption) (*ServerItemListResp, error)
	KickOnlineUser(ctx context.Context, in *KickRequest, opts ...grpc.CallOption) (*GeneralResp, error)
	CheckUserOnline(ctx context.Context, in *UserCheckReq, opts ...grpc.CallOption) (*GeneralResp, error)
}

type statusServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewStatusServiceClient(cc grpc.ClientConnInterface) StatusServiceClient {
	return &statusServiceClient{cc}
}

func (c *statusServiceClient) RegisterServer(ctx context.Context, in *ServerRegisterReq, opts ...grpc.CallOption) (*GeneralResp, error) {
	out := new(GeneralResp)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/RegisterServer", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *statusServiceClient) ReportServerLoad(ctx context.Context, in *StatusReportReq, opts ...grpc.CallOption) (*GeneralResp, error) {
	out := new(GeneralResp)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/ReportServerLoad", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *statusServiceClient) CheckMinimalLoadServer(ctx context.Context, in *MinimalLoadServerReq, opts ...grpc.CallOption) (*ServerAddrResp, error) {
	out := new(ServerAddrResp)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/CheckMinimalLoadServer", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *statusServiceClient) DumpServerList(ctx context.Context, in *DumpServerListReq, opts ...grpc.CallOption) (*ServerItemListResp, error) {
	out := new(ServerItemListResp)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/DumpServerList", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *statusServiceClient) KickOnlineUser(ctx context.Context, in *KickRequest, opts ...grpc.CallOption) (*GeneralResp, error) {
	out := new(GeneralResp)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/KickOnlineUser", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *statusServiceClient) CheckUserOnline(ctx context.Context, in *UserCheckReq, opts ...grpc.CallOption) (*GeneralResp, error) {
	out := new(GeneralResp)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/CheckUserOnline", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StatusServiceServer is the server API for the status service.
type StatusServiceServer interface {
	RegisterServer(context.Context, *ServerRegisterReq) (*GeneralResp, error)
	ReportServerLoad(context.Context, *StatusReportReq) (*GeneralResp, error)
	CheckMinimalLoadServer(context.Context, *MinimalLoadServerReq) (*ServerAddrResp, error)
	DumpServerList(context.Context, *DumpServerListReq) (*ServerItemListResp, error)
	KickOnlineUser(context.Context, *KickRequest) (*GeneralResp, error)
	CheckUserOnline(context.Context, *UserCheckReq) (*GeneralResp, error)
}

// UnimplementedStatusServiceServer provides UNIMPLEMENTED stubs for the
// reserved RPCs so service implementations only override what they support.
type UnimplementedStatusServiceServer struct{}

func (UnimplementedStatusServiceServer) RegisterServer(context.Context, *ServerRegisterReq) (*GeneralResp, error) {
	return nil, status.Error(codes.Unimplemented, "RegisterServer not implemented")
}

func (UnimplementedStatusServiceServer) ReportServerLoad(context.Context, *StatusReportReq) (*GeneralResp, error) {
	return nil, status.Error(codes.Unimplemented, "ReportServerLoad not implemented")
}

func (UnimplementedStatusServiceServer) CheckMinimalLoadServer(context.Context, *MinimalLoadServerReq) (*ServerAddrResp, error) {
	return nil, status.Error(codes.Unimplemented, "CheckMinimalLoadServer not implemented")
}

func (UnimplementedStatusServiceServer) DumpServerList(context.Context, *DumpServerListReq) (*ServerItemListResp, error) {
	return nil, status.Error(codes.Unimplemented, "DumpServerList not implemented")
}

func (UnimplementedStatusServiceServer) KickOnlineUser(context.Context, *KickRequest) (*GeneralResp, error) {
	return nil, status.Error(codes.Unimplemented, "KickOnlineUser not implemented")
}

func (UnimplementedStatusServiceServer) CheckUserOnline(context.Context, *UserCheckReq) (*GeneralResp, error) {
	return nil, status.Error(codes.Unimplemented, "CheckUserOnline not implemented")
}

// RegisterStatusServiceServer registers the service implementation with a
// grpc.Server.
func RegisterStatusServiceServer(s grpc.ServiceRegistrar, srv StatusServiceServer) {
	s.RegisterService(&StatusService_ServiceDesc, srv)
}

func _StatusService_RegisterServer_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ServerRegisterReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServiceServer).RegisterServer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RegisterServer"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatusServiceServer).RegisterServer(ctx, req.(*ServerRegisterReq))
	}
	return interceptor(ctx, in, info, handler)
}

func _StatusService_ReportServerLoad_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StatusReportReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServiceServer).ReportServerLoad(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ReportServerLoad"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatusServiceServer).ReportServerLoad(ctx, req.(*StatusReportReq))
	}
	return interceptor(ctx, in, info, handler)
}

func _StatusService_CheckMinimalLoadServer_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(MinimalLoadServerReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServiceServer).CheckMinimalLoadServer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/CheckMinimalLoadServer"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatusServiceServer).CheckMinimalLoadServer(ctx, req.(*MinimalLoadServerReq))
	}
	return interceptor(ctx, in, info, handler)
}

func _StatusService_DumpServerList_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DumpServerListReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServiceServer).DumpServerList(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/DumpServerList"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatusServiceServer).DumpServerList(ctx, req.(*DumpServerListReq))
	}
	return interceptor(ctx, in, info, handler)
}

func _StatusService_KickOnlineUser_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(KickRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServiceServer).KickOnlineUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/KickOnlineUser"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatusServiceServer).KickOnlineUser(ctx, req.(*KickRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _StatusService_CheckUserOnline_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(UserCheckReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServiceServer).CheckUserOnline(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/CheckUserOnline"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatusServiceServer).CheckUserOnline(ctx, req.(*UserCheckReq))
	}
	return interceptor(ctx, in, info, handler)
}

// StatusService_ServiceDesc is the grpc.ServiceDesc for the status service.
var StatusService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatusServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterServer", Handler: _StatusService_RegisterServer_Handler},
		{MethodName: "ReportServerLoad", Handler: _StatusService_ReportServerLoad_Handler},
		{MethodName: "CheckMinimalLoadServer", Handler: _StatusService_CheckMinimalLoadServer_Handler},
		{MethodName: "DumpServerList", Handler: _StatusService_DumpServerList_Handler},
		{MethodName: "KickOnlineUser", Handler: _StatusService_KickOnlineUser_Handler},
		{MethodName: "CheckUserOnline", Handler: _StatusService_CheckUserOnline_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "status service (hand-written contract, json codec)",
}
