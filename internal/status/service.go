package status

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/chatroom/backend/internal/balance"
	"github.com/chatroom/backend/pb"
)

// Service is the RPC facade over the load balancer. Register/locate traffic
// triggers asynchronous mirror refreshes so the Redis copy tracks the
// in-memory truth closely without blocking RPC handlers.
type Service struct {
	pb.UnimplementedStatusServiceServer

	balancer *balance.Balancer
	mirror   *Mirror
}

func NewService(balancer *balance.Balancer, mirror *Mirror) *Service {
	return &Service{balancer: balancer, mirror: mirror}
}

func (s *Service) RegisterServer(ctx context.Context, req *pb.ServerRegisterReq) (*pb.GeneralResp, error) {
	slog.Info("[Status] RegisterServer", "server_id", req.ServerID, "addr", req.ServerAddr, "load", req.Load)
	s.balancer.RegisterServer(req.ServerID, req.ServerAddr, req.Load)
	s.mirror.UpdateNow()
	return &pb.GeneralResp{Ret: 0}, nil
}

func (s *Service) ReportServerLoad(ctx context.Context, req *pb.StatusReportReq) (*pb.GeneralResp, error) {
	if err := s.balancer.UpdateLoad(req.ServerID, req.Load); err != nil {
		// Distinguished NOT_FOUND: the reporter re-registers on it.
		return nil, status.Errorf(codes.NotFound, "no server with id %d", req.ServerID)
	}
	return &pb.GeneralResp{Ret: 0}, nil
}

func (s *Service) CheckMinimalLoadServer(ctx context.Context, req *pb.MinimalLoadServerReq) (*pb.ServerAddrResp, error) {
	si, ok, didEvict := s.balancer.MinLoad()
	if didEvict {
		s.mirror.UpdateNow()
	}
	if !ok {
		return nil, status.Error(codes.NotFound, "no server currently available")
	}
	return &pb.ServerAddrResp{Ret: 0, ServerID: si.ID, ServerAddr: si.Addr}, nil
}

func (s *Service) DumpServerList(ctx context.Context, req *pb.DumpServerListReq) (*pb.ServerItemListResp, error) {
	snapshot := s.balancer.Snapshot()
	resp := &pb.ServerItemListResp{Ret: 0, Servers: make([]pb.ServerItem, 0, len(snapshot))}
	for _, si := range snapshot {
		resp.Servers = append(resp.Servers, pb.ServerItem{
			ID:     si.ID,
			Addr:   si.Addr,
			Load:   si.Load,
			LastTS: si.LastTS,
		})
	}
	return resp, nil
}
