package backend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/chatroom/backend/pb"
)

// recordingStatus counts RPC traffic and can answer NOT_FOUND to reports.
type recordingStatus struct {
	mu        sync.Mutex
	registers []*pb.ServerRegisterReq
	reports   []*pb.StatusReportReq
	reportErr error
}

func (f *recordingStatus) RegisterServer(ctx context.Context, in *pb.ServerRegisterReq, opts ...grpc.CallOption) (*pb.GeneralResp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registers = append(f.registers, in)
	return &pb.GeneralResp{}, nil
}

func (f *recordingStatus) ReportServerLoad(ctx context.Context, in *pb.StatusReportReq, opts ...grpc.CallOption) (*pb.GeneralResp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, in)
	if f.reportErr != nil {
		return nil, f.reportErr
	}
	return &pb.GeneralResp{}, nil
}

func (f *recordingStatus) CheckMinimalLoadServer(ctx context.Context, in *pb.MinimalLoadServerReq, opts ...grpc.CallOption) (*pb.ServerAddrResp, error) {
	return &pb.ServerAddrResp{}, nil
}

func (f *recordingStatus) DumpServerList(ctx context.Context, in *pb.DumpServerListReq, opts ...grpc.CallOption) (*pb.ServerItemListResp, error) {
	return &pb.ServerItemListResp{}, nil
}

func (f *recordingStatus) KickOnlineUser(ctx context.Context, in *pb.KickRequest, opts ...grpc.CallOption) (*pb.GeneralResp, error) {
	return &pb.GeneralResp{}, nil
}

func (f *recordingStatus) CheckUserOnline(ctx context.Context, in *pb.UserCheckReq, opts ...grpc.CallOption) (*pb.GeneralResp, error) {
	return &pb.GeneralResp{}, nil
}

func (f *recordingStatus) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.registers), len(f.reports)
}

func TestReporterRegister(t *testing.T) {
	status := &recordingStatus{}
	r := NewReporter(100, "10.0.0.5:1235", status, NewRegistry(), nil, time.Hour)

	require.NoError(t, r.Register(context.Background()))
	registers, _ := status.counts()
	require.Equal(t, 1, registers)
	assert.Equal(t, uint32(100), status.registers[0].ServerID)
	assert.Equal(t, "10.0.0.5:1235", status.registers[0].ServerAddr)
}

func TestReporterReportsLoad(t *testing.T) {
	status := &recordingStatus{}
	registry := NewRegistry()
	sess, _ := pipeSessionWithReader(t)
	registry.AddTemp(sess)

	r := NewReporter(100, "10.0.0.5:1235", status, registry, nil, time.Hour)
	r.reportOnce()

	_, reports := status.counts()
	require.Equal(t, 1, reports)
	assert.Equal(t, uint32(100), status.reports[0].ServerID)
	// Temp sessions count toward load too.
	assert.Equal(t, uint32(1), status.reports[0].Load)
}

func TestReporterReRegistersOnNotFound(t *testing.T) {
	status := &recordingStatus{reportErr: grpcstatus.Error(codes.NotFound, "no server with id 100")}
	r := NewReporter(100, "10.0.0.5:1235", status, NewRegistry(), nil, time.Hour)

	r.reportOnce()

	registers, reports := status.counts()
	assert.Equal(t, 1, reports)
	assert.Equal(t, 1, registers, "NOT_FOUND must trigger a fresh registration")
}

func TestReporterToleratesOtherErrors(t *testing.T) {
	status := &recordingStatus{reportErr: grpcstatus.Error(codes.Unavailable, "down")}
	r := NewReporter(100, "10.0.0.5:1235", status, NewRegistry(), nil, time.Hour)

	r.reportOnce()

	registers, reports := status.counts()
	assert.Equal(t, 1, reports)
	assert.Zero(t, registers)
}

func TestReporterPeriodicLoop(t *testing.T) {
	status := &recordingStatus{}
	r := NewReporter(100, "10.0.0.5:1235", status, NewRegistry(), nil, 20*time.Millisecond)

	r.Start()
	defer r.Stop()

	require.Eventually(t, func() bool {
		_, reports := status.counts()
		return reports >= 2
	}, 2*time.Second, 10*time.Millisecond)
}
