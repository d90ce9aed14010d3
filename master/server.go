package master

import (
	"context"

	"github.com/aiserve/msserve/register"
	"github.com/aiserve/msserve/rpcclient"
	"github.com/aiserve/msserve/wire/mspb"
)

// Server adapts a Dispatcher to the two gRPC surfaces the Master
// process terminates: MSService (client-facing Predict, spec.md §6)
// and MSMaster (the Worker registration plane, spec.md §4.I).
type Server struct {
	Dispatcher *Dispatcher
	Watchdog   *register.Watchdog // optional; nil disables heartbeat tracking
	TLS        rpcclient.TLSConfig
	MaxMsgSize int
}

func NewServer(d *Dispatcher, wd *register.Watchdog) *Server {
	return &Server{Dispatcher: d, Watchdog: wd}
}

// Predict implements MSServiceServer.Predict.
func (s *Server) Predict(ctx context.Context, req *mspb.PredictRequest) (*mspb.PredictReply, error) {
	return s.Dispatcher.Dispatch(ctx, req)
}

// Register implements MSMasterServer.Register: a Worker's initial
// registration, and the source of truth for watchdog tracking.
func (s *Server) Register(ctx context.Context, req *mspb.RegisterRequest) (*mspb.RegisterReply, error) {
	cc, err := rpcclient.Dial(req.Address, s.TLS, s.MaxMsgSize)
	if err != nil {
		return nil, err
	}
	if err := s.Dispatcher.RegisterServable(req, mspb.NewMSWorkerClient(cc)); err != nil {
		return nil, err
	}
	if s.Watchdog != nil {
		_ = s.Watchdog.Heartbeat(req.Address)
	}
	return &mspb.RegisterReply{}, nil
}

// Exit implements MSMasterServer.Exit: a Worker's best-effort departure
// notice (spec.md §4.I).
func (s *Server) Exit(ctx context.Context, req *mspb.ExitRequest) (*mspb.ExitReply, error) {
	s.Dispatcher.UnregisterServable(req.Address)
	return &mspb.ExitReply{}, nil
}

// AddWorker implements MSMasterServer.AddWorker: a dynamic topology
// addition outside the initial registration burst (spec.md §4.H).
func (s *Server) AddWorker(ctx context.Context, req *mspb.AddWorkerRequest) (*mspb.AddWorkerReply, error) {
	cc, err := rpcclient.Dial(req.WorkerSpec.WorkerAddress, s.TLS, s.MaxMsgSize)
	if err != nil {
		return nil, err
	}
	s.Dispatcher.AddServable(req.WorkerSpec, mspb.NewMSWorkerClient(cc), nil)
	return &mspb.AddWorkerReply{}, nil
}

// RemoveWorker implements MSMasterServer.RemoveWorker.
func (s *Server) RemoveWorker(ctx context.Context, req *mspb.RemoveWorkerRequest) (*mspb.RemoveWorkerReply, error) {
	s.Dispatcher.RemoveServable(req.ServableName, req.VersionNumber, req.Address)
	return &mspb.RemoveWorkerReply{}, nil
}

var (
	_ mspb.MSServiceServer = (*Server)(nil)
	_ mspb.MSMasterServer  = (*Server)(nil)
)
