package distrib

import (
	"context"

	"github.com/aiserve/msserve/mnerr"
	"github.com/aiserve/msserve/rpcclient"
	"github.com/aiserve/msserve/wire/mspb"
)

// Server adapts one Coordinator into the full MSDistributedWorker
// surface an Agent talks to at start-up: ConfigAcquire (fetch the rank
// table), AgentRegister (join the coordinator), AgentExit/AgentFailed
// (withdraw). A Worker process hosts at most one distributed servable's
// Server, matching spec.md §4.G's one-coordinator-per-servable model.
type Server struct {
	Coordinator   *Coordinator
	RankTableJSON []byte
}

func NewServer(c *Coordinator, rankTableJSON []byte) *Server {
	return &Server{Coordinator: c, RankTableJSON: rankTableJSON}
}

func (s *Server) AgentConfigAcquire(ctx context.Context, _ *mspb.ConfigAcquireRequest) (*mspb.ConfigAcquireReply, error) {
	if len(s.RankTableJSON) == 0 {
		return nil, mnerr.New(mnerr.SystemError, "config acquire: rank table not yet available")
	}
	return &mspb.ConfigAcquireReply{RankTableJSON: s.RankTableJSON}, nil
}

// AgentRegister dials each spec's AgentAddress and registers the
// resulting client against the coordinator (spec.md §4.G "Each
// Agent... registers its own WorkerAgentSpec").
func (s *Server) AgentRegister(ctx context.Context, req *mspb.AgentRegisterRequest) (*mspb.AgentRegisterReply, error) {
	for _, spec := range req.AgentSpecs {
		cc, err := rpcclient.Dial(spec.AgentAddress, rpcclient.TLSConfig{}, 0)
		if err != nil {
			return nil, mnerr.Wrap(mnerr.WorkerUnavailable, err, "dial agent rank %d at %s", spec.RankID, spec.AgentAddress)
		}
		client := mspb.NewMSAgentClient(cc)
		if err := s.Coordinator.Register(spec, client); err != nil {
			return nil, err
		}
	}
	return &mspb.AgentRegisterReply{}, nil
}

// AgentExit withdraws a rank's registration. The coordinator has no
// partial-unregister path by design (spec.md §4.G invariants are
// established once at registration and assumed stable for the life of
// the servable); AgentExit instead calls Coordinator.Fail, which raises
// the shared latch (via the Worker.StopServable callback) so the whole
// worker begins cooperative shutdown, since a distributed servable
// cannot serve with a missing rank.
func (s *Server) AgentExit(ctx context.Context, req *mspb.ExitRequest) (*mspb.ExitReply, error) {
	s.Coordinator.Fail(mnerr.New(mnerr.Failed, "agent at %s exited", req.Address))
	return &mspb.ExitReply{}, nil
}

// AgentFailed reports a rank-local failure; like AgentExit, a
// distributed servable cannot continue with a failed rank, so this
// calls Coordinator.Fail (stopping the servable) in addition to
// surfacing the failure to the caller.
func (s *Server) AgentFailed(ctx context.Context, req *mspb.AgentFailedRequest) (*mspb.AgentFailedReply, error) {
	err := mnerr.New(mnerr.Failed, "rank %d reported failure: %s", req.RankID, req.Message)
	s.Coordinator.Fail(err)
	return &mspb.AgentFailedReply{}, err
}

var _ mspb.MSDistributedWorkerServer = (*Server)(nil)
