package distrib

import (
	"context"

	"github.com/aiserve/msserve/mnerr"
	"github.com/aiserve/msserve/wire/mspb"
)

// CheckRankConfig independently validates a rank table JSON blob without
// constructing a Coordinator — used by the worker at startup before any
// agent has registered (recovered from original_source's
// distributed_servable.cc CheckRankTable, spec.md §7 supplement).
func CheckRankConfig(data []byte) (*RankTable, error) {
	rt, err := ParseRankTable(data)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// ConfigAcquireServer implements MSDistributedWorker.AgentConfigAcquire:
// an Agent process that does not yet know the rank table (it only knows
// its own rank_id) pulls the full table from its parent Worker at
// startup (spec.md §4.G "ConfigAcquire RPC", recovered from
// original_source/mindspore_serving/ccsrc/worker/distributed_worker/distributed_servable.cc).
type ConfigAcquireServer struct {
	RankTableJSON []byte
}

func (s *ConfigAcquireServer) AgentConfigAcquire(ctx context.Context, _ *mspb.ConfigAcquireRequest) (*mspb.ConfigAcquireReply, error) {
	if len(s.RankTableJSON) == 0 {
		return nil, mnerr.New(mnerr.SystemError, "config acquire: rank table not yet available")
	}
	return &mspb.ConfigAcquireReply{RankTableJSON: s.RankTableJSON}, nil
}
