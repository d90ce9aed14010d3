// Command agent runs one Agent process of spec.md §4.G: a single
// device-slot rank that fetches the rank table from its parent Worker,
// registers its WorkerAgentSpec, and serves MSAgent.Predict.
//
// Running a real per-rank model shard is out of scope (spec.md §1
// Non-goals); this command wires a demo echo backend so the
// registration and fan-out plumbing can be exercised end to end.
package main

import (
	"context"
	"flag"
	"net"
	"strings"

	"google.golang.org/grpc"

	"github.com/aiserve/msserve/agent"
	"github.com/aiserve/msserve/batch"
	"github.com/aiserve/msserve/cmn/nlog"
	"github.com/aiserve/msserve/config"
	"github.com/aiserve/msserve/lifecycle"
	"github.com/aiserve/msserve/rpcclient"
	"github.com/aiserve/msserve/tensor"
	"github.com/aiserve/msserve/wire"
	"github.com/aiserve/msserve/wire/mspb"
)

type echoBackend struct{}

func (echoBackend) Predict(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return []*tensor.Tensor{inputs[0]}, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	address := flag.String("address", "", "override config.agent_address")
	workerAddress := flag.String("worker", "", "parent worker's MSDistributedWorker address")
	rankID := flag.Uint("rank", 0, "this agent's rank_id")
	inputs := flag.String("inputs", "x", "comma-separated input tensor names, in model input order")
	outputs := flag.String("outputs", "y", "comma-separated output tensor names, in model output order")
	batchSize := flag.Int("batch-size", 4, "model_batch_size")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		nlog.Errorf("agent: load config: %v", err)
		return
	}
	if *address != "" {
		cfg.AgentAddress = *address
	}
	wire.CompressThreshold = cfg.TensorCompressThreshold

	latch := lifecycle.New()
	latch.Start()

	inputNames := splitNonEmpty(*inputs)
	outputNames := splitNonEmpty(*outputs)
	spec := batch.ModelSpec{
		BatchSize: *batchSize,
		Inputs:    make([]batch.InputSpec, len(inputNames)),
		Outputs:   make([]batch.OutputSpec, len(outputNames)),
	}
	for i := range spec.Inputs {
		spec.Inputs[i] = batch.InputSpec{DType: tensor.I32, ElemShape: tensor.Shape{}}
	}
	for i := range spec.Outputs {
		spec.Outputs[i] = batch.OutputSpec{DType: tensor.I32, ElemShape: tensor.Shape{}}
	}
	b := batch.NewBatcher(spec, echoBackend{})
	a := agent.New(uint32(*rankID), inputNames, outputNames, b, latch)

	var opts []grpc.ServerOption
	if cfg.TLS.Enabled {
		creds, err := rpcclient.ServerCredentials(rpcclient.TLSConfig{
			Enabled: true, Certificate: cfg.TLS.Certificate, PrivateKey: cfg.TLS.PrivateKey,
			CustomCA: cfg.TLS.CustomCA, VerifyClient: cfg.TLS.VerifyClient,
		})
		if err != nil {
			nlog.Errorf("agent: build TLS credentials: %v", err)
			return
		}
		opts = append(opts, grpc.Creds(creds))
	}
	gs := grpc.NewServer(opts...)
	mspb.RegisterMSAgentServer(gs, a)

	lis, err := net.Listen("tcp", cfg.AgentAddress)
	if err != nil {
		nlog.Errorf("agent: listen on %s: %v", cfg.AgentAddress, err)
		return
	}
	go func() {
		nlog.Infof("agent: rank %d serving on %s", *rankID, cfg.AgentAddress)
		if serveErr := gs.Serve(lis); serveErr != nil {
			nlog.Warningf("agent: grpc server stopped: %v", serveErr)
		}
	}()

	if *workerAddress != "" {
		dwConn, err := rpcclient.Dial(*workerAddress, rpcclient.TLSConfig{
			Enabled: cfg.TLS.Enabled, Certificate: cfg.TLS.Certificate, PrivateKey: cfg.TLS.PrivateKey,
			CustomCA: cfg.TLS.CustomCA, VerifyClient: cfg.TLS.VerifyClient,
		}, cfg.MaxMsgSize)
		if err != nil {
			nlog.Errorf("agent: dial worker %s: %v", *workerAddress, err)
			return
		}
		dw := mspb.NewMSDistributedWorkerClient(dwConn)
		agentSpec := mspb.WorkerAgentSpec{
			AgentAddress: cfg.AgentAddress,
			RankID:       uint32(*rankID),
			BatchSize:    int64(*batchSize),
		}
		if _, err := agent.Bootstrap(context.Background(), dw, agentSpec, cfg.ExitDeadline); err != nil {
			nlog.Errorf("agent: bootstrap failed: %v", err)
			return
		}
	}

	latch.AgentWait(context.Background())
	nlog.Infof("agent: rank %d shutdown signal received", *rankID)
	gs.GracefulStop()
}
