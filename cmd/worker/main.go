// Command worker runs a Worker Pipeline Executor process of spec.md
// §4.E: it loads one local servable (see below), serves
// MSWorker.Predict/Exit, and registers itself with the Master.
//
// Loading and running an actual model is out of scope (spec.md §1
// Non-goals); this command wires a single demo "echo" servable so the
// pipeline, batcher, and registration plane can be smoke-tested end to
// end. A real deployment swaps worker.Worker.LoadLocal's
// batch.InferenceBackend and the stage registry's named functions for
// its own model runtime.
package main

import (
	"context"
	"flag"
	"net"

	"google.golang.org/grpc"

	"github.com/aiserve/msserve/batch"
	"github.com/aiserve/msserve/cmn/nlog"
	"github.com/aiserve/msserve/config"
	"github.com/aiserve/msserve/lifecycle"
	"github.com/aiserve/msserve/pipeline"
	"github.com/aiserve/msserve/register"
	"github.com/aiserve/msserve/rpcclient"
	"github.com/aiserve/msserve/servable"
	"github.com/aiserve/msserve/tensor"
	"github.com/aiserve/msserve/wire"
	"github.com/aiserve/msserve/wire/mspb"
	"github.com/aiserve/msserve/worker"
)

// echoBackend returns its single input tensor unchanged; the demo
// servable's Predict stage (spec.md §1 Non-goals: real inference).
type echoBackend struct{}

func (echoBackend) Predict(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return []*tensor.Tensor{inputs[0]}, nil
}

func registerDemoServable(w *worker.Worker, reg *servable.Registry, batchSize int) error {
	if err := reg.DeclareLocal("echo", servable.ServableMeta{}); err != nil {
		return err
	}
	if err := reg.RegisterInputOutputInfo("echo", 1, 1); err != nil {
		return err
	}
	method := servable.MethodSignature{
		Name:          "predict",
		Inputs:        []string{"x"},
		Outputs:       []string{"y"},
		PredictInputs: []servable.SourceTag{{Phase: servable.PhaseInput, Index: 0}},
		ReturnInputs:  []servable.SourceTag{{Phase: servable.PhasePredict, Index: 0}},
	}
	if err := reg.RegisterMethod("echo", method); err != nil {
		return err
	}
	if err := reg.CheckServable("echo"); err != nil {
		return err
	}

	spec := batch.ModelSpec{
		BatchSize: batchSize,
		Inputs:    []batch.InputSpec{{DType: tensor.I32, ElemShape: tensor.Shape{}}},
		Outputs:   []batch.OutputSpec{{DType: tensor.I32, ElemShape: tensor.Shape{}}},
	}
	w.LoadLocal("echo", 1, batch.NewBatcher(spec, echoBackend{}))
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	address := flag.String("address", "", "override config.worker_address")
	masterAddress := flag.String("master", "", "override config.master_address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		nlog.Errorf("worker: load config: %v", err)
		return
	}
	if *address != "" {
		cfg.WorkerAddress = *address
	}
	if *masterAddress != "" {
		cfg.MasterAddress = *masterAddress
	}
	wire.CompressThreshold = cfg.TensorCompressThreshold

	latch := lifecycle.New()
	latch.Start()

	stages := pipeline.NewStageRegistry()
	reg := servable.NewRegistry(servable.NewStageRegistry())
	w := worker.New(reg, pipeline.NewScheduler(cfg.PrePostPoolSize), latch)
	w.WithStages(stages, pipeline.NewScheduler(cfg.PrePostPoolSize))

	if err := registerDemoServable(w, reg, 4); err != nil {
		nlog.Errorf("worker: register demo servable: %v", err)
		return
	}

	var opts []grpc.ServerOption
	if cfg.TLS.Enabled {
		creds, err := rpcclient.ServerCredentials(rpcclient.TLSConfig{
			Enabled: true, Certificate: cfg.TLS.Certificate, PrivateKey: cfg.TLS.PrivateKey,
			CustomCA: cfg.TLS.CustomCA, VerifyClient: cfg.TLS.VerifyClient,
		})
		if err != nil {
			nlog.Errorf("worker: build TLS credentials: %v", err)
			return
		}
		opts = append(opts, grpc.Creds(creds))
	}
	if cfg.MaxMsgSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(cfg.MaxMsgSize), grpc.MaxSendMsgSize(cfg.MaxMsgSize))
	}
	gs := grpc.NewServer(opts...)
	mspb.RegisterMSWorkerServer(gs, w)

	lis, err := net.Listen("tcp", cfg.WorkerAddress)
	if err != nil {
		nlog.Errorf("worker: listen on %s: %v", cfg.WorkerAddress, err)
		return
	}
	go func() {
		nlog.Infof("worker: serving on %s", cfg.WorkerAddress)
		if serveErr := gs.Serve(lis); serveErr != nil {
			nlog.Warningf("worker: grpc server stopped: %v", serveErr)
		}
	}()

	masterTLS := rpcclient.TLSConfig{
		Enabled: cfg.TLS.Enabled, Certificate: cfg.TLS.Certificate, PrivateKey: cfg.TLS.PrivateKey,
		CustomCA: cfg.TLS.CustomCA, VerifyClient: cfg.TLS.VerifyClient,
	}
	masterConn, err := rpcclient.Dial(cfg.MasterAddress, masterTLS, cfg.MaxMsgSize)
	if err != nil {
		nlog.Errorf("worker: dial master %s: %v", cfg.MasterAddress, err)
		return
	}
	masterClient := mspb.NewMSMasterClient(masterConn)

	registerReq := &mspb.RegisterRequest{
		Address: cfg.WorkerAddress,
		WorkerSpecs: []mspb.WorkerSpec{{
			ServableName: "echo", VersionNumber: 1, WorkerAddress: cfg.WorkerAddress,
			Methods: []mspb.WorkerMethodInfo{{Name: "predict"}},
		}},
	}
	if err := register.Register(context.Background(), latch, masterClient, registerReq, cfg.RegisterRetries, cfg.RegisterInterval); err != nil {
		nlog.Errorf("worker: registration failed: %v", err)
		return
	}

	latch.WorkerWait(context.Background())
	nlog.Infof("worker: shutdown signal received, draining")
	register.Unregister(context.Background(), masterClient, "echo", 1, cfg.WorkerAddress, cfg.ExitDeadline)
	register.Exit(context.Background(), masterClient, cfg.WorkerAddress, cfg.ExitDeadline)
	gs.GracefulStop()
}
