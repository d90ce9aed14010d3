// Command master runs the Master Dispatcher process of spec.md §4.H:
// it terminates MSService (client-facing Predict) and MSMaster (the
// Worker registration plane), routing every predict call by the
// version-pick law against its live topology map.
package main

import (
	"context"
	"flag"
	"net"

	"google.golang.org/grpc"

	"github.com/aiserve/msserve/cmn/nlog"
	"github.com/aiserve/msserve/config"
	"github.com/aiserve/msserve/lifecycle"
	"github.com/aiserve/msserve/master"
	"github.com/aiserve/msserve/register"
	"github.com/aiserve/msserve/rpcclient"
	"github.com/aiserve/msserve/wire/mspb"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file (defaults used for anything unset)")
	address := flag.String("address", "", "override config.master_address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		nlog.Errorf("master: load config: %v", err)
		return
	}
	if *address != "" {
		cfg.MasterAddress = *address
	}

	latch := lifecycle.New()
	latch.Start()

	wd, err := register.NewWatchdog(cfg.HeartbeatInterval, cfg.HeartbeatThreshold, latch)
	if err != nil {
		nlog.Errorf("master: start watchdog: %v", err)
		return
	}
	defer wd.Close()
	go wd.Run(context.Background())

	dispatcher := master.NewDispatcher(cfg.ExitDeadline)
	srv := master.NewServer(dispatcher, wd)
	srv.TLS = rpcclient.TLSConfig{
		Enabled:      cfg.TLS.Enabled,
		Certificate:  cfg.TLS.Certificate,
		PrivateKey:   cfg.TLS.PrivateKey,
		CustomCA:     cfg.TLS.CustomCA,
		VerifyClient: cfg.TLS.VerifyClient,
	}
	srv.MaxMsgSize = cfg.MaxMsgSize

	var opts []grpc.ServerOption
	if cfg.TLS.Enabled {
		creds, err := rpcclient.ServerCredentials(srv.TLS)
		if err != nil {
			nlog.Errorf("master: build TLS credentials: %v", err)
			return
		}
		opts = append(opts, grpc.Creds(creds))
	}
	if cfg.MaxMsgSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(cfg.MaxMsgSize), grpc.MaxSendMsgSize(cfg.MaxMsgSize))
	}
	gs := grpc.NewServer(opts...)
	mspb.RegisterMSServiceServer(gs, srv)
	mspb.RegisterMSMasterServer(gs, srv)

	lis, err := net.Listen("tcp", cfg.MasterAddress)
	if err != nil {
		nlog.Errorf("master: listen on %s: %v", cfg.MasterAddress, err)
		return
	}
	go func() {
		nlog.Infof("master: serving on %s", cfg.MasterAddress)
		if err := gs.Serve(lis); err != nil {
			nlog.Warningf("master: grpc server stopped: %v", err)
		}
	}()

	latch.MasterWait(context.Background())
	nlog.Infof("master: shutdown signal received, draining")
	dispatcher.Clear(context.Background())
	gs.GracefulStop()
}
