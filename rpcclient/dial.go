package rpcclient

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/aiserve/msserve/mnerr"
)

// TLSConfig is the minimal transport-security material Dial needs; it
// mirrors config.TLS without importing package config, so rpcclient
// never depends on the process-wide configuration type.
type TLSConfig struct {
	Enabled      bool
	Certificate  string
	PrivateKey   string
	CustomCA     string
	VerifyClient bool
}

// Dial opens a grpc.ClientConn to address, applying the msjson codec by
// default (spec.md §6 "the actual transport... is the real grpc-go
// library end to end, only the payload codec differs") and TLS
// transport credentials when tlsCfg.Enabled.
func Dial(address string, tlsCfg TLSConfig, maxMsgSize int) (*grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if tlsCfg.Enabled {
		tc, err := buildTLSConfig(tlsCfg)
		if err != nil {
			return nil, err
		}
		creds = credentials.NewTLS(tc)
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if maxMsgSize > 0 {
		opts = append(opts, grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMsgSize),
			grpc.MaxCallSendMsgSize(maxMsgSize),
		))
	}
	cc, err := grpc.Dial(address, opts...)
	if err != nil {
		return nil, mnerr.Wrap(mnerr.WorkerUnavailable, err, "dial %s", address)
	}
	return cc, nil
}

// ServerCredentials builds grpc server-side transport credentials from
// the same TLSConfig shape Dial consumes, so cmd/master, cmd/worker,
// and cmd/agent share one TLS configuration surface (spec.md §6
// "Server defaults").
func ServerCredentials(cfg TLSConfig) (credentials.TransportCredentials, error) {
	tc, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(tc), nil
}

func buildTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.Certificate, cfg.PrivateKey)
	if err != nil {
		return nil, mnerr.Wrap(mnerr.SystemError, err, "load TLS key pair")
	}
	tc := &tls.Config{Certificates: []tls.Certificate{cert}}
	if cfg.CustomCA != "" {
		pem, err := os.ReadFile(cfg.CustomCA)
		if err != nil {
			return nil, mnerr.Wrap(mnerr.SystemError, err, "read custom CA")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, mnerr.New(mnerr.SystemError, "custom CA file contains no valid certificates")
		}
		tc.RootCAs = pool
	}
	if cfg.VerifyClient {
		tc.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tc, nil
}
