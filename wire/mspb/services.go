package mspb

import (
	"context"

	"google.golang.org/grpc"
)

// unaryHandler adapts a typed (ctx, *Req) (*Rep, error) server method
// into the grpc.methodHandler shape every ServiceDesc.Method needs.
func unaryHandler[Req, Rep any](
	callHandler func(srv any, ctx context.Context, req *Req) (*Rep, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return callHandler(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv}
		handler := func(ctx context.Context, req any) (any, error) {
			return callHandler(srv, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// invoke issues one synchronous unary RPC with the msjson codec.
func invoke[Rep any](ctx context.Context, cc *grpc.ClientConn, method string, req any, opts ...grpc.CallOption) (*Rep, error) {
	rep := new(Rep)
	opts = append(opts, grpc.CallContentSubtype(CodecName))
	if err := cc.Invoke(ctx, method, req, rep, opts...); err != nil {
		return nil, err
	}
	return rep, nil
}

// ---------------------------------------------------------------------
// MSService: client-facing predict entry point (spec.md §6).
// ---------------------------------------------------------------------

type MSServiceServer interface {
	Predict(context.Context, *PredictRequest) (*PredictReply, error)
}

type MSServiceClient interface {
	Predict(ctx context.Context, req *PredictRequest, opts ...grpc.CallOption) (*PredictReply, error)
}

type msServiceClient struct{ cc *grpc.ClientConn }

func NewMSServiceClient(cc *grpc.ClientConn) MSServiceClient { return &msServiceClient{cc} }

func (c *msServiceClient) Predict(ctx context.Context, req *PredictRequest, opts ...grpc.CallOption) (*PredictReply, error) {
	return invoke[PredictReply](ctx, c.cc, "/mspb.MSService/Predict", req, opts...)
}

var MSServiceServiceDesc = grpc.ServiceDesc{
	ServiceName: "mspb.MSService",
	HandlerType: (*MSServiceServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Predict",
		Handler: unaryHandler[PredictRequest, PredictReply](func(srv any, ctx context.Context, req *PredictRequest) (*PredictReply, error) {
			return srv.(MSServiceServer).Predict(ctx, req)
		}),
	}},
	Metadata: "mspb.proto",
}

func RegisterMSServiceServer(s grpc.ServiceRegistrar, srv MSServiceServer) {
	s.RegisterService(&MSServiceServiceDesc, srv)
}

// ---------------------------------------------------------------------
// MSWorker: master -> worker (spec.md §6).
// ---------------------------------------------------------------------

type MSWorkerServer interface {
	Predict(context.Context, *PredictRequest) (*PredictReply, error)
	Exit(context.Context, *ExitRequest) (*ExitReply, error)
}

type MSWorkerClient interface {
	Predict(ctx context.Context, req *PredictRequest, opts ...grpc.CallOption) (*PredictReply, error)
	Exit(ctx context.Context, req *ExitRequest, opts ...grpc.CallOption) (*ExitReply, error)
}

type msWorkerClient struct{ cc *grpc.ClientConn }

func NewMSWorkerClient(cc *grpc.ClientConn) MSWorkerClient { return &msWorkerClient{cc} }

func (c *msWorkerClient) Predict(ctx context.Context, req *PredictRequest, opts ...grpc.CallOption) (*PredictReply, error) {
	return invoke[PredictReply](ctx, c.cc, "/mspb.MSWorker/Predict", req, opts...)
}

func (c *msWorkerClient) Exit(ctx context.Context, req *ExitRequest, opts ...grpc.CallOption) (*ExitReply, error) {
	return invoke[ExitReply](ctx, c.cc, "/mspb.MSWorker/Exit", req, opts...)
}

var MSWorkerServiceDesc = grpc.ServiceDesc{
	ServiceName: "mspb.MSWorker",
	HandlerType: (*MSWorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Predict",
			Handler: unaryHandler[PredictRequest, PredictReply](func(srv any, ctx context.Context, req *PredictRequest) (*PredictReply, error) {
				return srv.(MSWorkerServer).Predict(ctx, req)
			}),
		},
		{
			MethodName: "Exit",
			Handler: unaryHandler[ExitRequest, ExitReply](func(srv any, ctx context.Context, req *ExitRequest) (*ExitReply, error) {
				return srv.(MSWorkerServer).Exit(ctx, req)
			}),
		},
	},
	Metadata: "mspb.proto",
}

func RegisterMSWorkerServer(s grpc.ServiceRegistrar, srv MSWorkerServer) {
	s.RegisterService(&MSWorkerServiceDesc, srv)
}

// ---------------------------------------------------------------------
// MSMaster: worker -> master registration plane (spec.md §6).
// ---------------------------------------------------------------------

type MSMasterServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterReply, error)
	Exit(context.Context, *ExitRequest) (*ExitReply, error)
	AddWorker(context.Context, *AddWorkerRequest) (*AddWorkerReply, error)
	RemoveWorker(context.Context, *RemoveWorkerRequest) (*RemoveWorkerReply, error)
}

type MSMasterClient interface {
	Register(ctx context.Context, req *RegisterRequest, opts ...grpc.CallOption) (*RegisterReply, error)
	Exit(ctx context.Context, req *ExitRequest, opts ...grpc.CallOption) (*ExitReply, error)
	AddWorker(ctx context.Context, req *AddWorkerRequest, opts ...grpc.CallOption) (*AddWorkerReply, error)
	RemoveWorker(ctx context.Context, req *RemoveWorkerRequest, opts ...grpc.CallOption) (*RemoveWorkerReply, error)
}

type msMasterClient struct{ cc *grpc.ClientConn }

func NewMSMasterClient(cc *grpc.ClientConn) MSMasterClient { return &msMasterClient{cc} }

func (c *msMasterClient) Register(ctx context.Context, req *RegisterRequest, opts ...grpc.CallOption) (*RegisterReply, error) {
	return invoke[RegisterReply](ctx, c.cc, "/mspb.MSMaster/Register", req, opts...)
}
func (c *msMasterClient) Exit(ctx context.Context, req *ExitRequest, opts ...grpc.CallOption) (*ExitReply, error) {
	return invoke[ExitReply](ctx, c.cc, "/mspb.MSMaster/Exit", req, opts...)
}
func (c *msMasterClient) AddWorker(ctx context.Context, req *AddWorkerRequest, opts ...grpc.CallOption) (*AddWorkerReply, error) {
	return invoke[AddWorkerReply](ctx, c.cc, "/mspb.MSMaster/AddWorker", req, opts...)
}
func (c *msMasterClient) RemoveWorker(ctx context.Context, req *RemoveWorkerRequest, opts ...grpc.CallOption) (*RemoveWorkerReply, error) {
	return invoke[RemoveWorkerReply](ctx, c.cc, "/mspb.MSMaster/RemoveWorker", req, opts...)
}

var MSMasterServiceDesc = grpc.ServiceDesc{
	ServiceName: "mspb.MSMaster",
	HandlerType: (*MSMasterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unaryHandler[RegisterRequest, RegisterReply](func(srv any, ctx context.Context, req *RegisterRequest) (*RegisterReply, error) {
			return srv.(MSMasterServer).Register(ctx, req)
		})},
		{MethodName: "Exit", Handler: unaryHandler[ExitRequest, ExitReply](func(srv any, ctx context.Context, req *ExitRequest) (*ExitReply, error) {
			return srv.(MSMasterServer).Exit(ctx, req)
		})},
		{MethodName: "AddWorker", Handler: unaryHandler[AddWorkerRequest, AddWorkerReply](func(srv any, ctx context.Context, req *AddWorkerRequest) (*AddWorkerReply, error) {
			return srv.(MSMasterServer).AddWorker(ctx, req)
		})},
		{MethodName: "RemoveWorker", Handler: unaryHandler[RemoveWorkerRequest, RemoveWorkerReply](func(srv any, ctx context.Context, req *RemoveWorkerRequest) (*RemoveWorkerReply, error) {
			return srv.(MSMasterServer).RemoveWorker(ctx, req)
		})},
	},
	Metadata: "mspb.proto",
}

func RegisterMSMasterServer(s grpc.ServiceRegistrar, srv MSMasterServer) {
	s.RegisterService(&MSMasterServiceDesc, srv)
}

// ---------------------------------------------------------------------
// MSDistributedWorker: agent registration plane (spec.md §6).
// ---------------------------------------------------------------------

type MSDistributedWorkerServer interface {
	AgentRegister(context.Context, *AgentRegisterRequest) (*AgentRegisterReply, error)
	AgentExit(context.Context, *ExitRequest) (*ExitReply, error)
	AgentFailed(context.Context, *AgentFailedRequest) (*AgentFailedReply, error)
	AgentConfigAcquire(context.Context, *ConfigAcquireRequest) (*ConfigAcquireReply, error)
}

type MSDistributedWorkerClient interface {
	AgentRegister(ctx context.Context, req *AgentRegisterRequest, opts ...grpc.CallOption) (*AgentRegisterReply, error)
	AgentExit(ctx context.Context, req *ExitRequest, opts ...grpc.CallOption) (*ExitReply, error)
	AgentFailed(ctx context.Context, req *AgentFailedRequest, opts ...grpc.CallOption) (*AgentFailedReply, error)
	AgentConfigAcquire(ctx context.Context, req *ConfigAcquireRequest, opts ...grpc.CallOption) (*ConfigAcquireReply, error)
}

type msDistributedWorkerClient struct{ cc *grpc.ClientConn }

func NewMSDistributedWorkerClient(cc *grpc.ClientConn) MSDistributedWorkerClient {
	return &msDistributedWorkerClient{cc}
}

func (c *msDistributedWorkerClient) AgentRegister(ctx context.Context, req *AgentRegisterRequest, opts ...grpc.CallOption) (*AgentRegisterReply, error) {
	return invoke[AgentRegisterReply](ctx, c.cc, "/mspb.MSDistributedWorker/AgentRegister", req, opts...)
}
func (c *msDistributedWorkerClient) AgentExit(ctx context.Context, req *ExitRequest, opts ...grpc.CallOption) (*ExitReply, error) {
	return invoke[ExitReply](ctx, c.cc, "/mspb.MSDistributedWorker/AgentExit", req, opts...)
}
func (c *msDistributedWorkerClient) AgentFailed(ctx context.Context, req *AgentFailedRequest, opts ...grpc.CallOption) (*AgentFailedReply, error) {
	return invoke[AgentFailedReply](ctx, c.cc, "/mspb.MSDistributedWorker/AgentFailed", req, opts...)
}
func (c *msDistributedWorkerClient) AgentConfigAcquire(ctx context.Context, req *ConfigAcquireRequest, opts ...grpc.CallOption) (*ConfigAcquireReply, error) {
	return invoke[ConfigAcquireReply](ctx, c.cc, "/mspb.MSDistributedWorker/AgentConfigAcquire", req, opts...)
}

var MSDistributedWorkerServiceDesc = grpc.ServiceDesc{
	ServiceName: "mspb.MSDistributedWorker",
	HandlerType: (*MSDistributedWorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AgentRegister", Handler: unaryHandler[AgentRegisterRequest, AgentRegisterReply](func(srv any, ctx context.Context, req *AgentRegisterRequest) (*AgentRegisterReply, error) {
			return srv.(MSDistributedWorkerServer).AgentRegister(ctx, req)
		})},
		{MethodName: "AgentExit", Handler: unaryHandler[ExitRequest, ExitReply](func(srv any, ctx context.Context, req *ExitRequest) (*ExitReply, error) {
			return srv.(MSDistributedWorkerServer).AgentExit(ctx, req)
		})},
		{MethodName: "AgentFailed", Handler: unaryHandler[AgentFailedRequest, AgentFailedReply](func(srv any, ctx context.Context, req *AgentFailedRequest) (*AgentFailedReply, error) {
			return srv.(MSDistributedWorkerServer).AgentFailed(ctx, req)
		})},
		{MethodName: "AgentConfigAcquire", Handler: unaryHandler[ConfigAcquireRequest, ConfigAcquireReply](func(srv any, ctx context.Context, req *ConfigAcquireRequest) (*ConfigAcquireReply, error) {
			return srv.(MSDistributedWorkerServer).AgentConfigAcquire(ctx, req)
		})},
	},
	Metadata: "mspb.proto",
}

func RegisterMSDistributedWorkerServer(s grpc.ServiceRegistrar, srv MSDistributedWorkerServer) {
	s.RegisterService(&MSDistributedWorkerServiceDesc, srv)
}

// ---------------------------------------------------------------------
// MSAgent: worker -> agent predict/lifecycle (spec.md §6).
// ---------------------------------------------------------------------

type MSAgentServer interface {
	Predict(context.Context, *DistributedPredictRequest) (*DistributedPredictReply, error)
	Exit(context.Context, *ExitRequest) (*ExitReply, error)
	Ping(context.Context, *PingRequest) (*PongReply, error)
}

type MSAgentClient interface {
	Predict(ctx context.Context, req *DistributedPredictRequest, opts ...grpc.CallOption) (*DistributedPredictReply, error)
	Exit(ctx context.Context, req *ExitRequest, opts ...grpc.CallOption) (*ExitReply, error)
	Ping(ctx context.Context, req *PingRequest, opts ...grpc.CallOption) (*PongReply, error)
}

type msAgentClient struct{ cc *grpc.ClientConn }

func NewMSAgentClient(cc *grpc.ClientConn) MSAgentClient { return &msAgentClient{cc} }

func (c *msAgentClient) Predict(ctx context.Context, req *DistributedPredictRequest, opts ...grpc.CallOption) (*DistributedPredictReply, error) {
	return invoke[DistributedPredictReply](ctx, c.cc, "/mspb.MSAgent/Predict", req, opts...)
}
func (c *msAgentClient) Exit(ctx context.Context, req *ExitRequest, opts ...grpc.CallOption) (*ExitReply, error) {
	return invoke[ExitReply](ctx, c.cc, "/mspb.MSAgent/Exit", req, opts...)
}
func (c *msAgentClient) Ping(ctx context.Context, req *PingRequest, opts ...grpc.CallOption) (*PongReply, error) {
	return invoke[PongReply](ctx, c.cc, "/mspb.MSAgent/Ping", req, opts...)
}

var MSAgentServiceDesc = grpc.ServiceDesc{
	ServiceName: "mspb.MSAgent",
	HandlerType: (*MSAgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: unaryHandler[DistributedPredictRequest, DistributedPredictReply](func(srv any, ctx context.Context, req *DistributedPredictRequest) (*DistributedPredictReply, error) {
			return srv.(MSAgentServer).Predict(ctx, req)
		})},
		{MethodName: "Exit", Handler: unaryHandler[ExitRequest, ExitReply](func(srv any, ctx context.Context, req *ExitRequest) (*ExitReply, error) {
			return srv.(MSAgentServer).Exit(ctx, req)
		})},
		{MethodName: "Ping", Handler: unaryHandler[PingRequest, PongReply](func(srv any, ctx context.Context, req *PingRequest) (*PongReply, error) {
			return srv.(MSAgentServer).Ping(ctx, req)
		})},
	},
	Metadata: "mspb.proto",
}

func RegisterMSAgentServer(s grpc.ServiceRegistrar, srv MSAgentServer) {
	s.RegisterService(&MSAgentServiceDesc, srv)
}
