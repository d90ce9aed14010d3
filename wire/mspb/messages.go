package mspb

// ServableSpec identifies a (servable, method, version) triple on the
// wire (spec.md §4.D).
type ServableSpec struct {
	Name          string `json:"name"`
	MethodName    string `json:"method_name"`
	VersionNumber int64  `json:"version_number"`
}

// Tensor is the wire encoding of tensor.Tensor (spec.md §4.D "Tensor
// encoding"). For numeric dtypes Data carries the packed buffer; for
// string/bytes, BytesVal carries exactly one element.
type Tensor struct {
	DType      int32    `json:"dtype"`
	Dims       []int64  `json:"dims"`
	Data       []byte   `json:"data,omitempty"`
	BytesVal   [][]byte `json:"bytes_val,omitempty"`
	Compressed bool     `json:"compressed,omitempty"` // BytesVal[0] is lz4-compressed
}

// Instance is a map input/output name -> Tensor (spec.md §4.D).
type Instance struct {
	Tensors map[string]*Tensor `json:"tensors"`
}

// ErrorMsg is one entry of a reply's error_list (spec.md §4.D, §7).
type ErrorMsg struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// PredictRequest is the client-facing and master->worker request shape
// (spec.md §4.D).
type PredictRequest struct {
	Spec      ServableSpec `json:"spec"`
	Instances []*Instance  `json:"instances"`
}

// PredictReply carries a parallel instance list and the merged error
// list per the normative rule in spec.md §4.D.
type PredictReply struct {
	Spec      ServableSpec `json:"spec"`
	Instances []*Instance  `json:"instances"`
	Errors    []*ErrorMsg  `json:"errors"`
}

// DistributedPredictRequest/Reply are the Worker<->Agent fan-out shape
// (spec.md §4.G, §6).
type DistributedPredictRequest struct {
	RankID    uint32      `json:"rank_id"`
	Instances []*Instance `json:"instances"`
}

type DistributedPredictReply struct {
	RankID    uint32      `json:"rank_id"`
	Instances []*Instance `json:"instances"`
	Error     *ErrorMsg   `json:"error"`
}

// ExitRequest/Reply (spec.md §6 "MSWorker.Exit", "MSMaster.Exit",
// "MSAgent.Exit").
type ExitRequest struct {
	Address string `json:"address"`
}

type ExitReply struct{}

// WorkerMethodInfo is the wire shape of a registered method's name
// (full signature lives in the servable registry; the wire form is a
// thin summary, as in the original source's WorkerSpec).
type WorkerMethodInfo struct {
	Name string `json:"name"`
}

// WorkerSpec is the wire form of servable.ServableSignature's
// registration-relevant fields (spec.md §3 "Worker registration").
type WorkerSpec struct {
	ServableName  string             `json:"servable_name"`
	VersionNumber int64              `json:"version_number"`
	WorkerAddress string             `json:"worker_address"`
	Methods       []WorkerMethodInfo `json:"methods"`
}

// RegisterRequest/Reply (spec.md §6 "MSMaster.Register").
type RegisterRequest struct {
	WorkerSpecs []WorkerSpec `json:"worker_specs"`
	Address     string       `json:"address"`
}

type RegisterReply struct{}

// AddWorkerRequest/RemoveWorkerRequest (spec.md §6 dynamic topology variants).
type AddWorkerRequest struct {
	WorkerSpec WorkerSpec `json:"worker_spec"`
}
type AddWorkerReply struct{}

type RemoveWorkerRequest struct {
	ServableName  string `json:"servable_name"`
	VersionNumber int64  `json:"version_number"`
	Address       string `json:"address"`
}
type RemoveWorkerReply struct{}

// WorkerAgentSpec is one Agent's registration payload (spec.md §4.G).
type WorkerAgentSpec struct {
	AgentAddress string       `json:"agent_address"`
	RankID       uint32       `json:"rank_id"`
	InputInfos   []TensorInfo `json:"input_infos"`
	OutputInfos  []TensorInfo `json:"output_infos"`
	BatchSize    int64        `json:"batch_size"`
}

// TensorInfo declares a tensor's static shape/dtype contract, used to
// validate fan-out agreement across ranks (spec.md §4.G registration
// invariants) without carrying live data.
type TensorInfo struct {
	DType int32   `json:"dtype"`
	Shape []int64 `json:"shape"`
}

func (t TensorInfo) Equal(o TensorInfo) bool {
	if t.DType != o.DType || len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// AgentRegisterRequest/Reply (spec.md §6 "MSDistributedWorker.AgentRegister").
type AgentRegisterRequest struct {
	AgentSpecs []WorkerAgentSpec `json:"agent_specs"`
	Address    string            `json:"address"`
}
type AgentRegisterReply struct{}

// AgentFailedRequest/Reply (spec.md §6 "MSDistributedWorker.AgentFailed").
type AgentFailedRequest struct {
	RankID  uint32 `json:"rank_id"`
	Message string `json:"message"`
}
type AgentFailedReply struct{}

// ConfigAcquireRequest/Reply (spec.md §6 "MSDistributedWorker.AgentConfigAcquire",
// §4.G "ConfigAcquire RPC").
type ConfigAcquireRequest struct{}
type ConfigAcquireReply struct {
	RankTableJSON []byte `json:"rank_table_json"`
}

// PingRequest/PongReply (spec.md §6 "MSAgent.Ping/Pong", §4.I watchdog).
type PingRequest struct {
	From string `json:"from"`
}
type PongReply struct {
	From string `json:"from"`
}
