package servable

import (
	"sync"

	"github.com/aiserve/msserve/mnerr"
)

// Registry is the process-wide store of servable_name -> ServableSignature
// (spec.md §4.B). Per Design Notes §9 it is an explicit value constructed
// once at startup and passed down, not a package-level singleton.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*ServableSignature
	stages   *StageRegistry
}

// NewRegistry constructs an empty registry bound to a stage-function
// registry (for pre/post output-arity lookups during Check).
func NewRegistry(stages *StageRegistry) *Registry {
	return &Registry{entries: make(map[string]*ServableSignature), stages: stages}
}

// DeclareLocal registers (or re-validates) a local servable's type and
// model metadata. Redeclaring as a different type fails (spec.md §4.B).
func (r *Registry) DeclareLocal(name string, meta ServableMeta) error {
	meta.Name = TypeLocal
	return r.declare(name, meta)
}

// DeclareDistributed registers a distributed servable's rank/stage size.
func (r *Registry) DeclareDistributed(name string, meta ServableMeta) error {
	meta.Name = TypeDistributed
	return r.declare(name, meta)
}

func (r *Registry) declare(name string, meta ServableMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.entries[name]
	if !ok {
		r.entries[name] = &ServableSignature{Name: name, Meta: meta}
		return nil
	}
	if existing.Meta.Name != TypeUnknown && existing.Meta.Name != meta.Name {
		return mnerr.New(mnerr.Failed, "servable %s already declared as a different type", name)
	}
	existing.Meta = meta
	return nil
}

// RegisterMethod adds a method definition to an already-declared
// servable. Re-registering the same method name fails (spec.md §4.B).
func (r *Registry) RegisterMethod(servableName string, m MethodSignature) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sig, ok := r.entries[servableName]
	if !ok {
		return mnerr.New(mnerr.InvalidInputs, "servable %s not declared", servableName)
	}
	for _, existing := range sig.Methods {
		if existing.Name == m.Name {
			return mnerr.New(mnerr.Failed, "servable %s: method %s already registered", servableName, m.Name)
		}
	}
	sig.Methods = append(sig.Methods, m)
	return nil
}

// RegisterInputOutputInfo records (or validates against) the declared
// input/output arity. Redeclaring with a different arity fails
// (spec.md §4.B "declared input/output counts match prior registrations").
func (r *Registry) RegisterInputOutputInfo(servableName string, inCount, outCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sig, ok := r.entries[servableName]
	if !ok {
		return mnerr.New(mnerr.InvalidInputs, "servable %s not declared", servableName)
	}
	if sig.Meta.InputsCount != 0 && sig.Meta.InputsCount != inCount {
		return mnerr.New(mnerr.Failed, "servable %s: inputs_count mismatch, had %d now %d", servableName, sig.Meta.InputsCount, inCount)
	}
	if sig.Meta.OutputsCount != 0 && sig.Meta.OutputsCount != outCount {
		return mnerr.New(mnerr.Failed, "servable %s: outputs_count mismatch, had %d now %d", servableName, sig.Meta.OutputsCount, outCount)
	}
	sig.Meta.InputsCount = inCount
	sig.Meta.OutputsCount = outCount
	return nil
}

// GetServableDef returns the registered signature, or ok=false.
func (r *Registry) GetServableDef(servableName string) (*ServableSignature, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sig, ok := r.entries[servableName]
	return sig, ok
}

// CheckServable validates the named servable (Check, against the bound
// stage registry) before it may serve.
func (r *Registry) CheckServable(servableName string) error {
	r.mu.RLock()
	sig, ok := r.entries[servableName]
	r.mu.RUnlock()
	if !ok {
		return mnerr.New(mnerr.InvalidInputs, "servable %s not declared", servableName)
	}
	return sig.Check(r.stages)
}

// Clear drops every registered servable (used on process reset / shutdown).
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*ServableSignature)
}

// StageRegistry is the "separate registry of named stage functions"
// spec.md §4.B mentions: maps a pre/post stage's declared name to how
// many tensors it outputs. The stage function bodies themselves are
// out of scope (spec.md §1 Non-goals); the registry only tracks arity.
type StageRegistry struct {
	mu      sync.RWMutex
	outputs map[string]int
}

func NewStageRegistry() *StageRegistry {
	return &StageRegistry{outputs: make(map[string]int)}
}

// Register declares a stage function's name and output count.
func (s *StageRegistry) Register(name string, outputCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[name] = outputCount
}

func (s *StageRegistry) OutputCount(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.outputs[name]
	return n, ok
}
