// Package instance implements the runtime vehicle of spec.md §3:
// an Instance carries a request through pre-process, predict, and
// post-process, each stage appending to its own tensor slot, plus a
// Context carrying the per-instance error and callback.
package instance

import "github.com/aiserve/msserve/tensor"

// MethodRef is the minimal method identity an Instance needs to carry;
// the full servable.MethodSignature lives in the registry and is looked
// up by (ServableName, MethodName) where needed.
type MethodRef struct {
	ServableName string
	MethodName   string
}

// Context is the non-tensor bookkeeping that travels with an Instance
// (spec.md §3 "context = {user_id, instance_index, method_def,
// callback, error}").
type Context struct {
	UserID        string
	InstanceIndex int
	Method        MethodRef
	Err           error
}

// Instance is the per-request runtime vehicle: the four tensor slots
// named in spec.md §3, plus Context.
type Instance struct {
	InputData       []*tensor.Tensor
	PreprocessData  []*tensor.Tensor
	PredictData     []*tensor.Tensor
	PostprocessData []*tensor.Tensor
	Context         Context
}

// New constructs an Instance from the request's input tensors.
func New(index int, userID string, method MethodRef, inputs []*tensor.Tensor) *Instance {
	return &Instance{
		InputData: inputs,
		Context:   Context{UserID: userID, InstanceIndex: index, Method: method},
	}
}

// Failed reports whether this instance already carries an error — a
// failed instance is withdrawn from later stages but its siblings in
// the same batch continue (spec.md §4.E "Failure semantics").
func (i *Instance) Failed() bool { return i.Context.Err != nil }

// Fail records an error and returns it, letting call sites both set and
// immediately propagate in one line.
func (i *Instance) Fail(err error) error {
	i.Context.Err = err
	return err
}

// Batch is a group of instances traveling together under one method
// (spec.md §3 "A batch of instances traveling together shares the same
// method").
type Batch []*Instance

// Method returns the shared method reference, or the zero value for an
// empty batch.
func (b Batch) Method() MethodRef {
	if len(b) == 0 {
		return MethodRef{}
	}
	return b[0].Context.Method
}
