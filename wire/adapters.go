// Package wire implements the bidirectional translation between
// on-wire messages (package mspb) and the internal instance/tensor
// model (spec.md §4.D), plus the normative reply error-list merge/split
// rule.
package wire

import (
	"github.com/aiserve/msserve/batch"
	"github.com/aiserve/msserve/instance"
	"github.com/aiserve/msserve/mnerr"
	"github.com/aiserve/msserve/tensor"
	"github.com/aiserve/msserve/wire/mspb"
)

// CompressThreshold gates EncodeTensor's lz4 compression of a
// variable-length (string/bytes) tensor payload once it is about to
// cross a batch boundary into the wire layer (SPEC_FULL.md §6 domain
// stack). Zero (the default) disables compression; cmd/worker and
// cmd/agent set this from config.Config.TensorCompressThreshold at
// start-up.
var CompressThreshold int

// EncodeTensor translates an internal Tensor to its wire form
// (spec.md §4.D "Tensor encoding").
func EncodeTensor(t *tensor.Tensor) (*mspb.Tensor, error) {
	wt := &mspb.Tensor{DType: int32(t.DType), Dims: append([]int64(nil), t.Shape...)}
	if t.DType.IsVariableLength() {
		v, err := t.BytesVal()
		if err != nil {
			return nil, err
		}
		out, compressed, err := batch.CompressBytesVal(v, CompressThreshold)
		if err != nil {
			return nil, err
		}
		wt.BytesVal = [][]byte{out}
		wt.Compressed = compressed
		return wt, nil
	}
	wt.Data = append([]byte(nil), t.Bytes()...)
	return wt, nil
}

// DecodeTensor validates and translates a wire Tensor to an owned
// internal Tensor. Validation rejects negative dims, itemsize==0 for a
// numeric dtype, and size mismatches (spec.md §4.D).
func DecodeTensor(wt *mspb.Tensor) (*tensor.Tensor, error) {
	dt := tensor.DType(wt.DType)
	shape := tensor.Shape(wt.Dims)
	if dt == tensor.Unknown {
		return nil, mnerr.New(mnerr.InvalidInputs, "tensor dtype unknown")
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if dt.IsVariableLength() {
		if len(wt.BytesVal) != 1 {
			return nil, mnerr.New(mnerr.InvalidInputs, "dtype=%s requires exactly 1 bytes_val element, got %d", dt, len(wt.BytesVal))
		}
		v := wt.BytesVal[0]
		if wt.Compressed {
			dv, err := batch.DecompressBytesVal(v)
			if err != nil {
				return nil, err
			}
			v = dv
		}
		return tensor.NewBytesVal(dt, v)
	}
	if dt.ItemSize() == 0 {
		return nil, mnerr.New(mnerr.InvalidInputs, "dtype %s has itemsize 0", dt)
	}
	want := shape.NumElements() * dt.ItemSize()
	if int64(len(wt.Data)) != want {
		return nil, mnerr.New(mnerr.InvalidInputs, "tensor data length %d does not match shape/dtype (want %d)", len(wt.Data), want)
	}
	return tensor.Borrow(dt, shape, wt.Data, false)
}

// DecodeInstance translates a wire Instance's tensor map into an
// internal Instance's InputData slice, ordered by the method's declared
// input names.
func DecodeInstance(wi *mspb.Instance, idx int, userID string, method instance.MethodRef, inputNames []string) (*instance.Instance, error) {
	inputs := make([]*tensor.Tensor, len(inputNames))
	for i, name := range inputNames {
		wt, ok := wi.Tensors[name]
		if !ok {
			return nil, mnerr.New(mnerr.InvalidInputs, "instance %d missing input %q", idx, name)
		}
		t, err := DecodeTensor(wt)
		if err != nil {
			return nil, mnerr.Wrap(mnerr.InvalidInputs, err, "instance %d input %q", idx, name)
		}
		inputs[i] = t
	}
	return instance.New(idx, userID, method, inputs), nil
}

// EncodeInstance translates an Instance's final output tensors (as
// produced by the pipeline, named per the method's declared outputs)
// into a wire Instance.
func EncodeInstance(outputs []*tensor.Tensor, outputNames []string) (*mspb.Instance, error) {
	wi := &mspb.Instance{Tensors: make(map[string]*mspb.Tensor, len(outputNames))}
	for i, name := range outputNames {
		if i >= len(outputs) {
			return nil, mnerr.New(mnerr.SystemError, "fewer outputs (%d) than declared names (%d)", len(outputs), len(outputNames))
		}
		wt, err := EncodeTensor(outputs[i])
		if err != nil {
			return nil, err
		}
		wi.Tensors[name] = wt
	}
	return wi, nil
}

// MergeErrors implements spec.md §4.D's normative error-list rule:
//   - all succeeded: empty error_list
//   - all failed identically: one error entry, empty instance list
//   - mixed: one error entry per instance (order preserved), alongside
//     the (full, including failed) instance list
func MergeErrors(instances []*mspb.Instance, errs []error) []*mspb.ErrorMsg {
	anyErr := false
	for _, e := range errs {
		if e != nil {
			anyErr = true
			break
		}
	}
	if !anyErr {
		return nil
	}
	first := toErrorMsg(errs[0])
	allSame := true
	for _, e := range errs {
		m := toErrorMsg(e)
		if m.Code != first.Code || m.Message != first.Message {
			allSame = false
			break
		}
	}
	if allSame {
		return []*mspb.ErrorMsg{first}
	}
	out := make([]*mspb.ErrorMsg, len(errs))
	for i, e := range errs {
		out[i] = toErrorMsg(e)
	}
	return out
}

func toErrorMsg(err error) *mspb.ErrorMsg {
	if err == nil {
		return &mspb.ErrorMsg{Code: int32(mnerr.Success), Message: ""}
	}
	return &mspb.ErrorMsg{Code: int32(mnerr.Code(err)), Message: err.Error()}
}

// SplitErrors inverts MergeErrors for a reader: given a reply with n
// requested instances, returns one error (nil on success) per instance.
// A size-1 error list with an empty instance list applies to every
// instance; a size-n error list applies positionally.
func SplitErrors(reply *mspb.PredictReply, n int) []*mspb.ErrorMsg {
	if len(reply.Errors) == 0 {
		return make([]*mspb.ErrorMsg, n)
	}
	if len(reply.Errors) == 1 && len(reply.Instances) == 0 {
		out := make([]*mspb.ErrorMsg, n)
		for i := range out {
			out[i] = reply.Errors[0]
		}
		return out
	}
	return reply.Errors
}
