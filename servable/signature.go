// Package servable implements the process-wide (but explicitly
// constructed, not package-global — Design Notes §9) servable registry
// of spec.md §3/§4.B: servable signatures, method definitions, and the
// arity/source-tag checks that must pass before a servable may serve.
package servable

import (
	"fmt"

	"github.com/aiserve/msserve/mnerr"
)

// ServableType distinguishes a local (single in-process model) servable
// from a distributed (rank-fanned-out) one.
type ServableType int

const (
	TypeUnknown ServableType = iota
	TypeLocal
	TypeDistributed
)

// ModelFormat names the on-disk model file format; the core never
// parses it (spec.md §1 Non-goals), it only threads the name through.
type ModelFormat int

const (
	FormatUnknown ModelFormat = iota
	FormatOM
	FormatMindIR
)

// Phase names one pipeline stage a source tag may point into
// (spec.md §3 "Servable signature").
type Phase int

const (
	PhaseInput Phase = iota
	PhasePreprocess
	PhasePredict
	PhasePostprocess
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "Input"
	case PhasePreprocess:
		return "Preprocess"
	case PhasePredict:
		return "Predict"
	case PhasePostprocess:
		return "Postprocess"
	default:
		return "Unknown"
	}
}

// SourceTag tells the pipeline scheduler where to find one input of a
// stage: phase plus an index into that phase's output list
// (spec.md §3, GLOSSARY "Stage source tag").
type SourceTag struct {
	Phase Phase
	Index int
}

// MethodSignature is one invocable pipeline: named inputs/outputs, an
// optional pre/post stage name, and per-stage-input source tags
// (spec.md §3).
type MethodSignature struct {
	Name         string
	Inputs       []string
	Outputs      []string
	Preprocess   string // stage function name, "" if none
	Postprocess  string // stage function name, "" if none
	PreInputs    []SourceTag
	PredictInputs  []SourceTag
	PostInputs   []SourceTag
	ReturnInputs []SourceTag // how method Outputs[] are sourced
}

// ServableMeta is the common + type-specific metadata of spec.md §3.
type ServableMeta struct {
	Name        ServableType
	ModelFile   string      // local only
	ModelFormat ModelFormat // local only
	LoadOptions map[string]string

	RankSize  int // distributed only
	StageSize int // distributed only

	InputsCount            int
	OutputsCount           int
	WithBatchDim           []bool
	WithoutBatchDimInputs  []string
}

// ServableSignature is the full registered shape of one servable name:
// its meta plus every declared method.
type ServableSignature struct {
	Name    string
	Meta    ServableMeta
	Methods []MethodSignature
}

// StageOutputCounts abstracts the "separate registry of named stage
// functions" spec.md §4.B refers to for pre-process output arity.
type StageOutputCounts interface {
	OutputCount(stageName string) (int, bool)
}

// Check validates a ServableSignature per spec.md §4.B:
//   - method names unique
//   - every source tag: phase != current-phase, index < size(phase)
//   - pre-process output count obtained from the stage registry
//   - declared arity matches prior registration (checked by Registry,
//     not here, since Check has no access to "prior")
func (s *ServableSignature) Check(stages StageOutputCounts) error {
	seen := make(map[string]bool, len(s.Methods))
	for _, m := range s.Methods {
		if seen[m.Name] {
			return mnerr.New(mnerr.InvalidInputs, "servable %s: duplicate method name %s", s.Name, m.Name)
		}
		seen[m.Name] = true

		preOutCount := 0
		if m.Preprocess != "" {
			n, ok := stages.OutputCount(m.Preprocess)
			if !ok {
				return mnerr.New(mnerr.InvalidInputs, "servable %s method %s: preprocess stage %q not registered", s.Name, m.Name, m.Preprocess)
			}
			preOutCount = n
		}
		postOutCount := 0
		if m.Postprocess != "" {
			n, ok := stages.OutputCount(m.Postprocess)
			if !ok {
				return mnerr.New(mnerr.InvalidInputs, "servable %s method %s: postprocess stage %q not registered", s.Name, m.Name, m.Postprocess)
			}
			postOutCount = n
		}
		predictOutCount := len(m.Outputs) // predict declares the method's own outputs contract absent post-process

		if err := checkTags(s.Name, m.Name, PhasePreprocess, m.PreInputs, len(m.Inputs), preOutCount, predictOutCount, postOutCount); err != nil {
			return err
		}
		if err := checkTags(s.Name, m.Name, PhasePredict, m.PredictInputs, len(m.Inputs), preOutCount, predictOutCount, postOutCount); err != nil {
			return err
		}
		if err := checkTags(s.Name, m.Name, PhasePostprocess, m.PostInputs, len(m.Inputs), preOutCount, predictOutCount, postOutCount); err != nil {
			return err
		}
		if err := checkTags(s.Name, m.Name, -1 /*return has no "current phase"*/, m.ReturnInputs, len(m.Inputs), preOutCount, predictOutCount, postOutCount); err != nil {
			return err
		}
	}
	return nil
}

func checkTags(servableName, methodName string, currentPhase Phase, tags []SourceTag, inputsCount, preOut, predictOut, postOut int) error {
	for _, tg := range tags {
		if tg.Phase == currentPhase {
			return mnerr.New(mnerr.InvalidInputs, "servable %s method %s: phase %s may not cite its own outputs", servableName, methodName, tg.Phase)
		}
		var size int
		switch tg.Phase {
		case PhaseInput:
			size = inputsCount
		case PhasePreprocess:
			size = preOut
		case PhasePredict:
			size = predictOut
		case PhasePostprocess:
			size = postOut
		default:
			return mnerr.New(mnerr.InvalidInputs, "servable %s method %s: source tag has unknown phase %v", servableName, methodName, tg.Phase)
		}
		if tg.Index < 0 || tg.Index >= size {
			return mnerr.New(mnerr.InvalidInputs, "servable %s method %s: source tag (%s,%d) out of range (size %d)", servableName, methodName, tg.Phase, tg.Index, size)
		}
	}
	return nil
}

func (s *ServableSignature) String() string {
	return fmt.Sprintf("%s(%d methods)", s.Name, len(s.Methods))
}
