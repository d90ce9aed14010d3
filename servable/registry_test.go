package servable

import "testing"

func TestDeclareThenRegisterMethod(t *testing.T) {
	stages := NewStageRegistry()
	reg := NewRegistry(stages)
	if err := reg.DeclareLocal("add1", ServableMeta{InputsCount: 1, OutputsCount: 1}); err != nil {
		t.Fatal(err)
	}
	m := MethodSignature{
		Name:          "run",
		Inputs:        []string{"x"},
		Outputs:       []string{"y"},
		PredictInputs: []SourceTag{{Phase: PhaseInput, Index: 0}},
	}
	if err := reg.RegisterMethod("add1", m); err != nil {
		t.Fatal(err)
	}
	if err := reg.CheckServable("add1"); err != nil {
		t.Fatal(err)
	}
}

func TestDuplicateMethodNameFails(t *testing.T) {
	stages := NewStageRegistry()
	reg := NewRegistry(stages)
	_ = reg.DeclareLocal("s", ServableMeta{})
	m := MethodSignature{Name: "run"}
	_ = reg.RegisterMethod("s", m)
	if err := reg.RegisterMethod("s", m); err == nil {
		t.Fatal("expected error re-registering same method name")
	}
}

func TestRedeclareDifferentTypeFails(t *testing.T) {
	stages := NewStageRegistry()
	reg := NewRegistry(stages)
	_ = reg.DeclareLocal("s", ServableMeta{})
	if err := reg.DeclareDistributed("s", ServableMeta{RankSize: 8, StageSize: 1}); err == nil {
		t.Fatal("expected error redeclaring servable as different type")
	}
}

func TestSourceTagOutOfRangeFails(t *testing.T) {
	stages := NewStageRegistry()
	reg := NewRegistry(stages)
	_ = reg.DeclareLocal("s", ServableMeta{})
	m := MethodSignature{
		Name:          "run",
		Inputs:        []string{"x"},
		PredictInputs: []SourceTag{{Phase: PhaseInput, Index: 5}},
	}
	_ = reg.RegisterMethod("s", m)
	if err := reg.CheckServable("s"); err == nil {
		t.Fatal("expected out-of-range source tag to fail Check")
	}
}

func TestPhaseCannotCiteOwnOutputs(t *testing.T) {
	stages := NewStageRegistry()
	reg := NewRegistry(stages)
	_ = reg.DeclareLocal("s", ServableMeta{})
	m := MethodSignature{
		Name:          "run",
		Inputs:        []string{"x"},
		PredictInputs: []SourceTag{{Phase: PhasePredict, Index: 0}},
	}
	_ = reg.RegisterMethod("s", m)
	if err := reg.CheckServable("s"); err == nil {
		t.Fatal("expected predict citing its own output to fail")
	}
}

func TestRegisterInputOutputInfoArityMismatch(t *testing.T) {
	stages := NewStageRegistry()
	reg := NewRegistry(stages)
	_ = reg.DeclareLocal("s", ServableMeta{})
	if err := reg.RegisterInputOutputInfo("s", 2, 1); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterInputOutputInfo("s", 3, 1); err == nil {
		t.Fatal("expected arity mismatch to fail")
	}
}
