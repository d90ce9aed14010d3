package master

import (
	"context"
	"testing"
	"time"

	"github.com/aiserve/msserve/wire/mspb"
)

func TestServerRegisterRecordsWorkerAddress(t *testing.T) {
	d := NewDispatcher(time.Second)
	s := NewServer(d, nil)

	req := &mspb.RegisterRequest{
		Address: "127.0.0.1:0",
		WorkerSpecs: []mspb.WorkerSpec{
			{ServableName: "resnet", VersionNumber: 1, Methods: []mspb.WorkerMethodInfo{{Name: "predict"}}},
		},
	}
	if _, err := s.Register(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	d.mu.RLock()
	list, ok := d.workers["resnet"]
	d.mu.RUnlock()
	if !ok || len(list) != 1 {
		t.Fatalf("expected one registered worker, got %v", list)
	}
	if list[0].Spec.WorkerAddress != "127.0.0.1:0" {
		t.Fatalf("expected registered address to be set, got %q", list[0].Spec.WorkerAddress)
	}
}

func TestServerExitUnregistersAddress(t *testing.T) {
	d := NewDispatcher(time.Second)
	s := NewServer(d, nil)
	d.AddServable(mspb.WorkerSpec{ServableName: "resnet", VersionNumber: 1, WorkerAddress: "a1"}, nil, &fakeInProcessWorker{})

	if _, err := s.Exit(context.Background(), &mspb.ExitRequest{Address: "a1"}); err != nil {
		t.Fatal(err)
	}
	d.mu.RLock()
	_, ok := d.workers["resnet"]
	d.mu.RUnlock()
	if ok {
		t.Fatal("expected resnet entries to be removed after Exit")
	}
}
