// MODUL: integration_test
// ZWECK: Roundtrip ueber den ganzen Kern: Batch -> Unbatch -> f ->
//        UnbatchGrad stellt den Gradienten bit-identisch in
//        Batch-Reihenfolge wieder her
// NEBENEFFEKTE: startet Scheduler-Worker und Deadline-Enforcer

package unbatch

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/7blacky7/tensorbatch/batching"
	"github.com/7blacky7/tensorbatch/tensor"
)

func TestBatchUnbatchGradRoundTrip(t *testing.T) {
	br, err := batching.NewResource(batching.Options{
		NumBatchThreads:    1,
		MaxBatchSize:       3,
		BatchTimeoutMicros: 50_000,
		MaxEnqueuedBatches: 10,
	})
	if err != nil {
		t.Fatalf("NewResource: %v", err)
	}
	defer br.Close()

	// Zwei Aufrufer fuellen einen Batch der Groesse 3
	in1 := tensor.NewF32([]int{2, 2}, []float32{1, 2, 3, 4})
	in2 := tensor.NewF32([]int{1, 2}, []float32{5, 6})
	ctxs := make([]*batching.CallContext, 2)
	dones := make([]chan struct{}, 2)
	for i, in := range []*tensor.Tensor{in1, in2} {
		ctxs[i] = batching.NewCallContext(context.Background(), "roundtrip", []*tensor.Tensor{in}, nil, 3)
		done := make(chan struct{})
		dones[i] = done
		if err := br.RegisterInput(batching.Key(i+1), ctxs[i], "", func() { close(done) }); err != nil {
			t.Fatalf("RegisterInput %d: %v", i, err)
		}
	}
	for i, done := range dones {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("Batch-done %d feuerte nicht", i)
		}
	}

	// Der letzte Aufrufer traegt Daten und Index
	batched := ctxs[1].Output(0)
	index := ctxs[1].Output(1)
	keys := []int64{ctxs[0].Output(2).I64Value(), ctxs[1].Output(2).I64Value()}

	// Unbatch: jeder Aufrufer erhaelt seinen Original-Tensor
	ur := NewResource(1_000_000)
	defer ur.Close()

	unbatchCtxs := make([]*batching.CallContext, 2)
	unbatchDones := make([]chan struct{}, 2)

	// Aufrufer 0 kommt ohne Daten, Aufrufer 1 liefert den Batch
	unbatchCtxs[0] = newUnbatchContext(tensor.New(tensor.DTypeF32, 0), tensor.New(tensor.DTypeI64, 0, 3), keys[0])
	unbatchDones[0] = make(chan struct{})
	done0 := unbatchDones[0]
	if err := ur.Compute(unbatchCtxs[0], func() { close(done0) }); err != nil {
		t.Fatalf("Unbatch 0: %v", err)
	}

	unbatchCtxs[1] = newUnbatchContext(batched, index, keys[1])
	unbatchDones[1] = make(chan struct{})
	done1 := unbatchDones[1]
	if err := ur.Compute(unbatchCtxs[1], func() { close(done1) }); err != nil {
		t.Fatalf("Unbatch 1: %v", err)
	}

	for i, done := range unbatchDones {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("Unbatch-done %d feuerte nicht", i)
		}
	}

	if diff := cmp.Diff(in1.Float64s(), unbatchCtxs[0].Output(0).Float64s()); diff != "" {
		t.Errorf("Unbatch Aufrufer 0 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(in2.Float64s(), unbatchCtxs[1].Output(0).Float64s()); diff != "" {
		t.Errorf("Unbatch Aufrufer 1 (-want +got):\n%s", diff)
	}

	// f = Identitaet: der Gradient jedes Slices ist der Slice selbst.
	// UnbatchGrad setzt ihn bit-identisch in Batch-Reihenfolge zusammen.
	gr := NewGradResource()

	gradDone0 := make(chan struct{})
	slice0 := newGradContext(tensor.New(tensor.DTypeF32, 0), tensor.New(tensor.DTypeI64, 0, 3), unbatchCtxs[0].Output(0), keys[0])
	if err := gr.Compute(slice0, func() { close(gradDone0) }); err != nil {
		t.Fatalf("UnbatchGrad slice: %v", err)
	}
	<-gradDone0

	gradDoneBatch := make(chan struct{})
	batchGrad := newGradContext(batched, index, unbatchCtxs[1].Output(0), keys[1])
	if err := gr.Compute(batchGrad, func() { close(gradDoneBatch) }); err != nil {
		t.Fatalf("UnbatchGrad batch: %v", err)
	}
	select {
	case <-gradDoneBatch:
	case <-time.After(5 * time.Second):
		t.Fatalf("UnbatchGrad-done feuerte nicht")
	}

	if diff := cmp.Diff(batched.Float64s(), batchGrad.Output(0).Float64s()); diff != "" {
		t.Errorf("wiederhergestellter Gradient (-want +got):\n%s", diff)
	}
}
