// grad.go - Deterministische Wiederzusammensetzung von Gradienten-Slices
//
// Diese Datei enthaelt:
// - GradResource: Zustand der Gradienten-Rebatching-Seite
// - Compute: Nimmt einen Gradienten-Slice entgegen
// - outputBatch: Konkateniert einen vollstaendigen Batch in Index-Reihenfolge
//
// Jeder Schluessel in desiredTensorToBatch steht im missing-Set genau
// eines Eintrags von availableBatches; das missing-Set eines
// unvollstaendigen Batches entspricht seinen offenen Wuenschen.
package unbatch

import (
	"sync"

	"github.com/7blacky7/tensorbatch/api"
	"github.com/7blacky7/tensorbatch/batching"
	"github.com/7blacky7/tensorbatch/tensor"
)

// pendingBatch ist ein noch unvollstaendiger Batch. Sobald missing leer
// ist, werden die Tensoren in Index-Reihenfolge konkateniert und ueber
// den Context ausgeliefert.
type pendingBatch struct {
	missing map[batching.Key]struct{}
	context *batching.CallContext
	done    batching.DoneFunc
}

// GradResource batcht Gradienten-Tensoren deterministisch fuer den
// Gradienten von Unbatch
type GradResource struct {
	mu sync.Mutex

	// Angekommene Gradienten-Slices nach Schluessel
	availableTensors map[batching.Key]*tensor.Tensor

	// Unvollstaendige Batches, keyed auf den Schluessel des Aufrufers
	// der den gebatchten Gradienten ausgeben wird
	availableBatches map[batching.Key]*pendingBatch

	// Inverser Index: fehlender Slice-Schluessel -> wartender Batch
	desiredTensorToBatch map[batching.Key]batching.Key
}

// NewGradResource erstellt eine leere GradResource
func NewGradResource() *GradResource {
	return &GradResource{
		availableTensors:     make(map[batching.Key]*tensor.Tensor),
		availableBatches:     make(map[batching.Key]*pendingBatch),
		desiredTensorToBatch: make(map[batching.Key]batching.Key),
	}
}

// outputBatch liefert einen vollstaendigen Batch aus: die verfuegbaren
// Tensoren werden in der Reihenfolge des Index-Tensors des Contexts
// entnommen, konkateniert und als Ausgabe 0 gesetzt.
// r.mu muss gehalten sein.
func (r *GradResource) outputBatch(callCtx *batching.CallContext, done batching.DoneFunc) error {
	rows, err := batching.IndexRows(callCtx.Input(1))
	if err != nil {
		return err
	}

	tensors := make([]*tensor.Tensor, 0, len(rows))
	for _, row := range rows {
		available, ok := r.availableTensors[row.Guid]
		if !ok {
			return api.Internalf("bad bookkeeping of available tensors")
		}
		tensors = append(tensors, available)
		delete(r.availableTensors, row.Guid)
	}

	concatenated, err := tensor.Concat(tensors)
	if err != nil {
		return api.Internalf("concatenating gradient tensors: %v", err)
	}
	callCtx.SetOutput(0, concatenated)
	done()
	return nil
}

// Compute nimmt die Daten einer UnbatchGrad-Invocation entgegen.
// Eingaben des Contexts: original_data (nur auf Leerheit geprueft),
// batch_index ((n,3)), grad (Gradient des Aufrufer-Slices), batch_key
// (i64-Skalar). done feuert auf jedem Pfad genau einmal.
func (r *GradResource) Compute(callCtx *batching.CallContext, done batching.DoneFunc) error {
	ownDone := sync.OnceFunc(done)
	fail := func(err error) error {
		callCtx.SetStatus(err)
		ownDone()
		return err
	}

	data := callCtx.Input(0)
	batchIndex := callCtx.Input(1)
	grad := callCtx.Input(2)
	batchKey := batching.Key(callCtx.Input(3).I64Value())

	r.mu.Lock()
	defer r.mu.Unlock()

	// Eigenen Tensor als verfuegbar markieren
	if _, ok := r.availableTensors[batchKey]; ok {
		return fail(api.InvalidArgumentf("two runs with the same batch key"))
	}
	r.availableTensors[batchKey] = grad

	if data.NumElements() > 0 {
		// Gueltiger Eingabe-Tensor: Dispatch-Logik anlegen
		if batchIndex.NumElements() == 0 {
			return fail(api.InvalidArgumentf("batch_index is empty while the tensor isn't"))
		}

		rows, err := batching.IndexRows(batchIndex)
		if err != nil {
			return fail(err)
		}

		missing := make(map[batching.Key]struct{})
		for _, row := range rows {
			if _, ok := r.availableTensors[row.Guid]; !ok {
				missing[row.Guid] = struct{}{}
			}
		}

		if len(missing) == 0 {
			if err := r.outputBatch(callCtx, ownDone); err != nil {
				return fail(err)
			}
			return nil
		}

		if _, ok := r.availableBatches[batchKey]; ok {
			return fail(api.InvalidArgumentf("batch key with valid batch used twice"))
		}
		r.availableBatches[batchKey] = &pendingBatch{missing: missing, context: callCtx, done: ownDone}

		for key := range missing {
			if _, ok := r.desiredTensorToBatch[key]; ok {
				return fail(api.InvalidArgumentf("missing tensor wanted by more than one batch"))
			}
			r.desiredTensorToBatch[key] = batchKey
		}
	} else {
		// Ohne gueltigen Eingabe-Tensor: leere Ausgabe, sofort fertig.
		// Der eigene Gradient kann trotzdem einen anderen Batch
		// vervollstaendigen, daher geht es unten weiter.
		callCtx.SetOutput(0, grad.Empty())
		ownDone()
	}

	// Wird der eigene Tensor von einem bestehenden Batch gewuenscht?
	if wantedBy, ok := r.desiredTensorToBatch[batchKey]; ok {
		delete(r.desiredTensorToBatch, batchKey)

		pending, ok := r.availableBatches[wantedBy]
		if !ok {
			return fail(api.InvalidArgumentf("batch no longer exists"))
		}
		delete(pending.missing, batchKey)

		// Sind alle Tensoren da, wird der Batch konkateniert und
		// ausgeliefert
		if len(pending.missing) == 0 {
			if err := r.outputBatch(pending.context, pending.done); err != nil {
				return fail(err)
			}
			delete(r.availableBatches, wantedBy)
		}
	}

	return nil
}
