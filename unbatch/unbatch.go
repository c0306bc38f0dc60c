// unbatch.go - Schluessel-indiziertes Rendezvous zwischen Kernels und Slices
//
// Diese Datei enthaelt:
// - Resource: Zustand des Unbatch-Rendezvous
// - NewResource: Startet den periodischen Deadline-Enforcer
// - Compute: Paart ankommende Aufrufer mit ankommenden Tensor-Slices
// - enforceTimeout: Raeumt abgelaufene Eintraege aus
//
// Die Resource haelt zwei auf den Batch-Schluessel indizierte Tabellen:
// Callbacks gleichzeitig laufender Kernels die auf ihren Tensor warten,
// und Tensoren die auf ihren Kernel warten. Ein Schluessel steht zu
// jedem Zeitpunkt in hoechstens einer der beiden Tabellen. Laeuft ein
// Kernel, nimmt er entweder seinen bereits wartenden Tensor mit, oder
// er traegt sich ein und bedient mit seinem Index-Tensor alle bereits
// wartenden Kernels.
package unbatch

import (
	"context"
	"sync"
	"time"

	"github.com/7blacky7/tensorbatch/api"
	"github.com/7blacky7/tensorbatch/batching"
	"github.com/7blacky7/tensorbatch/tensor"
)

type waitingTensor struct {
	deadline time.Time
	tensor   *tensor.Tensor
}

type waitingCallback struct {
	deadline time.Time
	context  *batching.CallContext
	done     batching.DoneFunc
}

// Resource ist das Unbatch-Rendezvous fuer eine (container, shared_name)
// Registrierung
type Resource struct {
	timeout time.Duration

	mu               sync.Mutex
	waitingTensors   map[batching.Key]waitingTensor
	waitingCallbacks map[batching.Key]waitingCallback

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Fuer Tests ueberschreibbar
	now func() time.Time
}

// NewResource erstellt die Resource und startet den Deadline-Enforcer
// im 1ms-Takt
func NewResource(timeoutMicros int64) *Resource {
	r := &Resource{
		timeout:          time.Duration(timeoutMicros) * time.Microsecond,
		waitingTensors:   make(map[batching.Key]waitingTensor),
		waitingCallbacks: make(map[batching.Key]waitingCallback),
		now:              time.Now,
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.enforceTimeout()
			}
		}
	}()

	return r
}

// Close stoppt den Deadline-Enforcer
func (r *Resource) Close() error {
	r.cancel()
	r.wg.Wait()
	return nil
}

// Compute nimmt eine Unbatch-Invocation entgegen. Eingaben des Contexts:
// data (konkatenierter Tensor), batch_index ((n,3) oder leer),
// batch_key (i64-Skalar). done feuert auf jedem Pfad genau einmal:
// sofort bei Fehlern, sonst sobald der Slice des Aufrufers vorliegt
// oder die Deadline ablaeuft. Der Rueckgabefehler entspricht dem auf
// dem Context gesetzten Status.
func (r *Resource) Compute(callCtx *batching.CallContext, done batching.DoneFunc) error {
	ownDone := sync.OnceFunc(done)
	fail := func(err error) error {
		callCtx.SetStatus(err)
		ownDone()
		return err
	}

	data := callCtx.Input(0)
	batchIndex := callCtx.Input(1)

	if batchIndex.Dim0() > data.Dim0() {
		return fail(api.InvalidArgumentf("wrong shape for index tensor. Expected 0th dimension size to be no greater than %d; got: %d", data.Dim0(), batchIndex.Dim0()))
	}

	batchKey := batching.Key(callCtx.Input(2).I64Value())
	nonemptyInput := batchIndex.Dim0() > 0

	// Nicht-leere Tensoren werden ausserhalb des kritischen Abschnitts
	// aufgeteilt
	var batchKeys []batching.Key
	var splitInputs []*tensor.Tensor
	if nonemptyInput {
		rows, err := batching.IndexRows(batchIndex)
		if err != nil {
			return fail(err)
		}

		sizes := make([]int, len(rows))
		for i, row := range rows {
			sizes[i] = int(row.End - row.Start)
			batchKeys = append(batchKeys, row.Guid)
		}

		var splitErr error
		splitInputs, splitErr = tensor.Split(data, sizes)
		if splitErr != nil {
			return fail(api.InvalidArgumentf("splitting data tensor: %v", splitErr))
		}
	}

	var doneCallbacksToCall []batching.DoneFunc
	err := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()

		// Liegt der gewuenschte Tensor schon bereit?
		if waiting, ok := r.waitingTensors[batchKey]; ok {
			callCtx.SetOutput(0, waiting.tensor)
			delete(r.waitingTensors, batchKey)
			doneCallbacksToCall = append(doneCallbacksToCall, ownDone)
			return nil
		}

		deadline := r.now().Add(r.timeout)

		// In die Warteliste fuer Tensoren eintragen
		if _, ok := r.waitingCallbacks[batchKey]; ok {
			return api.AlreadyExistsf("multiple session runs with the same batch key")
		}
		r.waitingCallbacks[batchKey] = waitingCallback{deadline, callCtx, ownDone}

		// Wartende Kernels bedienen, uebrige Stuecke ablegen.
		// Der eigene Eintrag von eben wird hier mitbedient, wenn der
		// Index den eigenen Schluessel enthaelt.
		for i, key := range batchKeys {
			if waiting, ok := r.waitingCallbacks[key]; ok {
				waiting.context.SetOutput(0, splitInputs[i])
				doneCallbacksToCall = append(doneCallbacksToCall, waiting.done)
				delete(r.waitingCallbacks, key)
				continue
			}

			if _, ok := r.waitingTensors[key]; ok {
				// Eigene Registrierung zuruecknehmen; done feuert
				// ueber den Fehlerpfad
				delete(r.waitingCallbacks, batchKey)
				return api.AlreadyExistsf("multiple tensors returned for same batch key")
			}
			// Deadline fuer den Fall dass der zugehoerige Kernel
			// bereits gewartet hat und abgelaufen ist
			r.waitingTensors[key] = waitingTensor{deadline, splitInputs[i]}
		}

		return nil
	}()

	for _, doneCallback := range doneCallbacksToCall {
		doneCallback()
	}

	if err != nil {
		return fail(err)
	}
	return nil
}

// enforceTimeout raeumt abgelaufene Tensoren stillschweigend aus und
// meldet abgelaufenen Callbacks DeadlineExceeded
func (r *Resource) enforceTimeout() {
	now := r.now()
	var evicted []waitingCallback

	r.mu.Lock()
	for key, waiting := range r.waitingTensors {
		if waiting.deadline.Before(now) {
			delete(r.waitingTensors, key)
		}
	}
	for key, waiting := range r.waitingCallbacks {
		if waiting.deadline.Before(now) {
			evicted = append(evicted, waiting)
			delete(r.waitingCallbacks, key)
		}
	}
	r.mu.Unlock()

	for _, waiting := range evicted {
		waiting.context.SetStatus(api.DeadlineExceededf("batched data did not arrive within timeout window"))
		waiting.done()
	}
}
