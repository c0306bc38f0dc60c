// resource.go - BatchResource: Ingest, Routing, Dispatch und Scatter
//
// Diese Datei enthaelt:
// - Options: Konstruktionsparameter inkl. allowed_batch_sizes-Validierung
// - Resource: Die Eingangstuer des Batchings
// - RegisterInput: Nimmt die Daten einer Op-Invocation entgegen
// - lookupOrCreateQueue: Queue-Tabelle keyed auf Queue-Name
// - roundToLowestAllowedBatchSize: Quantisierung der Batch-Groesse
package batching

import (
	"context"
	"sync"
	"time"

	"github.com/emirpasic/gods/v2/maps/linkedhashmap"

	"github.com/7blacky7/tensorbatch/api"
	"github.com/7blacky7/tensorbatch/metrics"
	"github.com/7blacky7/tensorbatch/scheduler"
	"github.com/7blacky7/tensorbatch/tensor"
)

// ComputeFunc ist die extern bereitgestellte Batch-Rechenfunktion.
// Sie erhaelt die konkatenierten Eingaben plus captured inputs und
// darf auf einem beliebigen Pool laufen.
type ComputeFunc func(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error)

// Options sind die Konstruktionsparameter einer Resource
type Options struct {
	NumBatchThreads    int
	MaxBatchSize       int
	BatchTimeoutMicros int64
	MaxEnqueuedBatches int

	// AllowedBatchSizes quantisiert die Ausfuehrungs-Groessen; streng
	// aufsteigend, leer erlaubt
	AllowedBatchSizes []int

	// Function macht die Resource zur BatchFunction-Form. nil ergibt
	// die funktionslose Form mit Index-Tensor-Ausgabe.
	Function ComputeFunc

	EnableLargeBatchSplitting bool
}

// validate prueft die allowed_batch_sizes Regeln
func (o Options) validate() error {
	last := 0
	for i, size := range o.AllowedBatchSizes {
		if size <= last {
			return api.InvalidArgumentf("allowed_batch_sizes entries must be monotonically increasing")
		}
		if !o.EnableLargeBatchSplitting && i == len(o.AllowedBatchSizes)-1 && size != o.MaxBatchSize {
			return api.InvalidArgumentf("final entry in allowed_batch_sizes must equal max_batch_size when enable_large_batch_splitting is False")
		}
		last = size
	}
	return nil
}

// Resource kapselt Zustand und Logik des Tensor-Batchings
type Resource struct {
	batcher      *scheduler.Scheduler
	queueOptions scheduler.QueueOptions

	allowedBatchSizes []int
	fn                ComputeFunc

	mu     sync.Mutex
	queues *linkedhashmap.Map[string, *scheduler.Queue]
}

// NewResource erstellt eine Resource samt Scheduler
func NewResource(opts Options) (*Resource, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	batcher, err := scheduler.New(scheduler.Options{NumBatchThreads: opts.NumBatchThreads})
	if err != nil {
		return nil, err
	}

	r := &Resource{
		batcher:           batcher,
		allowedBatchSizes: opts.AllowedBatchSizes,
		fn:                opts.Function,
		queues:            linkedhashmap.New[string, *scheduler.Queue](),
	}

	r.queueOptions = scheduler.QueueOptions{
		InputBatchSizeLimit:       opts.MaxBatchSize,
		MaxEnqueuedBatches:        opts.MaxEnqueuedBatches,
		BatchTimeout:              time.Duration(opts.BatchTimeoutMicros) * time.Microsecond,
		EnableLargeBatchSplitting: opts.EnableLargeBatchSplitting,
	}
	if opts.EnableLargeBatchSplitting {
		r.queueOptions.SplitInputTask = splitInputTask

		if len(opts.AllowedBatchSizes) == 0 {
			r.queueOptions.MaxExecutionBatchSize = opts.MaxBatchSize
		} else {
			r.queueOptions.MaxExecutionBatchSize = opts.AllowedBatchSizes[len(opts.AllowedBatchSizes)-1]
		}
	}

	return r, nil
}

// Close stoppt den Scheduler der Resource
func (r *Resource) Close() error {
	r.batcher.Close()
	return nil
}

// RegisterInput nimmt die Daten einer Op-Invocation entgegen. Sie
// werden eingereiht und asynchron mit anderen zu einem Batch kombiniert.
// Gleichzeitige Aufrufe sind unabhaengig; die Serialisierung je Queue
// uebernimmt der Scheduler.
func (r *Resource) RegisterInput(guid Key, callCtx *CallContext, queueName string, done DoneFunc) error {
	inputs := callCtx.Inputs()
	if len(inputs) == 0 {
		return api.InvalidArgumentf("batching requires at least one input tensor")
	}
	for _, in := range inputs {
		if in.Dims() == 0 {
			return api.InvalidArgumentf("batching input tensors must have at least one dimension")
		}
		if len(inputs) >= 2 && in.Dim0() != inputs[0].Dim0() {
			return api.InvalidArgumentf("batching input tensors supplied in a given op invocation must have equal 0th-dimension size")
		}
	}

	metrics.RecordInputBatchSize(inputs[0].Dim0(), callCtx.ModelName())

	task := &Task{
		guid:           guid,
		inputs:         inputs,
		capturedInputs: callCtx.CapturedInputs(),
		context:        callCtx,
		done:           done,
		output:         &TensorMatrix{},
		status:         NewThreadSafeStatus(),
		startTime:      time.Now(),
	}

	queue, err := r.lookupOrCreateQueue(queueName)
	if err != nil {
		return err
	}
	return queue.Schedule(task)
}

// lookupOrCreateQueue gibt die Queue fuer queueName zurueck und legt sie
// beim ersten Zugriff auf dem Scheduler an.
// TODO(queue-gc): leere Queues bleiben fuer die Lebensdauer der Resource
// bestehen; zeitbasierte Entfernung waere moeglich ohne die externen
// Vertraege zu aendern.
func (r *Resource) lookupOrCreateQueue(queueName string) (*scheduler.Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if queue, ok := r.queues.Get(queueName); ok {
		return queue, nil
	}

	var process scheduler.ProcessBatchFunc
	if r.fn != nil {
		process = r.processFuncBatch
	} else {
		process = r.processBatch
	}

	queue, err := r.batcher.AddQueue(r.queueOptions, process)
	if err != nil {
		return nil, err
	}
	r.queues.Put(queueName, queue)
	return queue, nil
}

// roundToLowestAllowedBatchSize gibt den kleinsten erlaubten Eintrag
// >= batchSize zurueck. Ohne allowed_batch_sizes, oder wenn der Batch
// den groessten Eintrag uebersteigt, wird batchSize unveraendert
// zurueckgegeben.
func (r *Resource) roundToLowestAllowedBatchSize(batchSize int) int {
	for _, allowed := range r.allowedBatchSizes {
		if allowed >= batchSize {
			return allowed
		}
	}
	return batchSize
}

// exceedsAllowedBatchSizes meldet ob batchSize den groessten erlaubten
// Eintrag uebersteigt
func (r *Resource) exceedsAllowedBatchSizes(batchSize int) bool {
	return len(r.allowedBatchSizes) > 0 && batchSize > r.allowedBatchSizes[len(r.allowedBatchSizes)-1]
}

// QueueStat sind die Statistiken einer Batcher-Queue
type QueueStat struct {
	Name      string
	Pending   int
	Scheduled int64
	Processed int64
}

// QueueStats gibt Statistiken aller Queues in Anlege-Reihenfolge zurueck
func (r *Resource) QueueStats() []QueueStat {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]QueueStat, 0, r.queues.Size())
	for _, name := range r.queues.Keys() {
		queue, _ := r.queues.Get(name)
		pending, scheduled, processed := queue.Stats()
		stats = append(stats, QueueStat{Name: name, Pending: pending, Scheduled: scheduled, Processed: processed})
	}
	return stats
}
