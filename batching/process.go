// process.go - Verarbeitung geformter Batches
//
// Diese Datei enthaelt:
// - validateBatch: Eingangskanten-Pruefung
// - concatInputTensors: Konkatenation und Padding der Batch-Eingaben
// - processFuncBatch: Function-gestuetzte Verarbeitung mit Scatter
// - splitOutputTensors: Aufteilung der Funktionsausgaben auf die Tasks
// - processBatch: Funktionslose Verarbeitung mit Index-Tensor
package batching

import (
	"log/slog"
	"time"

	"github.com/7blacky7/tensorbatch/api"
	"github.com/7blacky7/tensorbatch/logutil"
	"github.com/7blacky7/tensorbatch/metrics"
	"github.com/7blacky7/tensorbatch/scheduler"
	"github.com/7blacky7/tensorbatch/tensor"
)

// batchTasks gibt die Tasks eines Scheduler-Batches typisiert zurueck
func batchTasks(batch *scheduler.Batch) []*Task {
	tasks := make([]*Task, batch.NumTasks())
	for i := range tasks {
		tasks[i] = batch.Task(i).(*Task)
	}
	return tasks
}

// validateBatch prueft dass alle Tasks dieselbe Anzahl Eingangskanten haben
func validateBatch(tasks []*Task) error {
	for _, task := range tasks {
		if len(task.inputs) != len(tasks[0].inputs) {
			return api.InvalidArgumentf("batching inputs must have equal number of edges")
		}
	}
	return nil
}

// concatInputTensors konkateniert je Eingangskante die Task-Tensoren und
// fuellt mit Kopien der ersten Zeile des ersten Tasks auf die erlaubte
// Batch-Groesse auf
func (r *Resource) concatInputTensors(tasks []*Task, batchSize int, modelName string) ([]*tensor.Tensor, error) {
	if r.exceedsAllowedBatchSizes(batchSize) {
		slog.Error("maximum batch size greater than largest allowed size; ignoring allowed sizes constraint", "batch_size", batchSize)
		metrics.RecordOversizeBatch(modelName)
	}

	paddedBatchSize := r.roundToLowestAllowedBatchSize(batchSize)
	paddingAmount := paddedBatchSize - batchSize
	metrics.RecordPaddingSize(paddingAmount, modelName, paddedBatchSize)
	metrics.RecordProcessedBatchSize(paddedBatchSize, modelName)

	numInputs := len(tasks[0].inputs)
	concatenated := make([]*tensor.Tensor, 0, numInputs)

	for i := range numInputs {
		toConcatenate := make([]*tensor.Tensor, 0, len(tasks)+paddingAmount)
		for _, task := range tasks {
			toConcatenate = append(toConcatenate, task.inputs[i])
		}

		if paddingAmount > 0 {
			paddingSource := tasks[0].inputs[i]
			if paddingSource.Dim0() == 0 {
				return nil, api.InvalidArgumentf("cannot use an empty tensor with zero rows as padding when batching. (Input %d got shape %v.)", i, paddingSource.Shape())
			}
			padding, err := paddingSource.Slice(0, 1)
			if err != nil {
				return nil, api.Internalf("slicing padding source: %v", err)
			}
			for range paddingAmount {
				toConcatenate = append(toConcatenate, padding)
			}
		}

		out, err := tensor.Concat(toConcatenate)
		if err != nil {
			return nil, api.InvalidArgumentf("concatenating batch inputs: %v", err)
		}
		concatenated = append(concatenated, out)
	}
	return concatenated, nil
}

// recordBatchDelay erfasst die Wartezeit jedes Tasks im Batch
func recordBatchDelay(tasks []*Task, modelName string) {
	now := time.Now()
	for _, task := range tasks {
		metrics.RecordBatchDelay(now.Sub(task.startTime), modelName)
	}
}

// propagateStatus meldet err an jeden Task und feuert dessen Callback.
// Fuer Splits wandert der Fehler in den geteilten Status, sonst direkt
// in den Context des Aufrufers.
func propagateStatus(tasks []*Task, err error) {
	for _, task := range tasks {
		if task.isPartial {
			task.status.Update(err)
		} else {
			task.context.SetStatus(err)
		}
		task.done()
	}
}

// processFuncBatch verarbeitet einen Batch mit der Rechenfunktion.
// Der aufrufende Worker bleibt blockiert bis Ausfuehrung und Scatter
// abgeschlossen sind; das gibt dem Upstream Zeit zum Sammeln.
func (r *Resource) processFuncBatch(batch *scheduler.Batch) {
	if batch.NumTasks() == 0 {
		return
	}
	tasks := batchTasks(batch)

	// Der propagierte Kontext des letzten Tasks traegt den
	// Aufrufer-Scope auf den Batching-Thread
	lastTask := tasks[len(tasks)-1]
	ctx := lastTask.context.Context()
	modelName := lastTask.context.ModelName()

	// Unabhaengig vom Ausgang muss jeder Task seinen Status erhalten
	// und genau einmal abgeschlossen werden
	cleanupDone := false
	cleanup := func(err error) {
		if cleanupDone {
			return
		}
		cleanupDone = true
		propagateStatus(tasks, err)
	}

	if err := validateBatch(tasks); err != nil {
		cleanup(err)
		return
	}

	concatenated, err := r.concatInputTensors(tasks, batch.Size(), modelName)
	if err != nil {
		cleanup(err)
		return
	}

	recordBatchDelay(tasks, modelName)

	args := make([]*tensor.Tensor, 0, len(concatenated)+len(lastTask.capturedInputs))
	args = append(args, concatenated...)
	args = append(args, lastTask.capturedInputs...)

	logutil.Trace("processing function batch", "tasks", len(tasks), "size", batch.Size(), "model", modelName)

	done := make(chan struct{})
	go func() {
		defer close(done)

		combinedOutputs, err := r.fn(ctx, args)
		if err != nil {
			cleanup(err)
			return
		}
		cleanup(r.splitOutputTensors(combinedOutputs, tasks, batch.Size()))
	}()

	// Backpressure: Worker wartet auf den Abschluss des Batches
	<-done
}

// splitOutputTensors teilt jede Funktionsausgabe nach den Task-Groessen
// (plus optionalem Padding-Rest, der verworfen wird) und verteilt die
// Stuecke an die Tasks bzw. in die geteilte Ausgabematrix
func (r *Resource) splitOutputTensors(combinedOutputs []*tensor.Tensor, tasks []*Task, batchSize int) error {
	taskSizesPlusOptionalPadding := make([]int, 0, len(tasks)+1)
	for _, task := range tasks {
		taskSizesPlusOptionalPadding = append(taskSizesPlusOptionalPadding, task.Size())
	}
	paddingSize := r.roundToLowestAllowedBatchSize(batchSize) - batchSize
	if paddingSize > 0 {
		taskSizesPlusOptionalPadding = append(taskSizesPlusOptionalPadding, paddingSize)
	}

	if len(combinedOutputs) != tasks[0].context.NumOutputs() {
		return api.Internalf("wrong number of batched output tensors")
	}

	for i, output := range combinedOutputs {
		if output.Dims() == 0 {
			return api.FailedPreconditionf("batched output tensor has 0 dimensions")
		}
		if output.Dim0() != batchSize+paddingSize {
			return api.FailedPreconditionf("batched output tensor's 0th dimension does not equal the sum of the 0th dimension sizes of the input tensors")
		}

		splits, err := tensor.Split(output, taskSizesPlusOptionalPadding)
		if err != nil {
			return api.Internalf("tensor split operation failed: %v", err)
		}
		if len(splits) != len(taskSizesPlusOptionalPadding) {
			return api.Internalf("tensor split operation did not work as expected; got %d splits; expected %d", len(splits), len(taskSizesPlusOptionalPadding))
		}

		// Ein moeglicher letzter Split enthaelt das Padding und wird
		// ignoriert
		for j, task := range tasks {
			if task.isPartial {
				(*task.output)[task.splitIndex][i] = splits[j]
			} else {
				task.context.SetOutput(i, splits[j])
			}
		}
	}
	return nil
}

// processBatch verarbeitet einen Batch ohne Rechenfunktion: die
// konkatenierten Tensoren, der Index-Tensor und die Task-Guids werden
// als Op-Ausgaben emittiert. Nur der letzte Task erhaelt die
// konkatenierten Ausgaben, die uebrigen leere Tensoren, damit die
// Ausgabe-Stelligkeit je Aufrufer erhalten bleibt.
func (r *Resource) processBatch(batch *scheduler.Batch) {
	if batch.NumTasks() == 0 {
		return
	}
	tasks := batchTasks(batch)
	lastTask := tasks[len(tasks)-1]
	modelName := lastTask.context.ModelName()

	if err := validateBatch(tasks); err != nil {
		propagateStatus(tasks, err)
		return
	}

	numInputEdges := len(tasks[0].inputs)
	concatenated, err := r.concatInputTensors(tasks, batch.Size(), modelName)
	if err != nil {
		propagateStatus(tasks, err)
		return
	}

	recordBatchDelay(tasks, modelName)

	for i := range numInputEdges {
		lastTask.context.SetOutput(i, concatenated[i])

		for _, task := range tasks[:len(tasks)-1] {
			task.context.SetOutput(i, task.inputs[i].Empty())
		}
	}

	// Leere Index-Tensoren fuer alle Tasks ausser dem letzten
	for _, task := range tasks[:len(tasks)-1] {
		task.context.SetOutput(numInputEdges, tensor.New(tensor.DTypeI64, 0, 3))
	}
	lastTask.context.SetOutput(numInputEdges, NewIndexTensor(tasks))

	// Guid-Skalar fuer jeden Task
	for _, task := range tasks {
		task.context.SetOutput(numInputEdges+1, tensor.ScalarI64(int64(task.guid)))
	}

	for _, task := range tasks {
		task.done()
	}
}
