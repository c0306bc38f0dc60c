// split.go - Aufteilung uebergrosser Tasks auf mehrere Batches
//
// Diese Datei enthaelt:
// - splitInputTask: Split-Policy fuer den Scheduler
//
// Die Task-Groessen von links nach rechts sind
// [open_batch_remaining_slot, max_execution_batch_size, ...,
// input_size - Summe-der-vorherigen]; der erste Eintrag entfaellt wenn
// der offene Batch keinen Platz mehr hat. Der Fan-In-Callback der
// Barrier konkateniert die Zeilen der geteilten Ausgabematrix in
// Split-Reihenfolge und meldet den geteilten Status genau einmal an den
// Original-Aufrufer.
package batching

import (
	"fmt"

	"github.com/7blacky7/tensorbatch/api"
	"github.com/7blacky7/tensorbatch/scheduler"
	"github.com/7blacky7/tensorbatch/tensor"
)

// splitInputTask teilt task entlang Dimension 0 in Subtasks.
// Vorbedingung: task.Size() > openBatchRemainingSlot.
func splitInputTask(schedTask scheduler.Task, openBatchRemainingSlot, maxExecutionBatchSize int) ([]scheduler.Task, error) {
	input, ok := schedTask.(*Task)
	if !ok {
		return nil, fmt.Errorf("unexpected task type %T", schedTask)
	}

	inputSize := input.Size()
	if inputSize <= openBatchRemainingSlot {
		return nil, fmt.Errorf("input task of size %d fits the open batch slot %d and does not need splitting", inputSize, openBatchRemainingSlot)
	}

	callCtx := input.context
	sharedStatus := input.status
	sharedOutput := input.output
	originalDone := input.done

	// Laeuft erst wenn alle Subtasks abgeschlossen sind
	splitTaskDone := func() {
		numOutputs := callCtx.NumOutputs()
		for i := range numOutputs {
			toConcatenate := make([]*tensor.Tensor, 0, len(*sharedOutput))
			for j := range *sharedOutput {
				toConcatenate = append(toConcatenate, (*sharedOutput)[j][i])
			}

			merged, err := tensor.Concat(toConcatenate)
			if err != nil {
				sharedStatus.Update(api.Internalf("merging split outputs: %v", err))
				continue
			}
			callCtx.SetOutput(i, merged)
		}

		callCtx.SetStatus(sharedStatus.Err())
		originalDone()
	}
	barrier := NewIncrementalBarrier(splitTaskDone)
	defer barrier.Done()

	var outputTaskSizes []int
	if openBatchRemainingSlot > 0 {
		outputTaskSizes = append(outputTaskSizes, openBatchRemainingSlot)
	}
	for left := inputSize - openBatchRemainingSlot; left > 0; left -= maxExecutionBatchSize {
		outputTaskSizes = append(outputTaskSizes, min(left, maxExecutionBatchSize))
	}

	numOutputTasks := len(outputTaskSizes)
	*sharedOutput = make(TensorMatrix, numOutputTasks)
	for i := range numOutputTasks {
		(*sharedOutput)[i] = make([]*tensor.Tensor, callCtx.NumOutputs())
	}

	outputTasks := make([]*Task, 0, numOutputTasks)
	for i := range numOutputTasks {
		outputTasks = append(outputTasks, &Task{
			guid:           input.guid,
			capturedInputs: input.capturedInputs,
			context:        callCtx,
			done:           barrier.Inc(),
			splitIndex:     i,
			isPartial:      true,
			output:         sharedOutput,
			status:         sharedStatus,
			startTime:      input.startTime,
			inputs:         make([]*tensor.Tensor, 0, len(input.inputs)),
		})
	}

	// Teilt jeden Eingabe-Tensor nach outputTaskSizes und verteilt
	// Zeile i an Subtask i
	for _, inputTensor := range input.inputs {
		splits, err := tensor.Split(inputTensor, outputTaskSizes)
		if err != nil {
			return nil, api.Internalf("when splitting input, tensor split operation failed: %v", err)
		}
		if len(splits) != numOutputTasks {
			return nil, api.Internalf("when splitting input, tensor split operation did not work as expected; got %d splits; expected %d", len(splits), numOutputTasks)
		}
		for j, split := range splits {
			outputTasks[j].inputs = append(outputTasks[j].inputs, split)
		}
	}

	schedTasks := make([]scheduler.Task, len(outputTasks))
	for i, task := range outputTasks {
		schedTasks[i] = task
	}
	return schedTasks, nil
}
