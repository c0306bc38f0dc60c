// types.go - Wire-Typen fuer die tensorbatch HTTP-API
// Enthaelt: StatusError, TensorPayload, BatchRequest/-Response,
// UnbatchRequest/-Response, UnbatchGradRequest/-Response, StatusResponse
package api

import "fmt"

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return "something went wrong, please see the tensorbatch server logs for details"
	}
}

// TensorPayload ist die JSON-Darstellung eines Tensors.
// Float-Typen (f32, f16, f64) nutzen floats, Integer-Typen (i32, i64) ints.
type TensorPayload struct {
	DType  string    `json:"dtype"`
	Shape  []int     `json:"shape"`
	Floats []float64 `json:"floats,omitempty"`
	Ints   []int64   `json:"ints,omitempty"`
}

// BatchRequest ist eine Batch- bzw. BatchFunction-Op-Invocation
type BatchRequest struct {
	Container     string `json:"container"`
	SharedName    string `json:"shared_name"`
	BatchingQueue string `json:"batching_queue"`

	NumBatchThreads    int   `json:"num_batch_threads"`
	MaxBatchSize       int   `json:"max_batch_size"`
	BatchTimeoutMicros int64 `json:"batch_timeout_micros"`
	MaxEnqueuedBatches int   `json:"max_enqueued_batches"`
	AllowedBatchSizes  []int `json:"allowed_batch_sizes"`

	// Function macht die Invocation zu einer BatchFunction-Op.
	// Der Name muss vorab am Server registriert sein.
	Function                  string `json:"f,omitempty"`
	EnableLargeBatchSplitting bool   `json:"enable_large_batch_splitting,omitempty"`

	InTensors       []TensorPayload `json:"in_tensors"`
	CapturedTensors []TensorPayload `json:"captured_tensors,omitempty"`
}

// BatchResponse enthaelt die Op-Ausgaben einer Batch-Invocation.
// Bei der funktionslosen Form: konkatenierte Tensoren, Index-Tensor, Id.
// Bei BatchFunction: die pro Aufrufer zugeteilten Funktionsausgaben.
type BatchResponse struct {
	Outputs []TensorPayload `json:"outputs"`
	ID      uint64          `json:"id,string"`
}

// UnbatchRequest ist eine Unbatch-Op-Invocation
type UnbatchRequest struct {
	Container  string `json:"container"`
	SharedName string `json:"shared_name"`

	TimeoutMicros int64 `json:"timeout_micros"`

	Data       TensorPayload `json:"data"`
	BatchIndex TensorPayload `json:"batch_index"`
	BatchKey   uint64        `json:"batch_key,string"`
}

// UnbatchResponse enthaelt den Slice des Aufrufers
type UnbatchResponse struct {
	Output TensorPayload `json:"output"`
}

// UnbatchGradRequest ist eine UnbatchGrad-Op-Invocation
type UnbatchGradRequest struct {
	Container  string `json:"container"`
	SharedName string `json:"shared_name"`

	OriginalData TensorPayload `json:"original_data"`
	BatchIndex   TensorPayload `json:"batch_index"`
	Grad         TensorPayload `json:"grad"`
	BatchKey     uint64        `json:"batch_key,string"`
}

// UnbatchGradResponse enthaelt den wieder zusammengesetzten Gradienten
type UnbatchGradResponse struct {
	Output TensorPayload `json:"output"`
}

// QueueStatus beschreibt eine Batcher-Queue fuer die Status-Anzeige
type QueueStatus struct {
	Resource         string `json:"resource"`
	Queue            string `json:"queue"`
	PendingBatches   int    `json:"pending_batches"`
	ScheduledTasks   int64  `json:"scheduled_tasks"`
	ProcessedBatches int64  `json:"processed_batches"`
}

// StatusResponse listet alle Batch-Resources und ihre Queues
type StatusResponse struct {
	Queues []QueueStatus `json:"queues"`
}
