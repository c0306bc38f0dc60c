// task.go - Typen und Strukturen fuer Batch-Tasks
//
// Diese Datei enthaelt:
// - Key: Opaker 64-bit Batch-Schluessel eines Original-Aufrufs
// - DoneFunc: Abschluss-Callback einer Op-Invocation
// - TensorMatrix: Scatter-Ziel fuer gesplittete Aufrufe
// - CallContext: Handle auf den Originator einer Invocation
// - Task: Ein Stueck Arbeit, ganzer Aufruf oder ein Split davon
package batching

import (
	"context"
	"sync"
	"time"

	"github.com/7blacky7/tensorbatch/tensor"
)

// Key identifiziert einen Original-Aufruf. Wird pro Invocation
// gleichverteilt zufaellig gemuenzt und ist prozessweit mit
// ueberwaeltigender Wahrscheinlichkeit eindeutig.
type Key uint64

// DoneFunc wird genau einmal aufgerufen, wenn die Ausgaben (oder der
// Fehler) einer Invocation veroeffentlicht sind
type DoneFunc func()

// TensorMatrix ist das Scatter-Ziel eines gesplitteten Aufrufs mit
// N Splits und M Ausgaben: Matrix[i][j] ist der i-te Split der j-ten
// Ausgabe. Konkatenation einer Spalte in Split-Reihenfolge ergibt die
// vollstaendige Ausgabe.
type TensorMatrix [][]*tensor.Tensor

// CallContext traegt die Eingaben, Ausgabe-Slots und den Status einer
// Op-Invocation. Ausgaben und Status koennen von mehreren Goroutinen
// gesetzt werden.
type CallContext struct {
	ctx context.Context //nolint:containedctx

	model    string
	inputs   []*tensor.Tensor
	captured []*tensor.Tensor

	mu      sync.Mutex
	outputs []*tensor.Tensor
	err     error
}

// NewCallContext erstellt einen CallContext mit numOutputs Ausgabe-Slots
func NewCallContext(ctx context.Context, model string, inputs, captured []*tensor.Tensor, numOutputs int) *CallContext {
	return &CallContext{
		ctx:      ctx,
		model:    model,
		inputs:   inputs,
		captured: captured,
		outputs:  make([]*tensor.Tensor, numOutputs),
	}
}

// Context gibt den propagierten Kontext des Originators zurueck
func (c *CallContext) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// ModelName gibt den Model-Namen fuer Metriken zurueck
func (c *CallContext) ModelName() string {
	if c.model == "" {
		return "model_name_unset"
	}
	return c.model
}

// Input gibt den i-ten Eingabe-Tensor zurueck
func (c *CallContext) Input(i int) *tensor.Tensor { return c.inputs[i] }

// Inputs gibt alle Eingabe-Tensoren zurueck
func (c *CallContext) Inputs() []*tensor.Tensor { return c.inputs }

// CapturedInputs gibt die unveraendert durchgereichten Seiteneingaben zurueck
func (c *CallContext) CapturedInputs() []*tensor.Tensor { return c.captured }

// NumOutputs gibt die Anzahl der Ausgabe-Slots zurueck
func (c *CallContext) NumOutputs() int { return len(c.outputs) }

// SetOutput setzt den i-ten Ausgabe-Tensor
func (c *CallContext) SetOutput(i int, t *tensor.Tensor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs[i] = t
}

// Output gibt den i-ten Ausgabe-Tensor zurueck
func (c *CallContext) Output(i int) *tensor.Tensor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputs[i]
}

// Outputs gibt eine Kopie der Ausgabe-Liste zurueck
func (c *CallContext) Outputs() []*tensor.Tensor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*tensor.Tensor, len(c.outputs))
	copy(out, c.outputs)
	return out
}

// SetStatus setzt den Abschluss-Status der Invocation
func (c *CallContext) SetStatus(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Status gibt den Abschluss-Status zurueck
func (c *CallContext) Status() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Task ist ein zu batchendes Arbeitsstueck: ein ganzer Original-Aufruf
// oder ein Split davon. Alle Splits eines Aufrufs teilen sich guid,
// output, status, context und capturedInputs.
type Task struct {
	guid Key

	inputs         []*tensor.Tensor
	capturedInputs []*tensor.Tensor

	context *CallContext
	done    DoneFunc

	// Position dieses Splits innerhalb des Original-Aufrufs, 0 ohne Split
	splitIndex int
	isPartial  bool

	// output und status sind von allen Splits des Aufrufs und vom
	// Fan-In-Callback gemeinsam gehalten
	output *TensorMatrix
	status *ThreadSafeStatus

	startTime time.Time
}

// Size gibt die Dim-0-Groesse des Tasks zurueck
func (t *Task) Size() int {
	return t.inputs[0].Dim0()
}

// Guid gibt den Batch-Schluessel des Original-Aufrufs zurueck
func (t *Task) Guid() Key { return t.guid }
