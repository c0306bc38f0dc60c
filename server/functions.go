// functions.go - Prozess-lokale Registry fuer Batch-Rechenfunktionen
//
// Diese Datei enthaelt:
// - Function: Eine registrierte Rechenfunktion mit Ausgabe-Stelligkeit
// - RegisterFunction/LookupFunction: Registry-Zugriff
// - Builtins: identity, scale
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/7blacky7/tensorbatch/batching"
	"github.com/7blacky7/tensorbatch/tensor"
)

// Function ist eine am Server registrierte Batch-Rechenfunktion.
// Run erhaelt die konkatenierten Eingaben gefolgt von den captured
// inputs; NumOutputs liefert die Ausgabe-Stelligkeit fuer numInputs
// Eingangskanten.
type Function struct {
	NumOutputs func(numInputs int) int
	Run        batching.ComputeFunc
}

var (
	functionsMu sync.RWMutex
	functions   = make(map[string]Function)
)

// RegisterFunction registriert eine Rechenfunktion unter name.
// Doppelte Registrierung ist ein Programmierfehler.
func RegisterFunction(name string, fn Function) {
	functionsMu.Lock()
	defer functionsMu.Unlock()
	if _, ok := functions[name]; ok {
		panic("server: function already registered: " + name)
	}
	functions[name] = fn
}

// LookupFunction gibt die Funktion unter name zurueck
func LookupFunction(name string) (Function, bool) {
	functionsMu.RLock()
	defer functionsMu.RUnlock()
	fn, ok := functions[name]
	return fn, ok
}

func init() {
	// identity reicht die konkatenierten Eingaben unveraendert durch
	RegisterFunction("identity", Function{
		NumOutputs: func(numInputs int) int { return numInputs },
		Run: func(_ context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
			return inputs, nil
		},
	})

	// scale multipliziert jede Eingabe elementweise mit dem ersten
	// Element des letzten (captured) Tensors
	RegisterFunction("scale", Function{
		NumOutputs: func(numInputs int) int { return numInputs },
		Run: func(_ context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
			if len(inputs) < 2 {
				return nil, fmt.Errorf("scale requires at least one input and one captured factor")
			}

			factorTensor := inputs[len(inputs)-1]
			if factorTensor.NumElements() < 1 {
				return nil, fmt.Errorf("scale factor tensor is empty")
			}
			factor := factorTensor.Float64s()[0]

			outputs := make([]*tensor.Tensor, 0, len(inputs)-1)
			for _, in := range inputs[:len(inputs)-1] {
				vals := in.Float64s()
				for i := range vals {
					vals[i] *= factor
				}
				out, err := tensor.NewFromFloat64s(in.DType(), in.Shape(), vals)
				if err != nil {
					return nil, err
				}
				outputs = append(outputs, out)
			}
			return outputs, nil
		},
	})
}
