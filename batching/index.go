// index.go - Index-Tensor zwischen Batch-, Unbatch- und Gradienten-Seite
//
// Dieses Modul enthaelt:
// - NewIndexTensor: Erzeugt den (N,3)-Index aus einem Batch
// - IndexRow: Eine dekodierte Index-Zeile
// - IndexRows: Dekodiert einen Index-Tensor
//
// Zeile i besagt: die Zeilen [start, end) des konkatenierten Tensors
// gehoeren zum Original-Aufruf mit Schluessel guid. Der Index wird von
// der Batch-Seite erzeugt und unveraendert von Unbatch und UnbatchGrad
// konsumiert.
package batching

import (
	"github.com/7blacky7/tensorbatch/api"
	"github.com/7blacky7/tensorbatch/tensor"
)

// NewIndexTensor erzeugt den Index-Tensor fuer die Tasks eines Batches.
// Offsets sind Dim-0-Einheiten im konkatenierten Tensor.
func NewIndexTensor(tasks []*Task) *tensor.Tensor {
	rows := make([]int64, 0, len(tasks)*3)
	offset := int64(0)
	for _, task := range tasks {
		size := int64(task.Size())
		rows = append(rows, int64(task.guid), offset, offset+size)
		offset += size
	}
	return tensor.NewI64([]int{len(tasks), 3}, rows)
}

// IndexRow ist eine dekodierte Zeile eines Index-Tensors
type IndexRow struct {
	Guid  Key
	Start int64
	End   int64
}

// IndexRows dekodiert einen Index-Tensor der Form (N,3).
// Ein leerer Tensor (Dim-0 gleich 0) ergibt null Zeilen.
func IndexRows(t *tensor.Tensor) ([]IndexRow, error) {
	if t.Dims() != 2 || t.Dim(1) != 3 {
		return nil, api.InvalidArgumentf("wrong shape for index tensor. Expected 1st dimension size to be 3; got shape %v", t.Shape())
	}
	if t.DType() != tensor.DTypeI64 {
		return nil, api.InvalidArgumentf("index tensor must be i64; got %s", t.DType())
	}

	n := t.Dim0()
	rows := make([]IndexRow, n)
	for i := range n {
		rows[i] = IndexRow{
			Guid:  Key(t.I64At(i * 3)),
			Start: t.I64At(i*3 + 1),
			End:   t.I64At(i*3 + 2),
		}
	}
	return rows, nil
}
