// concat.go - Konkatenation und Aufteilung entlang Dimension 0
//
// Dieses Modul enthaelt:
// - Concat: Konkateniert Tensoren gleicher Suffix-Form
// - Split: Teilt einen Tensor in Abschnitte vorgegebener Groessen
package tensor

import "fmt"

// Concat konkateniert die Eingaben entlang Dimension 0.
// Alle Eingaben muessen denselben Typ und dieselbe Suffix-Form haben.
func Concat(inputs []*Tensor) (*Tensor, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("cannot concatenate zero tensors")
	}

	first := inputs[0]
	if first.Dims() == 0 {
		return nil, fmt.Errorf("cannot concatenate scalar tensors")
	}

	dim0 := 0
	for i, in := range inputs {
		if in.Dims() != first.Dims() {
			return nil, fmt.Errorf("ranks of all input tensors should match: shape[0] = %v vs. shape[%d] = %v", first.shape, i, in.shape)
		}
		if !sameSuffix(first, in) {
			return nil, fmt.Errorf("dimensions of inputs should match: shape[0] = %v vs. shape[%d] = %v", first.shape, i, in.shape)
		}
		dim0 += in.shape[0]
	}

	shape := append([]int{dim0}, first.shape[1:]...)
	out := New(first.dtype, shape...)
	pos := 0
	for _, in := range inputs {
		pos += copy(out.data[pos:], in.data)
	}
	return out, nil
}

// Split teilt t entlang Dimension 0 in len(sizes) Tensoren, wobei der
// i-te Abschnitt Dim-0-Groesse sizes[i] hat. Die Abschnitte sind
// Zero-Copy-Slices von t.
func Split(t *Tensor, sizes []int) ([]*Tensor, error) {
	if t.Dims() == 0 {
		return nil, fmt.Errorf("cannot split a scalar tensor")
	}

	total := 0
	for _, size := range sizes {
		total += size
	}
	if total > t.shape[0] {
		return nil, fmt.Errorf("sum of split sizes must not exceed dim0-size of input tensor")
	}

	outputs := make([]*Tensor, 0, len(sizes))
	pos := 0
	for _, size := range sizes {
		s, err := t.Slice(pos, pos+size)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, s)
		pos += size
	}
	return outputs, nil
}
