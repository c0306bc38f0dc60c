// tensor.go - Dichter In-Memory-Tensor mit Dim-0 Slice/Concat/Split
//
// Dieses Modul enthaelt:
// - DType: Element-Datentypen (f32, f16, f64, i32, i64)
// - Tensor: Byte-gestuetzter dichter Tensor
// - Konstruktoren: New, NewF32, NewF64, NewI32, NewI64, NewF16, ScalarI64
// - Slice: Zero-Copy-Slice entlang Dimension 0
// - Empty: 0xSuffix-Tensor gleicher Form
//
// Tensoren werden nach Veroeffentlichung nicht mehr mutiert; Slices
// teilen sich den Speicher mit ihrem Ursprung.
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// DType bezeichnet den Element-Datentyp eines Tensors
type DType int

const (
	DTypeF32 DType = iota
	DTypeF16
	DTypeF64
	DTypeI32
	DTypeI64
)

// Size gibt die Elementgroesse in Bytes zurueck
func (d DType) Size() int {
	switch d {
	case DTypeF16:
		return 2
	case DTypeF32, DTypeI32:
		return 4
	default:
		return 8
	}
}

func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "f32"
	case DTypeF16:
		return "f16"
	case DTypeF64:
		return "f64"
	case DTypeI32:
		return "i32"
	case DTypeI64:
		return "i64"
	default:
		return "unknown"
	}
}

// ParseDType parst einen DType-Namen
func ParseDType(s string) (DType, error) {
	switch s {
	case "f32", "float32", "":
		return DTypeF32, nil
	case "f16", "float16":
		return DTypeF16, nil
	case "f64", "float64":
		return DTypeF64, nil
	case "i32", "int32":
		return DTypeI32, nil
	case "i64", "int64":
		return DTypeI64, nil
	default:
		return DTypeF32, fmt.Errorf("unsupported data type: %q", s)
	}
}

// IsFloat meldet ob der Typ ein Gleitkommatyp ist
func (d DType) IsFloat() bool {
	return d == DTypeF32 || d == DTypeF16 || d == DTypeF64
}

// Tensor ist ein dichtes, typisiertes, mehrdimensionales Array.
// Ein Tensor mit leerer Shape ist ein Skalar.
type Tensor struct {
	dtype DType
	shape []int
	data  []byte
}

// New erstellt einen genullten Tensor
func New(dtype DType, shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Tensor{dtype: dtype, shape: shape, data: make([]byte, n*dtype.Size())}
}

// NewF32 erstellt einen f32-Tensor aus Werten. len(vals) muss zur Shape passen.
func NewF32(shape []int, vals []float32) *Tensor {
	t := New(DTypeF32, shape...)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(t.data[i*4:], math.Float32bits(v))
	}
	return t
}

// NewF64 erstellt einen f64-Tensor aus Werten
func NewF64(shape []int, vals []float64) *Tensor {
	t := New(DTypeF64, shape...)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(t.data[i*8:], math.Float64bits(v))
	}
	return t
}

// NewF16 erstellt einen f16-Tensor aus float32-Werten
func NewF16(shape []int, vals []float32) *Tensor {
	t := New(DTypeF16, shape...)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(t.data[i*2:], float16.Fromfloat32(v).Bits())
	}
	return t
}

// NewI32 erstellt einen i32-Tensor aus Werten
func NewI32(shape []int, vals []int32) *Tensor {
	t := New(DTypeI32, shape...)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(t.data[i*4:], uint32(v))
	}
	return t
}

// NewI64 erstellt einen i64-Tensor aus Werten
func NewI64(shape []int, vals []int64) *Tensor {
	t := New(DTypeI64, shape...)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(t.data[i*8:], uint64(v))
	}
	return t
}

// ScalarI64 erstellt einen i64-Skalar (Rang 0)
func ScalarI64(v int64) *Tensor {
	t := New(DTypeI64)
	binary.LittleEndian.PutUint64(t.data, uint64(v))
	return t
}

// DType gibt den Elementtyp zurueck
func (t *Tensor) DType() DType { return t.dtype }

// Shape gibt die Form zurueck. Der Slice darf nicht mutiert werden.
func (t *Tensor) Shape() []int { return t.shape }

// Dims gibt den Rang zurueck
func (t *Tensor) Dims() int { return len(t.shape) }

// Dim gibt die Groesse der i-ten Dimension zurueck
func (t *Tensor) Dim(i int) int { return t.shape[i] }

// Dim0 gibt die Groesse der 0-ten Dimension zurueck, 0 fuer Skalare
func (t *Tensor) Dim0() int {
	if len(t.shape) == 0 {
		return 0
	}
	return t.shape[0]
}

// NumElements gibt die Gesamtzahl der Elemente zurueck
func (t *Tensor) NumElements() int {
	n := 1
	for _, d := range t.shape {
		n *= d
	}
	return n
}

// rowBytes gibt die Byte-Groesse einer Dim-0-Zeile zurueck
func (t *Tensor) rowBytes() int {
	n := t.dtype.Size()
	for _, d := range t.shape[1:] {
		n *= d
	}
	return n
}

// Slice gibt den Zero-Copy-Ausschnitt [lo, hi) entlang Dimension 0 zurueck.
// Der Ausschnitt teilt sich den Speicher mit t.
func (t *Tensor) Slice(lo, hi int) (*Tensor, error) {
	if len(t.shape) == 0 {
		return nil, fmt.Errorf("cannot slice a scalar tensor")
	}
	if lo < 0 || hi < lo || hi > t.shape[0] {
		return nil, fmt.Errorf("slice bounds [%d, %d) out of range for dim0 size %d", lo, hi, t.shape[0])
	}

	shape := append([]int{hi - lo}, t.shape[1:]...)
	row := t.rowBytes()
	return &Tensor{dtype: t.dtype, shape: shape, data: t.data[lo*row : hi*row]}, nil
}

// Empty gibt einen Tensor gleicher Suffix-Form mit Dim-0-Groesse 0 zurueck
func (t *Tensor) Empty() *Tensor {
	shape := append([]int{0}, t.shape[1:]...)
	return &Tensor{dtype: t.dtype, shape: shape, data: nil}
}

// sameSuffix prueft Typ- und Suffix-Form-Gleichheit zweier Tensoren
func sameSuffix(a, b *Tensor) bool {
	if a.dtype != b.dtype || len(a.shape) != len(b.shape) {
		return false
	}
	for i := 1; i < len(a.shape); i++ {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return true
}

// Float64s gibt alle Elemente als float64 zurueck (fuer Wire-Formate und Tests)
func (t *Tensor) Float64s() []float64 {
	out := make([]float64, t.NumElements())
	es := t.dtype.Size()
	for i := range out {
		b := t.data[i*es:]
		switch t.dtype {
		case DTypeF32:
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		case DTypeF16:
			out[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(b)).Float32())
		case DTypeF64:
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b))
		case DTypeI32:
			out[i] = float64(int32(binary.LittleEndian.Uint32(b)))
		case DTypeI64:
			out[i] = float64(int64(binary.LittleEndian.Uint64(b)))
		}
	}
	return out
}

// Int64s gibt alle Elemente als int64 zurueck.
// Nur fuer Integer-Typen sinnvoll.
func (t *Tensor) Int64s() []int64 {
	out := make([]int64, t.NumElements())
	es := t.dtype.Size()
	for i := range out {
		b := t.data[i*es:]
		switch t.dtype {
		case DTypeI32:
			out[i] = int64(int32(binary.LittleEndian.Uint32(b)))
		case DTypeI64:
			out[i] = int64(binary.LittleEndian.Uint64(b))
		case DTypeF32:
			out[i] = int64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		case DTypeF16:
			out[i] = int64(float16.Frombits(binary.LittleEndian.Uint16(b)).Float32())
		case DTypeF64:
			out[i] = int64(math.Float64frombits(binary.LittleEndian.Uint64(b)))
		}
	}
	return out
}

// I64At gibt das i64-Element am flachen Index i zurueck
func (t *Tensor) I64At(i int) int64 {
	return int64(binary.LittleEndian.Uint64(t.data[i*8:]))
}

// I64Value gibt den Wert eines i64-Skalars zurueck
func (t *Tensor) I64Value() int64 {
	return t.I64At(0)
}

// NewFromFloat64s erstellt einen Tensor eines Float-Typs aus float64-Werten
func NewFromFloat64s(dtype DType, shape []int, vals []float64) (*Tensor, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(vals) {
		return nil, fmt.Errorf("shape %v requires %d values; got %d", shape, n, len(vals))
	}

	switch dtype {
	case DTypeF64:
		return NewF64(shape, vals), nil
	case DTypeF32, DTypeF16:
		f32s := make([]float32, len(vals))
		for i, v := range vals {
			f32s[i] = float32(v)
		}
		if dtype == DTypeF16 {
			return NewF16(shape, f32s), nil
		}
		return NewF32(shape, f32s), nil
	default:
		return nil, fmt.Errorf("dtype %s is not a float type", dtype)
	}
}

// NewFromInt64s erstellt einen Tensor eines Integer-Typs aus int64-Werten
func NewFromInt64s(dtype DType, shape []int, vals []int64) (*Tensor, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(vals) {
		return nil, fmt.Errorf("shape %v requires %d values; got %d", shape, n, len(vals))
	}

	switch dtype {
	case DTypeI64:
		return NewI64(shape, vals), nil
	case DTypeI32:
		i32s := make([]int32, len(vals))
		for i, v := range vals {
			i32s[i] = int32(v)
		}
		return NewI32(shape, i32s), nil
	default:
		return nil, fmt.Errorf("dtype %s is not an integer type", dtype)
	}
}
