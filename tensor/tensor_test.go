// MODUL: tensor_test
// ZWECK: Tests fuer Slice, Concat, Split und DType-Konvertierung
// INPUT: Synthetische Tensoren
// OUTPUT: Testresultate
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: testing, go-cmp
// HINWEISE: Slices muessen Zero-Copy sein und Concat muss die
// Suffix-Form pruefen

package tensor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSliceSharesStorage(t *testing.T) {
	full := NewF32([]int{4, 2}, []float32{1, 2, 3, 4, 5, 6, 7, 8})

	s, err := full.Slice(1, 3)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}

	if got, want := s.Dim0(), 2; got != want {
		t.Errorf("Dim0 = %d, erwartet %d", got, want)
	}
	if diff := cmp.Diff([]float64{3, 4, 5, 6}, s.Float64s()); diff != "" {
		t.Errorf("Slice-Werte (-want +got):\n%s", diff)
	}

	// Zero-Copy: gleiche Backing-Bytes
	if &s.data[0] != &full.data[1*full.rowBytes()] {
		t.Errorf("Slice teilt sich den Speicher nicht mit dem Ursprung")
	}
}

func TestSliceBounds(t *testing.T) {
	full := NewF32([]int{2, 2}, []float32{1, 2, 3, 4})

	if _, err := full.Slice(1, 3); err == nil {
		t.Errorf("Slice ausserhalb der Grenzen sollte fehlschlagen")
	}
	if _, err := ScalarI64(1).Slice(0, 1); err == nil {
		t.Errorf("Slice eines Skalars sollte fehlschlagen")
	}
}

func TestConcat(t *testing.T) {
	a := NewF32([]int{2, 2}, []float32{1, 2, 3, 4})
	b := NewF32([]int{1, 2}, []float32{5, 6})

	out, err := Concat([]*Tensor{a, b})
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}

	if diff := cmp.Diff([]int{3, 2}, out.Shape()); diff != "" {
		t.Errorf("Shape (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{1, 2, 3, 4, 5, 6}, out.Float64s()); diff != "" {
		t.Errorf("Werte (-want +got):\n%s", diff)
	}
}

func TestConcatSuffixMismatch(t *testing.T) {
	a := NewF32([]int{2, 2}, []float32{1, 2, 3, 4})
	b := NewF32([]int{2, 3}, []float32{1, 2, 3, 4, 5, 6})

	if _, err := Concat([]*Tensor{a, b}); err == nil {
		t.Errorf("Concat mit abweichender Suffix-Form sollte fehlschlagen")
	}

	c := NewF64([]int{2, 2}, []float64{1, 2, 3, 4})
	if _, err := Concat([]*Tensor{a, c}); err == nil {
		t.Errorf("Concat mit abweichendem DType sollte fehlschlagen")
	}
}

func TestSplit(t *testing.T) {
	full := NewI64([]int{4}, []int64{10, 20, 30, 40})

	parts, err := Split(full, []int{1, 3})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("Split ergab %d Teile, erwartet 2", len(parts))
	}

	if diff := cmp.Diff([]int64{10}, parts[0].Int64s()); diff != "" {
		t.Errorf("Teil 0 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{20, 30, 40}, parts[1].Int64s()); diff != "" {
		t.Errorf("Teil 1 (-want +got):\n%s", diff)
	}
}

func TestSplitOversizedSum(t *testing.T) {
	full := NewF32([]int{2}, []float32{1, 2})

	if _, err := Split(full, []int{2, 1}); err == nil {
		t.Errorf("Split mit zu grosser Groessensumme sollte fehlschlagen")
	}
}

func TestSplitConcatRoundTrip(t *testing.T) {
	full := NewF32([]int{5, 3}, []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
		10, 11, 12,
		13, 14, 15,
	})

	parts, err := Split(full, []int{2, 1, 2})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	merged, err := Concat(parts)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}

	if diff := cmp.Diff(full.Float64s(), merged.Float64s()); diff != "" {
		t.Errorf("Roundtrip (-want +got):\n%s", diff)
	}
}

func TestF16Conversion(t *testing.T) {
	vals := []float32{0, 1, -2, 0.5}
	half := NewF16([]int{4}, vals)

	if got, want := half.DType().Size(), 2; got != want {
		t.Errorf("F16 Elementgroesse = %d, erwartet %d", got, want)
	}

	got := half.Float64s()
	for i, v := range vals {
		if got[i] != float64(v) {
			t.Errorf("F16[%d] = %f, erwartet %f", i, got[i], v)
		}
	}
}

func TestEmpty(t *testing.T) {
	full := NewF32([]int{3, 2}, []float32{1, 2, 3, 4, 5, 6})
	empty := full.Empty()

	if diff := cmp.Diff([]int{0, 2}, empty.Shape()); diff != "" {
		t.Errorf("Empty Shape (-want +got):\n%s", diff)
	}
	if empty.NumElements() != 0 {
		t.Errorf("Empty NumElements = %d, erwartet 0", empty.NumElements())
	}
}

func TestScalarI64(t *testing.T) {
	s := ScalarI64(-7)

	if s.Dims() != 0 {
		t.Errorf("Skalar-Rang = %d, erwartet 0", s.Dims())
	}
	if s.I64Value() != -7 {
		t.Errorf("Skalar-Wert = %d, erwartet -7", s.I64Value())
	}
}

func TestParseDType(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want DType
	}{
		{"f32", DTypeF32},
		{"float32", DTypeF32},
		{"", DTypeF32},
		{"f16", DTypeF16},
		{"f64", DTypeF64},
		{"i32", DTypeI32},
		{"i64", DTypeI64},
	} {
		got, err := ParseDType(tc.in)
		if err != nil {
			t.Errorf("ParseDType(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseDType(%q) = %v, erwartet %v", tc.in, got, tc.want)
		}
	}

	if _, err := ParseDType("complex128"); err == nil {
		t.Errorf("ParseDType mit unbekanntem Typ sollte fehlschlagen")
	}
}
