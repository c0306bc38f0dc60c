// MODUL: metrics_test
// ZWECK: Smoke-Tests fuer die prozessglobalen Batching-Metriken
// NEBENEFFEKTE: beobachtet Werte auf den globalen Samplern

package metrics

import (
	"testing"
	"time"
)

// Die Sampler sind Paket-Singletons; mehrfaches Beobachten darf weder
// in Panik geraten noch doppelt registrieren
func TestRecordersDoNotPanic(t *testing.T) {
	for range 2 {
		RecordInputBatchSize(3, "model-a")
		RecordProcessedBatchSize(4, "model-a")
		RecordPaddingSize(1, "model-a", 4)
		RecordBatchDelay(5*time.Millisecond, "model-a")
		RecordOversizeBatch("model-a")
	}
}

func TestHandlerIsAvailable(t *testing.T) {
	if Handler() == nil {
		t.Fatalf("Handler darf nicht nil sein")
	}
}
