// metrics.go - Prozessglobale Batching-Metriken
//
// Dieses Modul enthaelt:
// - RecordInputBatchSize: Verteilung der Eingabe-Batch-Groessen
// - RecordProcessedBatchSize: Verteilung der verarbeiteten Groessen
// - RecordPaddingSize: Verteilung der Padding-Groessen
// - RecordBatchDelay: Wartezeit der Tasks bis zur Verarbeitung
// - RecordOversizeBatch: Batches oberhalb der groessten erlaubten Groesse
// - Handler: HTTP-Handler fuer /metrics
//
// Alle Sampler sind prozessglobale Singletons; die Registrierung
// passiert genau einmal beim Paket-Init.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Quantile entsprechend der Percentile 25/50/75/90/95/99
var objectives = map[float64]float64{
	0.25: 0.05,
	0.5:  0.05,
	0.75: 0.05,
	0.9:  0.01,
	0.95: 0.01,
	0.99: 0.001,
}

func newSummary(name, help string, labels ...string) *prometheus.SummaryVec {
	return promauto.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:  "tensorbatch",
		Subsystem:  "batching",
		Name:       name,
		Help:       help,
		Objectives: objectives,
		MaxAge:     time.Minute,
		AgeBuckets: 4,
	}, labels)
}

var (
	inputBatchSize = newSummary("input_batch_size",
		"Tracks the batch size distribution on the inputs by model_name (if available).",
		"model_name")

	processedBatchSize = newSummary("processed_batch_size",
		"Tracks the batch size distribution on processing by model_name (if available).",
		"model_name")

	paddingSize = newSummary("padding_size",
		"Tracks the padding size distribution on batches by model_name (if available).",
		"model_name", "execution_batch_size")

	batchDelay = newSummary("batch_delay_ms",
		"Tracks the batching delay for inputs by model_name (if available).",
		"model_name")

	oversizeBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tensorbatch",
		Subsystem: "batching",
		Name:      "oversize_batch_total",
		Help:      "Counts batches larger than the largest allowed batch size.",
	}, []string{"model_name"})
)

// RecordInputBatchSize erfasst die Groesse einer einzelnen Invocation
func RecordInputBatchSize(batchSize int, modelName string) {
	inputBatchSize.WithLabelValues(modelName).Observe(float64(batchSize))
}

// RecordProcessedBatchSize erfasst die Groesse eines verarbeiteten Batches
func RecordProcessedBatchSize(batchSize int, modelName string) {
	processedBatchSize.WithLabelValues(modelName).Observe(float64(batchSize))
}

// RecordPaddingSize erfasst die Padding-Groesse eines Batches
func RecordPaddingSize(padding int, modelName string, executionBatchSize int) {
	paddingSize.WithLabelValues(modelName, strconv.Itoa(executionBatchSize)).Observe(float64(padding))
}

// RecordBatchDelay erfasst die Wartezeit eines Tasks bis zur Verarbeitung
func RecordBatchDelay(delay time.Duration, modelName string) {
	batchDelay.WithLabelValues(modelName).Observe(float64(delay.Milliseconds()))
}

// RecordOversizeBatch zaehlt einen Batch oberhalb der groessten
// erlaubten Batch-Groesse
func RecordOversizeBatch(modelName string) {
	oversizeBatches.WithLabelValues(modelName).Inc()
}

// Handler gibt den HTTP-Handler fuer den Metrik-Export zurueck
func Handler() http.Handler {
	return promhttp.Handler()
}
