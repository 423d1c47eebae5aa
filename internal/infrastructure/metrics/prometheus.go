// Package metrics métricas Prometheus del procesador y de los lotes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/nfe-api/internal/application/billing"
)

// Nombres de las métricas.
const (
	MetricProcessorCallsTotal   = "nfe_processor_calls_total"
	MetricProcessorCallDuration = "nfe_processor_call_duration_seconds"
	MetricBatchesTotal          = "nfe_batches_total"
	MetricBatchDocumentsTotal   = "nfe_batch_documents_total"
)

var _ billing.Metrics = (*Prometheus)(nil)

// Prometheus implementa billing.Metrics sobre un registro propio.
type Prometheus struct {
	registry       *prometheus.Registry
	calls          *prometheus.CounterVec
	callDuration   *prometheus.HistogramVec
	batches        *prometheus.CounterVec
	batchDocuments *prometheus.CounterVec
}

// NewPrometheus registra las métricas y los colectores de Go y del proceso.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricProcessorCallsTotal,
			Help: "Secuencias ejecutadas contra el procesador de documentos.",
		}, []string{"op", "result"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricProcessorCallDuration,
			Help:    "Duración de cada secuencia del procesador.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"op"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricBatchesTotal,
			Help: "Lotes enviados por resultado.",
		}, []string{"outcome"}),
		batchDocuments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricBatchDocumentsTotal,
			Help: "Documentos enviados por resultado del lote.",
		}, []string{"outcome"}),
	}
	p.registry.MustRegister(
		p.calls, p.callDuration, p.batches, p.batchDocuments,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) ProcessorCall(op string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.calls.WithLabelValues(op, result).Inc()
	p.callDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (p *Prometheus) BatchOutcome(outcome string, documents int) {
	p.batches.WithLabelValues(outcome).Inc()
	p.batchDocuments.WithLabelValues(outcome).Add(float64(documents))
}

// Registry expuesto para tests.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler endpoint de scraping.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
