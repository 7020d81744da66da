package observe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/utkarsh5026/pollpipe/pipeline"
)

const metricsNamespace = "pollpipe"

// Metrics records pipeline events as prometheus metrics.
type Metrics struct {
	enqueued      prometheus.Counter
	processed     *prometheus.CounterVec
	failed        *prometheus.CounterVec
	sourceErrors  *prometheus.CounterVec
	inFlight      prometheus.Gauge
	stopped       *prometheus.CounterVec
	drainDuration prometheus.Histogram
}

var _ pipeline.Observer = (*Metrics)(nil)

// NewMetrics creates the pipeline metrics and registers them with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "items_enqueued_total",
			Help:      "Number of items accepted by the queue",
		}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "items_processed_total",
			Help:      "Number of items processed successfully, by processor",
		}, []string{"processor"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "items_failed_total",
			Help:      "Number of items whose processing failed, by processor",
		}, []string{"processor"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "source_errors_total",
			Help:      "Number of source poll errors, by kind",
		}, []string{"kind"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "items_in_flight",
			Help:      "Items enqueued but not yet handled by a processor",
		}),
		stopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pipeline_stopped_total",
			Help:      "Number of pipeline runs that stopped, by final state",
		}, []string{"state"}),
		drainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "pipeline_run_seconds",
			Help:      "Wall time of a pipeline run, from start until drained or timed out",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.enqueued, m.processed, m.failed, m.sourceErrors, m.inFlight, m.stopped, m.drainDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ItemEnqueued(string) {
	m.enqueued.Inc()
	m.inFlight.Inc()
}

func (m *Metrics) ItemProcessed(_ string, worker int) {
	m.processed.WithLabelValues(workerLabel(worker)).Inc()
	m.inFlight.Dec()
}

func (m *Metrics) ProcessingFailed(_ string, worker int, _ error) {
	m.failed.WithLabelValues(workerLabel(worker)).Inc()
	m.inFlight.Dec()
}

func (m *Metrics) TransientSourceError(int, error) {
	m.sourceErrors.WithLabelValues(pipeline.KindTransient.String()).Inc()
}

func (m *Metrics) FatalSourceError(int, error) {
	m.sourceErrors.WithLabelValues(pipeline.KindFatal.String()).Inc()
}

func (m *Metrics) PipelineStopping(error) {}

func (m *Metrics) PipelineStopped(r pipeline.Report) {
	m.stopped.WithLabelValues(r.State.String()).Inc()
	m.drainDuration.Observe(r.Elapsed.Seconds())
}
