package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "relpub"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once                sync.Once
	registry            *prom.Registry
	destinationDuration *prom.HistogramVec
	destinationResults  *prom.CounterVec
	uploadAttempts      *prom.CounterVec
	retries             *prom.CounterVec
	signingDuration     prom.Histogram
	runDuration         prom.Histogram
	concurrency         prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.once.Do(func() {
		pr.destinationDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "destination_duration_seconds",
			Help:      "Duration of publication to a single destination",
			Buckets:   prom.DefBuckets,
		}, []string{"destination"})
		pr.destinationResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "destination_results_total",
			Help:      "Destination outcomes by result and error category",
		}, []string{"destination", "result", "category"})
		pr.uploadAttempts = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "upload_attempts_total",
			Help:      "Upload group attempts by destination and result",
		}, []string{"destination", "result"})
		pr.retries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retries after transient failures",
		}, []string{"destination", "step"})
		pr.signingDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "signing_duration_seconds",
			Help:      "Duration of detached signature creation",
			Buckets:   prom.DefBuckets,
		})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Total publication run duration",
			Buckets:   prom.DefBuckets,
		})
		pr.concurrency = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "destination_concurrency",
			Help:      "Configured destination concurrency for the last run",
		})
		reg.MustRegister(pr.destinationDuration, pr.destinationResults, pr.uploadAttempts, pr.retries,
			pr.signingDuration, pr.runDuration, pr.concurrency)
	})
	return pr
}

// Registry returns the registry the recorder's collectors live in.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.registry }

func (p *PrometheusRecorder) ObserveDestinationDuration(destination string, d time.Duration) {
	if p == nil || p.destinationDuration == nil {
		return
	}
	p.destinationDuration.WithLabelValues(destination).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncDestinationResult(destination string, result ResultLabel, category string) {
	if p == nil || p.destinationResults == nil {
		return
	}
	p.destinationResults.WithLabelValues(destination, string(result), category).Inc()
}

func (p *PrometheusRecorder) IncUploadAttempt(destination string, success bool) {
	if p == nil || p.uploadAttempts == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.uploadAttempts.WithLabelValues(destination, res).Inc()
}

func (p *PrometheusRecorder) IncRetry(destination, step string) {
	if p == nil || p.retries == nil {
		return
	}
	p.retries.WithLabelValues(destination, step).Inc()
}

func (p *PrometheusRecorder) ObserveSigningDuration(d time.Duration) {
	if p == nil || p.signingDuration == nil {
		return
	}
	p.signingDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetConcurrency(n int) {
	if p == nil || p.concurrency == nil {
		return
	}
	p.concurrency.Set(float64(n))
}
