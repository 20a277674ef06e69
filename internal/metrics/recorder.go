package metrics

import "time"

// ResultLabel enumerates destination outcome categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailure ResultLabel = "failure"
	ResultSkipped ResultLabel = "skipped"
)

// Recorder defines observability hooks for publication runs. Implementations
// may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	ObserveDestinationDuration(destination string, d time.Duration)
	IncDestinationResult(destination string, result ResultLabel, category string)
	IncUploadAttempt(destination string, success bool)
	IncRetry(destination, step string)
	ObserveSigningDuration(d time.Duration)
	ObserveRunDuration(d time.Duration)
	SetConcurrency(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveDestinationDuration(string, time.Duration) {}
func (NoopRecorder) IncDestinationResult(string, ResultLabel, string) {}
func (NoopRecorder) IncUploadAttempt(string, bool) {}
func (NoopRecorder) IncRetry(string, string) {}
func (NoopRecorder) ObserveSigningDuration(time.Duration) {}
func (NoopRecorder) ObserveRunDuration(time.Duration) {}
func (NoopRecorder) SetConcurrency(int) {}
