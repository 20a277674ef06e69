// Package metrics provides observability hooks for publication runs.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	exec := publish.NewExecutor(cfg, deps)
//	exec.Recorder = metrics.NoopRecorder{}
//
// When monitoring.metrics_file is configured the CLI swaps in a
// PrometheusRecorder backed by its own registry and, after the run, writes the
// registry in the Prometheus text exposition format with WriteTextfile so a
// node_exporter textfile collector can pick it up.
package metrics
