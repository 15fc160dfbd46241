// Package metrics provides pipeline observability hooks.
//
// Components receive a Recorder through their options and default to
// NoopRecorder. The CLI swaps in a PrometheusRecorder when metrics.textfile
// is configured and writes the registry to disk after each run.
package metrics
