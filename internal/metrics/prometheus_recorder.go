package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg              *prom.Registry
	phaseDuration    *prom.HistogramVec
	phaseResults     *prom.CounterVec
	documentDuration prom.Histogram
	downloads        *prom.CounterVec
	retries          *prom.CounterVec
	retriesExhausted prom.Counter
	probeLookups     *prom.CounterVec
	toolFailures     *prom.CounterVec
	pluginHandled    *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the pipeline metrics on reg.
// A nil reg gets a fresh private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		phaseDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "mediapipe",
			Name:      "phase_duration_seconds",
			Help:      "Duration of individual pipeline phases per document",
			Buckets:   prom.DefBuckets,
		}, []string{"phase"}),
		phaseResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "mediapipe",
			Name:      "phase_results_total",
			Help:      "Phase result counts by outcome",
		}, []string{"phase", "result"}),
		documentDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "mediapipe",
			Name:      "document_duration_seconds",
			Help:      "Total pipeline duration per document",
			Buckets:   prom.DefBuckets,
		}),
		downloads: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "mediapipe",
			Name:      "downloads_total",
			Help:      "Download requests by outcome",
		}, []string{"outcome"}),
		retries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "mediapipe",
			Name:      "fetch_retries_total",
			Help:      "Fetch retries by reason",
		}, []string{"reason"}),
		retriesExhausted: prom.NewCounter(prom.CounterOpts{
			Namespace: "mediapipe",
			Name:      "fetch_retry_exhausted_total",
			Help:      "Count of destinations whose retry budget was exhausted",
		}),
		probeLookups: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "mediapipe",
			Name:      "probe_lookups_total",
			Help:      "Probe resolutions by source (cache, inflight, tool)",
		}, []string{"source"}),
		toolFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "mediapipe",
			Name:      "tool_failures_total",
			Help:      "External tool failures by tool",
		}, []string{"tool"}),
		pluginHandled: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "mediapipe",
			Name:      "plugin_handled_total",
			Help:      "Assets handled by plugins, by plugin and chain stage",
		}, []string{"plugin", "stage"}),
	}
	reg.MustRegister(pr.phaseDuration, pr.phaseResults, pr.documentDuration, pr.downloads,
		pr.retries, pr.retriesExhausted, pr.probeLookups, pr.toolFailures, pr.pluginHandled)
	return pr
}

// Registry returns the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

func (p *PrometheusRecorder) ObservePhaseDuration(phase string, d time.Duration) {
	if p == nil {
		return
	}
	p.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPhaseResult(phase string, result ResultLabel) {
	if p == nil {
		return
	}
	p.phaseResults.WithLabelValues(phase, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveDocumentDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.documentDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncDownload(outcome string) {
	if p == nil {
		return
	}
	p.downloads.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncRetry(reason string) {
	if p == nil {
		return
	}
	p.retries.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) IncRetryExhausted() {
	if p == nil {
		return
	}
	p.retriesExhausted.Inc()
}

func (p *PrometheusRecorder) IncProbeLookup(source string) {
	if p == nil {
		return
	}
	p.probeLookups.WithLabelValues(source).Inc()
}

func (p *PrometheusRecorder) IncToolFailure(tool string) {
	if p == nil {
		return
	}
	p.toolFailures.WithLabelValues(tool).Inc()
}

func (p *PrometheusRecorder) IncPluginHandled(plugin, stage string) {
	if p == nil {
		return
	}
	p.pluginHandled.WithLabelValues(plugin, stage).Inc()
}

// WriteTextfile writes the registry in Prometheus text format, suitable for the
// node_exporter textfile collector. Parent directories are created.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prom.WriteToTextfile(path, p.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
