package metrics

import "time"

// ResultLabel enumerates phase result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultSkipped  ResultLabel = "skipped"
	ResultCanceled ResultLabel = "canceled"
)

// Download outcomes.
const (
	DownloadFetched  = "fetched"
	DownloadExisting = "existing"
	DownloadShared   = "shared"
	DownloadLocal    = "local"
	DownloadFailed   = "failed"
)

// Probe lookup sources.
const (
	ProbeCache    = "cache"
	ProbeInFlight = "inflight"
	ProbeTool     = "tool"
)

// Retry reasons.
const (
	RetryTransport = "transport"
	RetryRateLimit = "rate_limit"
)

// Recorder defines observability hooks for pipeline metrics. Implementations
// may forward to Prometheus; NoopRecorder is the default.
type Recorder interface {
	ObservePhaseDuration(phase string, d time.Duration)
	IncPhaseResult(phase string, result ResultLabel)
	ObserveDocumentDuration(d time.Duration)
	IncDownload(outcome string)
	IncRetry(reason string)
	IncRetryExhausted()
	IncProbeLookup(source string)
	IncToolFailure(tool string)
	IncPluginHandled(plugin, stage string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePhaseDuration(string, time.Duration) {}
func (NoopRecorder) IncPhaseResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveDocumentDuration(time.Duration)      {}
func (NoopRecorder) IncDownload(string)                         {}
func (NoopRecorder) IncRetry(string)                            {}
func (NoopRecorder) IncRetryExhausted()                         {}
func (NoopRecorder) IncProbeLookup(string)                      {}
func (NoopRecorder) IncToolFailure(string)                      {}
func (NoopRecorder) IncPluginHandled(string, string)            {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
