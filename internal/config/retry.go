package config

import "git.home.luguber.info/inful/mediapipe/internal/foundation/normalization"

// RetryBackoffMode enumerates how the backoff ceiling grows between attempts.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var backoffModes = normalization.NewEnum("fetch.backoff", map[string]RetryBackoffMode{
	"fixed":       RetryBackoffFixed,
	"linear":      RetryBackoffLinear,
	"exponential": RetryBackoffExponential,
}, "")

var logFormats = normalization.NewEnum("logging.format", map[string]string{
	"text": "text",
	"json": "json",
}, "")

// NormalizeRetryBackoff converts user input (case-insensitive) into a typed mode, returning "" for unknown.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	return backoffModes.Normalize(raw)
}
