package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyDocument   = "document"
	KeyPhase      = "phase"
	KeyURI        = "uri"
	KeyURL        = "url"
	KeyKind       = "kind"
	KeyPath       = "path"
	KeyDest       = "dest"
	KeyAttempt    = "attempt"
	KeyStatus     = "status"
	KeyTool       = "tool"
	KeyPlugin     = "plugin"
	KeyCategory   = "category"
	KeyCount      = "count"
	KeyWait       = "wait"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Document(p string) slog.Attr     { return slog.String(KeyDocument, p) }
func Phase(name string) slog.Attr     { return slog.String(KeyPhase, name) }
func URI(u string) slog.Attr          { return slog.String(KeyURI, u) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Kind(k string) slog.Attr         { return slog.String(KeyKind, k) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Dest(p string) slog.Attr         { return slog.String(KeyDest, p) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Tool(name string) slog.Attr      { return slog.String(KeyTool, name) }
func Plugin(name string) slog.Attr    { return slog.String(KeyPlugin, name) }
func Category(name string) slog.Attr  { return slog.String(KeyCategory, name) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Wait(d time.Duration) slog.Attr  { return slog.Duration(KeyWait, d) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// Since returns the elapsed milliseconds since start as a duration attribute.
func Since(start time.Time) slog.Attr {
	return DurationMS(float64(time.Since(start).Microseconds()) / 1000)
}
