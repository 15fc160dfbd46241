package pipeline

import (
	"time"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
)

// PhaseResult records one executed or skipped phase.
type PhaseResult struct {
	Name     string
	Duration time.Duration
	// Assets is the batch size the phase produced.
	Assets  int
	Skipped bool
	Err     error
}

// Result contains the outcome of processing one document.
type Result struct {
	RunID    string
	Document string
	Assets   []asset.Asset
	Output   []byte
	Phases   []PhaseResult
	Duration time.Duration
	// Written is set by ProcessFile when the output was written.
	Written bool
}

// IsSuccess reports whether every executed phase completed without error.
func (r *Result) IsSuccess() bool {
	for _, ph := range r.Phases {
		if ph.Err != nil {
			return false
		}
	}
	return true
}

// FailedPhase returns the name of the phase that failed, or "".
func (r *Result) FailedPhase() string {
	for _, ph := range r.Phases {
		if ph.Err != nil {
			return ph.Name
		}
	}
	return ""
}

// SkippedPhases returns the phases disabled by configuration.
func (r *Result) SkippedPhases() []string {
	var out []string
	for _, ph := range r.Phases {
		if ph.Skipped {
			out = append(out, ph.Name)
		}
	}
	return out
}

// CountByType tallies the processed assets per kind.
func (r *Result) CountByType() map[asset.Type]int {
	counts := make(map[asset.Type]int)
	for _, a := range r.Assets {
		counts[a.Type]++
	}
	return counts
}
