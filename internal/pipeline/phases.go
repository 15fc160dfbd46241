package pipeline

import (
	"context"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
)

// Phase names, in execution order. They match the transform.skip keys.
const (
	PhaseCapture  = "capture"
	PhaseDownload = "download"
	PhaseProbe    = "probe"
	PhaseEncode   = "encode"
	PhaseBuild    = "build"
	PhaseRewrite  = "rewrite"
)

// CaptureFunc finds the assets referenced by doc.
type CaptureFunc func(ctx context.Context, doc []byte) ([]asset.Asset, error)

// BatchFunc transforms the full batch of assets for one phase.
type BatchFunc func(ctx context.Context, assets []asset.Asset) ([]asset.Asset, error)

// RewriteFunc produces the output document.
type RewriteFunc func(ctx context.Context, doc []byte, assets []asset.Asset) ([]byte, error)

// Phases holds the six phase implementations. Any field can be replaced
// wholesale with WithPhases; nil fields keep the default.
type Phases struct {
	Capture  CaptureFunc
	Download BatchFunc
	Probe    BatchFunc
	Encode   BatchFunc
	Build    BatchFunc
	Rewrite  RewriteFunc
}

// merge returns p with every non-nil field of o applied.
func (p Phases) merge(o Phases) Phases {
	if o.Capture != nil {
		p.Capture = o.Capture
	}
	if o.Download != nil {
		p.Download = o.Download
	}
	if o.Probe != nil {
		p.Probe = o.Probe
	}
	if o.Encode != nil {
		p.Encode = o.Encode
	}
	if o.Build != nil {
		p.Build = o.Build
	}
	if o.Rewrite != nil {
		p.Rewrite = o.Rewrite
	}
	return p
}

// batch returns the BatchFunc for one of the four middle phases.
func (p Phases) batch(name string) BatchFunc {
	switch name {
	case PhaseDownload:
		return p.Download
	case PhaseProbe:
		return p.Probe
	case PhaseEncode:
		return p.Encode
	case PhaseBuild:
		return p.Build
	}
	return nil
}
