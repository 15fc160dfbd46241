// Package asset defines the value threaded through every pipeline phase.
//
// An Asset starts life at capture time with its Syntax and Type, and each
// later phase returns a copy with more fields filled in. Phases never rewrite
// fields owned by an earlier phase.
package asset

import (
	"fmt"
	"math"
	"strings"
)

// Type classifies an asset at capture time.
type Type string

const (
	TypeImage     Type = "image"
	TypeAnimation Type = "animation"
	TypeVideo     Type = "video"
	// TypeExternal is a recognized external video-hosting link. It has no local mirror.
	TypeExternal Type = "external"
)

// Types lists all kinds in a stable order.
var Types = []Type{TypeImage, TypeAnimation, TypeVideo, TypeExternal}

// IsValid reports whether t is a known kind.
func (t Type) IsValid() bool {
	switch t {
	case TypeImage, TypeAnimation, TypeVideo, TypeExternal:
		return true
	default:
		return false
	}
}

// IsLocal reports whether assets of this kind are mirrored, probed and encoded.
func (t Type) IsLocal() bool {
	return t == TypeImage || t == TypeAnimation || t == TypeVideo
}

func (t Type) String() string { return string(t) }

// ParseType converts user input (case-insensitive) into a Type.
func ParseType(raw string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	if !t.IsValid() {
		return "", fmt.Errorf("unknown asset type %q", raw)
	}
	return t, nil
}

// Syntax is the matched text span in the source document.
// Start and End are byte offsets into the original document, End exclusive.
type Syntax struct {
	Title string
	URI   string
	Start int
	End   int
}

// Len returns the byte length of the original span.
func (s Syntax) Len() int { return s.End - s.Start }

// Size holds measured dimensions. NaN marks an unknown dimension.
type Size struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// ZeroSize is assigned to assets that are never probed.
var ZeroSize = Size{}

// UnknownSize is the sentinel for a failed or unparsable measurement.
func UnknownSize() Size {
	return Size{Width: math.NaN(), Height: math.NaN()}
}

// Known reports whether both dimensions are finite.
func (s Size) Known() bool {
	return !math.IsNaN(s.Width) && !math.IsNaN(s.Height) &&
		!math.IsInf(s.Width, 0) && !math.IsInf(s.Height, 0)
}

// Positive reports whether both dimensions are known and greater than zero.
func (s Size) Positive() bool {
	return s.Known() && s.Width > 0 && s.Height > 0
}

// Fit scales the size down so Width does not exceed maxWidth, keeping the aspect ratio.
// Unknown sizes and a non-positive maxWidth are returned unchanged.
func (s Size) Fit(maxWidth float64) Size {
	if !s.Positive() || maxWidth <= 0 || s.Width <= maxWidth {
		return s
	}
	return Size{Width: maxWidth, Height: math.Round(s.Height * maxWidth / s.Width)}
}

func (s Size) String() string {
	if !s.Known() {
		return "unknown"
	}
	return fmt.Sprintf("%gx%g", s.Width, s.Height)
}

// Asset is one media reference discovered in a document.
type Asset struct {
	Syntax Syntax
	Type   Type

	// SourceURL is the remote identity; SourcePath the local mirror path.
	// SourcePath is empty for external assets.
	SourceURL  string
	SourcePath string

	Size Size

	// EncodedPath is the optimized derivative; empty when encoding is disabled or failed.
	EncodedPath string
	// PosterPath is an extracted poster frame for videos (auto poster mode).
	PosterPath string

	// Content is phase-resolved data such as a public URL or thumbnail URL.
	Content string
	// HTML is the final markup that replaces Syntax in the document.
	HTML string
}

// Key returns a stable identity for logs and dedup of identical references.
func (a Asset) Key() string {
	if a.SourcePath != "" {
		return a.SourcePath
	}
	if a.SourceURL != "" {
		return a.SourceURL
	}
	return a.Syntax.URI
}

// As returns a copy of the asset reclassified as t. Plugins use it to reuse
// another kind's default builder as a sub-step.
func (a Asset) As(t Type) Asset {
	a.Type = t
	return a
}
