// Package rewrite substitutes built markup into the source document.
package rewrite

import (
	"fmt"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
	"git.home.luguber.info/inful/mediapipe/internal/markdown"
)

// Apply replaces each asset's original span with its HTML. Assets without
// HTML keep their original text. Offsets refer to doc as captured, so Apply
// must receive the same bytes the assets were scanned from.
func Apply(doc []byte, assets []asset.Asset) ([]byte, error) {
	edits := Edits(assets)
	out, err := markdown.ApplyEdits(doc, edits)
	if err != nil {
		return nil, fmt.Errorf("rewrite %d assets: %w", len(edits), err)
	}
	return out, nil
}

// Edits converts assets into byte-range edits.
func Edits(assets []asset.Asset) []markdown.Edit {
	edits := make([]markdown.Edit, 0, len(assets))
	for _, a := range assets {
		if a.HTML == "" {
			continue
		}
		edits = append(edits, markdown.Edit{
			Start:       a.Syntax.Start,
			End:         a.Syntax.End,
			Replacement: []byte(a.HTML),
		})
	}
	return edits
}
