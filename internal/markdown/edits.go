package markdown

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// ErrOverlap is returned when two edits cover intersecting byte ranges.
var ErrOverlap = errors.New("invalid edits: overlapping ranges")

// Edit replaces source[Start:End] with Replacement. Offsets always refer to
// the original source, with End exclusive.
type Edit struct {
	Start       int
	End         int
	Replacement []byte
}

// ApplyEdits applies non-overlapping byte-range edits to source in one pass.
//
// Edits are validated against the original offsets first; nothing is written
// unless every edit is in range and no two overlap. Bytes outside the edited
// ranges are copied unchanged.
func ApplyEdits(source []byte, edits []Edit) ([]byte, error) {
	if len(edits) == 0 {
		return source, nil
	}

	sorted := slices.Clone(edits)
	slices.SortStableFunc(sorted, func(a, b Edit) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.End, b.End)
	})

	grow := 0
	for i, e := range sorted {
		switch {
		case e.Start < 0 || e.End < 0:
			return nil, fmt.Errorf("invalid edit [%d,%d): negative range", e.Start, e.End)
		case e.End < e.Start:
			return nil, fmt.Errorf("invalid edit [%d,%d): end before start", e.Start, e.End)
		case e.End > len(source):
			return nil, fmt.Errorf("invalid edit [%d,%d): out of bounds (len %d)", e.Start, e.End, len(source))
		}
		if i > 0 && e.Start < sorted[i-1].End {
			return nil, fmt.Errorf("%w: [%d,%d) and [%d,%d)", ErrOverlap,
				sorted[i-1].Start, sorted[i-1].End, e.Start, e.End)
		}
		grow += len(e.Replacement) - (e.End - e.Start)
	}

	var out bytes.Buffer
	out.Grow(max(len(source)+grow, 0))
	cursor := 0
	for _, e := range sorted {
		out.Write(source[cursor:e.Start])
		out.Write(e.Replacement)
		cursor = e.End
	}
	out.Write(source[cursor:])
	return out.Bytes(), nil
}
