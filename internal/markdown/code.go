package markdown

import (
	"slices"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Range is a half-open byte range [Start, End) into a Markdown body.
type Range struct {
	Start int
	End   int
}

// Covers reports whether [start, end) lies entirely inside r.
func (r Range) Covers(start, end int) bool {
	return start >= r.Start && end <= r.End
}

// CodeRanges parses body with goldmark and returns the byte ranges of fenced
// code blocks, indented code blocks and inline code spans, sorted by Start.
// Fenced ranges span the fence lines as well as the content.
func CodeRanges(body []byte) []Range {
	root := goldmark.New().Parser().Parse(text.NewReader(body))

	var ranges []Range
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *gmast.FencedCodeBlock:
			if r, ok := fencedRange(body, node); ok {
				ranges = append(ranges, r)
			}
			return gmast.WalkSkipChildren, nil
		case *gmast.CodeBlock:
			if r, ok := linesRange(node.Lines()); ok {
				ranges = append(ranges, r)
			}
			return gmast.WalkSkipChildren, nil
		case *gmast.CodeSpan:
			if r, ok := spanRange(node); ok {
				ranges = append(ranges, r)
			}
			return gmast.WalkSkipChildren, nil
		}
		return gmast.WalkContinue, nil
	})

	slices.SortFunc(ranges, func(a, b Range) int { return a.Start - b.Start })
	return ranges
}

// InCode reports whether [start, end) falls inside any of the sorted ranges.
func InCode(ranges []Range, start, end int) bool {
	i, _ := slices.BinarySearchFunc(ranges, start, func(r Range, target int) int {
		if r.End <= target {
			return -1
		}
		if r.Start > target {
			return 1
		}
		return 0
	})
	return i < len(ranges) && ranges[i].Covers(start, end)
}

func linesRange(lines *text.Segments) (Range, bool) {
	if lines == nil || lines.Len() == 0 {
		return Range{}, false
	}
	return Range{Start: lines.At(0).Start, End: lines.At(lines.Len() - 1).Stop}, true
}

// fencedRange widens the content lines to the opening and closing fence lines.
func fencedRange(body []byte, node *gmast.FencedCodeBlock) (Range, bool) {
	lines := node.Lines()
	var start int
	switch {
	case node.Info != nil:
		start = node.Info.Segment.Start
	case lines.Len() > 0:
		start = max(lines.At(0).Start-1, 0)
	default:
		return Range{}, false
	}
	for start > 0 && body[start-1] != '\n' {
		start--
	}

	end := start
	if lines.Len() > 0 {
		end = lines.At(lines.Len() - 1).Stop
	}
	for end < len(body) && body[end] != '\n' {
		end++
	}
	return Range{Start: start, End: end}, true
}

func spanRange(node *gmast.CodeSpan) (Range, bool) {
	first, last := -1, -1
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		t, ok := c.(*gmast.Text)
		if !ok {
			continue
		}
		if first < 0 {
			first = t.Segment.Start
		}
		last = t.Segment.Stop
	}
	if first < 0 {
		return Range{}, false
	}
	return Range{Start: first, End: last}, true
}
