package ooxml

import (
	"sort"

	"github.com/tsawler/redactor/model"
)

// Segment maps the byte range [Start, End) of a unit's text to the
// element whose character data produced it.
type Segment struct {
	Part       string
	Node       *Node
	Start, End int
}

// TextBuilder assembles a unit's text from the elements that hold it.
type TextBuilder struct {
	buf  []byte
	segs []Segment
}

// Add appends the character data of n as an editable segment.
func (b *TextBuilder) Add(part string, n *Node) {
	t := n.Text()
	if t == "" {
		return
	}
	start := len(b.buf)
	b.buf = append(b.buf, t...)
	b.segs = append(b.segs, Segment{Part: part, Node: n, Start: start, End: len(b.buf)})
}

// Literal appends text that has no element of its own, such as a tab.
func (b *TextBuilder) Literal(s string) {
	b.buf = append(b.buf, s...)
}

// Len returns the length of the text so far.
func (b *TextBuilder) Len() int { return len(b.buf) }

// String returns the assembled text.
func (b *TextBuilder) String() string { return string(b.buf) }

// Segments returns the editable segments in text order.
func (b *TextBuilder) Segments() []Segment { return b.segs }

type cut struct {
	start, end int
	mark       bool
}

type nodeCuts struct {
	part string
	cuts []cut
}

// Editor collects removals against elements and applies them in one pass,
// so edits reached through several units over the same element merge.
type Editor struct {
	nodes map[*Node]*nodeCuts
	order []*Node
}

// NewEditor creates an empty editor.
func NewEditor() *Editor {
	return &Editor{nodes: make(map[*Node]*nodeCuts)}
}

// Cut removes the unit text range [start, end) from the segments covering
// it. The placeholder goes where the range starts.
func (e *Editor) Cut(segs []Segment, start, end int) bool {
	marked, found := false, false
	for _, s := range segs {
		lo, hi := max(start, s.Start), min(end, s.End)
		if lo >= hi {
			continue
		}
		found = true
		mark := !marked
		marked = true
		nc, ok := e.nodes[s.Node]
		if !ok {
			nc = &nodeCuts{part: s.Part}
			e.nodes[s.Node] = nc
			e.order = append(e.order, s.Node)
		}
		nc.cuts = append(nc.cuts, cut{start: lo - s.Start, end: hi - s.Start, mark: mark})
	}
	return found
}

// Empty reports whether no cut is pending.
func (e *Editor) Empty() bool {
	return len(e.order) == 0
}

// Commit rewrites every cut element and returns the parts it touched.
func (e *Editor) Commit(placeholder string) []string {
	var parts []string
	seen := make(map[string]bool)
	for _, n := range e.order {
		nc := e.nodes[n]
		text := rewrite(n.Text(), nc.cuts, placeholder)
		n.SetText(text)
		if preserves(n) {
			n.SetAttr("xml:space", "preserve")
		}
		if !seen[nc.part] {
			seen[nc.part] = true
			parts = append(parts, nc.part)
		}
	}
	e.nodes = make(map[*Node]*nodeCuts)
	e.order = nil
	return parts
}

// preserves reports whether an element keeps its whitespace only when
// asked to with xml:space.
func preserves(n *Node) bool {
	switch Local(n.Name) {
	case "t", "delText", "instrText", "delInstrText":
		return true
	}
	return false
}

// Rewrite removes every span from text, inserting placeholder once where
// each merged range starts.
func Rewrite(text string, spans []model.SensitiveSpan, placeholder string) string {
	cuts := make([]cut, 0, len(spans))
	for _, s := range spans {
		cuts = append(cuts, cut{start: s.Start, end: s.End, mark: true})
	}
	return rewrite(text, cuts, placeholder)
}

func rewrite(text string, cuts []cut, placeholder string) string {
	sort.Slice(cuts, func(i, j int) bool { return cuts[i].start < cuts[j].start })
	var merged []cut
	for _, c := range cuts {
		c.start = min(max(c.start, 0), len(text))
		c.end = min(max(c.end, c.start), len(text))
		if n := len(merged); n > 0 && c.start <= merged[n-1].end {
			last := &merged[n-1]
			last.end = max(last.end, c.end)
			last.mark = last.mark || c.mark
			continue
		}
		merged = append(merged, c)
	}

	var out []byte
	pos := 0
	for _, c := range merged {
		out = append(out, text[pos:c.start]...)
		if c.mark {
			out = append(out, placeholder...)
		}
		pos = c.end
	}
	out = append(out, text[pos:]...)
	return string(out)
}
