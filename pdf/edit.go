package pdf

import (
	"sort"

	"github.com/tsawler/redactor/contentstream"
	"github.com/tsawler/redactor/core"
	"github.com/tsawler/redactor/model"
)

// rewrite returns the operations with every removed glyph cut out of its
// string. A show operation that lost glyphs becomes a TJ whose numbers
// stand in for the removed advances, so the remaining glyphs keep their
// positions.
func (c *content) rewrite() []contentstream.Operation {
	out := make([]contentstream.Operation, 0, len(c.ops))
	for i, op := range c.ops {
		rs, ok := c.removed[i]
		if !ok {
			out = append(out, op)
			continue
		}
		out = append(out, rewriteShow(op, rs)...)
	}
	return out
}

func rewriteShow(op contentstream.Operation, rs []removal) []contentstream.Operation {
	var pre []contentstream.Operation
	var arr core.Array
	last := op.Operands[len(op.Operands)-1]

	switch op.Operator {
	case "TJ":
		arr, _ = op.Operands[0].(core.Array)
	case "Tj":
		arr = core.Array{last}
	case "'", "\"":
		if op.Operator == "\"" && len(op.Operands) >= 3 {
			pre = append(pre,
				contentstream.Operation{Operator: "Tw", Operands: []core.Object{op.Operands[0]}},
				contentstream.Operation{Operator: "Tc", Operands: []core.Object{op.Operands[1]}},
			)
		}
		pre = append(pre, contentstream.Operation{Operator: "T*"})
		arr = core.Array{last}
	default:
		return []contentstream.Operation{op}
	}

	sort.Slice(rs, func(i, j int) bool {
		if rs[i].elem != rs[j].elem {
			return rs[i].elem < rs[j].elem
		}
		return rs[i].start < rs[j].start
	})

	var out core.Array
	kern := 0.0
	flush := func() {
		if kern != 0 {
			out = append(out, core.Real(kern))
			kern = 0
		}
	}
	next := 0
	for e, el := range arr {
		s, ok := el.(core.String)
		if !ok {
			if n, ok := core.Number(el); ok {
				kern += n
			}
			continue
		}
		pos := 0
		for ; next < len(rs) && rs[next].elem == e; next++ {
			cut := rs[next]
			if cut.start > pos {
				flush()
				out = append(out, s[pos:cut.start])
			}
			kern += cut.kern
			pos = cut.end
		}
		if pos < len(s) {
			flush()
			out = append(out, s[pos:])
		}
	}
	flush()

	return append(pre, contentstream.Operation{Operator: "TJ", Operands: []core.Object{out}})
}

// pageContent serializes a page's operations wrapped in a balanced q/Q
// pair, followed by one opaque black rectangle per cover.
func pageContent(ops []contentstream.Operation, covers []model.Rect) []byte {
	depth, low := 0, 0
	inText := false
	for _, op := range ops {
		switch op.Operator {
		case "q":
			depth++
		case "Q":
			depth--
			if depth < low {
				low = depth
			}
		case "BT":
			inText = true
		case "ET":
			inText = false
		}
	}

	buf := []byte("q\n")
	for i := 0; i < -low; i++ {
		buf = append(buf, "q\n"...)
	}
	buf = append(buf, contentstream.Write(ops)...)
	if inText {
		buf = append(buf, "ET\n"...)
	}
	for i := 0; i < depth-low; i++ {
		buf = append(buf, "Q\n"...)
	}
	buf = append(buf, "Q\n"...)

	for _, r := range covers {
		buf = append(buf, "q 0 0 0 rg "...)
		for _, v := range []float64{r.X, r.Y, r.Width, r.Height} {
			buf = core.AppendReal(buf, v)
			buf = append(buf, ' ')
		}
		buf = append(buf, "re f Q\n"...)
	}
	return buf
}
