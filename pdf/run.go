package pdf

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/tsawler/redactor/model"
)

// Thresholds in multiples of the font size for joining glyphs into runs.
const (
	lineTolerance = 0.5  // baseline offset still on the same line
	maxGap        = 3.0  // larger gaps start a new run
	spaceGap      = 0.2  // gaps wider than this read as a word space
	maxBacktrack  = -0.5 // overlap allowed before the gap breaks the run
)

// run is a stretch of text drawn along one baseline, possibly by several
// show operations. It is the unit of text the detector sees.
type run struct {
	id     string
	page   int
	glyphs []*glyph
	runes  []int // glyph index per rune of the unit text, -1 for inserted spaces
	unit   model.ExtractedUnit
}

// splitRuns breaks a glyph sequence wherever the next glyph does not
// continue the line of the previous one.
func splitRuns(seq []*glyph) [][]*glyph {
	var out [][]*glyph
	start := 0
	for i := 1; i <= len(seq); i++ {
		if i < len(seq) {
			if ok, _ := continues(seq[i-1], seq[i]); ok {
				continue
			}
		}
		if i > start {
			out = append(out, seq[start:i])
		}
		start = i
	}
	return out
}

// continues reports whether g follows prev on the same line, and whether
// the distance between them reads as a word space.
func continues(prev, g *glyph) (bool, bool) {
	if prev.invisible != g.invisible {
		return false, false
	}
	size := math.Max(prev.size, g.size)
	if size <= 0 {
		size = 1
	}
	dx, dy := g.origin.X-prev.next.X, g.origin.Y-prev.next.Y
	along := dx*prev.dir.X + dy*prev.dir.Y
	across := dy*prev.dir.X - dx*prev.dir.Y
	if math.Abs(across) > lineTolerance*size {
		return false, false
	}
	if along < maxBacktrack*size || along > maxGap*size {
		return false, false
	}
	return true, along > spaceGap*size
}

func newRun(id string, page int, glyphs []*glyph) *run {
	r := &run{id: id, page: page, glyphs: glyphs}
	var text strings.Builder
	var boxes []model.Rect
	var bounds model.Rect

	for i, g := range glyphs {
		if i > 0 {
			prev := glyphs[i-1]
			_, gap := continues(prev, g)
			if gap && !prev.space && !g.space && !endsWithSpace(text.String()) && !strings.HasPrefix(g.text, " ") {
				text.WriteByte(' ')
				r.runes = append(r.runes, -1)
				boxes = append(boxes, model.Rect{})
			}
		}
		for range g.text {
			r.runes = append(r.runes, i)
			boxes = append(boxes, g.box)
		}
		text.WriteString(g.text)
		bounds = bounds.Union(g.box)
	}

	prov := model.Primary
	if glyphs[0].invisible {
		prov = model.Overlay
	}
	r.unit = model.ExtractedUnit{
		ID:         id,
		Text:       text.String(),
		Provenance: prov,
		Boxes:      boxes,
		Location: model.Location{
			Page:   page,
			Object: glyphs[0].content.obj,
			Op:     glyphs[0].op + 1,
			Rect:   &bounds,
		},
	}
	return r
}

func endsWithSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r == ' '
}

// glyphsIn returns the glyphs covering the byte range [start, end) of the
// unit text and the union of their boxes.
func (r *run) glyphsIn(start, end int) ([]*glyph, model.Rect) {
	var out []*glyph
	var rect model.Rect
	seen := make(map[int]bool)
	idx := 0
	for i := range r.unit.Text {
		if i >= start && i < end && idx < len(r.runes) {
			if gi := r.runes[idx]; gi >= 0 && !seen[gi] {
				seen[gi] = true
				out = append(out, r.glyphs[gi])
				rect = rect.Union(r.glyphs[gi].box)
			}
		}
		idx++
	}
	return out, rect
}

// neutralize removes the glyphs of every span from their show operations
// and queues an opaque cover over their boxes. Spans on an invisible text
// layer also burn the image underneath.
func (r *run) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	pg := d.pages[r.page-1]
	for _, s := range spans {
		glyphs, rect := r.glyphsIn(s.Start, s.End)
		for _, g := range glyphs {
			g.content.remove(g)
		}
		loc := u.Location
		if !rect.IsEmpty() {
			pg.covers = append(pg.covers, rect)
			loc.Rect = &rect
		}
		rep.Neutralize(u, s, model.StrategyRemoveCover, loc)
		if u.Provenance == model.Overlay && !rect.IsEmpty() {
			d.burnUnder(pg, rect, u, s, rep)
		}
	}
}
