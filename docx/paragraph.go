package docx

import (
	"fmt"
	"strings"

	"github.com/tsawler/redactor/model"
	"github.com/tsawler/redactor/ooxml"
)

// view is one reading of a paragraph. The same element may feed several
// views, for example unchanged text appears in both the current and the
// original reading of a paragraph with tracked changes.
type view int

const (
	viewCurrent view = iota
	viewOriginal
	viewInserted
	viewHidden
	viewField
	numViews
)

var viewNames = [numViews]string{"current", "original", "inserted", "hidden", "field"}

var viewProvenance = [numViews]model.Provenance{
	viewCurrent:  model.Primary,
	viewOriginal: model.TrackedDelete,
	viewInserted: model.TrackedInsert,
	viewHidden:   model.Hidden,
	viewField:    model.Field,
}

// paragraph holds the views of one paragraph while it is being read.
type paragraph struct {
	views   [numViews]ooxml.TextBuilder
	tracked bool
}

// walker reads the paragraphs of one text part.
type walker struct {
	part       string
	w          string // prefix of the main namespace in this part
	styles     *styleResolver
	annotation bool
}

func (wk *walker) is(n *ooxml.Node, local string) bool {
	return n.Is(local) && ooxml.Prefix(n.Name) == wk.w
}

// isRun accepts word runs and math runs.
func (wk *walker) isRun(n *ooxml.Node) bool {
	if !n.Is("r") {
		return false
	}
	p := ooxml.Prefix(n.Name)
	return p == wk.w || p == "m"
}

// paragraphs returns every paragraph of the part, nested ones included, in
// document order.
func (wk *walker) paragraphs(root *ooxml.Node) []*ooxml.Node {
	var out []*ooxml.Node
	root.Walk(func(n *ooxml.Node) bool {
		if wk.is(n, "p") {
			out = append(out, n)
		}
		return true
	})
	return out
}

// read builds the views of paragraph p. Paragraphs nested inside it, such
// as text box content, are read on their own.
func (wk *walker) read(p *ooxml.Node) *paragraph {
	para := &paragraph{}
	pPr := p.Child("pPr")

	hidden := wk.styles.fallback
	if st := pPr.Child("pStyle"); st != nil {
		id, _ := st.Attr("val")
		hidden = wk.styles.hidden(id)
	}
	if h, ok := wk.styles.propsHidden(pPr.Child("rPr"), "rStyle"); ok && h {
		hidden = true
	}

	var walk func(n *ooxml.Node, ins, del bool)
	walk = func(n *ooxml.Node, ins, del bool) {
		for _, c := range n.Children {
			if c.Type != ooxml.ElementNode {
				continue
			}
			switch {
			case wk.is(c, "p"), wk.is(c, "pPr"):
			case wk.is(c, "ins"), wk.is(c, "moveTo"):
				para.tracked = true
				walk(c, true, del)
			case wk.is(c, "del"), wk.is(c, "moveFrom"):
				para.tracked = true
				walk(c, ins, true)
			case wk.isRun(c):
				wk.run(para, c, ins, del, hidden)
			default:
				walk(c, ins, del)
			}
		}
	}
	walk(p, false, false)
	return para
}

// run adds the text of one run to the views it belongs to.
func (wk *walker) run(para *paragraph, r *ooxml.Node, ins, del, paraHidden bool) {
	hidden := paraHidden
	if h, ok := wk.styles.propsHidden(r.Child("rPr"), "rStyle"); ok {
		hidden = h
	}

	var text []*ooxml.TextBuilder
	switch {
	case hidden:
		text = append(text, &para.views[viewHidden])
	default:
		if !del {
			text = append(text, &para.views[viewCurrent])
		}
		if !ins {
			text = append(text, &para.views[viewOriginal])
		} else {
			text = append(text, &para.views[viewInserted])
		}
	}

	for _, c := range r.Children {
		if c.Type != ooxml.ElementNode {
			continue
		}
		switch ooxml.Local(c.Name) {
		case "t", "delText":
			for _, b := range text {
				b.Add(wk.part, c)
			}
		case "instrText", "delInstrText":
			para.views[viewField].Add(wk.part, c)
		case "tab", "ptab":
			literal(text, "\t")
		case "br", "cr":
			literal(text, "\n")
		case "noBreakHyphen":
			literal(text, "-")
		}
	}
}

func literal(bs []*ooxml.TextBuilder, s string) {
	for _, b := range bs {
		b.Literal(s)
	}
}

// units turns the views of the n-th paragraph into units. The original
// view is only reported for paragraphs with tracked changes.
func (wk *walker) units(para *paragraph, n int) []textUnit {
	var out []textUnit
	for v := view(0); v < numViews; v++ {
		b := &para.views[v]
		if strings.TrimSpace(b.String()) == "" || len(b.Segments()) == 0 {
			continue
		}
		if v == viewOriginal && !para.tracked {
			continue
		}
		prov := viewProvenance[v]
		if v == viewCurrent && wk.annotation {
			prov = model.Annotation
		}
		out = append(out, textUnit{
			unit: model.ExtractedUnit{
				ID:         paragraphID(wk.part, n, v),
				Text:       b.String(),
				Provenance: prov,
				Location:   model.Location{Part: wk.part, Object: n},
			},
			segs: b.Segments(),
		})
	}
	return out
}

type textUnit struct {
	unit model.ExtractedUnit
	segs []ooxml.Segment
}

func paragraphID(part string, n int, v view) string {
	return fmt.Sprintf("%s#p%d/%s", part, n, viewNames[v])
}
