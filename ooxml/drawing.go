package ooxml

import (
	"fmt"
	"strings"

	"github.com/tsawler/redactor/model"
)

// graphicRels are the relationship types leading to parts that hold
// DrawingML text: drawings, charts, chart shapes and diagrams.
var graphicRels = []string{"drawing", "chart", "chartUserShapes", "diagramData", "diagramDrawing"}

// GraphicParts returns the graphic parts reachable from source, each once.
// seen is shared between calls so that a part related from several
// sources is listed only for the first.
func (p *Package) GraphicParts(source string, seen map[string]bool) ([]string, error) {
	rels, err := p.Rels(source)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range rels {
		if r.External || seen[r.Part] || !p.Has(r.Part) || !isGraphic(r) {
			continue
		}
		seen[r.Part] = true
		out = append(out, r.Part)
		more, err := p.GraphicParts(r.Part, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, more...)
	}
	return out, nil
}

func isGraphic(r Relationship) bool {
	for _, kind := range graphicRels {
		if r.Is(kind) {
			return true
		}
	}
	return false
}

// GraphicUnits extracts the text of a drawing, chart or diagram part: one
// unit per DrawingML paragraph, one per cached chart value and the
// alternate text of every shape. Neutralizing any unit of a chart also
// detaches the chart from its embedded data, which would otherwise restore
// the cache when the chart updates.
func (p *Package) GraphicUnits(part, sheet string) ([]Unit, error) {
	tree, err := p.Tree(part)
	if err != nil {
		return nil, err
	}
	root := tree.Root()
	if root == nil {
		return nil, fmt.Errorf("%s: no document element", part)
	}
	chart := root.Is("chartSpace")

	var out []Unit
	add := func(kind, text string, prov model.Provenance, field string, t Target) {
		if strings.TrimSpace(text) == "" {
			return
		}
		if chart {
			t = chartTarget{Target: t, part: part}
		}
		out = append(out, Unit{
			Unit: model.ExtractedUnit{
				ID:         fmt.Sprintf("%s#%s%d", part, kind, len(out)+1),
				Text:       text,
				Provenance: prov,
				Location:   model.Location{Part: part, Sheet: sheet, Field: field},
			},
			Target: t,
		})
	}

	root.Walk(func(el *Node) bool {
		if el.Type != ElementNode {
			return true
		}
		switch {
		case el.Is("p"):
			var b TextBuilder
			for _, c := range el.Children {
				switch {
				case c.Is("r"), c.Is("fld"):
					if t := c.Child("t"); t != nil {
						b.Add(part, t)
					}
				case c.Is("br"):
					b.Literal("\n")
				}
			}
			add("p", b.String(), model.Primary, "p", SegmentTarget{Segments: b.Segments()})
			return false
		case el.Is("v") && chart:
			if inNumeric(el) {
				if pt := el.Parent; pt.Is("pt") {
					add("v", el.Text(), model.Cache, "v", RemoveTarget{Part: part, Node: pt})
				}
				return false
			}
			add("v", el.Text(), model.Cache, "v", LeafTarget{Part: part, Node: el})
			return false
		case el.Is("cNvPr") || el.Is("docPr"):
			for _, name := range []string{"descr", "title"} {
				if v, ok := el.Attr(name); ok {
					add("a", v, model.Hidden, name, AttrTarget{Part: part, Node: el, Name: name})
				}
			}
		}
		return true
	})
	return out, nil
}

// inNumeric reports whether a cached value belongs to a numeric cache or
// literal.
func inNumeric(v *Node) bool {
	for n := v.Parent; n != nil; n = n.Parent {
		if n.Is("numCache") || n.Is("numLit") {
			return true
		}
		if n.Is("strCache") || n.Is("strLit") {
			return false
		}
	}
	return false
}

// chartTarget detaches a chart from its embedded workbook once any of its
// text was neutralized.
type chartTarget struct {
	Target
	part string
}

func (t chartTarget) Neutralize(p *Package, placeholder string, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	t.Target.Neutralize(p, placeholder, u, spans, rep)
	p.detachChartData(t.part)
}

func (p *Package) detachChartData(part string) {
	tree, err := p.Tree(part)
	if err != nil {
		return
	}
	root := tree.Root()
	if root == nil {
		return
	}
	if ext := root.Child("externalData"); ext != nil {
		root.Remove(ext)
		p.Touch(part)
	}
	rels, err := p.Rels(part)
	if err != nil {
		return
	}
	for _, r := range rels {
		if !r.External && (r.Is("package") || r.Is("oleObject")) {
			p.Remove(r.Part)
		}
	}
}
