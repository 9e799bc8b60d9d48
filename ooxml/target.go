package ooxml

import (
	"fmt"

	"github.com/tsawler/redactor/model"
)

// DefaultPlaceholder replaces matched text when none is configured.
const DefaultPlaceholder = "[REDACTED]"

// BlankTarget replaces redacted hyperlink targets.
const BlankTarget = "about:blank"

// Target neutralizes the spans of one unit stored in a package. Adapters
// wrap targets with their own bookkeeping.
type Target interface {
	Neutralize(p *Package, placeholder string, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report)
}

func neutralizeAll(rep *model.Report, u model.ExtractedUnit, spans []model.SensitiveSpan, strategy model.Strategy) {
	for _, s := range spans {
		rep.Neutralize(u, s, strategy, u.Location)
	}
}

// AttrTarget rewrites an attribute value.
type AttrTarget struct {
	Part string
	Node *Node
	Name string
}

func (t AttrTarget) Neutralize(p *Package, placeholder string, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	t.Node.SetAttr(t.Name, Rewrite(u.Text, spans, placeholder))
	p.Touch(t.Part)
	neutralizeAll(rep, u, spans, model.StrategyRewrite)
}

// LeafTarget rewrites the character data of an element without children.
type LeafTarget struct {
	Part string
	Node *Node
}

func (t LeafTarget) Neutralize(p *Package, placeholder string, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	t.Node.SetText(Rewrite(u.Text, spans, placeholder))
	if preserves(t.Node) {
		t.Node.SetAttr("xml:space", "preserve")
	}
	p.Touch(t.Part)
	neutralizeAll(rep, u, spans, model.StrategyRewrite)
}

// SegmentTarget cuts spans out of the elements a unit's text was built
// from. The elements must not be shared with another unit.
type SegmentTarget struct {
	Segments []Segment
}

func (t SegmentTarget) Neutralize(p *Package, placeholder string, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	e := NewEditor()
	for _, s := range spans {
		if e.Cut(t.Segments, s.Start, s.End) {
			rep.Neutralize(u, s, model.StrategyRewrite, u.Location)
			continue
		}
		rep.Unresolve(u, s, u.Location, "span covers no stored text")
	}
	for _, part := range e.Commit(placeholder) {
		p.Touch(part)
	}
}

// RemoveTarget deletes an element, such as a cached chart point whose
// value cannot hold a placeholder.
type RemoveTarget struct {
	Part string
	Node *Node
}

func (t RemoveTarget) Neutralize(p *Package, _ string, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	if t.Node.Parent != nil {
		t.Node.Parent.Remove(t.Node)
	}
	p.Touch(t.Part)
	neutralizeAll(rep, u, spans, model.StrategyDelete)
}

// RelTarget points an external relationship at BlankTarget. The id is
// kept, so the elements referring to it stay valid.
type RelTarget struct {
	Source, ID string
}

func (t RelTarget) Neutralize(p *Package, _ string, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	if err := p.SetRelTarget(t.Source, t.ID, BlankTarget); err != nil {
		for _, s := range spans {
			rep.Unresolve(u, s, u.Location, "relationship could not be rewritten")
		}
		return
	}
	neutralizeAll(rep, u, spans, model.StrategyRewrite)
}

// PropTarget deletes a document property value.
type PropTarget struct {
	Prop Property
}

func (t PropTarget) Neutralize(p *Package, _ string, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	p.Clear(t.Prop)
	neutralizeAll(rep, u, spans, model.StrategyDelete)
}

// HyperlinkUnits reports the external hyperlink targets of a part.
// Targets already blanked are skipped.
func (p *Package) HyperlinkUnits(source, sheet string) ([]Unit, error) {
	rels, err := p.Rels(source)
	if err != nil {
		return nil, err
	}
	var out []Unit
	for _, r := range rels {
		if !r.External || !r.Is("hyperlink") || r.Target == BlankTarget {
			continue
		}
		out = append(out, Unit{
			Unit: model.ExtractedUnit{
				ID:         fmt.Sprintf("%s#rel/%s", source, r.ID),
				Text:       r.Target,
				Provenance: model.Hyperlink,
				Location:   model.Location{Part: RelsName(source), Sheet: sheet, Field: r.ID},
			},
			Target: RelTarget{Source: source, ID: r.ID},
		})
	}
	return out, nil
}

// Unit is an extracted unit with the target that neutralizes it.
type Unit struct {
	Unit   model.ExtractedUnit
	Target Target
}
