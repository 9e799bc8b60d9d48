package xlsx

import (
	"context"
	"strings"

	"github.com/tsawler/redactor/model"
	"github.com/tsawler/redactor/ooxml"
)

// calcPrFollowers are the workbook children that come after calcPr.
var calcPrFollowers = map[string]bool{
	"oleSize":             true,
	"customWorkbookViews": true,
	"pivotCaches":         true,
	"smartTagPr":          true,
	"smartTagTypes":       true,
	"webPublishing":       true,
	"fileRecoveryPr":      true,
	"webPublishObjects":   true,
	"extLst":              true,
}

// Apply neutralizes every span of the plan in memory, then checks every
// formula that builds text against the cells that changed. Such a formula
// would recompute the removed value on open, so it is reported unresolved.
func (d *Document) Apply(ctx context.Context, plan *model.Plan, rep *model.Report) error {
	if plan.Empty() {
		return nil
	}
	d.modified = true
	for _, id := range plan.UnitIDs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		u, _ := plan.Unit(id)
		spans := plan.SpansFor(id)
		t, ok := d.targets[id]
		if !ok {
			for _, s := range spans {
				rep.Unresolve(u, s, u.Location, "unit has no removal strategy")
			}
			continue
		}
		t.neutralize(d, u, spans, rep)
	}

	d.checkFormulas(rep)

	if d.cellsChanged && d.calcChain != "" {
		d.pkg.Remove(d.calcChain)
	}
	if d.recalc {
		d.forceRecalc()
	}
	for def := range d.refresh {
		if tree, err := d.pkg.Tree(def); err == nil {
			tree.Root().SetAttr("refreshOnLoad", "1")
			d.pkg.Touch(def)
		}
	}
	return nil
}

// Serialize writes the package. An unmodified package returns its input
// bytes; otherwise edited parts are rebuilt and the thumbnail is dropped.
func (d *Document) Serialize() ([]byte, error) {
	if !d.modified {
		return d.data, nil
	}
	out, err := d.pkg.Write()
	if err != nil {
		return nil, model.NewError(model.PartialRedactionFailure, "serialize", "package could not be written", err)
	}
	return out, nil
}

// redactCell records a changed cell for the formula check.
func (d *Document) redactCell(c cellLoc, u model.ExtractedUnit, s model.SensitiveSpan) {
	d.redacted = append(d.redacted, redactedCell{cell: c, unit: u, span: s})
	d.cellsChanged = true
}

func (d *Document) checkFormulas(rep *model.Report) {
	if len(d.redacted) == 0 {
		return
	}
	for _, fc := range d.formulas {
		if !fc.parsed.stringOps {
			continue
		}
		for _, rc := range d.redacted {
			if rc.cell.sheet == fc.cell.sheet && rc.cell.ref == fc.cell.ref {
				continue
			}
			if d.references(fc, rc.cell) {
				d.logger.Warn("formula derives text from a redacted cell",
					"formula", fc.cell.location().String(),
					"cell", rc.cell.location().String())
				rep.Unresolve(rc.unit, rc.span, fc.cell.location(), "formula derives text from a redacted cell")
			}
		}
	}
}

// references reports whether the formula reads cell, directly or through
// defined names.
func (d *Document) references(fc *formulaCell, cell cellLoc) bool {
	for _, r := range fc.parsed.refs {
		if sheetMatches(r.sheet, fc.cell.sheet, cell.sheet) && r.area.grow(fc.cols, fc.rows).contains(cell.col, cell.row) {
			return true
		}
	}
	return d.namesReference(fc.parsed.names, fc.cell.sheet, cell, make(map[string]bool))
}

func (d *Document) namesReference(names []string, own *sheet, cell cellLoc, seen map[string]bool) bool {
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		for _, def := range d.names[name] {
			for _, r := range def.refs {
				sh := r.sheet
				if sh == "" {
					sh = "*"
				}
				if sheetMatches(sh, own, cell.sheet) && r.area.contains(cell.col, cell.row) {
					return true
				}
			}
			if d.namesReference(def.names, own, cell, seen) {
				return true
			}
		}
	}
	return false
}

func sheetMatches(ref string, own, target *sheet) bool {
	switch ref {
	case "":
		return own == target
	case "*":
		return true
	}
	return strings.EqualFold(ref, target.name)
}

// forceRecalc asks the application to recalculate every formula on open,
// replacing cached results that were rewritten.
func (d *Document) forceRecalc() {
	tree, err := d.pkg.Tree(d.workbook)
	if err != nil {
		return
	}
	root := tree.Root()
	calcPr := root.Child("calcPr")
	if calcPr == nil {
		calcPr = ooxml.NewElement(root, "calcPr")
		pos := len(root.Children)
		for i, c := range root.Children {
			if c.Type == ooxml.ElementNode && calcPrFollowers[ooxml.Local(c.Name)] {
				pos = i
				break
			}
		}
		root.Insert(pos, calcPr)
	}
	calcPr.SetAttr("fullCalcOnLoad", "1")
	d.pkg.Touch(d.workbook)
}

// setRichText replaces the runs of a string item with one plain text
// element, dropping formatting and phonetic readings.
func setRichText(n *ooxml.Node, text string) {
	for _, c := range n.Children {
		c.Parent = nil
	}
	n.Children = nil
	t := ooxml.NewElement(n, "t")
	t.SetAttr("xml:space", "preserve")
	t.SetText(text)
	n.Append(t)
}

// sharedTarget rewrites a shared string entry. Every cell showing it
// changes with it.
type sharedTarget struct {
	index int
	node  *ooxml.Node
}

func (t sharedTarget) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	setRichText(t.node, ooxml.Rewrite(u.Text, spans, d.placeholder))
	d.pkg.Touch(d.sst)
	cells := d.sharedRefs[t.index]
	for _, s := range spans {
		rep.Neutralize(u, s, model.StrategyRewrite, u.Location)
		for _, c := range cells {
			rep.Neutralize(u, s, model.StrategyRewrite, c.location())
		}
	}
	for _, c := range cells {
		d.redactCell(c, u, spans[0])
	}
}

// phoneticTarget deletes the phonetic readings of a shared string.
type phoneticTarget struct {
	part string
	node *ooxml.Node
}

func (t phoneticTarget) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	for _, c := range t.node.Elements("rPh") {
		t.node.Remove(c)
	}
	d.pkg.Touch(t.part)
	for _, s := range spans {
		rep.Neutralize(u, s, model.StrategyDelete, u.Location)
	}
}

// richTarget rewrites an inline string or comment text.
type richTarget struct {
	part string
	node *ooxml.Node
	cell *cellLoc
}

func (t richTarget) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	setRichText(t.node, ooxml.Rewrite(u.Text, spans, d.placeholder))
	d.pkg.Touch(t.part)
	for _, s := range spans {
		rep.Neutralize(u, s, model.StrategyRewrite, u.Location)
	}
	if t.cell != nil {
		d.redactCell(*t.cell, u, spans[0])
	}
}

// valueTarget turns a plain value cell into an inline string holding the
// rewritten value.
type valueTarget struct {
	part string
	cell *ooxml.Node
	loc  cellLoc
}

func (t valueTarget) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	pos := len(t.cell.Children)
	if v := t.cell.Child("v"); v != nil {
		for i, c := range t.cell.Children {
			if c == v {
				pos = i
				break
			}
		}
		t.cell.Remove(v)
	}
	is := ooxml.NewElement(t.cell, "is")
	setRichText(is, ooxml.Rewrite(u.Text, spans, d.placeholder))
	t.cell.Insert(pos, is)
	t.cell.SetAttr("t", "inlineStr")
	d.pkg.Touch(t.part)

	for _, s := range spans {
		rep.Neutralize(u, s, model.StrategyRewrite, u.Location)
	}
	d.redactCell(t.loc, u, spans[0])
}

// cachedTarget rewrites the cached result of a formula cell and forces a
// recalculation on open.
type cachedTarget struct {
	part  string
	cell  *ooxml.Node
	value *ooxml.Node
	loc   cellLoc
}

func (t cachedTarget) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	t.value.SetText(ooxml.Rewrite(u.Text, spans, d.placeholder))
	t.cell.SetAttr("t", "str")
	d.pkg.Touch(t.part)
	d.recalc = true

	for _, s := range spans {
		rep.Neutralize(u, s, model.StrategyRewrite, u.Location)
	}
	d.redactCell(t.loc, u, spans[0])
}

// formulaTarget rewrites matches inside string literals of a formula.
// Anything else would change what the formula computes.
type formulaTarget struct {
	part   string
	node   *ooxml.Node
	parsed formula
	cell   bool
}

func (t formulaTarget) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	var inside []model.SensitiveSpan
	for _, s := range spans {
		if !t.parsed.inLiteral(s.Start, s.End) {
			rep.Unresolve(u, s, u.Location, "match outside a string literal")
			continue
		}
		inside = append(inside, s)
		rep.Neutralize(u, s, model.StrategyRewrite, u.Location)
	}
	if len(inside) == 0 {
		return
	}
	t.node.SetText(ooxml.Rewrite(u.Text, inside, quoteLiteral(d.placeholder)))
	d.pkg.Touch(t.part)
	d.recalc = true
	if t.cell {
		d.cellsChanged = true
	}
}

// packageTarget adapts a target that only needs the package.
type packageTarget struct {
	ooxml.Target
}

func (t packageTarget) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	t.Neutralize(d.pkg, d.placeholder, u, spans, rep)
}

// cacheTarget rewrites a pivot cache item and marks its cache for refresh.
type cacheTarget struct {
	ooxml.AttrTarget
	definition string
}

func (t cacheTarget) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	t.Neutralize(d.pkg, d.placeholder, u, spans, rep)
	d.refresh[t.definition] = true
}

// chartTarget rewrites chart text and has the workbook recalculate, which
// rebuilds chart caches from the cells.
type chartTarget struct {
	ooxml.Target
}

func (t chartTarget) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	t.Neutralize(d.pkg, d.placeholder, u, spans, rep)
	d.recalc = true
}

// structuralTarget covers names that other parts refer to by value.
type structuralTarget struct{}

func (structuralTarget) neutralize(_ *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	for _, s := range spans {
		rep.Unresolve(u, s, u.Location, "renaming would break references")
	}
}
