package xlsx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tsawler/redactor/model"
	"github.com/tsawler/redactor/ooxml"
)

// Adapter opens spreadsheet packages.
type Adapter struct {
	placeholder string
	logger      *slog.Logger
}

// New creates an adapter. An empty placeholder selects
// [ooxml.DefaultPlaceholder]; a nil logger discards output.
func New(placeholder string, logger *slog.Logger) *Adapter {
	if placeholder == "" {
		placeholder = ooxml.DefaultPlaceholder
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{placeholder: placeholder, logger: logger}
}

// Document is an opened spreadsheet package. It is not safe for
// concurrent use.
type Document struct {
	data        []byte
	pkg         *ooxml.Package
	placeholder string
	logger      *slog.Logger

	workbook  string
	sst       string
	calcChain string
	persons   []string
	pivots    []string
	sheets    []*sheet
	charts    []*sheet // chart sheets
	names     map[string][]formula // defined names, upper case

	units      []model.ExtractedUnit
	targets    map[string]target
	formulas   []*formulaCell
	sharedRefs map[int][]cellLoc

	redacted     []redactedCell
	recalc       bool
	cellsChanged bool
	refresh      map[string]bool
	modified     bool
}

// sheet is a worksheet listed in the workbook.
type sheet struct {
	name string
	part string
}

// cellLoc identifies one cell.
type cellLoc struct {
	sheet    *sheet
	ref      string
	col, row int
}

func (c cellLoc) location() model.Location {
	return model.Location{Part: c.sheet.part, Sheet: c.sheet.name, Cell: c.ref}
}

// formulaCell is a cell formula. Shared and array formulas stand for the
// whole fill range, so their references are grown by its size.
type formulaCell struct {
	cell       cellLoc
	parsed     formula
	cols, rows int
}

// redactedCell is a cell whose value was changed, with the span that
// caused it.
type redactedCell struct {
	cell cellLoc
	unit model.ExtractedUnit
	span model.SensitiveSpan
}

// target neutralizes the spans found in one unit.
type target interface {
	neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report)
}

// Open reads the package and its workbook. Encrypted packages are refused;
// any other structural failure is reported as corrupt input.
func (a *Adapter) Open(ctx context.Context, data []byte, opts model.JobOptions) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pkg, err := ooxml.Open(data, ooxml.WithLimits(opts.Limits))
	if errors.Is(err, ooxml.ErrEncrypted) {
		return nil, model.NewError(model.EncryptedOrProtected, "open", "package is encrypted", nil)
	}
	if err != nil {
		return nil, model.NewError(model.CorruptInput, "open", "package unreadable", err)
	}

	d := &Document{
		data:        data,
		pkg:         pkg,
		placeholder: a.placeholder,
		logger:      a.logger,
		names:       make(map[string][]formula),
		targets:     make(map[string]target),
		sharedRefs:  make(map[int][]cellLoc),
		refresh:     make(map[string]bool),
	}
	if err := d.locateParts(); err != nil {
		return nil, model.NewError(model.CorruptInput, "open", "workbook unreadable", err, model.Location{Part: d.workbook})
	}

	a.logger.Debug("spreadsheet opened",
		"parts", len(pkg.Names()),
		"sheets", len(d.sheets))
	return d, nil
}

// locateParts finds the workbook and the parts it relates to.
func (d *Document) locateParts() error {
	rels, err := d.pkg.Rels("")
	if err != nil {
		return err
	}
	for _, r := range rels {
		if r.Is("officeDocument") && !r.External {
			d.workbook = r.Part
			break
		}
	}
	if d.workbook == "" {
		d.workbook = "xl/workbook.xml"
	}
	tree, err := d.pkg.Tree(d.workbook)
	if err != nil {
		return err
	}
	root := tree.Root()
	if root == nil {
		return fmt.Errorf("%s: no document element", d.workbook)
	}

	rels, err = d.pkg.Rels(d.workbook)
	if err != nil {
		return err
	}
	byID := make(map[string]ooxml.Relationship)
	for _, r := range rels {
		byID[r.ID] = r
		if r.External || !d.pkg.Has(r.Part) {
			continue
		}
		switch {
		case r.Is("sharedStrings"):
			d.sst = r.Part
		case r.Is("calcChain"):
			d.calcChain = r.Part
		case r.Is("pivotCacheDefinition"):
			d.pivots = append(d.pivots, r.Part)
		case r.Is("person"):
			d.persons = append(d.persons, r.Part)
		}
	}

	for _, el := range root.Child("sheets").Elements("sheet") {
		name, _ := el.Attr("name")
		id, _ := el.Attr("id")
		r, ok := byID[id]
		switch {
		case ok && !r.External && r.Is("worksheet") && d.pkg.Has(r.Part):
			d.sheets = append(d.sheets, &sheet{name: name, part: r.Part})
		case ok && !r.External && r.Is("chartsheet") && d.pkg.Has(r.Part):
			d.charts = append(d.charts, &sheet{name: name, part: r.Part})
		}
	}
	return nil
}

// Units extracts every unit: workbook names, shared strings, cell values,
// formulas and their cached results, headers and footers, comments,
// tables, pivot caches, hyperlink targets, drawing and chart text and
// document properties.
func (d *Document) Units(ctx context.Context) ([]model.ExtractedUnit, error) {
	if d.units != nil {
		return d.units, nil
	}
	d.workbookUnits()
	if d.sst != "" {
		if err := d.sharedStringUnits(); err != nil {
			return nil, model.NewError(model.CorruptInput, "units", "shared strings unreadable", err, model.Location{Part: d.sst})
		}
	}
	for _, sh := range d.sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := d.sheetUnits(sh); err != nil {
			return nil, model.NewError(model.CorruptInput, "units", "worksheet unreadable", err, model.Location{Part: sh.part, Sheet: sh.name})
		}
	}
	for _, part := range d.persons {
		if err := d.attrUnits(part, "", map[string]string{"person": "displayName", "person/": "userId"}, model.Metadata); err != nil {
			return nil, model.NewError(model.CorruptInput, "units", "person list unreadable", err, model.Location{Part: part})
		}
	}
	if err := d.pivotUnits(); err != nil {
		return nil, err
	}
	if err := d.graphicUnits(); err != nil {
		return nil, err
	}
	for _, prop := range d.pkg.Properties() {
		d.add(prop.Unit, packageTarget{ooxml.PropTarget{Prop: prop}})
	}
	if err := d.pkg.Err(); err != nil {
		d.units = nil
		return nil, model.NewError(model.CorruptInput, "units", "package part exceeds the decoded size limit", err)
	}

	if d.units == nil {
		d.units = []model.ExtractedUnit{}
	}
	d.logger.Debug("spreadsheet units",
		"units", len(d.units),
		"sheets", len(d.sheets),
		"formulas", len(d.formulas))
	return d.units, nil
}

func (d *Document) add(u model.ExtractedUnit, t target) {
	d.units = append(d.units, u)
	d.targets[u.ID] = t
}

func (d *Document) addAll(units []ooxml.Unit) {
	for _, u := range units {
		d.add(u.Unit, packageTarget{u.Target})
	}
}

// graphicUnits reports the text of the drawings and charts of every
// worksheet and chart sheet. Chart caches are rebuilt from the cells on
// load, so a changed chart also asks for a full recalculation.
func (d *Document) graphicUnits() error {
	seen := make(map[string]bool)
	for _, sh := range append(append([]*sheet{}, d.sheets...), d.charts...) {
		parts, err := d.pkg.GraphicParts(sh.part, seen)
		if err != nil {
			return model.NewError(model.CorruptInput, "units", "drawing relationships unreadable", err, model.Location{Part: sh.part, Sheet: sh.name})
		}
		for _, part := range parts {
			units, err := d.pkg.GraphicUnits(part, sh.name)
			if err != nil {
				return model.NewError(model.CorruptInput, "units", "graphic part unreadable", err, model.Location{Part: part, Sheet: sh.name})
			}
			if !strings.HasPrefix(part, "xl/charts/") {
				d.addAll(units)
				continue
			}
			for _, u := range units {
				d.add(u.Unit, chartTarget{u.Target})
			}
		}
	}
	return nil
}

// workbookUnits reports sheet names and defined names, and parses every
// defined name for the formula dependency check.
func (d *Document) workbookUnits() {
	tree, _ := d.pkg.Tree(d.workbook)
	root := tree.Root()
	loc := model.Location{Part: d.workbook}

	for i, el := range root.Child("sheets").Elements("sheet") {
		name, _ := el.Attr("name")
		l := loc
		l.Field = "sheet"
		l.Object = i + 1
		d.add(model.ExtractedUnit{
			ID:         fmt.Sprintf("workbook/sheet%d", i+1),
			Text:       name,
			Provenance: model.Structural,
			Location:   l,
		}, structuralTarget{})
	}

	for i, el := range root.Child("definedNames").Elements("definedName") {
		name, _ := el.Attr("name")
		text := el.Text()
		d.names[strings.ToUpper(name)] = append(d.names[strings.ToUpper(name)], parseFormula(text))

		l := loc
		l.Field = "definedName"
		l.Object = i + 1
		d.add(model.ExtractedUnit{
			ID:         fmt.Sprintf("workbook/name%d", i+1),
			Text:       name,
			Provenance: model.Structural,
			Location:   l,
		}, structuralTarget{})
		if strings.TrimSpace(text) == "" {
			continue
		}
		d.add(model.ExtractedUnit{
			ID:         fmt.Sprintf("workbook/name%d/f", i+1),
			Text:       text,
			Provenance: model.Formula,
			Location:   l,
		}, formulaTarget{part: d.workbook, node: el, parsed: parseFormula(text)})
	}
}

// sharedStringUnits reports each shared string entry, and its phonetic
// reading separately when present.
func (d *Document) sharedStringUnits() error {
	tree, err := d.pkg.Tree(d.sst)
	if err != nil {
		return err
	}
	for i, si := range tree.Root().Elements("si") {
		loc := model.Location{Part: d.sst, Object: i + 1}
		if text := richText(si); strings.TrimSpace(text) != "" {
			d.add(model.ExtractedUnit{
				ID:         fmt.Sprintf("sst/%d", i),
				Text:       text,
				Provenance: model.SharedString,
				Location:   loc,
			}, sharedTarget{index: i, node: si})
		}
		if text := phoneticText(si); strings.TrimSpace(text) != "" {
			d.add(model.ExtractedUnit{
				ID:         fmt.Sprintf("sst/%d/ph", i),
				Text:       text,
				Provenance: model.Hidden,
				Location:   loc,
			}, phoneticTarget{part: d.sst, node: si})
		}
	}
	return nil
}

// sheetUnits reports the cells, header and footer, comments, tables and
// hyperlinks of one worksheet.
func (d *Document) sheetUnits(sh *sheet) error {
	tree, err := d.pkg.Tree(sh.part)
	if err != nil {
		return err
	}
	root := tree.Root()
	if root == nil {
		return fmt.Errorf("%s: no document element", sh.part)
	}

	for rowIdx, row := range root.Child("sheetData").Elements("row") {
		r := rowIdx
		if v, ok := row.Attr("r"); ok {
			if n, err := strconv.Atoi(v); err == nil && n >= 1 {
				r = n - 1
			}
		}
		col := -1
		for _, c := range row.Elements("c") {
			col++
			if ref, ok := c.Attr("r"); ok {
				if cc, rr, err := ParseCellRef(ref); err == nil {
					col, r = cc, rr
				}
			}
			d.cellUnits(sh, c, cellLoc{sheet: sh, ref: CellRef(col, r), col: col, row: r})
		}
	}

	if hf := root.Child("headerFooter"); hf != nil {
		for _, el := range hf.Children {
			if el.Type != ooxml.ElementNode || strings.TrimSpace(el.Text()) == "" {
				continue
			}
			field := ooxml.Local(el.Name)
			d.add(model.ExtractedUnit{
				ID:         sh.part + "#hf/" + field,
				Text:       el.Text(),
				Provenance: model.Primary,
				Location:   model.Location{Part: sh.part, Sheet: sh.name, Field: field},
			}, packageTarget{ooxml.LeafTarget{Part: sh.part, Node: el}})
		}
	}

	links, err := d.pkg.HyperlinkUnits(sh.part, sh.name)
	if err != nil {
		return err
	}
	d.addAll(links)

	rels, err := d.pkg.Rels(sh.part)
	if err != nil {
		return err
	}
	for _, r := range rels {
		switch {
		case r.External || !d.pkg.Has(r.Part):
		case r.Is("comments"):
			if err := d.commentUnits(sh, r.Part); err != nil {
				return err
			}
		case r.Is("threadedComment"):
			if err := d.threadedCommentUnits(sh, r.Part); err != nil {
				return err
			}
		case r.Is("table"):
			err := d.attrUnits(r.Part, sh.name, map[string]string{"table": "displayName", "table/": "name", "tableColumn": "name"}, model.Structural)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// cellUnits reports the stored text of one cell: its value, or for a
// formula cell the formula text and the cached result.
func (d *Document) cellUnits(sh *sheet, c *ooxml.Node, loc cellLoc) {
	id := sh.part + "#" + loc.ref
	kind, _ := c.Attr("t")
	v := c.Child("v")

	if f := c.Child("f"); f != nil {
		text := f.Text()
		if strings.TrimSpace(text) != "" {
			fc := &formulaCell{cell: loc, parsed: parseFormula(text)}
			if ft, _ := f.Attr("t"); ft == "shared" || ft == "array" {
				if ref, ok := f.Attr("ref"); ok {
					if a, ok := parseArea(ref); ok {
						fc.cols, fc.rows = a.c1-a.c0, a.r1-a.r0
					}
				}
			}
			d.formulas = append(d.formulas, fc)
			d.add(model.ExtractedUnit{
				ID:         id + "/f",
				Text:       text,
				Provenance: model.Formula,
				Location:   loc.location(),
			}, formulaTarget{part: sh.part, node: f, parsed: fc.parsed, cell: true})
		}
		if v != nil && strings.TrimSpace(v.Text()) != "" {
			d.add(model.ExtractedUnit{
				ID:         id + "/v",
				Text:       v.Text(),
				Provenance: model.Cache,
				Location:   loc.location(),
			}, cachedTarget{part: sh.part, cell: c, value: v, loc: loc})
		}
		return
	}

	switch kind {
	case "s":
		if v == nil {
			return
		}
		if i, err := strconv.Atoi(strings.TrimSpace(v.Text())); err == nil {
			d.sharedRefs[i] = append(d.sharedRefs[i], loc)
		}
	case "inlineStr":
		is := c.Child("is")
		if is == nil || strings.TrimSpace(richText(is)) == "" {
			return
		}
		d.add(model.ExtractedUnit{
			ID:         id,
			Text:       richText(is),
			Provenance: model.Primary,
			Location:   loc.location(),
		}, richTarget{part: sh.part, node: is, cell: &loc})
	case "b", "e":
	default:
		if v == nil || strings.TrimSpace(v.Text()) == "" {
			return
		}
		d.add(model.ExtractedUnit{
			ID:         id,
			Text:       v.Text(),
			Provenance: model.Primary,
			Location:   loc.location(),
		}, valueTarget{part: sh.part, cell: c, loc: loc})
	}
}

// commentUnits reports comment authors and comment text.
func (d *Document) commentUnits(sh *sheet, part string) error {
	tree, err := d.pkg.Tree(part)
	if err != nil {
		return err
	}
	root := tree.Root()
	for i, a := range root.Child("authors").Elements("author") {
		if strings.TrimSpace(a.Text()) == "" {
			continue
		}
		d.add(model.ExtractedUnit{
			ID:         fmt.Sprintf("%s#author%d", part, i+1),
			Text:       a.Text(),
			Provenance: model.Metadata,
			Location:   model.Location{Part: part, Sheet: sh.name, Field: "author"},
		}, packageTarget{ooxml.LeafTarget{Part: part, Node: a}})
	}
	for _, c := range root.Child("commentList").Elements("comment") {
		ref, _ := c.Attr("ref")
		text := c.Child("text")
		if text == nil || strings.TrimSpace(richText(text)) == "" {
			continue
		}
		d.add(model.ExtractedUnit{
			ID:         part + "#" + ref,
			Text:       richText(text),
			Provenance: model.Annotation,
			Location:   model.Location{Part: part, Sheet: sh.name, Cell: ref},
		}, richTarget{part: part, node: text})
	}
	return nil
}

// threadedCommentUnits reports the text of threaded comments. Their
// authors live in the person list.
func (d *Document) threadedCommentUnits(sh *sheet, part string) error {
	tree, err := d.pkg.Tree(part)
	if err != nil {
		return err
	}
	for i, c := range tree.Root().Elements("threadedComment") {
		ref, _ := c.Attr("ref")
		text := c.Child("text")
		if text == nil || strings.TrimSpace(text.Text()) == "" {
			continue
		}
		d.add(model.ExtractedUnit{
			ID:         fmt.Sprintf("%s#t%d", part, i+1),
			Text:       text.Text(),
			Provenance: model.Annotation,
			Location:   model.Location{Part: part, Sheet: sh.name, Cell: ref},
		}, packageTarget{ooxml.LeafTarget{Part: part, Node: text}})
	}
	return nil
}

// attrUnits reports attribute values of a part. attrs maps an element's
// local name to the attribute to report; a second attribute of the same
// element is listed under the name with a trailing slash.
func (d *Document) attrUnits(part, sheetName string, attrs map[string]string, prov model.Provenance) error {
	tree, err := d.pkg.Tree(part)
	if err != nil {
		return err
	}
	n := 0
	tree.Walk(func(el *ooxml.Node) bool {
		if el.Type != ooxml.ElementNode {
			return true
		}
		local := ooxml.Local(el.Name)
		for _, key := range []string{local, local + "/"} {
			name, ok := attrs[key]
			if !ok {
				continue
			}
			value, ok := el.Attr(name)
			if !ok || strings.TrimSpace(value) == "" {
				continue
			}
			n++
			var t target = packageTarget{ooxml.AttrTarget{Part: part, Node: el, Name: name}}
			if prov == model.Structural {
				t = structuralTarget{}
			}
			d.add(model.ExtractedUnit{
				ID:         fmt.Sprintf("%s#a%d", part, n),
				Text:       value,
				Provenance: prov,
				Location:   model.Location{Part: part, Sheet: sheetName, Field: name},
			}, t)
		}
		return true
	})
	return nil
}

// pivotUnits reports the field names and cached items of every pivot
// cache, in both the definition and its records.
func (d *Document) pivotUnits() error {
	for _, def := range d.pivots {
		parts := []string{def}
		rels, err := d.pkg.Rels(def)
		if err != nil {
			return model.NewError(model.CorruptInput, "units", "pivot cache unreadable", err, model.Location{Part: def})
		}
		for _, r := range rels {
			if r.Is("pivotCacheRecords") && !r.External && d.pkg.Has(r.Part) {
				parts = append(parts, r.Part)
			}
		}
		for _, part := range parts {
			tree, err := d.pkg.Tree(part)
			if err != nil {
				return model.NewError(model.CorruptInput, "units", "pivot cache unreadable", err, model.Location{Part: part})
			}
			n := 0
			tree.Walk(func(el *ooxml.Node) bool {
				var name string
				switch {
				case el.Is("s"):
					name = "v"
				case el.Is("cacheField"):
					name = "name"
				default:
					return true
				}
				value, ok := el.Attr(name)
				if !ok || strings.TrimSpace(value) == "" {
					return true
				}
				n++
				d.add(model.ExtractedUnit{
					ID:         fmt.Sprintf("%s#s%d", part, n),
					Text:       value,
					Provenance: model.Cache,
					Location:   model.Location{Part: part, Object: n},
				}, cacheTarget{AttrTarget: ooxml.AttrTarget{Part: part, Node: el, Name: name}, definition: def})
				return true
			})
		}
	}
	return nil
}

// richText returns the text of a string item: its plain text or the
// concatenated text of its runs. Phonetic readings are not included.
func richText(n *ooxml.Node) string {
	var b strings.Builder
	for _, c := range n.Children {
		switch {
		case c.Is("t"):
			b.WriteString(c.Text())
		case c.Is("r"):
			if t := c.Child("t"); t != nil {
				b.WriteString(t.Text())
			}
		}
	}
	return b.String()
}

func phoneticText(n *ooxml.Node) string {
	var b strings.Builder
	for _, c := range n.Elements("rPh") {
		if t := c.Child("t"); t != nil {
			b.WriteString(t.Text())
		}
	}
	return b.String()
}
