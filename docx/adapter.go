package docx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tsawler/redactor/model"
	"github.com/tsawler/redactor/ooxml"
)

// Adapter opens word-processing packages.
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

// Document is an opened word-processing package. It is not safe for
// concurrent use.
type Document struct {
	data        []byte
	pkg         *ooxml.Package
	placeholder string
	logger      *slog.Logger

	main     string
	text     []textPart
	people   string
	graphics []string
	styles   *styleResolver

	editor   *ooxml.Editor
	units    []model.ExtractedUnit
	targets  map[string]target
	modified bool
}

// textPart is a part holding paragraphs.
type textPart struct {
	name       string
	annotation bool
}

// target neutralizes the spans found in one unit.
type target interface {
	neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report)
}

// Open reads the package and locates its text parts. Encrypted packages
// are refused; any other structural failure is reported as corrupt input.
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
		editor:      ooxml.NewEditor(),
		targets:     make(map[string]target),
	}
	if err := d.locateParts(); err != nil {
		return nil, model.NewError(model.CorruptInput, "open", "document part unreadable", err, model.Location{Part: d.main})
	}

	a.logger.Debug("word document opened",
		"parts", len(pkg.Names()),
		"text_parts", len(d.text))
	return d, nil
}

// locateParts follows the relationships from the package root to the main
// document and from there to every other part that stores text.
func (d *Document) locateParts() error {
	rels, err := d.pkg.Rels("")
	if err != nil {
		return err
	}
	for _, r := range rels {
		if r.Is("officeDocument") && !r.External {
			d.main = r.Part
			break
		}
	}
	if d.main == "" {
		d.main = "word/document.xml"
	}
	if _, err := d.pkg.Tree(d.main); err != nil {
		return err
	}
	d.text = append(d.text, textPart{name: d.main})

	rels, err = d.pkg.Rels(d.main)
	if err != nil {
		return err
	}
	d.styles = newStyleResolver(nil)
	seen := map[string]bool{d.main: true}
	for _, r := range rels {
		if r.External || seen[r.Part] || !d.pkg.Has(r.Part) {
			continue
		}
		switch {
		case r.Is("styles"):
			data, err := d.pkg.Read(r.Part)
			if err != nil {
				return err
			}
			d.styles = newStyleResolver(data)
		case r.Is("header"), r.Is("footer"), r.Is("footnotes"), r.Is("endnotes"), r.Is("glossaryDocument"):
			d.text = append(d.text, textPart{name: r.Part})
		case r.Is("comments"):
			d.text = append(d.text, textPart{name: r.Part, annotation: true})
		case r.Is("people"):
			d.people = r.Part
		default:
			continue
		}
		seen[r.Part] = true
	}

	// Charts, diagrams and drawings can hang off any text part.
	graphicSeen := make(map[string]bool)
	for _, tp := range d.text {
		parts, err := d.pkg.GraphicParts(tp.name, graphicSeen)
		if err != nil {
			return err
		}
		d.graphics = append(d.graphics, parts...)
	}
	return nil
}

// Units extracts every unit: paragraph views of each text part, author
// and alternate text attributes, external hyperlink targets, chart,
// diagram and drawing text, custom XML data and document properties.
func (d *Document) Units(ctx context.Context) ([]model.ExtractedUnit, error) {
	if d.units != nil {
		return d.units, nil
	}
	for _, tp := range d.text {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := d.textUnits(tp); err != nil {
			return nil, model.NewError(model.CorruptInput, "units", "text part unreadable", err, model.Location{Part: tp.name})
		}
	}
	if d.people != "" {
		tree, err := d.pkg.Tree(d.people)
		if err != nil {
			return nil, model.NewError(model.CorruptInput, "units", "people part unreadable", err, model.Location{Part: d.people})
		}
		d.attrUnits(d.people, tree)
	}
	for _, part := range d.graphics {
		units, err := d.pkg.GraphicUnits(part, "")
		if err != nil {
			return nil, model.NewError(model.CorruptInput, "units", "graphic part unreadable", err, model.Location{Part: part})
		}
		d.addAll(units)
	}
	if err := d.customXMLUnits(); err != nil {
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
	d.logger.Debug("word document units", "units", len(d.units), "text_parts", len(d.text))
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

func (d *Document) textUnits(tp textPart) error {
	tree, err := d.pkg.Tree(tp.name)
	if err != nil {
		return err
	}
	root := tree.Root()
	if root == nil {
		return fmt.Errorf("%s: no document element", tp.name)
	}
	wk := &walker{
		part:       tp.name,
		w:          ooxml.Prefix(root.Name),
		styles:     d.styles,
		annotation: tp.annotation,
	}
	for i, p := range wk.paragraphs(root) {
		for _, tu := range wk.units(wk.read(p), i+1) {
			d.add(tu.unit, textTarget{segs: tu.segs})
		}
	}
	d.attrUnits(tp.name, root)

	links, err := d.pkg.HyperlinkUnits(tp.name, "")
	if err != nil {
		return err
	}
	d.addAll(links)
	return nil
}

// attributeProvenance lists the attributes that store text outside of
// paragraphs, keyed by local name.
var attributeProvenance = map[string]model.Provenance{
	"author":   model.Metadata,
	"initials": model.Metadata,
	"userId":   model.Metadata,
	"instr":    model.Field,
	"descr":    model.Hidden,
	"title":    model.Hidden,
}

// attrUnits extracts revision and comment authors, simple field
// instructions and drawing alternate text.
func (d *Document) attrUnits(part string, root *ooxml.Node) {
	n := 0
	root.Walk(func(el *ooxml.Node) bool {
		if el.Type != ooxml.ElementNode {
			return true
		}
		for _, a := range el.Attrs {
			local := ooxml.Local(a.Name)
			prov, ok := attributeProvenance[local]
			if !ok || strings.TrimSpace(a.Value) == "" || ooxml.Prefix(a.Name) == "xmlns" {
				continue
			}
			if (local == "descr" || local == "title") && !el.Is("docPr") {
				continue
			}
			if local == "instr" && !el.Is("fldSimple") {
				continue
			}
			n++
			d.add(model.ExtractedUnit{
				ID:         fmt.Sprintf("%s#a%d", part, n),
				Text:       a.Value,
				Provenance: prov,
				Location:   model.Location{Part: part, Field: local},
			}, packageTarget{ooxml.AttrTarget{Part: part, Node: el, Name: a.Name}})
		}
		return true
	})
}

// customXMLUnits extracts the text of custom XML data parts, which bound
// content controls keep in sync with the document body.
func (d *Document) customXMLUnits() error {
	for _, name := range d.pkg.Names() {
		if !strings.HasPrefix(name, "customXml/item") || strings.HasPrefix(name, "customXml/itemProps") ||
			!strings.HasSuffix(name, ".xml") {
			continue
		}
		tree, err := d.pkg.Tree(name)
		if err != nil {
			return model.NewError(model.CorruptInput, "units", "custom XML part unreadable", err, model.Location{Part: name})
		}
		n := 0
		tree.Walk(func(el *ooxml.Node) bool {
			if el.Type != ooxml.ElementNode || strings.TrimSpace(el.Text()) == "" {
				return true
			}
			var b ooxml.TextBuilder
			b.Add(name, el)
			n++
			d.add(model.ExtractedUnit{
				ID:         fmt.Sprintf("%s#c%d", name, n),
				Text:       b.String(),
				Provenance: model.Cache,
				Location:   model.Location{Part: name, Field: ooxml.Local(el.Name)},
			}, textTarget{segs: b.Segments()})
			return true
		})
	}
	return nil
}

// Apply neutralizes every span of the plan in memory. Text edits are
// collected first so that views sharing an element merge their cuts.
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
	return nil
}

// Serialize writes the package. An unmodified package returns its input
// bytes; otherwise edited parts are rebuilt and the thumbnail is dropped.
func (d *Document) Serialize() ([]byte, error) {
	if !d.modified {
		return d.data, nil
	}
	for _, part := range d.editor.Commit(d.placeholder) {
		d.pkg.Touch(part)
	}
	out, err := d.pkg.Write()
	if err != nil {
		return nil, model.NewError(model.PartialRedactionFailure, "serialize", "package could not be written", err)
	}
	return out, nil
}

// textTarget cuts spans out of the elements a unit's text came from.
type textTarget struct {
	segs []ooxml.Segment
}

func (t textTarget) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	for _, s := range spans {
		if d.editor.Cut(t.segs, s.Start, s.End) {
			rep.Neutralize(u, s, model.StrategyRewrite, u.Location)
			continue
		}
		rep.Unresolve(u, s, u.Location, "span covers no stored text")
	}
}

// packageTarget adapts a target that only needs the package.
type packageTarget struct {
	ooxml.Target
}

func (t packageTarget) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	t.Neutralize(d.pkg, d.placeholder, u, spans, rep)
}
