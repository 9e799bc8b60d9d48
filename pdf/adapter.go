package pdf

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tsawler/redactor/contentstream"
	"github.com/tsawler/redactor/core"
	"github.com/tsawler/redactor/font"
	"github.com/tsawler/redactor/model"
	"github.com/tsawler/redactor/pages"
	"github.com/tsawler/redactor/reader"
)

// Adapter opens page documents.
type Adapter struct {
	logger *slog.Logger
}

// New creates an adapter. A nil logger discards output.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{logger: logger}
}

// Document is an opened page document. It is not safe for concurrent use.
type Document struct {
	data   []byte
	r      *reader.Reader
	logger *slog.Logger
	budget *core.Budget

	catalog core.Dict
	info    core.Dict
	pages   []*page
	fonts   map[int]*font.Font
	forms   map[*core.Stream]*content
	names   []*nameNode

	units   []model.ExtractedUnit
	targets map[string]target

	// dropped holds object numbers removed from the output even when
	// something still references them.
	dropped  map[int]bool
	modified bool
}

type page struct {
	num     int
	p       *pages.Page
	content *content
	runs    []*run
	images  []placement
	covers  []model.Rect
	annots  []*annotation
}

// target neutralizes the spans found in one unit.
type target interface {
	neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report)
}

// Open parses a page document. Encrypted documents are refused; any other
// structural failure is reported as corrupt input.
func (a *Adapter) Open(ctx context.Context, data []byte, opts model.JobOptions) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var budget *core.Budget
	if l := opts.Limits; l.MaxStream > 0 || l.MaxDecoded > 0 {
		budget = core.NewBudget(l.MaxStream, l.MaxDecoded)
	}
	r, err := reader.NewReader(data, reader.WithBudget(budget))
	if errors.Is(err, core.ErrDecodeLimit) {
		return nil, errDecodeLimit("open", err)
	}
	if err != nil {
		return nil, model.NewError(model.CorruptInput, "open", "document structure unreadable", err)
	}
	if r.Encrypted() {
		return nil, model.NewError(model.EncryptedOrProtected, "open", "document is encrypted", nil)
	}
	catalog, err := r.Catalog()
	if err != nil {
		return nil, model.NewError(model.CorruptInput, "open", "catalog unreadable", err)
	}
	pgs, err := r.Pages()
	if err != nil {
		return nil, model.NewError(model.CorruptInput, "open", "page tree unreadable", err)
	}
	info, err := r.Info()
	if err != nil {
		a.logger.Warn("document information unreadable", "error", err)
	}

	d := &Document{
		data:    data,
		r:       r,
		logger:  a.logger,
		budget:  budget,
		catalog: catalog,
		info:    info,
		fonts:   make(map[int]*font.Font),
		forms:   make(map[*core.Stream]*content),
		targets: make(map[string]target),
		dropped: make(map[int]bool),
	}
	for i, p := range pgs {
		d.pages = append(d.pages, &page{num: i + 1, p: p})
	}

	a.logger.Debug("page document opened",
		"pages", len(pgs),
		"revisions", r.Revisions(),
		"repaired", r.Repaired(),
		"version", r.Version().String())
	return d, nil
}

// Revisions returns the number of revisions in the input file.
func (d *Document) Revisions() int {
	return d.r.Revisions()
}

// Units extracts every unit: text runs and marked-content properties per
// page, annotations and their actions, document information, XMP metadata,
// attachments, outlines, document scripts, form fields, structure element
// alternate text and prior revisions.
func (d *Document) Units(ctx context.Context) ([]model.ExtractedUnit, error) {
	if d.units != nil {
		return d.units, nil
	}
	for _, pg := range d.pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := d.interpretPage(pg); err != nil {
			return nil, model.NewError(model.CorruptInput, "units", "page content unreadable", err, model.Location{Page: pg.num})
		}
		for _, r := range pg.runs {
			d.add(r.unit, r)
		}
		d.annotationUnits(pg)
	}
	d.infoUnits()
	d.xmpUnits()
	d.attachmentUnits()
	d.outlineUnits()
	d.documentActionUnits()
	d.formUnits()
	d.structUnits()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.historyUnits()
	if err := d.budget.Err(); err != nil {
		d.units = nil
		return nil, errDecodeLimit("units", err)
	}

	if d.units == nil {
		d.units = []model.ExtractedUnit{}
	}
	d.logger.Debug("page document units", "units", len(d.units), "pages", len(d.pages))
	return d.units, nil
}

// errDecodeLimit reports a stream that decodes past the job's limits.
// Skipping it would leave its text unexamined.
func errDecodeLimit(op string, err error) error {
	return model.NewError(model.CorruptInput, op, "stream exceeds the decoded size limit", err)
}

func (d *Document) add(u model.ExtractedUnit, t target) {
	d.units = append(d.units, u)
	d.targets[u.ID] = t
}

// Apply neutralizes every span of the plan in memory. Prior revisions are
// always discarded when the plan is not empty.
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

// Serialize writes the document. An unmodified document returns its input
// bytes; otherwise a single-revision file holding only reachable objects
// is produced.
func (d *Document) Serialize() ([]byte, error) {
	if !d.modified {
		return d.data, nil
	}
	if err := d.commit(); err != nil {
		return nil, model.NewError(model.PartialRedactionFailure, "serialize", "edited content could not be encoded", err)
	}
	return d.flatten(), nil
}

// commit writes pending edits back into the object graph.
func (d *Document) commit() error {
	for _, c := range d.forms {
		if c == nil || !c.edited() {
			continue
		}
		if err := c.stream.SetFlateData(contentstream.Write(c.rewrite())); err != nil {
			return err
		}
	}

	for _, pg := range d.pages {
		pg.p.Dict.Delete("Thumb")
		pg.p.Dict.Delete("PieceInfo")
		d.commitAnnots(pg)

		if pg.content == nil || (!pg.content.edited() && len(pg.covers) == 0) {
			continue
		}
		s := &core.Stream{Dict: core.Dict{}}
		if err := s.SetFlateData(pageContent(pg.content.rewrite(), pg.covers)); err != nil {
			return err
		}
		num := d.r.NewObjectNumber()
		d.r.SetObject(num, s)
		pg.p.Dict.Set("Contents", core.IndirectRef{Number: num})
	}

	d.catalog.Delete("PieceInfo")
	for _, n := range d.names {
		n.commit()
	}
	return nil
}
