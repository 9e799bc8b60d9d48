package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	_ "image/jpeg" // register decoder
	"image/png"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tsawler/redactor/internal/filters"
	"github.com/tsawler/redactor/model"
	"github.com/tsawler/redactor/ocr"
)

const (
	// DefaultMargin is the number of pixels filled around each matched
	// rectangle.
	DefaultMargin = 2

	// maxPixels bounds the decoded canvas.
	maxPixels = 1 << 28

	// ForcedRuleID is the rule id reported for caller-forced fills.
	ForcedRuleID = "forced-rect"
)

// Adapter opens raster images.
type Adapter struct {
	recognizer ocr.Recognizer
	policy     OCRPolicy
	margin     int
	logger     *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithRecognizer sets the OCR engine.
func WithRecognizer(r ocr.Recognizer) Option {
	return func(a *Adapter) { a.recognizer = r }
}

// WithPolicy sets when OCR runs.
func WithPolicy(p OCRPolicy) Option {
	return func(a *Adapter) { a.policy = p }
}

// WithMargin sets the fill margin in pixels. Negative values are treated
// as zero.
func WithMargin(px int) Option {
	return func(a *Adapter) { a.margin = max(px, 0) }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an adapter. Without options OCR is attempted only when a
// recognizer is supplied, and fills use DefaultMargin.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		policy: OCRIfAvailable,
		margin: DefaultMargin,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Document is an opened image. It is not safe for concurrent use.
type Document struct {
	data   []byte
	name   string // registered decoder name
	img    image.Image
	anim   *gif.GIF
	meta   *metadata
	opts   model.JobOptions
	a      *Adapter
	logger *slog.Logger

	units    []model.ExtractedUnit
	targets  map[string]target
	modified bool
}

// target neutralizes the spans found in one unit.
type target interface {
	neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report)
}

// Open decodes an image and reads its metadata. Caller regions and forced
// rectangles in opts are kept for Units and Apply.
func (a *Adapter) Open(ctx context.Context, data []byte, opts model.JobOptions) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, model.NewError(model.CorruptInput, "open", "image header unreadable", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return nil, model.NewError(model.CorruptInput, "open", "image dimensions out of range", nil)
	}
	if limit := opts.Limits.MaxDecoded; limit > 0 && int64(cfg.Width)*int64(cfg.Height)*4 > limit {
		return nil, model.NewError(model.CorruptInput, "open", "image exceeds the decoded size limit", filters.ErrLimit)
	}
	var budget *filters.Budget
	if l := opts.Limits; l.MaxStream > 0 || l.MaxDecoded > 0 {
		budget = filters.NewBudget(l.MaxStream, l.MaxDecoded)
	}

	d := &Document{
		data:    data,
		name:    name,
		opts:    opts,
		a:       a,
		logger:  a.logger,
		targets: make(map[string]target),
	}
	if name == "gif" {
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, model.NewError(model.CorruptInput, "open", "image data unreadable", err)
		}
		d.anim = g
		d.img = g.Image[0]
	} else {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, model.NewError(model.CorruptInput, "open", "image data unreadable", err)
		}
		d.img = img
	}

	meta, err := readMetadata(name, data, budget)
	if err != nil {
		return nil, model.NewError(model.CorruptInput, "open", "image metadata unreadable", err)
	}
	d.meta = meta

	a.logger.Debug("raster image opened",
		"codec", name,
		"width", cfg.Width,
		"height", cfg.Height,
		"metadata_fields", len(meta.fields),
		"regions", len(opts.Regions))
	return d, nil
}

// Codec returns the name of the image encoding, such as "png" or "jpeg".
func (d *Document) Codec() string {
	return d.name
}

// Units returns metadata fields, caller regions and OCR lines.
func (d *Document) Units(ctx context.Context) ([]model.ExtractedUnit, error) {
	if d.units != nil {
		return d.units, nil
	}
	d.metadataUnits()
	d.trailerUnit()
	d.regionUnits()
	if err := d.ocrUnits(ctx); err != nil {
		return nil, err
	}
	if d.units == nil {
		d.units = []model.ExtractedUnit{}
	}
	return d.units, nil
}

func (d *Document) add(u model.ExtractedUnit, t target) {
	d.units = append(d.units, u)
	d.targets[u.ID] = t
}

func (d *Document) metadataUnits() {
	for i, f := range d.meta.fields {
		d.add(model.ExtractedUnit{
			ID:         fmt.Sprintf("meta/%d", i+1),
			Text:       f.text,
			Provenance: model.Metadata,
			Location:   model.Location{Part: f.part, Field: f.name, Object: i + 1},
		}, strippedTarget{strategy: model.StrategyDelete})
	}
}

// trailerUnit exposes bytes appended after the image's end marker. They are
// dropped by re-encoding.
func (d *Document) trailerUnit() {
	if len(bytes.Trim(d.meta.trailer, "\x00\r\n\t ")) == 0 {
		return
	}
	d.add(model.ExtractedUnit{
		ID:         "trailer",
		Text:       strings.ToValidUTF8(string(d.meta.trailer), " "),
		Provenance: model.Hidden,
		Location:   model.Location{Part: "trailer"},
	}, strippedTarget{strategy: model.StrategyDrop})
}

// regionUnits turns caller regions into primary units. Every rune maps to
// the whole region, so a match anywhere fills all of it.
func (d *Document) regionUnits() {
	for i, r := range d.opts.Regions {
		if r.Text == "" {
			continue
		}
		rect := r.Rect
		boxes := make([]model.Rect, utf8.RuneCountInString(r.Text))
		for j := range boxes {
			boxes[j] = rect
		}
		d.add(model.ExtractedUnit{
			ID:         fmt.Sprintf("region/%d", i+1),
			Text:       r.Text,
			Provenance: model.Primary,
			Location:   model.Location{Object: i + 1, Rect: &rect},
			Boxes:      boxes,
		}, pixelTarget{})
	}
}

func (d *Document) ocrUnits(ctx context.Context) error {
	words, err := d.recognize(ctx)
	if err != nil {
		return err
	}
	for i, line := range lines(words) {
		text, boxes := lineText(line)
		bounds := boxes[0]
		for _, b := range boxes[1:] {
			bounds = bounds.Union(b)
		}
		d.add(model.ExtractedUnit{
			ID:         fmt.Sprintf("ocr/%d", i+1),
			Text:       text,
			Provenance: model.Primary,
			Location:   model.Location{Op: i + 1, Rect: &bounds},
			Boxes:      boxes,
		}, pixelTarget{})
	}
	return nil
}

// recognize runs OCR according to the policy. OCRRequired fails closed when
// no engine can run.
func (d *Document) recognize(ctx context.Context) ([]ocr.Word, error) {
	policy := d.a.policy
	if policy == OCROff {
		return nil, nil
	}
	if d.a.recognizer == nil {
		if policy == OCRRequired {
			return nil, model.NewError(model.PartialRedactionFailure, "units", "text recognition required but not configured", nil)
		}
		return nil, nil
	}

	// The engine sees the decoded pixels, so word boxes share their
	// coordinate space with caller regions.
	var buf bytes.Buffer
	if err := png.Encode(&buf, d.img); err != nil {
		return nil, model.NewError(model.PartialRedactionFailure, "units", "image could not be prepared for recognition", err)
	}
	words, err := d.a.recognizer.Recognize(ctx, buf.Bytes())
	switch {
	case errors.Is(err, ocr.ErrOCRNotEnabled):
		if policy == OCRRequired {
			return nil, model.NewError(model.PartialRedactionFailure, "units", "text recognition required but not available", err)
		}
		d.logger.Debug("OCR not available, using caller regions only")
		return nil, nil
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, model.NewError(model.PartialRedactionFailure, "units", "text recognition failed", err)
	}

	origin := d.img.Bounds().Min
	for i := range words {
		words[i].Rect.X += float64(origin.X)
		words[i].Rect.Y += float64(origin.Y)
	}
	d.logger.Debug("OCR complete", "words", len(words))
	return words, nil
}

// lines groups words whose vertical extents overlap by at least half the
// smaller height, then orders each line left to right.
func lines(words []ocr.Word) [][]ocr.Word {
	sorted := make([]ocr.Word, 0, len(words))
	for _, w := range words {
		if w.Text != "" {
			sorted = append(sorted, w)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Rect.Y+sorted[i].Rect.Height/2 < sorted[j].Rect.Y+sorted[j].Rect.Height/2
	})

	var out [][]ocr.Word
	var extents []model.Rect
	for _, w := range sorted {
		placed := false
		for i, ext := range extents {
			overlap := min(ext.Top(), w.Rect.Top()) - max(ext.Y, w.Rect.Y)
			if overlap >= min(ext.Height, w.Rect.Height)/2 {
				out[i] = append(out[i], w)
				extents[i] = ext.Union(w.Rect)
				placed = true
				break
			}
		}
		if !placed {
			out = append(out, []ocr.Word{w})
			extents = append(extents, w.Rect)
		}
	}
	for _, line := range out {
		sort.SliceStable(line, func(i, j int) bool { return line[i].Rect.X < line[j].Rect.X })
	}
	return out
}

// lineText joins a line's words with single spaces. Each rune's box is its
// word's box; a separating space gets the gap between its neighbours.
func lineText(line []ocr.Word) (string, []model.Rect) {
	var b strings.Builder
	var boxes []model.Rect
	for i, w := range line {
		if i > 0 {
			prev := line[i-1].Rect
			top := min(prev.Y, w.Rect.Y)
			bottom := max(prev.Top(), w.Rect.Top())
			b.WriteByte(' ')
			boxes = append(boxes, model.NewRect(prev.Right(), top, max(w.Rect.X-prev.Right(), 0), bottom-top))
		}
		b.WriteString(w.Text)
		for range utf8.RuneCountInString(w.Text) {
			boxes = append(boxes, w.Rect)
		}
	}
	return b.String(), boxes
}

// Apply fills forced rectangles, then neutralizes the planned spans.
func (d *Document) Apply(ctx context.Context, plan *model.Plan, rep *model.Report) error {
	for _, r := range d.opts.ForcedRects {
		d.fillForced(r, rep)
	}
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

func (d *Document) fillForced(r model.Rect, rep *model.Report) {
	px, ok := d.fill(r)
	if !ok {
		d.logger.Warn("forced rectangle lies outside the image",
			"location", model.Location{Rect: &r}.String())
		return
	}
	d.modified = true
	rep.Neutralized = append(rep.Neutralized, model.Neutralized{
		Location:   model.Location{Rect: &px},
		Provenance: model.Primary,
		RuleID:     ForcedRuleID,
		Confidence: 1,
		Strategy:   model.StrategyFill,
	})
}

// Serialize re-encodes the image from its pixels in the original format.
// No metadata, trailing data or auxiliary images are carried over. An
// untouched image returns its input bytes.
func (d *Document) Serialize() ([]byte, error) {
	if !d.modified {
		return d.data, nil
	}
	out, err := d.encode()
	if err != nil {
		return nil, model.NewError(model.PartialRedactionFailure, "serialize", "image could not be encoded", err)
	}
	return out, nil
}

// pixelTarget fills the pixels under each span.
type pixelTarget struct{}

func (pixelTarget) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	for _, s := range spans {
		r, ok := u.SpanRect(s.Start, s.End)
		if !ok {
			rep.Unresolve(u, s, u.Location, "span has no pixel area")
			continue
		}
		px, ok := d.fill(r)
		if !ok {
			rep.Unresolve(u, s, u.Location, "region lies outside the image")
			continue
		}
		loc := u.Location
		loc.Rect = &px
		rep.Neutralize(u, s, model.StrategyFill, loc)
	}
}

// strippedTarget covers values that re-encoding leaves behind.
type strippedTarget struct {
	strategy model.Strategy
}

func (t strippedTarget) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	for _, s := range spans {
		rep.Neutralize(u, s, t.strategy, u.Location)
	}
}
