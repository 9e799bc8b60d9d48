package pdf

import (
	"bytes"
	"fmt"
	"math"

	"github.com/tsawler/redactor/contentstream"
	"github.com/tsawler/redactor/core"
	"github.com/tsawler/redactor/font"
	"github.com/tsawler/redactor/graphicsstate"
	"github.com/tsawler/redactor/model"
)

// maxFormDepth bounds nested form XObjects.
const maxFormDepth = 16

// content is one parsed content stream: the concatenated /Contents of a
// page, or a form XObject shared by every place that draws it.
type content struct {
	obj     int          // form object number, 0 for page content
	stream  *core.Stream // form stream, nil for page content
	ops     []contentstream.Operation
	removed map[int][]removal // op index -> glyphs to drop
	dirty   bool              // an inline property list was edited
}

// removal drops the bytes [start, end) of string element elem of a show
// operation and shifts what follows by kern (a TJ adjustment).
type removal struct {
	elem, start, end int
	kern             float64
}

func newContent(obj int, stream *core.Stream, data []byte) (*content, error) {
	ops, err := contentstream.Parse(data)
	if err != nil {
		return nil, err
	}
	return &content{obj: obj, stream: stream, ops: ops, removed: make(map[int][]removal)}, nil
}

func (c *content) remove(g *glyph) {
	for _, r := range c.removed[g.op] {
		if r.elem == g.elem && r.start == g.start {
			return
		}
	}
	c.removed[g.op] = append(c.removed[g.op], removal{elem: g.elem, start: g.start, end: g.end, kern: g.kern})
}

func (c *content) edited() bool {
	return len(c.removed) > 0 || c.dirty
}

// glyph is one shown character code with its geometry in default user
// space.
type glyph struct {
	content *content
	op      int
	elem    int // TJ array index, 0 for the other show operators
	start   int
	end     int

	text      string
	box       model.Rect
	origin    model.Point
	next      model.Point // origin of the following glyph
	dir       model.Point // unit baseline direction
	size      float64     // font size in user space
	kern      float64     // TJ adjustment that replaces the glyph's advance
	space     bool
	invisible bool
}

// placement is an image drawn on a page: the unit square mapped by ctm.
type placement struct {
	name   string
	ctm    model.Matrix
	stream *core.Stream
	inline bool
}

func (p placement) bounds() model.Rect {
	return p.ctm.TransformRect(model.NewRect(0, 0, 1, 1))
}

// interpreter walks the content of one page, collecting glyphs in drawing
// order and image placements.
type interpreter struct {
	doc    *Document
	page   int
	seqs   [][]*glyph // one sequence per content invocation
	images []placement
	active map[*core.Stream]bool
	marked int
}

func (d *Document) interpretPage(pg *page) error {
	in := &interpreter{doc: d, page: pg.num, active: make(map[*core.Stream]bool)}

	contents, err := pg.p.Contents()
	if err != nil {
		return err
	}
	var data bytes.Buffer
	for _, c := range contents {
		decoded, err := c.Stream.Decode()
		if err != nil {
			return fmt.Errorf("content stream %d: %w", c.Ref.Number, err)
		}
		data.Write(decoded)
		data.WriteByte('\n')
	}
	pg.content, err = newContent(0, nil, data.Bytes())
	if err != nil {
		return fmt.Errorf("page %d content: %w", pg.num, err)
	}

	res, err := pg.p.Resources()
	if err != nil {
		return err
	}
	in.exec(pg.content, graphicsstate.NewGraphicsState(), res, 0)

	pg.images = in.images
	for _, seq := range in.seqs {
		for _, glyphs := range splitRuns(seq) {
			pg.runs = append(pg.runs, newRun(fmt.Sprintf("p%d/r%d", pg.num, len(pg.runs)), pg.num, glyphs))
		}
	}
	return nil
}

func (in *interpreter) exec(c *content, gs *graphicsstate.GraphicsState, res core.Dict, depth int) {
	seq := len(in.seqs)
	in.seqs = append(in.seqs, nil)
	fonts := make(map[string]*font.Font)

	for i, op := range c.ops {
		if ok, _ := gs.Apply(op); ok {
			continue
		}
		switch op.Operator {
		case "Tj", "TJ", "'", "\"":
			if len(op.Operands) == 0 {
				continue
			}
			gs.BeforeShow(op)
			f := in.font(res, fonts, gs.Text.FontName)
			in.seqs[seq] = append(in.seqs[seq], in.show(c, i, op, gs, f)...)
		case "BI":
			in.images = append(in.images, placement{ctm: gs.CTM, inline: true})
		case "Do":
			in.do(op, gs, res, depth)
		case "BDC", "DP":
			in.properties(c, op, res)
		}
	}
}

// markedKeys are the marked-content property entries that carry
// replacement or alternate text.
var markedKeys = []string{"ActualText", "Alt", "E"}

// markedProperty removes one entry of a marked-content property list,
// either inline in the content or in the /Properties resources.
type markedProperty struct {
	content *content
	props   core.Dict
	key     string
	inline  bool
}

func (m markedProperty) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	m.props.Delete(m.key)
	if m.inline {
		m.content.dirty = true
	}
	for _, s := range spans {
		rep.Neutralize(u, s, model.StrategyDelete, u.Location)
	}
}

func (in *interpreter) properties(c *content, op contentstream.Operation, res core.Dict) {
	if len(op.Operands) < 2 {
		return
	}
	props, inline := op.Operands[1].(core.Dict)
	if !inline {
		name, ok := op.Operands[1].(core.Name)
		if !ok {
			return
		}
		r := in.doc.r
		if props = r.ResolveDict(r.ResolveDict(res.Get("Properties")).Get(string(name))); props == nil {
			return
		}
	}
	for _, key := range markedKeys {
		text, ok := in.doc.textOf(props, key)
		if !ok || text == "" {
			continue
		}
		in.doc.add(model.ExtractedUnit{
			ID:         fmt.Sprintf("p%d/m%d/%s", in.page, in.marked, key),
			Text:       text,
			Provenance: model.Hidden,
			Location:   model.Location{Page: in.page, Object: c.obj, Field: key},
		}, markedProperty{content: c, props: props, key: key, inline: inline})
	}
	in.marked++
}

func (in *interpreter) font(res core.Dict, cache map[string]*font.Font, name string) *font.Font {
	if f, ok := cache[name]; ok {
		return f
	}
	r := in.doc.r
	var f *font.Font
	entry := r.ResolveDict(res.Get("Font")).Get(name)
	if ref, ok := entry.(core.IndirectRef); ok {
		if f = in.doc.fonts[ref.Number]; f == nil {
			f = font.Load(r.ResolveDict(ref), r)
			in.doc.fonts[ref.Number] = f
		}
	} else {
		f = font.Load(r.ResolveDict(entry), r)
	}
	cache[name] = f
	return f
}

func (in *interpreter) show(c *content, i int, op contentstream.Operation, gs *graphicsstate.GraphicsState, f *font.Font) []*glyph {
	invisible := gs.Text.RenderingMode == graphicsstate.RenderInvisible || gs.Text.RenderingMode == 7
	var out []*glyph

	emit := func(elem int, s core.String) {
		pos := 0
		for _, g := range f.Decode([]byte(s)) {
			trm := gs.RenderingMatrix()
			tx := gs.GlyphAdvance(g.Width, g.Space)
			gl := &glyph{
				content:   c,
				op:        i,
				elem:      elem,
				start:     pos,
				end:       pos + len(g.Bytes),
				text:      g.Text,
				box:       gs.GlyphBox(g.Width),
				origin:    trm.Transform(model.Point{}),
				kern:      kernFor(gs, tx),
				space:     g.Space,
				invisible: invisible,
			}
			gl.dir, gl.size = axes(trm)
			gs.Advance(tx)
			gl.next = gs.RenderingMatrix().Transform(model.Point{})
			out = append(out, gl)
			pos = gl.end
		}
	}

	if op.Operator == "TJ" {
		arr, _ := op.Operands[0].(core.Array)
		for e, el := range arr {
			if s, ok := el.(core.String); ok {
				emit(e, s)
			} else if n, ok := core.Number(el); ok {
				gs.Advance(gs.KernAdvance(n))
			}
		}
		return out
	}
	if s, ok := op.Operands[len(op.Operands)-1].(core.String); ok {
		emit(0, s)
	}
	return out
}

func (in *interpreter) do(op contentstream.Operation, gs *graphicsstate.GraphicsState, res core.Dict, depth int) {
	if len(op.Operands) == 0 {
		return
	}
	name, ok := op.Operands[0].(core.Name)
	if !ok {
		return
	}
	r := in.doc.r
	entry := r.ResolveDict(res.Get("XObject")).Get(string(name))
	obj, err := r.Resolve(entry)
	if err != nil {
		return
	}
	stream, ok := obj.(*core.Stream)
	if !ok {
		return
	}

	switch sub, _ := stream.Dict.GetName("Subtype"); sub {
	case "Image":
		in.images = append(in.images, placement{name: string(name), ctm: gs.CTM, stream: stream})
	case "Form":
		if depth >= maxFormDepth || in.active[stream] {
			return
		}
		c := in.doc.form(entry, stream)
		if c == nil {
			return
		}
		base := gs.Depth()
		gs.Save()
		if m, ok := matrixOf(r.Resolve(stream.Dict.Get("Matrix"))); ok {
			gs.Transform(m)
		}
		formRes := r.ResolveDict(stream.Dict.Get("Resources"))
		if formRes == nil {
			formRes = res
		}
		in.active[stream] = true
		in.exec(c, gs, formRes, depth+1)
		delete(in.active, stream)
		for gs.Depth() > base {
			_ = gs.Restore()
		}
	}
}

// form returns the parsed content of a form XObject, shared across pages.
func (d *Document) form(entry core.Object, stream *core.Stream) *content {
	if c, ok := d.forms[stream]; ok {
		return c
	}
	var c *content
	if data, err := stream.Decode(); err == nil {
		ref, _ := entry.(core.IndirectRef)
		c, _ = newContent(ref.Number, stream, data)
	}
	if c == nil {
		d.logger.Warn("form XObject not readable", "object", objectNumber(entry))
	}
	d.forms[stream] = c
	return c
}

func objectNumber(obj core.Object) int {
	ref, _ := obj.(core.IndirectRef)
	return ref.Number
}

func matrixOf(obj core.Object, err error) (model.Matrix, bool) {
	arr, ok := obj.(core.Array)
	if err != nil || !ok || len(arr) != 6 {
		return model.Matrix{}, false
	}
	var m model.Matrix
	for i, el := range arr {
		f, ok := core.Number(el)
		if !ok {
			return model.Matrix{}, false
		}
		m[i] = f
	}
	return m, true
}

// kernFor converts a text-space advance into the TJ number that moves the
// text position by the same amount.
func kernFor(gs *graphicsstate.GraphicsState, tx float64) float64 {
	k := gs.Text.FontSize * gs.Scale()
	if k == 0 {
		return 0
	}
	return -tx * 1000 / k
}

// axes returns the baseline direction and the font size of a text
// rendering matrix.
func axes(trm model.Matrix) (model.Point, float64) {
	size := math.Hypot(trm[2], trm[3])
	l := math.Hypot(trm[0], trm[1])
	if l == 0 {
		return model.Point{X: 1}, size
	}
	return model.Point{X: trm[0] / l, Y: trm[1] / l}, size
}
