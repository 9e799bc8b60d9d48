package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tsawler/redactor/contentstream"
	"github.com/tsawler/redactor/core"
	"github.com/tsawler/redactor/font"
	"github.com/tsawler/redactor/internal/xmp"
	"github.com/tsawler/redactor/model"
)

// annotationKeys are the annotation entries that hold free text.
var annotationKeys = []string{"Contents", "T", "Subj", "RC", "V", "TU"}

// fileSpecKeys are the file specification entries that name or describe
// an attachment.
var fileSpecKeys = []string{"UF", "F", "Desc"}

// maxTreeDepth bounds name tree recursion.
const maxTreeDepth = 32

func (d *Document) resolve(obj core.Object) core.Object {
	res, err := d.r.Resolve(obj)
	if err != nil {
		return nil
	}
	return res
}

// textOf decodes a text string entry, or returns false when the entry is
// missing or not a string.
func (d *Document) textOf(dict core.Dict, key string) (string, bool) {
	s, ok := d.resolve(dict.Get(key)).(core.String)
	if !ok {
		return "", false
	}
	return font.DecodeTextString([]byte(s)), true
}

// Document information

type infoField struct{ key string }

func (d *Document) infoUnits() {
	if d.info == nil {
		return
	}
	for _, key := range d.info.Keys() {
		text, ok := d.textOf(d.info, key)
		if !ok {
			continue
		}
		d.add(model.ExtractedUnit{
			ID:         "info/" + key,
			Text:       text,
			Provenance: model.Metadata,
			Location:   model.Location{Part: "Info", Field: key},
		}, infoField{key: key})
	}
}

func (f infoField) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	d.info.Delete(f.key)
	for _, s := range spans {
		rep.Neutralize(u, s, model.StrategyDelete, u.Location)
	}
}

// XMP metadata

type xmpPacket struct{ obj int }

func (d *Document) xmpUnits() {
	entry := d.catalog.Get("Metadata")
	s, ok := d.resolve(entry).(*core.Stream)
	if !ok {
		return
	}
	data, err := s.Decode()
	if err != nil {
		d.logger.Warn("XMP metadata not decodable", "error", err)
		return
	}
	obj := objectNumber(entry)
	d.add(model.ExtractedUnit{
		ID:         "xmp",
		Text:       xmp.Text(data),
		Provenance: model.Metadata,
		Location:   model.Location{Part: "Metadata", Object: obj},
	}, xmpPacket{obj: obj})
}

func (x xmpPacket) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	d.catalog.Delete("Metadata")
	if x.obj > 0 {
		d.dropped[x.obj] = true
	}
	for _, s := range spans {
		rep.Neutralize(u, s, model.StrategyDrop, u.Location)
	}
}

// Annotations

type annotation struct {
	index int
	ref   int // object number, 0 when direct
	dict  core.Dict
	fs    int // file specification object number
	ef    int // embedded file stream object number
	drop  bool
}

type annotationDrop struct {
	page  *page
	annot *annotation
}

func (d *Document) annotationUnits(pg *page) {
	arr, ok := d.resolve(pg.p.Dict.Get("Annots")).(core.Array)
	if !ok {
		return
	}
	for i, entry := range arr {
		dict := d.r.ResolveDict(entry)
		if dict == nil {
			continue
		}
		a := &annotation{index: i, ref: objectNumber(entry), dict: dict}
		pg.annots = append(pg.annots, a)
		drop := annotationDrop{page: pg, annot: a}
		base := fmt.Sprintf("p%d/a%d", pg.num, i)

		for _, key := range annotationKeys {
			text, ok := d.textOf(dict, key)
			if !ok || text == "" {
				continue
			}
			d.add(model.ExtractedUnit{
				ID:         base + "/" + key,
				Text:       text,
				Provenance: model.Annotation,
				Location:   model.Location{Page: pg.num, Object: a.ref, Field: key},
			}, drop)
		}

		if ap := d.r.ResolveDict(dict.Get("AP")); ap != nil {
			if s, ok := d.resolve(ap.Get("N")).(*core.Stream); ok {
				if data, err := s.Decode(); err == nil {
					if text := streamText(data); text != "" {
						d.add(model.ExtractedUnit{
							ID:         base + "/AP",
							Text:       text,
							Provenance: model.Annotation,
							Location:   model.Location{Page: pg.num, Object: a.ref, Field: "AP"},
						}, drop)
					}
				}
			}
		}

		loc := model.Location{Page: pg.num, Object: a.ref}
		d.actionUnits(base+"/A", dict.Get("A"), loc, drop, 0)
		d.additionalActionUnits(base+"/AA", dict.Get("AA"), loc, drop)

		if sub, _ := dict.GetName("Subtype"); sub == "FileAttachment" {
			fsEntry := dict.Get("FS")
			a.fs = objectNumber(fsEntry)
			a.ef = d.embeddedFile(fsEntry)
			d.fileSpecUnits(base+"/FS", fsEntry, model.Location{Page: pg.num, Object: a.ref},
				attachmentDrop{fs: a.fs, ef: a.ef, annot: drop})
		}
	}
}

func (t annotationDrop) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	d.dropAnnotation(t.page, t.annot)
	for _, s := range spans {
		rep.Neutralize(u, s, model.StrategyDrop, u.Location)
	}
}

func (d *Document) dropAnnotation(pg *page, a *annotation) {
	a.drop = true
	if a.ref > 0 {
		d.dropped[a.ref] = true
	}
	// Popups and replies point back at their parent.
	for changed := true; changed; {
		changed = false
		for _, other := range pg.annots {
			if other.drop {
				continue
			}
			for _, key := range []string{"Parent", "IRT"} {
				if n := objectNumber(other.dict.Get(key)); n > 0 && d.dropped[n] {
					other.drop = true
					if other.ref > 0 {
						d.dropped[other.ref] = true
					}
					changed = true
					break
				}
			}
		}
	}
}

// commitAnnots rebuilds /Annots without the dropped annotations.
func (d *Document) commitAnnots(pg *page) {
	dropped := make(map[int]bool)
	for _, a := range pg.annots {
		if a.drop {
			dropped[a.index] = true
		}
	}
	if len(dropped) == 0 {
		return
	}
	arr, _ := d.resolve(pg.p.Dict.Get("Annots")).(core.Array)
	keep := core.Array{}
	for i, entry := range arr {
		if !dropped[i] {
			keep = append(keep, entry)
		}
	}
	pg.p.Dict.Set("Annots", keep)
}

// Embedded files

// nameNode is a node of the /EmbeddedFiles name tree with a /Names array.
type nameNode struct {
	dict    core.Dict
	entries []*nameEntry
}

type nameEntry struct {
	index int // position of the key in /Names
	fs    int
	ef    int
	drop  bool
}

func (n *nameNode) commit() {
	dropped := make(map[int]bool)
	for _, e := range n.entries {
		if e.drop {
			dropped[e.index] = true
		}
	}
	if len(dropped) == 0 {
		return
	}
	arr, _ := n.dict.Get("Names").(core.Array)
	keep := core.Array{}
	for i := 0; i+1 < len(arr); i += 2 {
		if !dropped[i] {
			keep = append(keep, arr[i], arr[i+1])
		}
	}
	n.dict.Set("Names", keep)
	n.dict.Delete("Limits")
}

// attachmentDrop removes an attachment everywhere it is referenced: its
// name tree entry and every file attachment annotation showing it.
type attachmentDrop struct {
	fs, ef int
	entry  *nameEntry
	annot  annotationDrop
}

func (d *Document) attachmentUnits() {
	names := d.r.ResolveDict(d.catalog.Get("Names"))
	root := d.r.ResolveDict(names.Get("EmbeddedFiles"))
	if root == nil {
		return
	}
	visited := make(map[int]bool)
	d.walkNameTree(root, 0, visited)
}

func (d *Document) walkNameTree(node core.Dict, depth int, visited map[int]bool) {
	if depth > maxTreeDepth {
		return
	}
	if kids, ok := d.resolve(node.Get("Kids")).(core.Array); ok {
		for _, kid := range kids {
			if n := objectNumber(kid); n > 0 {
				if visited[n] {
					continue
				}
				visited[n] = true
			}
			if child := d.r.ResolveDict(kid); child != nil {
				d.walkNameTree(child, depth+1, visited)
			}
		}
	}

	arr, ok := d.resolve(node.Get("Names")).(core.Array)
	if !ok {
		return
	}
	// commit rewrites the resolved array on the node itself.
	node.Set("Names", arr)
	nn := &nameNode{dict: node}
	d.names = append(d.names, nn)

	for i := 0; i+1 < len(arr); i += 2 {
		spec := arr[i+1]
		e := &nameEntry{index: i, fs: objectNumber(spec), ef: d.embeddedFile(spec)}
		nn.entries = append(nn.entries, e)

		id := fmt.Sprintf("ef%d/%d", len(d.names)-1, i/2)
		drop := attachmentDrop{fs: e.fs, ef: e.ef, entry: e}
		loc := model.Location{Part: "EmbeddedFiles", Object: e.fs}
		if key, ok := d.resolve(arr[i]).(core.String); ok {
			k := loc
			k.Field = "Name"
			d.add(model.ExtractedUnit{
				ID:         id + "/Name",
				Text:       font.DecodeTextString([]byte(key)),
				Provenance: model.Attachment,
				Location:   k,
			}, drop)
		}
		d.fileSpecUnits(id, spec, loc, drop)
	}
}

// embeddedFile returns the object number of a file specification's
// embedded stream.
func (d *Document) embeddedFile(spec core.Object) int {
	fs := d.r.ResolveDict(spec)
	ef := d.r.ResolveDict(fs.Get("EF"))
	for _, key := range []string{"UF", "F"} {
		if n := objectNumber(ef.Get(key)); n > 0 {
			return n
		}
	}
	return 0
}

// fileSpecUnits emits the name, description and, when it is text, the
// content of an attached file.
func (d *Document) fileSpecUnits(base string, spec core.Object, loc model.Location, t target) {
	fs := d.r.ResolveDict(spec)
	if fs == nil {
		if s, ok := d.resolve(spec).(core.String); ok {
			l := loc
			l.Field = "F"
			d.add(model.ExtractedUnit{ID: base + "/F", Text: font.DecodeTextString([]byte(s)), Provenance: model.Attachment, Location: l}, t)
		}
		return
	}
	for _, key := range fileSpecKeys {
		text, ok := d.textOf(fs, key)
		if !ok || text == "" {
			continue
		}
		l := loc
		l.Field = key
		d.add(model.ExtractedUnit{ID: base + "/" + key, Text: text, Provenance: model.Attachment, Location: l}, t)
	}

	ef := d.r.ResolveDict(fs.Get("EF"))
	for _, key := range []string{"UF", "F"} {
		s, ok := d.resolve(ef.Get(key)).(*core.Stream)
		if !ok {
			continue
		}
		data, err := s.Decode()
		if err != nil || len(data) == 0 || !isText(data) {
			break
		}
		l := loc
		l.Field = "EF"
		d.add(model.ExtractedUnit{ID: base + "/EF", Text: string(data), Provenance: model.Attachment, Location: l}, t)
		break
	}
}

func isText(data []byte) bool {
	return utf8.Valid(data) && !bytes.ContainsRune(data, 0)
}

func (t attachmentDrop) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	if t.entry != nil {
		t.entry.drop = true
	}
	if t.annot.annot != nil {
		d.dropAnnotation(t.annot.page, t.annot.annot)
	}
	for _, n := range []int{t.fs, t.ef} {
		if n > 0 {
			d.dropped[n] = true
		}
	}
	same := func(fs, ef int) bool {
		return (t.fs > 0 && fs == t.fs) || (t.ef > 0 && ef == t.ef)
	}
	for _, n := range d.names {
		for _, e := range n.entries {
			if same(e.fs, e.ef) {
				e.drop = true
			}
		}
	}
	for _, pg := range d.pages {
		for _, a := range pg.annots {
			if !a.drop && same(a.fs, a.ef) {
				d.dropAnnotation(pg, a)
			}
		}
	}
	for _, s := range spans {
		rep.Neutralize(u, s, model.StrategyDrop, u.Location)
	}
}

// Prior revisions and unreachable objects

type historic struct{}

func (historic) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	// Serialization writes reachable current objects only.
	for _, s := range spans {
		rep.Neutralize(u, s, model.StrategyFlatten, u.Location)
	}
}

func (d *Document) historyUnits() {
	for _, def := range d.r.Definitions() {
		if d.r.IsCurrent(def) {
			continue
		}
		ind, err := d.r.ParseAt(def.Offset)
		if err != nil || ind.Ref.Number != def.Ref.Number {
			continue
		}
		if text := d.objectText(def.Ref.Number, ind.Object); text != "" {
			d.add(model.ExtractedUnit{
				ID:         fmt.Sprintf("h%d@%d", def.Ref.Number, def.Offset),
				Text:       text,
				Provenance: model.History,
				Location:   model.Location{Part: "revision", Object: def.Ref.Number},
			}, historic{})
		}
	}

	_, reach := d.reachable()
	for _, num := range d.r.ObjectNumbers() {
		if reach[num] {
			continue
		}
		obj, err := d.r.GetObject(num)
		if err != nil {
			continue
		}
		if text := d.objectText(num, obj); text != "" {
			d.add(model.ExtractedUnit{
				ID:         fmt.Sprintf("u%d", num),
				Text:       text,
				Provenance: model.History,
				Location:   model.Location{Part: "unreachable", Object: num},
			}, historic{})
		}
	}
}

// objectText collects the text strings of one object. Object streams
// contribute only the objects the cross-reference table no longer reads
// from them.
func (d *Document) objectText(num int, obj core.Object) string {
	s, ok := obj.(*core.Stream)
	if !ok {
		return collectText(obj)
	}
	switch typ, _ := s.Dict.GetName("Type"); typ {
	case "XRef":
		return ""
	case "ObjStm":
		stm, err := core.NewObjectStream(s)
		if err != nil {
			return ""
		}
		var parts []string
		for i := 0; i < stm.N(); i++ {
			o, n, err := stm.GetObjectByIndex(i)
			if err != nil {
				continue
			}
			if e, ok := d.r.XRefTable().Get(n); ok && e.Type == core.EntryCompressed && e.Stream == num {
				continue
			}
			if t := collectText(o); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, "\n")
	}
	return collectText(obj)
}

// collectText gathers the strings of an object without following
// references. Stream payloads are read as content streams when they parse
// as one, and as plain text otherwise.
func collectText(obj core.Object) string {
	var parts []string
	var walk func(o core.Object, depth int)
	walk = func(o core.Object, depth int) {
		if depth > maxTreeDepth {
			return
		}
		switch v := o.(type) {
		case core.String:
			if t := strings.TrimSpace(font.DecodeTextString([]byte(v))); t != "" {
				parts = append(parts, t)
			}
		case core.Array:
			for _, el := range v {
				walk(el, depth+1)
			}
		case core.Dict:
			for _, k := range v.Keys() {
				walk(v[k], depth+1)
			}
		case *core.Stream:
			walk(v.Dict, depth+1)
			if data, err := v.Decode(); err == nil {
				if t := streamText(data); t != "" {
					parts = append(parts, t)
				}
			}
		}
	}
	walk(obj, 0)
	return strings.Join(parts, "\n")
}

// streamText extracts the shown strings of content stream data, one line
// per operation, or returns data itself when it is plain text.
func streamText(data []byte) string {
	if !looksLikeMarkup(data) {
		if ops, err := contentstream.Parse(data); err == nil {
			var lines []string
			for _, op := range ops {
				var b strings.Builder
				operandText(&b, op.Operands)
				if b.Len() > 0 {
					lines = append(lines, b.String())
				}
			}
			if len(lines) > 0 {
				return strings.Join(lines, "\n")
			}
		}
	}
	if isText(data) {
		return string(data)
	}
	return ""
}

func operandText(b *strings.Builder, operands []core.Object) {
	for _, o := range operands {
		switch v := o.(type) {
		case core.String:
			b.WriteString(font.DecodeTextString([]byte(v)))
		case core.Array:
			operandText(b, v)
		case core.Dict:
			keys := v.Keys()
			vals := make([]core.Object, 0, len(keys))
			for _, k := range keys {
				vals = append(vals, v[k])
			}
			operandText(b, vals)
		}
	}
}

func looksLikeMarkup(data []byte) bool {
	t := bytes.TrimSpace(data)
	return bytes.HasPrefix(t, []byte("<?")) || bytes.HasPrefix(t, []byte("<x:")) || bytes.HasPrefix(t, []byte("<rdf"))
}
