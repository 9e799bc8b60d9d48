package pdf

import (
	"fmt"
	"strings"

	"github.com/tsawler/redactor/core"
	"github.com/tsawler/redactor/font"
	"github.com/tsawler/redactor/model"
)

// actionKeys are the action entries that hold text: link targets, scripts
// and launched or referenced file names.
var actionKeys = []string{"URI", "JS", "F"}

// fieldKeys are the form field entries that hold text.
var fieldKeys = []string{"T", "TU", "TM", "V", "DV", "Opt"}

// structKeys are the structure element entries that hold alternate text.
var structKeys = []string{"Alt", "ActualText", "E", "T"}

// maxStructDepth bounds structure tree recursion; tagged documents nest
// deeper than name trees.
const maxStructDepth = 256

// Actions

// actionUnits emits the text of an action and the actions chained after it
// through /Next.
func (d *Document) actionUnits(base string, entry core.Object, loc model.Location, t target, depth int) {
	if entry == nil || depth > maxTreeDepth {
		return
	}
	if arr, ok := d.resolve(entry).(core.Array); ok {
		for i, el := range arr {
			d.actionUnits(fmt.Sprintf("%s/%d", base, i), el, loc, t, depth+1)
		}
		return
	}
	act := d.r.ResolveDict(entry)
	if act == nil {
		return
	}
	for _, key := range actionKeys {
		text := d.valueText(act.Get(key))
		if text == "" {
			continue
		}
		prov := model.Annotation
		if key == "URI" {
			prov = model.Hyperlink
		}
		l := loc
		l.Field = key
		d.add(model.ExtractedUnit{ID: base + "/" + key, Text: text, Provenance: prov, Location: l}, t)
	}
	d.actionUnits(base+"/Next", act.Get("Next"), loc, t, depth+1)
}

// additionalActionUnits emits every action of an /AA dictionary.
func (d *Document) additionalActionUnits(base string, entry core.Object, loc model.Location, t target) {
	aa := d.r.ResolveDict(entry)
	for _, key := range aa.Keys() {
		d.actionUnits(base+"/"+key, aa.Get(key), loc, t, 0)
	}
}

// valueText decodes a text string, a text stream, a file specification or
// an array of those.
func (d *Document) valueText(obj core.Object) string {
	switch v := d.resolve(obj).(type) {
	case core.String:
		return font.DecodeTextString([]byte(v))
	case *core.Stream:
		data, err := v.Decode()
		if err == nil && isText(data) {
			return string(data)
		}
	case core.Dict:
		for _, key := range []string{"UF", "F"} {
			if s, ok := d.resolve(v.Get(key)).(core.String); ok {
				return font.DecodeTextString([]byte(s))
			}
		}
	case core.Array:
		var parts []string
		for _, el := range v {
			if _, nested := el.(core.Array); nested {
				// Choice options are [export display] pairs.
				if t := d.valueText(el); t != "" {
					parts = append(parts, t)
				}
				continue
			}
			if s, ok := d.resolve(el).(core.String); ok {
				parts = append(parts, font.DecodeTextString([]byte(s)))
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// catalogKey removes one entry of the catalog, or of a dictionary the
// catalog holds directly.
type catalogKey struct {
	dict core.Dict
	key  string
}

func (c catalogKey) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	c.dict.Delete(c.key)
	for _, s := range spans {
		rep.Neutralize(u, s, model.StrategyDrop, u.Location)
	}
}

// documentActionUnits covers the actions run when the document opens or
// changes state, and the document-level scripts.
func (d *Document) documentActionUnits() {
	loc := model.Location{Part: "Catalog", Field: "OpenAction"}
	d.actionUnits("open", d.catalog.Get("OpenAction"), loc, catalogKey{dict: d.catalog, key: "OpenAction"}, 0)
	loc.Field = "AA"
	d.additionalActionUnits("aa", d.catalog.Get("AA"), loc, catalogKey{dict: d.catalog, key: "AA"})

	names := d.r.ResolveDict(d.catalog.Get("Names"))
	root := d.r.ResolveDict(names.Get("JavaScript"))
	if root == nil {
		return
	}
	drop := catalogKey{dict: names, key: "JavaScript"}
	n := 0
	d.nameTreeValues(root, 0, make(map[int]bool), func(key, value core.Object) {
		base := fmt.Sprintf("js%d", n)
		n++
		l := model.Location{Part: "JavaScript", Object: objectNumber(value)}
		if s, ok := d.resolve(key).(core.String); ok {
			k := l
			k.Field = "Name"
			d.add(model.ExtractedUnit{ID: base + "/Name", Text: font.DecodeTextString([]byte(s)), Provenance: model.Annotation, Location: k}, drop)
		}
		d.actionUnits(base, value, l, drop, 0)
	})
}

// nameTreeValues calls fn for every key and value of a name tree.
func (d *Document) nameTreeValues(node core.Dict, depth int, visited map[int]bool, fn func(key, value core.Object)) {
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
				d.nameTreeValues(child, depth+1, visited, fn)
			}
		}
	}
	arr, _ := d.resolve(node.Get("Names")).(core.Array)
	for i := 0; i+1 < len(arr); i += 2 {
		fn(arr[i], arr[i+1])
	}
}

// Outlines

// outlineItem blanks a bookmark's title or removes its action.
type outlineItem struct {
	item core.Dict
	key  string
}

func (o outlineItem) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	strategy := model.StrategyDrop
	if o.key == "Title" {
		// Viewers require a title on every item.
		o.item.Set("Title", core.String(""))
		strategy = model.StrategyDelete
	} else {
		o.item.Delete(o.key)
	}
	for _, s := range spans {
		rep.Neutralize(u, s, strategy, u.Location)
	}
}

func (d *Document) outlineUnits() {
	root := d.r.ResolveDict(d.catalog.Get("Outlines"))
	if root == nil {
		return
	}
	visited := make(map[int]bool)
	n := 0
	var walk func(entry core.Object, depth int)
	walk = func(entry core.Object, depth int) {
		for entry != nil && depth <= maxTreeDepth {
			num := objectNumber(entry)
			if num > 0 {
				if visited[num] {
					return
				}
				visited[num] = true
			}
			item := d.r.ResolveDict(entry)
			if item == nil {
				return
			}
			base := fmt.Sprintf("o%d", n)
			n++
			loc := model.Location{Part: "Outlines", Object: num}
			if title, ok := d.textOf(item, "Title"); ok && title != "" {
				l := loc
				l.Field = "Title"
				d.add(model.ExtractedUnit{ID: base + "/Title", Text: title, Provenance: model.Structural, Location: l},
					outlineItem{item: item, key: "Title"})
			}
			d.actionUnits(base+"/A", item.Get("A"), loc, outlineItem{item: item, key: "A"}, 0)
			walk(item.Get("First"), depth+1)
			entry = item.Get("Next")
		}
	}
	walk(root.Get("First"), 0)
}

// Interactive form fields

// formField removes a field value, or renames the field when its name
// matched. Appearances showing a removed value are dropped and regenerated
// by the viewer.
type formField struct {
	form  core.Dict
	field core.Dict
	key   string
	index int
}

func (f formField) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	strategy := model.StrategyDelete
	switch f.key {
	case "T":
		// Other fields and scripts address this one by name.
		f.field.Set("T", core.String(fmt.Sprintf("field%d", f.index)))
		strategy = model.StrategyRewrite
	case "V", "DV", "Opt":
		f.field.Delete(f.key)
		d.dropAppearances(f.field, 0)
		f.form.Set("NeedAppearances", core.Bool(true))
	default:
		f.field.Delete(f.key)
	}
	for _, s := range spans {
		rep.Neutralize(u, s, strategy, u.Location)
	}
}

func (d *Document) dropAppearances(field core.Dict, depth int) {
	if depth > maxTreeDepth {
		return
	}
	field.Delete("AP")
	kids, _ := d.resolve(field.Get("Kids")).(core.Array)
	for _, kid := range kids {
		if child := d.r.ResolveDict(kid); child != nil {
			d.dropAppearances(child, depth+1)
		}
	}
}

func (d *Document) formUnits() {
	form := d.r.ResolveDict(d.catalog.Get("AcroForm"))
	if form == nil {
		return
	}
	visited := make(map[int]bool)
	n := 0
	var walk func(arr core.Array, depth int)
	walk = func(arr core.Array, depth int) {
		if depth > maxTreeDepth {
			return
		}
		for _, entry := range arr {
			num := objectNumber(entry)
			if num > 0 {
				if visited[num] {
					continue
				}
				visited[num] = true
			}
			field := d.r.ResolveDict(entry)
			if field == nil {
				continue
			}
			index := n
			n++
			loc := model.Location{Part: "AcroForm", Object: num}
			for _, key := range fieldKeys {
				text := d.valueText(field.Get(key))
				if text == "" {
					continue
				}
				l := loc
				l.Field = key
				d.add(model.ExtractedUnit{ID: fmt.Sprintf("f%d/%s", index, key), Text: text, Provenance: model.Field, Location: l},
					formField{form: form, field: field, key: key, index: index})
			}
			d.actionUnits(fmt.Sprintf("f%d/A", index), field.Get("A"), loc, catalogKey{dict: field, key: "A"}, 0)
			d.additionalActionUnits(fmt.Sprintf("f%d/AA", index), field.Get("AA"), loc, catalogKey{dict: field, key: "AA"})
			kids, _ := d.resolve(field.Get("Kids")).(core.Array)
			walk(kids, depth+1)
		}
	}
	fields, _ := d.resolve(form.Get("Fields")).(core.Array)
	walk(fields, 0)
	if xfa := form.Get("XFA"); xfa != nil {
		d.xfaUnits(form, xfa)
	}
}

// xfaUnits covers the XML form data some forms carry next to the field
// tree. The whole XFA entry is removed on a match.
func (d *Document) xfaUnits(form core.Dict, xfa core.Object) {
	var texts []string
	switch v := d.resolve(xfa).(type) {
	case *core.Stream:
		if data, err := v.Decode(); err == nil {
			texts = append(texts, string(data))
		}
	case core.Array:
		for i := 1; i < len(v); i += 2 {
			if s, ok := d.resolve(v[i]).(*core.Stream); ok {
				if data, err := s.Decode(); err == nil {
					texts = append(texts, string(data))
				}
			}
		}
	}
	text := strings.Join(texts, "\n")
	if text == "" {
		return
	}
	d.add(model.ExtractedUnit{
		ID:         "xfa",
		Text:       text,
		Provenance: model.Field,
		Location:   model.Location{Part: "AcroForm", Object: objectNumber(xfa), Field: "XFA"},
	}, catalogKey{dict: form, key: "XFA"})
}

// Logical structure

// structAttr removes one alternate text entry of a structure element.
type structAttr struct {
	elem core.Dict
	key  string
}

func (a structAttr) neutralize(d *Document, u model.ExtractedUnit, spans []model.SensitiveSpan, rep *model.Report) {
	a.elem.Delete(a.key)
	for _, s := range spans {
		rep.Neutralize(u, s, model.StrategyDelete, u.Location)
	}
}

func (d *Document) structUnits() {
	root := d.r.ResolveDict(d.catalog.Get("StructTreeRoot"))
	if root == nil {
		return
	}
	visited := make(map[int]bool)
	n := 0
	var walk func(obj core.Object, depth int)
	walk = func(obj core.Object, depth int) {
		if obj == nil || depth > maxStructDepth {
			return
		}
		num := objectNumber(obj)
		if num > 0 {
			if visited[num] {
				return
			}
			visited[num] = true
		}
		switch v := d.resolve(obj).(type) {
		case core.Array:
			for _, el := range v {
				walk(el, depth+1)
			}
		case core.Dict:
			if typ, _ := v.GetName("Type"); typ == "MCR" || typ == "OBJR" {
				return
			}
			index := n
			n++
			for _, key := range structKeys {
				text, ok := d.textOf(v, key)
				if !ok || text == "" {
					continue
				}
				d.add(model.ExtractedUnit{
					ID:         fmt.Sprintf("s%d/%s", index, key),
					Text:       text,
					Provenance: model.Hidden,
					Location:   model.Location{Part: "StructTree", Object: num, Field: key},
				}, structAttr{elem: v, key: key})
			}
			walk(v.Get("K"), depth+1)
		}
	}
	walk(root.Get("K"), 0)
}
