package pages

import (
	"fmt"

	"github.com/tsawler/redactor/core"
	"github.com/tsawler/redactor/model"
)

// ObjectResolver interface for resolving indirect references
type ObjectResolver interface {
	Resolve(obj core.Object) (core.Object, error)
	ResolveReference(ref core.IndirectRef) (core.Object, error)
}

// inheritable lists the page attributes a page takes from its ancestors
// when it does not define them itself.
var inheritable = []string{"Resources", "MediaBox", "CropBox", "Rotate"}

// maxDepth bounds page tree recursion.
const maxDepth = 64

// PageTree flattens a document's page tree into page order.
type PageTree struct {
	root     core.Dict
	resolver ObjectResolver
	pages    []*Page
}

// NewPageTree creates a tree rooted at the catalog's /Pages dictionary.
func NewPageTree(root core.Dict, resolver ObjectResolver) *PageTree {
	return &PageTree{root: root, resolver: resolver}
}

// Count returns the number of reachable pages. The /Count entry is not
// trusted.
func (t *PageTree) Count() (int, error) {
	pages, err := t.Pages()
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}

// GetPage returns the page at the given index (0-based)
func (t *PageTree) GetPage(index int) (*Page, error) {
	pages, err := t.Pages()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(pages) {
		return nil, fmt.Errorf("page index %d out of range [0, %d)", index, len(pages))
	}
	return pages[index], nil
}

// Pages returns all pages in document order.
func (t *PageTree) Pages() ([]*Page, error) {
	if t.pages != nil {
		return t.pages, nil
	}
	pages := []*Page{}
	visited := make(map[int]bool)
	if err := t.walk(t.root, core.IndirectRef{}, core.Dict{}, visited, 0, &pages); err != nil {
		return nil, fmt.Errorf("failed to traverse page tree: %w", err)
	}
	t.pages = pages
	return pages, nil
}

func (t *PageTree) walk(node core.Dict, ref core.IndirectRef, inherited core.Dict, visited map[int]bool, depth int, out *[]*Page) error {
	if depth > maxDepth {
		return fmt.Errorf("page tree deeper than %d levels", maxDepth)
	}

	here := inherited.Clone()
	for _, key := range inheritable {
		if v, ok := node[key]; ok {
			here[key] = v
		}
	}

	typ, _ := node.GetName("Type")
	_, hasKids := node["Kids"]
	if typ == "Page" || (typ == "" && !hasKids) {
		*out = append(*out, &Page{
			Index:     len(*out),
			Ref:       ref,
			Dict:      node,
			inherited: here,
			resolver:  t.resolver,
		})
		return nil
	}

	kidsObj, err := t.resolver.Resolve(node.Get("Kids"))
	if err != nil {
		return fmt.Errorf("failed to resolve /Kids: %w", err)
	}
	kids, ok := kidsObj.(core.Array)
	if !ok {
		return fmt.Errorf("invalid /Kids type: %T", kidsObj)
	}

	for i, kid := range kids {
		kidRef, isRef := kid.(core.IndirectRef)
		if isRef {
			if visited[kidRef.Number] {
				return fmt.Errorf("page tree cycle at object %d", kidRef.Number)
			}
			visited[kidRef.Number] = true
		}
		resolved, err := t.resolver.Resolve(kid)
		if err != nil {
			return fmt.Errorf("failed to resolve kid %d: %w", i, err)
		}
		kidDict, ok := resolved.(core.Dict)
		if !ok {
			continue
		}
		if err := t.walk(kidDict, kidRef, here, visited, depth+1, out); err != nil {
			return err
		}
	}
	return nil
}

// Page represents a single PDF page
type Page struct {
	Index int
	Ref   core.IndirectRef // zero when the page dictionary is direct
	Dict  core.Dict

	inherited core.Dict
	resolver  ObjectResolver
}

// Content is one content stream of a page together with the object that
// holds it.
type Content struct {
	Ref    core.IndirectRef
	Stream *core.Stream
}

// Attr returns an attribute from the page or its nearest ancestor.
func (p *Page) Attr(key string) core.Object {
	if v, ok := p.Dict[key]; ok {
		return v
	}
	return p.inherited[key]
}

// MediaBox returns the page media box. Letter size is assumed when the
// box is missing or malformed.
func (p *Page) MediaBox() model.Rect {
	if r, ok := p.box("MediaBox"); ok {
		return r
	}
	return model.NewRect(0, 0, 612, 792)
}

// CropBox returns the visible area, defaulting to the media box.
func (p *Page) CropBox() model.Rect {
	if r, ok := p.box("CropBox"); ok {
		return r
	}
	return p.MediaBox()
}

func (p *Page) box(name string) (model.Rect, bool) {
	obj, err := p.resolver.Resolve(p.Attr(name))
	if err != nil {
		return model.Rect{}, false
	}
	arr, ok := obj.(core.Array)
	if !ok || len(arr) != 4 {
		return model.Rect{}, false
	}
	var v [4]float64
	for i, el := range arr {
		f, ok := core.Number(el)
		if !ok {
			return model.Rect{}, false
		}
		v[i] = f
	}
	return model.RectFromPoints(model.Point{X: v[0], Y: v[1]}, model.Point{X: v[2], Y: v[3]}), true
}

// Resources returns the page resources dictionary, or nil when the page
// has none.
func (p *Page) Resources() (core.Dict, error) {
	obj := p.Attr("Resources")
	if obj == nil {
		return nil, nil
	}
	resolved, err := p.resolver.Resolve(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Resources: %w", err)
	}
	d, _ := resolved.(core.Dict)
	return d, nil
}

// Contents returns the page content streams in order. Missing or
// unresolvable entries are skipped.
func (p *Page) Contents() ([]Content, error) {
	obj := p.Dict.Get("Contents")
	if obj == nil {
		return nil, nil
	}

	var refs []core.Object
	resolved, err := p.resolver.Resolve(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Contents: %w", err)
	}
	switch v := resolved.(type) {
	case *core.Stream:
		refs = []core.Object{obj}
	case core.Array:
		refs = v
	default:
		return nil, fmt.Errorf("invalid Contents type: %T", resolved)
	}

	var out []Content
	for _, el := range refs {
		s, err := p.resolver.Resolve(el)
		if err != nil {
			continue
		}
		stream, ok := s.(*core.Stream)
		if !ok {
			continue
		}
		ref, _ := el.(core.IndirectRef)
		out = append(out, Content{Ref: ref, Stream: stream})
	}
	return out, nil
}

// Rotate returns the page rotation normalized to 0, 90, 180 or 270.
func (p *Page) Rotate() int {
	n, _ := core.Number(p.Attr("Rotate"))
	r := int(n) % 360
	if r < 0 {
		r += 360
	}
	return r - r%90
}
