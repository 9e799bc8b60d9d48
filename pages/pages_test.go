package pages

import (
	"fmt"
	"testing"

	"github.com/tsawler/redactor/core"
	"github.com/tsawler/redactor/model"
)

type mapResolver map[int]core.Object

func (m mapResolver) Resolve(obj core.Object) (core.Object, error) {
	if ref, ok := obj.(core.IndirectRef); ok {
		return m.ResolveReference(ref)
	}
	return obj, nil
}

func (m mapResolver) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	obj, ok := m[ref.Number]
	if !ok {
		return nil, fmt.Errorf("object %d not found", ref.Number)
	}
	return obj, nil
}

func ref(n int) core.IndirectRef { return core.IndirectRef{Number: n} }

func TestPagesInheritAttributes(t *testing.T) {
	res := core.Dict{"Font": core.Dict{}}
	objs := mapResolver{
		2: core.Dict{"Type": core.Name("Pages"), "Kids": core.Array{ref(3), ref(4)},
			"MediaBox": core.Array{core.Int(0), core.Int(0), core.Int(595), core.Int(842)},
			"Resources": res, "Rotate": core.Int(-90)},
		3: core.Dict{"Type": core.Name("Page"), "Contents": ref(10)},
		4: core.Dict{"Type": core.Name("Pages"), "Kids": core.Array{ref(5)}, "Rotate": core.Int(180)},
		5: core.Dict{"Type": core.Name("Page"), "MediaBox": core.Array{core.Int(0), core.Int(0), core.Real(100.5), core.Int(50)},
			"Contents": core.Array{ref(11), ref(12)}},
		10: &core.Stream{Dict: core.Dict{}, Data: []byte("q Q")},
		11: &core.Stream{Dict: core.Dict{}, Data: []byte("BT")},
		12: &core.Stream{Dict: core.Dict{}, Data: []byte("ET")},
	}

	tree := NewPageTree(objs[2].(core.Dict), objs)
	all, err := tree.Pages()
	if err != nil {
		t.Fatalf("Pages failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(all))
	}

	first, second := all[0], all[1]
	if first.Ref.Number != 3 || second.Ref.Number != 5 || second.Index != 1 {
		t.Errorf("refs = %v %v", first.Ref, second.Ref)
	}
	if got := first.MediaBox(); got != model.NewRect(0, 0, 595, 842) {
		t.Errorf("inherited MediaBox = %+v", got)
	}
	if got := second.MediaBox(); got.Width != 100.5 {
		t.Errorf("own MediaBox = %+v", got)
	}
	if first.Rotate() != 270 || second.Rotate() != 180 {
		t.Errorf("rotations = %d, %d", first.Rotate(), second.Rotate())
	}
	if r, _ := second.Resources(); r == nil {
		t.Error("resources should be inherited through two levels")
	}

	contents, err := second.Contents()
	if err != nil || len(contents) != 2 {
		t.Fatalf("Contents = %v, %v", contents, err)
	}
	if contents[1].Ref.Number != 12 || string(contents[1].Stream.Data) != "ET" {
		t.Errorf("second content = %+v", contents[1])
	}
	if single, _ := first.Contents(); len(single) != 1 || single[0].Ref.Number != 10 {
		t.Errorf("single content = %+v", single)
	}
}

func TestPagesDetectsCycle(t *testing.T) {
	objs := mapResolver{
		2: core.Dict{"Type": core.Name("Pages"), "Kids": core.Array{ref(3)}},
		3: core.Dict{"Type": core.Name("Pages"), "Kids": core.Array{ref(3)}},
	}
	if _, err := NewPageTree(objs[2].(core.Dict), objs).Pages(); err == nil {
		t.Error("expected a cycle error")
	}
}

func TestGetPageAndDefaults(t *testing.T) {
	objs := mapResolver{
		2: core.Dict{"Type": core.Name("Pages"), "Kids": core.Array{ref(3)}},
		3: core.Dict{"Type": core.Name("Page")},
	}
	tree := NewPageTree(objs[2].(core.Dict), objs)

	n, err := tree.Count()
	if err != nil || n != 1 {
		t.Fatalf("Count = %d, %v", n, err)
	}
	p, err := tree.GetPage(0)
	if err != nil {
		t.Fatal(err)
	}
	if p.MediaBox() != model.NewRect(0, 0, 612, 792) {
		t.Errorf("default MediaBox = %+v", p.MediaBox())
	}
	if p.CropBox() != p.MediaBox() {
		t.Error("CropBox should default to MediaBox")
	}
	if c, err := p.Contents(); err != nil || c != nil {
		t.Errorf("empty page contents = %v, %v", c, err)
	}
	if _, err := tree.GetPage(1); err == nil {
		t.Error("expected out of range error")
	}
}
