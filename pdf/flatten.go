package pdf

import (
	"golang.org/x/crypto/blake2b"

	"github.com/tsawler/redactor/core"
)

// reachable walks the object graph from the trailer's /Root and /Info in
// breadth-first order. Dropped objects, thumbnails and stream lengths are
// not followed.
func (d *Document) reachable() ([]int, map[int]bool) {
	var order []int
	seen := make(map[int]bool)
	var queue []int

	push := func(obj core.Object) {
		ref, ok := obj.(core.IndirectRef)
		if !ok || seen[ref.Number] || d.dropped[ref.Number] {
			return
		}
		seen[ref.Number] = true
		queue = append(queue, ref.Number)
	}
	trailer := d.r.Trailer()
	push(trailer.Get("Root"))
	push(trailer.Get("Info"))

	for len(queue) > 0 {
		num := queue[0]
		queue = queue[1:]
		obj, err := d.r.GetObject(num)
		if err != nil {
			// Dangling: written as null wherever it is referenced.
			delete(seen, num)
			continue
		}
		order = append(order, num)
		walkRefs(obj, push, 0)
	}
	return order, seen
}

func walkRefs(obj core.Object, fn func(core.Object), depth int) {
	if depth > 64 {
		return
	}
	switch v := obj.(type) {
	case core.IndirectRef:
		fn(v)
	case core.Array:
		for _, el := range v {
			walkRefs(el, fn, depth+1)
		}
	case core.Dict:
		for _, k := range v.Keys() {
			if k == "Thumb" {
				continue
			}
			walkRefs(v[k], fn, depth+1)
		}
	case *core.Stream:
		for _, k := range v.Dict.Keys() {
			if k == "Length" {
				continue
			}
			walkRefs(v.Dict[k], fn, depth+1)
		}
	}
}

// flatten writes the reachable objects, renumbered densely in traversal
// order, as a single revision with one classic cross-reference table.
func (d *Document) flatten() []byte {
	order, _ := d.reachable()
	renum := make(map[int]int, len(order))
	for i, n := range order {
		renum[n] = i + 1
	}
	mapRef := func(ref core.IndirectRef) (core.IndirectRef, bool) {
		n, ok := renum[ref.Number]
		return core.IndirectRef{Number: n}, ok
	}

	w := core.NewFileWriter(d.r.Version().String())
	h, _ := blake2b.New(16, nil)
	for i, n := range order {
		obj, _ := d.r.GetObject(n)
		h.Write(core.AppendObject(nil, obj, mapRef))
		w.WriteObject(i+1, obj, mapRef)
	}

	id := core.String(h.Sum(nil))
	trailer := core.Dict{"ID": core.Array{id, id}}
	src := d.r.Trailer()
	for _, key := range []string{"Root", "Info"} {
		if ref, ok := src.Get(key).(core.IndirectRef); ok {
			if _, live := renum[ref.Number]; live {
				trailer.Set(key, ref)
			}
		}
	}
	return w.Finish(trailer, mapRef)
}
