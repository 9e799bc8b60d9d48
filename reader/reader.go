package reader

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"

	"github.com/tsawler/redactor/core"
	"github.com/tsawler/redactor/pages"
)

// PDFVersion represents a PDF version
type PDFVersion struct {
	Major int
	Minor int
}

// String returns the version as a string (e.g., "1.7")
func (v PDFVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Reader gives random access to the objects of an in-memory PDF file.
// Objects returned by the Reader are cached; mutating a returned
// dictionary mutates the document as seen by later lookups.
type Reader struct {
	data      []byte
	xrefTable *core.XRefTable
	trailer   core.Dict
	version   PDFVersion
	revisions int
	repaired  bool

	objCache map[int]core.Object
	objStms  map[int]*core.ObjectStream
	loading  map[int]bool
	scanned  map[int]int64
	defs     []core.ObjectDef
	maxNum   int
	pageTree *pages.PageTree
	budget   *core.Budget
}

// Option configures a Reader.
type Option func(*Reader)

// WithBudget bounds the decoded size of every stream the reader parses,
// cross-reference and object streams included.
func WithBudget(b *core.Budget) Option {
	return func(r *Reader) { r.budget = b }
}

// Ensure Reader implements pages.ObjectResolver
var _ pages.ObjectResolver = (*Reader)(nil)

var versionPattern = regexp.MustCompile(`%PDF-(\d+)\.(\d+)`)

// NewReader parses the header and cross-reference data of a PDF held in
// memory. Files whose xref data is unusable are repaired by scanning for
// object definitions.
func NewReader(data []byte, opts ...Option) (*Reader, error) {
	r := &Reader{
		data:     data,
		objCache: make(map[int]core.Object),
		objStms:  make(map[int]*core.ObjectStream),
		loading:  make(map[int]bool),
	}
	for _, opt := range opts {
		opt(r)
	}

	version, err := r.parseHeader()
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	r.version = version

	if err := r.loadXRef(); err != nil {
		return nil, fmt.Errorf("failed to load xref: %w", err)
	}
	if _, err := r.Catalog(); err != nil {
		if r.repaired {
			return nil, err
		}
		if rerr := r.rebuild(); rerr != nil {
			return nil, err
		}
		if _, err := r.Catalog(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Open reads a PDF file and returns a Reader
func Open(filename string, opts ...Option) (*Reader, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return NewReader(data, opts...)
}

// parseHeader parses the PDF header (%PDF-x.y). Some producers put junk
// before the header, so the first kilobyte is searched.
func (r *Reader) parseHeader() (PDFVersion, error) {
	head := r.data
	if len(head) > 1024 {
		head = head[:1024]
	}
	m := versionPattern.FindSubmatch(head)
	if m == nil {
		return PDFVersion{}, fmt.Errorf("missing %%PDF- header")
	}
	major, _ := strconv.Atoi(string(m[1]))
	minor, _ := strconv.Atoi(string(m[2]))
	return PDFVersion{Major: major, Minor: minor}, nil
}

// loadXRef loads every cross-reference section and merges them so that the
// newest revision of each object wins.
func (r *Reader) loadXRef() error {
	xp := core.NewXRefParser(r.data)
	xp.SetBudget(r.budget)
	tables, err := xp.ParseAllXRefs()
	if err != nil || len(tables) == 0 {
		return r.rebuild()
	}
	table := core.MergeXRefTables(tables...)
	if !table.Trailer.Has("Root") {
		return r.rebuild()
	}
	r.setTable(table)
	r.revisions = len(tables)
	return nil
}

func (r *Reader) rebuild() error {
	table, err := core.RebuildXRef(r.data)
	if err != nil {
		return err
	}
	r.setTable(table)
	r.repaired = true
	r.revisions = bytes.Count(r.data, []byte("%%EOF"))
	if r.revisions == 0 {
		r.revisions = 1
	}
	r.objCache = make(map[int]core.Object)
	r.objStms = make(map[int]*core.ObjectStream)
	r.pageTree = nil
	return nil
}

func (r *Reader) setTable(table *core.XRefTable) {
	r.xrefTable = table
	r.trailer = table.Trailer
	if r.trailer == nil {
		r.trailer = core.Dict{}
	}
	r.maxNum = 0
	for num := range table.Entries {
		if num > r.maxNum {
			r.maxNum = num
		}
	}
	if size, ok := r.trailer.GetInt("Size"); ok && int(size)-1 > r.maxNum {
		r.maxNum = int(size) - 1
	}
}

// Budget returns the budget streams are decoded within, or nil.
func (r *Reader) Budget() *core.Budget {
	return r.budget
}

// Version returns the PDF version
func (r *Reader) Version() PDFVersion {
	return r.version
}

// Trailer returns the trailer dictionary
func (r *Reader) Trailer() core.Dict {
	return r.trailer
}

// Data returns the raw file bytes.
func (r *Reader) Data() []byte {
	return r.data
}

// Encrypted reports whether the trailer names an encryption dictionary.
func (r *Reader) Encrypted() bool {
	return r.trailer.Has("Encrypt")
}

// Revisions returns the number of cross-reference sections in the /Prev
// chain, which is the number of saved revisions of the file.
func (r *Reader) Revisions() int {
	return r.revisions
}

// Repaired reports whether the xref table was rebuilt from a raw scan.
func (r *Reader) Repaired() bool {
	return r.repaired
}

// XRefTable returns the merged cross-reference table
func (r *Reader) XRefTable() *core.XRefTable {
	return r.xrefTable
}

// GetObject loads an object by its number
// Uses caching to avoid re-reading objects
func (r *Reader) GetObject(objNum int) (core.Object, error) {
	if obj, ok := r.objCache[objNum]; ok {
		return obj, nil
	}
	if r.loading[objNum] {
		return nil, fmt.Errorf("object %d references itself while loading", objNum)
	}
	r.loading[objNum] = true
	defer delete(r.loading, objNum)

	obj, err := r.loadObject(objNum)
	if err != nil {
		// The xref entry may be stale; fall back to the last definition
		// found in the file body.
		offset, ok := r.scanIndex()[objNum]
		if !ok {
			return nil, err
		}
		ind, serr := r.ParseAt(offset)
		if serr != nil || ind.Ref.Number != objNum {
			return nil, err
		}
		obj = ind.Object
	}

	r.objCache[objNum] = obj
	return obj, nil
}

func (r *Reader) loadObject(objNum int) (core.Object, error) {
	entry, ok := r.xrefTable.Get(objNum)
	if !ok {
		return nil, fmt.Errorf("object %d not found in xref table", objNum)
	}

	switch entry.Type {
	case core.EntryInUse:
		ind, err := r.ParseAt(entry.Offset)
		if err != nil {
			return nil, fmt.Errorf("failed to parse object %d: %w", objNum, err)
		}
		if ind.Ref.Number != objNum {
			return nil, fmt.Errorf("object number mismatch: expected %d, got %d", objNum, ind.Ref.Number)
		}
		return ind.Object, nil

	case core.EntryCompressed:
		stm, err := r.objectStream(entry.Stream)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", objNum, err)
		}
		obj, num, err := stm.GetObjectByIndex(entry.Index)
		if err == nil && num == objNum {
			return obj, nil
		}
		obj, _, err = stm.GetObjectByNumber(objNum)
		if err != nil {
			return nil, err
		}
		return obj, nil

	default:
		return nil, fmt.Errorf("object %d is not in use", objNum)
	}
}

func (r *Reader) objectStream(num int) (*core.ObjectStream, error) {
	if stm, ok := r.objStms[num]; ok {
		return stm, nil
	}
	obj, err := r.GetObject(num)
	if err != nil {
		return nil, fmt.Errorf("failed to load object stream %d: %w", num, err)
	}
	stream, ok := obj.(*core.Stream)
	if !ok {
		return nil, fmt.Errorf("object stream %d is a %T", num, obj)
	}
	stm, err := core.NewObjectStream(stream)
	if err != nil {
		return nil, err
	}
	r.objStms[num] = stm
	return stm, nil
}

// ParseAt parses the indirect object defined at a byte offset.
func (r *Reader) ParseAt(offset int64) (*core.IndirectObject, error) {
	if offset < 0 || offset >= int64(len(r.data)) {
		return nil, fmt.Errorf("offset %d outside file", offset)
	}
	p := core.NewBytesParser(r.data[offset:])
	p.SetReferenceResolver(r)
	p.SetBudget(r.budget)
	return p.ParseIndirectObject()
}

// Definitions returns every "N G obj" definition in the file body in file
// order, including ones superseded by later revisions.
func (r *Reader) Definitions() []core.ObjectDef {
	if r.defs == nil {
		r.defs = core.ScanObjects(r.data)
	}
	return r.defs
}

func (r *Reader) scanIndex() map[int]int64 {
	if r.scanned == nil {
		r.scanned = make(map[int]int64)
		for _, d := range r.Definitions() {
			r.scanned[d.Ref.Number] = d.Offset
		}
	}
	return r.scanned
}

// IsCurrent reports whether a scanned definition is the one the merged
// cross-reference table points at.
func (r *Reader) IsCurrent(def core.ObjectDef) bool {
	entry, ok := r.xrefTable.Get(def.Ref.Number)
	if !ok || entry.Type != core.EntryInUse {
		return false
	}
	return entry.Offset == def.Offset
}

// ObjectNumbers returns the numbers of all in-use objects, sorted.
func (r *Reader) ObjectNumbers() []int {
	var nums []int
	for num, e := range r.xrefTable.Entries {
		if e.InUse() && num > 0 {
			nums = append(nums, num)
		}
	}
	for num := range r.objCache {
		if _, ok := r.xrefTable.Entries[num]; !ok {
			nums = append(nums, num)
		}
	}
	sort.Ints(nums)
	return nums
}

// SetObject replaces or adds an object. Later lookups return obj.
func (r *Reader) SetObject(objNum int, obj core.Object) {
	r.objCache[objNum] = obj
	if objNum > r.maxNum {
		r.maxNum = objNum
	}
}

// NewObjectNumber reserves an unused object number.
func (r *Reader) NewObjectNumber() int {
	r.maxNum++
	return r.maxNum
}

// ResolveReference resolves an indirect reference
func (r *Reader) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	return r.GetObject(ref.Number)
}

// Resolve resolves an object if it's an indirect reference, otherwise returns it as-is
// Implements pages.ObjectResolver interface
func (r *Reader) Resolve(obj core.Object) (core.Object, error) {
	if ref, ok := obj.(core.IndirectRef); ok {
		return r.ResolveReference(ref)
	}
	return obj, nil
}

// ResolveDict resolves obj and returns it as a dictionary, or nil when it
// is missing or of another type.
func (r *Reader) ResolveDict(obj core.Object) core.Dict {
	if obj == nil {
		return nil
	}
	resolved, err := r.Resolve(obj)
	if err != nil {
		return nil
	}
	d, _ := resolved.(core.Dict)
	return d
}

// Catalog returns the document catalog (root object)
func (r *Reader) Catalog() (core.Dict, error) {
	rootRef := r.trailer.Get("Root")
	if rootRef == nil {
		return nil, fmt.Errorf("trailer missing /Root entry")
	}
	obj, err := r.Resolve(rootRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog: %w", err)
	}
	catalog, ok := obj.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("catalog is not a dictionary: %T", obj)
	}
	return catalog, nil
}

// Info returns the document info dictionary, or nil if there is none.
func (r *Reader) Info() (core.Dict, error) {
	infoRef := r.trailer.Get("Info")
	if infoRef == nil {
		return nil, nil // Info is optional
	}
	obj, err := r.Resolve(infoRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve info: %w", err)
	}
	info, ok := obj.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("info is not a dictionary: %T", obj)
	}
	return info, nil
}

// PageCount returns the number of pages in the PDF
func (r *Reader) PageCount() (int, error) {
	if err := r.ensurePageTree(); err != nil {
		return 0, err
	}
	return r.pageTree.Count()
}

// GetPage returns the page at the given index (0-based)
func (r *Reader) GetPage(index int) (*pages.Page, error) {
	if err := r.ensurePageTree(); err != nil {
		return nil, err
	}
	return r.pageTree.GetPage(index)
}

// Pages returns all pages in document order.
func (r *Reader) Pages() ([]*pages.Page, error) {
	if err := r.ensurePageTree(); err != nil {
		return nil, err
	}
	return r.pageTree.Pages()
}

// ensurePageTree loads the page tree if not already loaded
func (r *Reader) ensurePageTree() error {
	if r.pageTree != nil {
		return nil
	}
	catalog, err := r.Catalog()
	if err != nil {
		return fmt.Errorf("failed to get catalog: %w", err)
	}
	pagesRef := catalog.Get("Pages")
	if pagesRef == nil {
		return fmt.Errorf("catalog missing /Pages entry")
	}
	pagesDict := r.ResolveDict(pagesRef)
	if pagesDict == nil {
		return fmt.Errorf("pages is not a dictionary")
	}
	r.pageTree = pages.NewPageTree(pagesDict, r)
	return nil
}
