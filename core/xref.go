package core

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// EntryType classifies a cross-reference entry.
type EntryType int

const (
	EntryFree       EntryType = iota // free or deleted object
	EntryInUse                       // uncompressed object at a byte offset
	EntryCompressed                  // object stored inside an object stream
)

// XRefEntry represents a single cross-reference entry.
type XRefEntry struct {
	Type       EntryType
	Offset     int64 // byte offset for EntryInUse
	Generation int
	Stream     int // containing object stream number for EntryCompressed
	Index      int // index within the containing object stream
}

// InUse reports whether the entry points at a live object.
func (e *XRefEntry) InUse() bool {
	return e != nil && e.Type != EntryFree
}

// XRefTable represents one cross-reference section and its trailer.
type XRefTable struct {
	Entries map[int]*XRefEntry
	Trailer Dict
	Offset  int64 // where the section starts in the file
	Stream  bool  // true for a cross-reference stream
}

// NewXRefTable creates a new empty XRef table
func NewXRefTable() *XRefTable {
	return &XRefTable{
		Entries: make(map[int]*XRefEntry),
		Trailer: make(Dict),
	}
}

// Get retrieves an XRef entry by object number
func (x *XRefTable) Get(objNum int) (*XRefEntry, bool) {
	entry, ok := x.Entries[objNum]
	return entry, ok
}

// Set adds or updates an XRef entry
func (x *XRefTable) Set(objNum int, entry *XRefEntry) {
	x.Entries[objNum] = entry
}

// Size returns the number of entries in the table
func (x *XRefTable) Size() int {
	return len(x.Entries)
}

// XRefParser parses cross-reference sections of a file held in memory.
type XRefParser struct {
	data   []byte
	budget *Budget
}

// SetBudget bounds the decoded size of cross-reference streams.
func (x *XRefParser) SetBudget(b *Budget) {
	x.budget = b
}

// NewXRefParser creates a new XRef parser
func NewXRefParser(data []byte) *XRefParser {
	return &XRefParser{data: data}
}

// FindXRef returns the offset recorded after the last "startxref" keyword.
func (x *XRefParser) FindXRef() (int64, error) {
	tail := x.data
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}
	idx := bytes.LastIndex(tail, []byte("startxref"))
	if idx < 0 {
		return 0, fmt.Errorf("startxref not found")
	}
	rest := bytes.TrimLeft(tail[idx+len("startxref"):], " \t\r\n\f\x00")
	end := 0
	for end < len(rest) && isDigit(rest[end]) {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("invalid startxref format")
	}
	offset, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid xref offset: %w", err)
	}
	if offset < 0 || offset >= int64(len(x.data)) {
		return 0, fmt.Errorf("xref offset %d outside file", offset)
	}
	return offset, nil
}

// ParseXRef parses the cross-reference section at offset. Both classic
// tables and cross-reference streams are accepted.
func (x *XRefParser) ParseXRef(offset int64) (*XRefTable, error) {
	if offset < 0 || offset >= int64(len(x.data)) {
		return nil, fmt.Errorf("xref offset %d outside file", offset)
	}
	pos := skipSpace(x.data, int(offset))
	if bytes.HasPrefix(x.data[pos:], []byte("xref")) {
		table, err := x.parseTable(pos)
		if err != nil {
			return nil, err
		}
		table.Offset = offset
		return table, nil
	}
	table, err := x.parseStream(pos)
	if err != nil {
		return nil, err
	}
	table.Offset = offset
	return table, nil
}

// parseTable parses a classic "xref" section followed by its trailer.
func (x *XRefParser) parseTable(pos int) (*XRefTable, error) {
	pos += len("xref")
	table := NewXRefTable()

	for {
		pos = skipSpace(x.data, pos)
		if pos >= len(x.data) {
			return nil, fmt.Errorf("xref table missing trailer")
		}
		if bytes.HasPrefix(x.data[pos:], []byte("trailer")) {
			pos += len("trailer")
			break
		}

		first, next, ok := readInt(x.data, pos)
		if !ok {
			return nil, fmt.Errorf("invalid subsection header at %d", pos)
		}
		count, next, ok := readInt(x.data, skipSpace(x.data, next))
		if !ok {
			return nil, fmt.Errorf("invalid subsection count at %d", pos)
		}
		pos = next

		for i := 0; i < count; i++ {
			entry, next, err := parseTableEntry(x.data, pos)
			if err != nil {
				return nil, fmt.Errorf("object %d: %w", first+i, err)
			}
			pos = next
			table.Set(first+i, entry)
		}
	}

	parser := NewParser(bytes.NewReader(x.data[pos:]))
	obj, err := parser.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("failed to parse trailer dictionary: %w", err)
	}
	dict, ok := obj.(Dict)
	if !ok {
		return nil, fmt.Errorf("trailer is not a dictionary, got %T", obj)
	}
	table.Trailer = dict
	return table, nil
}

// parseTableEntry reads "offset generation n|f" starting at pos. Entries
// are nominally 20 bytes wide but producers get the padding wrong, so the
// three fields are read as tokens.
func parseTableEntry(data []byte, pos int) (*XRefEntry, int, error) {
	off, pos, ok := readInt(data, skipSpace(data, pos))
	if !ok {
		return nil, pos, fmt.Errorf("invalid xref offset")
	}
	gen, pos, ok := readInt(data, skipSpace(data, pos))
	if !ok {
		return nil, pos, fmt.Errorf("invalid xref generation")
	}
	pos = skipSpace(data, pos)
	if pos >= len(data) {
		return nil, pos, fmt.Errorf("truncated xref entry")
	}
	entry := &XRefEntry{Offset: int64(off), Generation: gen}
	switch data[pos] {
	case 'n':
		entry.Type = EntryInUse
	case 'f':
		entry.Type = EntryFree
	default:
		return nil, pos, fmt.Errorf("invalid in-use flag %q", data[pos])
	}
	return entry, pos + 1, nil
}

// parseStream parses a cross-reference stream object at pos.
func (x *XRefParser) parseStream(pos int) (*XRefTable, error) {
	parser := NewParser(bytes.NewReader(x.data[pos:]))
	parser.SetBudget(x.budget)
	ind, err := parser.ParseIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("no xref table or stream at %d: %w", pos, err)
	}
	stream, ok := ind.Object.(*Stream)
	if !ok {
		return nil, fmt.Errorf("object at %d is not an xref stream", pos)
	}
	if t, _ := stream.Dict.GetName("Type"); t != "XRef" {
		return nil, fmt.Errorf("object at %d has type %q, expected XRef", pos, t)
	}
	return DecodeXRefStream(stream)
}

// DecodeXRefStream decodes the entries of a cross-reference stream. The
// stream dictionary doubles as the trailer.
func DecodeXRefStream(stream *Stream) (*XRefTable, error) {
	w, ok := stream.Dict.GetArray("W")
	if !ok || len(w) < 3 {
		return nil, fmt.Errorf("xref stream missing /W")
	}
	widths := make([]int, 3)
	rowLen := 0
	for i := 0; i < 3; i++ {
		n, ok := w.GetInt(i)
		if !ok || n < 0 || n > 8 {
			return nil, fmt.Errorf("invalid /W entry %v", w.Get(i))
		}
		widths[i] = int(n)
		rowLen += int(n)
	}
	if rowLen == 0 {
		return nil, fmt.Errorf("xref stream has zero-width rows")
	}

	size, _ := stream.Dict.GetInt("Size")
	var index []int
	if arr, ok := stream.Dict.GetArray("Index"); ok {
		for i := 0; i < len(arr); i++ {
			v, ok := arr.GetInt(i)
			if !ok {
				return nil, fmt.Errorf("invalid /Index entry")
			}
			index = append(index, int(v))
		}
		if len(index)%2 != 0 {
			return nil, fmt.Errorf("odd /Index length")
		}
	} else {
		index = []int{0, int(size)}
	}

	data, err := stream.Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode xref stream: %w", err)
	}

	table := NewXRefTable()
	table.Stream = true
	table.Trailer = stream.Dict

	row := 0
	for i := 0; i < len(index); i += 2 {
		first, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			start := row * rowLen
			if start+rowLen > len(data) {
				return table, nil
			}
			rec := data[start : start+rowLen]
			row++

			typ := 1
			if widths[0] > 0 {
				typ = int(beUint(rec[:widths[0]]))
			}
			f2 := beUint(rec[widths[0] : widths[0]+widths[1]])
			f3 := beUint(rec[widths[0]+widths[1]:])

			var entry *XRefEntry
			switch typ {
			case 0:
				entry = &XRefEntry{Type: EntryFree, Generation: int(f3)}
			case 1:
				entry = &XRefEntry{Type: EntryInUse, Offset: int64(f2), Generation: int(f3)}
			case 2:
				entry = &XRefEntry{Type: EntryCompressed, Stream: int(f2), Index: int(f3)}
			default:
				// Unknown types are references to the null object.
				continue
			}
			table.Set(first+j, entry)
		}
	}
	return table, nil
}

// ParseXRefFromEOF finds and parses the XRef table by scanning from EOF
func (x *XRefParser) ParseXRefFromEOF() (*XRefTable, error) {
	offset, err := x.FindXRef()
	if err != nil {
		return nil, fmt.Errorf("failed to find xref: %w", err)
	}
	return x.ParseXRef(offset)
}

// ParseAllXRefs parses the newest cross-reference section and every
// section reachable through /Prev and /XRefStm. Sections are returned
// oldest first so that MergeXRefTables lets later revisions win. A
// section visited twice ends the walk.
func (x *XRefParser) ParseAllXRefs() ([]*XRefTable, error) {
	offset, err := x.FindXRef()
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	var chain []*XRefTable

	for {
		if seen[offset] {
			break
		}
		seen[offset] = true

		table, err := x.ParseXRef(offset)
		if err != nil {
			if len(chain) == 0 {
				return nil, err
			}
			// A broken older revision does not invalidate the newer ones.
			break
		}

		// Hybrid files: the classic table's entries are supplemented by
		// a stream that lists compressed objects of the same revision.
		if stm, ok := table.Trailer.GetInt("XRefStm"); ok && !seen[int64(stm)] {
			seen[int64(stm)] = true
			if hidden, err := x.ParseXRef(int64(stm)); err == nil {
				for num, e := range hidden.Entries {
					if _, exists := table.Entries[num]; !exists || !table.Entries[num].InUse() {
						table.Set(num, e)
					}
				}
			}
		}

		chain = append(chain, table)

		prev, ok := table.Trailer.GetInt("Prev")
		if !ok {
			break
		}
		offset = int64(prev)
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// xrefStreamKeys describe the layout of a cross-reference stream and are
// not trailer entries.
var xrefStreamKeys = map[string]bool{
	"Type": true, "W": true, "Index": true, "Length": true,
	"Filter": true, "DecodeParms": true, "DL": true,
}

// MergeXRefTables merges the sections of incremental updates, oldest
// first. Later entries override earlier ones. Trailer entries are merged
// the same way, so an update trailer that omits /Info or /ID inherits it
// from the revision before.
func MergeXRefTables(tables ...*XRefTable) *XRefTable {
	merged := NewXRefTable()
	for _, table := range tables {
		for objNum, entry := range table.Entries {
			merged.Set(objNum, entry)
		}
		for key, v := range table.Trailer {
			if table.Stream && xrefStreamKeys[key] {
				continue
			}
			merged.Trailer[key] = v
		}
		merged.Offset = table.Offset
	}
	return merged
}

// ObjectDef is an "N G obj" header found by scanning raw file bytes.
type ObjectDef struct {
	Ref    IndirectRef
	Offset int64
}

var objHeader = regexp.MustCompile(`(?:^|[\s>\]\)])(\d{1,10})[ \t\r\n\f\x00]+(\d{1,5})[ \t\r\n\f\x00]+obj\b`)

// ScanObjects finds every object definition in data in file order,
// including definitions that no cross-reference section points at.
func ScanObjects(data []byte) []ObjectDef {
	var defs []ObjectDef
	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		num, err1 := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(data[m[4]:m[5]]))
		if err1 != nil || err2 != nil {
			continue
		}
		defs = append(defs, ObjectDef{Ref: IndirectRef{Number: num, Generation: gen}, Offset: int64(m[2])})
	}
	return defs
}

// RebuildXRef reconstructs a cross-reference table from a raw scan, for
// files whose xref data is missing or unusable. The last definition of
// each object wins, matching incremental-update semantics. The trailer is
// taken from the last "trailer" dictionary in the file, if any.
func RebuildXRef(data []byte) (*XRefTable, error) {
	defs := ScanObjects(data)
	if len(defs) == 0 {
		return nil, fmt.Errorf("no objects found")
	}
	table := NewXRefTable()
	for _, d := range defs {
		table.Set(d.Ref.Number, &XRefEntry{Type: EntryInUse, Offset: d.Offset, Generation: d.Ref.Generation})
	}

	if idx := bytes.LastIndex(data, []byte("trailer")); idx >= 0 {
		parser := NewParser(bytes.NewReader(data[idx+len("trailer"):]))
		if obj, err := parser.ParseObject(); err == nil {
			if dict, ok := obj.(Dict); ok {
				table.Trailer = dict
			}
		}
	}
	if !table.Trailer.Has("Root") {
		// Fall back to the last catalog definition.
		nums := make([]int, 0, len(table.Entries))
		for n := range table.Entries {
			nums = append(nums, n)
		}
		sort.Ints(nums)
		for _, n := range nums {
			e := table.Entries[n]
			parser := NewParser(bytes.NewReader(data[e.Offset:]))
			ind, err := parser.ParseIndirectObject()
			if err != nil {
				continue
			}
			if d, ok := ind.Object.(Dict); ok {
				if t, _ := d.GetName("Type"); t == "Catalog" {
					table.Trailer.Set("Root", ind.Ref)
				}
			}
		}
	}
	if !table.Trailer.Has("Root") {
		return nil, fmt.Errorf("no document catalog found")
	}
	return table, nil
}

func beUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func skipSpace(data []byte, pos int) int {
	for pos < len(data) {
		c := data[pos]
		if c == '%' {
			for pos < len(data) && data[pos] != '\n' && data[pos] != '\r' {
				pos++
			}
			continue
		}
		if !isWhitespace(c) {
			break
		}
		pos++
	}
	return pos
}

func readInt(data []byte, pos int) (int, int, bool) {
	start := pos
	for pos < len(data) && isDigit(data[pos]) {
		pos++
	}
	if pos == start {
		return 0, pos, false
	}
	v, err := strconv.Atoi(string(data[start:pos]))
	if err != nil {
		return 0, pos, false
	}
	return v, pos, true
}
