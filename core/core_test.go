package core

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func parseOne(t *testing.T, src string) Object {
	t.Helper()
	obj, err := NewParser(strings.NewReader(src)).ParseObject()
	if err != nil {
		t.Fatalf("ParseObject(%q) failed: %v", src, err)
	}
	return obj
}

func TestParseObjects(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"null", "null"},
		{"true", "true"},
		{"-12", "-12"},
		{"3.25", "3.25"},
		{"(a\\(b\\)c)", "a(b)c"},
		{"<414243>", "ABC"},
		{"/A#20B", "/A B"},
		{"[1 2 0 R /X]", "[1 2 0 R /X]"},
		{"<</B 2 /A 1>>", "<</A 1 /B 2>>"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := parseOne(t, tt.src).String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseIndirectStream(t *testing.T) {
	for _, eol := range []string{"\n", "\r\n", " \n"} {
		src := "7 0 obj\n<</Length 5>>\nstream" + eol + "hello\nendstream\nendobj\n"
		ind, err := NewParser(strings.NewReader(src)).ParseIndirectObject()
		if err != nil {
			t.Fatalf("eol %q: %v", eol, err)
		}
		s, ok := ind.Object.(*Stream)
		if !ok {
			t.Fatalf("eol %q: got %T", eol, ind.Object)
		}
		if string(s.Data) != "hello" {
			t.Errorf("eol %q: data = %q", eol, s.Data)
		}
		if ind.Ref.Number != 7 {
			t.Errorf("ref = %v", ind.Ref)
		}
	}
}

func TestBytesParserRepairsLength(t *testing.T) {
	tests := []struct {
		name string
		dict string
	}{
		{"too long", "<</Length 50>>"},
		{"too short", "<</Length 2>>"},
		{"missing", "<<>>"},
		{"unresolvable", "<</Length 9 0 R>>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "1 0 obj\n" + tt.dict + "\nstream\r\nBT (x) Tj ET\r\nendstream\nendobj\n2 0 obj 5 endobj"
			ind, err := NewBytesParser([]byte(src)).ParseIndirectObject()
			if err != nil {
				t.Fatalf("ParseIndirectObject failed: %v", err)
			}
			s := ind.Object.(*Stream)
			if string(s.Data) != "BT (x) Tj ET" {
				t.Errorf("data = %q", s.Data)
			}
			if n, _ := s.Dict.GetInt("Length"); int(n) != len(s.Data) {
				t.Errorf("Length = %d, want %d", n, len(s.Data))
			}
		})
	}
}

func TestParseIndirectMissingEndobj(t *testing.T) {
	ind, err := NewParser(strings.NewReader("3 0 obj (x)\n4 0 obj")).ParseIndirectObject()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ind.Object.(String) != "x" {
		t.Errorf("got %v", ind.Object)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	obj := Dict{
		"Type":  Name("Annot"),
		"T":     String("a (b) \\ c\n"),
		"Bin":   String([]byte{0, 1, 2, 0xff, 0xfe}),
		"Rect":  Array{Int(0), Real(1.5), Real(-0.25), Int(100)},
		"Ref":   IndirectRef{Number: 4},
		"Odd":   Name("A B#"),
		"Flag":  Bool(true),
		"Empty": Null{},
	}

	out := AppendObject(nil, obj, nil)
	back := parseOne(t, string(out))
	if back.String() != obj.String() {
		t.Errorf("round trip:\n got %s\nwant %s", back, obj)
	}
}

func TestWriterMapsReferences(t *testing.T) {
	mapRef := func(r IndirectRef) (IndirectRef, bool) {
		if r.Number == 9 {
			return IndirectRef{}, false
		}
		return IndirectRef{Number: r.Number + 100}, true
	}
	out := string(AppendObject(nil, Array{IndirectRef{Number: 1}, IndirectRef{Number: 9}}, mapRef))
	if out != "[101 0 R null]" {
		t.Errorf("got %q", out)
	}
}

func TestAppendReal(t *testing.T) {
	tests := map[float64]string{
		0:         "0",
		12:        "12",
		-3:        "-3",
		0.5:       "0.5",
		1.0 / 3.0: "0.33333",
		-0.000001: "0",
	}
	for in, want := range tests {
		if got := string(AppendReal(nil, in)); got != want {
			t.Errorf("AppendReal(%v) = %q, want %q", in, got, want)
		}
	}
}

// buildFile writes objects and a classic xref table the way FileWriter
// does, so tests exercise the reader side against known offsets.
func buildFile(t *testing.T, objs map[int]Object, trailer Dict) []byte {
	t.Helper()
	w := NewFileWriter("1.7")
	for n := 1; n <= len(objs); n++ {
		w.WriteObject(n, objs[n], nil)
	}
	return w.Finish(trailer, nil)
}

func TestFileWriterProducesParseableXRef(t *testing.T) {
	data := buildFile(t, map[int]Object{
		1: Dict{"Type": Name("Catalog"), "Pages": IndirectRef{Number: 2}},
		2: Dict{"Type": Name("Pages"), "Kids": Array{}, "Count": Int(0)},
	}, Dict{"Root": IndirectRef{Number: 1}})

	chain, err := NewXRefParser(data).ParseAllXRefs()
	if err != nil {
		t.Fatalf("ParseAllXRefs failed: %v", err)
	}
	if len(chain) != 1 {
		t.Fatalf("expected 1 section, got %d", len(chain))
	}
	table := chain[0]
	if size, _ := table.Trailer.GetInt("Size"); size != 3 {
		t.Errorf("Size = %d", size)
	}
	for n := 1; n <= 2; n++ {
		e, ok := table.Get(n)
		if !ok || !e.InUse() {
			t.Fatalf("object %d missing", n)
		}
		ind, err := NewBytesParser(data[e.Offset:]).ParseIndirectObject()
		if err != nil {
			t.Fatalf("object %d: %v", n, err)
		}
		if ind.Ref.Number != n {
			t.Errorf("offset of %d points at %d", n, ind.Ref.Number)
		}
	}
}

func TestParseAllXRefsFollowsPrev(t *testing.T) {
	base := buildFile(t, map[int]Object{
		1: Dict{"Type": Name("Catalog")},
		2: String("old"),
	}, Dict{"Root": IndirectRef{Number: 1}})
	firstXRef, err := NewXRefParser(base).FindXRef()
	if err != nil {
		t.Fatal(err)
	}

	// Append an incremental update that redefines object 2.
	var buf bytes.Buffer
	buf.Write(base)
	off := buf.Len()
	buf.WriteString("2 0 obj\n(new)\nendobj\n")
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n2 1\n%010d 00000 n \n", off)
	fmt.Fprintf(&buf, "trailer\n<</Size 3 /Root 1 0 R /Prev %d>>\nstartxref\n%d\n%%%%EOF\n", firstXRef, xref)
	data := buf.Bytes()

	chain, err := NewXRefParser(data).ParseAllXRefs()
	if err != nil {
		t.Fatalf("ParseAllXRefs failed: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(chain))
	}
	merged := MergeXRefTables(chain...)
	e, _ := merged.Get(2)
	if e.Offset != int64(off) {
		t.Errorf("object 2 offset = %d, want %d", e.Offset, off)
	}
	if _, ok := merged.Trailer.GetInt("Prev"); !ok {
		t.Error("merged trailer should be the newest one")
	}
}

func TestParseAllXRefsStopsOnLoop(t *testing.T) {
	src := "%PDF-1.4\nxref\n0 1\n0000000000 65535 f \ntrailer\n<</Size 1 /Prev 9>>\nstartxref\n9\n%%EOF\n"
	chain, err := NewXRefParser([]byte(src)).ParseAllXRefs()
	if err != nil {
		t.Fatalf("ParseAllXRefs failed: %v", err)
	}
	if len(chain) != 1 {
		t.Errorf("expected loop to stop after 1 section, got %d", len(chain))
	}
}

func TestDecodeXRefStream(t *testing.T) {
	// W [1 2 1]: free, offset 0x0102 gen 0, compressed in stream 5 index 3.
	rows := []byte{
		0, 0x00, 0x00, 0xff,
		1, 0x01, 0x02, 0x00,
		2, 0x00, 0x05, 0x03,
	}
	s := &Stream{Dict: Dict{
		"Type":  Name("XRef"),
		"W":     Array{Int(1), Int(2), Int(1)},
		"Index": Array{Int(10), Int(3)},
		"Size":  Int(13),
	}, Data: rows}

	table, err := DecodeXRefStream(s)
	if err != nil {
		t.Fatalf("DecodeXRefStream failed: %v", err)
	}
	if e, _ := table.Get(10); e.InUse() {
		t.Error("object 10 should be free")
	}
	if e, _ := table.Get(11); e.Type != EntryInUse || e.Offset != 0x0102 {
		t.Errorf("object 11 = %+v", e)
	}
	if e, _ := table.Get(12); e.Type != EntryCompressed || e.Stream != 5 || e.Index != 3 {
		t.Errorf("object 12 = %+v", e)
	}
}

func TestParseXRefStreamInFile(t *testing.T) {
	head := "%PDF-1.5\n1 0 obj\n<</Type/Catalog>>\nendobj\n"
	rows := []byte{0, 0, 0, 0xff, 1, 0, byte(9), 0}
	xrefOff := len(head)
	src := head + fmt.Sprintf("2 0 obj\n<</Type/XRef /W [1 2 1] /Size 2 /Root 1 0 R /Length %d>>\nstream\n", len(rows)) +
		string(rows) + "\nendstream\nendobj\n" + fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefOff)

	chain, err := NewXRefParser([]byte(src)).ParseAllXRefs()
	if err != nil {
		t.Fatalf("ParseAllXRefs failed: %v", err)
	}
	if !chain[0].Stream {
		t.Error("expected a stream section")
	}
	if e, _ := chain[0].Get(1); e.Offset != 9 {
		t.Errorf("object 1 offset = %d", e.Offset)
	}
	if _, ok := chain[0].Trailer.GetIndirectRef("Root"); !ok {
		t.Error("stream dictionary should act as trailer")
	}
}

func TestRebuildXRef(t *testing.T) {
	src := "%PDF-1.4\n1 0 obj\n<</Type /Catalog>>\nendobj\n2 0 obj\n(a)\nendobj\n2 0 obj\n(b)\nendobj\nstartxref\n999\n%%EOF"
	table, err := RebuildXRef([]byte(src))
	if err != nil {
		t.Fatalf("RebuildXRef failed: %v", err)
	}
	if root, _ := table.Trailer.GetIndirectRef("Root"); root.Number != 1 {
		t.Errorf("Root = %v", root)
	}
	e, _ := table.Get(2)
	if !strings.HasPrefix(src[e.Offset:], "2 0 obj\n(b)") {
		t.Error("last definition of object 2 should win")
	}

	defs := ScanObjects([]byte(src))
	if len(defs) != 3 {
		t.Errorf("ScanObjects found %d definitions, want 3", len(defs))
	}
}

func TestObjectStream(t *testing.T) {
	body := "<</A 1>> (two) [3]"
	header := "10 0 11 9 12 15 "
	s := &Stream{Dict: Dict{
		"Type":    Name("ObjStm"),
		"N":       Int(3),
		"First":   Int(len(header)),
		"Extends": IndirectRef{Number: 4},
	}, Data: []byte(header + body)}

	os, err := NewObjectStream(s)
	if err != nil {
		t.Fatalf("NewObjectStream failed: %v", err)
	}
	if os.Extends() == nil || os.Extends().Number != 4 {
		t.Errorf("Extends = %v", os.Extends())
	}

	nums, err := os.ObjectNumbers()
	if err != nil || len(nums) != 3 || nums[2] != 12 {
		t.Fatalf("ObjectNumbers = %v, %v", nums, err)
	}
	obj, idx, err := os.GetObjectByNumber(11)
	if err != nil || idx != 1 || obj.(String) != "two" {
		t.Errorf("GetObjectByNumber(11) = %v, %d, %v", obj, idx, err)
	}
	if _, _, err := os.GetObjectByNumber(99); err == nil {
		t.Error("expected error for missing object")
	}
}

func TestStreamSetFlateData(t *testing.T) {
	s := &Stream{Dict: Dict{"Filter": Name("ASCIIHexDecode"), "DecodeParms": Dict{}}}
	if err := s.SetFlateData([]byte("q 1 0 0 1 0 0 cm Q")); err != nil {
		t.Fatal(err)
	}
	if f := s.Filters(); len(f) != 1 || f[0] != "FlateDecode" {
		t.Errorf("Filters = %v", f)
	}
	if s.Dict.Has("DecodeParms") {
		t.Error("DecodeParms should be dropped")
	}
	out, err := s.Decode()
	if err != nil || string(out) != "q 1 0 0 1 0 0 cm Q" {
		t.Errorf("Decode = %q, %v", out, err)
	}
}

func TestStreamDecodeBudget(t *testing.T) {
	s := &Stream{Dict: Dict{}}
	if err := s.SetFlateData(bytes.Repeat([]byte("0 0 m "), 1<<14)); err != nil {
		t.Fatal(err)
	}
	hex := &Stream{Dict: Dict{"Filter": Array{Name("ASCIIHexDecode"), Name("FlateDecode")}}}
	hex.Data = []byte(fmt.Sprintf("%x>", s.Data))

	b := NewBudget(64<<10, 0)
	s.SetBudget(b)
	if _, err := s.Decode(); !errors.Is(err, ErrDecodeLimit) {
		t.Fatalf("Decode over the stream limit = %v, want ErrDecodeLimit", err)
	}
	if b.Err() == nil {
		t.Error("budget should record the overrun")
	}

	total := NewBudget(0, int64(len(hex.Data)))
	hex.SetBudget(total)
	if _, err := hex.Decode(); !errors.Is(err, ErrDecodeLimit) {
		t.Errorf("chained Decode over the total = %v, want ErrDecodeLimit", err)
	}

	hex.SetBudget(NewBudget(1<<20, 4<<20))
	out, err := hex.Decode()
	if err != nil || len(out) != 6<<14 {
		t.Errorf("Decode within limits = %d bytes, %v", len(out), err)
	}
}

func TestMergeXRefTablesInheritsTrailer(t *testing.T) {
	older := NewXRefTable()
	older.Trailer = Dict{"Root": IndirectRef{Number: 1}, "Info": IndirectRef{Number: 5}, "Size": Int(6)}
	newer := NewXRefTable()
	newer.Stream = true
	newer.Trailer = Dict{
		"Type":   Name("XRef"),
		"W":      Array{Int(1), Int(2), Int(1)},
		"Filter": Name("FlateDecode"),
		"Root":   IndirectRef{Number: 1},
		"Size":   Int(8),
		"Prev":   Int(100),
	}

	merged := MergeXRefTables(older, newer)
	if ref, ok := merged.Trailer.Get("Info").(IndirectRef); !ok || ref.Number != 5 {
		t.Errorf("Info = %v, want the older revision's 5 0 R", merged.Trailer.Get("Info"))
	}
	if size, _ := merged.Trailer.GetInt("Size"); size != 8 {
		t.Errorf("Size = %d, want 8", size)
	}
	if _, ok := merged.Trailer.GetInt("Prev"); !ok {
		t.Error("Prev of the newest section should survive")
	}
	for _, key := range []string{"Type", "W", "Filter"} {
		if merged.Trailer.Has(key) {
			t.Errorf("stream layout key %s leaked into the trailer", key)
		}
	}
}
