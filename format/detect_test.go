package format

import (
	"archive/zip"
	"bytes"
	"testing"
)

func TestFormat_String(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{PageDocument, "page-document"},
		{RasterImage, "raster-image"},
		{WordPackage, "word-package"},
		{SpreadsheetPackage, "spreadsheet-package"},
		{Unknown, "unknown"},
		{Format(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.format.String(); got != tt.want {
			t.Errorf("Format(%d).String() = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestAllRoundTripsThroughParse(t *testing.T) {
	for _, f := range All() {
		got, err := Parse(f.String())
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", f.String(), err)
		}
		if got != f {
			t.Errorf("Parse(%q) = %v, want %v", f.String(), got, f)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"pdf", PageDocument, false},
		{"image", RasterImage, false},
		{"Word", WordPackage, false},
		{" excel ", SpreadsheetPackage, false},
		{"pptx", Unknown, true},
		{"", Unknown, true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFromFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
	}{
		{"report.PDF", PageDocument},
		{"scan.jpeg", RasterImage},
		{"scan.tif", RasterImage},
		{"letter.docx", WordPackage},
		{"budget.xlsx", SpreadsheetPackage},
		{"notes.txt", Unknown},
	}

	for _, tt := range tests {
		if got := FromFilename(tt.filename); got != tt.want {
			t.Errorf("FromFilename(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}

func makeZip(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Create(%s): %v", name, err)
		}
		w.Write([]byte("<x/>"))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"pdf", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n"), PageDocument},
		{"pdf with junk prefix", []byte("\x00\x00%PDF-1.4\n"), PageDocument},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n', 0, 0}, RasterImage},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, RasterImage},
		{"gif", []byte("GIF89a"), RasterImage},
		{"tiff", []byte{'I', 'I', 0x2A, 0x00}, RasterImage},
		{"docx", makeZip(t, "[Content_Types].xml", "word/document.xml"), WordPackage},
		{"xlsx", makeZip(t, "[Content_Types].xml", "xl/workbook.xml"), SpreadsheetPackage},
		{"plain zip", makeZip(t, "readme.txt"), Unknown},
		{"text", []byte("hello"), Unknown},
		{"empty", nil, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.data); got != tt.want {
				t.Errorf("Sniff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsCompoundFile(t *testing.T) {
	if !IsCompoundFile([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0}) {
		t.Error("IsCompoundFile() = false for CFB header")
	}
	if IsCompoundFile([]byte("PK\x03\x04")) {
		t.Error("IsCompoundFile() = true for zip")
	}
}
