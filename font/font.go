package font

import (
	"strings"

	"github.com/tsawler/redactor/core"
)

// Resolver resolves indirect references found in font dictionaries.
type Resolver interface {
	Resolve(obj core.Object) (core.Object, error)
}

// Glyph is one character code of a shown string.
type Glyph struct {
	Code  uint32
	Bytes []byte  // the code as it appears in the string
	Text  string  // Unicode text, U+FFFD when the font gives no mapping
	Width float64 // horizontal advance in glyph units (1/1000 em)
	Space bool    // single-byte code 32, subject to word spacing
}

// Font represents a PDF font
type Font struct {
	Name     string
	BaseFont string
	Subtype  string
	Encoding string

	// ToUnicode CMap for character code to Unicode mapping
	ToUnicodeCMap *CMap

	// simple fonts
	encoding    *Encoding
	differences map[byte]string
	firstChar   int
	widths      []float64
	missing     float64
	hasMissing  bool
	widthScale  float64
	standard    map[rune]float64

	// composite fonts
	composite    bool
	codeLen      int
	encodingCMap *CMap
	unicodeCodes bool
	cidWidths    []WidthRange
	defaultWidth float64
}

// Load builds a font from its dictionary. Load never fails: anything it
// cannot read falls back to defaults, so text still decodes to something
// and advances stay plausible.
func Load(dict core.Dict, r Resolver) *Font {
	f := &Font{widthScale: 1}
	if dict == nil {
		f.encoding = StandardEncoding
		f.standard = helveticaWidths
		return f
	}

	if n, ok := dict.GetName("Subtype"); ok {
		f.Subtype = string(n)
	}
	if n, ok := dict.GetName("BaseFont"); ok {
		f.BaseFont = stripSubset(string(n))
	}
	if n, ok := dict.GetName("Name"); ok {
		f.Name = string(n)
	}
	if s, ok := resolve(r, dict.Get("ToUnicode")).(*core.Stream); ok {
		if cm, err := ParseToUnicodeCMap(s); err == nil {
			f.ToUnicodeCMap = cm
		}
	}

	if f.Subtype == "Type0" {
		f.loadType0(dict, r)
		return f
	}
	f.loadSimple(dict, r)
	return f
}

func (f *Font) loadSimple(dict core.Dict, r Resolver) {
	f.encoding = f.builtinEncoding()

	switch enc := resolve(r, dict.Get("Encoding")).(type) {
	case core.Name:
		f.Encoding = string(enc)
		f.encoding = GetEncoding(f.Encoding)
	case core.Dict:
		if base, ok := enc.GetName("BaseEncoding"); ok {
			f.Encoding = string(base)
			f.encoding = GetEncoding(f.Encoding)
		}
		f.parseDifferences(resolve(r, enc.Get("Differences")))
	}

	if fc, ok := core.Number(resolve(r, dict.Get("FirstChar"))); ok {
		f.firstChar = int(fc)
	}
	if arr, ok := resolve(r, dict.Get("Widths")).(core.Array); ok {
		f.widths = make([]float64, len(arr))
		for i, w := range arr {
			f.widths[i], _ = core.Number(resolve(r, w))
		}
	}
	if fd, ok := resolve(r, dict.Get("FontDescriptor")).(core.Dict); ok {
		f.missing, f.hasMissing = core.Number(resolve(r, fd.Get("MissingWidth")))
	}
	if f.Subtype == "Type3" {
		if m, ok := resolve(r, dict.Get("FontMatrix")).(core.Array); ok && len(m) > 0 {
			if sx, ok := core.Number(resolve(r, m[0])); ok {
				f.widthScale = sx * 1000
			}
		}
	}

	f.standard = standardFonts[f.BaseFont]
	if f.standard == nil {
		f.standard = helveticaWidths
	}
}

// builtinEncoding is the encoding used when the dictionary has none.
func (f *Font) builtinEncoding() *Encoding {
	switch {
	case f.BaseFont == "Symbol" || f.BaseFont == "ZapfDingbats":
		return identityEncoding
	case f.Subtype == "TrueType":
		return WinAnsiEncoding
	default:
		return StandardEncoding
	}
}

// parseDifferences reads [code /name /name code /name ...].
func (f *Font) parseDifferences(obj core.Object) {
	arr, ok := obj.(core.Array)
	if !ok {
		return
	}
	f.differences = make(map[byte]string)
	code := 0
	for _, item := range arr {
		switch v := item.(type) {
		case core.Int:
			code = int(v)
		case core.Real:
			code = int(v)
		case core.Name:
			if code >= 0 && code < 256 {
				f.differences[byte(code)] = string(v)
			}
			code++
		}
	}
}

// Composite reports whether the font is a Type0 font with multi-byte codes.
func (f *Font) Composite() bool {
	return f.composite
}

// Decode splits a shown string into glyphs.
func (f *Font) Decode(data []byte) []Glyph {
	glyphs := make([]Glyph, 0, len(data))
	for i := 0; i < len(data); {
		n := f.codeLength(data[i:])
		if n > len(data)-i {
			n = len(data) - i
		}
		raw := data[i : i+n]
		code := codeOf(raw)
		g := Glyph{
			Code:  code,
			Bytes: raw,
			Space: n == 1 && code == 32,
		}
		g.Text = f.text(code)
		g.Width = f.width(code, g.Text)
		glyphs = append(glyphs, g)
		i += n
	}
	return glyphs
}

func (f *Font) codeLength(data []byte) int {
	if !f.composite {
		return 1
	}
	if n := f.encodingCMap.CodeLength(data); n > 0 {
		return n
	}
	if n := f.ToUnicodeCMap.CodeLength(data); n > 0 {
		return n
	}
	return f.codeLen
}

func (f *Font) text(code uint32) string {
	if f.ToUnicodeCMap != nil {
		if s := f.ToUnicodeCMap.Lookup(code); s != "" {
			return s
		}
	}
	if f.composite {
		if f.unicodeCodes {
			return string(rune(code))
		}
		return "\uFFFD"
	}
	if name, ok := f.differences[byte(code)]; ok {
		if s := GlyphNameToUnicode(name); s != "" {
			return s
		}
	}
	if r := f.encoding.Decode(byte(code)); r != 0 {
		return string(r)
	}
	return "\uFFFD"
}

func (f *Font) width(code uint32, text string) float64 {
	if f.composite {
		return f.widthForCID(f.cid(code))
	}
	if i := int(code) - f.firstChar; i >= 0 && i < len(f.widths) {
		return f.widths[i] * f.widthScale
	}
	if f.hasMissing {
		return f.missing * f.widthScale
	}
	if f.widths != nil {
		// The font declares its widths; codes outside them have none.
		return 0
	}
	if r := []rune(text); len(r) == 1 {
		if w, ok := f.standard[r[0]]; ok {
			return w
		}
	}
	return 500
}

// cid maps a character code to a CID. Identity encodings use the code
// itself.
func (f *Font) cid(code uint32) int {
	if f.encodingCMap != nil {
		if s := f.encodingCMap.Lookup(code); s != "" {
			return int([]rune(s)[0])
		}
	}
	return int(code)
}

// stripSubset removes the "ABCDEF+" prefix of an embedded subset.
func stripSubset(name string) string {
	if i := strings.IndexByte(name, '+'); i == 6 {
		return name[i+1:]
	}
	return name
}

func resolve(r Resolver, obj core.Object) core.Object {
	if obj == nil || r == nil {
		return obj
	}
	res, err := r.Resolve(obj)
	if err != nil {
		return nil
	}
	return res
}
