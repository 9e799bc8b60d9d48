package font

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// Encoding maps single-byte character codes of a simple font to Unicode.
type Encoding struct {
	Name  string
	table [256]rune
}

// Decode returns the Unicode character for a code, or 0 if unmapped.
func (e *Encoding) Decode(code byte) rune {
	return e.table[code]
}

var (
	WinAnsiEncoding  = fromCharmap("WinAnsiEncoding", charmap.Windows1252)
	MacRomanEncoding = fromCharmap("MacRomanEncoding", charmap.Macintosh)
	StandardEncoding = standardEncoding()
	PDFDocEncoding   = pdfDocEncoding()
	identityEncoding = fromCharmap("Identity", charmap.ISO8859_1)
)

func fromCharmap(name string, cm *charmap.Charmap) *Encoding {
	e := &Encoding{Name: name}
	for i := 0; i < 256; i++ {
		r := cm.DecodeByte(byte(i))
		if r == utf8.RuneError {
			r = 0
		}
		e.table[i] = r
	}
	return e
}

// standardEncoding is Adobe StandardEncoding: ASCII with curly quotes at
// 0x27 and 0x60 and its own layout above 0x7F.
func standardEncoding() *Encoding {
	e := &Encoding{Name: "StandardEncoding"}
	for i := 0x20; i < 0x7F; i++ {
		e.table[i] = rune(i)
	}
	e.table[0x27] = '’'
	e.table[0x60] = '‘'
	high := map[byte]rune{
		0xA1: '¡', 0xA2: '¢', 0xA3: '£', 0xA4: '⁄', 0xA5: '¥', 0xA6: 'ƒ', 0xA7: '§',
		0xA8: '¤', 0xA9: '\'', 0xAA: '“', 0xAB: '«', 0xAC: '‹', 0xAD: '›',
		0xAE: 'ﬁ', 0xAF: 'ﬂ', 0xB1: '–', 0xB2: '†', 0xB3: '‡',
		0xB4: '·', 0xB6: '¶', 0xB7: '•', 0xB8: '‚', 0xB9: '„', 0xBA: '”',
		0xBB: '»', 0xBC: '…', 0xBD: '‰', 0xBF: '¿', 0xC1: '`', 0xC2: '´',
		0xC3: 'ˆ', 0xC4: '˜', 0xC5: '¯', 0xC6: '˘', 0xC7: '˙', 0xC8: '¨', 0xCA: '˚',
		0xCB: '¸', 0xCD: '˝', 0xCE: '˛', 0xCF: 'ˇ', 0xD0: '—', 0xE1: 'Æ', 0xE3: 'ª',
		0xE8: 'Ł', 0xE9: 'Ø', 0xEA: 'Œ', 0xEB: 'º', 0xF1: 'æ', 0xF5: 'ı', 0xF8: 'ł',
		0xF9: 'ø', 0xFA: 'œ', 0xFB: 'ß',
	}
	for code, r := range high {
		e.table[code] = r
	}
	return e
}

// pdfDocEncoding is the encoding of text strings without a byte order
// mark. It agrees with Latin-1 except in 0x18-0x1F and 0x80-0x9F.
func pdfDocEncoding() *Encoding {
	e := &Encoding{Name: "PDFDocEncoding"}
	for i := 0; i < 256; i++ {
		e.table[i] = rune(i)
	}
	diff := map[byte]rune{
		0x18: '˘', 0x19: 'ˇ', 0x1A: 'ˆ', 0x1B: '˙', 0x1C: '˝', 0x1D: '˛', 0x1E: '˚', 0x1F: '˜',
		0x80: '•', 0x81: '†', 0x82: '‡', 0x83: '…', 0x84: '—',
		0x85: '–', 0x86: 'ƒ', 0x87: '⁄', 0x88: '‹', 0x89: '›',
		0x8A: '−', 0x8B: '‰', 0x8C: '„', 0x8D: '“', 0x8E: '”',
		0x8F: '‘', 0x90: '’', 0x91: '‚', 0x92: '™', 0x93: 'ﬁ',
		0x94: 'ﬂ', 0x95: 'Ł', 0x96: 'Œ', 0x97: 'Š', 0x98: 'Ÿ', 0x99: 'Ž', 0x9A: 'ı',
		0x9B: 'ł', 0x9C: 'œ', 0x9D: 'š', 0x9E: 'ž', 0x9F: 0, 0xA0: '€',
	}
	for code, r := range diff {
		e.table[code] = r
	}
	return e
}

// GetEncoding returns a predefined encoding by name. Unknown names fall
// back to StandardEncoding.
func GetEncoding(name string) *Encoding {
	switch name {
	case "WinAnsiEncoding":
		return WinAnsiEncoding
	case "MacRomanEncoding", "MacExpertEncoding":
		return MacRomanEncoding
	case "PDFDocEncoding":
		return PDFDocEncoding
	default:
		return StandardEncoding
	}
}

// DecodeTextString decodes a PDF text string (document information,
// annotation contents, outline titles): UTF-16BE or UTF-8 with a byte
// order mark, PDFDocEncoding otherwise.
func DecodeTextString(data []byte) string {
	switch {
	case len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF:
		return decodeUTF16BE(data)
	case len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF:
		return string(data[3:])
	}
	var b strings.Builder
	for _, c := range data {
		if r := PDFDocEncoding.Decode(c); r != 0 {
			b.WriteRune(r)
		} else {
			b.WriteByte('?')
		}
	}
	return b.String()
}

// glyphNames covers the Adobe Glyph List names that differ from the
// character they name. Single-letter names and uniXXXX forms are handled
// in GlyphNameToUnicode.
var glyphNames = map[string]string{
	"space": " ", "exclam": "!", "quotedbl": "\"", "numbersign": "#", "dollar": "$",
	"percent": "%", "ampersand": "&", "quotesingle": "'", "quoteright": "’",
	"quoteleft": "‘", "parenleft": "(", "parenright": ")", "asterisk": "*",
	"plus": "+", "comma": ",", "hyphen": "-", "minus": "−", "period": ".",
	"slash": "/", "zero": "0", "one": "1", "two": "2", "three": "3", "four": "4",
	"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9", "colon": ":",
	"semicolon": ";", "less": "<", "equal": "=", "greater": ">", "question": "?",
	"at": "@", "bracketleft": "[", "backslash": "\\", "bracketright": "]",
	"asciicircum": "^", "underscore": "_", "grave": "`", "braceleft": "{", "bar": "|",
	"braceright": "}", "asciitilde": "~", "quotedblleft": "“",
	"quotedblright": "”", "quotesinglbase": "‚", "quotedblbase": "„",
	"endash": "–", "emdash": "—", "bullet": "•", "ellipsis": "…",
	"dagger": "†", "daggerdbl": "‡", "perthousand": "‰",
	"guilsinglleft": "‹", "guilsinglright": "›", "guillemotleft": "«",
	"guillemotright": "»", "fi": "fi", "fl": "fl", "ff": "ff", "ffi": "ffi", "ffl": "ffl",
	"Euro": "€", "copyright": "©", "registered": "®", "trademark": "™",
	"degree": "°", "section": "§", "paragraph": "¶", "periodcentered": "·",
	"nbspace": "\u00a0", "sfthyphen": "\u00ad", "florin": "ƒ", "sterling": "£",
	"yen": "¥", "cent": "¢", "currency": "¤", "multiply": "×", "divide": "÷",
	"plusminus": "±", "germandbls": "ß", "dotlessi": "ı", "AE": "Æ", "ae": "æ",
	"OE": "Œ", "oe": "œ", "Oslash": "Ø", "oslash": "ø", "Lslash": "Ł", "lslash": "ł",
	"exclamdown": "¡", "questiondown": "¿", "ordfeminine": "ª", "ordmasculine": "º",
	"onehalf": "½", "onequarter": "¼", "threequarters": "¾", "mu": "µ",
}

var accents = map[string]string{
	"acute": "\u0301", "grave": "\u0300", "circumflex": "\u0302", "dieresis": "\u0308",
	"tilde": "\u0303", "ring": "\u030a", "cedilla": "\u0327", "caron": "\u030c",
}

// GlyphNameToUnicode maps a glyph name to the text it represents, or ""
// when the name is unknown. Suffixes after a period are ignored and
// underscore-joined ligature names are expanded.
func GlyphNameToUnicode(name string) string {
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if strings.Contains(name, "_") {
		var b strings.Builder
		for _, part := range strings.Split(name, "_") {
			s := GlyphNameToUnicode(part)
			if s == "" {
				return ""
			}
			b.WriteString(s)
		}
		return b.String()
	}
	if s, ok := glyphNames[name]; ok {
		return s
	}
	if utf8.RuneCountInString(name) == 1 {
		return name
	}
	if strings.HasPrefix(name, "uni") && len(name) >= 7 && (len(name)-3)%4 == 0 {
		var units []uint16
		for i := 3; i < len(name); i += 4 {
			v, err := strconv.ParseUint(name[i:i+4], 16, 16)
			if err != nil {
				return ""
			}
			units = append(units, uint16(v))
		}
		return decodeUTF16BE(unitsToBytes(units))
	}
	if strings.HasPrefix(name, "u") && len(name) >= 5 && len(name) <= 7 {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil && v <= utf8.MaxRune {
			return string(rune(v))
		}
	}
	// Accented Latin letters: "eacute", "Udieresis".
	for suffix, mark := range accents {
		if base := strings.TrimSuffix(name, suffix); base != name && utf8.RuneCountInString(base) == 1 {
			return composeAccent(base, mark)
		}
	}
	return ""
}

func composeAccent(base, mark string) string {
	return norm.NFC.String(base + mark)
}

func unitsToBytes(units []uint16) []byte {
	b := make([]byte, 0, 2*len(units))
	for _, u := range units {
		b = append(b, byte(u>>8), byte(u))
	}
	return b
}
