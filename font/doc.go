// Package font decodes the strings shown by PDF text operators into glyphs
// carrying Unicode text and advance widths.
//
// # Loading
//
// A font is built from its resource dictionary and never fails to load;
// missing or broken entries fall back to defaults:
//
//	f := font.Load(fontDict, resolver)
//	for _, g := range f.Decode(rawBytes) {
//		fmt.Println(g.Text, g.Width)
//	}
//
// # Text
//
// Unicode text is taken, in order, from the ToUnicode CMap, from the
// /Differences glyph names, and from the base encoding (StandardEncoding,
// WinAnsiEncoding, MacRomanEncoding). Codes with no mapping decode to
// U+FFFD. Composite (Type0) fonts split strings by the code space of
// their CMap and default to two-byte codes.
//
// # Widths
//
// Simple fonts use /FirstChar and /Widths, then /MissingWidth, then the
// metrics of the standard 14 fonts. CID fonts use the /W array and /DW.
// Type 3 widths are scaled by the font matrix.
//
// [DecodeTextString] decodes text strings outside content streams, such
// as document information and annotation contents.
package font
