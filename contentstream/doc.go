// Package contentstream tokenizes PDF content streams into operations and
// writes operations back out.
//
// The redaction engine reads page content to learn where text is shown,
// then rewrites the stream with matched glyphs removed:
//
//	ops, err := contentstream.Parse(data)
//	for _, op := range ops {
//	    if op.Operator == "Tj" || op.Operator == "TJ" {
//	        // inspect op.Operands
//	    }
//	}
//	data = contentstream.Write(ops)
//
// Operands are core objects: numbers, strings, names, arrays and
// dictionaries. An inline image (BI ... ID ... EI) is returned as one "BI"
// operation whose sample data is kept verbatim in Inline.
package contentstream
