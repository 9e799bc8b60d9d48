// Package filters implements the stream codecs needed to read and rewrite
// document content: FlateDecode (with PNG and TIFF predictors),
// ASCIIHexDecode, ASCII85Decode and CCITTFaxDecode, plus FlateEncode for
// rewritten streams.
//
// Every decoder takes a [Budget] that caps its output and charges it
// against a running total, so hostile input cannot expand without bound.
//
//	b := filters.NewBudget(64<<20, 512<<20)
//	decoded, err := filters.FlateDecode(data, filters.Params{"Predictor": 12, "Columns": 5}, b)
//	encoded, err := filters.FlateEncode(decoded)
package filters
