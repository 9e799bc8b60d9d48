// Package core holds the PDF object model together with its lexer, parser,
// cross-reference reader and writer.
//
// Objects are [Null], [Bool], [Int], [Real], [String], [Name], [Array],
// [Dict], [Stream] and [IndirectRef]. [Parser] reads them from bytes,
// [XRefParser] reads classic tables and cross-reference streams, and
// [ObjectStream] unpacks compressed object streams. [ScanObjects] finds
// every "n g obj" definition in a file, including ones no table points at,
// which is how superseded revisions are found.
//
// On output, [AppendObject] serializes deterministically with sorted
// dictionary keys, a [RefMapper] renumbers references, and [FileWriter]
// assembles a single revision with one classic cross-reference table.
// [Stream.SetFlateData] replaces stream content with Flate-compressed data.
package core
