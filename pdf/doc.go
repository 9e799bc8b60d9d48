// Package pdf redacts page documents.
//
// Opening a document parses its object graph with the reader package.
// [Document.Units] interprets every page's content stream, recursing into
// form XObjects, and groups the glyphs drawn along one baseline into a text
// run. Each run is one unit, with a box per rune in default user space. Runs
// drawn in an invisible rendering mode are tagged as overlays. Annotations,
// document information, XMP metadata, embedded files and the text of
// superseded or unreachable objects are extracted as units of their own.
//
// [Document.Apply] removes the matched glyph bytes from their show
// operations, replacing their advance with a TJ adjustment so the rest of
// the line does not move, and queues an opaque rectangle over each match.
// Matches in an overlay also burn the image samples beneath them. Metadata
// fields are deleted; annotations and attachments are dropped.
//
// [Document.Serialize] writes a new single-revision file holding only the
// objects reachable from the trailer, so prior revisions never survive an
// edit. A document with nothing to redact is returned byte for byte.
package pdf
