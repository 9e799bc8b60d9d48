// Package reader gives random access to the objects of a PDF file held in
// memory.
//
// # Opening PDF Files
//
//	r, err := reader.NewReader(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Or use [Open] to read a file from disk.
//
// # Cross-Reference Data
//
// Every cross-reference section reachable through /Prev and /XRefStm is
// loaded and merged so the newest revision of each object wins. Classic
// tables, cross-reference streams and hybrid files are supported, as are
// objects stored in object streams. When the xref data is unusable the
// table is rebuilt by scanning the file for "N G obj" headers, and a stale
// offset for a single object falls back to the same scan.
//
// # Revisions
//
// Revisions reports how many sections the /Prev chain holds. Definitions
// lists every object definition in the file body, and IsCurrent tells
// whether one of them is still the live version, so superseded content can
// be found.
//
// # Object Cache
//
// Loaded objects are cached and shared. Changing a returned dictionary, or
// calling SetObject, changes what later lookups see; this is how edits are
// staged before the document is written out again.
//
// # Images
//
// Image describes an image XObject's sample layout and Burn paints
// rectangles into its samples, re-encoding the stream.
package reader
