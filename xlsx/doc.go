// Package xlsx redacts spreadsheet packages.
//
// A workbook stores text in many places besides its cells: the shared
// string table, formula text and cached formula results, headers and
// footers, comments and threaded comments, pivot caches, table column
// names, sheet and defined names, hyperlink targets and document
// properties. Each becomes a unit with its own provenance.
//
// Removal follows the storage:
//
//   - shared string entries are rewritten and every cell showing them is
//     listed in the report
//   - plain value cells become inline strings holding the placeholder
//   - formula text is rewritten only inside string literals
//   - cached results are rewritten and a full recalculation is requested
//   - pivot cache items are rewritten and the cache refreshes on load
//   - sheet, defined and table column names are never renamed
//
// Once cells change, every formula that builds text from them is reported
// unresolved, since recalculation would restore the removed value. The
// calculation chain is dropped whenever a cell changes.
package xlsx
