// Package docx redacts word-processing packages.
//
// Text is read per paragraph from the main document, headers, footers,
// footnotes, endnotes, comments and the glossary. A paragraph yields up to
// five units, one per view:
//
//   - current: the text as displayed, insertions included
//   - original: the text before tracked changes, deletions included
//   - inserted: tracked insertions only
//   - hidden: runs formatted as hidden, directly or through a style
//   - field: field instructions
//
// Every view keeps a map from its text back to the elements that hold it,
// so a span found in any view is removed from the stored text. Cuts that
// reach the same element through several views merge before the element
// is rewritten, leaving one placeholder per removed range.
//
// Besides paragraphs the adapter reports revision and comment authors,
// simple field instructions, drawing alternate text, external hyperlink
// targets, custom XML data and document properties.
//
// # Usage
//
//	a := docx.New("[REDACTED]", logger)
//	doc, err := a.Open(ctx, data, model.JobOptions{})
//	if err != nil {
//	    return err
//	}
//	units, err := doc.Units(ctx)
//	// detect spans in units, then:
//	err = doc.Apply(ctx, model.NewPlan(units, spans), report)
//	out, err := doc.Serialize()
package docx
