// Package pages flattens the PDF page tree.
//
// Pages are returned in document order with their inheritable attributes
// (Resources, MediaBox, CropBox, Rotate) taken from the nearest ancestor
// that defines them. Each page keeps the reference of its dictionary and of
// every content stream so callers can rewrite them in place.
//
//	tree := pages.NewPageTree(pagesDict, resolver)
//	all, err := tree.Pages()
//	for _, p := range all {
//	    contents, _ := p.Contents()
//	    ...
//	}
//
// A cycle in /Kids is reported as an error rather than followed.
package pages
