// Package ooxml reads and rewrites Office Open XML packages.
//
// A [Package] keeps the zip entries in their original order. Parts that
// are never touched are copied to the output byte for byte; modified parts
// are serialized from a [Node] tree, which keeps prefixes, attributes,
// comments and processing instructions so nothing else in the part
// changes. Removing a part also removes the relationships that point at it
// and its content type override, and any modification drops the package
// thumbnail.
//
// The [Editor] applies removals to the elements that hold a unit's text;
// cuts that reach the same element through different units are merged
// before the element is rewritten.
package ooxml
