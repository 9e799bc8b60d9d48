// Package model defines the data that flows through a redaction job.
//
// Adapters produce [ExtractedUnit] values for every place a container stores
// text, tagged with a [Provenance] that separates visible content from the
// redundant copies (metadata, revision history, shared strings, caches) that
// must be neutralized independently. The detector turns units into
// [SensitiveSpan] values, which are grouped into a [Plan]. Adapters record
// what they removed in a [Report].
//
// # Errors
//
// All failures at the engine boundary are [*Error] values carrying a [Kind].
// Use errors.Is with the sentinels:
//
//	if errors.Is(err, model.ErrPartialRedactionFailure) { ... }
//
// Neither errors nor reports ever contain matched text; [Location] values
// identify where content lives without quoting it.
//
// # Geometry
//
//   - [Rect] - axis-aligned rectangle with union and intersection helpers
//   - [Matrix] - 2D affine transformation matrix
package model
