// Package raster redacts bitmap images: PNG, JPEG, GIF, BMP and TIFF.
//
// Text in an image comes from three places. Metadata stored beside the
// pixels (PNG text chunks, JPEG comments, EXIF, IPTC and XMP packets, GIF
// comment extensions) and any bytes appended after the format's end marker
// are read directly. Text drawn in the pixels is only known through
// caller-supplied regions or an OCR engine; both yield primary units whose
// runes carry pixel boxes.
//
// Matched pixels are painted opaque black over the whole word or region
// plus a margin. The image is then re-encoded from its pixels in the
// original format, so no metadata, thumbnail or trailing data survives:
//
//	a := raster.New(
//		raster.WithRecognizer(client),
//		raster.WithPolicy(raster.OCRRequired),
//		raster.WithMargin(4),
//	)
//	doc, err := a.Open(ctx, data, model.JobOptions{Regions: regions})
//
// Multi-page TIFF files are reduced to their first page when rewritten.
package raster
