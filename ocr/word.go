// Package ocr recognizes words in raster images.
//
// The Tesseract engine is wrapped via gosseract and compiled in only with
// the "ocr" build tag:
//
//	go build -tags ocr
//
// This requires Tesseract to be installed. On macOS:
//
//	brew install tesseract
//
// On Ubuntu/Debian:
//
//	apt-get install tesseract-ocr
//
// Without the tag, New returns ErrOCRNotEnabled and callers fall back to
// caller-supplied regions.
package ocr

import (
	"context"
	"errors"

	"github.com/tsawler/redactor/model"
)

// ErrOCRNotEnabled is returned when OCR support was not compiled in.
// Rebuild with -tags ocr to enable it.
var ErrOCRNotEnabled = errors.New("OCR support not enabled; rebuild with -tags ocr")

// Word is one recognized word. Rect is in pixels with the origin at the
// top-left corner of the image.
type Word struct {
	Text       string
	Rect       model.Rect
	Confidence float64 // 0..1
}

// Recognizer finds words in an encoded image (PNG, JPEG, GIF, BMP, TIFF).
// Implementations must be safe for concurrent use.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) ([]Word, error)
}

// PageSegMode controls how Tesseract analyzes the page layout.
type PageSegMode int

// Page segmentation modes.
const (
	PSM_AUTO            PageSegMode = 3  // Fully automatic
	PSM_SINGLE_BLOCK    PageSegMode = 6  // Single uniform block of text
	PSM_SINGLE_LINE     PageSegMode = 7  // Single text line
	PSM_SPARSE_TEXT     PageSegMode = 11 // Find as much text as possible (default)
	PSM_SPARSE_TEXT_OSD PageSegMode = 12 // Sparse text with OSD
)
