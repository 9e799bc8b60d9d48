package redactor

import (
	"log/slog"

	"github.com/tsawler/redactor/model"
	"github.com/tsawler/redactor/ocr"
	"github.com/tsawler/redactor/raster"
)

const (
	// DefaultMaxInputSize caps the input RedactReader and RedactFile accept.
	DefaultMaxInputSize = 100 << 20

	// DefaultMaxStreamSize caps the decoded size of one stream, zip entry
	// or compressed metadata chunk.
	DefaultMaxStreamSize = 256 << 20

	// DefaultMaxDecodedSize caps the decoded bytes of one opened document.
	DefaultMaxDecodedSize = 1 << 30
)

// Option configures an Engine.
type Option func(*Engine)

// WithPlaceholder sets the text written in place of matches in word and
// spreadsheet packages.
func WithPlaceholder(s string) Option {
	return func(e *Engine) { e.placeholder = s }
}

// WithOCR sets the text recognizer used on raster images.
func WithOCR(r ocr.Recognizer) Option {
	return func(e *Engine) { e.recognizer = r }
}

// WithOCRPolicy sets when text recognition runs on raster images.
func WithOCRPolicy(p raster.OCRPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithMargin sets the number of pixels filled around matches in raster
// images.
func WithMargin(px int) Option {
	return func(e *Engine) { e.margin = px }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxInputSize caps the bytes read by RedactReader and RedactFile, and
// the size of inputs Redact accepts.
func WithMaxInputSize(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxInput = n
		}
	}
}

// WithDecodeLimits caps the decoded size of each stream or entry and of
// everything decoded from one document. Inputs that need more fail with
// CorruptInput. Zero removes a limit.
func WithDecodeLimits(perStream, total int64) Option {
	return func(e *Engine) {
		e.limits = model.Limits{MaxStream: max(perStream, 0), MaxDecoded: max(total, 0)}
	}
}

// WithMinLiteralLen sets the shortest literal, in runes, the verifier
// searches for in raw output bytes.
func WithMinLiteralLen(n int) Option {
	return func(e *Engine) { e.minLiteral = n }
}

// JobOption carries per-job hints.
type JobOption func(*model.JobOptions)

// WithRegions supplies text locations inside a raster image, in pixels.
func WithRegions(regions ...model.Region) JobOption {
	return func(o *model.JobOptions) {
		o.Regions = append(o.Regions, regions...)
	}
}

// WithForcedRects supplies raster rectangles that are filled whatever
// detection finds.
func WithForcedRects(rects ...model.Rect) JobOption {
	return func(o *model.JobOptions) {
		o.ForcedRects = append(o.ForcedRects, rects...)
	}
}

func jobOptions(opts []JobOption) model.JobOptions {
	var o model.JobOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
