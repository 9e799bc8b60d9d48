package model

import "context"

// JobOptions carries caller hints for one job. Regions and ForcedRects
// apply to the input only; the verifier re-opens output with Limits alone.
type JobOptions struct {
	// Regions are caller-supplied text locations inside an image, used
	// instead of or alongside OCR.
	Regions []Region
	// ForcedRects are filled unconditionally, whatever detection finds.
	ForcedRects []Rect
	// Limits bounds how much data the opened container may decode.
	Limits Limits
}

// Limits bounds decompression. Zero fields are unlimited.
type Limits struct {
	// MaxStream caps the decoded size of one stream, package entry or
	// compressed metadata chunk.
	MaxStream int64
	// MaxDecoded caps the decoded bytes of one opened container.
	MaxDecoded int64
}

// Adapter opens one container kind.
type Adapter interface {
	Open(ctx context.Context, data []byte, opts JobOptions) (Document, error)
}

// Document is an opened container. Units must be called before Apply.
type Document interface {
	// Units returns every place the container stores text, visible or not.
	Units(ctx context.Context) ([]ExtractedUnit, error)
	// Apply neutralizes the planned spans in memory and records what was
	// done in report. Spans it cannot remove are recorded as unresolved.
	Apply(ctx context.Context, plan *Plan, report *Report) error
	// Serialize returns the container bytes. An untouched document
	// serializes to its input.
	Serialize() ([]byte, error)
}
