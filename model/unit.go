package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Provenance classifies where an extracted unit of text lives. Every
// provenance other than Primary is a redundant or hidden copy that must be
// neutralized independently of the visible content.
type Provenance int

const (
	Primary Provenance = iota
	Overlay
	Metadata
	History
	Annotation
	Attachment
	Hidden
	TrackedInsert
	TrackedDelete
	Field
	Hyperlink
	SharedString
	Formula
	Cache
	Structural
)

var provenanceNames = [...]string{
	Primary:       "primary",
	Overlay:       "overlay",
	Metadata:      "metadata",
	History:       "history",
	Annotation:    "annotation",
	Attachment:    "attachment",
	Hidden:        "hidden",
	TrackedInsert: "tracked-insert",
	TrackedDelete: "tracked-delete",
	Field:         "field",
	Hyperlink:     "hyperlink",
	SharedString:  "shared-string",
	Formula:       "formula",
	Cache:         "cache",
	Structural:    "structural",
}

// String returns the provenance tag name
func (p Provenance) String() string {
	if p < 0 || int(p) >= len(provenanceNames) {
		return fmt.Sprintf("provenance(%d)", int(p))
	}
	return provenanceNames[p]
}

// MarshalText renders the tag name in reports
func (p Provenance) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a tag name written by MarshalText
func (p *Provenance) UnmarshalText(text []byte) error {
	for i, name := range provenanceNames {
		if name == string(text) {
			*p = Provenance(i)
			return nil
		}
	}
	return fmt.Errorf("unknown provenance %q", text)
}

// IsPrimary reports whether the unit is visible primary content
func (p Provenance) IsPrimary() bool {
	return p == Primary
}

// Location describes where a unit lives inside a container. It never holds
// document text, so it is safe to log and to return in errors.
type Location struct {
	Part   string `json:"part,omitempty"`
	Page   int    `json:"page,omitempty"`
	Object int    `json:"object,omitempty"`
	Op     int    `json:"op,omitempty"`
	Sheet  string `json:"sheet,omitempty"`
	Cell   string `json:"cell,omitempty"`
	Field  string `json:"field,omitempty"`
	Rect   *Rect  `json:"rect,omitempty"`
}

// String renders the location as a compact key=value list
func (l Location) String() string {
	var parts []string
	if l.Part != "" {
		parts = append(parts, "part="+l.Part)
	}
	if l.Page > 0 {
		parts = append(parts, fmt.Sprintf("page=%d", l.Page))
	}
	if l.Object > 0 {
		parts = append(parts, fmt.Sprintf("obj=%d", l.Object))
	}
	if l.Op > 0 {
		parts = append(parts, fmt.Sprintf("op=%d", l.Op))
	}
	if l.Sheet != "" {
		parts = append(parts, "sheet="+l.Sheet)
	}
	if l.Cell != "" {
		parts = append(parts, "cell="+l.Cell)
	}
	if l.Field != "" {
		parts = append(parts, "field="+l.Field)
	}
	if l.Rect != nil {
		parts = append(parts, fmt.Sprintf("rect=[%.1f %.1f %.1f %.1f]", l.Rect.X, l.Rect.Y, l.Rect.Width, l.Rect.Height))
	}
	if len(parts) == 0 {
		return "document"
	}
	return strings.Join(parts, " ")
}

// ExtractedUnit is one place an adapter found textual content.
type ExtractedUnit struct {
	ID         string
	Text       string
	Location   Location
	Provenance Provenance

	// Boxes holds one rectangle per rune of Text when the adapter knows the
	// geometry of the content; nil otherwise.
	Boxes []Rect
}

// SpanRect returns the union of the boxes covering the byte range
// [start, end) of the unit's text.
func (u ExtractedUnit) SpanRect(start, end int) (Rect, bool) {
	if len(u.Boxes) == 0 {
		if u.Location.Rect != nil {
			return *u.Location.Rect, true
		}
		return Rect{}, false
	}
	var out Rect
	found := false
	runeIdx := 0
	for i := 0; i < len(u.Text); {
		_, size := utf8.DecodeRuneInString(u.Text[i:])
		if i >= start && i < end && runeIdx < len(u.Boxes) {
			out = out.Union(u.Boxes[runeIdx])
			found = true
		}
		i += size
		runeIdx++
	}
	return out, found
}

// SensitiveSpan is a detected match inside one unit. Start and End are byte
// offsets into the unit's original text. Text holds the matched literal and
// must never be logged or surfaced in errors.
type SensitiveSpan struct {
	Unit       string
	Start      int
	End        int
	RuleID     string
	Confidence float64
	Text       string
}

// Len returns the byte length of the span
func (s SensitiveSpan) Len() int {
	return s.End - s.Start
}

// Overlaps reports whether two spans on the same unit share any byte
func (s SensitiveSpan) Overlaps(other SensitiveSpan) bool {
	return s.Unit == other.Unit && s.Start < other.End && other.Start < s.End
}

// Region is a caller-supplied or OCR-derived piece of text with its location
// in an image, in pixels.
type Region struct {
	Text       string
	Rect       Rect
	Confidence float64
}
