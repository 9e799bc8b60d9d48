package raster

import (
	"fmt"
	"strings"
)

// OCRPolicy decides when text recognition runs on an image.
type OCRPolicy int

const (
	// OCRIfAvailable runs recognition when an engine is configured and
	// compiled in, and relies on caller regions otherwise.
	OCRIfAvailable OCRPolicy = iota
	// OCROff never runs recognition; only caller regions and metadata are
	// examined.
	OCROff
	// OCRRequired fails the job when no engine can run.
	OCRRequired
)

// String returns the configuration name of the policy.
func (p OCRPolicy) String() string {
	switch p {
	case OCROff:
		return "off"
	case OCRRequired:
		return "required"
	default:
		return "if-available"
	}
}

// ParseOCRPolicy converts a configuration value into a policy. The empty
// string selects OCRIfAvailable.
func ParseOCRPolicy(s string) (OCRPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "if-available", "auto":
		return OCRIfAvailable, nil
	case "off", "none", "false":
		return OCROff, nil
	case "required", "require", "true":
		return OCRRequired, nil
	default:
		return OCRIfAvailable, fmt.Errorf("unknown OCR policy %q", s)
	}
}
