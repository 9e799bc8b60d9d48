package model

// Strategy names how a span was neutralized.
type Strategy string

const (
	// StrategyRemoveCover removes the drawing instruction and paints an
	// opaque shape over the former position.
	StrategyRemoveCover Strategy = "remove-and-cover"
	// StrategyDelete removes the value or field outright.
	StrategyDelete Strategy = "delete"
	// StrategyRewrite replaces the matched characters with a placeholder.
	StrategyRewrite Strategy = "rewrite"
	// StrategyDrop removes an entire part, object or attachment.
	StrategyDrop Strategy = "drop"
	// StrategyFill paints an opaque fill over image pixels.
	StrategyFill Strategy = "fill"
	// StrategyFlatten discards prior revisions of the object graph.
	StrategyFlatten Strategy = "flatten"
)

// Neutralized records one span that was removed from the output.
type Neutralized struct {
	Location   Location   `json:"location"`
	Provenance Provenance `json:"provenance"`
	RuleID     string     `json:"rule_id"`
	Confidence float64    `json:"confidence"`
	Strategy   Strategy   `json:"strategy"`
}

// Unresolved records a span the adapter could not remove safely. Any
// unresolved entry fails the job.
type Unresolved struct {
	Location   Location   `json:"location"`
	Provenance Provenance `json:"provenance"`
	RuleID     string     `json:"rule_id"`
	Reason     string     `json:"reason"`
}

// Finding is a residual match discovered by the verifier.
type Finding struct {
	Location Location `json:"location"`
	RuleID   string   `json:"rule_id"`
	Source   string   `json:"source"`
	Encoding string   `json:"encoding,omitempty"`
}

// Report describes the outcome of one redaction job. It never contains the
// matched text.
type Report struct {
	Format       string        `json:"format"`
	Neutralized  []Neutralized `json:"neutralized"`
	Unresolved   []Unresolved  `json:"unresolved,omitempty"`
	Findings     []Finding     `json:"findings,omitempty"`
	OutputDigest string        `json:"output_digest,omitempty"`
}

// Neutralize appends a neutralized entry for span inside unit
func (r *Report) Neutralize(unit ExtractedUnit, span SensitiveSpan, strategy Strategy, loc Location) {
	r.Neutralized = append(r.Neutralized, Neutralized{
		Location:   loc,
		Provenance: unit.Provenance,
		RuleID:     span.RuleID,
		Confidence: span.Confidence,
		Strategy:   strategy,
	})
}

// Unresolve appends an unresolved entry for span inside unit
func (r *Report) Unresolve(unit ExtractedUnit, span SensitiveSpan, loc Location, reason string) {
	r.Unresolved = append(r.Unresolved, Unresolved{
		Location:   loc,
		Provenance: unit.Provenance,
		RuleID:     span.RuleID,
		Reason:     reason,
	})
}

// NoMatches reports whether the job found nothing to redact
func (r *Report) NoMatches() bool {
	return len(r.Neutralized) == 0 && len(r.Unresolved) == 0
}

// UnresolvedLocations returns the locations of all unresolved spans
func (r *Report) UnresolvedLocations() []Location {
	locs := make([]Location, 0, len(r.Unresolved))
	for _, u := range r.Unresolved {
		locs = append(locs, u.Location)
	}
	return locs
}

// Verification is the result of re-scanning a candidate output.
type Verification struct {
	Findings []Finding
}

// Passed reports whether the output is clean
func (v Verification) Passed() bool {
	return len(v.Findings) == 0
}

// Locations returns the locations of all findings
func (v Verification) Locations() []Location {
	locs := make([]Location, 0, len(v.Findings))
	for _, f := range v.Findings {
		locs = append(locs, f.Location)
	}
	return locs
}
