package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

// ============================================================================
// Geometry Tests
// ============================================================================

func TestRectFromPoints(t *testing.T) {
	tests := []struct {
		name string
		pts  []Point
		want Rect
	}{
		{"normal", []Point{{10, 20}, {50, 70}}, Rect{10, 20, 40, 50}},
		{"reversed", []Point{{50, 70}, {10, 20}}, Rect{10, 20, 40, 50}},
		{"single", []Point{{10, 10}}, Rect{10, 10, 0, 0}},
		{"none", nil, Rect{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RectFromPoints(tt.pts...); got != tt.want {
				t.Errorf("RectFromPoints() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRectIntersects(t *testing.T) {
	base := Rect{0, 0, 10, 10}
	tests := []struct {
		name  string
		other Rect
		want  bool
	}{
		{"overlap", Rect{5, 5, 10, 10}, true},
		{"inside", Rect{2, 2, 2, 2}, true},
		{"touching edge", Rect{10, 0, 5, 5}, false},
		{"apart", Rect{20, 20, 5, 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Intersects(tt.other); got != tt.want {
				t.Errorf("Intersects() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRectUnionWithEmpty(t *testing.T) {
	r := Rect{1, 2, 3, 4}
	if got := (Rect{}).Union(r); got != r {
		t.Errorf("empty.Union() = %+v, want %+v", got, r)
	}
	if got := r.Union(Rect{5, 6, 1, 1}); got != (Rect{1, 2, 5, 5}) {
		t.Errorf("Union() = %+v", got)
	}
}

func TestRectExpand(t *testing.T) {
	got := Rect{10, 10, 20, 20}.Expand(2)
	want := Rect{8, 8, 24, 24}
	if got != want {
		t.Errorf("Expand() = %+v, want %+v", got, want)
	}
	if !got.Contains(Rect{10, 10, 20, 20}) {
		t.Error("expanded rect should contain the original")
	}
}

func TestMatrixTransformRect(t *testing.T) {
	m := Scale(2, 3).Multiply(Translate(10, 20))
	got := m.TransformRect(Rect{1, 1, 1, 1})
	want := Rect{12, 23, 2, 3}
	if math.Abs(got.X-want.X) > 1e-9 || math.Abs(got.Y-want.Y) > 1e-9 ||
		math.Abs(got.Width-want.Width) > 1e-9 || math.Abs(got.Height-want.Height) > 1e-9 {
		t.Errorf("TransformRect() = %+v, want %+v", got, want)
	}
}

func TestMatrixInvert(t *testing.T) {
	m := Matrix{2, 0, 0, 4, 10, 20}
	inv, ok := m.Invert()
	if !ok {
		t.Fatal("Invert() reported singular matrix")
	}
	p := m.Multiply(inv).Transform(Point{7, 9})
	if math.Abs(p.X-7) > 1e-9 || math.Abs(p.Y-9) > 1e-9 {
		t.Errorf("m * inv(m) is not identity: %+v", p)
	}
	if _, ok := (Matrix{0, 0, 0, 0, 1, 1}).Invert(); ok {
		t.Error("Invert() of singular matrix should fail")
	}
}

// ============================================================================
// Unit / Plan Tests
// ============================================================================

func TestSpanRect(t *testing.T) {
	u := ExtractedUnit{
		ID:   "u1",
		Text: "aé b",
		Boxes: []Rect{
			{0, 0, 5, 10},
			{5, 0, 5, 10},
			{10, 0, 3, 10},
			{13, 0, 5, 10},
		},
	}
	// "é" is two bytes, so byte range [1,3) is the second rune.
	got, ok := u.SpanRect(1, 3)
	if !ok || got != (Rect{5, 0, 5, 10}) {
		t.Errorf("SpanRect(1,3) = %+v, %v", got, ok)
	}
	got, ok = u.SpanRect(0, len(u.Text))
	if !ok || got != (Rect{0, 0, 18, 10}) {
		t.Errorf("SpanRect(all) = %+v, %v", got, ok)
	}
}

func TestSpanRectFallsBackToLocation(t *testing.T) {
	r := Rect{1, 1, 2, 2}
	u := ExtractedUnit{ID: "u", Text: "abc", Location: Location{Rect: &r}}
	got, ok := u.SpanRect(0, 1)
	if !ok || got != r {
		t.Errorf("SpanRect() = %+v, %v", got, ok)
	}
	if _, ok := (ExtractedUnit{Text: "abc"}).SpanRect(0, 1); ok {
		t.Error("SpanRect() without geometry should report false")
	}
}

func TestPlanGrouping(t *testing.T) {
	units := []ExtractedUnit{
		{ID: "a", Text: "secret one", Provenance: Primary},
		{ID: "b", Text: "secret two", Provenance: Metadata},
	}
	spans := []SensitiveSpan{
		{Unit: "a", Start: 7, End: 10, RuleID: "r", Text: "one"},
		{Unit: "a", Start: 0, End: 6, RuleID: "r", Text: "secret"},
		{Unit: "b", Start: 0, End: 6, RuleID: "r", Text: "secret"},
		{Unit: "missing", Start: 0, End: 1, RuleID: "r", Text: "x"},
	}
	p := NewPlan(units, spans)

	if p.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", p.Len())
	}
	if got := p.SpansFor("a"); len(got) != 2 || got[0].Start != 0 {
		t.Errorf("SpansFor(a) not sorted: %+v", got)
	}
	if got := len(p.ByProvenance(Metadata)); got != 1 {
		t.Errorf("ByProvenance(Metadata) = %d spans, want 1", got)
	}
	lits := p.Literals()
	if strings.Join(lits, ",") != "one,secret" {
		t.Errorf("Literals() = %v", lits)
	}
	if ids := p.UnitIDs(); len(ids) != 2 || ids[0] != "a" {
		t.Errorf("UnitIDs() = %v", ids)
	}
}

func TestEmptyPlan(t *testing.T) {
	var p *Plan
	if !p.Empty() {
		t.Error("nil plan should be empty")
	}
	if !NewPlan(nil, nil).Empty() {
		t.Error("plan without spans should be empty")
	}
}

func TestProvenanceString(t *testing.T) {
	if Primary.String() != "primary" || SharedString.String() != "shared-string" {
		t.Errorf("unexpected names: %s %s", Primary, SharedString)
	}
	if !strings.HasPrefix(Provenance(99).String(), "provenance(") {
		t.Errorf("out of range provenance = %s", Provenance(99))
	}
}

func TestProvenanceTextRoundTrip(t *testing.T) {
	text, err := TrackedDelete.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	var p Provenance
	if err := p.UnmarshalText(text); err != nil || p != TrackedDelete {
		t.Errorf("UnmarshalText(%q) = %v, %v", text, p, err)
	}
	if err := p.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("expected error for unknown name")
	}
}

// ============================================================================
// Error Tests
// ============================================================================

func TestErrorIsMatchesKind(t *testing.T) {
	err := NewError(PartialRedactionFailure, "apply", "formula dependency", nil, Location{Sheet: "Sheet1", Cell: "C1"})
	wrapped := fmt.Errorf("job 7: %w", err)

	if !errors.Is(wrapped, ErrPartialRedactionFailure) {
		t.Error("errors.Is should match the sentinel of the same kind")
	}
	if errors.Is(wrapped, ErrCorruptInput) {
		t.Error("errors.Is should not match a different kind")
	}
	if KindOf(wrapped) != PartialRedactionFailure {
		t.Errorf("KindOf() = %v", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("KindOf(plain error) should be KindUnknown")
	}
}

func TestErrorMessageOmitsCause(t *testing.T) {
	cause := errors.New("unexpected keyword: 123-45-6789")
	err := NewError(CorruptInput, "parse", "", cause)
	if strings.Contains(err.Error(), "6789") {
		t.Errorf("Error() leaked cause text: %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("cause should stay reachable through Unwrap")
	}
}

func TestReportNoMatches(t *testing.T) {
	var r Report
	if !r.NoMatches() {
		t.Error("empty report should have no matches")
	}
	r.Neutralize(ExtractedUnit{Provenance: Metadata}, SensitiveSpan{RuleID: "x"}, StrategyDelete, Location{Field: "Author"})
	if r.NoMatches() {
		t.Error("report with a neutralized span should not be empty")
	}
	if r.Neutralized[0].Provenance != Metadata {
		t.Errorf("provenance = %v", r.Neutralized[0].Provenance)
	}
}
