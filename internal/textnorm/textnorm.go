// Package textnorm canonicalizes text for matching while keeping a map from
// every byte of the canonical form back to the original string.
package textnorm

import (
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Options selects the transformations applied before matching.
type Options struct {
	// NFKC applies Unicode compatibility composition, so full-width digits,
	// ligatures and similar look-alikes match their plain forms.
	NFKC bool
	// Fold applies Unicode case folding.
	Fold bool
}

// Identity reports whether no transformation is applied.
func (o Options) Identity() bool {
	return !o.NFKC && !o.Fold
}

// Mapped is a canonical string plus its offset map.
type Mapped struct {
	Text string

	// start[i] and end[i] bound the source segment that produced byte i of
	// Text. Both are nil when Text is the unmodified source.
	start  []int
	end    []int
	srcLen int
}

// Apply canonicalizes s according to opts. Normalization works segment by
// segment (NFKC boundaries, or runes when only folding), so a match in the
// output always maps back to whole source segments.
func Apply(s string, opts Options) Mapped {
	if opts.Identity() {
		return Mapped{Text: s}
	}

	var caser cases.Caser
	if opts.Fold {
		caser = cases.Fold()
	}

	out := make([]byte, 0, len(s))
	start := make([]int, 0, len(s))
	end := make([]int, 0, len(s))

	for i := 0; i < len(s); {
		n := segmentLen(s[i:], opts.NFKC)
		seg := s[i : i+n]
		if opts.NFKC {
			seg = norm.NFKC.String(seg)
		}
		if opts.Fold {
			seg = caser.String(seg)
		}
		for j := 0; j < len(seg); j++ {
			start = append(start, i)
			end = append(end, i+n)
		}
		out = append(out, seg...)
		i += n
	}

	return Mapped{Text: string(out), start: start, end: end, srcLen: len(s)}
}

func segmentLen(s string, nfkc bool) int {
	if nfkc {
		if n := norm.NFKC.NextBoundaryInString(s, true); n > 0 {
			return n
		}
	}
	_, n := utf8.DecodeRuneInString(s)
	if n < 1 {
		n = 1
	}
	return n
}

// Original maps the byte range [from, to) of the canonical text back to the
// smallest source range containing every segment it touches.
func (m Mapped) Original(from, to int) (int, int) {
	if m.start == nil {
		return from, to
	}
	if from >= len(m.start) || to <= from {
		return m.srcLen, m.srcLen
	}
	if to > len(m.end) {
		to = len(m.end)
	}
	return m.start[from], m.end[to-1]
}

// String canonicalizes s without keeping the offset map.
func String(s string, opts Options) string {
	if opts.Identity() {
		return s
	}
	if opts.NFKC {
		s = norm.NFKC.String(s)
	}
	if opts.Fold {
		s = cases.Fold().String(s)
	}
	return s
}
