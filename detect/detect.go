// Package detect finds sensitive spans in extracted text.
//
// Detection is deterministic: identical units and rule sets always yield
// identical spans in identical order. Each rule sees the unit text
// canonicalized the way the rule asks for (NFKC, case folding); matches are
// mapped back to byte offsets in the original text, so adapters can locate
// them in the source structure.
package detect

import (
	"sort"

	"github.com/tsawler/redactor/internal/textnorm"
	"github.com/tsawler/redactor/model"
	"github.com/tsawler/redactor/rules"
)

// candidate is a match before overlap resolution.
type candidate struct {
	span  model.SensitiveSpan
	order int
}

// Detect scans units with every rule in rs and returns the resolved spans,
// sorted by unit order and start offset. An empty result is a normal
// outcome.
func Detect(units []model.ExtractedUnit, rs *rules.RuleSet) []model.SensitiveSpan {
	var out []model.SensitiveSpan
	for _, u := range units {
		out = append(out, DetectUnit(u, rs)...)
	}
	return out
}

// DetectUnit scans a single unit.
func DetectUnit(u model.ExtractedUnit, rs *rules.RuleSet) []model.SensitiveSpan {
	if u.Text == "" || rs.Len() == 0 {
		return nil
	}

	canon := make(map[textnorm.Options]textnorm.Mapped, 2)
	var cands []candidate

	for _, r := range rs.Rules() {
		m, ok := canon[r.Options]
		if !ok {
			m = textnorm.Apply(u.Text, r.Options)
			canon[r.Options] = m
		}
		for _, loc := range r.FindAll(m.Text) {
			start, end := m.Original(loc[0], loc[1])
			if end <= start {
				continue
			}
			cands = append(cands, candidate{
				span: model.SensitiveSpan{
					Unit:       u.ID,
					Start:      start,
					End:        end,
					RuleID:     r.ID,
					Confidence: r.Confidence,
					Text:       u.Text[start:end],
				},
				order: r.Index(),
			})
		}
	}

	return resolve(cands)
}

// resolve keeps a maximal set of non-overlapping spans, choosing greedily by
// highest confidence, then longest match, then earliest start, then rule
// order. Losing spans are discarded, never merged.
func resolve(cands []candidate) []model.SensitiveSpan {
	if len(cands) == 0 {
		return nil
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.span.Confidence != b.span.Confidence {
			return a.span.Confidence > b.span.Confidence
		}
		if a.span.Len() != b.span.Len() {
			return a.span.Len() > b.span.Len()
		}
		if a.span.Start != b.span.Start {
			return a.span.Start < b.span.Start
		}
		return a.order < b.order
	})

	var kept []model.SensitiveSpan
	for _, c := range cands {
		overlaps := false
		for _, k := range kept {
			if c.span.Overlaps(k) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c.span)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}
