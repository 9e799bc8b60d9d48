package model

import "sort"

// Plan is the resolved set of spans to neutralize for one job, indexed by
// unit and grouped by provenance so adapters can pick a strategy per tag.
type Plan struct {
	units  map[string]ExtractedUnit
	spans  []SensitiveSpan
	byUnit map[string][]SensitiveSpan
	byProv map[Provenance][]SensitiveSpan
}

// NewPlan builds a plan from the units an adapter extracted and the spans
// the detector produced for them. Spans referring to unknown units are
// ignored.
func NewPlan(units []ExtractedUnit, spans []SensitiveSpan) *Plan {
	p := &Plan{
		units:  make(map[string]ExtractedUnit, len(units)),
		byUnit: make(map[string][]SensitiveSpan),
		byProv: make(map[Provenance][]SensitiveSpan),
	}
	for _, u := range units {
		p.units[u.ID] = u
	}
	for _, s := range spans {
		u, ok := p.units[s.Unit]
		if !ok {
			continue
		}
		p.spans = append(p.spans, s)
		p.byUnit[s.Unit] = append(p.byUnit[s.Unit], s)
		p.byProv[u.Provenance] = append(p.byProv[u.Provenance], s)
	}
	for _, list := range p.byUnit {
		sort.Slice(list, func(i, j int) bool { return list[i].Start < list[j].Start })
	}
	return p
}

// Empty reports whether there is nothing to neutralize.
func (p *Plan) Empty() bool {
	return p == nil || len(p.spans) == 0
}

// Len returns the number of spans.
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.spans)
}

// Spans returns all spans in detector order.
func (p *Plan) Spans() []SensitiveSpan {
	if p == nil {
		return nil
	}
	return p.spans
}

// Unit returns the unit with the given id.
func (p *Plan) Unit(id string) (ExtractedUnit, bool) {
	if p == nil {
		return ExtractedUnit{}, false
	}
	u, ok := p.units[id]
	return u, ok
}

// SpansFor returns the spans of one unit sorted by start offset.
func (p *Plan) SpansFor(unitID string) []SensitiveSpan {
	if p == nil {
		return nil
	}
	return p.byUnit[unitID]
}

// ByProvenance returns the spans whose unit carries the given tag.
func (p *Plan) ByProvenance(tag Provenance) []SensitiveSpan {
	if p == nil {
		return nil
	}
	return p.byProv[tag]
}

// UnitIDs returns the ids of all units with at least one span, sorted.
func (p *Plan) UnitIDs() []string {
	if p == nil {
		return nil
	}
	ids := make([]string, 0, len(p.byUnit))
	for id := range p.byUnit {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Literals returns the distinct matched texts, sorted.
func (p *Plan) Literals() []string {
	if p == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, s := range p.spans {
		if s.Text == "" || seen[s.Text] {
			continue
		}
		seen[s.Text] = true
		out = append(out, s.Text)
	}
	sort.Strings(out)
	return out
}
