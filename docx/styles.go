package docx

import (
	"encoding/xml"

	"github.com/tsawler/redactor/ooxml"
)

// stylesXML represents the structure of word/styles.xml
type stylesXML struct {
	XMLName     xml.Name       `xml:"styles"`
	DocDefaults docDefaultsXML `xml:"docDefaults"`
	Styles      []styleDefXML  `xml:"style"`
}

// docDefaultsXML represents document default styles.
type docDefaultsXML struct {
	RPrDefault struct {
		RPr runPropsXML `xml:"rPr"`
	} `xml:"rPrDefault"`
}

// styleDefXML represents a style definition.
type styleDefXML struct {
	Type    string      `xml:"type,attr"` // paragraph, character, table, numbering
	StyleID string      `xml:"styleId,attr"`
	BasedOn valXML      `xml:"basedOn"`
	RPr     runPropsXML `xml:"rPr"`
}

// runPropsXML holds the run properties that affect visibility.
type runPropsXML struct {
	Vanish *valXML `xml:"vanish"`
}

type valXML struct {
	Val string `xml:"val,attr"`
}

// hidden reports whether the properties set vanish, and whether they say
// anything about it at all.
func (p runPropsXML) hidden() (bool, bool) {
	if p.Vanish == nil {
		return false, false
	}
	return onOff(p.Vanish.Val), true
}

// onOff reads an ST_OnOff value; a missing value means on.
func onOff(v string) bool {
	switch v {
	case "0", "false", "off":
		return false
	}
	return true
}

// styleResolver resolves the hidden property of styles through their
// basedOn chains.
type styleResolver struct {
	styles   map[string]*styleDefXML
	fallback bool // document default
	resolved map[string]resolvedStyle
}

type resolvedStyle struct {
	hidden, set bool
}

func newStyleResolver(data []byte) *styleResolver {
	sr := &styleResolver{
		styles:   make(map[string]*styleDefXML),
		resolved: make(map[string]resolvedStyle),
	}
	if data == nil {
		return sr
	}
	var styles stylesXML
	if err := xml.Unmarshal(data, &styles); err != nil {
		return sr
	}
	for i := range styles.Styles {
		style := &styles.Styles[i]
		sr.styles[style.StyleID] = style
	}
	sr.fallback, _ = styles.DocDefaults.RPrDefault.RPr.hidden()
	return sr
}

// hidden reports whether text in the given style is hidden, falling back
// to the document defaults.
func (sr *styleResolver) hidden(styleID string) bool {
	if h, set := sr.lookup(styleID); set {
		return h
	}
	return sr.fallback
}

// lookup walks the basedOn chain of a style. The most derived style that
// mentions vanish decides; set is false when none does.
func (sr *styleResolver) lookup(styleID string) (h, set bool) {
	if styleID == "" {
		return false, false
	}
	if r, ok := sr.resolved[styleID]; ok {
		return r.hidden, r.set
	}

	visited := make(map[string]bool)
	for current := styleID; current != "" && !visited[current]; {
		visited[current] = true
		def, ok := sr.styles[current]
		if !ok {
			break
		}
		if h, set = def.RPr.hidden(); set {
			break
		}
		current = def.BasedOn.Val
	}

	sr.resolved[styleID] = resolvedStyle{hidden: h, set: set}
	return h, set
}

// propsHidden resolves a run or paragraph mark property element: its own
// vanish setting first, then its style.
func (sr *styleResolver) propsHidden(rPr *ooxml.Node, styleKey string) (bool, bool) {
	if rPr == nil {
		return false, false
	}
	if v := rPr.Child("vanish"); v != nil {
		val, _ := v.Attr("val")
		return onOff(val), true
	}
	if st := rPr.Child(styleKey); st != nil {
		id, _ := st.Attr("val")
		return sr.lookup(id)
	}
	return false, false
}
