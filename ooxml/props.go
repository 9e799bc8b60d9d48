package ooxml

import (
	"fmt"
	"strings"

	"github.com/tsawler/redactor/model"
)

// propertyParts maps the document property parts to their unit id prefix.
var propertyParts = []struct{ name, id string }{
	{"docProps/core.xml", "core"},
	{"docProps/app.xml", "app"},
	{"docProps/custom.xml", "custom"},
}

// Property is one document property value.
type Property struct {
	Unit model.ExtractedUnit
	part string
	node *Node
}

// Properties extracts every non-empty property value from the core,
// extended and custom property parts. Custom properties are named by
// their name attribute, the others by element name.
func (p *Package) Properties() []Property {
	var out []Property
	for _, pp := range propertyParts {
		if !p.Has(pp.name) {
			continue
		}
		tree, err := p.Tree(pp.name)
		if err != nil {
			continue
		}
		n := 0
		tree.Root().Walk(func(el *Node) bool {
			if el.Type != ElementNode {
				return true
			}
			text := strings.TrimSpace(el.Text())
			if text == "" || hasElements(el) {
				return true
			}
			field := Local(el.Name)
			if prop := propertyOf(el); prop != "" {
				field = prop
			}
			out = append(out, Property{
				Unit: model.ExtractedUnit{
					ID:         fmt.Sprintf("props/%s/%d", pp.id, n),
					Text:       el.Text(),
					Provenance: model.Metadata,
					Location:   model.Location{Part: pp.name, Field: field},
				},
				part: pp.name,
				node: el,
			})
			n++
			return true
		})
	}
	return out
}

func hasElements(n *Node) bool {
	for _, c := range n.Children {
		if c.Type == ElementNode {
			return true
		}
	}
	return false
}

// propertyOf returns the name of the custom property holding a value.
func propertyOf(n *Node) string {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Is("property") {
			name, _ := p.Attr("name")
			return name
		}
	}
	return ""
}

// Clear deletes a property value.
func (p *Package) Clear(prop Property) {
	prop.node.SetText("")
	p.Touch(prop.part)
}
