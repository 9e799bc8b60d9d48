package ooxml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// NodeType identifies the kind of a node in a parsed part.
type NodeType int

const (
	DocumentNode NodeType = iota
	ElementNode
	TextNode
	CommentNode
	ProcInstNode
	DirectiveNode
)

// Attr is an attribute with its qualified name as written ("w:val").
type Attr struct {
	Name  string
	Value string
}

// Node is one node of a part's XML tree. Names keep the prefixes found in
// the source, so a tree serializes back to equivalent markup without any
// namespace rewriting.
type Node struct {
	Type     NodeType
	Name     string // qualified element name, or the processing instruction target
	Attrs    []Attr
	Data     string // character data, comment, instruction or directive text
	Children []*Node
	Parent   *Node
}

// Parse reads an XML document into a tree.
func Parse(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	root := &Node{Type: DocumentNode}
	cur := root
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing XML: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Type: ElementNode, Name: qualified(t.Name)}
			for _, a := range t.Attr {
				n.Attrs = append(n.Attrs, Attr{Name: qualified(a.Name), Value: a.Value})
			}
			cur.Append(n)
			cur = n
		case xml.EndElement:
			if cur.Parent == nil || cur.Name != qualified(t.Name) {
				return nil, fmt.Errorf("parsing XML: unexpected </%s>", qualified(t.Name))
			}
			cur = cur.Parent
		case xml.CharData:
			cur.Append(&Node{Type: TextNode, Data: string(t)})
		case xml.Comment:
			cur.Append(&Node{Type: CommentNode, Data: string(t)})
		case xml.ProcInst:
			cur.Append(&Node{Type: ProcInstNode, Name: t.Target, Data: string(t.Inst)})
		case xml.Directive:
			cur.Append(&Node{Type: DirectiveNode, Data: string(t)})
		}
	}
	if cur != root {
		return nil, fmt.Errorf("parsing XML: unclosed <%s>", cur.Name)
	}
	return root, nil
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// Local returns a qualified name without its prefix.
func Local(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Prefix returns the prefix of a qualified name, or "".
func Prefix(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i]
	}
	return ""
}

// Is reports whether n is an element with the given local name.
func (n *Node) Is(local string) bool {
	return n != nil && n.Type == ElementNode && Local(n.Name) == local
}

// Root returns the document element of a parsed tree.
func (n *Node) Root() *Node {
	for _, c := range n.Children {
		if c.Type == ElementNode {
			return c
		}
	}
	return nil
}

// Append adds child as the last child of n.
func (n *Node) Append(child *Node) {
	child.Parent = n
	n.Children = append(n.Children, child)
}

// Insert adds child before the child at index i.
func (n *Node) Insert(i int, child *Node) {
	child.Parent = n
	n.Children = append(n.Children, nil)
	copy(n.Children[i+1:], n.Children[i:])
	n.Children[i] = child
}

// Remove detaches child from n.
func (n *Node) Remove(child *Node) {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			child.Parent = nil
			return
		}
	}
}

// NewElement creates an element that uses the same prefix as sibling, so
// it lands in the sibling's namespace.
func NewElement(sibling *Node, local string) *Node {
	name := local
	if p := Prefix(sibling.Name); p != "" {
		name = p + ":" + local
	}
	return &Node{Type: ElementNode, Name: name}
}

// Attr returns the value of the attribute with the given local name.
func (n *Node) Attr(local string) (string, bool) {
	for _, a := range n.Attrs {
		if Local(a.Name) == local && Prefix(a.Name) != "xmlns" {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr replaces the value of the attribute with the given local name,
// or adds it under name when it is missing.
func (n *Node) SetAttr(name, value string) {
	local := Local(name)
	for i, a := range n.Attrs {
		if Local(a.Name) == local && Prefix(a.Name) != "xmlns" {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// RemoveAttr deletes the attribute with the given local name.
func (n *Node) RemoveAttr(local string) {
	for i, a := range n.Attrs {
		if Local(a.Name) == local && Prefix(a.Name) != "xmlns" {
			n.Attrs = append(n.Attrs[:i], n.Attrs[i+1:]...)
			return
		}
	}
}

// Child returns the first child element with the given local name.
func (n *Node) Child(local string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Is(local) {
			return c
		}
	}
	return nil
}

// Elements returns the child elements with the given local name.
func (n *Node) Elements(local string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Is(local) {
			out = append(out, c)
		}
	}
	return out
}

// Walk visits n and its descendants in document order. Returning false
// from fn skips the children of the visited node.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Descendants returns every element below n with the given local name.
func (n *Node) Descendants(local string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		c.Walk(func(d *Node) bool {
			if d.Is(local) {
				out = append(out, d)
			}
			return true
		})
	}
	return out
}

// Text returns the character data of n's direct text children.
func (n *Node) Text() string {
	var b strings.Builder
	for _, c := range n.Children {
		if c.Type == TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// SetText replaces the text children of n with a single text node.
func (n *Node) SetText(s string) {
	kept := n.Children[:0]
	for _, c := range n.Children {
		if c.Type != TextNode {
			kept = append(kept, c)
		}
	}
	n.Children = kept
	if s != "" {
		n.Append(&Node{Type: TextNode, Data: s})
	}
}

// Bytes serializes the tree.
func (n *Node) Bytes() []byte {
	var buf bytes.Buffer
	n.write(&buf)
	return buf.Bytes()
}

func (n *Node) write(buf *bytes.Buffer) {
	switch n.Type {
	case DocumentNode:
		for _, c := range n.Children {
			c.write(buf)
		}
	case ElementNode:
		buf.WriteByte('<')
		buf.WriteString(n.Name)
		for _, a := range n.Attrs {
			buf.WriteByte(' ')
			buf.WriteString(a.Name)
			buf.WriteString(`="`)
			escape(buf, a.Value, true)
			buf.WriteByte('"')
		}
		if len(n.Children) == 0 {
			buf.WriteString("/>")
			return
		}
		buf.WriteByte('>')
		for _, c := range n.Children {
			c.write(buf)
		}
		buf.WriteString("</")
		buf.WriteString(n.Name)
		buf.WriteByte('>')
	case TextNode:
		escape(buf, n.Data, false)
	case CommentNode:
		buf.WriteString("<!--")
		buf.WriteString(n.Data)
		buf.WriteString("-->")
	case ProcInstNode:
		buf.WriteString("<?")
		buf.WriteString(n.Name)
		if n.Data != "" {
			buf.WriteByte(' ')
			buf.WriteString(n.Data)
		}
		buf.WriteString("?>")
	case DirectiveNode:
		buf.WriteString("<!")
		buf.WriteString(n.Data)
		buf.WriteByte('>')
	}
}

// escape writes s as character data, or as an attribute value when attr
// is set. Whitespace in text is written as is.
func escape(buf *bytes.Buffer, s string, attr bool) {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '&':
			buf.WriteString("&amp;")
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		case '\r':
			buf.WriteString("&#xD;")
		case '"', '\n', '\t':
			if !attr {
				buf.WriteByte(c)
				continue
			}
			switch c {
			case '"':
				buf.WriteString("&quot;")
			case '\n':
				buf.WriteString("&#xA;")
			default:
				buf.WriteString("&#x9;")
			}
		default:
			buf.WriteByte(c)
		}
	}
}
