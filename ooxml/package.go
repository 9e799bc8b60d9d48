package ooxml

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/tsawler/redactor/internal/filters"
	"github.com/tsawler/redactor/model"
)

// ContentTypes is the part listing the media type of every other part.
const ContentTypes = "[Content_Types].xml"

// ErrEncrypted is returned for password-protected packages, which are
// stored as compound files rather than zip archives.
var ErrEncrypted = errors.New("package is encrypted")

// cfbMagic starts every compound file.
var cfbMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// Package is an opened zip package. Parts that are never modified are
// copied to the output without recompression.
type Package struct {
	parts    []*Part
	byName   map[string]*Part
	modified bool
	budget   *filters.Budget
}

// Option configures how a package is opened.
type Option func(*Package)

// WithLimits bounds the inflated size of each part and of all parts read.
func WithLimits(l model.Limits) Option {
	return func(p *Package) {
		if l.MaxStream > 0 || l.MaxDecoded > 0 {
			p.budget = filters.NewBudget(l.MaxStream, l.MaxDecoded)
		}
	}
}

// Part is one entry of a package.
type Part struct {
	Name    string
	file    *zip.File
	tree    *Node
	dirty   bool
	removed bool
}

// Relationship is one entry of a part's relationship part.
type Relationship struct {
	ID       string
	Type     string
	Target   string // as written
	External bool
	Part     string // resolved part name for internal targets
}

// Is reports whether the relationship type ends with the given name, for
// example "header" or "metadata/thumbnail".
func (r Relationship) Is(kind string) bool {
	return strings.HasSuffix(r.Type, "/"+kind)
}

// Open reads a package from memory.
func Open(data []byte, opts ...Option) (*Package, error) {
	if bytes.HasPrefix(data, cfbMagic) {
		return nil, ErrEncrypted
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening ZIP archive: %w", err)
	}
	p := &Package{byName: make(map[string]*Part)}
	for _, opt := range opts {
		opt(p)
	}
	for _, f := range zr.File {
		name := strings.TrimPrefix(f.Name, "/")
		if _, dup := p.byName[name]; dup {
			return nil, fmt.Errorf("duplicate part: %s", name)
		}
		part := &Part{Name: name, file: f}
		p.parts = append(p.parts, part)
		p.byName[name] = part
	}
	if _, ok := p.byName[ContentTypes]; !ok {
		return nil, fmt.Errorf("missing required file: %s", ContentTypes)
	}
	return p, nil
}

// Has reports whether the package holds a part.
func (p *Package) Has(name string) bool {
	part, ok := p.byName[name]
	return ok && !part.removed
}

// Names returns the names of the parts in archive order.
func (p *Package) Names() []string {
	var out []string
	for _, part := range p.parts {
		if !part.removed {
			out = append(out, part.Name)
		}
	}
	return out
}

// Read returns the raw bytes of a part.
func (p *Package) Read(name string) ([]byte, error) {
	part, ok := p.byName[name]
	if !ok || part.removed {
		return nil, fmt.Errorf("file not found: %s", name)
	}
	if part.tree != nil {
		return part.tree.Bytes(), nil
	}
	rc, err := part.file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := filters.ReadAll(rc, p.budget)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return data, nil
}

// ErrLimit is returned when a part inflates past the package limits.
var ErrLimit = filters.ErrLimit

// Err returns ErrLimit once any part read ran over the package limits,
// even if the caller skipped that part.
func (p *Package) Err() error {
	return p.budget.Err()
}

// Tree returns the parsed tree of an XML part. The tree is cached, so
// edits made to it are what [Package.Write] serializes once the part is
// marked with [Package.Touch].
func (p *Package) Tree(name string) (*Node, error) {
	part, ok := p.byName[name]
	if !ok || part.removed {
		return nil, fmt.Errorf("file not found: %s", name)
	}
	if part.tree != nil {
		return part.tree, nil
	}
	data, err := p.Read(name)
	if err != nil {
		return nil, err
	}
	tree, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	part.tree = tree
	return tree, nil
}

// Touch marks a part as modified.
func (p *Package) Touch(name string) {
	if part, ok := p.byName[name]; ok {
		part.dirty = true
		p.modified = true
	}
}

// Modified reports whether any part was changed or removed.
func (p *Package) Modified() bool {
	return p.modified
}

// RelsName returns the relationship part of a source part; "" is the
// package itself.
func RelsName(source string) string {
	dir, file := path.Split(source)
	return dir + "_rels/" + file + ".rels"
}

// Resolve turns a relationship target into a part name.
func Resolve(source, target string) string {
	if strings.HasPrefix(target, "/") {
		return path.Clean(target[1:])
	}
	return path.Clean(path.Join(path.Dir(source), target))
}

// Rels returns the relationships of a source part. A missing relationship
// part yields none.
func (p *Package) Rels(source string) ([]Relationship, error) {
	name := RelsName(source)
	if !p.Has(name) {
		return nil, nil
	}
	tree, err := p.Tree(name)
	if err != nil {
		return nil, err
	}
	var out []Relationship
	for _, el := range tree.Root().Elements("Relationship") {
		r := Relationship{}
		r.ID, _ = el.Attr("Id")
		r.Type, _ = el.Attr("Type")
		r.Target, _ = el.Attr("Target")
		mode, _ := el.Attr("TargetMode")
		r.External = mode == "External"
		if !r.External {
			r.Part = Resolve(source, r.Target)
		}
		out = append(out, r)
	}
	return out, nil
}

// SetRelTarget rewrites the target of one relationship, keeping its id.
func (p *Package) SetRelTarget(source, id, target string) error {
	name := RelsName(source)
	tree, err := p.Tree(name)
	if err != nil {
		return err
	}
	for _, el := range tree.Root().Elements("Relationship") {
		if v, _ := el.Attr("Id"); v == id {
			el.SetAttr("Target", target)
			p.Touch(name)
			return nil
		}
	}
	return fmt.Errorf("relationship %s not found in %s", id, name)
}

// Remove deletes a part together with its own relationships, every
// relationship pointing at it and its content type override.
func (p *Package) Remove(name string) {
	part, ok := p.byName[name]
	if !ok || part.removed {
		return
	}
	part.removed = true
	p.modified = true
	if rels, ok := p.byName[RelsName(name)]; ok {
		rels.removed = true
	}

	for _, other := range p.parts {
		if other.removed || !strings.HasSuffix(other.Name, ".rels") {
			continue
		}
		source := relsSource(other.Name)
		tree, err := p.Tree(other.Name)
		if err != nil {
			continue
		}
		root := tree.Root()
		for _, el := range root.Elements("Relationship") {
			if mode, _ := el.Attr("TargetMode"); mode == "External" {
				continue
			}
			if target, _ := el.Attr("Target"); Resolve(source, target) == name {
				root.Remove(el)
				p.Touch(other.Name)
			}
		}
	}

	if tree, err := p.Tree(ContentTypes); err == nil {
		root := tree.Root()
		for _, el := range root.Elements("Override") {
			if pn, _ := el.Attr("PartName"); strings.TrimPrefix(pn, "/") == name {
				root.Remove(el)
				p.Touch(ContentTypes)
			}
		}
	}
}

// relsSource is the inverse of RelsName.
func relsSource(rels string) string {
	dir, file := path.Split(rels)
	dir = strings.TrimSuffix(dir, "_rels/")
	return dir + strings.TrimSuffix(file, ".rels")
}

// removeThumbnails drops the package thumbnail, which renders the first
// page of the original document.
func (p *Package) removeThumbnails() {
	var drop []string
	if rels, err := p.Rels(""); err == nil {
		for _, r := range rels {
			if r.Is("metadata/thumbnail") && !r.External {
				drop = append(drop, r.Part)
			}
		}
	}
	for _, part := range p.parts {
		if strings.HasPrefix(part.Name, "docProps/thumbnail.") {
			drop = append(drop, part.Name)
		}
	}
	for _, name := range drop {
		p.Remove(name)
	}
}

// Write serializes the package. Unmodified packages are not rewritten by
// callers; once anything changed the thumbnail is dropped as well.
func (p *Package) Write() ([]byte, error) {
	if p.modified {
		p.removeThumbnails()
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, part := range p.parts {
		if part.removed {
			continue
		}
		if !part.dirty || part.tree == nil {
			if err := zw.Copy(part.file); err != nil {
				return nil, fmt.Errorf("copying %s: %w", part.Name, err)
			}
			continue
		}
		fh := part.file.FileHeader
		fh.Method = zip.Deflate
		w, err := zw.CreateHeader(&fh)
		if err != nil {
			return nil, fmt.Errorf("writing %s: %w", part.Name, err)
		}
		if _, err := w.Write(part.tree.Bytes()); err != nil {
			return nil, fmt.Errorf("writing %s: %w", part.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
