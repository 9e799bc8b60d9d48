package raster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/tsawler/redactor/internal/filters"
	"github.com/tsawler/redactor/internal/xmp"
)

var errTruncated = errors.New("metadata structure truncated")

// field is one text value stored beside the pixels.
type field struct {
	part string // container structure: tEXt, COM, EXIF, IPTC, XMP, GIF
	name string // fixed tag name; empty when the container's key is free text
	text string
}

// metadata is everything an image stores besides its pixels.
type metadata struct {
	fields      []field
	orientation int
	trailer     []byte // bytes after the format's end marker
	budget      *filters.Budget
}

func (m *metadata) add(f field) {
	f.text = strings.TrimSpace(f.text)
	if f.text != "" {
		m.fields = append(m.fields, f)
	}
}

// readMetadata walks the container structure of an image that has already
// decoded successfully. Compressed text chunks inflate within budget.
func readMetadata(name string, data []byte, budget *filters.Budget) (*metadata, error) {
	m := &metadata{budget: budget}
	var err error
	switch name {
	case "png":
		err = readPNG(data, m)
	case "jpeg":
		err = readJPEG(data, m)
	case "gif":
		err = readGIF(data, m)
	case "tiff":
		err = readTIFF(data, "TIFF", m)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// PNG

const pngXMPKeyword = "XML:com.adobe.xmp"

func readPNG(data []byte, m *metadata) error {
	p := 8
	for p+8 <= len(data) {
		n := int(binary.BigEndian.Uint32(data[p:]))
		typ := string(data[p+4 : p+8])
		if n < 0 || p+12+n > len(data) {
			return errTruncated
		}
		body := data[p+8 : p+8+n]
		p += 12 + n

		switch typ {
		case "tEXt":
			k, v, _ := bytes.Cut(body, []byte{0})
			m.add(field{part: typ, text: joinText(latin1(k), latin1(v))})
		case "zTXt":
			k, rest, _ := bytes.Cut(body, []byte{0})
			if len(rest) < 1 {
				m.add(field{part: typ, text: latin1(k)})
				continue
			}
			v, err := filters.FlateDecode(rest[1:], nil, m.budget)
			if err != nil {
				return fmt.Errorf("zTXt chunk: %w", err)
			}
			m.add(field{part: typ, text: joinText(latin1(k), latin1(v))})
		case "iTXt":
			f, err := internationalText(body, m.budget)
			if err != nil {
				return err
			}
			m.add(f)
		case "eXIf":
			if err := readTIFF(body, "EXIF", m); err != nil {
				return err
			}
		case "IEND":
			m.trailer = data[p:]
			return nil
		}
	}
	return nil
}

// internationalText parses an iTXt chunk: keyword, compression flag and
// method, language tag, translated keyword, text.
func internationalText(body []byte, budget *filters.Budget) (field, error) {
	k, rest, ok := bytes.Cut(body, []byte{0})
	if !ok || len(rest) < 2 {
		return field{part: "iTXt", text: latin1(k)}, nil
	}
	compressed := rest[0] == 1
	rest = rest[2:]
	_, rest, _ = bytes.Cut(rest, []byte{0}) // language tag
	translated, text, _ := bytes.Cut(rest, []byte{0})
	if compressed {
		v, err := filters.FlateDecode(text, nil, budget)
		if err != nil {
			return field{}, fmt.Errorf("iTXt chunk: %w", err)
		}
		text = v
	}
	if string(k) == pngXMPKeyword {
		return field{part: "XMP", text: xmp.Text(text)}, nil
	}
	return field{part: "iTXt", text: joinText(latin1(k), decodeText(translated), decodeText(text))}, nil
}

// JPEG

var (
	exifHeader      = []byte("Exif\x00\x00")
	xmpHeader       = []byte("http://ns.adobe.com/xap/1.0/\x00")
	photoshopHeader = []byte("Photoshop 3.0\x00")
)

func readJPEG(data []byte, m *metadata) error {
	p := 2
	for p+1 < len(data) {
		if data[p] != 0xFF {
			return errors.New("JPEG segment marker expected")
		}
		marker := data[p+1]
		switch {
		case marker == 0xFF:
			p++
			continue
		case marker == 0xD9:
			m.trailer = data[p+2:]
			return nil
		case marker == 0x01 || marker == 0xD8 || (marker >= 0xD0 && marker <= 0xD7):
			p += 2
			continue
		}
		if p+4 > len(data) {
			return errTruncated
		}
		n := int(binary.BigEndian.Uint16(data[p+2:]))
		if n < 2 || p+2+n > len(data) {
			return errTruncated
		}
		body := data[p+4 : p+2+n]
		p += 2 + n

		switch {
		case marker == 0xFE:
			m.add(field{part: "COM", text: decodeText(body)})
		case marker == 0xE1 && bytes.HasPrefix(body, exifHeader):
			if err := readTIFF(body[len(exifHeader):], "EXIF", m); err != nil {
				return err
			}
		case marker == 0xE1 && bytes.HasPrefix(body, xmpHeader):
			m.add(field{part: "XMP", text: xmp.Text(body[len(xmpHeader):])})
		case marker == 0xED && bytes.HasPrefix(body, photoshopHeader):
			readPhotoshop(body[len(photoshopHeader):], m)
		case marker == 0xDA:
			p = skipEntropy(data, p)
		}
	}
	return nil
}

// skipEntropy returns the offset of the next marker after scan data.
func skipEntropy(data []byte, p int) int {
	for p+1 < len(data) {
		if data[p] == 0xFF {
			next := data[p+1]
			if next != 0x00 && next != 0xFF && (next < 0xD0 || next > 0xD7) {
				return p
			}
		}
		p++
	}
	return len(data)
}

// readPhotoshop reads the IPTC records inside Photoshop image resources.
func readPhotoshop(data []byte, m *metadata) {
	p := 0
	for p+12 <= len(data) && string(data[p:p+4]) == "8BIM" {
		id := binary.BigEndian.Uint16(data[p+4:])
		nameLen := int(data[p+6])
		p += 6 + (nameLen+2)&^1
		if p+4 > len(data) {
			return
		}
		size := int(binary.BigEndian.Uint32(data[p:]))
		p += 4
		if size < 0 || p+size > len(data) {
			return
		}
		if id == 0x0404 {
			readIPTC(data[p:p+size], m)
		}
		p += (size + 1) &^ 1
	}
}

// readIPTC reads IPTC-IIM datasets. Record 2 holds the descriptive text.
func readIPTC(data []byte, m *metadata) {
	p := 0
	for p+5 <= len(data) && data[p] == 0x1C {
		record, dataset := data[p+1], data[p+2]
		n := int(binary.BigEndian.Uint16(data[p+3:]))
		p += 5
		if n&0x8000 != 0 || p+n > len(data) {
			return
		}
		if record == 2 && dataset != 0 {
			m.add(field{part: "IPTC", name: fmt.Sprintf("2:%d", dataset), text: decodeText(data[p : p+n])})
		}
		p += n
	}
}

// GIF

func readGIF(data []byte, m *metadata) error {
	if len(data) < 13 {
		return errTruncated
	}
	p := 13
	if flags := data[10]; flags&0x80 != 0 {
		p += 3 << (flags&7 + 1)
	}
	for p < len(data) {
		switch data[p] {
		case 0x21:
			if p+2 > len(data) {
				return errTruncated
			}
			label := data[p+1]
			start := p
			blocks, next, err := subBlocks(data, p+2)
			if err != nil {
				return err
			}
			switch label {
			case 0xFE:
				m.add(field{part: "GIF", name: "Comment", text: decodeText(bytes.Join(blocks, nil))})
			case 0x01:
				if len(blocks) > 1 {
					m.add(field{part: "GIF", name: "PlainText", text: decodeText(bytes.Join(blocks[1:], nil))})
				}
			case 0xFF:
				if len(blocks) > 0 && string(blocks[0]) == "XMP DataXMP" {
					// XMP stores the packet raw, so length bytes are part of it.
					for _, pkt := range xmp.Find(data[start:next]) {
						m.add(field{part: "XMP", text: xmp.Text(pkt)})
					}
				}
			}
			p = next
		case 0x2C:
			if p+10 > len(data) {
				return errTruncated
			}
			packed := data[p+9]
			p += 10
			if packed&0x80 != 0 {
				p += 3 << (packed&7 + 1)
			}
			p++ // LZW minimum code size
			_, next, err := subBlocks(data, p)
			if err != nil {
				return err
			}
			p = next
		case 0x3B:
			m.trailer = data[p+1:]
			return nil
		default:
			return errors.New("unknown GIF block")
		}
	}
	return nil
}

// subBlocks reads a chain of data sub-blocks ending in a zero length.
func subBlocks(data []byte, p int) ([][]byte, int, error) {
	var out [][]byte
	for {
		if p >= len(data) {
			return nil, 0, errTruncated
		}
		n := int(data[p])
		p++
		if n == 0 {
			return out, p, nil
		}
		if p+n > len(data) {
			return nil, 0, errTruncated
		}
		out = append(out, data[p:p+n])
		p += n
	}
}

// TIFF and EXIF

const (
	tagOrientation  = 274
	tagXMP          = 700
	tagExifIFD      = 34665
	tagGPSIFD       = 34853
	tagUserComment  = 37510
	tagInteropIFD   = 40965
	typeASCII       = 2
	typeShort       = 3
	maxIFDDepth     = 4
	userCommentSize = 8
)

var tagNames = map[uint16]string{
	269:    "DocumentName",
	270:    "ImageDescription",
	271:    "Make",
	272:    "Model",
	285:    "PageName",
	305:    "Software",
	306:    "DateTime",
	315:    "Artist",
	316:    "HostComputer",
	33432:  "Copyright",
	36867:  "DateTimeOriginal",
	37510:  "UserComment",
	42016:  "ImageUniqueID",
	42032:  "CameraOwnerName",
	42033:  "BodySerialNumber",
	42035:  "LensMake",
	42036:  "LensModel",
	42037:  "LensSerialNumber",
	0x9C9B: "XPTitle",
	0x9C9C: "XPComment",
	0x9C9D: "XPAuthor",
	0x9C9E: "XPKeywords",
	0x9C9F: "XPSubject",
}

// typeSizes gives the byte size of each TIFF field type.
var typeSizes = [...]int{1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8, 13: 4}

type ifdReader struct {
	data  []byte
	order binary.ByteOrder
	part  string
	seen  map[uint32]bool
	m     *metadata
}

// readTIFF walks the image file directories of a TIFF structure, as used by
// TIFF files and EXIF blocks.
func readTIFF(data []byte, part string, m *metadata) error {
	if len(data) < 8 {
		return errTruncated
	}
	r := &ifdReader{data: data, part: part, seen: make(map[uint32]bool), m: m}
	switch string(data[:2]) {
	case "II":
		r.order = binary.LittleEndian
	case "MM":
		r.order = binary.BigEndian
	default:
		return errors.New("TIFF byte order mark missing")
	}
	return r.ifd(r.order.Uint32(data[4:]), 0)
}

func (r *ifdReader) ifd(off uint32, depth int) error {
	for off != 0 && depth <= maxIFDDepth {
		if r.seen[off] {
			return nil
		}
		r.seen[off] = true
		if uint64(off)+2 > uint64(len(r.data)) {
			return errTruncated
		}
		n := int(r.order.Uint16(r.data[off:]))
		base := int(off) + 2
		if base+12*n > len(r.data) {
			return errTruncated
		}
		for i := 0; i < n; i++ {
			if err := r.entry(r.data[base+12*i:base+12*i+12], depth); err != nil {
				return err
			}
		}
		next := base + 12*n
		if next+4 > len(r.data) {
			return nil
		}
		off = r.order.Uint32(r.data[next:])
	}
	return nil
}

func (r *ifdReader) entry(e []byte, depth int) error {
	tag := r.order.Uint16(e)
	typ := r.order.Uint16(e[2:])
	value, ok := r.value(e, typ, r.order.Uint32(e[4:]))
	if !ok {
		return nil
	}
	switch {
	case tag == tagExifIFD || tag == tagGPSIFD || tag == tagInteropIFD:
		if len(value) >= 4 {
			return r.ifd(r.order.Uint32(value), depth+1)
		}
	case tag == tagOrientation:
		if typ == typeShort && len(value) >= 2 {
			r.m.orientation = int(r.order.Uint16(value))
		}
	case tag == tagXMP:
		r.m.add(field{part: "XMP", text: xmp.Text(value)})
	case tag == tagUserComment:
		r.m.add(field{part: r.part, name: tagNames[tag], text: r.userComment(value)})
	case tag >= 0x9C9B && tag <= 0x9C9F:
		r.m.add(field{part: r.part, name: tagNames[tag], text: utf16Text(value, binary.LittleEndian)})
	case typ == typeASCII:
		name := tagNames[tag]
		if name == "" {
			name = fmt.Sprintf("tag%d", tag)
		}
		r.m.add(field{part: r.part, name: name, text: decodeText(value)})
	}
	return nil
}

// value returns the bytes of an entry's value, inline or at its offset.
func (r *ifdReader) value(e []byte, typ uint16, count uint32) ([]byte, bool) {
	if int(typ) >= len(typeSizes) || typeSizes[typ] == 0 {
		return nil, false
	}
	total := uint64(typeSizes[typ]) * uint64(count)
	if total <= 4 {
		return e[8 : 8+total], true
	}
	off := uint64(r.order.Uint32(e[8:]))
	if off+total > uint64(len(r.data)) {
		return nil, false
	}
	return r.data[off : off+total], true
}

// userComment decodes an EXIF UserComment: an 8-byte character code
// followed by the text.
func (r *ifdReader) userComment(v []byte) string {
	if len(v) < userCommentSize {
		return decodeText(v)
	}
	code, text := string(v[:userCommentSize]), v[userCommentSize:]
	if strings.HasPrefix(code, "UNICODE") {
		return utf16Text(text, r.order)
	}
	return decodeText(text)
}

// Text decoding

// decodeText reads text of unknown encoding: UTF-8 when valid, otherwise
// Latin-1. Trailing NULs are dropped.
func decodeText(b []byte) string {
	b = bytes.TrimRight(b, "\x00")
	if utf8.Valid(b) {
		return string(b)
	}
	return latin1(b)
}

func latin1(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "")
	}
	return string(s)
}

func utf16Text(b []byte, order binary.ByteOrder) string {
	endian := unicode.LittleEndian
	if order == binary.BigEndian {
		endian = unicode.BigEndian
	}
	s, err := unicode.UTF16(endian, unicode.UseBOM).NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(s), "\x00")
}

func joinText(parts ...string) string {
	var keep []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keep = append(keep, p)
		}
	}
	return strings.Join(keep, "\n")
}
