// Package xmp reads the text held in XMP metadata packets.
package xmp

import (
	"bytes"
	"encoding/xml"
	"strings"
	"unicode/utf8"
)

// Text returns the character data and attribute values of an XMP
// packet, one per line. Malformed trailing markup is ignored.
func Text(data []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	var parts []string
	for {
		tok, err := dec.RawToken()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			for _, a := range t.Attr {
				if v := strings.TrimSpace(a.Value); v != "" && a.Name.Space != "xmlns" && a.Name.Local != "xmlns" {
					parts = append(parts, v)
				}
			}
		case xml.CharData:
			if v := strings.TrimSpace(string(t)); v != "" {
				parts = append(parts, v)
			}
		}
	}
	if len(parts) == 0 && utf8.Valid(data) {
		return string(data)
	}
	return strings.Join(parts, "\n")
}

// Packet headers that open an XMP packet inside binary containers.
var (
	beginMarker = []byte("<?xpacket begin")
	metaMarker  = []byte("<x:xmpmeta")
)

// Find returns the XMP packets embedded in data, scanning for the packet
// headers. Image formats without a dedicated metadata structure still carry
// packets this way.
func Find(data []byte) [][]byte {
	var out [][]byte
	for len(data) > 0 {
		i := bytes.Index(data, beginMarker)
		if i < 0 {
			i = bytes.Index(data, metaMarker)
		}
		if i < 0 {
			break
		}
		rest := data[i:]
		end := bytes.Index(rest, []byte("<?xpacket end"))
		if end >= 0 {
			if c := bytes.Index(rest[end:], []byte("?>")); c >= 0 {
				end += c + 2
			} else {
				end = len(rest)
			}
		} else if end = bytes.Index(rest, []byte("</x:xmpmeta>")); end >= 0 {
			end += len("</x:xmpmeta>")
		} else {
			end = len(rest)
		}
		out = append(out, rest[:end])
		data = rest[end:]
	}
	return out
}
