package font

import (
	"bytes"
	"fmt"
	"unicode/utf16"

	"github.com/tsawler/redactor/contentstream"
	"github.com/tsawler/redactor/core"
)

// CMap represents a character map that maps character codes to Unicode
type CMap struct {
	// Single character mappings: charCode -> unicode string
	charMappings map[uint32]string

	// Range mappings for efficiency
	rangeMappings []CMapRange

	// Code space ranges decide how many bytes make up one code
	codespace []codespaceRange
}

// CMapRange represents a range of character code to Unicode mappings
type CMapRange struct {
	StartCode uint32
	EndCode   uint32
	// Destination of StartCode; the last UTF-16 unit is incremented
	// across the range.
	Start []uint16
}

type codespaceRange struct {
	n         int
	low, high uint32
}

// NewCMap creates a new empty CMap
func NewCMap() *CMap {
	return &CMap{
		charMappings: make(map[uint32]string),
	}
}

// ParseToUnicodeCMap parses a ToUnicode CMap stream
func ParseToUnicodeCMap(stream *core.Stream) (*CMap, error) {
	if stream == nil {
		return nil, fmt.Errorf("stream is nil")
	}
	data, err := stream.Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode stream: %w", err)
	}
	return ParseCMap(data)
}

// ParseCMap parses CMap program text. The program is read as a sequence of
// PostScript operators; only the codespace, bfchar/bfrange and cidchar/
// cidrange sections are interpreted.
func ParseCMap(data []byte) (*CMap, error) {
	// Procedures are not needed and the operand parser rejects braces.
	data = bytes.Map(func(r rune) rune {
		if r == '{' || r == '}' {
			return ' '
		}
		return r
	}, data)

	ops, err := contentstream.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cmap: %w", err)
	}

	cm := NewCMap()
	for _, op := range ops {
		switch op.Operator {
		case "endcodespacerange":
			for i := 0; i+1 < len(op.Operands); i += 2 {
				lo, ok1 := op.Operands[i].(core.String)
				hi, ok2 := op.Operands[i+1].(core.String)
				if ok1 && ok2 && len(lo) > 0 && len(lo) == len(hi) {
					cm.codespace = append(cm.codespace, codespaceRange{n: len(lo), low: codeOf([]byte(lo)), high: codeOf([]byte(hi))})
				}
			}
		case "endbfchar", "endcidchar":
			for i := 0; i+1 < len(op.Operands); i += 2 {
				src, ok := op.Operands[i].(core.String)
				if !ok {
					continue
				}
				if dst := destination(op.Operands[i+1]); dst != "" {
					cm.charMappings[codeOf([]byte(src))] = dst
				}
			}
		case "endbfrange", "endcidrange":
			for i := 0; i+2 < len(op.Operands); i += 3 {
				lo, ok1 := op.Operands[i].(core.String)
				hi, ok2 := op.Operands[i+1].(core.String)
				if !ok1 || !ok2 {
					continue
				}
				cm.addRange(codeOf([]byte(lo)), codeOf([]byte(hi)), op.Operands[i+2])
			}
		}
	}
	return cm, nil
}

func (cm *CMap) addRange(start, end uint32, dst core.Object) {
	if end < start || end-start > 0xFFFF {
		return
	}
	switch v := dst.(type) {
	case core.Array:
		for i, item := range v {
			if start+uint32(i) > end {
				break
			}
			if s := destination(item); s != "" {
				cm.charMappings[start+uint32(i)] = s
			}
		}
	case core.String:
		units := utf16Units([]byte(v))
		if len(units) > 0 {
			cm.rangeMappings = append(cm.rangeMappings, CMapRange{StartCode: start, EndCode: end, Start: units})
		}
	case core.Int:
		// cidrange: destination is a CID, kept as a code point
		cm.rangeMappings = append(cm.rangeMappings, CMapRange{StartCode: start, EndCode: end, Start: []uint16{uint16(v)}})
	}
}

// destination decodes a bfchar destination: a UTF-16BE string, a glyph
// name or, in cidchar sections, a CID.
func destination(obj core.Object) string {
	switch v := obj.(type) {
	case core.String:
		return decodeUTF16BE([]byte(v))
	case core.Name:
		return GlyphNameToUnicode(string(v))
	case core.Int:
		return string(rune(v))
	}
	return ""
}

func codeOf(b []byte) uint32 {
	var c uint32
	for _, x := range b {
		c = c<<8 | uint32(x)
	}
	return c
}

func utf16Units(b []byte) []uint16 {
	if len(b) == 1 {
		return []uint16{uint16(b[0])}
	}
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
	}
	return units
}

// Lookup looks up a character code and returns the Unicode string, or ""
// if the CMap has no mapping for it.
func (cm *CMap) Lookup(charCode uint32) string {
	if unicode, ok := cm.charMappings[charCode]; ok {
		return unicode
	}
	for _, r := range cm.rangeMappings {
		if charCode >= r.StartCode && charCode <= r.EndCode {
			units := append([]uint16(nil), r.Start...)
			units[len(units)-1] += uint16(charCode - r.StartCode)
			return string(utf16.Decode(units))
		}
	}
	return ""
}

// CodeLength returns the number of bytes of the code starting at data[0]
// according to the code space ranges, or 0 when the CMap declares none.
func (cm *CMap) CodeLength(data []byte) int {
	if cm == nil || len(cm.codespace) == 0 {
		return 0
	}
	for n := 1; n <= 4 && n <= len(data); n++ {
		code := codeOf(data[:n])
		for _, r := range cm.codespace {
			if r.n == n && code >= r.low && code <= r.high {
				return n
			}
		}
	}
	// Not in any range: consume the shortest declared length.
	shortest := 4
	for _, r := range cm.codespace {
		if r.n < shortest {
			shortest = r.n
		}
	}
	return shortest
}

// decodeUTF16BE decodes UTF-16BE bytes to string. A single byte is taken
// as a code point.
func decodeUTF16BE(data []byte) string {
	if len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF {
		data = data[2:]
	}
	if len(data) == 1 {
		return string(rune(data[0]))
	}
	return string(utf16.Decode(utf16Units(data)))
}
