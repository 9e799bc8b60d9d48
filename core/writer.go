package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RefMapper rewrites an indirect reference during serialization. Returning
// false writes null in place of the reference.
type RefMapper func(IndirectRef) (IndirectRef, bool)

// AppendObject appends the PDF syntax for obj to buf. Dictionary keys are
// written in sorted order so output is deterministic. Stream /Length is
// always written as a direct integer matching Data.
func AppendObject(buf []byte, obj Object, mapRef RefMapper) []byte {
	switch v := obj.(type) {
	case nil, Null:
		return append(buf, "null"...)
	case Bool:
		if v {
			return append(buf, "true"...)
		}
		return append(buf, "false"...)
	case Int:
		return strconv.AppendInt(buf, int64(v), 10)
	case Real:
		return AppendReal(buf, float64(v))
	case String:
		return AppendString(buf, []byte(v))
	case Name:
		return AppendName(buf, string(v))
	case Array:
		buf = append(buf, '[')
		for i, el := range v {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = AppendObject(buf, el, mapRef)
		}
		return append(buf, ']')
	case Dict:
		return appendDict(buf, v, mapRef)
	case *Stream:
		d := v.Dict.Clone()
		d.Set("Length", Int(len(v.Data)))
		buf = appendDict(buf, d, mapRef)
		buf = append(buf, "\nstream\n"...)
		buf = append(buf, v.Data...)
		return append(buf, "\nendstream"...)
	case IndirectRef:
		if mapRef != nil {
			mapped, ok := mapRef(v)
			if !ok {
				return append(buf, "null"...)
			}
			v = mapped
		}
		return fmt.Appendf(buf, "%d %d R", v.Number, v.Generation)
	default:
		return append(buf, "null"...)
	}
}

func appendDict(buf []byte, d Dict, mapRef RefMapper) []byte {
	buf = append(buf, "<<"...)
	for _, k := range d.Keys() {
		buf = AppendName(buf, k)
		buf = append(buf, ' ')
		buf = AppendObject(buf, d[k], mapRef)
	}
	return append(buf, ">>"...)
}

// AppendReal writes a number without exponent notation. Integral values are
// written as integers.
func AppendReal(buf []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(buf, '0')
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.AppendInt(buf, int64(f), 10)
	}
	s := strconv.FormatFloat(f, 'f', 5, 64)
	s = trimZeros(s)
	return append(buf, s...)
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimSuffix(strings.TrimRight(s, "0"), ".")
	if s == "" || s == "-" || s == "-0" {
		return "0"
	}
	return s
}

// AppendString writes a literal string when the data is mostly printable
// and a hex string otherwise.
func AppendString(buf []byte, s []byte) []byte {
	binary := 0
	for _, c := range s {
		if c < 0x20 && c != '\n' && c != '\r' && c != '\t' || c > 0x7e {
			binary++
		}
	}
	if binary > len(s)/4 {
		buf = append(buf, '<')
		const hex = "0123456789ABCDEF"
		for _, c := range s {
			buf = append(buf, hex[c>>4], hex[c&0x0f])
		}
		return append(buf, '>')
	}

	buf = append(buf, '(')
	for _, c := range s {
		switch c {
		case '(', ')', '\\':
			buf = append(buf, '\\', c)
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\t':
			buf = append(buf, '\\', 't')
		default:
			if c < 0x20 || c > 0x7e {
				buf = fmt.Appendf(buf, "\\%03o", c)
			} else {
				buf = append(buf, c)
			}
		}
	}
	return append(buf, ')')
}

// AppendName writes a name with #XX escapes for bytes outside the regular
// character set.
func AppendName(buf []byte, name string) []byte {
	buf = append(buf, '/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7e || c == '#' || isDelimiter(c) {
			buf = fmt.Appendf(buf, "#%02X", c)
		} else {
			buf = append(buf, c)
		}
	}
	return buf
}

// FileWriter assembles a complete file with a single classic
// cross-reference table and no incremental sections.
type FileWriter struct {
	buf     []byte
	offsets map[int]int64
	maxNum  int
}

// NewFileWriter writes the header for the given version, e.g. "1.7".
func NewFileWriter(version string) *FileWriter {
	w := &FileWriter{offsets: make(map[int]int64)}
	w.buf = fmt.Appendf(w.buf, "%%PDF-%s\n%%\xe2\xe3\xcf\xd3\n", version)
	return w
}

// WriteObject writes "num 0 obj ... endobj".
func (w *FileWriter) WriteObject(num int, obj Object, mapRef RefMapper) {
	w.offsets[num] = int64(len(w.buf))
	if num > w.maxNum {
		w.maxNum = num
	}
	w.buf = fmt.Appendf(w.buf, "%d 0 obj\n", num)
	w.buf = AppendObject(w.buf, obj, mapRef)
	w.buf = append(w.buf, "\nendobj\n"...)
}

// Finish writes the cross-reference table, the trailer (with /Size set)
// and the end-of-file marker, and returns the file bytes.
func (w *FileWriter) Finish(trailer Dict, mapRef RefMapper) []byte {
	xref := len(w.buf)
	size := w.maxNum + 1
	w.buf = fmt.Appendf(w.buf, "xref\n0 %d\n", size)
	w.buf = append(w.buf, "0000000000 65535 f\r\n"...)
	for n := 1; n < size; n++ {
		if off, ok := w.offsets[n]; ok {
			w.buf = fmt.Appendf(w.buf, "%010d 00000 n\r\n", off)
		} else {
			w.buf = append(w.buf, "0000000000 00000 f\r\n"...)
		}
	}
	t := trailer.Clone()
	t.Set("Size", Int(size))
	w.buf = append(w.buf, "trailer\n"...)
	w.buf = AppendObject(w.buf, t, mapRef)
	w.buf = fmt.Appendf(w.buf, "\nstartxref\n%d\n%%%%EOF\n", xref)
	return w.buf
}
