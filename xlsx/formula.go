package xlsx

import (
	"strings"
)

// stringFunctions build text out of their arguments. A formula calling one
// of them on a redacted cell would recompute the removed value.
var stringFunctions = map[string]bool{
	"CONCAT":      true,
	"CONCATENATE": true,
	"TEXTJOIN":    true,
	"LEFT":        true,
	"LEFTB":       true,
	"RIGHT":       true,
	"RIGHTB":      true,
	"MID":         true,
	"MIDB":        true,
	"SUBSTITUTE":  true,
	"REPLACE":     true,
	"REPLACEB":    true,
	"UPPER":       true,
	"LOWER":       true,
	"PROPER":      true,
	"TRIM":        true,
	"CLEAN":       true,
	"TEXT":        true,
	"REPT":        true,
	"T":           true,
	"FIXED":       true,
	"HYPERLINK":   true,
	"VALUE":       true,
	"TEXTBEFORE":  true,
	"TEXTAFTER":   true,
	"TEXTSPLIT":   true,
}

// reference is one cell area named by a formula.
type reference struct {
	sheet string // "" for the formula's own sheet, "*" for a 3-D span
	area  area
}

// formula is the parsed form of a formula's text.
type formula struct {
	literals  [][2]int // byte ranges of string literal contents
	refs      []reference
	names     []string // defined names, upper case
	stringOps bool
}

// inLiteral reports whether [start, end) lies inside one string literal.
func (f *formula) inLiteral(start, end int) bool {
	for _, l := range f.literals {
		if start >= l[0] && end <= l[1] {
			return true
		}
	}
	return false
}

// parseFormula tokenizes formula text far enough to find its string
// literals, the cells and names it refers to and whether it computes text.
// Structured table references and external workbook indexes are skipped.
func parseFormula(s string) formula {
	var f formula
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '"':
			j := i + 1
			for j < len(s) {
				if s[j] == '"' {
					if j+1 < len(s) && s[j+1] == '"' {
						j += 2
						continue
					}
					break
				}
				j++
			}
			f.literals = append(f.literals, [2]int{i + 1, min(j, len(s))})
			i = j + 1
		case c == '&':
			f.stringOps = true
			i++
		case c == '[':
			depth := 0
			for i < len(s) {
				if s[i] == '[' {
					depth++
				} else if s[i] == ']' {
					depth--
					if depth == 0 {
						i++
						break
					}
				}
				i++
			}
		case c == '\'':
			j := i + 1
			var name strings.Builder
			for j < len(s) {
				if s[j] == '\'' {
					if j+1 < len(s) && s[j+1] == '\'' {
						name.WriteByte('\'')
						j += 2
						continue
					}
					break
				}
				name.WriteByte(s[j])
				j++
			}
			i = j + 1
			if i < len(s) && s[i] == '!' {
				i++
				sheet := name.String()
				if strings.Contains(sheet, ":") {
					sheet = "*"
				}
				var ref string
				ref, i = readRange(s, i)
				f.addRef(sheet, ref)
			}
		case isWordByte(c):
			var word string
			word, i = readRange(s, i)
			switch {
			case i < len(s) && s[i] == '!':
				sheet := word
				if strings.Contains(word, ":") {
					sheet = "*"
				}
				var ref string
				ref, i = readRange(s, i+1)
				f.addRef(sheet, ref)
			case i < len(s) && s[i] == '(':
				name := strings.ToUpper(word)
				name = strings.TrimPrefix(name, "_XLFN.")
				name = strings.TrimPrefix(name, "_XLWS.")
				if stringFunctions[name] {
					f.stringOps = true
				}
			default:
				f.addWord(word)
			}
		default:
			i++
		}
	}
	return f
}

// readRange reads a word, or two words joined by a colon.
func readRange(s string, i int) (string, int) {
	start := i
	i = readWord(s, i)
	if i < len(s) && s[i] == ':' && i+1 < len(s) && isWordByte(s[i+1]) {
		i = readWord(s, i+1)
	}
	return s[start:i], i
}

func readWord(s string, i int) int {
	for i < len(s) && isWordByte(s[i]) {
		i++
	}
	return i
}

func isWordByte(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_' || c == '.' || c == '$' || c == '\\' || c >= 0x80
}

func (f *formula) addRef(sheet, ref string) {
	if ref == "" {
		return
	}
	if a, ok := parseArea(ref); ok {
		f.refs = append(f.refs, reference{sheet: sheet, area: a})
		return
	}
	// A name scoped to another sheet.
	f.names = append(f.names, strings.ToUpper(ref))
}

func (f *formula) addWord(word string) {
	if a, ok := parseArea(word); ok {
		f.refs = append(f.refs, reference{area: a})
		return
	}
	upper := strings.ToUpper(word)
	if upper == "TRUE" || upper == "FALSE" || upper == "" {
		return
	}
	if c := word[0]; (c >= '0' && c <= '9') || c == '.' {
		return // number
	}
	f.names = append(f.names, upper)
}

// quoteLiteral escapes text for use inside a string literal.
func quoteLiteral(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}
