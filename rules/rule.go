package rules

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"

	"github.com/tsawler/redactor/internal/textnorm"
)

// Rule kinds.
const (
	KindRegex   = "regex"
	KindLiteral = "literal"
)

// Spec is the serialized form of a rule, as read from YAML or TOML.
type Spec struct {
	ID              string   `yaml:"id" toml:"id"`
	Kind            string   `yaml:"kind" toml:"kind"`
	Pattern         string   `yaml:"pattern,omitempty" toml:"pattern,omitempty"`
	Literals        []string `yaml:"literals,omitempty" toml:"literals,omitempty"`
	Confidence      float64  `yaml:"confidence" toml:"confidence"`
	CaseInsensitive bool     `yaml:"case_insensitive,omitempty" toml:"case_insensitive,omitempty"`
	Normalize       *bool    `yaml:"normalize,omitempty" toml:"normalize,omitempty"`
	WholeWord       bool     `yaml:"whole_word,omitempty" toml:"whole_word,omitempty"`
	Validator       string   `yaml:"validator,omitempty" toml:"validator,omitempty"`
	Description     string   `yaml:"description,omitempty" toml:"description,omitempty"`
}

// Rule is a compiled, immutable matching rule.
type Rule struct {
	ID          string
	Confidence  float64
	Description string
	Options     textnorm.Options

	index     int
	wholeWord bool
	re        *regexp.Regexp
	validate  func(string) bool
}

// Index returns the rule's position in its set. Lower indexes win ties
// during overlap resolution.
func (r *Rule) Index() int {
	return r.index
}

// FindAll returns the byte ranges of all matches in text, which must already
// be canonicalized with r.Options.
func (r *Rule) FindAll(text string) [][2]int {
	var out [][2]int
	for _, loc := range r.re.FindAllStringIndex(text, -1) {
		if loc[1] <= loc[0] {
			continue
		}
		if r.wholeWord && !atWordBoundary(text, loc[0], loc[1]) {
			continue
		}
		if r.validate != nil && !r.validate(text[loc[0]:loc[1]]) {
			continue
		}
		out = append(out, [2]int{loc[0], loc[1]})
	}
	return out
}

func atWordBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// RuleSet is an ordered, compiled collection of rules. It is never modified
// after Compile returns, so it may be shared by any number of jobs.
type RuleSet struct {
	rules   []*Rule
	version string
}

// Rules returns the rules in priority order
func (rs *RuleSet) Rules() []*Rule {
	if rs == nil {
		return nil
	}
	return rs.rules
}

// Len returns the number of rules
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Version returns a short digest identifying the rule definitions. Two sets
// compiled from identical specs share a version.
func (rs *RuleSet) Version() string {
	if rs == nil {
		return ""
	}
	return rs.version
}

// Compile validates specs and compiles them into a RuleSet.
func Compile(specs []Spec) (*RuleSet, error) {
	if len(specs) == 0 {
		return nil, errors.New("rule set is empty")
	}

	rs := &RuleSet{rules: make([]*Rule, 0, len(specs))}
	seen := make(map[string]bool, len(specs))
	h, _ := blake2b.New256(nil)

	for i, spec := range specs {
		if spec.ID == "" {
			return nil, fmt.Errorf("rule %d: missing id", i)
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("rule %q: duplicate id", spec.ID)
		}
		seen[spec.ID] = true

		rule, err := compileRule(spec, i)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", spec.ID, err)
		}
		rs.rules = append(rs.rules, rule)
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00%q\x00%g\x00%v\x00%v\x00%v\x00%s\n",
			spec.ID, spec.Kind, spec.Pattern, spec.Literals, spec.Confidence,
			spec.CaseInsensitive, rule.Options.NFKC, spec.WholeWord, spec.Validator)
	}

	rs.version = hex.EncodeToString(h.Sum(nil))[:12]
	return rs, nil
}

// MustCompile is like Compile but panics on error. It is intended for
// rule tables defined in code.
func MustCompile(specs []Spec) *RuleSet {
	rs, err := Compile(specs)
	if err != nil {
		panic(err)
	}
	return rs
}

func compileRule(spec Spec, index int) (*Rule, error) {
	if spec.Confidence <= 0 || spec.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range (0, 1]", spec.Confidence)
	}

	opts := textnorm.Options{NFKC: true, Fold: spec.CaseInsensitive}
	if spec.Normalize != nil {
		opts.NFKC = *spec.Normalize
	}

	kind := spec.Kind
	if kind == "" {
		if len(spec.Literals) > 0 {
			kind = KindLiteral
		} else {
			kind = KindRegex
		}
	}

	var pattern string
	switch kind {
	case KindRegex:
		if spec.Pattern == "" {
			return nil, errors.New("regex rule without pattern")
		}
		pattern = spec.Pattern
		if spec.CaseInsensitive {
			pattern = "(?i)" + pattern
		}
	case KindLiteral:
		p, err := literalPattern(spec.Literals, opts)
		if err != nil {
			return nil, err
		}
		pattern = p
	default:
		return nil, fmt.Errorf("unknown kind %q", spec.Kind)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	var validate func(string) bool
	switch spec.Validator {
	case "":
	case "luhn":
		validate = luhnValid
	default:
		return nil, fmt.Errorf("unknown validator %q", spec.Validator)
	}

	return &Rule{
		ID:          spec.ID,
		Confidence:  spec.Confidence,
		Description: spec.Description,
		Options:     opts,
		index:       index,
		wholeWord:   spec.WholeWord,
		re:          re,
		validate:    validate,
	}, nil
}

// literalPattern builds an alternation of the canonicalized literals,
// longest first, so the leftmost match at a position is also the longest.
func literalPattern(literals []string, opts textnorm.Options) (string, error) {
	var canon []string
	seen := make(map[string]bool)
	for _, lit := range literals {
		c := textnorm.String(strings.TrimSpace(lit), opts)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		canon = append(canon, c)
	}
	if len(canon) == 0 {
		return "", errors.New("literal rule without literals")
	}
	sort.SliceStable(canon, func(i, j int) bool { return len(canon[i]) > len(canon[j]) })

	quoted := make([]string, len(canon))
	for i, c := range canon {
		quoted[i] = regexp.QuoteMeta(c)
	}
	return strings.Join(quoted, "|"), nil
}

// luhnValid checks the Luhn checksum over the digits of s, ignoring
// separators.
func luhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	if len(digits) < 12 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
