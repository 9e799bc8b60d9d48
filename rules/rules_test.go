package rules

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/redactor/internal/textnorm"
)

func matches(t *testing.T, rs *RuleSet, id, text string) []string {
	t.Helper()
	for _, r := range rs.Rules() {
		if r.ID != id {
			continue
		}
		canon := textnorm.Apply(text, r.Options)
		var out []string
		for _, m := range r.FindAll(canon.Text) {
			from, to := canon.Original(m[0], m[1])
			out = append(out, text[from:to])
		}
		return out
	}
	t.Fatalf("rule %q not found", id)
	return nil
}

func TestDefaultRules(t *testing.T) {
	rs := Default()
	require.NotNil(t, rs)

	tests := []struct {
		rule string
		text string
		want []string
	}{
		{"us_ssn", "SSN: 123-45-6789", []string{"123-45-6789"}},
		{"us_ssn", "ref 1234-56-7890", nil},
		{"email", "mail jane.roe@example.com now", []string{"jane.roe@example.com"}},
		{"credit_card", "card 4111 1111 1111 1111", []string{"4111 1111 1111 1111"}},
		{"credit_card", "card 4111 1111 1111 1112", nil},
		{"phone", "call (555) 123-4567", []string{"(555) 123-4567"}},
		{"ipv4", "host 10.0.0.254 up", []string{"10.0.0.254"}},
		{"ipv4", "version 1.2.3", nil},
		{"iban", "IBAN GB82 WEST 1234 5698 7654 32", []string{"GB82 WEST 1234 5698 7654 32"}},
	}

	for _, tt := range tests {
		t.Run(tt.rule+"/"+tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, matches(t, rs, tt.rule, tt.text))
		})
	}
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestNormalizationCatchesFullWidth(t *testing.T) {
	rs := Default()
	got := matches(t, rs, "us_ssn", "SSN: １２３-４５-６７８９")
	assert.Equal(t, []string{"１２３-４５-６７８９"}, got)
}

func TestLiteralRule(t *testing.T) {
	rs, err := Compile([]Spec{{
		ID:              "names",
		Kind:            KindLiteral,
		Literals:        []string{"Jane", "Jane Roe", " "},
		Confidence:      0.99,
		CaseInsensitive: true,
		WholeWord:       true,
	}})
	require.NoError(t, err)

	assert.Equal(t, []string{"JANE ROE"}, matches(t, rs, "names", "Signed: JANE ROE."))
	assert.Nil(t, matches(t, rs, "names", "Janet"))
}

func TestNormalizeDisabled(t *testing.T) {
	off := false
	rs, err := Compile([]Spec{{ID: "ssn", Pattern: `\d{3}-\d{2}-\d{4}`, Confidence: 1, Normalize: &off}})
	require.NoError(t, err)
	assert.Nil(t, matches(t, rs, "ssn", "１２３-４５-６７８９"))
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		specs []Spec
	}{
		{"empty", nil},
		{"missing id", []Spec{{Pattern: "x", Confidence: 1}}},
		{"duplicate id", []Spec{{ID: "a", Pattern: "x", Confidence: 1}, {ID: "a", Pattern: "y", Confidence: 1}}},
		{"bad confidence", []Spec{{ID: "a", Pattern: "x", Confidence: 1.5}}},
		{"zero confidence", []Spec{{ID: "a", Pattern: "x"}}},
		{"bad regex", []Spec{{ID: "a", Pattern: "(", Confidence: 1}}},
		{"no literals", []Spec{{ID: "a", Kind: KindLiteral, Confidence: 1}}},
		{"unknown kind", []Spec{{ID: "a", Kind: "fuzzy", Pattern: "x", Confidence: 1}}},
		{"unknown validator", []Spec{{ID: "a", Pattern: "x", Confidence: 1, Validator: "crc"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.specs)
			assert.Error(t, err)
		})
	}
}

func TestVersionIsStable(t *testing.T) {
	a := MustCompile(BuiltinSpecs())
	b := MustCompile(BuiltinSpecs())
	assert.Equal(t, a.Version(), b.Version())
	assert.Len(t, a.Version(), 12)

	specs := BuiltinSpecs()
	specs[0].Confidence = 0.5
	c := MustCompile(specs)
	assert.NotEqual(t, a.Version(), c.Version())
}

func TestLuhn(t *testing.T) {
	assert.True(t, luhnValid("4111-1111-1111-1111"))
	assert.False(t, luhnValid("4111-1111-1111-1112"))
	assert.False(t, luhnValid("4111"))
	assert.False(t, luhnValid("4111x1111y1111z1111"))
}

const yamlRules = `
rules:
  - id: employee_id
    kind: regex
    pattern: 'EMP-\d{6}'
    confidence: 0.9
  - id: project
    kind: literal
    literals: ["Project Nightjar"]
    confidence: 0.8
    case_insensitive: true
`

const tomlRules = `
[[rules]]
id = "employee_id"
kind = "regex"
pattern = 'EMP-\d{6}'
confidence = 0.9

[[rules]]
id = "project"
kind = "literal"
literals = ["Project Nightjar"]
confidence = 0.8
case_insensitive = true
`

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		enc  Encoding
		data string
	}{
		{EncodingYAML, yamlRules},
		{EncodingTOML, tomlRules},
	} {
		t.Run(string(tc.enc), func(t *testing.T) {
			rs, err := Parse([]byte(tc.data), tc.enc)
			require.NoError(t, err)
			require.Equal(t, 2, rs.Len())
			assert.Equal(t, "employee_id", rs.Rules()[0].ID)
			assert.Equal(t, []string{"EMP-123456"}, matches(t, rs, "employee_id", "id EMP-123456"))
			assert.Equal(t, []string{"PROJECT NIGHTJAR"}, matches(t, rs, "project", "PROJECT NIGHTJAR"))
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("rules:\n  - id: a\n    pattern: x\n    confidense: 1\n"), EncodingYAML)
	assert.Error(t, err)

	_, err = Parse([]byte("[[rules]]\nid = \"a\"\npattern = \"x\"\nconfidense = 1.0\n"), EncodingTOML)
	assert.Error(t, err)
}

func TestEncodingFor(t *testing.T) {
	enc, err := EncodingFor("rules.YML")
	require.NoError(t, err)
	assert.Equal(t, EncodingYAML, enc)

	enc, err = EncodingFor("/etc/redact/rules.toml")
	require.NoError(t, err)
	assert.Equal(t, EncodingTOML, enc)

	_, err = EncodingFor("rules.json")
	assert.Error(t, err)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestStoreReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeFile(t, path, yamlRules)

	s, err := OpenStore(path, nil)
	require.NoError(t, err)
	first := s.Current()
	require.Equal(t, 2, first.Len())

	writeFile(t, path, "rules:\n  - id: broken\n    pattern: '('\n    confidence: 1\n")
	assert.Error(t, s.Reload())
	assert.Same(t, first, s.Current())

	writeFile(t, path, "rules:\n  - id: only\n    pattern: 'x'\n    confidence: 1\n")
	require.NoError(t, s.Reload())
	assert.Equal(t, 1, s.Current().Len())
}

func TestStoreWithoutFile(t *testing.T) {
	s := NewStore(Default())
	assert.Same(t, Default(), s.Current())
	assert.Error(t, s.Reload())
	assert.Error(t, s.Watch(context.Background()))
}

func TestStoreConcurrentReaders(t *testing.T) {
	a := MustCompile([]Spec{{ID: "a", Pattern: "a", Confidence: 1}})
	b := MustCompile([]Spec{{ID: "b", Pattern: "b", Confidence: 1}})
	s := NewStore(a)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				rs := s.Current()
				id := rs.Rules()[0].ID
				if id != "a" && id != "b" {
					t.Errorf("observed unexpected rule %q", id)
					return
				}
			}
		}()
	}
	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			s.Swap(b)
		} else {
			s.Swap(a)
		}
	}
	wg.Wait()
}

func TestStoreWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeFile(t, path, yamlRules)

	s, err := OpenStore(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "rules:\n  - id: only\n    pattern: 'x'\n    confidence: 1\n")

	assert.Eventually(t, func() bool {
		return s.Current().Len() == 1
	}, 5*time.Second, 25*time.Millisecond)
}
