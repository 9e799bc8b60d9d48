package rules

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Encoding identifies the serialization of a rule file.
type Encoding string

const (
	EncodingYAML Encoding = "yaml"
	EncodingTOML Encoding = "toml"
)

// File is the top-level document of a rule file:
//
//	rules:
//	  - id: employee_id
//	    kind: regex
//	    pattern: 'EMP-\d{6}'
//	    confidence: 0.9
type File struct {
	Rules []Spec `yaml:"rules" toml:"rules"`
}

// EncodingFor picks the encoding from a file extension.
func EncodingFor(path string) (Encoding, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return EncodingYAML, nil
	case ".toml":
		return EncodingTOML, nil
	default:
		return "", fmt.Errorf("unsupported rule file extension %q", filepath.Ext(path))
	}
}

// Parse decodes and compiles a rule document. Unknown fields are rejected so
// that typos in option names do not silently weaken a rule.
func Parse(data []byte, enc Encoding) (*RuleSet, error) {
	var f File
	switch enc {
	case EncodingYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to parse YAML rules: %w", err)
		}
	case EncodingTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to parse TOML rules: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported rule encoding %q", enc)
	}
	return Compile(f.Rules)
}

// LoadFile reads and compiles the rule file at path.
func LoadFile(path string) (*RuleSet, error) {
	enc, err := EncodingFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	rs, err := Parse(data, enc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rs, nil
}
