// Package rules defines the read-only rule set the detector matches against.
//
// A [RuleSet] is an ordered list of compiled regular-expression or literal
// rules, each with an identifier and a confidence weight. Rule sets are
// immutable once compiled; a [Store] publishes a new set with a single atomic
// pointer swap, so concurrent jobs either see the old set or the new one and
// never a mix.
//
// Rule files are YAML or TOML:
//
//	rules:
//	  - id: customer_name
//	    kind: literal
//	    literals: ["Jane Roe", "John Doe"]
//	    confidence: 0.99
//	    case_insensitive: true
//	    whole_word: true
//
// Text is canonicalized with NFKC before matching unless a rule sets
// normalize: false.
package rules
