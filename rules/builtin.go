package rules

import "sync"

var (
	defaultOnce sync.Once
	defaultSet  *RuleSet
)

// Default returns the built-in rule set. It is compiled once and shared.
func Default() *RuleSet {
	defaultOnce.Do(func() {
		defaultSet = MustCompile(BuiltinSpecs())
	})
	return defaultSet
}

// BuiltinSpecs returns the definitions behind Default, in priority order.
func BuiltinSpecs() []Spec {
	return []Spec{
		{
			ID:          "us_ssn",
			Kind:        KindRegex,
			Pattern:     `\b\d{3}-\d{2}-\d{4}\b`,
			Confidence:  0.95,
			Description: "US social security numbers",
		},
		{
			ID:          "credit_card",
			Kind:        KindRegex,
			Pattern:     `\b(?:\d[ -]?){12,18}\d\b`,
			Confidence:  0.9,
			Validator:   "luhn",
			Description: "Payment card numbers passing the Luhn check",
		},
		{
			ID:          "email",
			Kind:        KindRegex,
			Pattern:     `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9]+(?:[.-][A-Za-z0-9]+)*\.[A-Za-z]{2,63}\b`,
			Confidence:  0.9,
			Description: "Email addresses",
		},
		{
			ID:          "iban",
			Kind:        KindRegex,
			Pattern:     `\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,3})?\b`,
			Confidence:  0.8,
			Description: "International bank account numbers",
		},
		{
			ID:          "phone",
			Kind:        KindRegex,
			Pattern:     `(?:\+?1[-. ]?)?(?:\(\d{3}\)\s?|\b\d{3}[-. ])\d{3}[-. ]\d{4}\b`,
			Confidence:  0.7,
			Description: "North American phone numbers",
		},
		{
			ID:          "ipv4",
			Kind:        KindRegex,
			Pattern:     `\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`,
			Confidence:  0.6,
			Description: "IPv4 addresses",
		},
	}
}
