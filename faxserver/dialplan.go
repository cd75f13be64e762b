package faxserver

import (
	"fmt"
	"regexp"
	"strings"
)

// TransformationRule represents a single dialplan transformation.
// When the rule's Pattern matches the input, its Replacement is applied.
// The Replacement string can contain regex capture group references.
type TransformationRule struct {
	Pattern     *regexp.Regexp // Regular expression to match
	Replacement string         // Replacement string, e.g., "011$1" to prefix "011"
}

// DialplanManager handles number normalization and regex-based
// transformations of the numbers we dial.
type DialplanManager struct {
	TransformationRules []TransformationRule
}

// NewDialplanManager creates a new DialplanManager with the given transformation rules.
func NewDialplanManager(rules []TransformationRule) *DialplanManager {
	return &DialplanManager{
		TransformationRules: rules,
	}
}

// ParseDialplan builds a DialplanManager from "pattern=replacement" rules.
func ParseDialplan(rules []string) (*DialplanManager, error) {
	var parsed []TransformationRule
	for _, r := range rules {
		pattern, replacement, ok := strings.Cut(r, "=")
		if !ok {
			return nil, fmt.Errorf("dialplan rule %q: missing '='", r)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("dialplan rule %q: %w", r, err)
		}
		parsed = append(parsed, TransformationRule{Pattern: re, Replacement: replacement})
	}
	return NewDialplanManager(parsed), nil
}

var nonDigit = regexp.MustCompile(`\D`)

// NormalizeNumber removes non-digit characters from a number.
// This makes comparisons easier regardless of formatting.
func (d *DialplanManager) NormalizeNumber(number string) string {
	return nonDigit.ReplaceAllString(number, "")
}

// ApplyTransformationRules applies each configured transformation rule to the input number in sequence.
// For example, if the number is in E.164 format, one rule might convert "+(.*)" to "011$1".
func (d *DialplanManager) ApplyTransformationRules(number string) string {
	transformed := number
	for _, rule := range d.TransformationRules {
		if rule.Pattern.MatchString(transformed) {
			transformed = rule.Pattern.ReplaceAllString(transformed, rule.Replacement)
		}
	}
	return transformed
}

// DialString turns a job number into what the modem dials: the rules are
// applied first, then everything but digits and the dial modifiers
// ",", "W", "*" and "#" is dropped.
func (d *DialplanManager) DialString(number string) string {
	transformed := d.ApplyTransformationRules(number)
	var b strings.Builder
	for _, r := range transformed {
		switch {
		case r >= '0' && r <= '9', r == ',', r == 'W', r == '*', r == '#':
			b.WriteRune(r)
		}
	}
	return b.String()
}
