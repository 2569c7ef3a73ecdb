package content

import (
	"regexp"
	"strings"
)

// SafetyChecker is the pass/fail safety capability the pipeline consumes.
// Implementations must be cheap; they run on every request and on every
// candidate reply.
type SafetyChecker interface {
	// CheckInput returns false when player input violates policy.
	CheckInput(text string) bool
	// CheckOutput returns false when a generated reply violates policy.
	CheckOutput(text string) bool
}

// PatternSafety is a pattern-list implementation of SafetyChecker.
type PatternSafety struct {
	inputPatterns  []*regexp.Regexp
	outputPatterns []*regexp.Regexp
}

// NewPatternSafety builds the default pattern checker.
func NewPatternSafety() *PatternSafety {
	compile := func(patterns []string) []*regexp.Regexp {
		out := make([]*regexp.Regexp, 0, len(patterns))
		for _, p := range patterns {
			out = append(out, regexp.MustCompile(p))
		}
		return out
	}
	shared := []string{
		`(?i)\bignore (all )?(previous|prior) instructions\b`,
		`(?i)\byou are now\b.*\b(jailbreak|unrestricted)\b`,
		`(?i)\bsystem prompt\b`,
		`(?i)\breal[- ]world (address|weapon|explosive)\b`,
	}
	return &PatternSafety{
		inputPatterns:  compile(shared),
		outputPatterns: compile(append(shared, `(?i)\bas an ai (language )?model\b`)),
	}
}

// CheckInput implements SafetyChecker.
func (s *PatternSafety) CheckInput(text string) bool {
	return !matchAny(s.inputPatterns, text)
}

// CheckOutput implements SafetyChecker.
func (s *PatternSafety) CheckOutput(text string) bool {
	return !matchAny(s.outputPatterns, text)
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	text = strings.TrimSpace(text)
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

var _ SafetyChecker = (*PatternSafety)(nil)
