// Package catalog holds the detection rules shared by the secret and threat
// scanners. Rules are grouped by category into a Set, loaded once per run
// from optional JSON pattern files with built-in fallbacks.
package catalog

import (
	"fmt"
	"regexp"
)

// Category groups rules by the scanner that consumes them.
type Category string

const (
	CategorySecret    Category = "secret"
	CategoryInjection Category = "injection"
	CategoryPII       Category = "pii"

	// CategoryDirectory marks repository-layout policy findings; it has no rules.
	CategoryDirectory Category = "directory"
)

// Matcher is the narrow matching interface every rule engine implements.
type Matcher interface {
	// Matches reports whether line contains a match.
	Matches(line string) bool
	// FindIndex returns the byte range of the leftmost match, or nil.
	FindIndex(line string) []int
}

type regexpMatcher struct {
	re *regexp.Regexp
}

func (m regexpMatcher) Matches(line string) bool    { return m.re.MatchString(line) }
func (m regexpMatcher) FindIndex(line string) []int { return m.re.FindStringIndex(line) }
func (m regexpMatcher) String() string              { return m.re.String() }

// Regexp compiles pattern into a Matcher.
func Regexp(pattern string) (Matcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
	}
	return regexpMatcher{re: re}, nil
}

// MustRegexp is Regexp for compile-time constant patterns.
func MustRegexp(pattern string) Matcher {
	return regexpMatcher{re: regexp.MustCompile(pattern)}
}

// Rule is a single named detection rule. Rules are immutable once built.
type Rule struct {
	Name        string
	Category    Category
	Provider    string
	EnvVar      string
	Remediation string

	// Keywords are lower-case literals at least one of which must appear
	// in a line before Matcher is evaluated. Empty means always evaluate.
	Keywords []string

	// Allow lists literal substrings that, when present in a matched
	// value, mark it as a placeholder rather than a finding.
	Allow []string

	Matcher   Matcher
	Exclusion Matcher
}

// Matches reports whether the rule fires on line. A matching Exclusion
// suppresses the rule for the whole line.
func (r *Rule) Matches(line string) bool {
	if !r.Matcher.Matches(line) {
		return false
	}
	return r.Exclusion == nil || !r.Exclusion.Matches(line)
}

// Locate returns the byte range of the match on line, or nil when the rule
// does not fire.
func (r *Rule) Locate(line string) []int {
	if !r.Matches(line) {
		return nil
	}
	return r.Matcher.FindIndex(line)
}
