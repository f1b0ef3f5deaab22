// Package ignore decides which staged paths are exempt from content
// scanning: a fixed built-in list plus the repository's .securityignore.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Builtin lists the substrings that always exempt a path.
var Builtin = []string{
	".env.example",
	".env.sample",
	".env.template",
	"scripts/pre-commit",
	"scripts/pre-commit.js",
	"scripts/pre-commit.ps1",
	"scripts/seo-check.sh",
	".ai/security-policy.json",
	".ai/forbidden-trackers.json",
	"RULES_CORE.md",
	"RULES_PRODUCT.md",
	"node_modules/",
	"dist/",
	"build/",
	"vendor/",
	"examples/",
	"tests/fixtures/",
	"__tests__/mocks/",
	"testdata/",
}

// Rule is one ignore line. Every rule matches by substring; lines with glob
// metacharacters also match as a glob.
type Rule struct {
	Pattern string
	glob    glob.Glob
	base    bool // glob has no separator, so it is also tried on the basename
}

// NewRule compiles a single ignore line.
func NewRule(pattern string) (Rule, error) {
	r := Rule{Pattern: pattern}
	if !strings.ContainsAny(pattern, "*?[{") {
		return r, nil
	}
	g, err := glob.Compile(strings.TrimPrefix(pattern, "/"), '/')
	if err != nil {
		return r, fmt.Errorf("compiling glob %q: %w", pattern, err)
	}
	r.glob = g
	r.base = !strings.Contains(pattern, "/")
	return r, nil
}

// Match reports whether p (slash-separated, repo-relative) is covered.
func (r Rule) Match(p string) bool {
	if strings.Contains(p, r.Pattern) {
		return true
	}
	if r.glob == nil {
		return false
	}
	if r.glob.Match(p) {
		return true
	}
	return r.base && r.glob.Match(path.Base(p))
}

// Matcher is the combined ignore list for one repository.
type Matcher struct {
	rules []Rule
}

// New builds a Matcher from the built-in list plus extra patterns.
// Patterns that fail to compile as globs still match by substring.
func New(extra ...string) *Matcher {
	m := &Matcher{rules: make([]Rule, 0, len(Builtin)+len(extra))}
	for _, p := range Builtin {
		m.rules = append(m.rules, Rule{Pattern: p})
	}
	for _, p := range extra {
		r, _ := NewRule(p)
		m.rules = append(m.rules, r)
	}
	return m
}

// Load builds a Matcher from the built-ins, extra, and the ignore file at
// repoRoot/name. A missing file is not an error.
func Load(repoRoot, name string, extra ...string) (*Matcher, error) {
	patterns := append([]string(nil), extra...)
	if name != "" {
		lines, err := ReadLines(filepath.Join(repoRoot, name))
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		patterns = append(patterns, lines...)
	}
	return New(deduplicate(patterns)...), nil
}

// Ignored reports whether p is covered by any rule.
func (m *Matcher) Ignored(p string) bool {
	p = filepath.ToSlash(p)
	for _, r := range m.rules {
		if r.Match(p) {
			return true
		}
	}
	return false
}

// Rules returns the rules in evaluation order.
func (m *Matcher) Rules() []Rule {
	return m.rules
}

// ReadLines returns the significant lines of a line-oriented policy file:
// trimmed, without blanks or # comments.
func ReadLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := parseLine(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func parseLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	return line
}

// deduplicate removes duplicate patterns while preserving order.
func deduplicate(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))

	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}

	return result
}
