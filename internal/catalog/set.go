package catalog

import (
	"strings"

	ahocorasick "github.com/BobuSumisu/aho-corasick"
)

// Source describes where a Set's rules came from.
type Source string

const (
	SourceNone        Source = "none"
	SourceBuiltin     Source = "builtin"
	SourceFile        Source = "file"
	SourceFileBuiltin Source = "file+builtin"
)

// Set is an ordered, immutable group of rules of one category. Rules that
// declare keywords are gated by a single Aho-Corasick pass over the line.
type Set struct {
	Category Category
	Source   Source

	rules   []*Rule
	trie    *ahocorasick.Trie
	owners  [][]int // keyword index -> rule indices
	unkeyed []int
}

// NewSet builds a Set, preserving declaration order.
func NewSet(category Category, source Source, rules []*Rule) *Set {
	s := &Set{Category: category, Source: source, rules: rules}

	var keywords []string
	index := make(map[string]int)
	for i, r := range rules {
		if len(r.Keywords) == 0 {
			s.unkeyed = append(s.unkeyed, i)
			continue
		}
		for _, kw := range r.Keywords {
			kw = strings.ToLower(kw)
			k, ok := index[kw]
			if !ok {
				k = len(keywords)
				index[kw] = k
				keywords = append(keywords, kw)
				s.owners = append(s.owners, nil)
			}
			s.owners[k] = append(s.owners[k], i)
		}
	}
	if len(keywords) > 0 {
		s.trie = ahocorasick.NewTrieBuilder().AddStrings(keywords).Build()
	}
	return s
}

// Empty returns a Set with no rules; scanning with it is a no-op.
func Empty(category Category) *Set {
	return NewSet(category, SourceNone, nil)
}

// Rules returns the rules in declaration order.
func (s *Set) Rules() []*Rule {
	return s.rules
}

// Len returns the number of rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Candidates returns the rules worth evaluating on line, in declaration order.
func (s *Set) Candidates(line string) []*Rule {
	if s.Len() == 0 {
		return nil
	}
	if s.trie == nil {
		return s.rules
	}

	selected := make([]bool, len(s.rules))
	for _, i := range s.unkeyed {
		selected[i] = true
	}
	for _, m := range s.trie.MatchString(strings.ToLower(line)) {
		for _, i := range s.owners[m.Pattern()] {
			selected[i] = true
		}
	}

	out := make([]*Rule, 0, len(s.rules))
	for i, ok := range selected {
		if ok {
			out = append(out, s.rules[i])
		}
	}
	return out
}

// Match returns every rule that fires on line, in declaration order.
func (s *Set) Match(line string) []*Rule {
	var out []*Rule
	for _, r := range s.Candidates(line) {
		if r.Matches(line) {
			out = append(out, r)
		}
	}
	return out
}

// First returns the first rule in declaration order that fires on line.
func (s *Set) First(line string) *Rule {
	for _, r := range s.Candidates(line) {
		if r.Matches(line) {
			return r
		}
	}
	return nil
}
