// Package entropy scores candidate tokens by Shannon entropy to catch
// secrets that no provider signature describes.
package entropy

import (
	"math"
	"regexp"
	"unicode/utf8"
)

const (
	// MinLength is the shortest token that is scored at all.
	MinLength = 20

	// Threshold is the score above which a token is flagged.
	Threshold = 4.5
)

var (
	placeholder = regexp.MustCompile(`(?i)example|test|demo|placeholder|your.?key|xxx|sample|fake`)
	quoted      = regexp.MustCompile(`["']([A-Za-z0-9+/=_-]{20,})["']`)
)

// Shannon returns the Shannon entropy of token in bits per rune.
// Tokens shorter than MinLength runes score 0.
func Shannon(token string) float64 {
	n := utf8.RuneCountInString(token)
	if n < MinLength {
		return 0
	}

	freq := make(map[rune]int, n)
	for _, r := range token {
		freq[r]++
	}

	var h float64
	for _, c := range freq {
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	return h
}

// IsPlaceholder reports whether token looks like documentation filler.
func IsPlaceholder(token string) bool {
	return placeholder.MatchString(token)
}

// Flagged reports whether token scores above Threshold and is not a placeholder.
func Flagged(token string) bool {
	return Shannon(token) > Threshold && !IsPlaceholder(token)
}

// Candidate is a quoted token extracted from a line.
type Candidate struct {
	Token string
	Start int // byte offset of the token within the line
	End   int
}

// Candidates extracts the inner tokens of quoted substrings on line.
func Candidates(line string) []Candidate {
	matches := quoted.FindAllStringSubmatchIndex(line, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, Candidate{Token: line[m[2]:m[3]], Start: m[2], End: m[3]})
	}
	return out
}

// Scan returns the flagged candidates on line in order of appearance.
func Scan(line string) []Candidate {
	var out []Candidate
	for _, c := range Candidates(line) {
		if Flagged(c.Token) {
			out = append(out, c)
		}
	}
	return out
}
