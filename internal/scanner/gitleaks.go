package scanner

import (
	"fmt"
	"strings"

	"github.com/zricethezav/gitleaks/v8/detect"

	"github.com/fyrsmithlabs/commitguard/internal/catalog"
)

// deepScanner runs the gitleaks default rule set over whole files.
type deepScanner struct {
	detector *detect.Detector
}

func newDeepScanner(allowlist *Allowlist) (*deepScanner, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating gitleaks detector: %w", err)
	}
	allowlist.apply(&detector.Config)
	return &deepScanner{detector: detector}, nil
}

// scan returns hard findings for content. Line numbers are recovered by
// locating each match in content. Snippets mask every gitleaks match on the
// line as well as the ranges redact reports.
func (d *deepScanner) scan(path, content string, lines []string, redact func(string) [][]int) []Finding {
	results := d.detector.DetectString(content)
	if len(results) == 0 {
		return nil
	}

	type hit struct {
		line   int
		secret string
		span   []int
	}
	hits := make([]hit, len(results))
	extra := make(map[int][][]int)
	for i, r := range results {
		lineNum := lineOf(content, r.Match)
		if lineNum == 0 {
			lineNum = r.StartLine + 1
		}
		secret := r.Secret
		if secret == "" {
			secret = r.Match
		}
		h := hit{line: lineNum, secret: secret}
		if j := strings.Index(lineAt(lines, lineNum), secret); j >= 0 && secret != "" {
			h.span = []int{j, j + len(secret)}
			extra[lineNum] = append(extra[lineNum], h.span)
		}
		hits[i] = h
	}

	out := make([]Finding, 0, len(results))
	for i, r := range results {
		h := hits[i]
		line := lineAt(lines, h.line)
		spans := append(redact(line), extra[h.line]...)

		f := NewFinding(path, h.line, gitleaksRulePrefix+r.RuleID, catalog.CategorySecret, SeverityHard, line, h.span, spans...)
		if f.match == "" {
			f.match = h.secret
		}
		f.Remediation = r.Description
		out = append(out, f)
	}
	return out
}

func lineAt(lines []string, n int) string {
	if n >= 1 && n <= len(lines) {
		return lines[n-1]
	}
	return ""
}

// lineOf returns the 1-based line of the first occurrence of needle, or 0.
func lineOf(content, needle string) int {
	if needle == "" {
		return 0
	}
	i := strings.Index(content, needle)
	if i < 0 {
		return 0
	}
	return strings.Count(content[:i], "\n") + 1
}
