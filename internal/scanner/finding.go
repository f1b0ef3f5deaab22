package scanner

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/commitguard/internal/catalog"
)

// Severity separates findings that always block from those that need a
// human decision.
type Severity string

const (
	SeverityHard Severity = "hard"
	SeveritySoft Severity = "soft"

	// SeverityInfo findings are reported and audited but never block.
	SeverityInfo Severity = "info"
)

// Rule names for findings that do not come from the catalog.
const (
	RuleHighEntropy     = "High Entropy String"
	RuleEnvironmentFile = "Environment File"
	RulePrivateKeyFile  = "Private Key File"
	RuleCredentialsFile = "Credentials File"
	RuleGenericAPIKey   = "Generic API Key"
	RuleBearerToken     = "Bearer Token"
	gitleaksRulePrefix  = "gitleaks:"
)

// maxSnippet bounds Finding.Snippet in runes.
const maxSnippet = 120

// Finding is one detection. Line is 1-based; 0 means the whole file.
type Finding struct {
	Path        string
	Line        int
	Rule        string
	Category    catalog.Category
	Severity    Severity
	Snippet     string
	Provider    string
	Remediation string

	// match is the raw detected value; it never leaves the process.
	match string
}

// Hard reports whether the finding blocks without confirmation.
func (f Finding) Hard() bool { return f.Severity == SeverityHard }

// Location formats path:line, or just the path for whole-file findings.
func (f Finding) Location() string {
	if f.Line <= 0 {
		return f.Path
	}
	return f.Path + ":" + strconv.Itoa(f.Line)
}

// NewFinding builds a finding for line. span is the byte range [start,end)
// of the detected value; it and every range in redact are masked in the
// snippet. A nil span masks nothing of its own.
func NewFinding(path string, lineNum int, rule string, category catalog.Category, severity Severity, line string, span []int, redact ...[]int) Finding {
	f := Finding{
		Path:     path,
		Line:     lineNum,
		Rule:     rule,
		Category: category,
		Severity: severity,
	}
	if validSpan(line, span) {
		f.match = line[span[0]:span[1]]
	}
	f.Snippet = bound(strings.TrimSpace(Redact(line, append([][]int{span}, redact...))), maxSnippet)
	return f
}

// Redact masks every byte range of spans in line. Overlapping ranges are
// masked as one and invalid ranges are ignored.
func Redact(line string, spans [][]int) string {
	valid := make([][]int, 0, len(spans))
	for _, sp := range spans {
		if validSpan(line, sp) {
			valid = append(valid, sp)
		}
	}
	if len(valid) == 0 {
		return line
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i][0] < valid[j][0] })

	var b strings.Builder
	pos := 0
	for i := 0; i < len(valid); {
		start, end := valid[i][0], valid[i][1]
		for i++; i < len(valid) && valid[i][0] < end; i++ {
			end = max(end, valid[i][1])
		}
		b.WriteString(line[pos:start])
		b.WriteString(Mask(line[start:end]))
		pos = end
	}
	b.WriteString(line[pos:])
	return b.String()
}

func validSpan(line string, span []int) bool {
	return len(span) == 2 && span[0] >= 0 && span[1] <= len(line) && span[0] < span[1]
}

// Mask hides a secret behind a four-character preview.
func Mask(secret string) string {
	return "[REDACTED:" + extractPreview(secret, 4) + "]"
}

// extractPreview returns the first n runes of s.
func extractPreview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func bound(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return extractPreview(s, n) + "..."
}
