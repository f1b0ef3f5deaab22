// Package scanner finds secrets and credentials in the staged files:
// provider signatures, high-entropy literals, credential file names, and
// softer suspicions that need confirmation.
package scanner

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitguard/internal/catalog"
	"github.com/fyrsmithlabs/commitguard/internal/entropy"
	"github.com/fyrsmithlabs/commitguard/internal/logging"
	"github.com/fyrsmithlabs/commitguard/internal/selector"
)

// DefaultBypassMarkers exempt a line from content checks.
var DefaultBypassMarkers = []string{"secure-ignore", "security:ignore", "nosecret"}

// Options configures a Scanner.
type Options struct {
	BypassMarkers []string

	// DeepScan also runs the gitleaks default rules.
	DeepScan bool

	// Allowlist suppresses findings by path or value. Nil allows nothing.
	Allowlist *Allowlist
}

// Scanner applies the secret checks. It holds no per-run state.
type Scanner struct {
	signatures *catalog.Set
	opts       Options

	deepOnce sync.Once
	deep     *deepScanner
	deepErr  error
}

// New creates a Scanner over the secret rule set.
func New(signatures *catalog.Set, opts Options) *Scanner {
	if signatures == nil {
		signatures = catalog.Empty(catalog.CategorySecret)
	}
	if opts.BypassMarkers == nil {
		opts.BypassMarkers = DefaultBypassMarkers
	}
	return &Scanner{signatures: signatures, opts: opts}
}

// Scan checks every file of sel and returns findings in file order, then
// line order. Filename checks cover files whose content is not scanned.
func (s *Scanner) Scan(ctx context.Context, sel *selector.Selection) ([]Finding, error) {
	span := trace.SpanFromContext(ctx)
	logger := logging.FromContext(ctx).Named("scanner")

	var findings []Finding
	scanned := 0
	for _, t := range sel.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if f := CheckFilename(t.Path); f != nil {
			findings = append(findings, *f)
		}
		if !t.Scannable() {
			continue
		}

		content, err := sel.Read(t)
		if err != nil {
			logger.Warn(ctx, "file unreadable; skipped", zap.String("path", t.Path), zap.Error(err))
			continue
		}
		scanned++
		findings = append(findings, s.ScanContent(ctx, t.Path, string(content))...)
	}

	findings = s.opts.Allowlist.Filter(findings)

	hard := 0
	for _, f := range findings {
		if f.Hard() {
			hard++
		}
	}
	span.SetAttributes(
		attribute.Int("files_scanned", scanned),
		attribute.Int("findings.hard", hard),
		attribute.Int("findings.soft", len(findings)-hard),
	)
	return findings, nil
}

// ScanContent runs the content checks on one file. The allowlist is not
// applied here.
func (s *Scanner) ScanContent(ctx context.Context, path, content string) []Finding {
	lines := strings.Split(content, "\n")
	soft := softEligible(path)

	var findings []Finding
	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if s.bypassed(line) {
			continue
		}
		lineNum := i + 1

		sigs := s.signatures.Match(line)
		candidates := entropy.Scan(line)
		redact := lineSpans(line, sigs, candidates)

		for _, r := range sigs {
			f := NewFinding(path, lineNum, r.Name, catalog.CategorySecret, SeverityHard, line, r.Locate(line), redact...)
			f.Provider = r.Provider
			f.Remediation = r.Remediation
			findings = append(findings, f)
		}

		for _, c := range candidates {
			f := NewFinding(path, lineNum, RuleHighEntropy, catalog.CategorySecret, SeverityHard, line, []int{c.Start, c.End}, redact...)
			f.Remediation = "Move the value to an environment variable"
			findings = append(findings, f)
		}

		if soft && !commentLine.MatchString(line) {
			for _, r := range softRules {
				loc := r.pattern.FindStringIndex(line)
				if loc == nil || r.allow.MatchString(line) {
					continue
				}
				f := NewFinding(path, lineNum, r.name, catalog.CategorySecret, SeveritySoft, line, loc, redact...)
				f.Remediation = r.remediation
				findings = append(findings, f)
			}
		}
	}

	if s.opts.DeepScan {
		if deep := s.deepScan(ctx, path, content, lines, findings); len(deep) > 0 {
			findings = append(findings, deep...)
			sort.SliceStable(findings, func(i, j int) bool { return findings[i].Line < findings[j].Line })
		}
	}
	return findings
}

// deepScan adds gitleaks findings on lines that are neither bypassed nor
// already reported.
func (s *Scanner) deepScan(ctx context.Context, path, content string, lines []string, existing []Finding) []Finding {
	s.deepOnce.Do(func() {
		s.deep, s.deepErr = newDeepScanner(s.opts.Allowlist)
	})
	if s.deepErr != nil {
		logging.FromContext(ctx).Named("scanner").Warn(ctx, "deep scan unavailable", zap.Error(s.deepErr))
		return nil
	}

	reported := make(map[int]bool, len(existing))
	for _, f := range existing {
		if f.Hard() {
			reported[f.Line] = true
		}
	}

	var out []Finding
	for _, f := range s.deep.scan(path, content, lines, s.SecretSpans) {
		if reported[f.Line] {
			continue
		}
		if f.Line >= 1 && f.Line <= len(lines) && s.bypassed(lines[f.Line-1]) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// SecretSpans returns the byte ranges of every signature, entropy and
// Tier 2 match on line.
func (s *Scanner) SecretSpans(line string) [][]int {
	return lineSpans(line, s.signatures.Match(line), entropy.Scan(line))
}

func lineSpans(line string, sigs []*catalog.Rule, candidates []entropy.Candidate) [][]int {
	spans := make([][]int, 0, len(sigs)+len(candidates))
	for _, r := range sigs {
		for off := 0; off < len(line); {
			loc := r.Matcher.FindIndex(line[off:])
			if loc == nil {
				break
			}
			spans = append(spans, []int{off + loc[0], off + loc[1]})
			off += max(loc[1], 1)
		}
	}
	for _, c := range candidates {
		spans = append(spans, []int{c.Start, c.End})
	}
	for _, r := range softRules {
		spans = append(spans, r.pattern.FindAllStringIndex(line, -1)...)
	}
	return spans
}

func (s *Scanner) bypassed(line string) bool {
	for _, m := range s.opts.BypassMarkers {
		if m != "" && strings.Contains(line, m) {
			return true
		}
	}
	return false
}
