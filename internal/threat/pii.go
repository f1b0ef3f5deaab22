package threat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitguard/internal/catalog"
	"github.com/fyrsmithlabs/commitguard/internal/logging"
	"github.com/fyrsmithlabs/commitguard/internal/scanner"
)

// identityField holds the committer identity in audit-trail lines; it is
// written by this tool and is not a leak.
const identityField = "actor"

type piiHit struct {
	rule  *catalog.Rule
	line  int
	count int
}

// checkPII scans the AI log files. Findings carry SeverityInfo and one
// entry per file and shape, with the count in the snippet.
func (s *Scanner) checkPII(ctx context.Context, root string) []scanner.Finding {
	if s.pii.Len() == 0 {
		return nil
	}
	logger := logging.FromContext(ctx).Named("threat")

	var findings []scanner.Finding
	for _, rel := range s.opts.AILogFiles {
		data, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logger.Warn(ctx, "AI log unreadable", zap.String("path", rel), zap.Error(err))
			}
			continue
		}
		findings = append(findings, s.scanLog(rel, string(data))...)
	}
	return findings
}

func (s *Scanner) scanLog(rel, content string) []scanner.Finding {
	var hits []*piiHit
	byRule := make(map[string]*piiHit)

	for i, line := range strings.Split(content, "\n") {
		line = withoutIdentity(line)
		for _, r := range s.pii.Candidates(line) {
			n := countMatches(r, line)
			if n == 0 {
				continue
			}
			h, ok := byRule[r.Name]
			if !ok {
				h = &piiHit{rule: r, line: i + 1}
				byRule[r.Name] = h
				hits = append(hits, h)
			}
			h.count += n
		}
	}

	out := make([]scanner.Finding, 0, len(hits))
	for _, h := range hits {
		f := scanner.NewFinding(rel, h.line, h.rule.Name, catalog.CategoryPII, scanner.SeverityInfo,
			fmt.Sprintf("%d match(es)", h.count), nil)
		f.Remediation = h.rule.Remediation
		out = append(out, f)
	}
	return out
}

// countMatches counts the matches of r on line that no Allow entry covers.
func countMatches(r *catalog.Rule, line string) int {
	n := 0
	for line != "" {
		loc := r.Locate(line)
		if loc == nil {
			break
		}
		if !allowed(r, line[loc[0]:loc[1]]) {
			n++
		}
		if loc[1] == 0 {
			break
		}
		line = line[loc[1]:]
	}
	return n
}

func allowed(r *catalog.Rule, value string) bool {
	for _, a := range r.Allow {
		if strings.Contains(value, a) {
			return true
		}
	}
	return false
}

// withoutIdentity drops the identity field from a JSON audit line. Other
// lines are returned unchanged.
func withoutIdentity(line string) string {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return line
	}
	var entry map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &entry); err != nil {
		return line
	}
	if _, ok := entry[identityField]; !ok {
		return line
	}
	delete(entry, identityField)
	out, err := json.Marshal(entry)
	if err != nil {
		return line
	}
	return string(out)
}
