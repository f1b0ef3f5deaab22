package threat

import (
	"context"
	"path"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/fyrsmithlabs/commitguard/internal/catalog"
	"github.com/fyrsmithlabs/commitguard/internal/logging"
	"github.com/fyrsmithlabs/commitguard/internal/scanner"
	"github.com/fyrsmithlabs/commitguard/internal/selector"
)

// whitelistedDirs are path segments under which instructions to AI
// assistants are expected content.
var whitelistedDirs = []string{"docs", "examples", "test", "tests", "__tests__", "testdata"}

// Whitelisted reports whether p is exempt from the injection check.
func Whitelisted(p string) bool {
	base := path.Base(p)
	if strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") {
		return true
	}
	dirs := strings.Split(path.Dir(p), "/")
	for _, d := range dirs {
		for _, w := range whitelistedDirs {
			if d == w {
				return true
			}
		}
	}
	return false
}

// Normalize folds compatibility forms (NFKC) and removes control and
// format characters so look-alike payloads match the phrase set. Tabs
// become spaces.
func Normalize(line string) string {
	line = norm.NFKC.String(line)
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t':
			return ' '
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, line)
}

// checkInjection reports the first match per file and moves on.
func (s *Scanner) checkInjection(ctx context.Context, sel *selector.Selection) ([]scanner.Finding, error) {
	if s.injection.Len() == 0 {
		return nil, nil
	}
	logger := logging.FromContext(ctx).Named("threat")

	var findings []scanner.Finding
	for _, t := range sel.Targets() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if Whitelisted(t.Path) {
			continue
		}
		content, err := sel.Read(t)
		if err != nil {
			logger.Warn(ctx, "file unreadable; skipped", zap.String("path", t.Path), zap.Error(err))
			continue
		}
		if f := s.firstInjection(t.Path, string(content)); f != nil {
			findings = append(findings, *f)
		}
	}
	return findings, nil
}

func (s *Scanner) firstInjection(p, content string) *scanner.Finding {
	for i, line := range strings.Split(content, "\n") {
		line = Normalize(line)
		r := s.injection.First(line)
		if r == nil {
			continue
		}
		f := scanner.NewFinding(p, i+1, r.Name, catalog.CategoryInjection, scanner.SeverityHard, line, nil, s.opts.Redactor.SecretSpans(line)...)
		f.Remediation = r.Remediation
		return &f
	}
	return nil
}
