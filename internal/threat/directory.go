package threat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitguard/internal/catalog"
	"github.com/fyrsmithlabs/commitguard/internal/ignore"
	"github.com/fyrsmithlabs/commitguard/internal/logging"
	"github.com/fyrsmithlabs/commitguard/internal/scanner"
	"github.com/fyrsmithlabs/commitguard/internal/selector"
)

// checkDirectory verifies .gitignore covers the AI working files and that
// none of them is staged. It looks at every staged path, including
// deletions and paths the selector ignored.
func (s *Scanner) checkDirectory(ctx context.Context, sel *selector.Selection) []scanner.Finding {
	var findings []scanner.Finding
	findings = append(findings, s.checkGitignore(ctx, sel.Root)...)

	for _, p := range sel.StagedPaths() {
		for _, prefix := range ProtectedPrefixes {
			if strings.HasPrefix(p, prefix) {
				f := scanner.NewFinding(p, 0, RuleProtectedStaged, catalog.CategoryDirectory, scanner.SeverityHard, "", nil)
				f.Remediation = "Unstage the file (git rm --cached) and add it to .gitignore"
				findings = append(findings, f)
				break
			}
		}
	}
	return findings
}

func (s *Scanner) checkGitignore(ctx context.Context, root string) []scanner.Finding {
	name := s.opts.IgnorePolicyFile
	if name == "" {
		name = ".gitignore"
	}

	lines, err := ignore.ReadLines(filepath.Join(root, name))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.FromContext(ctx).Named("threat").Warn(ctx, "ignore policy unreadable",
				zap.String("path", name), zap.Error(err))
		}
		f := scanner.NewFinding(name, 0, RuleGitignoreMissing, catalog.CategoryDirectory, scanner.SeverityHard, "", nil)
		f.Remediation = "Create " + name + " with: " + strings.Join(RequiredIgnoreEntries, ", ")
		return []scanner.Finding{f}
	}

	present := make(map[string]bool, len(lines))
	for _, l := range lines {
		present[l] = true
	}

	var findings []scanner.Finding
	for _, entry := range RequiredIgnoreEntries {
		if present[entry] {
			continue
		}
		f := scanner.NewFinding(name, 0, RuleGitignoreEntry, catalog.CategoryDirectory, scanner.SeverityHard, entry, nil)
		f.Remediation = "Add '" + entry + "' to " + name
		findings = append(findings, f)
	}
	return findings
}
