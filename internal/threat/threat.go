// Package threat protects AI assistants working in the repository: it
// detects prompt-injection payloads in staged files, PII in AI log files,
// and AI working files that escape .gitignore.
package threat

import (
	"context"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitguard/internal/catalog"
	"github.com/fyrsmithlabs/commitguard/internal/config"
	"github.com/fyrsmithlabs/commitguard/internal/logging"
	"github.com/fyrsmithlabs/commitguard/internal/scanner"
	"github.com/fyrsmithlabs/commitguard/internal/selector"
)

// Rule names for directory-protection findings.
const (
	RuleGitignoreMissing = "Missing .gitignore"
	RuleGitignoreEntry   = "Missing .gitignore Entry"
	RuleProtectedStaged  = "Protected AI File Staged"
)

// RequiredIgnoreEntries must each appear as a whole line in .gitignore.
var RequiredIgnoreEntries = []string{
	".ai/audit-trail.log",
	".ai/.ai-protection-cache/",
	"ai-logs/",
}

// ProtectedPrefixes may never be staged.
var ProtectedPrefixes = []string{
	".ai/audit-trail.log",
	".ai/.ai-protection-cache",
	"ai-logs/",
}

// Redactor locates secret values on a line so snippets never carry them.
type Redactor interface {
	SecretSpans(line string) [][]int
}

// Options locates the AI-protection inputs relative to the repository root.
type Options struct {
	PolicyFile       string
	IgnorePolicyFile string
	AILogFiles       []string

	// Redactor masks secrets in injection snippets. Nil uses the built-in
	// signatures.
	Redactor Redactor
}

// OptionsFromConfig maps the threat section of the tool config.
func OptionsFromConfig(cfg config.ThreatConfig) Options {
	return Options{
		PolicyFile:       cfg.PolicyFile,
		IgnorePolicyFile: cfg.IgnorePolicyFile,
		AILogFiles:       cfg.AILogFiles,
	}
}

// Report holds the results of the three checks.
type Report struct {
	// Configured is false when the policy file is absent; no check ran.
	Configured bool

	Injection []scanner.Finding
	PII       []scanner.Finding
	Directory []scanner.Finding
}

// Blocking returns the findings that block the commit.
func (r *Report) Blocking() []scanner.Finding {
	if r == nil {
		return nil
	}
	out := make([]scanner.Finding, 0, len(r.Injection)+len(r.Directory))
	out = append(out, r.Injection...)
	return append(out, r.Directory...)
}

// All returns every finding, blocking ones first.
func (r *Report) All() []scanner.Finding {
	if r == nil {
		return nil
	}
	return append(r.Blocking(), r.PII...)
}

// Scanner runs the AI-protection checks.
type Scanner struct {
	injection *catalog.Set
	pii       *catalog.Set
	opts      Options
}

// New creates a Scanner. Nil sets disable their check.
func New(injection, pii *catalog.Set, opts Options) *Scanner {
	if injection == nil {
		injection = catalog.Empty(catalog.CategoryInjection)
	}
	if pii == nil {
		pii = catalog.Empty(catalog.CategoryPII)
	}
	if opts.Redactor == nil {
		opts.Redactor = scanner.New(catalog.NewSet(catalog.CategorySecret, catalog.SourceBuiltin, catalog.BuiltinSignatures()), scanner.Options{})
	}
	return &Scanner{injection: injection, pii: pii, opts: opts}
}

// Configured reports whether AI protection is enabled for the repository.
func (s *Scanner) Configured(root string) bool {
	if s.opts.PolicyFile == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(root, s.opts.PolicyFile))
	return err == nil
}

// Scan runs all checks independently. It returns an unconfigured report
// when the policy file is absent.
func (s *Scanner) Scan(ctx context.Context, sel *selector.Selection) (*Report, error) {
	span := trace.SpanFromContext(ctx)
	logger := logging.FromContext(ctx).Named("threat")

	report := &Report{}
	if !s.Configured(sel.Root) {
		logger.Warn(ctx, "AI protection not configured", zap.String("policy", s.opts.PolicyFile))
		span.SetAttributes(attribute.Bool("configured", false))
		return report, nil
	}
	report.Configured = true

	var err error
	if report.Injection, err = s.checkInjection(ctx, sel); err != nil {
		return nil, err
	}
	report.PII = s.checkPII(ctx, sel.Root)
	report.Directory = s.checkDirectory(ctx, sel)

	for _, f := range report.PII {
		logger.Warn(ctx, "PII in AI log",
			zap.String("path", f.Path),
			zap.String("rule", f.Rule),
			zap.String("detail", f.Snippet))
	}

	span.SetAttributes(
		attribute.Bool("configured", true),
		attribute.Int("findings.injection", len(report.Injection)),
		attribute.Int("findings.pii", len(report.PII)),
		attribute.Int("findings.directory", len(report.Directory)),
	)
	return report, nil
}
