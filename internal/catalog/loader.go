package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitguard/internal/config"
	"github.com/fyrsmithlabs/commitguard/internal/logging"
)

// File is the on-disk pattern file format shared by all categories.
type File struct {
	Version  string        `json:"version"`
	Patterns []PatternSpec `json:"patterns"`
}

// PatternSpec is one rule as written in a pattern file.
type PatternSpec struct {
	Name        string   `json:"name"`
	Provider    string   `json:"provider,omitempty"`
	Regex       string   `json:"regex"`
	Exclude     string   `json:"exclude,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Allow       []string `json:"allow,omitempty"`
	Remediation string   `json:"remediation,omitempty"`
	EnvVar      string   `json:"env_var,omitempty"`
}

// Options locates pattern files relative to the repository root.
type Options struct {
	SecretPatterns    string
	InjectionPatterns string
	PIIPatterns       string
	BuiltinSignatures bool
}

// OptionsFromConfig maps the catalog section of the tool config.
func OptionsFromConfig(cfg config.CatalogConfig) Options {
	return Options{
		SecretPatterns:    cfg.SecretPatterns,
		InjectionPatterns: cfg.InjectionPatterns,
		PIIPatterns:       cfg.PIIPatterns,
		BuiltinSignatures: cfg.BuiltinSignatures,
	}
}

// Catalog is the per-run collection of rule sets.
type Catalog struct {
	Secrets   *Set
	Injection *Set
	PII       *Set
}

// Load builds a Catalog for the repository at root. It never fails: a
// missing or invalid source degrades its category and logs a warning.
func Load(ctx context.Context, root string, opts Options) *Catalog {
	logger := logging.FromContext(ctx).Named("catalog")

	var builtinSecrets []*Rule
	if opts.BuiltinSignatures {
		builtinSecrets = BuiltinSignatures()
	}

	return &Catalog{
		Secrets:   loadCategory(ctx, logger, root, opts.SecretPatterns, CategorySecret, builtinSecrets, true),
		Injection: loadCategory(ctx, logger, root, opts.InjectionPatterns, CategoryInjection, BuiltinInjectionPhrases(), false),
		PII:       loadCategory(ctx, logger, root, opts.PIIPatterns, CategoryPII, BuiltinPIIShapes(), false),
	}
}

// loadCategory applies the degrade rules for one category.
//
// Secrets (builtinOnMissing): builtins always apply, file rules are merged
// on top. Injection and PII: the file gates the category; an empty file
// selects the builtins.
func loadCategory(ctx context.Context, logger *logging.Logger, root, rel string, category Category, builtin []*Rule, builtinOnMissing bool) *Set {
	fallback := func() *Set {
		if builtinOnMissing && len(builtin) > 0 {
			return NewSet(category, SourceBuiltin, builtin)
		}
		return Empty(category)
	}

	if rel == "" {
		return fallback()
	}
	path := filepath.Join(root, rel)

	rules, err := LoadFile(path, category)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Warn(ctx, "pattern file not found; category degraded",
			zap.String("category", string(category)),
			zap.String("path", rel))
		return fallback()
	case err != nil:
		logger.Error(ctx, "pattern file rejected; category degraded",
			zap.String("category", string(category)),
			zap.String("path", rel),
			zap.Error(err))
		return fallback()
	}

	if len(rules) == 0 {
		if len(builtin) == 0 {
			return Empty(category)
		}
		return NewSet(category, SourceBuiltin, builtin)
	}
	if !builtinOnMissing || len(builtin) == 0 {
		return NewSet(category, SourceFile, rules)
	}
	return NewSet(category, SourceFileBuiltin, merge(builtin, rules))
}

// merge appends file rules to builtins; a file rule replaces the builtin
// of the same name in place.
func merge(builtin, file []*Rule) []*Rule {
	byName := make(map[string]int, len(builtin))
	out := make([]*Rule, len(builtin), len(builtin)+len(file))
	copy(out, builtin)
	for i, r := range out {
		byName[r.Name] = i
	}
	for _, r := range file {
		if i, ok := byName[r.Name]; ok {
			out[i] = r
			continue
		}
		out = append(out, r)
	}
	return out
}

// LoadFile parses and compiles a pattern file. The returned error wraps
// os.ErrNotExist when the file is absent.
func LoadFile(path string, category Category) ([]*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFile, path, err)
	}
	if f.Version != "" && !strings.HasPrefix(f.Version, "1") {
		return nil, fmt.Errorf("%w: %s: %q", ErrUnsupportedVersion, path, f.Version)
	}

	rules := make([]*Rule, 0, len(f.Patterns))
	seen := make(map[string]bool, len(f.Patterns))
	for i, p := range f.Patterns {
		r, err := p.compile(category)
		if err != nil {
			return nil, fmt.Errorf("%s: pattern %d: %w", path, i, err)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("%w: %s: duplicate rule name %q", ErrInvalidFile, path, r.Name)
		}
		seen[r.Name] = true
		rules = append(rules, r)
	}
	return rules, nil
}

func (p PatternSpec) compile(category Category) (*Rule, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: rule name is required", ErrInvalidFile)
	}
	if p.Regex == "" {
		return nil, fmt.Errorf("%w: rule %s: regex is required", ErrInvalidFile, p.Name)
	}

	m, err := Regexp(p.Regex)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", p.Name, err)
	}
	r := &Rule{
		Name:        p.Name,
		Category:    category,
		Provider:    p.Provider,
		EnvVar:      p.EnvVar,
		Remediation: p.Remediation,
		Allow:       p.Allow,
		Matcher:     m,
	}
	for _, kw := range p.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			r.Keywords = append(r.Keywords, kw)
		}
	}
	if p.Exclude != "" {
		if r.Exclusion, err = Regexp(p.Exclude); err != nil {
			return nil, fmt.Errorf("rule %s: exclude: %w", p.Name, err)
		}
	}
	if r.Remediation == "" && r.EnvVar != "" {
		r.Remediation = envRemediation + " (" + r.EnvVar + ")"
	}
	return r, nil
}
