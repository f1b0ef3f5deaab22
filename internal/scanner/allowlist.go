package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Allowlist holds path and content patterns that suppress secret findings.
// It reads the [allowlist] table of a gitleaks config file.
type Allowlist struct {
	Paths   []string // file path regex patterns to ignore
	Regexes []string // content regex patterns to ignore

	paths   []*regexp.Regexp
	regexes []*regexp.Regexp
}

// LoadAllowlist reads name from repoRoot. A missing file yields an empty
// allowlist; invalid TOML or regex patterns return errors.
func LoadAllowlist(repoRoot, name string) (*Allowlist, error) {
	if name == "" {
		return &Allowlist{}, nil
	}
	path := filepath.Join(repoRoot, name)

	var config struct {
		Allowlist struct {
			Paths   []string
			Regexes []string
		}
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return &Allowlist{}, nil
		}
		return nil, err
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	return NewAllowlist(config.Allowlist.Paths, config.Allowlist.Regexes)
}

// NewAllowlist compiles path and content patterns, failing on the first
// invalid one.
func NewAllowlist(paths, regexes []string) (*Allowlist, error) {
	a := &Allowlist{Paths: paths, Regexes: regexes}
	for _, pattern := range paths {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid path pattern '%s': %v", ErrInvalidRegex, pattern, err)
		}
		a.paths = append(a.paths, re)
	}
	for _, pattern := range regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid content pattern '%s': %v", ErrInvalidRegex, pattern, err)
		}
		a.regexes = append(a.regexes, re)
	}
	return a, nil
}

// Empty reports whether the allowlist suppresses nothing.
func (a *Allowlist) Empty() bool {
	return a == nil || (len(a.paths) == 0 && len(a.regexes) == 0)
}

// Allows reports whether f is suppressed, either by its path or by the
// detected value.
func (a *Allowlist) Allows(f Finding) bool {
	if a.Empty() {
		return false
	}
	for _, re := range a.paths {
		if re.MatchString(f.Path) {
			return true
		}
	}
	if f.match == "" {
		return false
	}
	for _, re := range a.regexes {
		if re.MatchString(f.match) {
			return true
		}
	}
	return false
}

// Filter drops the findings the allowlist suppresses.
func (a *Allowlist) Filter(findings []Finding) []Finding {
	if a.Empty() {
		return findings
	}
	out := findings[:0]
	for _, f := range findings {
		if !a.Allows(f) {
			out = append(out, f)
		}
	}
	return out
}

// apply merges the allowlist into a gitleaks config as a global entry.
func (a *Allowlist) apply(cfg *gitleaksConfig.Config) {
	if a.Empty() {
		return
	}
	global := &gitleaksConfig.Allowlist{
		Description: "commitguard project allowlist",
	}
	for _, re := range a.paths {
		global.Paths = append(global.Paths, (*gitleaksRegexp.Regexp)(re))
	}
	for _, re := range a.regexes {
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, global)
}
