package scanner

import (
	"path"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/commitguard/internal/catalog"
)

// softRule is a Tier 2 pattern: a match that is not allowlisted needs a
// human decision.
type softRule struct {
	name        string
	pattern     *regexp.Regexp
	allow       *regexp.Regexp
	remediation string
}

var softRules = []softRule{
	{
		name:        RuleGenericAPIKey,
		pattern:     regexp.MustCompile(`(?i)API_?KEY\s*[=:]\s*["'][A-Za-z0-9_-]{16,}["']`),
		allow:       regexp.MustCompile(`(?i)your.?key|example|placeholder|xxx|test|demo|fake|sample`),
		remediation: "Possible hardcoded API key; read it from an environment variable",
	},
	{
		name:        RuleBearerToken,
		pattern:     regexp.MustCompile(`Bearer [A-Za-z0-9_-]{20,}`),
		allow:       regexp.MustCompile(`(?i)example|placeholder|xxx|your.?token`),
		remediation: "Possible hardcoded Bearer token; inject it at runtime",
	},
}

var (
	commentLine = regexp.MustCompile(`^\s*(//|#|\*)`)

	softExtensions = map[string]bool{
		".js": true, ".ts": true, ".jsx": true, ".tsx": true,
		".py": true, ".go": true, ".rb": true, ".java": true,
		".cs": true, ".php": true, ".sh": true,
		".yml": true, ".yaml": true, ".json": true,
	}

	envFiles = map[string]bool{
		".env":             true,
		".env.local":       true,
		".env.production":  true,
		".env.development": true,
	}

	keyExtensions = map[string]bool{".pem": true, ".key": true, ".p12": true, ".pfx": true}

	credentialFiles = map[string]bool{"credentials.json": true, "secrets.json": true}
)

// softEligible reports whether Tier 2 applies to the file at p.
func softEligible(p string) bool {
	return softExtensions[strings.ToLower(path.Ext(p))]
}

// CheckFilename returns the hard finding for a path whose presence alone
// is a violation, or nil.
func CheckFilename(p string) *Finding {
	base := path.Base(p)
	var rule, remediation string
	switch {
	case envFiles[base]:
		rule, remediation = RuleEnvironmentFile, "Unstage the file and add it to .gitignore; commit a .env.example instead"
	case keyExtensions[path.Ext(p)]:
		rule, remediation = RulePrivateKeyFile, "Unstage the key file and store it outside the repository"
	case credentialFiles[base]:
		rule, remediation = RuleCredentialsFile, "Unstage the credentials file and load it from a secret store"
	default:
		return nil
	}
	f := NewFinding(p, 0, rule, catalog.CategorySecret, SeverityHard, "", nil)
	f.Remediation = remediation
	return &f
}
