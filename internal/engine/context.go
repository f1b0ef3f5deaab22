package engine

import (
	"os"

	"golang.org/x/term"

	"github.com/fyrsmithlabs/commitguard/internal/audit"
)

// CIEnvVars are the variables that mark a CI runner when non-empty.
var CIEnvVars = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_HOME", "CIRCLECI", "TRAVIS"}

// RunContext describes where the process runs. It is fixed at startup.
type RunContext struct {
	Mode          string
	IsCI          bool
	IsInteractive bool
}

// NewRunContext builds a RunContext. A CI run is never interactive.
func NewRunContext(mode string, ci, interactive bool) RunContext {
	return RunContext{Mode: mode, IsCI: ci, IsInteractive: interactive && !ci}
}

// DetectRunContext reads the CI variables from the environment and checks
// whether stdin is a terminal.
func DetectRunContext(mode string) RunContext {
	return NewRunContext(mode, DetectCI(os.Getenv), term.IsTerminal(int(os.Stdin.Fd())))
}

// DetectCI reports whether any CI variable is set.
func DetectCI(getenv func(string) string) bool {
	for _, name := range CIEnvVars {
		if getenv(name) != "" {
			return true
		}
	}
	return false
}

// Environment is the label used in the banner and the audit trail.
func (rc RunContext) Environment() string {
	if rc.IsCI {
		return audit.EnvironmentCI
	}
	return audit.EnvironmentInteractive
}
