// Package verdict turns the findings and decisions of a run into the
// final status, its ordered reasons, and the process exit code.
package verdict

import (
	"github.com/fyrsmithlabs/commitguard/internal/catalog"
	"github.com/fyrsmithlabs/commitguard/internal/confirm"
	"github.com/fyrsmithlabs/commitguard/internal/scanner"
)

// Status is the outcome of a run.
type Status string

const (
	StatusPass          Status = "pass"
	StatusBlocked       Status = "blocked"
	StatusNotConfigured Status = "not_configured"
)

// Reasons, in reporting order.
const (
	ReasonSecretLeak = "secret leak"
	ReasonAIThreat   = "AI-protection threat"
	ReasonPolicy     = "policy violation"
)

var reasonOrder = []string{ReasonSecretLeak, ReasonAIThreat, ReasonPolicy}

// Verdict is the aggregate result of a run.
type Verdict struct {
	Status       Status
	Reasons      []string
	WarningCount int

	// Details has one line per blocking finding or decision.
	Details []string
}

// Blocked reports whether the commit must be stopped.
func (v Verdict) Blocked() bool { return v.Status == StatusBlocked }

// ExitCode maps the status to the process exit code.
func (v Verdict) ExitCode() int {
	if v.Status == StatusBlocked {
		return 1
	}
	return 0
}

// NotConfigured is the verdict of a check that has nothing to run.
func NotConfigured() Verdict {
	return Verdict{Status: StatusNotConfigured}
}

// Input collects everything the aggregator decides on.
type Input struct {
	Secrets   []scanner.Finding
	Threats   []scanner.Finding
	Decisions []confirm.Decision
}

// Aggregate computes the verdict. Soft secret findings count only through
// their decisions; informational findings only add warnings.
func Aggregate(in Input) Verdict {
	reasons := make(map[string]bool, len(reasonOrder))
	var v Verdict

	consider := func(f scanner.Finding) {
		switch {
		case f.Severity == scanner.SeverityInfo:
			v.WarningCount++
		case f.Severity == scanner.SeveritySoft:
			v.WarningCount++
		case f.Category == catalog.CategorySecret:
			reasons[ReasonSecretLeak] = true
			v.Details = append(v.Details, detail(f))
		case f.Category == catalog.CategoryDirectory:
			reasons[ReasonPolicy] = true
			v.Details = append(v.Details, detail(f))
		default:
			reasons[ReasonAIThreat] = true
			v.Details = append(v.Details, detail(f))
		}
	}
	for _, f := range in.Secrets {
		consider(f)
	}
	for _, f := range in.Threats {
		consider(f)
	}
	for _, d := range in.Decisions {
		if d.State.Blocks() {
			reasons[ReasonPolicy] = true
			v.Details = append(v.Details, detail(d.Finding)+" ("+string(d.State)+")")
		}
	}

	for _, r := range reasonOrder {
		if reasons[r] {
			v.Reasons = append(v.Reasons, r)
		}
	}
	v.Status = StatusPass
	if len(v.Reasons) > 0 {
		v.Status = StatusBlocked
	}
	return v
}

func detail(f scanner.Finding) string {
	return f.Location() + ": " + f.Rule
}
