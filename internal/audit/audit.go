// Package audit appends one JSON line per blocking event and per verdict
// to the repository's audit trail. Prior entries are never read or
// rewritten.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitguard/internal/catalog"
	"github.com/fyrsmithlabs/commitguard/internal/logging"
	"github.com/fyrsmithlabs/commitguard/internal/scanner"
)

// EventType classifies an entry.
type EventType string

const (
	SecretDetected     EventType = "SECRET_DETECTED"
	SoftFindingBlocked EventType = "SOFT_FINDING_BLOCKED"
	PromptInjection    EventType = "PROMPT_INJECTION"
	DirectoryViolation EventType = "DIRECTORY_VIOLATION"
	PIIDetected        EventType = "PII_DETECTED"
	CommitBlocked      EventType = "COMMIT_BLOCKED"
	CommitPassed       EventType = "COMMIT_PASSED"
)

// Environment kinds.
const (
	EnvironmentCI          = "CI/CD"
	EnvironmentInteractive = "Interactive"
)

// DefaultPath is the trail location relative to the repository root.
const DefaultPath = ".ai/audit-trail.log"

// Entry is one audit line. It never carries a raw secret: details are
// built from locations, rule names and masked snippets.
type Entry struct {
	Timestamp   time.Time `json:"timestamp"`
	RunID       string    `json:"run_id"`
	EventType   EventType `json:"event"`
	Details     string    `json:"details"`
	Actor       string    `json:"actor"`
	Branch      string    `json:"branch"`
	Environment string    `json:"environment"`
}

// JSON returns the entry as a compact JSON string.
func (e *Entry) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Identity resolves who is committing and where. *git.Repo satisfies it.
type Identity interface {
	Identity() string
	Branch() string
}

// Trail writes entries for one run.
type Trail struct {
	path        string
	runID       string
	actor       string
	branch      string
	environment string
	now         func() time.Time
}

// NewTrail creates a trail at root/rel. Identity is resolved once.
func NewTrail(root, rel, runID string, ci bool, id Identity) *Trail {
	if rel == "" {
		rel = DefaultPath
	}
	env := EnvironmentInteractive
	if ci {
		env = EnvironmentCI
	}
	t := &Trail{
		path:        filepath.Join(root, filepath.FromSlash(rel)),
		runID:       runID,
		actor:       "unknown",
		branch:      "unknown",
		environment: env,
		now:         time.Now,
	}
	if id != nil {
		t.actor = id.Identity()
		t.branch = id.Branch()
	}
	return t
}

// Path returns the trail file location.
func (t *Trail) Path() string { return t.path }

// Record appends one entry. The file is opened in append mode for each
// write so concurrent hooks never interleave partial lines.
func (t *Trail) Record(ctx context.Context, event EventType, details string) error {
	e := Entry{
		Timestamp:   t.now().UTC(),
		RunID:       t.runID,
		EventType:   event,
		Details:     details,
		Actor:       t.actor,
		Branch:      t.branch,
		Environment: t.environment,
	}
	line := append([]byte(e.JSON()), '\n')

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("creating audit directory: %w", err)
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening audit trail: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}

	logging.FromContext(ctx).Named("audit").Debug(ctx, "audit entry written",
		zap.String("event", string(event)))
	return nil
}

// EventFor maps a finding to its audit event.
func EventFor(f scanner.Finding) EventType {
	switch {
	case f.Category == catalog.CategoryInjection:
		return PromptInjection
	case f.Category == catalog.CategoryDirectory:
		return DirectoryViolation
	case f.Category == catalog.CategoryPII:
		return PIIDetected
	case f.Severity == scanner.SeveritySoft:
		return SoftFindingBlocked
	}
	return SecretDetected
}

// Details formats a finding for the trail.
func Details(f scanner.Finding) string {
	d := f.Location() + " " + f.Rule
	if f.Category == catalog.CategoryPII && f.Snippet != "" {
		d += " (" + f.Snippet + ")"
	}
	return d
}

// RecordFinding appends the entry for f.
func (t *Trail) RecordFinding(ctx context.Context, f scanner.Finding) error {
	return t.Record(ctx, EventFor(f), Details(f))
}
