// Package confirm resolves soft findings: automatically when nobody can
// answer, otherwise by asking once per finding on the terminal.
package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitguard/internal/config"
	"github.com/fyrsmithlabs/commitguard/internal/logging"
	"github.com/fyrsmithlabs/commitguard/internal/scanner"
)

// State is the resolution of one soft finding.
type State string

const (
	Pending     State = "PENDING"
	AutoAllow   State = "AUTO_ALLOW"
	AutoBlock   State = "AUTO_BLOCK"
	UserAllowed State = "USER_ALLOWED"
	UserBlocked State = "USER_BLOCKED"
)

// Blocks reports whether the state blocks the commit.
func (s State) Blocks() bool {
	return s == AutoBlock || s == UserBlocked
}

// Question is the prompt shown after the finding details.
const Question = "Proceed with commit? Type 'yes' to continue: "

// Guidance is printed with every prompt.
var Guidance = []string{
	"Use environment variables: process.env.API_KEY",
	"Move to .env file (gitignored)",
	"If false positive: add comment // secure-ignore",
}

// Decision records how a soft finding was resolved.
type Decision struct {
	Finding scanner.Finding
	State   State
}

// Prompter asks a yes/no question and returns the raw answer. io.EOF means
// no answer is coming.
type Prompter interface {
	Ask(ctx context.Context, message string) (string, error)
}

// TerminalPrompter writes to out and reads one line from in.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompter creates a prompter over the given streams.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out}
}

// Ask prints message and the question, then blocks until a line is read.
func (p *TerminalPrompter) Ask(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "SECURITY WARNING")
	fmt.Fprintln(p.out, message)
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "How to fix:")
	for i, g := range Guidance {
		fmt.Fprintf(p.out, "  %d. %s\n", i+1, g)
	}
	fmt.Fprintln(p.out)
	fmt.Fprint(p.out, Question)

	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}

// Resolver applies the confirmation rules for one run.
type Resolver struct {
	mode        string
	interactive bool
	prompter    Prompter
}

// NewResolver creates a Resolver. prompter may be nil when not interactive.
func NewResolver(mode string, interactive bool, prompter Prompter) *Resolver {
	return &Resolver{mode: mode, interactive: interactive && prompter != nil, prompter: prompter}
}

// Resolve decides each soft finding once, in order. Hard findings are
// ignored. Prompt errors resolve to UserBlocked.
func (r *Resolver) Resolve(ctx context.Context, findings []scanner.Finding) []Decision {
	span := trace.SpanFromContext(ctx)
	logger := logging.FromContext(ctx).Named("confirm")

	var decisions []Decision
	for _, f := range findings {
		if f.Severity != scanner.SeveritySoft {
			continue
		}
		d := Decision{Finding: f, State: r.decide(ctx, f)}
		logger.Info(ctx, "soft finding resolved",
			zap.String("path", f.Location()),
			zap.String("rule", f.Rule),
			zap.String("state", string(d.State)))
		decisions = append(decisions, d)
	}

	blocked := 0
	for _, d := range decisions {
		if d.State.Blocks() {
			blocked++
		}
	}
	span.SetAttributes(
		attribute.Int("decisions", len(decisions)),
		attribute.Int("decisions.blocked", blocked),
	)
	return decisions
}

func (r *Resolver) decide(ctx context.Context, f scanner.Finding) State {
	switch {
	case !r.interactive:
		return AutoBlock
	case r.mode == config.ModePermissive:
		return AutoAllow
	}

	answer, err := r.prompter.Ask(ctx, Message(f))
	if err != nil {
		if err != io.EOF {
			logging.FromContext(ctx).Named("confirm").Warn(ctx, "prompt failed", zap.Error(err))
		}
		return UserBlocked
	}
	if strings.ToLower(strings.TrimSpace(answer)) == "yes" {
		return UserAllowed
	}
	return UserBlocked
}

// Message describes a soft finding for the prompt.
func Message(f scanner.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s in %s", f.Rule, f.Location())
	if f.Snippet != "" {
		fmt.Fprintf(&b, "\n   %s", f.Snippet)
	}
	if f.Remediation != "" {
		fmt.Fprintf(&b, "\n   %s", f.Remediation)
	}
	return b.String()
}
