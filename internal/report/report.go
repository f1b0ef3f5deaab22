// Package report renders the human-readable console output of a run.
// Colors are dropped automatically when the writer is not a terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/commitguard/internal/catalog"
	"github.com/fyrsmithlabs/commitguard/internal/confirm"
	"github.com/fyrsmithlabs/commitguard/internal/scanner"
	"github.com/fyrsmithlabs/commitguard/internal/verdict"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// Final status lines.
const (
	PassedLine        = "✅ Security check passed"
	BlockedLine       = "❌ COMMIT BLOCKED"
	NoFilesLine       = "✓ No files staged"
	NotConfiguredLine = "⚠  AI Protection not configured"
)

type styles struct {
	header  lipgloss.Style
	section lipgloss.Style
	label   lipgloss.Style
	dim     lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		header:  r.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("51")).Bold(true).Padding(0, 1),
		section: r.NewStyle().Foreground(lipgloss.Color("51")).Bold(true),
		label:   r.NewStyle().Foreground(lipgloss.Color("45")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("245")),
		ok:      r.NewStyle().Foreground(lipgloss.Color("46")).Bold(true),
		warn:    r.NewStyle().Foreground(lipgloss.Color("226")).Bold(true),
		err:     r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
}

// Printer writes report sections to one writer.
type Printer struct {
	out io.Writer
	st  styles
}

// New creates a Printer. The color profile is detected from out.
func New(out io.Writer) *Printer {
	return &Printer{out: out, st: newStyles(lipgloss.NewRenderer(out))}
}

func (p *Printer) println(s string) {
	fmt.Fprintln(p.out, s)
}

// Header prints the run banner with mode and environment.
func (p *Printer) Header(mode, environment string, files int) {
	p.println(p.st.header.Render("commitguard security scan"))
	p.println(p.st.label.Render("Mode: ") + mode + p.st.dim.Render("  |  ") + p.st.label.Render("Environment: ") + environment)
	p.println(fmt.Sprintf("Scanning %d staged file(s)...", files))
	p.println("")
}

// Section prints a section title.
func (p *Printer) Section(title string) {
	p.println(p.st.section.Render("━━━ " + title))
}

// NoFiles prints the zero-staged notice.
func (p *Printer) NoFiles() {
	p.println(p.st.ok.Render(NoFilesLine))
}

// NotConfigured prints the notice for a missing AI-protection policy.
func (p *Printer) NotConfigured(policy string) {
	p.println(p.st.warn.Render(NotConfiguredLine + " (" + policy + " missing)"))
}

// Findings prints each finding with its location and remediation.
func (p *Printer) Findings(findings []scanner.Finding) {
	for _, f := range findings {
		p.Finding(f)
	}
}

// Finding prints one finding.
func (p *Printer) Finding(f scanner.Finding) {
	switch f.Severity {
	case scanner.SeverityHard:
		p.println(p.st.err.Render(fmt.Sprintf("BLOCKED: %s in %s", f.Rule, f.Location())))
	case scanner.SeveritySoft:
		p.println(p.st.warn.Render(fmt.Sprintf("Suspicious: %s in %s", f.Rule, f.Location())))
	default:
		p.println(p.st.warn.Render(fmt.Sprintf("⚠  %s in %s: %s", label(f), f.Path, f.Snippet)))
		if f.Remediation != "" {
			p.println(p.st.dim.Render("   " + f.Remediation))
		}
		return
	}
	if f.Provider != "" {
		p.println("   Provider: " + f.Provider)
	}
	if f.Snippet != "" && f.Line > 0 {
		p.println(p.st.dim.Render("   " + f.Snippet))
	}
	if f.Remediation != "" {
		p.println("   Fix: " + f.Remediation)
	}
}

func label(f scanner.Finding) string {
	if f.Category == catalog.CategoryPII {
		return "PII (" + f.Rule + ")"
	}
	return f.Rule
}

// Decisions prints how each soft finding was resolved.
func (p *Printer) Decisions(decisions []confirm.Decision) {
	for _, d := range decisions {
		line := fmt.Sprintf("%s: %s -> %s", d.Finding.Location(), d.Finding.Rule, d.State)
		if d.State.Blocks() {
			p.println(p.st.err.Render(line))
			continue
		}
		p.println(p.st.dim.Render(line))
	}
}

// Clean prints a passed-check line for a section.
func (p *Printer) Clean(msg string) {
	p.println(p.st.ok.Render("✓ " + msg))
}

// Verdict prints the aggregate result and ends the report.
func (p *Printer) Verdict(v verdict.Verdict, elapsed time.Duration) {
	p.println("")
	p.println(rule)
	switch v.Status {
	case verdict.StatusBlocked:
		p.println(p.st.err.Render(BlockedLine))
		p.println(rule)
		p.println("Reasons: " + strings.Join(v.Reasons, ", "))
		for _, d := range v.Details {
			p.println("  - " + d)
		}
	case verdict.StatusNotConfigured:
		p.println(p.st.warn.Render(NotConfiguredLine))
		p.println(rule)
	default:
		p.println(p.st.ok.Render(PassedLine))
		p.println(rule)
	}
	if v.WarningCount > 0 {
		p.println(p.st.warn.Render(fmt.Sprintf("%d warning(s)", v.WarningCount)))
	}
	if elapsed > 0 {
		p.println(p.st.dim.Render("Completed in " + FormatDuration(elapsed)))
	}
}

// FormatDuration formats d as "X.Xms" below one second and "X.Xs" above.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
