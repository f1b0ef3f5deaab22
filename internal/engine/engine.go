// Package engine runs the pre-commit pipeline: selection, secret and
// AI-protection scans, confirmation of soft findings, the verdict, and the
// audit trail.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitguard/internal/audit"
	"github.com/fyrsmithlabs/commitguard/internal/catalog"
	"github.com/fyrsmithlabs/commitguard/internal/config"
	"github.com/fyrsmithlabs/commitguard/internal/confirm"
	"github.com/fyrsmithlabs/commitguard/internal/logging"
	"github.com/fyrsmithlabs/commitguard/internal/metrics"
	"github.com/fyrsmithlabs/commitguard/internal/report"
	"github.com/fyrsmithlabs/commitguard/internal/scanner"
	"github.com/fyrsmithlabs/commitguard/internal/selector"
	"github.com/fyrsmithlabs/commitguard/internal/telemetry"
	"github.com/fyrsmithlabs/commitguard/internal/threat"
	"github.com/fyrsmithlabs/commitguard/internal/verdict"
)

// Repository is the git view the engine needs. *git.Repo satisfies it.
type Repository interface {
	selector.Source
	audit.Identity
}

// Options configures an Engine.
type Options struct {
	Config  *config.Config
	Context RunContext

	// Prompter answers soft-finding confirmations. Nil disables prompting.
	Prompter confirm.Prompter

	// Out receives the console report. Nil discards it.
	Out io.Writer

	// Telemetry may be nil.
	Telemetry *telemetry.Telemetry
}

// Result is everything one run produced. Every run builds a fresh one.
type Result struct {
	RunID     string
	Context   RunContext
	Selection *selector.Selection
	Secrets   []scanner.Finding
	Threats   *threat.Report
	Decisions []confirm.Decision
	Verdict   verdict.Verdict
	Duration  time.Duration

	// AuditErrors are audit writes that failed; they never change the verdict.
	AuditErrors []error
}

// NoFiles reports whether the run ended early because nothing was staged.
func (r *Result) NoFiles() bool {
	return r.Selection != nil && r.Selection.Empty()
}

// Engine runs the pipeline against one repository.
type Engine struct {
	repo    Repository
	cfg     *config.Config
	rc      RunContext
	prompt  confirm.Prompter
	printer *report.Printer
	tel     *telemetry.Telemetry
	now     func() time.Time
}

// New creates an Engine. A nil Config uses the defaults.
func New(repo Repository, opts Options) *Engine {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	rc := opts.Context
	if rc.Mode == "" {
		rc.Mode = cfg.Mode
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	return &Engine{
		repo:    repo,
		cfg:     cfg,
		rc:      NewRunContext(rc.Mode, rc.IsCI, rc.IsInteractive),
		prompt:  opts.Prompter,
		printer: report.New(out),
		tel:     opts.Telemetry,
		now:     time.Now,
	}
}

// run holds the per-invocation collaborators.
type run struct {
	result  *Result
	catalog *catalog.Catalog
	trail   *audit.Trail
	metrics *metrics.Recorder
	start   time.Time
}

func (e *Engine) begin(ctx context.Context) (context.Context, *run) {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	ctx = logging.WithMode(ctx, e.rc.Mode)

	root := e.repo.Root()
	return ctx, &run{
		result:  &Result{RunID: runID, Context: e.rc},
		catalog: catalog.Load(ctx, root, catalog.OptionsFromConfig(e.cfg.Catalog)),
		trail:   audit.NewTrail(root, e.cfg.Audit.Path, runID, e.rc.IsCI, e.repo),
		metrics: metrics.New(e.tel.Meter()),
		start:   e.now(),
	}
}

// Run executes the full pipeline. An error means the environment is
// unusable (no repository, unreadable index); findings are never errors.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	ctx, span := e.tel.Tracer().Start(ctx, "commitguard.run")
	defer span.End()

	ctx, r := e.begin(ctx)
	logger := logging.FromContext(ctx).Named("engine")
	span.SetAttributes(
		attribute.String("run.id", r.result.RunID),
		attribute.String("run.mode", e.rc.Mode),
		attribute.Bool("run.ci", e.rc.IsCI),
	)

	sel, err := e.selectFiles(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	r.result.Selection = sel

	e.printer.Header(e.rc.Mode, e.rc.Environment(), len(sel.Staged))
	if sel.Empty() {
		e.printer.NoFiles()
		r.result.Verdict = verdict.Verdict{Status: verdict.StatusPass}
		return e.finish(ctx, r, false), nil
	}

	if r.result.Secrets, err = e.scanSecrets(ctx, r.catalog, sel); err != nil {
		return nil, fail(span, err)
	}
	if r.result.Threats, err = e.scanThreats(ctx, r.catalog, sel); err != nil {
		return nil, fail(span, err)
	}

	e.printer.Section("Secret scan")
	if len(r.result.Secrets) == 0 {
		e.printer.Clean("No secrets detected")
	}
	e.printer.Findings(r.result.Secrets)

	r.result.Decisions = e.resolve(ctx, r.result.Secrets)
	e.printer.Decisions(r.result.Decisions)

	e.printThreats(r.result.Threats)

	r.result.Verdict = verdict.Aggregate(verdict.Input{
		Secrets:   r.result.Secrets,
		Threats:   r.result.Threats.All(),
		Decisions: r.result.Decisions,
	})

	e.auditFindings(ctx, r)
	logger.Info(ctx, "scan complete",
		zap.String("status", string(r.result.Verdict.Status)),
		zap.Strings("reasons", r.result.Verdict.Reasons),
		zap.Int("warnings", r.result.Verdict.WarningCount))

	span.SetAttributes(attribute.String("verdict", string(r.result.Verdict.Status)))
	return e.finish(ctx, r, true), nil
}

// RunThreats executes only the AI-protection checks. A repository without
// a policy file yields a not-configured verdict.
func (e *Engine) RunThreats(ctx context.Context) (*Result, error) {
	ctx, span := e.tel.Tracer().Start(ctx, "commitguard.run")
	defer span.End()

	ctx, r := e.begin(ctx)
	span.SetAttributes(
		attribute.String("run.id", r.result.RunID),
		attribute.String("run.scope", "threats"),
	)

	sel, err := e.selectFiles(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	r.result.Selection = sel

	e.printer.Header(e.rc.Mode, e.rc.Environment(), len(sel.Staged))
	// The policy marker and .gitignore are checked even with nothing staged.
	if sel.Empty() {
		e.printer.NoFiles()
	}

	if r.result.Threats, err = e.scanThreats(ctx, r.catalog, sel); err != nil {
		return nil, fail(span, err)
	}
	e.printThreats(r.result.Threats)

	if !r.result.Threats.Configured {
		r.result.Verdict = verdict.NotConfigured()
		return e.finish(ctx, r, false), nil
	}

	r.result.Verdict = verdict.Aggregate(verdict.Input{Threats: r.result.Threats.All()})
	e.auditFindings(ctx, r)
	return e.finish(ctx, r, true), nil
}

func (e *Engine) selectFiles(ctx context.Context) (*selector.Selection, error) {
	ctx, span := e.tel.Tracer().Start(ctx, "selector.select")
	defer span.End()

	sel, err := selector.New(e.repo, selector.OptionsFromConfig(e.cfg.Scan)).Select(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	return sel, nil
}

func (e *Engine) scanSecrets(ctx context.Context, cat *catalog.Catalog, sel *selector.Selection) ([]scanner.Finding, error) {
	ctx, span := e.tel.Tracer().Start(ctx, "scanner.scan")
	defer span.End()

	opts := scanner.Options{
		BypassMarkers: e.cfg.Scan.BypassMarkers,
		DeepScan:      e.cfg.Gitleaks.Enabled,
		Allowlist:     e.allowlist(ctx, sel.Root),
	}
	findings, err := scanner.New(cat.Secrets, opts).Scan(ctx, sel)
	if err != nil {
		return nil, fail(span, err)
	}
	return findings, nil
}

// allowlist loads .gitleaks.toml. A broken file is logged and ignored so a
// typo never disables the scan.
func (e *Engine) allowlist(ctx context.Context, root string) *scanner.Allowlist {
	if e.cfg.Gitleaks.AllowlistFile == "" {
		return nil
	}
	al, err := scanner.LoadAllowlist(root, e.cfg.Gitleaks.AllowlistFile)
	if err != nil {
		logging.FromContext(ctx).Named("engine").Warn(ctx, "allowlist ignored",
			zap.String("path", e.cfg.Gitleaks.AllowlistFile), zap.Error(err))
		return nil
	}
	return al
}

func (e *Engine) scanThreats(ctx context.Context, cat *catalog.Catalog, sel *selector.Selection) (*threat.Report, error) {
	ctx, span := e.tel.Tracer().Start(ctx, "threat.scan")
	defer span.End()

	opts := threat.OptionsFromConfig(e.cfg.Threat)
	opts.Redactor = scanner.New(cat.Secrets, scanner.Options{})
	rep, err := threat.New(cat.Injection, cat.PII, opts).Scan(ctx, sel)
	if err != nil {
		return nil, fail(span, err)
	}
	return rep, nil
}

func (e *Engine) resolve(ctx context.Context, findings []scanner.Finding) []confirm.Decision {
	ctx, span := e.tel.Tracer().Start(ctx, "confirm.resolve")
	defer span.End()

	return confirm.NewResolver(e.rc.Mode, e.rc.IsInteractive, e.prompt).Resolve(ctx, findings)
}

func (e *Engine) printThreats(rep *threat.Report) {
	e.printer.Section("AI protection")
	if !rep.Configured {
		e.printer.NotConfigured(e.cfg.Threat.PolicyFile)
		return
	}
	if len(rep.All()) == 0 {
		e.printer.Clean("No AI-protection threats")
		return
	}
	e.printer.Findings(rep.All())
}

// auditFindings appends one entry per blocking finding, blocked decision,
// and PII warning, then one for the verdict.
func (e *Engine) auditFindings(ctx context.Context, r *run) {
	record := func(err error) {
		if err == nil {
			return
		}
		r.result.AuditErrors = append(r.result.AuditErrors, err)
		logging.FromContext(ctx).Named("engine").Error(ctx, "audit write failed", zap.Error(err))
	}

	for _, f := range r.result.Secrets {
		if f.Hard() {
			record(r.trail.RecordFinding(ctx, f))
		}
	}
	for _, d := range r.result.Decisions {
		if d.State.Blocks() {
			record(r.trail.RecordFinding(ctx, d.Finding))
		}
	}
	for _, f := range r.result.Threats.All() {
		record(r.trail.RecordFinding(ctx, f))
	}

	if r.result.Verdict.Blocked() {
		record(r.trail.Record(ctx, audit.CommitBlocked, strings.Join(r.result.Verdict.Reasons, ", ")))
		return
	}
	record(r.trail.Record(ctx, audit.CommitPassed, fmt.Sprintf("%d warning(s)", r.result.Verdict.WarningCount)))
}

// finish records metrics and prints the final line.
func (e *Engine) finish(ctx context.Context, r *run, scanned bool) *Result {
	res := r.result
	res.Duration = e.now().Sub(r.start)

	if scanned {
		r.metrics.AddFilesScanned(len(res.Selection.Targets()))
		for _, f := range res.Secrets {
			r.metrics.RecordFinding(ctx, string(f.Category), string(f.Severity))
		}
		for _, f := range res.Threats.All() {
			r.metrics.RecordFinding(ctx, string(f.Category), string(f.Severity))
		}
	}
	r.metrics.RecordRun(ctx, string(res.Verdict.Status), res.Duration)

	if path := e.cfg.Metrics.Textfile; path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(e.repo.Root(), path)
		}
		err := os.MkdirAll(filepath.Dir(path), 0o755)
		if err == nil {
			err = r.metrics.WriteTextfile(path)
		}
		if err != nil {
			logging.FromContext(ctx).Named("engine").Warn(ctx, "metrics not written", zap.Error(err))
		}
	}

	if !res.NoFiles() || res.Threats != nil {
		e.printer.Verdict(res.Verdict, res.Duration)
	}
	return res
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
