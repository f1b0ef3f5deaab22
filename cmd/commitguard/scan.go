package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitguard/internal/config"
	"github.com/fyrsmithlabs/commitguard/internal/confirm"
	"github.com/fyrsmithlabs/commitguard/internal/engine"
	"github.com/fyrsmithlabs/commitguard/internal/logging"
	"github.com/fyrsmithlabs/commitguard/internal/telemetry"
	"github.com/fyrsmithlabs/commitguard/pkg/git"
)

// repoPath is any path inside the repository to scan.
var repoPath string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the staged change-set (default)",
	Long: `Run every check against the staged files and exit non-zero when the
commit must be blocked.

Exit codes:
  0  passed, nothing staged, or AI protection not configured
  1  commit blocked
  2  the repository could not be read`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var threatsCmd = &cobra.Command{
	Use:   "threats",
	Short: "Run only the AI-protection checks",
	Long: `Check the staged files for prompt-injection payloads and protected AI
paths, and the AI log files for personal data.

Without .ai/ai-protection-policy.json the command prints a notice and
exits 0.`,
	Args: cobra.NoArgs,
	RunE: runThreats,
}

// session holds what every repository-bound command needs.
type session struct {
	repo   *git.Repo
	cfg    *config.Config
	tel    *telemetry.Telemetry
	logger *logging.Logger
}

func openSession(ctx context.Context) (context.Context, *session, error) {
	repo, err := git.Open(repoPath)
	if err != nil {
		return ctx, nil, fmt.Errorf("opening repository: %w", err)
	}

	cfg, err := config.Load(repo.Root())
	if err != nil {
		return ctx, nil, fmt.Errorf("loading config: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
	if err != nil {
		return ctx, nil, err
	}

	logger, err := newLogger(cfg.Logging, tel)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return ctx, nil, err
	}
	ctx = logging.WithLogger(ctx, logger)
	if derr := tel.Degraded(); derr != nil {
		logger.Warn(ctx, "telemetry degraded", zap.Error(derr))
	}

	return ctx, &session{repo: repo, cfg: cfg, tel: tel, logger: logger}, nil
}

func newLogger(cfg config.LoggingConfig, tel *telemetry.Telemetry) (*logging.Logger, error) {
	lcfg := logging.NewDefaultConfig()
	if cfg.Level != "" {
		level, err := logging.LevelFromString(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		lcfg.Level = level
	}
	if cfg.Format != "" {
		lcfg.Format = cfg.Format
	}
	lcfg.Output.OTEL = tel.IsEnabled()

	logger, err := logging.NewLogger(lcfg, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return logger, nil
}

// close flushes telemetry with a fresh context so an interrupted run still exports.
func (s *session) close(ctx context.Context) {
	if err := s.tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = s.logger.Sync()
}

func (s *session) engine(cmd *cobra.Command) *engine.Engine {
	return engine.New(s.repo, engine.Options{
		Config:    s.cfg,
		Context:   engine.DetectRunContext(s.cfg.Mode),
		Prompter:  confirm.NewTerminalPrompter(cmd.InOrStdin(), cmd.OutOrStdout()),
		Out:       cmd.OutOrStdout(),
		Telemetry: s.tel,
	})
}

func runScan(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, e *engine.Engine) (*engine.Result, error) {
		return e.Run(ctx)
	})
}

func runThreats(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, e *engine.Engine) (*engine.Result, error) {
		return e.RunThreats(ctx)
	})
}

func withSession(cmd *cobra.Command, run func(context.Context, *engine.Engine) (*engine.Result, error)) error {
	ctx, s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close(ctx)

	res, err := run(ctx, s.engine(cmd))
	if err != nil {
		return err
	}
	if code := res.Verdict.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}
