// Package main implements the commitguard pre-commit scanner CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Build information, set via ldflags:
//
//	go build -ldflags "-X main.version=1.2.0 -X main.gitCommit=$(git rev-parse --short HEAD)"
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// exitError carries a non-zero exit code without an error message.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the root command and maps its error to an exit code:
// 0 pass or not configured, 1 blocked, 2 environment failure.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(stderr, "commitguard: %v\n", err)
	return 2
}

var rootCmd = &cobra.Command{
	Use:   "commitguard",
	Short: "Pre-commit secret and AI-threat scanner",
	Long: `commitguard scans the staged change-set before a commit is recorded.

It blocks provider API keys, high-entropy literals and credential files,
asks for confirmation on softer suspicions, and, when AI protection is
configured, blocks prompt-injection payloads and protected AI paths.

Examples:
  # Run as a git hook (same as "commitguard scan")
  commitguard

  # Only the AI-protection checks
  commitguard threats

  # Fail on every soft finding, even interactively
  SECURITY_HOOK_MODE=strict commitguard`,
	Version:       version,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runScan,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("commitguard %s (commit %s, built %s)\n", version, gitCommit, buildDate))
	rootCmd.PersistentFlags().StringVarP(&repoPath, "repo", "C", ".", "path inside the repository to scan")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(threatsCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(entropyCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "commitguard %s (commit %s, built %s)\n", version, gitCommit, buildDate)
	},
}
