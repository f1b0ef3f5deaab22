package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/commitguard/internal/catalog"
	"github.com/fyrsmithlabs/commitguard/internal/entropy"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List the rules loaded for this repository",
	Long: `Load the pattern catalog the way a scan would and list every rule per
category, with the source it came from (builtin, file, or both).`,
	Args: cobra.NoArgs,
	RunE: runPatterns,
}

var entropyCmd = &cobra.Command{
	Use:   "entropy <token>",
	Short: "Score a token with the entropy analyzer",
	Long: `Print the Shannon entropy of a token and whether a quoted literal with
that value would be flagged.

Examples:
  commitguard entropy 'Q7v9Xk2Lm4Np8Rs1Tu6Wy3Za5Bc0De'`,
	Args: cobra.ExactArgs(1),
	RunE: runEntropy,
}

func runPatterns(cmd *cobra.Command, _ []string) error {
	ctx, s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close(ctx)

	cat := catalog.Load(ctx, s.repo.Root(), catalog.OptionsFromConfig(s.cfg.Catalog))
	out := cmd.OutOrStdout()
	for _, set := range []*catalog.Set{cat.Secrets, cat.Injection, cat.PII} {
		printSet(out, set)
	}
	return nil
}

func printSet(out io.Writer, set *catalog.Set) {
	fmt.Fprintf(out, "%s (%s, %d rules)\n", set.Category, set.Source, set.Len())
	for _, r := range set.Rules() {
		if r.Provider != "" {
			fmt.Fprintf(out, "  %-28s %s\n", r.Name, r.Provider)
			continue
		}
		fmt.Fprintf(out, "  %s\n", r.Name)
	}
}

func runEntropy(cmd *cobra.Command, args []string) error {
	token := args[0]
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "entropy: %.2f (threshold %.1f, min length %d)\n", entropy.Shannon(token), entropy.Threshold, entropy.MinLength)
	switch {
	case entropy.IsPlaceholder(token):
		fmt.Fprintln(out, "flagged: no (placeholder)")
	case entropy.Flagged(token):
		fmt.Fprintln(out, "flagged: yes")
	default:
		fmt.Fprintln(out, "flagged: no")
	}
	return nil
}
