package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opsdesk/integrity/internal/integrity"
	"github.com/opsdesk/integrity/internal/storage"
)

// fixReport is the --json output of the fix command.
type fixReport struct {
	Before  *integrity.CheckResult `json:"before"`
	Outcome integrity.FixOutcome   `json:"outcome"`
	Failed  []string               `json:"failures"`
	After   *integrity.CheckResult `json:"after"`
}

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Detect issues and apply their automatic fixes",
	Long: `Run the checks, show the fixes that would be applied, ask for
confirmation and apply them. Detection runs again afterwards and its result
determines the exit code.

Fixes are applied one at a time and are not atomic as a batch: a failed fix
is reported and the rest still run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("check")
		yes, _ := cmd.Flags().GetBool("yes")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		ctx := cmd.Context()

		if jsonOutput && !yes && !dryRun {
			return fmt.Errorf("--json needs --yes or --dry-run")
		}

		agent, store, err := openAgent(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		before, err := sweep(ctx, agent, key)
		if err != nil {
			return err
		}
		fixable := before.FixableIssues()

		if !jsonOutput {
			if len(fixable) == 0 {
				fmt.Printf("%s Nothing to fix\n", green("✓"))
			} else {
				fmt.Printf("%s %d fixable issues:\n\n", cyan("→"), len(fixable))
				renderIssues(os.Stdout, fixable)
				fmt.Println()
			}
		}
		if len(fixable) == 0 || dryRun {
			if jsonOutput {
				return writeJSON(os.Stdout, fixReport{Before: before, After: before})
			}
			exitStatus = exitCode(before)
			return nil
		}

		if !yes {
			ok, err := confirm(fmt.Sprintf("Apply %d fixes? [y/N] ", len(fixable)))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted")
				exitStatus = exitCode(before)
				return nil
			}
		}

		lockPath, err := storage.AcquireFixLock(cfg.Database.Path, "integrity fix")
		if err != nil {
			return err
		}
		defer storage.ReleaseFixLock(lockPath)

		outcome := agent.AutoFix(ctx, fixable)
		after, err := sweep(ctx, agent, key)
		if err != nil {
			return err
		}

		if jsonOutput {
			report := fixReport{Before: before, Outcome: outcome, Failed: []string{}, After: after}
			for _, f := range outcome.Failures {
				report.Failed = append(report.Failed, f.Error())
			}
			if err := writeJSON(os.Stdout, report); err != nil {
				return err
			}
		} else {
			renderOutcome(os.Stdout, outcome)
			fmt.Printf("\n%s Re-running checks...\n\n", cyan("→"))
			renderResult(os.Stdout, after)
		}

		exitStatus = exitCode(after)
		if outcome.Failed > 0 && exitStatus == 0 {
			exitStatus = 1
		}
		return nil
	},
}

func init() {
	fixCmd.Flags().String("check", "", "only fix issues found by the check with this key")
	fixCmd.Flags().BoolP("yes", "y", false, "apply without asking for confirmation")
	fixCmd.Flags().Bool("dry-run", false, "show the fixes without applying them")
	rootCmd.AddCommand(fixCmd)
}
