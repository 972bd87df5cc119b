package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsdesk/integrity/internal/integrity"
)

// exitStatus is returned by main once the command has finished
var exitStatus int

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run integrity checks and report issues",
	Long: `Run every enabled check (or a single one with --check) against the
database and report the issues found. Nothing is written.

Exit codes:
  0 - No issues
  1 - Warnings, or checks that could not run
  2 - Errors found, or the command itself failed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("check")

		agent, store, err := openAgent(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		result, err := sweep(cmd.Context(), agent, key)
		if err != nil {
			return err
		}

		if jsonOutput {
			if err := writeJSON(os.Stdout, result); err != nil {
				return err
			}
		} else {
			fmt.Printf("%s Running integrity checks...\n\n", cyan("→"))
			renderResult(os.Stdout, result)
		}
		exitStatus = exitCode(result)
		return nil
	},
}

// sweep runs the whole catalog, or just the check named by key. A single
// check is wrapped in a CheckResult so both paths render the same way.
func sweep(ctx context.Context, agent *integrity.Agent, key string) (*integrity.CheckResult, error) {
	if key == "" {
		return agent.RunAll(ctx), nil
	}

	started := time.Now()
	result := &integrity.CheckResult{
		Timestamp:    started,
		Issues:       []integrity.Issue{},
		ChecksRun:    []string{},
		ChecksFailed: []integrity.CheckFailure{},
	}
	name := checkName(agent, key)

	issues, err := agent.RunOne(ctx, key)
	var unknown *integrity.UnknownCheckError
	switch {
	case errors.As(err, &unknown):
		return nil, fmt.Errorf("%w (run 'integrity checks' to list them)", err)
	case err != nil:
		result.ChecksFailed = append(result.ChecksFailed, integrity.CheckFailure{
			Key: key, Name: name, Error: err.Error(), Err: err,
		})
	default:
		result.Issues = issues
		result.ChecksRun = append(result.ChecksRun, name)
	}

	result.Recount()
	result.DurationMillis = time.Since(started).Milliseconds()
	return result, nil
}

func checkName(agent *integrity.Agent, key string) string {
	for _, c := range agent.Checks() {
		if c.Key == key {
			return c.Name
		}
	}
	return key
}

func init() {
	checkCmd.Flags().String("check", "", "run only the check with this key")
	rootCmd.AddCommand(checkCmd)
}
