package main

import (
	"os"

	"github.com/spf13/cobra"
)

var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "List the available checks in the order they run",
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, store, err := openAgent(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		if jsonOutput {
			return writeJSON(os.Stdout, agent.Checks())
		}
		renderChecks(os.Stdout, agent.Checks())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checksCmd)
}
