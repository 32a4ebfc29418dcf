package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "warble",
	Short: "warble — bounded engagement workflows for an LLM agent",
	Long: `warble runs persisted, resumable engagement workflows (follow cycles,
reply audits) against the platform, with daily budgets, permanent dedup, and
protected accounts enforced server-side. The agent drives it over MCP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(workflowsCmd)
	rootCmd.AddCommand(budgetCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
