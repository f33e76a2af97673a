// Package cli implements the Fluentia command-line interface using Cobra.
// Each subcommand maps to one progression operation (award, level, etc.).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fluentia",
	Short: "Fluentia: XP, levels, streaks and badges for language practice",
	Long: `Fluentia tracks learner progression for a language-learning app.
It awards XP once per completed activity, derives levels, keeps daily
streaks and unlocks badges.

Run 'fluentia serve' for the HTTP API, or use the subcommands directly
against the configured store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
