// Package commands provides the CLI commands for dayplan.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dayplan-ai/dayplan/internal/logging"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags.
var (
	logLevel string
	dateFlag string
)

var rootCmd = &cobra.Command{
	Use:   "dayplan",
	Short: "dayplan - conversational day planning",
	Long: `dayplan drives a multi-turn planning conversation with a generative
completion service. Each day gets a durable session: start one with
'dayplan plan', answer clarifying questions with 'dayplan answer', refine
the draft with 'dayplan feedback', and reopen a finalized plan with
'dayplan revise'.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.Config{
			Level:  logging.ParseLevel(logLevel),
			Output: os.Stderr,
			Pretty: true,
		})
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "WARN", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&dateFlag, "date", "", "Session date (YYYY-MM-DD, defaults to today)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("dayplan %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(reviseCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// sessionDate resolves the --date flag, defaulting to today.
func sessionDate() string {
	if dateFlag != "" {
		return dateFlag
	}
	return time.Now().Format("2006-01-02")
}
