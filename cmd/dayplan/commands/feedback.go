package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <text...>",
	Short: "Give feedback on the current draft plan",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.bus.Close()

		id := sessionDate()
		sess, resumed, err := eng.orchestrator.Open(id, false)
		if err != nil {
			return err
		}
		if !resumed {
			return fmt.Errorf("no session exists for %s; start one with 'dayplan plan'", id)
		}

		res, err := eng.orchestrator.SubmitFeedback(cmd.Context(), sess, strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("the planning service is unavailable, try again later: %w", err)
		}
		printResult(res)
		return nil
	},
}
