package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var forceNew bool

var planCmd = &cobra.Command{
	Use:   "plan <goal...>",
	Short: "Start or continue a planning session with a goal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.bus.Close()

		id := sessionDate()
		sess, resumed, err := eng.orchestrator.Open(id, forceNew)
		if err != nil {
			return err
		}
		if resumed {
			fmt.Printf("Resuming session %s (state: %s)\n", id, sess.State)
		} else {
			fmt.Printf("Starting session %s\n", id)
		}

		res, err := eng.orchestrator.SubmitGoal(cmd.Context(), sess, strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("the planning service is unavailable, try again later: %w", err)
		}
		printResult(res)
		return nil
	},
}

func init() {
	planCmd.Flags().BoolVar(&forceNew, "new", false, "Discard any existing session for the date and start fresh")
}
