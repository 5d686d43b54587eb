package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reviseCmd = &cobra.Command{
	Use:   "revise",
	Short: "Reopen a finalized plan for another feedback round",
	Args:  cobra.NoArgs,
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
			return fmt.Errorf("no session exists for %s", id)
		}

		if err := eng.orchestrator.Revise(sess); err != nil {
			return err
		}
		fmt.Printf("Session %s reopened; send changes with 'dayplan feedback'\n", id)
		return nil
	},
}
