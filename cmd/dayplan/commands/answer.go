package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dayplan-ai/dayplan/pkg/types"
)

var answerCmd = &cobra.Command{
	Use:   "answer <answer...>",
	Short: "Answer the pending clarifying questions, in order",
	Long: `Answers are matched positionally to the session's pending questions.
Provide one argument per question; unanswered questions are sent empty.`,
	Args: cobra.MinimumNArgs(1),
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
		if !resumed || len(sess.PendingQuestions) == 0 {
			return fmt.Errorf("session %s has no pending questions", id)
		}

		answers := make([]types.QuestionAnswer, len(sess.PendingQuestions))
		copy(answers, sess.PendingQuestions)
		for i := range answers {
			if i < len(args) {
				answers[i].Answer = args[i]
			}
		}

		res, err := eng.orchestrator.SubmitAnswers(cmd.Context(), sess, answers)
		if err != nil {
			return fmt.Errorf("the planning service is unavailable, try again later: %w", err)
		}
		printResult(res)
		return nil
	},
}
