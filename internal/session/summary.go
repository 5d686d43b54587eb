package session

import (
	"fmt"
	"strings"

	"github.com/dayplan-ai/dayplan/pkg/types"
)

// Summarize renders a structured result as the short assistant turn stored
// in the conversation. The persisted history stays compact no matter how
// large the structured payload is.
func Summarize(result *types.StructuredResult, effective types.State) string {
	switch effective {
	case types.StateAwaitingClarification:
		if len(result.Questions) == 0 {
			// Reached when a rejected transition fell back to clarification;
			// the earlier questions still stand.
			return "Waiting on your answers to the pending questions."
		}
		var b strings.Builder
		fmt.Fprintf(&b, "I have %d clarifying questions:\n", len(result.Questions))
		for i, q := range result.Questions {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, q)
		}
		return strings.TrimRight(b.String(), "\n")

	case types.StateAwaitingFeedback:
		if result.Plan == nil {
			return "Draft ready for your feedback."
		}
		return planSummary(result.Plan)

	case types.StateFinalized:
		return "Your plan is finalized. Have a productive day!"

	case types.StateIdle:
	}
	return "Processing..."
}

// planSummary formats a plan compactly: one line per slot plus priorities
// and notes.
func planSummary(plan *types.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Draft plan (%d tasks, %d min scheduled):\n", len(plan.Schedule), plan.TotalMinutes())
	for _, item := range plan.Schedule {
		fmt.Fprintf(&b, "  %s  %s", item.Time, item.Task)
		if item.Priority != "" {
			fmt.Fprintf(&b, " [%s]", item.Priority)
		}
		b.WriteByte('\n')
	}
	if len(plan.Priorities) > 0 {
		fmt.Fprintf(&b, "Priorities: %s\n", strings.Join(plan.Priorities, ", "))
	}
	if plan.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", plan.Notes)
	}
	return strings.TrimRight(b.String(), "\n")
}
