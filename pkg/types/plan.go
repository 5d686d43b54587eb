package types

import (
	"fmt"
	"strings"
)

// ScheduleItem is a single task slot in a plan.
type ScheduleItem struct {
	// Time is the slot in "HH:MM-HH:MM" form.
	Time string `json:"time"`
	Task string `json:"task"`
	// DurationMinutes is the estimated duration when the service supplies
	// one; otherwise it is derived from Time.
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Priority        string `json:"priority,omitempty"`
}

// Duration returns the item's duration in minutes, preferring the explicit
// estimate and falling back to the time range. Unparseable ranges yield 0.
func (si ScheduleItem) Duration() int {
	if si.DurationMinutes > 0 {
		return si.DurationMinutes
	}
	start, end, ok := splitRange(si.Time)
	if !ok {
		return 0
	}
	d := end - start
	if d < 0 {
		return 0
	}
	return d
}

func splitRange(r string) (startMin, endMin int, ok bool) {
	parts := strings.SplitN(r, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, err1 := parseClock(parts[0])
	end, err2 := parseClock(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return start, end, true
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value out of range: %s", s)
	}
	return h*60 + m, nil
}

// Plan is the structured artifact produced by the planning conversation.
type Plan struct {
	Schedule   []ScheduleItem `json:"schedule"`
	Priorities []string       `json:"priorities"`
	Notes      string         `json:"notes"`
}

// TotalMinutes sums the durations of every scheduled item.
func (p *Plan) TotalMinutes() int {
	total := 0
	for _, item := range p.Schedule {
		total += item.Duration()
	}
	return total
}
