package workflow

import (
	"fmt"
	"time"
)

// Urgency classifies how quickly an expertise request must be answered.
type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
	UrgencyUrgent Urgency = "URGENT"
)

var slaOffsets = map[Urgency]time.Duration{
	UrgencyUrgent: 2 * time.Hour,
	UrgencyHigh:   24 * time.Hour,
	UrgencyMedium: 72 * time.Hour,
	UrgencyLow:    168 * time.Hour,
}

// DeadlineFor computes the response deadline for an expertise request created
// at ref. The deadline is fixed at creation time; later urgency edits do not
// recompute it.
func DeadlineFor(urgency Urgency, ref time.Time) (time.Time, error) {
	offset, ok := slaOffsets[urgency]
	if !ok {
		return time.Time{}, fmt.Errorf("workflow: unknown urgency %q", urgency)
	}
	return ref.Add(offset), nil
}
