package task

import (
	"math"
	"time"
)

// Default Taskwarrior urgency coefficients (urgency.*.coefficient in taskrc).
const (
	coefficientNext        = 15.0
	coefficientDue         = 12.0
	coefficientPriorityH   = 6.0
	coefficientPriorityM   = 3.9
	coefficientPriorityL   = 1.8
	coefficientScheduled   = 5.0
	coefficientActive      = 4.0
	coefficientAge         = 2.0
	coefficientAnnotations = 1.0
	coefficientTags        = 1.0
	coefficientProject     = 1.0
	coefficientWaiting     = -3.0
	coefficientBlocked     = -5.0

	urgencyAgeMaxDays = 365.0
)

// Urgency computes a task's urgency with Taskwarrior's default coefficients.
// It is used when a backend hands back records without a precomputed score.
func Urgency(t Task, now time.Time) float64 {
	if t.Status.IsClosed() {
		return 0
	}

	u := 0.0
	if t.HasTag("next") {
		u += coefficientNext
	}
	if t.Due != nil {
		u += coefficientDue * dueFactor(*t.Due, now)
	}
	switch t.Priority {
	case PriorityHigh:
		u += coefficientPriorityH
	case PriorityMedium:
		u += coefficientPriorityM
	case PriorityLow:
		u += coefficientPriorityL
	}
	if t.Scheduled != nil && !t.Scheduled.After(now) {
		u += coefficientScheduled
	}
	if t.IsActive() {
		u += coefficientActive
	}
	if !t.Entry.IsZero() {
		ageDays := now.Sub(t.Entry).Hours() / 24
		u += coefficientAge * math.Max(0, math.Min(ageDays/urgencyAgeMaxDays, 1))
	}
	u += coefficientAnnotations * countFactor(len(t.Annotations))
	u += coefficientTags * countFactor(len(t.Tags))
	if t.Project != "" {
		u += coefficientProject
	}
	if t.Status == StatusWaiting || (t.Wait != nil && t.Wait.After(now)) {
		u += coefficientWaiting
	}
	if t.IsBlocked() {
		u += coefficientBlocked
	}
	return math.Round(u*10000) / 10000
}

// dueFactor maps days overdue onto [0.2, 1.0]: 1.0 once a week overdue,
// linear over the three weeks before that, 0.2 further out.
func dueFactor(due, now time.Time) float64 {
	daysOverdue := now.Sub(due).Hours() / 24
	switch {
	case daysOverdue >= 7:
		return 1.0
	case daysOverdue >= -14:
		return ((daysOverdue+14)*0.8)/21 + 0.2
	default:
		return 0.2
	}
}

func countFactor(n int) float64 {
	switch {
	case n <= 0:
		return 0
	case n == 1:
		return 0.8
	case n == 2:
		return 0.9
	default:
		return 1.0
	}
}
