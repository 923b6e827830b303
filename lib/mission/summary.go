package mission

import (
	"math"
	"time"

	"github.com/jghoshh/missioncenter/models"
)

// CompletionRate returns round(100 * completed / total), or 0 when total is 0.
// The result is clamped to [0, 100].
func CompletionRate(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

// CurrentWeek returns the week of the first mission, in catalog order, whose
// [StartDate, EndDate] window contains now. Both ends are inclusive. It
// returns 0 when no window contains now.
func CurrentWeek(missions []models.Mission, now time.Time) int {
	for _, m := range missions {
		if !m.StartDate.After(now) && !m.EndDate.Before(now) {
			return m.Week
		}
	}
	return 0
}

// Summarize derives the summary for a joined mission list. Only records that
// match a loaded mission count as completed, so the rate never exceeds 100.
func Summarize(missions []MissionWithProgress, now time.Time) ProgressSummary {
	catalog := make([]models.Mission, len(missions))
	completed := 0
	for i, m := range missions {
		catalog[i] = m.Mission
		if m.Completed() {
			completed++
		}
	}
	return ProgressSummary{
		TotalMissions:     len(missions),
		CompletedMissions: completed,
		CompletionRate:    CompletionRate(completed, len(missions)),
		CurrentWeek:       CurrentWeek(catalog, now),
	}
}

// applyDelta adjusts a summary for one flipped mission. wasCompleted is the
// mission's state before the flip.
func applyDelta(s ProgressSummary, wasCompleted bool) ProgressSummary {
	if wasCompleted {
		s.CompletedMissions--
	} else {
		s.CompletedMissions++
	}
	if s.CompletedMissions < 0 {
		s.CompletedMissions = 0
	}
	s.CompletionRate = CompletionRate(s.CompletedMissions, s.TotalMissions)
	return s
}
