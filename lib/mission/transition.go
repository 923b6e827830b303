package mission

import (
	"time"

	"github.com/jghoshh/missioncenter/models"
)

// State is the tracker's in-memory view. Summary is nil until the first load.
type State struct {
	Missions []MissionWithProgress
	Summary  *ProgressSummary
}

func (s State) clone() State {
	c := State{Missions: cloneMissions(s.Missions)}
	if s.Summary != nil {
		sum := *s.Summary
		c.Summary = &sum
	}
	return c
}

// ApplyToggle flips the completion of missionID and returns the next state,
// whether the mission was completed before the flip, and whether it was found.
// The input state is not modified.
func ApplyToggle(s State, userID, missionID string, week int, now time.Time) (next State, wasCompleted bool, found bool) {
	next = s.clone()
	for i := range next.Missions {
		entry := &next.Missions[i]
		if entry.Mission.ID != missionID {
			continue
		}
		found = true
		wasCompleted = entry.Completed()
		if wasCompleted {
			entry.Progress = nil
		} else {
			entry.Progress = &Progress{
				UserID:      userID,
				MissionID:   missionID,
				Week:        week,
				IsCompleted: true,
				CompletedAt: now,
			}
		}
		break
	}
	if !found {
		return s, false, false
	}
	if next.Summary != nil {
		sum := applyDelta(*next.Summary, wasCompleted)
		next.Summary = &sum
	}
	return next, wasCompleted, true
}

// SetCompletion returns a copy of progress with the record for missionID
// present when completed is true and absent otherwise. TotalCompleted is
// recomputed from the mapping and LastUpdated set to now. A nil progress is
// treated as an empty aggregate created now.
func SetCompletion(progress *models.UserMissionProgress, userID, missionID string, week int, completed bool, now time.Time) *models.UserMissionProgress {
	next := progress.Clone()
	if next == nil {
		next = &models.UserMissionProgress{
			UserID:            userID,
			CompletedMissions: map[string]models.MissionCompletion{},
			CreatedAt:         now,
		}
	}
	if completed {
		if _, ok := next.CompletedMissions[missionID]; !ok {
			next.CompletedMissions[missionID] = models.MissionCompletion{
				MissionID:   missionID,
				Week:        week,
				CompletedAt: now,
			}
		}
	} else {
		delete(next.CompletedMissions, missionID)
	}
	next.TotalCompleted = len(next.CompletedMissions)
	next.LastUpdated = now
	return next
}
