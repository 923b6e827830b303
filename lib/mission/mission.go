// Package mission tracks a member's weekly mission checklist. A Tracker
// holds the active missions joined with the member's completion records,
// applies toggles optimistically and resynchronises from the progress store
// when a write fails.
package mission

import (
	"context"
	"errors"
	"time"

	"github.com/jghoshh/missioncenter/models"
)

var (
	// ErrCatalogRead wraps failures reading the mission catalog.
	ErrCatalogRead = errors.New("mission catalog read failed")
	// ErrStoreRead wraps failures reading a progress aggregate.
	ErrStoreRead = errors.New("progress store read failed")
	// ErrStoreWrite wraps failures writing a progress aggregate.
	ErrStoreWrite = errors.New("progress store write failed")
	// ErrToggleFailed is reported when a toggle could not be made durable.
	ErrToggleFailed = errors.New("mission status change failed")
	// ErrToggleInFlight is returned when a toggle is already pending.
	ErrToggleInFlight = errors.New("another mission toggle is in flight")
	// ErrUnknownMission is returned when toggling a mission that is not loaded.
	ErrUnknownMission = errors.New("mission is not in the loaded list")
)

// MissionCatalog provides the active missions ordered by week ascending.
type MissionCatalog interface {
	ListActive(ctx context.Context) ([]models.Mission, error)
}

// ProgressStore persists one UserMissionProgress document per user.
// ReadAggregate returns nil and no error when the user has no document.
type ProgressStore interface {
	ReadAggregate(ctx context.Context, userID string) (*models.UserMissionProgress, error)
	WriteAggregate(ctx context.Context, userID string, progress *models.UserMissionProgress) error
}

// Progress is the caller's completion state for one mission.
type Progress struct {
	UserID      string    `json:"userId"`
	MissionID   string    `json:"missionId"`
	Week        int       `json:"week"`
	IsCompleted bool      `json:"isCompleted"`
	CompletedAt time.Time `json:"completedAt"`
}

// MissionWithProgress pairs a mission with the caller's record, if any.
type MissionWithProgress struct {
	Mission  models.Mission `json:"mission"`
	Progress *Progress      `json:"progress,omitempty"`
}

// Completed reports whether the caller completed the mission.
func (m MissionWithProgress) Completed() bool {
	return m.Progress != nil && m.Progress.IsCompleted
}

// ProgressSummary is derived from the loaded missions and never stored.
type ProgressSummary struct {
	TotalMissions     int `json:"totalMissions"`
	CompletedMissions int `json:"completedMissions"`
	CompletionRate    int `json:"completionRate"`
	CurrentWeek       int `json:"currentWeek"`
}

// Join left-joins the catalog with the user's completion records. Missions
// keep catalog order; a mission without a record has nil Progress.
func Join(userID string, missions []models.Mission, progress *models.UserMissionProgress) []MissionWithProgress {
	joined := make([]MissionWithProgress, 0, len(missions))
	for _, m := range missions {
		entry := MissionWithProgress{Mission: m}
		if progress != nil {
			if rec, ok := progress.CompletedMissions[m.ID]; ok {
				entry.Progress = &Progress{
					UserID:      userID,
					MissionID:   m.ID,
					Week:        m.Week,
					IsCompleted: true,
					CompletedAt: rec.CompletedAt,
				}
			}
		}
		joined = append(joined, entry)
	}
	return joined
}

func cloneMissions(in []MissionWithProgress) []MissionWithProgress {
	out := make([]MissionWithProgress, len(in))
	for i, m := range in {
		out[i] = m
		if m.Progress != nil {
			p := *m.Progress
			out[i].Progress = &p
		}
	}
	return out
}
