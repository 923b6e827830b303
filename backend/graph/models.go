package graph

import (
	"fmt"
	"time"

	"github.com/jghoshh/missioncenter/lib/mission"
	"github.com/jghoshh/missioncenter/models"
)

// MissionCenter is a member's active missions joined with their records,
// plus the summary derived from them.
type MissionCenter struct {
	Summary  mission.ProgressSummary       `json:"summary"`
	Missions []mission.MissionWithProgress `json:"missions"`
}

type MissionCompletionInput struct {
	MissionID   string
	Week        int
	CompletedAt *time.Time
}

type ProgressInput struct {
	CompletedMissions []MissionCompletionInput
	LastUpdated       *time.Time
}

// Aggregate turns the input into the stored document of userID. A mission
// listed twice is rejected.
func (in ProgressInput) Aggregate(userID string) (*models.UserMissionProgress, error) {
	p := &models.UserMissionProgress{
		UserID:            userID,
		CompletedMissions: make(map[string]models.MissionCompletion, len(in.CompletedMissions)),
	}
	for _, rec := range in.CompletedMissions {
		if _, dup := p.CompletedMissions[rec.MissionID]; dup {
			return nil, fmt.Errorf("%w: mission %q listed twice", ErrInvalidProgress, rec.MissionID)
		}
		c := models.MissionCompletion{MissionID: rec.MissionID, Week: rec.Week}
		if rec.CompletedAt != nil {
			c.CompletedAt = *rec.CompletedAt
		}
		p.CompletedMissions[rec.MissionID] = c
	}
	if in.LastUpdated != nil {
		p.LastUpdated = *in.LastUpdated
	}
	return p, nil
}
