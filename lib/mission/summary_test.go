package mission

import (
	"testing"
	"time"

	"github.com/jghoshh/missioncenter/models"
	"github.com/stretchr/testify/assert"
)

func TestCompletionRate(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{3, 0, 0},
		{0, 7, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{7, 7, 100},
		{9, 7, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompletionRate(tt.completed, tt.total), "%d/%d", tt.completed, tt.total)
	}
}

func TestCurrentWeek(t *testing.T) {
	w0 := weekZero()
	w1 := weekOne()
	overlap := models.Mission{ID: "w2", Week: 2, StartDate: jan1, EndDate: jan7.AddDate(0, 0, 30)}
	missions := []models.Mission{w0, w1, overlap}

	assert.Equal(t, 0, CurrentWeek(missions, jan1.Add(-time.Hour)))
	assert.Equal(t, 0, CurrentWeek(missions, jan1), "start is inclusive")
	assert.Equal(t, 0, CurrentWeek(missions, jan7), "end is inclusive")
	assert.Equal(t, 1, CurrentWeek(missions, jan7.AddDate(0, 0, 3)))
	assert.Equal(t, 2, CurrentWeek(missions, jan7.AddDate(0, 0, 20)))
	assert.Equal(t, 0, CurrentWeek(nil, jan1))

	// Overlapping windows resolve to the first match in catalog order.
	assert.Equal(t, 2, CurrentWeek([]models.Mission{overlap, w0}, jan1.AddDate(0, 0, 2)))
}

func TestApplyToggleDoesNotMutateInput(t *testing.T) {
	joined := Join(testUser, []models.Mission{weekZero()}, nil)
	summary := Summarize(joined, jan1)
	state := State{Missions: joined, Summary: &summary}

	next, was, found := ApplyToggle(state, testUser, "w0", 0, jan1)
	assert.True(t, found)
	assert.False(t, was)
	assert.True(t, next.Missions[0].Completed())
	assert.Equal(t, 1, next.Summary.CompletedMissions)

	assert.False(t, state.Missions[0].Completed())
	assert.Equal(t, 0, state.Summary.CompletedMissions)
}

func TestSetCompletion(t *testing.T) {
	created := SetCompletion(nil, testUser, "w0", 0, true, jan1)
	assert.Equal(t, testUser, created.UserID)
	assert.Equal(t, 1, created.TotalCompleted)
	assert.Equal(t, jan1, created.CreatedAt)
	assert.Equal(t, jan1, created.CompletedMissions["w0"].CompletedAt)

	later := jan7
	again := SetCompletion(created, testUser, "w0", 0, true, later)
	assert.Equal(t, jan1, again.CompletedMissions["w0"].CompletedAt, "an existing record is kept")
	assert.Equal(t, later, again.LastUpdated)

	removed := SetCompletion(again, testUser, "w0", 0, false, later)
	assert.Empty(t, removed.CompletedMissions)
	assert.Equal(t, 0, removed.TotalCompleted)
	assert.Len(t, again.CompletedMissions, 1, "input is not modified")
}
