package server

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jghoshh/missioncenter/backend/storage/persistent"
	"github.com/jghoshh/missioncenter/models"
)

// memStore is an in-memory storage.StorageInterface for handler tests.
type memStore struct {
	mu       sync.Mutex
	seq      int
	missions map[string]models.Mission
	progress map[string]*models.UserMissionProgress
	activity []models.MissionActivity
	profiles map[string]models.UserProfile
	groups   map[string]*models.TagGroup
	saveErr  error
}

func newMemStore() *memStore {
	return &memStore{
		missions: map[string]models.Mission{},
		progress: map[string]*models.UserMissionProgress{},
		profiles: map[string]models.UserProfile{},
		groups:   map[string]*models.TagGroup{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s%d", prefix, m.seq)
}

func (m *memStore) Connect(dbName, uri string) error { return nil }
func (m *memStore) Disconnect() error                { return nil }

func (m *memStore) AddMission(ctx context.Context, mission *models.Mission) (*models.Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mission.ID = m.nextID("m")
	m.missions[mission.ID] = *mission
	return mission, nil
}

func (m *memStore) FindMission(ctx context.Context, id string) (*models.Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mission, ok := m.missions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &mission, nil
}

func (m *memStore) FindMissionByWeek(ctx context.Context, week int) (*models.Mission, error) {
	missions, _ := m.FindMissions(ctx, true)
	for _, mission := range missions {
		if mission.Week == week {
			return &mission, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) FindMissions(ctx context.Context, activeOnly bool) ([]models.Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Mission{}
	for _, mission := range m.missions {
		if activeOnly && !mission.IsActive {
			continue
		}
		out = append(out, mission)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Week < out[j].Week })
	return out, nil
}

func (m *memStore) UpdateMission(ctx context.Context, id string, update storage.MissionUpdate) (*storage.UpdateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mission, ok := m.missions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if update.Title != nil {
		mission.Title = *update.Title
	}
	if update.Description != nil {
		mission.Description = *update.Description
	}
	if update.MissionURL != nil {
		mission.MissionURL = *update.MissionURL
	}
	if update.IsActive != nil {
		mission.IsActive = *update.IsActive
	}
	if update.StartDate != nil {
		mission.StartDate = *update.StartDate
	}
	if update.EndDate != nil {
		mission.EndDate = *update.EndDate
	}
	m.missions[id] = mission
	return &storage.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func (m *memStore) DeleteMission(ctx context.Context, id string) (*storage.DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.missions[id]; !ok {
		return nil, storage.ErrNotFound
	}
	delete(m.missions, id)
	return &storage.DeleteResult{DeletedCount: 1}, nil
}

func (m *memStore) FindProgress(ctx context.Context, userID string) (*models.UserMissionProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress[userID].Clone(), nil
}

func (m *memStore) SaveProgress(ctx context.Context, progress *models.UserMissionProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	saved := progress.Clone()
	saved.TotalCompleted = len(saved.CompletedMissions)
	m.progress[progress.UserID] = saved
	return nil
}

func (m *memStore) AddActivity(ctx context.Context, activity *models.MissionActivity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, *activity)
	return nil
}

func (m *memStore) FindActivity(ctx context.Context, userID string, limit int64) ([]models.MissionActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.MissionActivity{}
	for i := len(m.activity) - 1; i >= 0; i-- {
		if m.activity[i].UserID == userID {
			out = append(out, m.activity[i])
		}
		if limit > 0 && int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) SaveProfile(ctx context.Context, profile *models.UserProfile) (*models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := *profile
	if existing, ok := m.profiles[profile.UID]; ok {
		saved.CreatedAt = existing.CreatedAt
		if saved.PrivacyConsent == nil {
			saved.PrivacyConsent = existing.PrivacyConsent
		}
	} else {
		saved.CreatedAt = time.Now().UTC()
	}
	m.profiles[profile.UID] = saved
	return &saved, nil
}

func (m *memStore) FindProfile(ctx context.Context, uid string) (*models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[uid]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &profile, nil
}

func (m *memStore) FindProfiles(ctx context.Context) ([]models.UserProfile, error) {
	return m.SearchProfiles(ctx, "")
}

func (m *memStore) SearchProfiles(ctx context.Context, term string) ([]models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.UserProfile{}
	for _, p := range m.profiles {
		if strings.Contains(strings.ToLower(p.DisplayName), strings.ToLower(term)) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

func (m *memStore) SavePrivacyConsent(ctx context.Context, uid string, consent models.PrivacyConsent) (*storage.UpdateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[uid]
	if !ok {
		return nil, storage.ErrNotFound
	}
	profile.PrivacyConsent = &consent
	m.profiles[uid] = profile
	return &storage.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func cloneGroup(g *models.TagGroup) *models.TagGroup {
	c := *g
	c.Applications = append([]models.TagGroupApplication(nil), g.Applications...)
	return &c
}

func (m *memStore) AddTagGroup(ctx context.Context, group *models.TagGroup) (*models.TagGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	group.ID = m.nextID("g")
	group.CreatedAt = time.Now().UTC().Add(time.Duration(m.seq) * time.Millisecond)
	m.groups[group.ID] = cloneGroup(group)
	return group, nil
}

func (m *memStore) FindTagGroup(ctx context.Context, id string) (*models.TagGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneGroup(g), nil
}

func (m *memStore) filterGroups(keep func(*models.TagGroup) bool) []models.TagGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.TagGroup{}
	for _, g := range m.groups {
		if keep(g) {
			out = append(out, *cloneGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memStore) FindTagGroups(ctx context.Context, activeOnly bool) ([]models.TagGroup, error) {
	return m.filterGroups(func(g *models.TagGroup) bool { return !activeOnly || g.IsActive }), nil
}

func (m *memStore) FindTagGroupsByApplicant(ctx context.Context, userID string) ([]models.TagGroup, error) {
	return m.filterGroups(func(g *models.TagGroup) bool { return g.HasApplicant(userID) }), nil
}

func (m *memStore) UpdateTagGroup(ctx context.Context, id string, update storage.TagGroupUpdate) (*storage.UpdateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if update.Name != nil {
		g.Name = *update.Name
	}
	if update.Description != nil {
		g.Description = *update.Description
	}
	if update.IsActive != nil {
		g.IsActive = *update.IsActive
	}
	return &storage.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func (m *memStore) DeleteTagGroup(ctx context.Context, id string) (*storage.DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[id]; !ok {
		return nil, storage.ErrNotFound
	}
	delete(m.groups, id)
	return &storage.DeleteResult{DeletedCount: 1}, nil
}

func (m *memStore) AddApplication(ctx context.Context, groupID string, app models.TagGroupApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return storage.ErrNotFound
	}
	if g.HasApplicant(app.UserID) {
		return storage.ErrAlreadyApplied
	}
	g.Applications = append(g.Applications, app)
	return nil
}

func (m *memStore) RemoveApplication(ctx context.Context, groupID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return storage.ErrNotFound
	}
	for i, app := range g.Applications {
		if app.UserID == userID {
			g.Applications = append(g.Applications[:i], g.Applications[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotApplied
}
