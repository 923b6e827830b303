package mission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jghoshh/missioncenter/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	missions []models.Mission
	err      error
}

func (c *fakeCatalog) ListActive(ctx context.Context) ([]models.Mission, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.missions, nil
}

type fakeStore struct {
	mu       sync.Mutex
	docs     map[string]*models.UserMissionProgress
	readErr  error
	writeErr error
	writes   int
	// block, when set, is waited on before every write.
	block chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]*models.UserMissionProgress{}}
}

func (s *fakeStore) ReadAggregate(ctx context.Context, userID string) (*models.UserMissionProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.docs[userID].Clone(), nil
}

func (s *fakeStore) WriteAggregate(ctx context.Context, userID string, p *models.UserMissionProgress) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.writeErr != nil {
		return s.writeErr
	}
	s.docs[userID] = p.Clone()
	return nil
}

func (s *fakeStore) doc(userID string) *models.UserMissionProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[userID].Clone()
}

const testUser = "user-1"

var (
	jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan7 = time.Date(2024, 1, 7, 23, 59, 59, 0, time.UTC)
)

func weekZero() models.Mission {
	return models.Mission{ID: "w0", Week: 0, Title: "Intro", IsActive: true, StartDate: jan1, EndDate: jan7}
}

func weekOne() models.Mission {
	return models.Mission{ID: "w1", Week: 1, Title: "First post", IsActive: true, StartDate: jan7.Add(time.Second), EndDate: jan7.AddDate(0, 0, 7)}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestLoadAllWithoutAggregate(t *testing.T) {
	catalog := &fakeCatalog{missions: []models.Mission{weekZero()}}
	tracker := NewTracker(catalog, newFakeStore(), WithClock(fixedClock(jan1.AddDate(1, 0, 0))))

	require.NoError(t, tracker.LoadAll(context.Background(), testUser))

	missions := tracker.Missions()
	require.Len(t, missions, 1)
	assert.Nil(t, missions[0].Progress)

	summary, ok := tracker.Summary()
	require.True(t, ok)
	assert.Equal(t, ProgressSummary{TotalMissions: 1, CompletedMissions: 0, CompletionRate: 0, CurrentWeek: 0}, summary)
}

func TestLoadAllJoinsRecordsAndCurrentWeek(t *testing.T) {
	store := newFakeStore()
	store.docs[testUser] = &models.UserMissionProgress{
		UserID: testUser,
		CompletedMissions: map[string]models.MissionCompletion{
			"w1":      {MissionID: "w1", Week: 1, CompletedAt: jan7},
			"retired": {MissionID: "retired", Week: 9, CompletedAt: jan7},
		},
		TotalCompleted: 2,
	}
	catalog := &fakeCatalog{missions: []models.Mission{weekZero(), weekOne()}}
	tracker := NewTracker(catalog, store, WithClock(fixedClock(jan1.AddDate(0, 0, 2))))

	require.NoError(t, tracker.LoadAll(context.Background(), testUser))

	missions := tracker.Missions()
	require.Len(t, missions, 2)
	assert.False(t, missions[0].Completed())
	assert.True(t, missions[1].Completed())
	assert.Equal(t, jan7, missions[1].Progress.CompletedAt)

	summary, _ := tracker.Summary()
	assert.Equal(t, 2, summary.TotalMissions)
	assert.Equal(t, 1, summary.CompletedMissions, "records of inactive missions are not counted")
	assert.Equal(t, 50, summary.CompletionRate)
	assert.Equal(t, 0, summary.CurrentWeek)
}

func TestLoadAllFailureKeepsState(t *testing.T) {
	catalog := &fakeCatalog{missions: []models.Mission{weekZero()}}
	store := newFakeStore()
	tracker := NewTracker(catalog, store)
	require.NoError(t, tracker.LoadAll(context.Background(), testUser))

	catalog.err = errors.New("unavailable")
	err := tracker.LoadAll(context.Background(), testUser)
	assert.ErrorIs(t, err, ErrCatalogRead)
	assert.Len(t, tracker.Missions(), 1)

	catalog.err = nil
	store.readErr = errors.New("unavailable")
	err = tracker.LoadAll(context.Background(), testUser)
	assert.ErrorIs(t, err, ErrStoreRead)
	assert.Len(t, tracker.Missions(), 1)
	_, ok := tracker.Summary()
	assert.True(t, ok)
}

func TestToggleCompletesAndUncompletes(t *testing.T) {
	store := newFakeStore()
	tracker := NewTracker(&fakeCatalog{missions: []models.Mission{weekZero()}}, store, WithClock(fixedClock(jan1)))
	require.NoError(t, tracker.LoadAll(context.Background(), testUser))

	require.NoError(t, tracker.Toggle(context.Background(), testUser, "w0", 0))
	missions := tracker.Missions()
	require.NotNil(t, missions[0].Progress)
	assert.True(t, missions[0].Progress.IsCompleted)
	summary, _ := tracker.Summary()
	assert.Equal(t, 1, summary.CompletedMissions)
	assert.Equal(t, 100, summary.CompletionRate)

	doc := store.doc(testUser)
	require.NotNil(t, doc)
	assert.Equal(t, 1, doc.TotalCompleted)
	assert.Equal(t, 0, doc.CompletedMissions["w0"].Week)

	require.NoError(t, tracker.Toggle(context.Background(), testUser, "w0", 0))
	assert.False(t, tracker.Missions()[0].Completed())
	summary, _ = tracker.Summary()
	assert.Equal(t, 0, summary.CompletedMissions)
	assert.Equal(t, 0, summary.CompletionRate)

	doc = store.doc(testUser)
	assert.Empty(t, doc.CompletedMissions)
	assert.Equal(t, 0, doc.TotalCompleted)
	assert.Equal(t, 2, store.writes, "a double toggle still issues two writes")
}

func TestToggleKeepsTotalInSyncWithMapping(t *testing.T) {
	store := newFakeStore()
	catalog := &fakeCatalog{missions: []models.Mission{weekZero(), weekOne()}}
	tracker := NewTracker(catalog, store)
	require.NoError(t, tracker.LoadAll(context.Background(), testUser))

	steps := []struct {
		id   string
		week int
	}{{"w0", 0}, {"w1", 1}, {"w0", 0}, {"w1", 1}, {"w1", 1}}
	for _, step := range steps {
		require.NoError(t, tracker.Toggle(context.Background(), testUser, step.id, step.week))
		doc := store.doc(testUser)
		assert.Equal(t, len(doc.CompletedMissions), doc.TotalCompleted)

		summary, _ := tracker.Summary()
		assert.GreaterOrEqual(t, summary.CompletionRate, 0)
		assert.LessOrEqual(t, summary.CompletionRate, 100)
	}
	summary, _ := tracker.Summary()
	assert.Equal(t, 1, summary.CompletedMissions)
	assert.Equal(t, 50, summary.CompletionRate)
}

func TestToggleIsSingleFlight(t *testing.T) {
	store := newFakeStore()
	store.block = make(chan struct{})
	catalog := &fakeCatalog{missions: []models.Mission{weekZero(), weekOne()}}
	tracker := NewTracker(catalog, store)
	require.NoError(t, tracker.LoadAll(context.Background(), testUser))

	done := make(chan error, 1)
	go func() {
		done <- tracker.Toggle(context.Background(), testUser, "w0", 0)
	}()

	require.Eventually(t, func() bool {
		id, ok := tracker.Pending()
		return ok && id == "w0"
	}, time.Second, time.Millisecond)

	err := tracker.Toggle(context.Background(), testUser, "w1", 1)
	assert.ErrorIs(t, err, ErrToggleInFlight)
	assert.False(t, tracker.Missions()[1].Completed())

	close(store.block)
	require.NoError(t, <-done)

	missions := tracker.Missions()
	assert.True(t, missions[0].Completed())
	assert.False(t, missions[1].Completed())
	_, pending := tracker.Pending()
	assert.False(t, pending)
	assert.Equal(t, 1, store.writes)
}

func TestToggleFailureResyncsFromStore(t *testing.T) {
	store := newFakeStore()
	store.docs[testUser] = &models.UserMissionProgress{
		UserID:            testUser,
		CompletedMissions: map[string]models.MissionCompletion{"w1": {MissionID: "w1", Week: 1, CompletedAt: jan7}},
		TotalCompleted:    1,
	}
	catalog := &fakeCatalog{missions: []models.Mission{weekZero(), weekOne()}}
	now := jan1.AddDate(0, 0, 1)
	tracker := NewTracker(catalog, store, WithClock(fixedClock(now)))
	require.NoError(t, tracker.LoadAll(context.Background(), testUser))

	// Someone else completed w0 in the meantime; the write then fails.
	store.docs[testUser].CompletedMissions["w0"] = models.MissionCompletion{MissionID: "w0", Week: 0, CompletedAt: jan1}
	store.docs[testUser].TotalCompleted = 2
	store.writeErr = errors.New("permission denied")

	err := tracker.Toggle(context.Background(), testUser, "w1", 1)
	assert.ErrorIs(t, err, ErrToggleFailed)

	fresh := NewTracker(catalog, store, WithClock(fixedClock(now)))
	require.NoError(t, fresh.LoadAll(context.Background(), testUser))
	assert.Equal(t, fresh.Missions(), tracker.Missions())
	want, _ := fresh.Summary()
	got, _ := tracker.Summary()
	assert.Equal(t, want, got)
	assert.Equal(t, 2, got.CompletedMissions)

	_, pending := tracker.Pending()
	assert.False(t, pending)
}

func TestToggleFailureWithFailedReloadRestoresSnapshot(t *testing.T) {
	store := newFakeStore()
	catalog := &fakeCatalog{missions: []models.Mission{weekZero()}}
	tracker := NewTracker(catalog, store)
	require.NoError(t, tracker.LoadAll(context.Background(), testUser))

	store.readErr = errors.New("offline")
	err := tracker.Toggle(context.Background(), testUser, "w0", 0)
	assert.ErrorIs(t, err, ErrToggleFailed)

	assert.False(t, tracker.Missions()[0].Completed())
	summary, _ := tracker.Summary()
	assert.Equal(t, 0, summary.CompletedMissions)
}

func TestToggleUnknownMission(t *testing.T) {
	store := newFakeStore()
	tracker := NewTracker(&fakeCatalog{missions: []models.Mission{weekZero()}}, store)
	require.NoError(t, tracker.LoadAll(context.Background(), testUser))

	err := tracker.Toggle(context.Background(), testUser, "missing", 3)
	assert.ErrorIs(t, err, ErrUnknownMission)
	assert.Equal(t, 0, store.writes)
	_, pending := tracker.Pending()
	assert.False(t, pending)
}

func TestTogglePreservesRecordsOutsideCatalog(t *testing.T) {
	store := newFakeStore()
	store.docs[testUser] = &models.UserMissionProgress{
		UserID:            testUser,
		CompletedMissions: map[string]models.MissionCompletion{"retired": {MissionID: "retired", Week: 9}},
		TotalCompleted:    1,
		CreatedAt:         jan1,
	}
	tracker := NewTracker(&fakeCatalog{missions: []models.Mission{weekZero()}}, store)
	require.NoError(t, tracker.LoadAll(context.Background(), testUser))

	require.NoError(t, tracker.Toggle(context.Background(), testUser, "w0", 0))
	doc := store.doc(testUser)
	assert.Contains(t, doc.CompletedMissions, "retired")
	assert.Contains(t, doc.CompletedMissions, "w0")
	assert.Equal(t, 2, doc.TotalCompleted)
	assert.Equal(t, jan1, doc.CreatedAt)
}

type slowStore struct{ *fakeStore }

func (s slowStore) WriteAggregate(ctx context.Context, userID string, p *models.UserMissionProgress) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestToggleWriteTimesOut(t *testing.T) {
	store := slowStore{newFakeStore()}
	tracker := NewTracker(&fakeCatalog{missions: []models.Mission{weekZero()}}, store, WithTimeout(20*time.Millisecond))
	require.NoError(t, tracker.LoadAll(context.Background(), testUser))

	err := tracker.Toggle(context.Background(), testUser, "w0", 0)
	assert.ErrorIs(t, err, ErrToggleFailed)
	assert.ErrorContains(t, err, context.DeadlineExceeded.Error())
	assert.False(t, tracker.Missions()[0].Completed())
}

// ctxCatalog fails once the caller's context is done.
type ctxCatalog struct{ fakeCatalog }

func (c *ctxCatalog) ListActive(ctx context.Context) ([]models.Mission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.fakeCatalog.ListActive(ctx)
}

// lateAckStore commits every write but only answers after ctx ends.
type lateAckStore struct{ *fakeStore }

func (s lateAckStore) ReadAggregate(ctx context.Context, userID string) (*models.UserMissionProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.fakeStore.ReadAggregate(ctx, userID)
}

func (s lateAckStore) WriteAggregate(ctx context.Context, userID string, p *models.UserMissionProgress) error {
	if err := s.fakeStore.WriteAggregate(ctx, userID, p); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestToggleCallerDeadlineStillResyncsFromStore(t *testing.T) {
	store := lateAckStore{newFakeStore()}
	catalog := &ctxCatalog{fakeCatalog{missions: []models.Mission{weekZero()}}}
	tracker := NewTracker(catalog, store)
	require.NoError(t, tracker.LoadAll(context.Background(), testUser))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := tracker.Toggle(ctx, testUser, "w0", 0)
	assert.ErrorIs(t, err, ErrToggleFailed)
	assert.NotContains(t, err.Error(), "reload")

	// The store kept the write, so the tracker must show it.
	require.Contains(t, store.doc(testUser).CompletedMissions, "w0")
	assert.True(t, tracker.Missions()[0].Completed())
	summary, _ := tracker.Summary()
	assert.Equal(t, 1, summary.CompletedMissions)
}
