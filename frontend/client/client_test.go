package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/form3tech-oss/jwt-go"
	"github.com/jghoshh/missioncenter/backend/graph"
	"github.com/jghoshh/missioncenter/backend/server/context_key"
	"github.com/jghoshh/missioncenter/backend/storage/persistent"
	"github.com/jghoshh/missioncenter/lib/mission"
	"github.com/jghoshh/missioncenter/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

const testKeyringKey = "test-token"

func signedToken(t *testing.T, userID string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"id": userID, "exp": exp.Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	return token
}

// progressStore keeps the documents behind the GraphQL endpoint.
type progressStore struct {
	mu       sync.Mutex
	progress *models.UserMissionProgress
	activity []models.MissionActivity
	saves    int
	failSave bool
}

func (s *progressStore) FindMission(ctx context.Context, id string) (*models.Mission, error) {
	return nil, storage.ErrNotFound
}

func (s *progressStore) FindMissionByWeek(ctx context.Context, week int) (*models.Mission, error) {
	return nil, storage.ErrNotFound
}

func (s *progressStore) FindProgress(ctx context.Context, userID string) (*models.UserMissionProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.Clone(), nil
}

func (s *progressStore) SaveProgress(ctx context.Context, p *models.UserMissionProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errors.New("write failed")
	}
	s.progress = p.Clone()
	s.saves++
	return nil
}

func (s *progressStore) FindActivity(ctx context.Context, userID string, limit int64) ([]models.MissionActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int64(len(s.activity)) > limit {
		return s.activity[:limit], nil
	}
	return s.activity, nil
}

type staticCatalog []models.Mission

func (c staticCatalog) ListActive(ctx context.Context) ([]models.Mission, error) {
	return c, nil
}

// fakeAPI serves a tiny slice of the REST API from memory and the real
// GraphQL schema for missions and progress.
type fakeAPI struct {
	token   string
	store   *progressStore
	graphQL http.Handler
}

func newFakeAPI(token string) *fakeAPI {
	store := &progressStore{}
	gql := handler.New(graph.NewExecutableSchema(graph.Config{Resolvers: &graph.Resolver{
		Store: store,
		Catalog: staticCatalog{
			{ID: "m0", Week: 0, Title: "Intro", IsActive: true},
			{ID: "m1", Week: 1, Title: "Room tour", IsActive: true},
		},
	}}))
	gql.AddTransport(transport.POST{})
	return &fakeAPI{token: token, store: store, graphQL: gql}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid token"})
		return
	}
	switch {
	case r.URL.Path == "/graphql":
		ctx := context.WithValue(r.Context(), contextKey.UserIDKey, "u1")
		f.graphQL.ServeHTTP(w, r.WithContext(ctx))
	case r.URL.Path == "/missions":
		json.NewEncoder(w).Encode([]models.Mission{{ID: "m0", Week: 0, Title: "Intro", IsActive: true}})
	case strings.HasSuffix(r.URL.Path, "/tags"):
		w.Header().Set("Content-Type", "text/plain")
		if r.URL.Query().Get("random") == "true" {
			w.Write([]byte("@one"))
			return
		}
		w.Write([]byte("@one @two"))
	case r.URL.Path == "/members":
		json.NewEncoder(w).Encode([]models.UserProfile{{UID: "u2", DisplayName: r.URL.Query().Get("q")}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func setup(t *testing.T) (*Client, *fakeAPI, string) {
	t.Helper()
	keyring.MockInit()
	token := signedToken(t, "u1", time.Now().Add(time.Hour))
	api := newFakeAPI(token)
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", testKeyringKey), api, token
}

func TestSignInStoresToken(t *testing.T) {
	c, _, token := setup(t)

	_, err := c.Token()
	assert.ErrorIs(t, err, ErrNotSignedIn)

	userID, err := c.SignIn(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	stored, err := c.Token()
	require.NoError(t, err)
	assert.Equal(t, token, stored)

	require.NoError(t, c.SignOut())
	require.NoError(t, c.SignOut())
	_, err = c.UserID()
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestSignInRejectsBadTokens(t *testing.T) {
	c, _, _ := setup(t)

	_, err := c.SignIn(context.Background(), signedToken(t, "u1", time.Now().Add(-time.Hour)))
	assert.Error(t, err)

	_, err = c.SignIn(context.Background(), "garbage")
	assert.Error(t, err)

	// Well formed but not accepted by the API.
	_, err = c.SignIn(context.Background(), signedToken(t, "u1", time.Now().Add(2*time.Hour)))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid token", apiErr.Message)
}

func TestProgressRoundTrip(t *testing.T) {
	c, api, token := setup(t)
	ctx := context.Background()
	_, err := c.SignIn(ctx, token)
	require.NoError(t, err)

	progress, err := c.ReadAggregate(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, progress)

	completedAt := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	require.NoError(t, c.WriteAggregate(ctx, "u1", &models.UserMissionProgress{
		UserID: "u1",
		CompletedMissions: map[string]models.MissionCompletion{
			"m0": {MissionID: "m0", CompletedAt: completedAt},
			"m1": {Week: 1},
		},
		TotalCompleted: 2,
	}))
	api.store.mu.Lock()
	assert.Equal(t, 1, api.store.saves)
	api.store.mu.Unlock()

	progress, err = c.ReadAggregate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", progress.UserID)
	assert.Equal(t, 2, progress.TotalCompleted)
	assert.True(t, completedAt.Equal(progress.CompletedMissions["m0"].CompletedAt))
	assert.Equal(t, "m1", progress.CompletedMissions["m1"].MissionID)
	assert.Equal(t, 1, progress.CompletedMissions["m1"].Week)

	_, err = c.ReadAggregate(ctx, "someone-else")
	assert.Error(t, err)
}

func TestTrackerOverClient(t *testing.T) {
	c, api, token := setup(t)
	ctx := context.Background()
	_, err := c.SignIn(ctx, token)
	require.NoError(t, err)

	tracker := mission.NewTracker(c, c)
	require.NoError(t, tracker.LoadAll(ctx, "u1"))
	require.NoError(t, tracker.Toggle(ctx, "u1", "m1", 1))

	summary, ok := tracker.Summary()
	require.True(t, ok)
	assert.Equal(t, 1, summary.CompletedMissions)
	assert.Equal(t, 50, summary.CompletionRate)
	api.store.mu.Lock()
	assert.Equal(t, 1, api.store.progress.TotalCompleted)
	api.store.failSave = true
	api.store.mu.Unlock()

	err = tracker.Toggle(ctx, "u1", "m0", 0)
	assert.ErrorIs(t, err, mission.ErrToggleFailed)
	summary, _ = tracker.Summary()
	assert.Equal(t, 1, summary.CompletedMissions, "resynced from the API")
}

func TestTagsAndMembers(t *testing.T) {
	c, _, token := setup(t)
	ctx := context.Background()
	_, err := c.SignIn(ctx, token)
	require.NoError(t, err)

	all, err := c.Tags(ctx, "g1", false)
	require.NoError(t, err)
	assert.Equal(t, "@one @two", all)

	sample, err := c.Tags(ctx, "g1", true)
	require.NoError(t, err)
	assert.Equal(t, "@one", sample)

	members, err := c.Members(ctx, "mina park")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "mina park", members[0].DisplayName)

	_, err = c.TagGroup(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActivityOverGraphQL(t *testing.T) {
	c, api, token := setup(t)
	ctx := context.Background()
	_, err := c.SignIn(ctx, token)
	require.NoError(t, err)

	at := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	api.store.activity = []models.MissionActivity{
		{ID: "a2", UserID: "u1", MissionID: "m1", Week: 1, Completed: true, At: at},
		{ID: "a1", UserID: "u1", MissionID: "m0", Week: 0, Completed: true, At: at},
		{ID: "a0", UserID: "u1", MissionID: "m0", Week: 0, Completed: false, At: at},
	}

	activity, err := c.Activity(ctx, 2)
	require.NoError(t, err)
	require.Len(t, activity, 2)
	assert.Equal(t, "a2", activity[0].ID)
	assert.Equal(t, "m1", activity[0].MissionID)
	assert.True(t, activity[0].Completed)
	assert.True(t, at.Equal(activity[0].At))

	_, err = c.Activity(ctx, 0)
	var gqlErr *GraphQLError
	require.ErrorAs(t, err, &gqlErr)
	assert.Equal(t, []string{"limit must be a positive number"}, gqlErr.Messages)
}
