package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jghoshh/missioncenter/models"
)

var (
	// ErrNotFound is returned when a lookup by id matches no document.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyApplied is returned when a member applies twice to a tag group.
	ErrAlreadyApplied = errors.New("already applied to this tag group")
	// ErrNotApplied is returned when cancelling an application that does not exist.
	ErrNotApplied = errors.New("no application found for this tag group")
)

// DeleteResult represents the result of a deletion operation in MongoDB,
// specifically the count of documents deleted.
type DeleteResult struct {
	DeletedCount int64
}

// UpdateResult represents the result of an update operation in MongoDB,
// specifically the count of documents matched and modified.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
}

// MissionUpdate carries the mutable fields of a mission. Nil fields are left unchanged.
type MissionUpdate struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	MissionURL  *string    `json:"missionUrl,omitempty"`
	IsActive    *bool      `json:"isActive,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
}

// TagGroupUpdate carries the mutable fields of a tag group. Nil fields are left unchanged.
type TagGroupUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

// StorageInterface defines the set of methods that any persistent storage
// backend needs to implement.
type StorageInterface interface {
	// Establishes a connection to the storage backend.
	Connect(dbName, uri string) error
	// Disconnects from the storage backend.
	Disconnect() error

	// Adds a new mission to the catalog.
	AddMission(ctx context.Context, mission *models.Mission) (*models.Mission, error)
	// Finds a mission by id.
	FindMission(ctx context.Context, id string) (*models.Mission, error)
	// Finds the active mission of a given week.
	FindMissionByWeek(ctx context.Context, week int) (*models.Mission, error)
	// Lists missions ordered by week, optionally only the active ones.
	FindMissions(ctx context.Context, activeOnly bool) ([]models.Mission, error)
	// Applies a partial update to a mission.
	UpdateMission(ctx context.Context, id string, update MissionUpdate) (*UpdateResult, error)
	// Deletes a mission.
	DeleteMission(ctx context.Context, id string) (*DeleteResult, error)

	// Finds the progress aggregate of a user. Returns nil and no error when absent.
	FindProgress(ctx context.Context, userID string) (*models.UserMissionProgress, error)
	// Upserts the progress aggregate of a user.
	SaveProgress(ctx context.Context, progress *models.UserMissionProgress) error

	// Records one progress change.
	AddActivity(ctx context.Context, activity *models.MissionActivity) error
	// Lists the most recent progress changes of a user.
	FindActivity(ctx context.Context, userID string, limit int64) ([]models.MissionActivity, error)

	// Upserts a member profile.
	SaveProfile(ctx context.Context, profile *models.UserProfile) (*models.UserProfile, error)
	// Finds a member profile by uid.
	FindProfile(ctx context.Context, uid string) (*models.UserProfile, error)
	// Lists every member ordered by display name.
	FindProfiles(ctx context.Context) ([]models.UserProfile, error)
	// Lists members whose display name contains term, ignoring case.
	SearchProfiles(ctx context.Context, term string) ([]models.UserProfile, error)
	// Stores a privacy consent on a member profile.
	SavePrivacyConsent(ctx context.Context, uid string, consent models.PrivacyConsent) (*UpdateResult, error)

	// Adds a new tag group.
	AddTagGroup(ctx context.Context, group *models.TagGroup) (*models.TagGroup, error)
	// Finds a tag group by id.
	FindTagGroup(ctx context.Context, id string) (*models.TagGroup, error)
	// Lists tag groups, newest first, optionally only the active ones.
	FindTagGroups(ctx context.Context, activeOnly bool) ([]models.TagGroup, error)
	// Lists tag groups a member applied to, newest first.
	FindTagGroupsByApplicant(ctx context.Context, userID string) ([]models.TagGroup, error)
	// Applies a partial update to a tag group.
	UpdateTagGroup(ctx context.Context, id string, update TagGroupUpdate) (*UpdateResult, error)
	// Deletes a tag group.
	DeleteTagGroup(ctx context.Context, id string) (*DeleteResult, error)
	// Appends an application unless the member already applied.
	AddApplication(ctx context.Context, groupID string, app models.TagGroupApplication) error
	// Removes the application of a member.
	RemoveApplication(ctx context.Context, groupID, userID string) error
}

// NewStorage creates a new StorageInterface with a MongoDB backend,
// using the provided URI to connect to the MongoDB server.
func NewStorage(dbName, uri string) (StorageInterface, error) {
	storage := NewMongoStorage()
	err := storage.Connect(dbName, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return storage, nil
}
