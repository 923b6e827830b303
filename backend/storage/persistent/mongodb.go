package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jghoshh/missioncenter/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	missionsCollection  = "missions"
	progressCollection  = "userMissionProgress"
	activityCollection  = "missionActivity"
	usersCollection     = "users"
	tagGroupsCollection = "tagGroups"
)

// MongoStorage is a struct representing a MongoDB storage.
// It provides an interface to perform CRUD operations on various collections in the MongoDB database.
type MongoStorage struct {
	client *mongo.Client
	dbName string
}

// NewMongoStorage creates a new instance of MongoStorage.
// This function doesn't establish a connection to the MongoDB server.
// To connect to the server, use the Connect method of the returned MongoStorage instance.
func NewMongoStorage() *MongoStorage {
	return &MongoStorage{}
}

func (m *MongoStorage) collection(name string) *mongo.Collection {
	return m.client.Database(m.dbName).Collection(name)
}

// Connect establishes a connection to the MongoDB server at the given URI and a database name.
// Sets up the indexes used by the catalog, directory and tag group queries.
// Returns an error if any issues are encountered.
func (m *MongoStorage) Connect(dbName, uri string) error {

	// Set a timeout for the connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return fmt.Errorf("error connecting to MongoDB: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("error pinging MongoDB: %v", err)
	}

	m.client = client
	m.dbName = dbName

	indexes := []struct {
		collection string
		model      mongo.IndexModel
	}{
		// Catalog listing is always "active, ordered by week".
		{missionsCollection, mongo.IndexModel{Keys: bson.D{{Key: "isActive", Value: 1}, {Key: "week", Value: 1}}}},
		{missionsCollection, mongo.IndexModel{Keys: bson.D{{Key: "week", Value: 1}}}},
		{activityCollection, mongo.IndexModel{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "at", Value: -1}}}},
		{usersCollection, mongo.IndexModel{Keys: bson.D{{Key: "displayName", Value: 1}}}},
		{tagGroupsCollection, mongo.IndexModel{Keys: bson.D{{Key: "createdAt", Value: -1}}}},
		{tagGroupsCollection, mongo.IndexModel{Keys: bson.D{{Key: "applications.userId", Value: 1}}}},
	}
	for _, idx := range indexes {
		if _, err := m.collection(idx.collection).Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("error creating index on %s: %v", idx.collection, err)
		}
	}

	return nil
}

// Disconnect closes the connection to the MongoDB server.
// It should be called when the MongoStorage instance is no longer needed.
// Returns an error if the disconnection process fails.
func (m *MongoStorage) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := m.client.Disconnect(ctx)
	if err != nil {
		return fmt.Errorf("error disconnecting from MongoDB: %v", err)
	}

	return nil
}

// AddMission adds a new mission document to the 'missions' collection.
// The mission id and timestamps are assigned here.
func (m *MongoStorage) AddMission(ctx context.Context, mission *models.Mission) (*models.Mission, error) {
	now := time.Now().UTC()
	mission.ID = primitive.NewObjectID().Hex()
	mission.CreatedAt = now
	mission.UpdatedAt = now

	if _, err := m.collection(missionsCollection).InsertOne(ctx, mission); err != nil {
		return nil, err
	}
	return mission, nil
}

// FindMission finds a mission by id. Returns ErrNotFound when it does not exist.
func (m *MongoStorage) FindMission(ctx context.Context, id string) (*models.Mission, error) {
	mission := &models.Mission{}
	err := m.collection(missionsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(mission)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return mission, nil
}

// FindMissionByWeek finds the active mission scheduled for the given week.
func (m *MongoStorage) FindMissionByWeek(ctx context.Context, week int) (*models.Mission, error) {
	mission := &models.Mission{}
	err := m.collection(missionsCollection).FindOne(ctx, bson.M{"week": week, "isActive": true}).Decode(mission)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return mission, nil
}

// FindMissions lists missions ordered by week ascending.
// When activeOnly is set, inactive missions are skipped.
func (m *MongoStorage) FindMissions(ctx context.Context, activeOnly bool) ([]models.Mission, error) {
	filter := bson.M{}
	if activeOnly {
		filter["isActive"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "week", Value: 1}})

	cursor, err := m.collection(missionsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	missions := []models.Mission{}
	if err := cursor.All(ctx, &missions); err != nil {
		return nil, err
	}
	return missions, nil
}

// UpdateMission applies the non-nil fields of update to a mission and bumps updatedAt.
func (m *MongoStorage) UpdateMission(ctx context.Context, id string, update MissionUpdate) (*UpdateResult, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if update.Title != nil {
		set["title"] = *update.Title
	}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.MissionURL != nil {
		set["missionUrl"] = *update.MissionURL
	}
	if update.IsActive != nil {
		set["isActive"] = *update.IsActive
	}
	if update.StartDate != nil {
		set["startDate"] = *update.StartDate
	}
	if update.EndDate != nil {
		set["endDate"] = *update.EndDate
	}

	result, err := m.collection(missionsCollection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return nil, err
	}
	if result.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return &UpdateResult{MatchedCount: result.MatchedCount, ModifiedCount: result.ModifiedCount}, nil
}

// DeleteMission deletes a mission document. Completion records that point at
// it are left in the users' aggregates.
func (m *MongoStorage) DeleteMission(ctx context.Context, id string) (*DeleteResult, error) {
	result, err := m.collection(missionsCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	if result.DeletedCount == 0 {
		return nil, ErrNotFound
	}
	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}

// FindProgress finds the progress document of a user.
// A user that never completed a mission has no document; nil is returned without error.
func (m *MongoStorage) FindProgress(ctx context.Context, userID string) (*models.UserMissionProgress, error) {
	progress := &models.UserMissionProgress{}
	err := m.collection(progressCollection).FindOne(ctx, bson.M{"_id": userID}).Decode(progress)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if progress.CompletedMissions == nil {
		progress.CompletedMissions = map[string]models.MissionCompletion{}
	}
	return progress, nil
}

// SaveProgress writes the whole progress document of a user in one upsert.
// totalCompleted is always derived from the mapping; createdAt is only written on insert.
func (m *MongoStorage) SaveProgress(ctx context.Context, progress *models.UserMissionProgress) error {
	if progress.UserID == "" {
		return errors.New("progress has no user id")
	}
	completed := progress.CompletedMissions
	if completed == nil {
		completed = map[string]models.MissionCompletion{}
	}
	createdAt := progress.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	lastUpdated := progress.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now().UTC()
	}

	update := bson.M{
		"$set": bson.M{
			"completedMissions": completed,
			"totalCompleted":    len(completed),
			"lastUpdated":       lastUpdated,
		},
		"$setOnInsert": bson.M{"createdAt": createdAt},
	}
	_, err := m.collection(progressCollection).UpdateOne(ctx, bson.M{"_id": progress.UserID}, update, options.Update().SetUpsert(true))
	return err
}

// AddActivity inserts one activity entry. Re-inserting the same id is a no-op,
// so redelivered events do not create duplicates.
func (m *MongoStorage) AddActivity(ctx context.Context, activity *models.MissionActivity) error {
	_, err := m.collection(activityCollection).InsertOne(ctx, activity)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

// FindActivity lists the latest activity entries of a user, newest first.
func (m *MongoStorage) FindActivity(ctx context.Context, userID string, limit int64) ([]models.MissionActivity, error) {
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := m.collection(activityCollection).Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	activity := []models.MissionActivity{}
	if err := cursor.All(ctx, &activity); err != nil {
		return nil, err
	}
	return activity, nil
}

// SaveProfile upserts a member profile keyed by uid.
// createdAt is kept from the first write; updatedAt is set to now.
func (m *MongoStorage) SaveProfile(ctx context.Context, profile *models.UserProfile) (*models.UserProfile, error) {
	now := time.Now().UTC()
	profile.UpdatedAt = now

	raw, err := bson.Marshal(profile)
	if err != nil {
		return nil, err
	}
	fields := bson.M{}
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	delete(fields, "_id")
	delete(fields, "createdAt")

	update := bson.M{
		"$set":         fields,
		"$setOnInsert": bson.M{"createdAt": now},
	}
	_, err = m.collection(usersCollection).UpdateOne(ctx, bson.M{"_id": profile.UID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return nil, err
	}
	return m.FindProfile(ctx, profile.UID)
}

// FindProfile finds a member profile by uid. Returns ErrNotFound when absent.
func (m *MongoStorage) FindProfile(ctx context.Context, uid string) (*models.UserProfile, error) {
	profile := &models.UserProfile{}
	err := m.collection(usersCollection).FindOne(ctx, bson.M{"_id": uid}).Decode(profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (m *MongoStorage) findProfiles(ctx context.Context, filter interface{}) ([]models.UserProfile, error) {
	opts := options.Find().SetSort(bson.D{{Key: "displayName", Value: 1}})
	cursor, err := m.collection(usersCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	profiles := []models.UserProfile{}
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// FindProfiles lists every member ordered by display name.
func (m *MongoStorage) FindProfiles(ctx context.Context) ([]models.UserProfile, error) {
	return m.findProfiles(ctx, bson.M{})
}

// SearchProfiles lists members whose display name contains term, case-insensitively.
func (m *MongoStorage) SearchProfiles(ctx context.Context, term string) ([]models.UserProfile, error) {
	filter := bson.M{"displayName": primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}}
	return m.findProfiles(ctx, filter)
}

// SavePrivacyConsent records the consent on an existing profile.
func (m *MongoStorage) SavePrivacyConsent(ctx context.Context, uid string, consent models.PrivacyConsent) (*UpdateResult, error) {
	update := bson.M{"$set": bson.M{"privacyConsent": consent, "updatedAt": time.Now().UTC()}}
	result, err := m.collection(usersCollection).UpdateOne(ctx, bson.M{"_id": uid}, update)
	if err != nil {
		return nil, err
	}
	if result.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return &UpdateResult{MatchedCount: result.MatchedCount, ModifiedCount: result.ModifiedCount}, nil
}

// AddTagGroup inserts a tag group, assigning its id and timestamps.
func (m *MongoStorage) AddTagGroup(ctx context.Context, group *models.TagGroup) (*models.TagGroup, error) {
	now := time.Now().UTC()
	group.ID = primitive.NewObjectID().Hex()
	group.CreatedAt = now
	group.UpdatedAt = now
	if group.Applications == nil {
		group.Applications = []models.TagGroupApplication{}
	}

	if _, err := m.collection(tagGroupsCollection).InsertOne(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// FindTagGroup finds a tag group by id. Returns ErrNotFound when absent.
func (m *MongoStorage) FindTagGroup(ctx context.Context, id string) (*models.TagGroup, error) {
	group := &models.TagGroup{}
	err := m.collection(tagGroupsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(group)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (m *MongoStorage) findTagGroups(ctx context.Context, filter interface{}) ([]models.TagGroup, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := m.collection(tagGroupsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	groups := []models.TagGroup{}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// FindTagGroups lists tag groups newest first.
func (m *MongoStorage) FindTagGroups(ctx context.Context, activeOnly bool) ([]models.TagGroup, error) {
	filter := bson.M{}
	if activeOnly {
		filter["isActive"] = true
	}
	return m.findTagGroups(ctx, filter)
}

// FindTagGroupsByApplicant lists the tag groups the member applied to.
func (m *MongoStorage) FindTagGroupsByApplicant(ctx context.Context, userID string) ([]models.TagGroup, error) {
	return m.findTagGroups(ctx, bson.M{"applications.userId": userID})
}

// UpdateTagGroup applies the non-nil fields of update and bumps updatedAt.
func (m *MongoStorage) UpdateTagGroup(ctx context.Context, id string, update TagGroupUpdate) (*UpdateResult, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.IsActive != nil {
		set["isActive"] = *update.IsActive
	}

	result, err := m.collection(tagGroupsCollection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return nil, err
	}
	if result.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return &UpdateResult{MatchedCount: result.MatchedCount, ModifiedCount: result.ModifiedCount}, nil
}

// DeleteTagGroup deletes a tag group document.
func (m *MongoStorage) DeleteTagGroup(ctx context.Context, id string) (*DeleteResult, error) {
	result, err := m.collection(tagGroupsCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	if result.DeletedCount == 0 {
		return nil, ErrNotFound
	}
	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}

// tagGroupExists tells a missing group apart from a failed precondition.
func (m *MongoStorage) tagGroupExists(ctx context.Context, id string) (bool, error) {
	count, err := m.collection(tagGroupsCollection).CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddApplication appends app to the group in a single conditional update, so
// two concurrent applications of the same member cannot both succeed.
func (m *MongoStorage) AddApplication(ctx context.Context, groupID string, app models.TagGroupApplication) error {
	filter := bson.M{"_id": groupID, "applications.userId": bson.M{"$ne": app.UserID}}
	update := bson.M{
		"$push": bson.M{"applications": app},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	result, err := m.collection(tagGroupsCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount > 0 {
		return nil
	}

	exists, err := m.tagGroupExists(ctx, groupID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyApplied
}

// RemoveApplication pulls the member's application from the group.
func (m *MongoStorage) RemoveApplication(ctx context.Context, groupID, userID string) error {
	filter := bson.M{"_id": groupID, "applications.userId": userID}
	update := bson.M{
		"$pull": bson.M{"applications": bson.M{"userId": userID}},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	result, err := m.collection(tagGroupsCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount > 0 {
		return nil
	}

	exists, err := m.tagGroupExists(ctx, groupID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrNotApplied
}
