package graph

import (
	"context"
	"errors"

	"github.com/jghoshh/missioncenter/backend/storage/persistent"
	"github.com/jghoshh/missioncenter/models"
)

// Missions is the resolver for the missions field.
func (r *queryResolver) Missions(ctx context.Context) ([]models.Mission, error) {
	if _, err := userFrom(ctx); err != nil {
		return nil, err
	}
	missions, err := r.Catalog.ListActive(ctx)
	return missions, public(err)
}

// Mission is the resolver for the mission field.
func (r *queryResolver) Mission(ctx context.Context, id string) (*models.Mission, error) {
	if _, err := userFrom(ctx); err != nil {
		return nil, err
	}
	m, err := r.Store.FindMission(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return m, public(err)
}

// MissionByWeek is the resolver for the missionByWeek field.
func (r *queryResolver) MissionByWeek(ctx context.Context, week int) (*models.Mission, error) {
	if _, err := userFrom(ctx); err != nil {
		return nil, err
	}
	m, err := r.Store.FindMissionByWeek(ctx, week)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return m, public(err)
}

// Progress is the resolver for the progress field.
func (r *queryResolver) Progress(ctx context.Context) (*models.UserMissionProgress, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return nil, err
	}
	p, err := r.Store.FindProgress(ctx, userID)
	return p, public(err)
}

// MissionCenter is the resolver for the missionCenter field.
func (r *queryResolver) MissionCenter(ctx context.Context) (*MissionCenter, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return nil, err
	}
	center, err := r.LoadMissionCenter(ctx, userID)
	return center, public(err)
}

// Activity is the resolver for the activity field.
func (r *queryResolver) Activity(ctx context.Context, limit *int) ([]models.MissionActivity, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return nil, err
	}
	n := DefaultActivityLimit
	if limit != nil {
		n = *limit
	}
	activity, err := r.RecentActivity(ctx, userID, n)
	return activity, public(err)
}

// SaveProgress is the resolver for the saveProgress field.
func (r *mutationResolver) SaveProgress(ctx context.Context, input ProgressInput) (*models.UserMissionProgress, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return nil, err
	}
	p, err := input.Aggregate(userID)
	if err != nil {
		return nil, err
	}
	saved, err := r.SaveUserProgress(ctx, userID, p)
	return saved, public(err)
}

// Query returns QueryResolver implementation.
func (r *Resolver) Query() QueryResolver { return &queryResolver{r} }

// Mutation returns MutationResolver implementation.
func (r *Resolver) Mutation() MutationResolver { return &mutationResolver{r} }

type queryResolver struct{ *Resolver }
type mutationResolver struct{ *Resolver }
