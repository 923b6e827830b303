package graph

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jghoshh/missioncenter/backend/queue"
	"github.com/jghoshh/missioncenter/backend/server/auth"
	"github.com/jghoshh/missioncenter/backend/server/context_key"
	"github.com/jghoshh/missioncenter/lib/mission"
	"github.com/jghoshh/missioncenter/models"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultActivityLimit = 20
	MaxActivityLimit     = 100
)

var (
	// ErrUnauthenticated is returned when the request carries no valid token.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidProgress is returned for a progress document that cannot be saved as sent.
	ErrInvalidProgress = errors.New("invalid progress")
	// ErrInvalidLimit is returned for a non-positive activity limit.
	ErrInvalidLimit = errors.New("limit must be a positive number")

	errInternal = errors.New("internal server error")
)

// Catalog lists the active missions ordered by week.
type Catalog interface {
	ListActive(ctx context.Context) ([]models.Mission, error)
}

// Store is the part of the document store the resolvers read and write.
type Store interface {
	FindMission(ctx context.Context, id string) (*models.Mission, error)
	FindMissionByWeek(ctx context.Context, week int) (*models.Mission, error)
	FindProgress(ctx context.Context, userID string) (*models.UserMissionProgress, error)
	SaveProgress(ctx context.Context, progress *models.UserMissionProgress) error
	FindActivity(ctx context.Context, userID string, limit int64) ([]models.MissionActivity, error)
}

// ProgressPublisher hands progress events to the event queue.
type ProgressPublisher interface {
	PublishProgress(events ...queue.ProgressEvent) error
}

// Resolver is the root resolver. The REST handlers share its progress
// methods so both transports save and summarize progress the same way.
// Events may be nil, in which case no progress events are published.
type Resolver struct {
	Store   Store
	Catalog Catalog
	Events  ProgressPublisher
	Now     func() time.Time
}

func (r *Resolver) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now()
}

// NormalizeProgress makes a submitted aggregate consistent: it belongs to
// userID, each record's missionId matches its key, and totalCompleted is the
// number of records.
func NormalizeProgress(userID string, p *models.UserMissionProgress) error {
	p.UserID = userID
	if p.CompletedMissions == nil {
		p.CompletedMissions = map[string]models.MissionCompletion{}
	}
	for id, rec := range p.CompletedMissions {
		if id == "" {
			return fmt.Errorf("%w: completion record with empty mission id", ErrInvalidProgress)
		}
		if rec.MissionID == "" {
			rec.MissionID = id
			p.CompletedMissions[id] = rec
		} else if rec.MissionID != id {
			return fmt.Errorf("%w: record %q has missionId %q", ErrInvalidProgress, id, rec.MissionID)
		}
	}
	p.TotalCompleted = len(p.CompletedMissions)
	return nil
}

// SaveUserProgress replaces the aggregate of userID with p and publishes one
// event per changed record. The original createdAt is kept. Publishing is
// best effort: the write is durable by then and a lost event only costs a
// history entry.
func (r *Resolver) SaveUserProgress(ctx context.Context, userID string, p *models.UserMissionProgress) (*models.UserMissionProgress, error) {
	if err := NormalizeProgress(userID, p); err != nil {
		return nil, err
	}
	now := r.now()
	if p.LastUpdated.IsZero() {
		p.LastUpdated = now
	}

	before, err := r.Store.FindProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	if before != nil {
		p.CreatedAt = before.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}

	if err := r.Store.SaveProgress(ctx, p); err != nil {
		return nil, err
	}

	if r.Events != nil {
		if events := queue.DiffProgress(userID, before, p, now); len(events) > 0 {
			if err := r.Events.PublishProgress(events...); err != nil {
				log.Printf("publishing progress events for %s: %v", userID, err)
			}
		}
	}
	return p, nil
}

// LoadMissionCenter fetches the active catalog and the aggregate of userID
// concurrently and joins them.
func (r *Resolver) LoadMissionCenter(ctx context.Context, userID string) (*MissionCenter, error) {
	var (
		missions []models.Mission
		progress *models.UserMissionProgress
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		missions, err = r.Catalog.ListActive(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		progress, err = r.Store.FindProgress(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	joined := mission.Join(userID, missions, progress)
	return &MissionCenter{
		Summary:  mission.Summarize(joined, r.now()),
		Missions: joined,
	}, nil
}

// RecentActivity lists the latest progress changes of userID, newest first.
// limit is capped at MaxActivityLimit.
func (r *Resolver) RecentActivity(ctx context.Context, userID string, limit int) ([]models.MissionActivity, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if limit > MaxActivityLimit {
		limit = MaxActivityLimit
	}
	return r.Store.FindActivity(ctx, userID, int64(limit))
}

// userFrom returns the user jwtMiddleware attached to ctx.
func userFrom(ctx context.Context) (string, error) {
	if userID, ok := ctx.Value(contextKey.UserIDKey).(string); ok && userID != "" {
		return userID, nil
	}
	if err, ok := ctx.Value(contextKey.JwtErrorKey).(error); ok && errors.Is(err, auth.ErrTokenExpired) {
		return "", auth.ErrTokenExpired
	}
	return "", ErrUnauthenticated
}

// public keeps client mistakes readable and hides everything else.
func public(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, ErrInvalidProgress), errors.Is(err, ErrInvalidLimit):
		return err
	default:
		log.Printf("graphql resolver failed: %v", err)
		return errInternal
	}
}
