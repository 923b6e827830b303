package mission

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/jghoshh/missioncenter/models"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds every remote catalog or store call.
const DefaultTimeout = 10 * time.Second

// Tracker holds the caller's missions and summary. Its methods may be
// called from several goroutines, but callers must not run LoadAll while a
// toggle is pending: the load would replace the optimistic state. At most
// one toggle is pending at a time.
type Tracker struct {
	catalog MissionCatalog
	store   ProgressStore
	timeout time.Duration
	now     func() time.Time
	logger  *log.Logger

	mu      sync.Mutex
	state   State
	pending string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTimeout sets the deadline applied to each remote call. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.timeout = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger used for failed toggles.
func WithLogger(l *log.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates a tracker with no missions loaded.
func NewTracker(catalog MissionCatalog, store ProgressStore, opts ...Option) *Tracker {
	t := &Tracker{
		catalog: catalog,
		store:   store,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.timeout)
}

// Missions returns a copy of the loaded missions, ordered by week.
func (t *Tracker) Missions() []MissionWithProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneMissions(t.state.Missions)
}

// Summary returns the current summary and false when nothing is loaded yet.
func (t *Tracker) Summary() (ProgressSummary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Summary == nil {
		return ProgressSummary{}, false
	}
	return *t.state.Summary, true
}

// Pending returns the mission id of the in-flight toggle, if any.
func (t *Tracker) Pending() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending, t.pending != ""
}

// LoadAll fetches the active catalog and the user's aggregate concurrently
// and replaces the tracker state with their join. On failure the previous
// state is kept and the error wraps ErrCatalogRead or ErrStoreRead.
func (t *Tracker) LoadAll(ctx context.Context, userID string) error {
	next, err := t.fetch(ctx, userID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.state = next
	t.mu.Unlock()
	return nil
}

func (t *Tracker) fetch(ctx context.Context, userID string) (State, error) {
	ctx, cancel := t.callContext(ctx)
	defer cancel()

	var (
		missions []models.Mission
		progress *models.UserMissionProgress
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		missions, err = t.catalog.ListActive(gctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCatalogRead, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		progress, err = t.store.ReadAggregate(gctx, userID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreRead, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return State{}, err
	}

	joined := Join(userID, missions, progress)
	summary := Summarize(joined, t.now())
	return State{Missions: joined, Summary: &summary}, nil
}

// Toggle flips the completion of missionID for userID. The in-memory state
// changes before the write is attempted. When the write fails the tracker
// reloads from the store and returns an error wrapping ErrToggleFailed.
//
// Toggle returns ErrToggleInFlight without touching state while another
// toggle is pending, and ErrUnknownMission when missionID is not loaded.
func (t *Tracker) Toggle(ctx context.Context, userID, missionID string, week int) error {
	now := t.now()

	t.mu.Lock()
	if t.pending != "" {
		t.mu.Unlock()
		return ErrToggleInFlight
	}
	before := t.state
	next, wasCompleted, found := ApplyToggle(before, userID, missionID, week, now)
	if !found {
		t.mu.Unlock()
		return ErrUnknownMission
	}
	t.state = next
	t.pending = missionID
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.pending = ""
		t.mu.Unlock()
	}()

	werr := t.persist(ctx, userID, missionID, week, !wasCompleted, now)
	if werr == nil {
		return nil
	}

	t.logger.Printf("toggle of mission %s for user %s failed: %v", missionID, userID, werr)
	// The write may have failed because ctx ended; the reload still gets
	// its own deadline.
	resynced, lerr := t.fetch(context.WithoutCancel(ctx), userID)
	t.mu.Lock()
	if lerr != nil {
		// No fresh snapshot; fall back to the last one we loaded.
		t.state = before
	} else {
		t.state = resynced
	}
	t.mu.Unlock()
	if lerr != nil {
		return fmt.Errorf("%w: %v (reload: %v)", ErrToggleFailed, werr, lerr)
	}
	return fmt.Errorf("%w: %v", ErrToggleFailed, werr)
}

// persist rewrites the user's aggregate so the record for missionID matches
// completed. Records of missions outside the loaded list are preserved.
func (t *Tracker) persist(ctx context.Context, userID, missionID string, week int, completed bool, now time.Time) error {
	ctx, cancel := t.callContext(ctx)
	defer cancel()

	current, err := t.store.ReadAggregate(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	next := SetCompletion(current, userID, missionID, week, completed, now)
	if err := t.store.WriteAggregate(ctx, userID, next); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	return nil
}
