package usecase_queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/irfanalimd/watchqueue/internal/model"
	"github.com/irfanalimd/watchqueue/pkg/apperr"
	"github.com/irfanalimd/watchqueue/pkg/keyedlock"
)

type ListFilter struct {
	// Status filters to one status; empty means "everything but removed".
	Status       model.QueueItemStatus
	Provider     string
	AvailableNow bool
	Limit        int
	Skip         int
}

// ItemUpdate is a partial merge; nil fields are left untouched.
type ItemUpdate struct {
	Status            *model.QueueItemStatus
	PosterURL         *string
	Overview          *string
	VoteAverage       *float64
	Year              *int
	RuntimeMinutes    *int
	Genres            []string
	StreamingOn       []string
	PlayNowURL        *string
	ProviderLinks     []model.ProviderLink
	ProvidersByRegion map[string][]string
	TMDBID            *int
}

func (u ItemUpdate) Empty() bool {
	return u.Status == nil && u.PosterURL == nil && u.Overview == nil &&
		u.VoteAverage == nil && u.Year == nil && u.RuntimeMinutes == nil &&
		u.Genres == nil && u.StreamingOn == nil && u.PlayNowURL == nil &&
		u.ProviderLinks == nil && u.ProvidersByRegion == nil && u.TMDBID == nil
}

//go:generate mockery --name=QueueRepository --output=./mocks --filename=queue_repository.go
type QueueRepository interface {
	// FindActiveByTitle matches the title case-insensitively among
	// non-removed items of the room.
	FindActiveByTitle(ctx context.Context, roomID, title string) (*model.QueueItem, error)
	FindActiveByTMDBID(ctx context.Context, roomID string, tmdbID int) (*model.QueueItem, error)
	Insert(ctx context.Context, item model.QueueItem) (model.QueueItem, error)
	Find(ctx context.Context, itemID string) (*model.QueueItem, error)
	List(ctx context.Context, roomID string, filter ListFilter) ([]model.QueueItem, error)
	Update(ctx context.Context, itemID string, update ItemUpdate) (*model.QueueItem, error)
}

type AddParams struct {
	RoomID         string
	Title          string
	AddedBy        string
	TMDBID         int
	PosterURL      string
	Overview       string
	VoteAverage    float64
	Year           int
	RuntimeMinutes int
	Genres         []string
}

type Usecase struct {
	repo     QueueRepository
	addLocks keyedlock.Locker
}

func New(repo QueueRepository, addLocks keyedlock.Locker) *Usecase {
	return &Usecase{
		repo:     repo,
		addLocks: addLocks,
	}
}

// Add inserts a queue item, collapsing duplicates. Concurrent adds of
// the same title in the same room are serialized by a keyed lock, so
// exactly one insert wins and later callers get the stored item.
func (u *Usecase) Add(ctx context.Context, params AddParams) (model.QueueItem, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return model.QueueItem{}, apperr.InvalidArgument("title is required")
	}
	if params.RoomID == "" {
		return model.QueueItem{}, apperr.InvalidArgument("room_id is required")
	}
	if params.AddedBy == "" {
		return model.QueueItem{}, apperr.InvalidArgument("added_by is required")
	}

	release, err := u.addLocks.Acquire(ctx, params.RoomID+":"+strings.ToLower(title))
	if err != nil {
		return model.QueueItem{}, err
	}
	defer release()

	existing, err := u.repo.FindActiveByTitle(ctx, params.RoomID, title)
	if err != nil {
		return model.QueueItem{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	if params.TMDBID != 0 {
		existing, err = u.repo.FindActiveByTMDBID(ctx, params.RoomID, params.TMDBID)
		if err != nil {
			return model.QueueItem{}, err
		}
		if existing != nil {
			return *existing, nil
		}
	}

	genres := params.Genres
	if genres == nil {
		genres = []string{}
	}

	item, err := u.repo.Insert(ctx, model.QueueItem{
		RoomID:            params.RoomID,
		Title:             title,
		TMDBID:            params.TMDBID,
		PosterURL:         params.PosterURL,
		Overview:          params.Overview,
		VoteAverage:       params.VoteAverage,
		Year:              params.Year,
		RuntimeMinutes:    params.RuntimeMinutes,
		Genres:            genres,
		StreamingOn:       []string{},
		ProviderLinks:     []model.ProviderLink{},
		ProvidersByRegion: map[string][]string{},
		AddedBy:           params.AddedBy,
		AddedAt:           time.Now().UTC(),
		Status:            model.StatusQueued,
	})
	if err != nil {
		// A racing insert slipped past the lock (other process, no
		// shared locker): resolve to whatever is stored now.
		if apperr.IsCode(err, apperr.CodeConflict) {
			existing, findErr := u.repo.FindActiveByTitle(ctx, params.RoomID, title)
			if findErr == nil && existing != nil {
				return *existing, nil
			}
		}
		return model.QueueItem{}, err
	}
	return item, nil
}

func (u *Usecase) Item(ctx context.Context, itemID string) (model.QueueItem, error) {
	item, err := u.repo.Find(ctx, itemID)
	if err != nil {
		return model.QueueItem{}, err
	}
	if item == nil {
		return model.QueueItem{}, apperr.NotFound("queue item not found")
	}
	return *item, nil
}

func (u *Usecase) RoomQueue(ctx context.Context, roomID string, filter ListFilter) ([]model.QueueItem, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.InvalidArgument(fmt.Sprintf("unknown status %q", filter.Status))
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return u.repo.List(ctx, roomID, filter)
}

func (u *Usecase) TopItems(ctx context.Context, roomID string, limit int) ([]model.QueueItem, error) {
	if limit <= 0 {
		limit = 10
	}
	return u.repo.List(ctx, roomID, ListFilter{
		Status: model.StatusQueued,
		Limit:  limit,
	})
}

// Update applies a client-supplied partial update. Status changes go
// through the forward-only transition check.
func (u *Usecase) Update(ctx context.Context, itemID string, update ItemUpdate) (model.QueueItem, error) {
	if update.Status != nil {
		if !update.Status.Valid() {
			return model.QueueItem{}, apperr.InvalidArgument(fmt.Sprintf("unknown status %q", *update.Status))
		}
		current, err := u.Item(ctx, itemID)
		if err != nil {
			return model.QueueItem{}, err
		}
		if err := checkTransition(current.Status, *update.Status); err != nil {
			return model.QueueItem{}, err
		}
	}
	return u.apply(ctx, itemID, update)
}

// Enrich merges metadata from the enrichment pipeline. System writes
// skip the transition check since they never touch status.
func (u *Usecase) Enrich(ctx context.Context, itemID string, update ItemUpdate) (model.QueueItem, error) {
	update.Status = nil
	return u.apply(ctx, itemID, update)
}

// Remove soft-deletes the item. Reports whether a change occurred so
// repeated removals stay idempotent.
func (u *Usecase) Remove(ctx context.Context, itemID string) (bool, error) {
	item, err := u.repo.Find(ctx, itemID)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, apperr.NotFound("queue item not found")
	}
	if item.Status == model.StatusRemoved {
		return false, nil
	}

	removed := model.StatusRemoved
	if _, err := u.repo.Update(ctx, itemID, ItemUpdate{Status: &removed}); err != nil {
		return false, err
	}
	return true, nil
}

func (u *Usecase) MarkWatching(ctx context.Context, itemID string) (model.QueueItem, error) {
	return u.transition(ctx, itemID, model.StatusWatching)
}

func (u *Usecase) MarkWatched(ctx context.Context, itemID string) (model.QueueItem, error) {
	return u.transition(ctx, itemID, model.StatusWatched)
}

func (u *Usecase) transition(ctx context.Context, itemID string, to model.QueueItemStatus) (model.QueueItem, error) {
	current, err := u.Item(ctx, itemID)
	if err != nil {
		return model.QueueItem{}, err
	}
	if current.Status == to {
		return current, nil
	}
	if err := checkTransition(current.Status, to); err != nil {
		return model.QueueItem{}, err
	}
	return u.apply(ctx, itemID, ItemUpdate{Status: &to})
}

func (u *Usecase) apply(ctx context.Context, itemID string, update ItemUpdate) (model.QueueItem, error) {
	if update.Empty() {
		return u.Item(ctx, itemID)
	}
	item, err := u.repo.Update(ctx, itemID, update)
	if err != nil {
		return model.QueueItem{}, err
	}
	if item == nil {
		return model.QueueItem{}, apperr.NotFound("queue item not found")
	}
	return *item, nil
}

// checkTransition enforces the one-way lifecycle:
// queued -> watching -> watched, removed is terminal.
func checkTransition(from, to model.QueueItemStatus) error {
	if from == to {
		return nil
	}
	if from == model.StatusRemoved {
		return apperr.InvalidState("removed items cannot change status")
	}
	if to == model.StatusRemoved {
		return nil
	}

	order := map[model.QueueItemStatus]int{
		model.StatusQueued:   0,
		model.StatusWatching: 1,
		model.StatusWatched:  2,
	}
	if order[to] < order[from] {
		return apperr.InvalidState(fmt.Sprintf("cannot move item from %s back to %s", from, to))
	}
	return nil
}
