package usecase_history

import (
	"context"
	"time"

	"github.com/irfanalimd/watchqueue/internal/model"
	"github.com/irfanalimd/watchqueue/pkg/apperr"
)

//go:generate mockery --name=HistoryRepository --output=./mocks --filename=history_repository.go
type HistoryRepository interface {
	// Insert returns apperr.Conflict when the unique item_id index
	// already holds an entry for the item.
	Insert(ctx context.Context, entry model.WatchHistory) (model.WatchHistory, error)
	Find(ctx context.Context, historyID string) (*model.WatchHistory, error)
	FindByItem(ctx context.Context, itemID string) (*model.WatchHistory, error)
	ListByRoom(ctx context.Context, roomID string, limit, skip int) ([]model.WatchHistory, error)
	SetRating(ctx context.Context, historyID, userID string, rating int) (*model.WatchHistory, error)
	SetNotes(ctx context.Context, historyID, notes string) (*model.WatchHistory, error)
	Stats(ctx context.Context, roomID string) (model.HistoryStats, error)
}

type ItemReader interface {
	FindInRoom(ctx context.Context, itemID, roomID string) (*model.QueueItem, error)
}

// ItemMarker flips the queue item to watched once the history entry
// exists.
type ItemMarker interface {
	MarkWatched(ctx context.Context, itemID string) (model.QueueItem, error)
}

type Usecase struct {
	repo   HistoryRepository
	items  ItemReader
	marker ItemMarker
}

func New(repo HistoryRepository, items ItemReader, marker ItemMarker) *Usecase {
	return &Usecase{
		repo:   repo,
		items:  items,
		marker: marker,
	}
}

// MarkWatched creates the history entry for an item and moves the item
// to watched. Marking twice returns the existing entry.
func (u *Usecase) MarkWatched(ctx context.Context, roomID, itemID, notes string) (model.WatchHistory, error) {
	item, err := u.items.FindInRoom(ctx, itemID, roomID)
	if err != nil {
		return model.WatchHistory{}, err
	}
	if item == nil {
		return model.WatchHistory{}, apperr.NotFound("item not found in room")
	}

	entry, err := u.repo.Insert(ctx, model.WatchHistory{
		RoomID:    roomID,
		ItemID:    itemID,
		WatchedAt: time.Now().UTC(),
		Ratings:   map[string]int{},
		Notes:     notes,
	})
	if err != nil {
		if apperr.IsCode(err, apperr.CodeConflict) {
			existing, findErr := u.repo.FindByItem(ctx, itemID)
			if findErr != nil {
				return model.WatchHistory{}, findErr
			}
			if existing != nil {
				return *existing, nil
			}
		}
		return model.WatchHistory{}, err
	}

	if _, err := u.marker.MarkWatched(ctx, itemID); err != nil {
		return model.WatchHistory{}, err
	}
	return entry, nil
}

func (u *Usecase) Get(ctx context.Context, historyID string) (model.WatchHistory, error) {
	entry, err := u.repo.Find(ctx, historyID)
	if err != nil {
		return model.WatchHistory{}, err
	}
	if entry == nil {
		return model.WatchHistory{}, apperr.NotFound("history entry not found")
	}
	return *entry, nil
}

func (u *Usecase) ByItem(ctx context.Context, itemID string) (model.WatchHistory, error) {
	entry, err := u.repo.FindByItem(ctx, itemID)
	if err != nil {
		return model.WatchHistory{}, err
	}
	if entry == nil {
		return model.WatchHistory{}, apperr.NotFound("history entry not found")
	}
	return *entry, nil
}

func (u *Usecase) RoomHistory(ctx context.Context, roomID string, limit, skip int) ([]model.WatchHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	return u.repo.ListByRoom(ctx, roomID, limit, skip)
}

func (u *Usecase) Rate(ctx context.Context, historyID, userID string, rating int) (model.WatchHistory, error) {
	if rating < 1 || rating > 5 {
		return model.WatchHistory{}, apperr.InvalidArgument("rating must be between 1 and 5")
	}

	entry, err := u.repo.SetRating(ctx, historyID, userID, rating)
	if err != nil {
		return model.WatchHistory{}, err
	}
	if entry == nil {
		return model.WatchHistory{}, apperr.NotFound("history entry not found")
	}
	return *entry, nil
}

func (u *Usecase) UpdateNotes(ctx context.Context, historyID, notes string) (model.WatchHistory, error) {
	entry, err := u.repo.SetNotes(ctx, historyID, notes)
	if err != nil {
		return model.WatchHistory{}, err
	}
	if entry == nil {
		return model.WatchHistory{}, apperr.NotFound("history entry not found")
	}
	return *entry, nil
}

func (u *Usecase) Stats(ctx context.Context, roomID string) (model.HistoryStats, error) {
	return u.repo.Stats(ctx, roomID)
}
