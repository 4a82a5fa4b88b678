package usecase_vote

import (
	"context"
	"fmt"
	"time"

	"github.com/irfanalimd/watchqueue/internal/model"
	"github.com/irfanalimd/watchqueue/pkg/apperr"
)

//go:generate mockery --name=VoteRepository --output=./mocks --filename=vote_repository.go
type VoteRepository interface {
	// Upsert atomically writes the (item, user) vote row. The unique
	// compound index on the pair is the concurrency guard.
	Upsert(ctx context.Context, itemID, userID string, direction model.VoteDirection, at time.Time) (model.Vote, error)
	Delete(ctx context.Context, itemID, userID string) (bool, error)
	Find(ctx context.Context, itemID, userID string) (*model.Vote, error)
	ItemVotes(ctx context.Context, itemID string) ([]model.Vote, error)
	UserVotesForItems(ctx context.Context, itemIDs []string, userID string) (map[string]model.VoteDirection, error)
	// CountByDirection re-aggregates all rows for the item.
	CountByDirection(ctx context.Context, itemID string) (up, down int, err error)
}

//go:generate mockery --name=ItemRepository --output=./mocks --filename=item_repository.go
type ItemRepository interface {
	Exists(ctx context.Context, itemID string) (bool, error)
	Counts(ctx context.Context, itemID string) (model.VoteCounts, bool, error)
	SetVoteCounts(ctx context.Context, itemID string, upvotes, downvotes int) error
	RoomItemIDs(ctx context.Context, roomID string) ([]string, error)
}

type Usecase struct {
	votes VoteRepository
	items ItemRepository
}

func New(votes VoteRepository, items ItemRepository) *Usecase {
	return &Usecase{
		votes: votes,
		items: items,
	}
}

// Cast records or overwrites a user's vote on an item, then refreshes
// the denormalized counters.
func (u *Usecase) Cast(ctx context.Context, itemID, userID string, direction model.VoteDirection) (model.Vote, error) {
	if !direction.Valid() {
		return model.Vote{}, apperr.InvalidArgument(fmt.Sprintf("unknown vote direction %q", direction))
	}

	ok, err := u.items.Exists(ctx, itemID)
	if err != nil {
		return model.Vote{}, err
	}
	if !ok {
		return model.Vote{}, apperr.NotFound("queue item not found")
	}

	vote, err := u.votes.Upsert(ctx, itemID, userID, direction, time.Now().UTC())
	if err != nil {
		return model.Vote{}, err
	}

	if err := u.recount(ctx, itemID); err != nil {
		return model.Vote{}, err
	}
	return vote, nil
}

// Remove deletes the user's vote if one exists. Reports whether a row
// was actually removed; counters are refreshed only then.
func (u *Usecase) Remove(ctx context.Context, itemID, userID string) (bool, error) {
	deleted, err := u.votes.Delete(ctx, itemID, userID)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	if err := u.recount(ctx, itemID); err != nil {
		return true, err
	}
	return true, nil
}

// Counts reads the denormalized fields off the item. A missing item
// reads as all zeros rather than an error.
func (u *Usecase) Counts(ctx context.Context, itemID string) (model.VoteCounts, error) {
	counts, found, err := u.items.Counts(ctx, itemID)
	if err != nil {
		return model.VoteCounts{}, err
	}
	if !found {
		return model.VoteCounts{}, nil
	}
	return counts, nil
}

func (u *Usecase) Get(ctx context.Context, itemID, userID string) (model.Vote, error) {
	vote, err := u.votes.Find(ctx, itemID, userID)
	if err != nil {
		return model.Vote{}, err
	}
	if vote == nil {
		return model.Vote{}, apperr.NotFound("vote not found")
	}
	return *vote, nil
}

func (u *Usecase) ItemVotes(ctx context.Context, itemID string) ([]model.Vote, error) {
	return u.votes.ItemVotes(ctx, itemID)
}

// UserVotesInRoom maps item id -> the user's vote across the room.
func (u *Usecase) UserVotesInRoom(ctx context.Context, roomID, userID string) (map[string]model.VoteDirection, error) {
	itemIDs, err := u.items.RoomItemIDs(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if len(itemIDs) == 0 {
		return map[string]model.VoteDirection{}, nil
	}
	return u.votes.UserVotesForItems(ctx, itemIDs, userID)
}

// recount derives the counters from the vote rows. Re-aggregating from
// ground truth (instead of accumulating deltas) makes concurrent
// recounts converge: whichever runs last writes the correct totals.
func (u *Usecase) recount(ctx context.Context, itemID string) error {
	up, down, err := u.votes.CountByDirection(ctx, itemID)
	if err != nil {
		return err
	}
	return u.items.SetVoteCounts(ctx, itemID, up, down)
}
