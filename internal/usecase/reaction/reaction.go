package usecase_reaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/irfanalimd/watchqueue/internal/model"
	"github.com/irfanalimd/watchqueue/pkg/apperr"
)

//go:generate mockery --name=ReactionRepository --output=./mocks --filename=reaction_repository.go
type ReactionRepository interface {
	Exists(ctx context.Context, itemID, userID, kind string) (bool, error)
	// Insert must return apperr.Conflict when the unique
	// (item, user, kind) index rejects a concurrent duplicate.
	Insert(ctx context.Context, reaction model.Reaction) error
	Delete(ctx context.Context, itemID, userID, kind string) error
	ByRoom(ctx context.Context, roomID string) (model.RoomReactions, error)
}

type ItemRepository interface {
	Exists(ctx context.Context, itemID string) (bool, error)
}

type Usecase struct {
	reactions ReactionRepository
	items     ItemRepository
}

func New(reactions ReactionRepository, items ItemRepository) *Usecase {
	return &Usecase{
		reactions: reactions,
		items:     items,
	}
}

// Toggle flips the reaction row for (item, user, kind). Returns whether
// the reaction is active after the call.
func (u *Usecase) Toggle(ctx context.Context, itemID, userID, kind string) (bool, error) {
	if !model.ReactionAllowed(kind) {
		return false, apperr.InvalidArgument(fmt.Sprintf(
			"invalid reaction %q, allowed: %s", kind, strings.Join(model.AllowedReactions, ", ")))
	}

	ok, err := u.items.Exists(ctx, itemID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, apperr.NotFound("queue item not found")
	}

	active, err := u.reactions.Exists(ctx, itemID, userID, kind)
	if err != nil {
		return false, err
	}
	if active {
		if err := u.reactions.Delete(ctx, itemID, userID, kind); err != nil {
			return false, err
		}
		return false, nil
	}

	err = u.reactions.Insert(ctx, model.Reaction{
		ItemID:    itemID,
		UserID:    userID,
		Reaction:  kind,
		ReactedAt: time.Now().UTC(),
	})
	if err != nil {
		// A concurrent toggle won the insert: the reaction is active
		// either way, so the duplicate is not an error.
		if apperr.IsCode(err, apperr.CodeConflict) {
			return true, nil
		}
		return false, err
	}
	return true, nil
}

func (u *Usecase) RoomReactions(ctx context.Context, roomID string) (model.RoomReactions, error) {
	return u.reactions.ByRoom(ctx, roomID)
}
