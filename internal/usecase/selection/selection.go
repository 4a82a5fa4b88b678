package usecase_selection

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/irfanalimd/watchqueue/internal/model"
	"github.com/irfanalimd/watchqueue/pkg/apperr"
)

const (
	// DefaultTimeout bounds a selection run before the deterministic
	// fallback kicks in.
	DefaultTimeout = 30 * time.Second

	// recentHistoryWindow is how far back round robin looks when
	// ranking who had a pick recently.
	recentHistoryWindow = 50
)

//go:generate mockery --name=QueueReader --output=./mocks --filename=queue_reader.go
type QueueReader interface {
	// QueuedItems returns the room's queued items sorted by
	// vote_score desc, added_at asc.
	QueuedItems(ctx context.Context, roomID string) ([]model.QueueItem, error)
	ItemsByIDs(ctx context.Context, itemIDs []string) ([]model.QueueItem, error)
	AllRoomItems(ctx context.Context, roomID string) ([]model.QueueItem, error)
}

//go:generate mockery --name=HistoryReader --output=./mocks --filename=history_reader.go
type HistoryReader interface {
	// RecentHistory returns watch history newest first; limit <= 0
	// means everything.
	RecentHistory(ctx context.Context, roomID string, limit int) ([]model.WatchHistory, error)
}

type RoomReader interface {
	Find(ctx context.Context, roomID string) (*model.Room, error)
}

type Usecase struct {
	queue   QueueReader
	history HistoryReader
	rooms   RoomReader
}

func New(queue QueueReader, history HistoryReader, rooms RoomReader) *Usecase {
	return &Usecase{
		queue:   queue,
		history: history,
		rooms:   rooms,
	}
}

// SelectNext picks what to watch next. An empty mode resolves from the
// room settings. The run is bounded by timeout; on expiry it falls back
// to the deterministic highest-votes pick instead of failing.
func (u *Usecase) SelectNext(ctx context.Context, roomID string, mode model.SelectionMode, timeout time.Duration) (model.QueueItem, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if mode == "" {
		room, err := u.rooms.Find(ctx, roomID)
		if err != nil {
			return model.QueueItem{}, err
		}
		if room == nil {
			return model.QueueItem{}, apperr.NotFound("room not found")
		}
		mode = room.Settings.SelectionMode
	}
	if !mode.Valid() {
		return model.QueueItem{}, apperr.InvalidArgument(fmt.Sprintf("unknown selection mode %q", mode))
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	item, err := u.run(runCtx, roomID, mode)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		// Slowness is not a failure: fall back deterministically.
		return u.selectHighestVotes(ctx, roomID)
	}
	return item, err
}

func (u *Usecase) run(ctx context.Context, roomID string, mode model.SelectionMode) (model.QueueItem, error) {
	switch mode {
	case model.SelectionHighestVotes:
		return u.selectHighestVotes(ctx, roomID)
	case model.SelectionRoundRobin:
		return u.selectRoundRobin(ctx, roomID)
	default:
		return u.selectWeightedRandom(ctx, roomID)
	}
}

func (u *Usecase) selectHighestVotes(ctx context.Context, roomID string) (model.QueueItem, error) {
	items, err := u.queue.QueuedItems(ctx, roomID)
	if err != nil {
		return model.QueueItem{}, err
	}
	if len(items) == 0 {
		return model.QueueItem{}, apperr.NotFound("no queued items")
	}
	// Repository order is vote_score desc, added_at asc, so the first
	// item is the winner with the earliest-added tie break.
	return items[0], nil
}

// selectWeightedRandom draws one item with weight 1 + 2*max(0, score).
// The baseline weight of 1 keeps net-downvoted items in the running so
// minority tastes are never silenced outright.
func (u *Usecase) selectWeightedRandom(ctx context.Context, roomID string) (model.QueueItem, error) {
	items, err := u.queue.QueuedItems(ctx, roomID)
	if err != nil {
		return model.QueueItem{}, err
	}
	if len(items) == 0 {
		return model.QueueItem{}, apperr.NotFound("no queued items")
	}

	total := 0
	weights := make([]int, len(items))
	for i, item := range items {
		w := 1 + 2*max(0, item.VoteScore)
		weights[i] = w
		total += w
	}

	r := rand.Intn(total)
	for i, w := range weights {
		r -= w
		if r < 0 {
			return items[i], nil
		}
	}
	return items[len(items)-1], nil
}

// selectRoundRobin rotates whose additions get picked. Users are ranked
// by how recently one of their items was watched; users never picked
// rank first. The top-ranked user's best-voted item wins.
func (u *Usecase) selectRoundRobin(ctx context.Context, roomID string) (model.QueueItem, error) {
	items, err := u.queue.QueuedItems(ctx, roomID)
	if err != nil {
		return model.QueueItem{}, err
	}
	if len(items) == 0 {
		return model.QueueItem{}, apperr.NotFound("no queued items")
	}

	recentPickers, err := u.recentPickers(ctx, roomID)
	if err != nil {
		return model.QueueItem{}, err
	}

	byUser := make(map[string][]model.QueueItem)
	users := make([]string, 0)
	for _, item := range items {
		if _, seen := byUser[item.AddedBy]; !seen {
			users = append(users, item.AddedBy)
		}
		byUser[item.AddedBy] = append(byUser[item.AddedBy], item)
	}

	// recentPickers is newest first, so a low index means a fresh pick
	// and should sort toward the back of the line.
	priority := func(user string) int {
		for i, picker := range recentPickers {
			if picker == user {
				return len(recentPickers) - i
			}
		}
		return 0 // never picked, goes first
	}
	sort.SliceStable(users, func(i, j int) bool {
		return priority(users[i]) < priority(users[j])
	})

	candidates := byUser[users[0]]
	best := candidates[0]
	for _, item := range candidates[1:] {
		if item.VoteScore > best.VoteScore ||
			(item.VoteScore == best.VoteScore && item.AddedAt.Before(best.AddedAt)) {
			best = item
		}
	}
	return best, nil
}

// recentPickers lists added_by of recently watched items, newest first.
func (u *Usecase) recentPickers(ctx context.Context, roomID string) ([]string, error) {
	entries, err := u.history.RecentHistory(ctx, roomID, recentHistoryWindow)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	itemIDs := make([]string, 0, len(entries))
	for _, e := range entries {
		itemIDs = append(itemIDs, e.ItemID)
	}
	watched, err := u.queue.ItemsByIDs(ctx, itemIDs)
	if err != nil {
		return nil, err
	}

	addedBy := make(map[string]string, len(watched))
	for _, item := range watched {
		addedBy[item.ID] = item.AddedBy
	}

	pickers := make([]string, 0, len(entries))
	for _, e := range entries {
		if user, ok := addedBy[e.ItemID]; ok {
			pickers = append(pickers, user)
		}
	}
	return pickers, nil
}

// StartVotingRound stamps a round start. Nothing here enforces the
// timer; clients run the countdown and end the round themselves.
func (u *Usecase) StartVotingRound(ctx context.Context, roomID string, durationSeconds int) (model.VotingRound, error) {
	if durationSeconds < 0 {
		return model.VotingRound{}, apperr.InvalidArgument("duration_seconds cannot be negative")
	}
	if durationSeconds == 0 {
		room, err := u.rooms.Find(ctx, roomID)
		if err != nil {
			return model.VotingRound{}, err
		}
		if room == nil {
			return model.VotingRound{}, apperr.NotFound("room not found")
		}
		durationSeconds = room.Settings.VotingDurationSeconds
	}

	return model.VotingRound{
		RoomID:          roomID,
		StartTime:       time.Now().UTC(),
		DurationSeconds: durationSeconds,
		Status:          "voting",
	}, nil
}

// Stats reports per-user fairness numbers: how much each member adds
// versus how often their additions get watched.
func (u *Usecase) Stats(ctx context.Context, roomID string) (model.SelectionStats, error) {
	entries, err := u.history.RecentHistory(ctx, roomID, 0)
	if err != nil {
		return model.SelectionStats{}, err
	}
	items, err := u.queue.AllRoomItems(ctx, roomID)
	if err != nil {
		return model.SelectionStats{}, err
	}

	addedBy := make(map[string]string, len(items))
	added := make(map[string]int)
	for _, item := range items {
		addedBy[item.ID] = item.AddedBy
		added[item.AddedBy]++
	}

	picked := make(map[string]int)
	totalWatched := 0
	for _, e := range entries {
		if user, ok := addedBy[e.ItemID]; ok {
			picked[user]++
			totalWatched++
		}
	}

	stats := model.SelectionStats{
		TotalWatched: totalWatched,
		UserStats:    make(map[string]model.UserSelectionStats),
	}
	for user := range added {
		rate := 0.0
		if added[user] > 0 {
			rate = float64(picked[user]) / float64(added[user])
		}
		stats.UserStats[user] = model.UserSelectionStats{
			ItemsAdded:  added[user],
			ItemsPicked: picked[user],
			PickRate:    rate,
		}
	}
	for user := range picked {
		if _, ok := stats.UserStats[user]; !ok {
			stats.UserStats[user] = model.UserSelectionStats{
				ItemsPicked: picked[user],
			}
		}
	}
	return stats, nil
}
