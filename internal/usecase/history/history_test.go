package usecase_history

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfanalimd/watchqueue/internal/model"
	"github.com/irfanalimd/watchqueue/pkg/apperr"
)

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries map[string]model.WatchHistory
	next    int
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{entries: make(map[string]model.WatchHistory)}
}

func (r *fakeHistoryRepo) Insert(_ context.Context, entry model.WatchHistory) (model.WatchHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.entries {
		if existing.ItemID == entry.ItemID {
			return model.WatchHistory{}, apperr.Conflict("item already in history")
		}
	}
	r.next++
	entry.ID = "hist-" + strconv.Itoa(r.next)
	r.entries[entry.ID] = entry
	return entry, nil
}

func (r *fakeHistoryRepo) Find(_ context.Context, historyID string) (*model.WatchHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[historyID]; ok {
		return &entry, nil
	}
	return nil, nil
}

func (r *fakeHistoryRepo) FindByItem(_ context.Context, itemID string) (*model.WatchHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.ItemID == itemID {
			found := entry
			return &found, nil
		}
	}
	return nil, nil
}

func (r *fakeHistoryRepo) ListByRoom(_ context.Context, roomID string, limit, skip int) ([]model.WatchHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]model.WatchHistory, 0)
	for _, entry := range r.entries {
		if entry.RoomID == roomID {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].WatchedAt.After(entries[j].WatchedAt)
	})
	if skip >= len(entries) {
		return nil, nil
	}
	entries = entries[skip:]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r *fakeHistoryRepo) SetRating(_ context.Context, historyID, userID string, rating int) (*model.WatchHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[historyID]
	if !ok {
		return nil, nil
	}
	if entry.Ratings == nil {
		entry.Ratings = map[string]int{}
	}
	entry.Ratings[userID] = rating
	r.entries[historyID] = entry
	return &entry, nil
}

func (r *fakeHistoryRepo) SetNotes(_ context.Context, historyID, notes string) (*model.WatchHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[historyID]
	if !ok {
		return nil, nil
	}
	entry.Notes = notes
	r.entries[historyID] = entry
	return &entry, nil
}

func (r *fakeHistoryRepo) Stats(_ context.Context, roomID string) (model.HistoryStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := model.HistoryStats{}
	sum := 0
	for _, entry := range r.entries {
		if entry.RoomID != roomID {
			continue
		}
		stats.TotalWatched++
		for _, rating := range entry.Ratings {
			stats.TotalRatings++
			sum += rating
		}
	}
	if stats.TotalRatings > 0 {
		stats.AvgRating = float64(sum) / float64(stats.TotalRatings)
	}
	return stats, nil
}

type fakeHistoryItems struct {
	mu      sync.Mutex
	rooms   map[string]string
	watched []string
}

func (f *fakeHistoryItems) FindInRoom(_ context.Context, itemID, roomID string) (*model.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rooms[itemID] != roomID {
		return nil, nil
	}
	return &model.QueueItem{ID: itemID, RoomID: roomID, Status: model.StatusWatching}, nil
}

func (f *fakeHistoryItems) MarkWatched(_ context.Context, itemID string) (model.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watched = append(f.watched, itemID)
	return model.QueueItem{ID: itemID, Status: model.StatusWatched}, nil
}

type UsecaseHistoryUnitSuite struct {
	suite.Suite

	usecase *Usecase
	repo    *fakeHistoryRepo
	items   *fakeHistoryItems
	ctx     context.Context
}

func (s *UsecaseHistoryUnitSuite) BeforeEach(t provider.T) {
	s.repo = newFakeHistoryRepo()
	s.items = &fakeHistoryItems{rooms: map[string]string{
		"item-1": "room-1",
		"item-2": "room-1",
	}}
	s.usecase = New(s.repo, s.items, s.items)
	s.ctx = context.Background()
}

func (s *UsecaseHistoryUnitSuite) TestMarkWatched(t provider.T) {
	t.Run("Should write the entry and flip the item", func(t provider.T) {
		entry, err := s.usecase.MarkWatched(s.ctx, "room-1", "item-1", "great pick")
		require.NoError(t, err)

		assert.Equal(t, "item-1", entry.ItemID)
		assert.Equal(t, "great pick", entry.Notes)
		assert.NotNil(t, entry.Ratings)
		assert.Equal(t, []string{"item-1"}, s.items.watched)
	})

	t.Run("Should return the existing entry on a second mark", func(t provider.T) {
		first, err := s.usecase.MarkWatched(s.ctx, "room-1", "item-1", "")
		require.NoError(t, err)

		second, err := s.usecase.MarkWatched(s.ctx, "room-1", "item-1", "")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Len(t, s.items.watched, 1)
	})

	t.Run("Should reject an item from another room", func(t provider.T) {
		_, err := s.usecase.MarkWatched(s.ctx, "room-2", "item-1", "")

		assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
	})
}

func (s *UsecaseHistoryUnitSuite) TestRate(t provider.T) {
	t.Run("Should store per-user ratings", func(t provider.T) {
		entry, err := s.usecase.MarkWatched(s.ctx, "room-1", "item-1", "")
		require.NoError(t, err)

		rated, err := s.usecase.Rate(s.ctx, entry.ID, "alice", 5)
		require.NoError(t, err)
		assert.Equal(t, 5, rated.Ratings["alice"])

		rated, err = s.usecase.Rate(s.ctx, entry.ID, "alice", 2)
		require.NoError(t, err)
		assert.Equal(t, 2, rated.Ratings["alice"])
	})

	t.Run("Should bound ratings to 1..5", func(t provider.T) {
		entry, err := s.usecase.MarkWatched(s.ctx, "room-1", "item-1", "")
		require.NoError(t, err)

		_, err = s.usecase.Rate(s.ctx, entry.ID, "alice", 0)
		assert.True(t, apperr.IsCode(err, apperr.CodeInvalidArgument))

		_, err = s.usecase.Rate(s.ctx, entry.ID, "alice", 6)
		assert.True(t, apperr.IsCode(err, apperr.CodeInvalidArgument))
	})

	t.Run("Should report a missing entry as not found", func(t provider.T) {
		_, err := s.usecase.Rate(s.ctx, "ghost", "alice", 3)

		assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
	})
}

func (s *UsecaseHistoryUnitSuite) TestRoomHistory(t provider.T) {
	t.Run("Should list newest first with a default limit", func(t provider.T) {
		first, err := s.usecase.MarkWatched(s.ctx, "room-1", "item-1", "")
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
		second, err := s.usecase.MarkWatched(s.ctx, "room-1", "item-2", "")
		require.NoError(t, err)

		entries, err := s.usecase.RoomHistory(s.ctx, "room-1", 0, 0)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, second.ID, entries[0].ID)
		assert.Equal(t, first.ID, entries[1].ID)
	})
}

func (s *UsecaseHistoryUnitSuite) TestStats(t provider.T) {
	t.Run("Should average ratings across entries", func(t provider.T) {
		first, err := s.usecase.MarkWatched(s.ctx, "room-1", "item-1", "")
		require.NoError(t, err)
		second, err := s.usecase.MarkWatched(s.ctx, "room-1", "item-2", "")
		require.NoError(t, err)

		_, err = s.usecase.Rate(s.ctx, first.ID, "alice", 4)
		require.NoError(t, err)
		_, err = s.usecase.Rate(s.ctx, second.ID, "bob", 2)
		require.NoError(t, err)

		stats, err := s.usecase.Stats(s.ctx, "room-1")
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalWatched)
		assert.Equal(t, 2, stats.TotalRatings)
		assert.InDelta(t, 3.0, stats.AvgRating, 1e-9)
	})
}

func TestUsecaseHistoryUnitSuite(t *testing.T) {
	suite.RunSuite(t, new(UsecaseHistoryUnitSuite))
}
