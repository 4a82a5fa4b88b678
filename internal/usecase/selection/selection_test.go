package usecase_selection

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfanalimd/watchqueue/internal/model"
	"github.com/irfanalimd/watchqueue/pkg/apperr"
)

type fakeSelectionStore struct {
	items   []model.QueueItem
	history []model.WatchHistory
	room    *model.Room

	// slowReads makes that many QueuedItems calls hang until the
	// caller's context expires.
	slowReads int
}

func (f *fakeSelectionStore) QueuedItems(ctx context.Context, _ string) ([]model.QueueItem, error) {
	if f.slowReads > 0 {
		f.slowReads--
		<-ctx.Done()
		return nil, ctx.Err()
	}
	queued := make([]model.QueueItem, 0, len(f.items))
	for _, item := range f.items {
		if item.Status == model.StatusQueued {
			queued = append(queued, item)
		}
	}
	sort.SliceStable(queued, func(i, j int) bool {
		if queued[i].VoteScore != queued[j].VoteScore {
			return queued[i].VoteScore > queued[j].VoteScore
		}
		return queued[i].AddedAt.Before(queued[j].AddedAt)
	})
	return queued, nil
}

func (f *fakeSelectionStore) ItemsByIDs(_ context.Context, itemIDs []string) ([]model.QueueItem, error) {
	wanted := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = true
	}
	found := make([]model.QueueItem, 0)
	for _, item := range f.items {
		if wanted[item.ID] {
			found = append(found, item)
		}
	}
	return found, nil
}

func (f *fakeSelectionStore) AllRoomItems(_ context.Context, _ string) ([]model.QueueItem, error) {
	return f.items, nil
}

func (f *fakeSelectionStore) RecentHistory(_ context.Context, _ string, limit int) ([]model.WatchHistory, error) {
	entries := f.history
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (f *fakeSelectionStore) Find(_ context.Context, _ string) (*model.Room, error) {
	return f.room, nil
}

type UsecaseSelectionUnitSuite struct {
	suite.Suite

	usecase *Usecase
	store   *fakeSelectionStore
	ctx     context.Context
	base    time.Time
}

func (s *UsecaseSelectionUnitSuite) BeforeEach(t provider.T) {
	s.store = &fakeSelectionStore{}
	s.usecase = New(s.store, s.store, s.store)
	s.ctx = context.Background()
	s.base = time.Date(2026, time.March, 1, 20, 0, 0, 0, time.UTC)
}

func (s *UsecaseSelectionUnitSuite) queued(id, addedBy string, score, minutesIn int) model.QueueItem {
	return model.QueueItem{
		ID:        id,
		RoomID:    "room-1",
		Title:     id,
		AddedBy:   addedBy,
		VoteScore: score,
		AddedAt:   s.base.Add(time.Duration(minutesIn) * time.Minute),
		Status:    model.StatusQueued,
	}
}

func (s *UsecaseSelectionUnitSuite) TestHighestVotes(t provider.T) {
	t.Run("Should pick the top score", func(t provider.T) {
		s.store.items = []model.QueueItem{
			s.queued("a", "alice", 1, 0),
			s.queued("b", "bob", 5, 1),
			s.queued("c", "carol", 3, 2),
		}

		item, err := s.usecase.SelectNext(s.ctx, "room-1", model.SelectionHighestVotes, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "b", item.ID)
	})

	t.Run("Should break score ties by earliest added", func(t provider.T) {
		s.store.items = []model.QueueItem{
			s.queued("later", "alice", 2, 5),
			s.queued("earlier", "bob", 2, 1),
		}

		item, err := s.usecase.SelectNext(s.ctx, "room-1", model.SelectionHighestVotes, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "earlier", item.ID)
	})

	t.Run("Should fall back to earliest when every score is zero", func(t provider.T) {
		s.store.items = []model.QueueItem{
			s.queued("second", "alice", 0, 3),
			s.queued("first", "bob", 0, 0),
		}

		item, err := s.usecase.SelectNext(s.ctx, "room-1", model.SelectionHighestVotes, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "first", item.ID)
	})

	t.Run("Should report an empty queue as not found", func(t provider.T) {
		s.store.items = nil

		_, err := s.usecase.SelectNext(s.ctx, "room-1", model.SelectionHighestVotes, time.Second)

		assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
	})
}

func (s *UsecaseSelectionUnitSuite) TestWeightedRandom(t provider.T) {
	t.Run("Should keep zero-score items in the running", func(t provider.T) {
		s.store.items = []model.QueueItem{
			s.queued("favored", "alice", 10, 0),
			s.queued("longshot", "bob", 0, 1),
		}

		winners := make(map[string]int)
		for i := 0; i < 200; i++ {
			item, err := s.usecase.SelectNext(s.ctx, "room-1", model.SelectionWeightedRandom, time.Second)
			require.NoError(t, err)
			winners[item.ID]++
		}

		// Weights are 21 vs 1, so the favorite dominates but the
		// longshot still has a 1-in-22 shot per draw.
		assert.Greater(t, winners["favored"], winners["longshot"])
		assert.Greater(t, winners["favored"], 100)
	})

	t.Run("Should spread picks across an even field", func(t provider.T) {
		s.store.items = []model.QueueItem{
			s.queued("a", "alice", 1, 0),
			s.queued("b", "bob", 1, 1),
			s.queued("c", "carol", 1, 2),
			s.queued("d", "dave", 1, 3),
			s.queued("e", "erin", 1, 4),
		}

		winners := make(map[string]int)
		for i := 0; i < 100; i++ {
			item, err := s.usecase.SelectNext(s.ctx, "room-1", model.SelectionWeightedRandom, time.Second)
			require.NoError(t, err)
			winners[item.ID]++
		}

		// Loose statistical bounds: equal weights should not let one
		// item run away with the draws.
		assert.GreaterOrEqual(t, len(winners), 3)
		for id, count := range winners {
			assert.Lessf(t, count, 55, "item %s won far beyond its weight", id)
		}
	})
}

func (s *UsecaseSelectionUnitSuite) TestRoundRobin(t provider.T) {
	t.Run("Should favor a user who was never picked", func(t provider.T) {
		s.store.items = []model.QueueItem{
			s.queued("a1", "alice", 9, 0),
			s.queued("b1", "bob", 0, 1),
			{ID: "a0", RoomID: "room-1", AddedBy: "alice", Status: model.StatusWatched, AddedAt: s.base},
		}
		s.store.history = []model.WatchHistory{{ItemID: "a0", RoomID: "room-1"}}

		item, err := s.usecase.SelectNext(s.ctx, "room-1", model.SelectionRoundRobin, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "b1", item.ID)
	})

	t.Run("Should deprioritize the most recent picker", func(t provider.T) {
		s.store.items = []model.QueueItem{
			s.queued("a1", "alice", 3, 0),
			s.queued("b1", "bob", 3, 1),
			{ID: "a0", RoomID: "room-1", AddedBy: "alice", Status: model.StatusWatched, AddedAt: s.base},
			{ID: "b0", RoomID: "room-1", AddedBy: "bob", Status: model.StatusWatched, AddedAt: s.base},
		}
		// Newest first: alice picked most recently, bob before that.
		s.store.history = []model.WatchHistory{
			{ItemID: "a0", RoomID: "room-1"},
			{ItemID: "b0", RoomID: "room-1"},
		}

		item, err := s.usecase.SelectNext(s.ctx, "room-1", model.SelectionRoundRobin, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "b1", item.ID)
	})

	t.Run("Should pick the chosen user's best-voted item", func(t provider.T) {
		s.store.history = nil
		s.store.items = []model.QueueItem{
			s.queued("b-weak", "bob", 1, 0),
			s.queued("b-strong", "bob", 4, 1),
		}

		item, err := s.usecase.SelectNext(s.ctx, "room-1", model.SelectionRoundRobin, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "b-strong", item.ID)
	})
}

func (s *UsecaseSelectionUnitSuite) TestTimeoutFallback(t provider.T) {
	t.Run("Should fall back to the deterministic pick when the run times out", func(t provider.T) {
		s.store.items = []model.QueueItem{
			s.queued("a", "alice", 1, 0),
			s.queued("b", "bob", 7, 1),
		}
		s.store.slowReads = 1

		item, err := s.usecase.SelectNext(s.ctx, "room-1", model.SelectionWeightedRandom, 30*time.Millisecond)

		require.NoError(t, err)
		assert.Equal(t, "b", item.ID)
		assert.Zero(t, s.store.slowReads)
	})

	t.Run("Should still fail when the caller's own context expires", func(t provider.T) {
		s.store.items = []model.QueueItem{s.queued("a", "alice", 1, 0)}
		s.store.slowReads = 1

		ctx, cancel := context.WithTimeout(s.ctx, 30*time.Millisecond)
		defer cancel()

		_, err := s.usecase.SelectNext(ctx, "room-1", model.SelectionWeightedRandom, time.Minute)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func (s *UsecaseSelectionUnitSuite) TestModeResolution(t provider.T) {
	t.Run("Should resolve empty mode from room settings", func(t provider.T) {
		s.store.items = []model.QueueItem{s.queued("a", "alice", 2, 0)}
		s.store.room = &model.Room{
			ID:       "room-1",
			Settings: model.RoomSettings{VotingDurationSeconds: 60, SelectionMode: model.SelectionHighestVotes},
		}

		item, err := s.usecase.SelectNext(s.ctx, "room-1", "", time.Second)
		require.NoError(t, err)
		assert.Equal(t, "a", item.ID)
	})

	t.Run("Should reject an unknown mode", func(t provider.T) {
		_, err := s.usecase.SelectNext(s.ctx, "room-1", "dice_roll", time.Second)

		assert.True(t, apperr.IsCode(err, apperr.CodeInvalidArgument))
	})

	t.Run("Should report a missing room as not found", func(t provider.T) {
		s.store.room = nil

		_, err := s.usecase.SelectNext(s.ctx, "room-1", "", time.Second)

		assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
	})
}

func (s *UsecaseSelectionUnitSuite) TestStartVotingRound(t provider.T) {
	t.Run("Should reject a negative duration", func(t provider.T) {
		_, err := s.usecase.StartVotingRound(s.ctx, "room-1", -1)

		assert.True(t, apperr.IsCode(err, apperr.CodeInvalidArgument))
	})

	t.Run("Should default zero duration from room settings", func(t provider.T) {
		s.store.room = &model.Room{
			ID:       "room-1",
			Settings: model.RoomSettings{VotingDurationSeconds: 90, SelectionMode: model.SelectionWeightedRandom},
		}

		round, err := s.usecase.StartVotingRound(s.ctx, "room-1", 0)
		require.NoError(t, err)
		assert.Equal(t, 90, round.DurationSeconds)
		assert.Equal(t, "voting", round.Status)
		assert.False(t, round.StartTime.IsZero())
	})

	t.Run("Should keep an explicit duration", func(t provider.T) {
		round, err := s.usecase.StartVotingRound(s.ctx, "room-1", 120)

		require.NoError(t, err)
		assert.Equal(t, 120, round.DurationSeconds)
	})
}

func (s *UsecaseSelectionUnitSuite) TestStats(t provider.T) {
	t.Run("Should compute per-user pick rates", func(t provider.T) {
		s.store.items = []model.QueueItem{
			{ID: "a1", RoomID: "room-1", AddedBy: "alice", Status: model.StatusWatched},
			{ID: "a2", RoomID: "room-1", AddedBy: "alice", Status: model.StatusQueued},
			{ID: "b1", RoomID: "room-1", AddedBy: "bob", Status: model.StatusQueued},
		}
		s.store.history = []model.WatchHistory{{ItemID: "a1", RoomID: "room-1"}}

		stats, err := s.usecase.Stats(s.ctx, "room-1")
		require.NoError(t, err)

		assert.Equal(t, 1, stats.TotalWatched)
		assert.Equal(t, 2, stats.UserStats["alice"].ItemsAdded)
		assert.Equal(t, 1, stats.UserStats["alice"].ItemsPicked)
		assert.InDelta(t, 0.5, stats.UserStats["alice"].PickRate, 1e-9)
		assert.Equal(t, 0, stats.UserStats["bob"].ItemsPicked)
		assert.Zero(t, stats.UserStats["bob"].PickRate)
	})
}

func TestUsecaseSelectionUnitSuite(t *testing.T) {
	suite.RunSuite(t, new(UsecaseSelectionUnitSuite))
}
