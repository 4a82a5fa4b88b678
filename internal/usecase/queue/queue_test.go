package usecase_queue

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfanalimd/watchqueue/internal/model"
	"github.com/irfanalimd/watchqueue/pkg/apperr"
	"github.com/irfanalimd/watchqueue/pkg/keyedlock"
)

type fakeQueueRepo struct {
	mu    sync.Mutex
	items map[string]model.QueueItem
	next  int
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{items: make(map[string]model.QueueItem)}
}

func (r *fakeQueueRepo) FindActiveByTitle(_ context.Context, roomID, title string) (*model.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.RoomID == roomID && item.Status != model.StatusRemoved &&
			strings.EqualFold(item.Title, title) {
			found := item
			return &found, nil
		}
	}
	return nil, nil
}

func (r *fakeQueueRepo) FindActiveByTMDBID(_ context.Context, roomID string, tmdbID int) (*model.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.RoomID == roomID && item.Status != model.StatusRemoved && item.TMDBID == tmdbID {
			found := item
			return &found, nil
		}
	}
	return nil, nil
}

func (r *fakeQueueRepo) Insert(_ context.Context, item model.QueueItem) (model.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.RoomID == item.RoomID && existing.Status != model.StatusRemoved &&
			strings.EqualFold(existing.Title, item.Title) {
			return model.QueueItem{}, apperr.Conflict("item already queued")
		}
	}
	r.next++
	item.ID = "item-" + strconv.Itoa(r.next)
	r.items[item.ID] = item
	return item, nil
}

func (r *fakeQueueRepo) Find(_ context.Context, itemID string) (*model.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item, ok := r.items[itemID]; ok {
		return &item, nil
	}
	return nil, nil
}

func (r *fakeQueueRepo) List(_ context.Context, roomID string, filter ListFilter) ([]model.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]model.QueueItem, 0)
	for _, item := range r.items {
		if item.RoomID != roomID {
			continue
		}
		if filter.Status != "" {
			if item.Status != filter.Status {
				continue
			}
		} else if item.Status == model.StatusRemoved {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *fakeQueueRepo) Update(_ context.Context, itemID string, update ItemUpdate) (*model.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[itemID]
	if !ok {
		return nil, nil
	}
	if update.Status != nil {
		item.Status = *update.Status
	}
	if update.PosterURL != nil {
		item.PosterURL = *update.PosterURL
	}
	if update.Overview != nil {
		item.Overview = *update.Overview
	}
	if update.Year != nil {
		item.Year = *update.Year
	}
	if update.Genres != nil {
		item.Genres = update.Genres
	}
	if update.StreamingOn != nil {
		item.StreamingOn = update.StreamingOn
	}
	if update.TMDBID != nil {
		item.TMDBID = *update.TMDBID
	}
	r.items[itemID] = item
	return &item, nil
}

type UsecaseQueueUnitSuite struct {
	suite.Suite

	usecase *Usecase
	repo    *fakeQueueRepo
	ctx     context.Context
}

func (s *UsecaseQueueUnitSuite) BeforeEach(t provider.T) {
	s.repo = newFakeQueueRepo()
	s.usecase = New(s.repo, keyedlock.NewMutex())
	s.ctx = context.Background()
}

func (s *UsecaseQueueUnitSuite) add(t provider.T, title string) model.QueueItem {
	item, err := s.usecase.Add(s.ctx, AddParams{
		RoomID:  "room-1",
		Title:   title,
		AddedBy: "alice",
	})
	require.NoError(t, err)
	return item
}

func (s *UsecaseQueueUnitSuite) TestAdd(t provider.T) {
	t.Run("Should insert queued item with defaults", func(t provider.T) {
		item := s.add(t, "Dune")

		assert.Equal(t, model.StatusQueued, item.Status)
		assert.NotEmpty(t, item.ID)
		assert.Empty(t, item.Genres)
		assert.False(t, item.AddedAt.IsZero())
	})

	t.Run("Should return existing item for duplicate title, case-insensitive", func(t provider.T) {
		first := s.add(t, "Interstellar")
		second := s.add(t, "interstellar")

		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("Should allow re-adding after removal", func(t provider.T) {
		first := s.add(t, "The Thing")
		_, err := s.usecase.Remove(s.ctx, first.ID)
		require.NoError(t, err)

		second := s.add(t, "The Thing")
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("Should reject blank title", func(t provider.T) {
		_, err := s.usecase.Add(s.ctx, AddParams{RoomID: "room-1", Title: "  ", AddedBy: "alice"})

		assert.True(t, apperr.IsCode(err, apperr.CodeInvalidArgument))
	})
}

// Concurrent adds of the same title must collapse to one stored item;
// the keyed lock serializes the find-then-insert window.
func (s *UsecaseQueueUnitSuite) TestConcurrentDuplicateAdds(t provider.T) {
	const callers = 16

	ids := make(chan string, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			item, err := s.usecase.Add(s.ctx, AddParams{
				RoomID:  "room-1",
				Title:   "The Matrix",
				AddedBy: "alice",
			})
			assert.NoError(t, err)
			ids <- item.ID
		}()
	}
	wg.Wait()
	close(ids)

	unique := make(map[string]bool)
	for id := range ids {
		unique[id] = true
	}
	assert.Len(t, unique, 1)
	assert.Len(t, s.repo.items, 1)
}

func (s *UsecaseQueueUnitSuite) TestStatusTransitions(t provider.T) {
	t.Run("Should walk queued to watching to watched", func(t provider.T) {
		item := s.add(t, "Dune")

		watching, err := s.usecase.MarkWatching(s.ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusWatching, watching.Status)

		watched, err := s.usecase.MarkWatched(s.ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusWatched, watched.Status)
	})

	t.Run("Should refuse moving backwards", func(t provider.T) {
		item := s.add(t, "Alien")
		_, err := s.usecase.MarkWatched(s.ctx, item.ID)
		require.NoError(t, err)

		queued := model.StatusQueued
		_, err = s.usecase.Update(s.ctx, item.ID, ItemUpdate{Status: &queued})
		assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState))
	})

	t.Run("Should treat removed as terminal", func(t provider.T) {
		item := s.add(t, "Blade Runner")
		_, err := s.usecase.Remove(s.ctx, item.ID)
		require.NoError(t, err)

		_, err = s.usecase.MarkWatching(s.ctx, item.ID)
		assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState))
	})

	t.Run("Should keep same-status transition a no-op", func(t provider.T) {
		item := s.add(t, "Arrival")
		_, err := s.usecase.MarkWatching(s.ctx, item.ID)
		require.NoError(t, err)

		again, err := s.usecase.MarkWatching(s.ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusWatching, again.Status)
	})
}

func (s *UsecaseQueueUnitSuite) TestRemove(t provider.T) {
	t.Run("Should report the first removal only", func(t provider.T) {
		item := s.add(t, "Dune")

		changed, err := s.usecase.Remove(s.ctx, item.ID)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = s.usecase.Remove(s.ctx, item.ID)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("Should report missing item as not found", func(t provider.T) {
		_, err := s.usecase.Remove(s.ctx, "ghost")

		assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
	})
}

func (s *UsecaseQueueUnitSuite) TestEnrich(t provider.T) {
	t.Run("Should never touch status", func(t provider.T) {
		item := s.add(t, "Dune")
		watched := model.StatusWatched

		poster := "https://example.com/p.jpg"
		enriched, err := s.usecase.Enrich(s.ctx, item.ID, ItemUpdate{
			Status:    &watched,
			PosterURL: &poster,
		})

		require.NoError(t, err)
		assert.Equal(t, model.StatusQueued, enriched.Status)
		assert.Equal(t, poster, enriched.PosterURL)
	})
}

func (s *UsecaseQueueUnitSuite) TestRoomQueue(t provider.T) {
	t.Run("Should reject unknown status filter", func(t provider.T) {
		_, err := s.usecase.RoomQueue(s.ctx, "room-1", ListFilter{Status: "paused"})

		assert.True(t, apperr.IsCode(err, apperr.CodeInvalidArgument))
	})

	t.Run("Should exclude removed items by default", func(t provider.T) {
		keep := s.add(t, "Dune")
		gone := s.add(t, "Alien")
		_, err := s.usecase.Remove(s.ctx, gone.ID)
		require.NoError(t, err)

		items, err := s.usecase.RoomQueue(s.ctx, "room-1", ListFilter{})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, keep.ID, items[0].ID)
	})
}

func TestUsecaseQueueUnitSuite(t *testing.T) {
	suite.RunSuite(t, new(UsecaseQueueUnitSuite))
}
