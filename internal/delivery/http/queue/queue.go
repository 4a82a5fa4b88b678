package http_queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	http_common "github.com/irfanalimd/watchqueue/internal/delivery/http/common"
	ws_room "github.com/irfanalimd/watchqueue/internal/delivery/ws/room"
	infra_tmdb "github.com/irfanalimd/watchqueue/internal/infra/tmdb"
	"github.com/irfanalimd/watchqueue/internal/model"
	usecase_history "github.com/irfanalimd/watchqueue/internal/usecase/history"
	usecase_queue "github.com/irfanalimd/watchqueue/internal/usecase/queue"
	usecase_selection "github.com/irfanalimd/watchqueue/internal/usecase/selection"
)

const enrichTimeout = 30 * time.Second

type Controller struct {
	queue     *usecase_queue.Usecase
	selection *usecase_selection.Usecase
	history   *usecase_history.Usecase
	enricher  *infra_tmdb.Enricher
	tmdb      *infra_tmdb.Client
	hub       *ws_room.Hub
	logger    *slog.Logger
}

func New(
	queue *usecase_queue.Usecase,
	selection *usecase_selection.Usecase,
	history *usecase_history.Usecase,
	enricher *infra_tmdb.Enricher,
	tmdb *infra_tmdb.Client,
	hub *ws_room.Hub,
) *Controller {
	return &Controller{
		queue:     queue,
		selection: selection,
		history:   history,
		enricher:  enricher,
		tmdb:      tmdb,
		hub:       hub,
		logger:    slog.Default(),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	queue := router.Group("/queue")
	{
		queue.GET("/search/tmdb", c.searchTMDB)
		queue.POST("", c.add)
		queue.GET("/:item_id", c.get)
		queue.GET("/room/:room_id", c.roomQueue)
		queue.PATCH("/:item_id", c.update)
		queue.DELETE("/:item_id", c.remove)
		queue.POST("/:item_id/enrich", c.enrich)
		queue.POST("/:item_id/watch", c.watch)
		queue.POST("/room/:room_id/select", c.selectNext)
		queue.POST("/room/:room_id/voting-round", c.votingRound)
		queue.GET("/room/:room_id/stats", c.stats)
	}
}

type AddItemDTO struct {
	RoomID         string   `json:"room_id" binding:"required"`
	Title          string   `json:"title" binding:"required"`
	AddedBy        string   `json:"added_by" binding:"required"`
	TMDBID         int      `json:"tmdb_id"`
	PosterURL      string   `json:"poster_url"`
	Overview       string   `json:"overview"`
	VoteAverage    float64  `json:"vote_average"`
	Year           int      `json:"year"`
	RuntimeMinutes int      `json:"runtime_minutes"`
	Genres         []string `json:"genres"`
}

func (c *Controller) add(ctx *gin.Context) {
	var dto AddItemDTO
	if err := ctx.ShouldBindJSON(&dto); err != nil {
		http_common.RespondBadRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	item, err := c.queue.Add(ctx, usecase_queue.AddParams{
		RoomID:         dto.RoomID,
		Title:          dto.Title,
		AddedBy:        dto.AddedBy,
		TMDBID:         dto.TMDBID,
		PosterURL:      dto.PosterURL,
		Overview:       dto.Overview,
		VoteAverage:    dto.VoteAverage,
		Year:           dto.Year,
		RuntimeMinutes: dto.RuntimeMinutes,
		Genres:         dto.Genres,
	})
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}

	go c.enrichBackground(item)

	c.hub.NotifyQueueUpdate(item.RoomID, "add", item)
	ctx.JSON(http.StatusCreated, item)
}

// enrichBackground fills in metadata after the add already returned.
// Failures only log; the item stays as the user submitted it.
func (c *Controller) enrichBackground(item model.QueueItem) {
	ctx, cancel := context.WithTimeout(context.Background(), enrichTimeout)
	defer cancel()

	enriched, changed := c.enrichItem(ctx, item)
	if !changed {
		return
	}
	c.hub.NotifyQueueUpdate(enriched.RoomID, "update", enriched)
}

func (c *Controller) enrichItem(ctx context.Context, item model.QueueItem) (model.QueueItem, bool) {
	result := c.enricher.Enrich(ctx, item.Title)
	if !result.Found && len(result.StreamingOn) == 0 {
		return item, false
	}

	update := usecase_queue.ItemUpdate{StreamingOn: result.StreamingOn}
	if result.Found {
		if item.TMDBID == 0 && result.TMDBID != 0 {
			update.TMDBID = &result.TMDBID
		}
		if item.PosterURL == "" && result.PosterURL != "" {
			update.PosterURL = &result.PosterURL
		}
		if item.Overview == "" && result.Overview != "" {
			update.Overview = &result.Overview
		}
		if item.VoteAverage == 0 && result.VoteAverage != 0 {
			update.VoteAverage = &result.VoteAverage
		}
		if item.Year == 0 && result.Year != 0 {
			update.Year = &result.Year
		}
		if item.RuntimeMinutes == 0 && result.RuntimeMinutes != 0 {
			update.RuntimeMinutes = &result.RuntimeMinutes
		}
		if len(item.Genres) == 0 && len(result.Genres) > 0 {
			update.Genres = result.Genres
		}
	}

	enriched, err := c.queue.Enrich(ctx, item.ID, update)
	if err != nil {
		c.logger.Warn("enrichment write failed",
			slog.String("item_id", item.ID), slog.Any("error", err))
		return item, false
	}
	return enriched, true
}

func (c *Controller) get(ctx *gin.Context) {
	item, err := c.queue.Item(ctx, ctx.Param("item_id"))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, item)
}

func (c *Controller) roomQueue(ctx *gin.Context) {
	filter := usecase_queue.ListFilter{
		Status:       model.QueueItemStatus(ctx.Query("status")),
		Provider:     ctx.Query("provider"),
		AvailableNow: ctx.Query("available_now") == "true",
		Limit:        intQuery(ctx, "limit", 0),
		Skip:         intQuery(ctx, "skip", 0),
	}

	items, err := c.queue.RoomQueue(ctx, ctx.Param("room_id"), filter)
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, items)
}

type UpdateItemDTO struct {
	Status            *model.QueueItemStatus `json:"status"`
	PosterURL         *string                `json:"poster_url"`
	Overview          *string                `json:"overview"`
	VoteAverage       *float64               `json:"vote_average"`
	Year              *int                   `json:"year"`
	RuntimeMinutes    *int                   `json:"runtime_minutes"`
	Genres            []string               `json:"genres"`
	StreamingOn       []string               `json:"streaming_on"`
	PlayNowURL        *string                `json:"play_now_url"`
	ProviderLinks     []model.ProviderLink   `json:"provider_links"`
	ProvidersByRegion map[string][]string    `json:"providers_by_region"`
}

func (c *Controller) update(ctx *gin.Context) {
	// Unknown fields are rejected so typos do not silently drop updates.
	decoder := json.NewDecoder(ctx.Request.Body)
	decoder.DisallowUnknownFields()

	var dto UpdateItemDTO
	if err := decoder.Decode(&dto); err != nil {
		http_common.RespondBadRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	item, err := c.queue.Update(ctx, ctx.Param("item_id"), usecase_queue.ItemUpdate{
		Status:            dto.Status,
		PosterURL:         dto.PosterURL,
		Overview:          dto.Overview,
		VoteAverage:       dto.VoteAverage,
		Year:              dto.Year,
		RuntimeMinutes:    dto.RuntimeMinutes,
		Genres:            dto.Genres,
		StreamingOn:       dto.StreamingOn,
		PlayNowURL:        dto.PlayNowURL,
		ProviderLinks:     dto.ProviderLinks,
		ProvidersByRegion: dto.ProvidersByRegion,
	})
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}

	c.hub.NotifyQueueUpdate(item.RoomID, "update", item)
	ctx.JSON(http.StatusOK, item)
}

func (c *Controller) remove(ctx *gin.Context) {
	item, err := c.queue.Item(ctx, ctx.Param("item_id"))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}

	changed, err := c.queue.Remove(ctx, item.ID)
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	if changed {
		c.hub.NotifyQueueUpdate(item.RoomID, "remove", gin.H{"item_id": item.ID})
	}
	ctx.Status(http.StatusNoContent)
}

func (c *Controller) enrich(ctx *gin.Context) {
	item, err := c.queue.Item(ctx, ctx.Param("item_id"))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}

	enriched, changed := c.enrichItem(ctx, item)
	if changed {
		c.hub.NotifyQueueUpdate(enriched.RoomID, "update", enriched)
	}
	ctx.JSON(http.StatusOK, enriched)
}

type WatchDTO struct {
	Notes string `json:"notes"`
}

func (c *Controller) watch(ctx *gin.Context) {
	var dto WatchDTO
	_ = ctx.ShouldBindJSON(&dto)

	item, err := c.queue.MarkWatching(ctx, ctx.Param("item_id"))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}

	entry, err := c.history.MarkWatched(ctx, item.RoomID, item.ID, dto.Notes)
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}

	c.hub.NotifyQueueUpdate(item.RoomID, "update", item)
	ctx.JSON(http.StatusOK, entry)
}

func (c *Controller) selectNext(ctx *gin.Context) {
	mode := model.SelectionMode(ctx.Query("mode"))
	if mode != "" && !mode.Valid() {
		http_common.RespondBadRequest(ctx, "unknown selection mode")
		return
	}

	item, err := c.selection.SelectNext(ctx, ctx.Param("room_id"), mode, 0)
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}

	c.hub.NotifySelection(item.RoomID, item.ID, item.Title, ctx.Query("selected_by"))
	ctx.JSON(http.StatusOK, item)
}

func (c *Controller) votingRound(ctx *gin.Context) {
	round, err := c.selection.StartVotingRound(ctx, ctx.Param("room_id"),
		intQuery(ctx, "duration_seconds", 0))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}

	c.hub.NotifyVotingRound(round.RoomID, round.DurationSeconds, ctx.Query("started_by"))
	ctx.JSON(http.StatusOK, round)
}

func (c *Controller) stats(ctx *gin.Context) {
	stats, err := c.selection.Stats(ctx, ctx.Param("room_id"))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, stats)
}

func (c *Controller) searchTMDB(ctx *gin.Context) {
	query := ctx.Query("q")
	if len(query) < 2 {
		http_common.RespondBadRequest(ctx, "query must be at least 2 characters")
		return
	}
	limit := intQuery(ctx, "limit", 8)
	if limit > 20 {
		limit = 20
	}

	results, err := c.tmdb.SearchMulti(ctx, query, limit)
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}

	for i := range results {
		results[i].Overview = truncateOverview(results[i].Overview, 150)
	}
	ctx.JSON(http.StatusOK, results)
}

// truncateOverview cuts after limit characters, on a rune boundary so a
// multi-byte character is never split mid-sequence.
func truncateOverview(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func intQuery(ctx *gin.Context, key string, fallback int) int {
	raw := ctx.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
