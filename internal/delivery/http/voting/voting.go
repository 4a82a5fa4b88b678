package http_voting

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	http_common "github.com/irfanalimd/watchqueue/internal/delivery/http/common"
	ws_room "github.com/irfanalimd/watchqueue/internal/delivery/ws/room"
	"github.com/irfanalimd/watchqueue/internal/model"
	usecase_history "github.com/irfanalimd/watchqueue/internal/usecase/history"
	usecase_queue "github.com/irfanalimd/watchqueue/internal/usecase/queue"
	usecase_reaction "github.com/irfanalimd/watchqueue/internal/usecase/reaction"
	usecase_vote "github.com/irfanalimd/watchqueue/internal/usecase/vote"
)

type Controller struct {
	votes     *usecase_vote.Usecase
	reactions *usecase_reaction.Usecase
	history   *usecase_history.Usecase
	queue     *usecase_queue.Usecase
	hub       *ws_room.Hub
	logger    *slog.Logger
}

func New(
	votes *usecase_vote.Usecase,
	reactions *usecase_reaction.Usecase,
	history *usecase_history.Usecase,
	queue *usecase_queue.Usecase,
	hub *ws_room.Hub,
) *Controller {
	return &Controller{
		votes:     votes,
		reactions: reactions,
		history:   history,
		queue:     queue,
		hub:       hub,
		logger:    slog.Default(),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	votes := router.Group("/votes")
	{
		votes.POST("", c.cast)
		votes.DELETE("/:item_id/:user_id", c.remove)
		votes.GET("/user/:item_id/:user_id", c.userVote)
		votes.GET("/item/:item_id", c.itemVotes)
		votes.GET("/item/:item_id/counts", c.counts)
		votes.GET("/room/:room_id/user/:user_id", c.userVotesInRoom)

		votes.POST("/reactions", c.toggleReaction)
		votes.GET("/reactions/room/:room_id", c.roomReactions)

		votes.POST("/history/:history_id/rate", c.rate)
		votes.GET("/history/room/:room_id", c.roomHistory)
		votes.GET("/history/room/:room_id/stats", c.historyStats)
	}
}

type CastVoteDTO struct {
	ItemID string `json:"item_id" binding:"required"`
	UserID string `json:"user_id" binding:"required"`
	Vote   string `json:"vote" binding:"required"`
}

func (c *Controller) cast(ctx *gin.Context) {
	var dto CastVoteDTO
	if err := ctx.ShouldBindJSON(&dto); err != nil {
		http_common.RespondBadRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	vote, err := c.votes.Cast(ctx, dto.ItemID, dto.UserID, model.VoteDirection(dto.Vote))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}

	c.notifyCounts(ctx, dto.ItemID)
	ctx.JSON(http.StatusCreated, vote)
}

func (c *Controller) remove(ctx *gin.Context) {
	itemID := ctx.Param("item_id")
	deleted, err := c.votes.Remove(ctx, itemID, ctx.Param("user_id"))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}

	if deleted {
		c.notifyCounts(ctx, itemID)
	}
	ctx.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// notifyCounts pushes the item's fresh counts to its room. Lookup
// failures only cost the realtime update, not the request.
func (c *Controller) notifyCounts(ctx *gin.Context, itemID string) {
	item, err := c.queue.Item(ctx, itemID)
	if err != nil {
		return
	}
	counts, err := c.votes.Counts(ctx, itemID)
	if err != nil {
		return
	}
	c.hub.NotifyVoteCounts(item.RoomID, itemID,
		counts.Upvotes, counts.Downvotes, counts.VoteScore)
}

func (c *Controller) userVote(ctx *gin.Context) {
	vote, err := c.votes.Get(ctx, ctx.Param("item_id"), ctx.Param("user_id"))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, vote)
}

func (c *Controller) itemVotes(ctx *gin.Context) {
	votes, err := c.votes.ItemVotes(ctx, ctx.Param("item_id"))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, votes)
}

func (c *Controller) counts(ctx *gin.Context) {
	counts, err := c.votes.Counts(ctx, ctx.Param("item_id"))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, counts)
}

func (c *Controller) userVotesInRoom(ctx *gin.Context) {
	votes, err := c.votes.UserVotesInRoom(ctx, ctx.Param("room_id"), ctx.Param("user_id"))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"votes": votes})
}

type ToggleReactionDTO struct {
	ItemID   string `json:"item_id" binding:"required"`
	UserID   string `json:"user_id" binding:"required"`
	Reaction string `json:"reaction" binding:"required"`
}

func (c *Controller) toggleReaction(ctx *gin.Context) {
	var dto ToggleReactionDTO
	if err := ctx.ShouldBindJSON(&dto); err != nil {
		http_common.RespondBadRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	active, err := c.reactions.Toggle(ctx, dto.ItemID, dto.UserID, dto.Reaction)
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"active": active})
}

func (c *Controller) roomReactions(ctx *gin.Context) {
	reactions, err := c.reactions.RoomReactions(ctx, ctx.Param("room_id"))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, reactions)
}

type RateDTO struct {
	UserID string `json:"user_id" binding:"required"`
	Rating int    `json:"rating" binding:"required"`
}

func (c *Controller) rate(ctx *gin.Context) {
	var dto RateDTO
	if err := ctx.ShouldBindJSON(&dto); err != nil {
		http_common.RespondBadRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	entry, err := c.history.Rate(ctx, ctx.Param("history_id"), dto.UserID, dto.Rating)
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, entry)
}

func (c *Controller) roomHistory(ctx *gin.Context) {
	entries, err := c.history.RoomHistory(ctx, ctx.Param("room_id"),
		intQuery(ctx, "limit", 0), intQuery(ctx, "skip", 0))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, entries)
}

func (c *Controller) historyStats(ctx *gin.Context) {
	stats, err := c.history.Stats(ctx, ctx.Param("room_id"))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, stats)
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
