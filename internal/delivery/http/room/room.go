package http_room

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	http_common "github.com/irfanalimd/watchqueue/internal/delivery/http/common"
	"github.com/irfanalimd/watchqueue/internal/model"
	usecase_room "github.com/irfanalimd/watchqueue/internal/usecase/room"
)

type Controller struct {
	usecase *usecase_room.Usecase
	logger  *slog.Logger
}

func New(usecase *usecase_room.Usecase) *Controller {
	return &Controller{
		usecase: usecase,
		logger:  slog.Default(),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	rooms := router.Group("/rooms")
	{
		rooms.POST("", c.create)
		rooms.GET("/:room_id", c.get)
		rooms.GET("/code/:code", c.byCode)
		rooms.PATCH("/:room_id", c.update)
		rooms.DELETE("/:room_id", c.remove)
		rooms.POST("/code/:code/join", c.join)
		rooms.POST("/:room_id/members", c.addMember)
		rooms.PUT("/:room_id/members/:user_id", c.updateMember)
		rooms.POST("/:room_id/members/:user_id/leave", c.leave)
		rooms.POST("/:room_id/admins", c.grantAdmin)
		rooms.GET("/member/:user_id", c.listForMember)
	}
}

type MemberDTO struct {
	UserID string `json:"user_id"`
	Name   string `json:"name" binding:"required"`
	Avatar string `json:"avatar"`
	Region string `json:"region"`
}

func (dto MemberDTO) toModel() model.Member {
	userID := dto.UserID
	if userID == "" {
		userID = uuid.NewString()
	}
	return model.Member{
		UserID: userID,
		Name:   dto.Name,
		Avatar: dto.Avatar,
		Region: dto.Region,
	}
}

type CreateRoomDTO struct {
	Name     string              `json:"name" binding:"required"`
	Members  []MemberDTO         `json:"members"`
	Settings *model.RoomSettings `json:"settings"`
}

func (c *Controller) create(ctx *gin.Context) {
	var dto CreateRoomDTO
	if err := ctx.ShouldBindJSON(&dto); err != nil {
		http_common.RespondBadRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	members := make([]model.Member, 0, len(dto.Members))
	for _, m := range dto.Members {
		members = append(members, m.toModel())
	}

	room, err := c.usecase.Create(ctx, usecase_room.CreateParams{
		Name:     dto.Name,
		Members:  members,
		Settings: dto.Settings,
	})
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusCreated, room)
}

func (c *Controller) get(ctx *gin.Context) {
	room, err := c.usecase.Get(ctx, ctx.Param("room_id"))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}

func (c *Controller) byCode(ctx *gin.Context) {
	room, err := c.usecase.ByCode(ctx, ctx.Param("code"))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}

type UpdateRoomDTO struct {
	Name     *string             `json:"name"`
	Settings *model.RoomSettings `json:"settings"`
}

func (c *Controller) update(ctx *gin.Context) {
	var dto UpdateRoomDTO
	if err := ctx.ShouldBindJSON(&dto); err != nil {
		http_common.RespondBadRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	room, err := c.usecase.Update(ctx, ctx.Param("room_id"), usecase_room.RoomUpdate{
		Name:     dto.Name,
		Settings: dto.Settings,
	})
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}

func (c *Controller) remove(ctx *gin.Context) {
	if err := c.usecase.Delete(ctx, ctx.Param("room_id")); err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (c *Controller) join(ctx *gin.Context) {
	var dto MemberDTO
	if err := ctx.ShouldBindJSON(&dto); err != nil {
		http_common.RespondBadRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	room, err := c.usecase.JoinByCode(ctx, ctx.Param("code"), dto.toModel())
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}

func (c *Controller) addMember(ctx *gin.Context) {
	var dto MemberDTO
	if err := ctx.ShouldBindJSON(&dto); err != nil {
		http_common.RespondBadRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	room, err := c.usecase.AddMember(ctx, ctx.Param("room_id"), dto.toModel())
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}

type UpdateMemberDTO struct {
	Name   string `json:"name" binding:"required"`
	Avatar string `json:"avatar"`
	Region string `json:"region"`
}

func (c *Controller) updateMember(ctx *gin.Context) {
	var dto UpdateMemberDTO
	if err := ctx.ShouldBindJSON(&dto); err != nil {
		http_common.RespondBadRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	room, err := c.usecase.UpdateMember(ctx, ctx.Param("room_id"), model.Member{
		UserID: ctx.Param("user_id"),
		Name:   dto.Name,
		Avatar: dto.Avatar,
		Region: dto.Region,
	})
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}

type LeaveDTO struct {
	NewAdminID string `json:"new_admin_id"`
}

func (c *Controller) leave(ctx *gin.Context) {
	var dto LeaveDTO
	// Body is optional; only sole admins need a replacement.
	_ = ctx.ShouldBindJSON(&dto)

	room, err := c.usecase.Leave(ctx, ctx.Param("room_id"), ctx.Param("user_id"), dto.NewAdminID)
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}

type GrantAdminDTO struct {
	ActorID  string `json:"actor_id" binding:"required"`
	TargetID string `json:"target_id" binding:"required"`
}

func (c *Controller) grantAdmin(ctx *gin.Context) {
	var dto GrantAdminDTO
	if err := ctx.ShouldBindJSON(&dto); err != nil {
		http_common.RespondBadRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	room, err := c.usecase.GrantAdmin(ctx, ctx.Param("room_id"), dto.ActorID, dto.TargetID)
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}

func (c *Controller) listForMember(ctx *gin.Context) {
	rooms, err := c.usecase.ListForMember(ctx, ctx.Param("user_id"))
	if err != nil {
		http_common.RespondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"rooms": rooms})
}
