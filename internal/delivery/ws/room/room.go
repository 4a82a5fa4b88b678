package ws_room

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	usecase_room "github.com/irfanalimd/watchqueue/internal/usecase/room"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Controller struct {
	hub    *Hub
	rooms  *usecase_room.Usecase
	logger *slog.Logger
}

func NewController(hub *Hub, rooms *usecase_room.Usecase) *Controller {
	return &Controller{
		hub:    hub,
		rooms:  rooms,
		logger: slog.Default(),
	}
}

func (c *Controller) RegisterRootRoutes(engine *gin.Engine) {
	engine.GET("/ws/:room_id/:user_id", c.connect)
}

func (c *Controller) connect(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	userID := ctx.Param("user_id")

	// Display name comes from membership when the user is known; a
	// connection from a not-yet-joined user still works.
	name := userID
	if room, err := c.rooms.Get(ctx, roomID); err == nil {
		if member := room.Member(userID); member != nil {
			name = member.Name
		}
	}

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.logger.Error("websocket upgrade failed",
			slog.String("room_id", roomID), slog.Any("error", err))
		return
	}

	client := NewClient(c.hub, conn, roomID, userID, name, c.logger)
	client.Serve()
}
