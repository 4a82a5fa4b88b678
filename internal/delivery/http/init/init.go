package http_init

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

const apiPrefix = "/api"

type Controller interface {
	RegisterRoutes(router *gin.RouterGroup)
}

// RootController gets the bare engine instead of the /api group, for
// surfaces that live outside the prefix (websocket, health).
type RootController interface {
	RegisterRootRoutes(engine *gin.Engine)
}

type ControllerPool struct {
	pool   []Controller
	root   []RootController
	rg     *gin.RouterGroup
	engine *gin.Engine
}

func NewControllerPool() *ControllerPool {
	engine := gin.Default()
	rg := engine.Group(apiPrefix)
	engine.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return &ControllerPool{
		pool:   make([]Controller, 0, 10),
		root:   make([]RootController, 0, 4),
		rg:     rg,
		engine: engine,
	}
}

func (pool *ControllerPool) Register() {
	for _, c := range pool.pool {
		c.RegisterRoutes(pool.rg)
	}
	for _, c := range pool.root {
		c.RegisterRootRoutes(pool.engine)
	}
}

func (pool *ControllerPool) RunAll(port string) {
	if err := pool.engine.Run(":" + port); err != nil {
		log.Fatalf("failed to run HTTP server: %v", err)
	}
}

func (pool *ControllerPool) Add(c Controller) {
	pool.pool = append(pool.pool, c)
}

func (pool *ControllerPool) AddRoot(c RootController) {
	pool.root = append(pool.root, c)
}
