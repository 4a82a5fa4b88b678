package app

import (
	"log/slog"
	"os"

	"github.com/irfanalimd/watchqueue/internal/config"
	http_init "github.com/irfanalimd/watchqueue/internal/delivery/http/init"
	http_queue "github.com/irfanalimd/watchqueue/internal/delivery/http/queue"
	http_room "github.com/irfanalimd/watchqueue/internal/delivery/http/room"
	http_voting "github.com/irfanalimd/watchqueue/internal/delivery/http/voting"
	"github.com/irfanalimd/watchqueue/internal/delivery/sse"
	ws_room "github.com/irfanalimd/watchqueue/internal/delivery/ws/room"
	infra_mongo_history "github.com/irfanalimd/watchqueue/internal/infra/mongo/history"
	infra_mongo_init "github.com/irfanalimd/watchqueue/internal/infra/mongo/init"
	infra_mongo_queue "github.com/irfanalimd/watchqueue/internal/infra/mongo/queue"
	infra_mongo_reaction "github.com/irfanalimd/watchqueue/internal/infra/mongo/reaction"
	infra_mongo_room "github.com/irfanalimd/watchqueue/internal/infra/mongo/room"
	infra_mongo_vote "github.com/irfanalimd/watchqueue/internal/infra/mongo/vote"
	infra_redis_init "github.com/irfanalimd/watchqueue/internal/infra/redis/init"
	infra_tmdb "github.com/irfanalimd/watchqueue/internal/infra/tmdb"
	usecase_history "github.com/irfanalimd/watchqueue/internal/usecase/history"
	usecase_queue "github.com/irfanalimd/watchqueue/internal/usecase/queue"
	usecase_reaction "github.com/irfanalimd/watchqueue/internal/usecase/reaction"
	usecase_room "github.com/irfanalimd/watchqueue/internal/usecase/room"
	usecase_selection "github.com/irfanalimd/watchqueue/internal/usecase/selection"
	usecase_vote "github.com/irfanalimd/watchqueue/internal/usecase/vote"
	"github.com/irfanalimd/watchqueue/pkg/keyedlock"
)

func Go(cfg *config.Config) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db := infra_mongo_init.MustEstablishConn(cfg.Mongo)

	roomRepo := infra_mongo_room.New(db)
	queueRepo := infra_mongo_queue.New(db)
	voteRepo := infra_mongo_vote.New(db)
	reactionRepo := infra_mongo_reaction.New(db)
	historyRepo := infra_mongo_history.New(db)

	// Adds of the same title race; single instances lock in-process,
	// replicas share the lock through Redis.
	var addLocks keyedlock.Locker = keyedlock.NewMutex()
	if cfg.Redis.Enabled {
		redisConn := infra_redis_init.MustEstablishConn(cfg.Redis)
		addLocks = keyedlock.NewRedisLocker(redisConn, "queue_add:")
	}

	roomUC := usecase_room.New(roomRepo, roomRepo)
	queueUC := usecase_queue.New(queueRepo, addLocks)
	voteUC := usecase_vote.New(voteRepo, queueRepo)
	reactionUC := usecase_reaction.New(reactionRepo, queueRepo)
	selectionUC := usecase_selection.New(queueRepo, historyRepo, roomRepo)
	historyUC := usecase_history.New(historyRepo, queueRepo, queueUC)

	tmdbClient := infra_tmdb.New(cfg.TMDB, logger)
	enricher := infra_tmdb.NewEnricher(tmdbClient, nil, logger)

	hub := ws_room.NewHub(cfg.Realtime, logger)

	controllerPool := http_init.NewControllerPool()
	controllerPool.Add(http_room.New(roomUC))
	controllerPool.Add(http_queue.New(queueUC, selectionUC, historyUC, enricher, tmdbClient, hub))
	controllerPool.Add(http_voting.New(voteUC, reactionUC, historyUC, queueUC, hub))
	controllerPool.Add(sse.New(db))
	controllerPool.AddRoot(ws_room.NewController(hub, roomUC))

	controllerPool.Register()
	controllerPool.RunAll(cfg.HTTP.Port)
}
